package migrations

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stockbook/m/internal/schema"
)

// Report is the outcome of Verify.
type Report struct {
	Version         int                 `json:"version"`
	ExpectedVersion int                 `json:"expected_version"`
	MissingTables   []string            `json:"missing_tables,omitempty"`
	MissingColumns  map[string][]string `json:"missing_columns,omitempty"`
}

// OK reports whether the file matches the registry and current version.
func (r Report) OK() bool {
	return r.Version == r.ExpectedVersion && len(r.MissingTables) == 0 && len(r.MissingColumns) == 0
}

// Verify compares the file against the registry without changing it.
func Verify(ctx context.Context, db *sqlx.DB) (Report, error) {
	rep := Report{ExpectedVersion: schema.Version, MissingColumns: map[string][]string{}}

	if err := db.GetContext(ctx, &rep.Version, "PRAGMA user_version"); err != nil {
		return rep, fmt.Errorf("verify: get user_version: %w", err)
	}

	existing, err := Tables(ctx, db)
	if err != nil {
		return rep, fmt.Errorf("verify: %w", err)
	}
	for _, name := range schema.Names() {
		if !existing[name] {
			rep.MissingTables = append(rep.MissingTables, name)
			continue
		}
		present, err := Columns(ctx, db, name)
		if err != nil {
			return rep, fmt.Errorf("verify: %w", err)
		}
		cols, _ := schema.Columns(name)
		for _, c := range cols {
			if !contains(present, c.Name) {
				rep.MissingColumns[name] = append(rep.MissingColumns[name], c.Name)
			}
		}
	}
	return rep, nil
}
