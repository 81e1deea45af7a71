package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"stockbook/m/internal/schema"
	"stockbook/m/internal/table"
)

// RowIDColumn is the hidden column recording insertion order.
const RowIDColumn = "row_id"

// Result describes what a Run changed.
type Result struct {
	Created      []string            `json:"created"`
	AddedColumns map[string][]string `json:"added_columns"`
	Version      int                 `json:"version"`
}

// Run creates every absent table with its full schema and adds absent columns to the
// tables that already exist. Nothing is dropped, reordered or overwritten, so running it
// against an initialized file is a no-op. With no names every registered table is initialized.
func Run(ctx context.Context, db *sqlx.DB, names ...string) (Result, error) {
	if len(names) == 0 {
		names = schema.Names()
	}
	for _, name := range names {
		if !schema.Known(name) {
			return Result{}, fmt.Errorf("initialize: unknown table %q", name)
		}
	}

	res := Result{AddedColumns: map[string][]string{}}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("initialize: begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := Tables(ctx, tx)
	if err != nil {
		return res, err
	}

	for _, name := range names {
		cols, _ := schema.Columns(name)
		if !existing[name] {
			if _, err := tx.ExecContext(ctx, createTableSQL(name, cols)); err != nil {
				return res, fmt.Errorf("initialize: create %s: %w", name, err)
			}
			res.Created = append(res.Created, name)
			existing[name] = true
			continue
		}
		added, err := EnsureColumns(ctx, tx, name, cols)
		if err != nil {
			return res, err
		}
		if len(added) > 0 {
			res.AddedColumns[name] = added
		}
	}

	var version int
	if err := tx.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return res, fmt.Errorf("initialize: get user_version: %w", err)
	}
	if version < 1 {
		if err := migrateToV1(ctx, tx, existing); err != nil {
			return res, err
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schema.Version)); err != nil {
		return res, fmt.Errorf("initialize: set user_version: %w", err)
	}
	res.Version = schema.Version

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("initialize: commit: %w", err)
	}
	return res, nil
}

// migrateToV1 rekeys legacy receivable/payable rows on InvoiceID. Older files keyed
// BillToBill by ItemCode; those rows get a synthetic LEGACY-<ItemCode>-<row_id> invoice.
func migrateToV1(ctx context.Context, tx *sqlx.Tx, existing map[string]bool) error {
	for _, name := range []string{schema.BillToBill, schema.OwingPurchases} {
		if !existing[name] {
			continue
		}
		cols, _ := schema.Columns(name)
		if _, err := EnsureColumns(ctx, tx, name, cols); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
		present, err := Columns(ctx, tx, name)
		if err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
		if !contains(present, "ItemCode") {
			continue
		}
		_, err = tx.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s SET "InvoiceID" = 'LEGACY-' || "ItemCode" || '-' || row_id
			WHERE ("InvoiceID" IS NULL OR "InvoiceID" = '')
			  AND "ItemCode" IS NOT NULL AND "ItemCode" <> ''`, Quote(name)))
		if err != nil {
			return fmt.Errorf("migrate to v1: rekey %s: %w", name, err)
		}
	}
	return nil
}

// EnsureColumns adds every column of cols missing from the stored table, at the end.
// Returns the names it added.
func EnsureColumns(ctx context.Context, ext sqlx.ExtContext, name string, cols []table.Column) ([]string, error) {
	present, err := Columns(ctx, ext, name)
	if err != nil {
		return nil, err
	}
	var added []string
	for _, c := range cols {
		if contains(present, c.Name) {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", Quote(name), ColumnDDL(c))
		if _, err := ext.ExecContext(ctx, stmt); err != nil {
			return added, fmt.Errorf("add column %s.%s: %w", name, c.Name, err)
		}
		added = append(added, c.Name)
		present = append(present, c.Name)
	}
	return added, nil
}

// Tables returns the set of tables present in the file.
func Tables(ctx context.Context, q sqlx.QueryerContext) (map[string]bool, error) {
	var names []string
	err := sqlx.SelectContext(ctx, q, &names,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

type columnInfo struct {
	CID     int            `db:"cid"`
	Name    string         `db:"name"`
	Type    string         `db:"type"`
	NotNull int            `db:"notnull"`
	Default sql.NullString `db:"dflt_value"`
	PK      int            `db:"pk"`
}

// Columns returns the stored column names of a table in order, without the row id.
func Columns(ctx context.Context, q sqlx.QueryerContext, name string) ([]string, error) {
	var infos []columnInfo
	if err := sqlx.SelectContext(ctx, q, &infos, fmt.Sprintf("PRAGMA table_info(%s)", Quote(name))); err != nil {
		return nil, fmt.Errorf("describe %s: %w", name, err)
	}
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Name == RowIDColumn {
			continue
		}
		out = append(out, info.Name)
	}
	return out, nil
}

// ColumnDDL renders a column definition. Booleans are NOT NULL DEFAULT 0 so that
// adding one to a populated table fills existing rows with false; every other
// column is nullable and NULL is the missing marker.
func ColumnDDL(c table.Column) string {
	switch c.Kind {
	case table.KindBool:
		return Quote(c.Name) + " INTEGER NOT NULL DEFAULT 0"
	case table.KindInt:
		return Quote(c.Name) + " INTEGER"
	default:
		return Quote(c.Name) + " TEXT"
	}
}

// Quote quotes an SQL identifier.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func createTableSQL(name string, cols []table.Column) string {
	defs := make([]string, 0, len(cols)+1)
	defs = append(defs, RowIDColumn+" INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, c := range cols {
		defs = append(defs, ColumnDDL(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)", Quote(name), strings.Join(defs, ",\n    "))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
