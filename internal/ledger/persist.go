package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"stockbook/m/internal/migrations"
	"stockbook/m/internal/schema"
	"stockbook/m/internal/table"
)

// LoadTable reads the whole named table into a snapshot, in insertion order.
//
// An unknown name, a table missing from the file, or a failing query is a ReadError.
// A cell that cannot be parsed (text in a numeric column, a bad boolean) does not fail
// the call: the problem is logged and an empty, schema-valid snapshot is returned so the
// caller stays usable. Dates that do not parse are kept as raw text.
func (s *Store) LoadTable(ctx context.Context, name string) (*table.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadTable(ctx, s.db, name)
}

// Snapshot loads several tables under one read lock, so no mutation lands between
// them. With no names it loads every registered table.
func (s *Store) Snapshot(ctx context.Context, names ...string) (map[string]*table.Table, error) {
	if len(names) == 0 {
		names = schema.Names()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*table.Table, len(names))
	for _, name := range names {
		t, err := s.loadTable(ctx, s.db, name)
		if err != nil {
			return nil, err
		}
		out[name] = t
	}
	return out, nil
}

func (s *Store) loadTable(ctx context.Context, q sqlx.QueryerContext, name string) (*table.Table, error) {
	if !schema.Known(name) {
		return nil, &Error{Code: CodeRead, Table: name, Message: "unknown table"}
	}
	existing, err := migrations.Tables(ctx, q)
	if err != nil {
		return nil, readError(name, err)
	}
	if !existing[name] {
		return nil, &Error{Code: CodeRead, Table: name, Message: "table missing from store, initialize it first"}
	}

	stored, err := migrations.Columns(ctx, q, name)
	if err != nil {
		return nil, readError(name, err)
	}
	cols := make([]table.Column, len(stored))
	quoted := make([]string, 0, len(stored)+1)
	quoted = append(quoted, migrations.RowIDColumn)
	for i, c := range stored {
		cols[i] = schema.Lookup(name, c)
		quoted = append(quoted, migrations.Quote(c))
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(quoted, ", "), migrations.Quote(name), migrations.RowIDColumn)
	rows, err := q.QueryxContext(ctx, query)
	if err != nil {
		return nil, readError(name, err)
	}
	defer rows.Close()

	t := table.New(name, cols)
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, readError(name, err)
		}
		id, _ := vals[0].(int64)
		row := table.Row{ID: id, Cells: make(map[string]any, len(cols))}
		for i, c := range cols {
			v, err := table.Coerce(c.Kind, vals[i+1])
			if err != nil {
				s.log.Warn("unreadable cell, using empty table",
					"table", name, "row", id, "column", c.Name, "error", err)
				return schema.Empty(name)
			}
			row.Cells[c.Name] = v
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, readError(name, err)
	}

	required, _ := schema.Columns(name)
	return table.EnsureSchema(t, required), nil
}

// SaveTable replaces the entire content of t.Name with the snapshot, inside one
// transaction; other tables are not touched. Rows keep their ids, rows without one
// are appended after them. A Stock snapshot must have unique, non-empty ItemCodes.
func (s *Store) SaveTable(ctx context.Context, t *table.Table) error {
	if t == nil {
		return validation("nil table")
	}
	if !schema.Known(t.Name) {
		return validation("unknown table %q", t.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return writeError(t.Name, err)
	}
	defer tx.Rollback()

	if err := s.saveTable(ctx, tx, t); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return writeError(t.Name, err)
	}
	s.log.Debug("saved table", "table", t.Name, "rows", len(t.Rows))
	return nil
}

func (s *Store) saveTable(ctx context.Context, tx *sqlx.Tx, t *table.Table) error {
	existing, err := migrations.Tables(ctx, tx)
	if err != nil {
		return writeError(t.Name, err)
	}
	if !existing[t.Name] {
		return &Error{Code: CodeWrite, Table: t.Name, Message: "table missing from store, initialize it first"}
	}
	required, _ := schema.Columns(t.Name)
	if _, err := migrations.EnsureColumns(ctx, tx, t.Name, required); err != nil {
		return writeError(t.Name, err)
	}
	stored, err := migrations.Columns(ctx, tx, t.Name)
	if err != nil {
		return writeError(t.Name, err)
	}

	storedSet := make(map[string]bool, len(stored))
	for _, c := range stored {
		storedSet[c] = true
	}
	for _, c := range t.Columns {
		if !storedSet[c.Name] {
			return &Error{Code: CodeValidation, Table: t.Name, Key: c.Name, Message: fmt.Sprintf("unknown column %q", c.Name)}
		}
	}

	if err := checkSnapshot(t); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+migrations.Quote(t.Name)); err != nil {
		return writeError(t.Name, err)
	}
	for _, row := range t.Rows {
		cells := make(map[string]any, len(t.Columns))
		for _, c := range t.Columns {
			cells[c.Name] = row.Get(c.Name)
		}
		// stored codes must match what the mutation paths look up
		if code, ok := cells["ItemCode"].(string); ok {
			cells["ItemCode"] = NormalizeCode(code)
		}
		if _, err := insertRow(ctx, tx, t.Name, row.ID, cells); err != nil {
			return err
		}
	}
	return nil
}

// checkSnapshot validates row ids and, for Stock, the ItemCode key.
func checkSnapshot(t *table.Table) error {
	ids := make(map[int64]bool, len(t.Rows))
	for _, row := range t.Rows {
		if row.ID == 0 {
			continue
		}
		if ids[row.ID] {
			return &Error{Code: CodeValidation, Table: t.Name, Message: fmt.Sprintf("row id %d appears twice", row.ID)}
		}
		ids[row.ID] = true
	}
	if t.Name != schema.Stock {
		return nil
	}
	codes := make(map[string]bool, len(t.Rows))
	for i, row := range t.Rows {
		code := NormalizeCode(row.String("ItemCode"))
		if code == "" {
			return &Error{Code: CodeValidation, Table: t.Name, Message: fmt.Sprintf("row %d has no ItemCode", i+1)}
		}
		if codes[code] {
			return duplicateKey(t.Name, code)
		}
		codes[code] = true
	}
	return nil
}

// insertRow appends one row; id 0 lets SQLite assign the next row id.
func insertRow(ctx context.Context, ext sqlx.ExtContext, name string, id int64, cells map[string]any) (int64, error) {
	cols := make([]string, 0, len(cells)+1)
	args := make([]any, 0, len(cells)+1)
	if id != 0 {
		cols = append(cols, migrations.RowIDColumn)
		args = append(args, id)
	}
	// registry columns first, then whatever else the caller set
	seen := make(map[string]bool, len(cells))
	ordered := make([]string, 0, len(cells))
	required, _ := schema.Columns(name)
	for _, c := range required {
		if _, ok := cells[c.Name]; ok {
			ordered = append(ordered, c.Name)
			seen[c.Name] = true
		}
	}
	for c := range cells {
		if !seen[c] {
			ordered = append(ordered, c)
		}
	}

	for _, c := range ordered {
		col := schema.Lookup(name, c)
		v, err := table.Encode(col.Kind, cells[c])
		if err != nil {
			return 0, &Error{Code: CodeValidation, Table: name, Key: c, Message: fmt.Sprintf("column %s", c), Err: err}
		}
		cols = append(cols, migrations.Quote(c))
		args = append(args, v)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		migrations.Quote(name), strings.Join(cols, ", "), placeholders)
	res, err := ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, writeError(name, err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, writeError(name, err)
	}
	return newID, nil
}
