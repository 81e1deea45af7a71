// Package export writes ledger tables as CSV, header row first, rows in insertion order.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"stockbook/m/internal/table"
)

// Loader loads a table snapshot by name; *ledger.Store satisfies it.
type Loader interface {
	LoadTable(ctx context.Context, name string) (*table.Table, error)
}

// WriteCSV writes t to w. Decimals use their shortest exact form, dates YYYY-MM-DD,
// booleans true/false and missing cells are empty.
func WriteCSV(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	names := t.ColumnNames()
	if err := cw.Write(names); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(names))
	for _, row := range t.Rows {
		for i, name := range names {
			record[i] = row.String(name)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", row.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Table loads the named table and writes it to w.
func Table(ctx context.Context, src Loader, name string, w io.Writer) (int, error) {
	t, err := src.LoadTable(ctx, name)
	if err != nil {
		return 0, err
	}
	if err := WriteCSV(w, t); err != nil {
		return 0, fmt.Errorf("export %s: %w", name, err)
	}
	return len(t.Rows), nil
}
