// Package schema is the registry of ledger tables and their canonical columns.
package schema

import (
	"fmt"

	"stockbook/m/internal/table"
)

// Table names.
const (
	Stock          = "Stock"
	Sales          = "Sales"
	StockUpdate    = "StockUpdate"
	Cheques        = "Cheques"
	Expenses       = "Expenses"
	BillToBill     = "BillToBill"
	OwingPurchases = "OwingPurchases"
)

// Version is the current on-disk schema version.
const Version = 1

func col(name string, kind table.Kind) table.Column {
	return table.Column{Name: name, Kind: kind}
}

var order = []string{Stock, Sales, StockUpdate, Cheques, Expenses, BillToBill, OwingPurchases}

var registry = map[string][]table.Column{
	Stock: {
		col("ItemCode", table.KindText),
		col("Item", table.KindText),
		col("Stock", table.KindInt),
		col("Price1", table.KindDecimal),
		col("Price2", table.KindDecimal),
		col("Price3", table.KindDecimal),
	},
	Sales: {
		col("Date", table.KindDate),
		col("ItemCode", table.KindText),
		col("Qty", table.KindInt),
		col("Price", table.KindDecimal),
		col("Total", table.KindDecimal),
		col("InvoiceType", table.KindText),
		col("InvoiceID", table.KindText),
	},
	StockUpdate: {
		col("Date", table.KindDate),
		col("ItemCode", table.KindText),
		col("Qty", table.KindInt),
		col("Type", table.KindText),
		col("BoughtPrice", table.KindDecimal),
	},
	Cheques: {
		col("Date", table.KindDate),
		col("FutureDate", table.KindDate),
		col("ItemCode", table.KindText),
		col("Qty", table.KindInt),
		col("Amount", table.KindDecimal),
		col("Claimed", table.KindBool),
	},
	Expenses: {
		col("Month", table.KindMonth),
		col("Type", table.KindText),
		col("Amount", table.KindDecimal),
	},
	BillToBill: {
		col("Date", table.KindDate),
		col("InvoiceID", table.KindText),
		col("Amount", table.KindDecimal),
		col("DueDate", table.KindDate),
		col("Paid", table.KindBool),
	},
	OwingPurchases: {
		col("Date", table.KindDate),
		col("InvoiceID", table.KindText),
		col("Amount", table.KindDecimal),
		col("DueDate", table.KindDate),
		col("Paid", table.KindBool),
	},
}

// legacy columns older files may carry; kept on load, never required.
var legacy = map[string][]table.Column{
	BillToBill: {
		col("ItemCode", table.KindText),
		col("Qty", table.KindInt),
	},
}

// DoneColumns maps the tables with a resolution flag to that flag's column.
var DoneColumns = map[string]string{
	Cheques:        "Claimed",
	BillToBill:     "Paid",
	OwingPurchases: "Paid",
}

// DueColumns maps the same tables to the date the flag is due by.
var DueColumns = map[string]string{
	Cheques:        "FutureDate",
	BillToBill:     "DueDate",
	OwingPurchases: "DueDate",
}

// Names returns every registered table name in bootstrap order.
func Names() []string {
	out := make([]string, len(order))
	copy(out, order)
	return out
}

// Known reports whether name is a registered table.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// Columns returns a copy of the required columns of a table.
func Columns(name string) ([]table.Column, bool) {
	cols, ok := registry[name]
	if !ok {
		return nil, false
	}
	out := make([]table.Column, len(cols))
	copy(out, cols)
	return out, true
}

// Lookup returns the kind of a column, consulting legacy columns too.
// Columns nobody registered are treated as text.
func Lookup(tableName, column string) table.Column {
	for _, c := range registry[tableName] {
		if c.Name == column {
			return c
		}
	}
	for _, c := range legacy[tableName] {
		if c.Name == column {
			return c
		}
	}
	return col(column, table.KindText)
}

// Empty returns an empty, schema-valid snapshot of the named table.
func Empty(name string) (*table.Table, error) {
	cols, ok := Columns(name)
	if !ok {
		return nil, fmt.Errorf("unknown table %q", name)
	}
	return table.New(name, cols), nil
}
