// Package report derives read-only views from ledger snapshots: low stock,
// due reminders, top sellers, profit and stock valuation. Nothing here writes.
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"stockbook/m/domain"
	"stockbook/m/internal/table"
)

const (
	DefaultLowStockThreshold = 10
	DefaultHorizonDays       = 3
)

// LowStock returns the codes of items whose stock is below threshold, in
// snapshot order. A threshold <= 0 means DefaultLowStockThreshold.
func LowStock(items []domain.StockItem, threshold int64) []string {
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	out := []string{}
	for _, it := range items {
		if it.Stock < threshold {
			out = append(out, it.ItemCode)
		}
	}
	return out
}

// DueSoon reports whether any unresolved row falls due within horizonDays of today
// (inclusive, today counts). Rows without a readable date are never due.
// A negative horizon means DefaultHorizonDays.
func DueSoon(t *table.Table, dateColumn, doneColumn string, today time.Time, horizonDays int) bool {
	return len(DueRows(t, dateColumn, doneColumn, today, horizonDays)) > 0
}

// DueRows returns the rows DueSoon counts, in insertion order.
func DueRows(t *table.Table, dateColumn, doneColumn string, today time.Time, horizonDays int) []table.Row {
	if horizonDays < 0 {
		horizonDays = DefaultHorizonDays
	}
	start := domain.NewDate(today)
	var out []table.Row
	for _, r := range t.Rows {
		if r.Bool(doneColumn) {
			continue
		}
		due, ok := r.Date(dateColumn)
		if !ok {
			continue
		}
		days := start.DaysUntil(domain.NewDate(due))
		if days >= 0 && days <= horizonDays {
			out = append(out, r)
		}
	}
	return out
}

// Outstanding returns the rows whose done flag is false, in insertion order.
func Outstanding(t *table.Table, doneColumn string) []table.Row {
	var out []table.Row
	for _, r := range t.Rows {
		if !r.Bool(doneColumn) {
			out = append(out, r)
		}
	}
	return out
}

// StockValuation is sum(Stock * price) over every item, negative stock included.
func StockValuation(items []domain.StockItem, col domain.PriceColumn) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price(col).Mul(decimal.NewFromInt(it.Stock)))
	}
	return total
}

// Status is the payment state of a bill.
type Status string

const (
	StatusPaid    Status = "Paid"
	StatusLate    Status = "Late"
	StatusPending Status = "Pending"
)

// BillStatus is Paid once paid, Late when the due date has passed, Pending otherwise.
// A bill without a due date is never late.
func BillStatus(b domain.Bill, today time.Time) Status {
	switch {
	case b.Paid:
		return StatusPaid
	case b.DueDate.Valid() && b.DueDate.Before(domain.NewDate(today).Time):
		return StatusLate
	default:
		return StatusPending
	}
}

// BillLine is a bill annotated with its status.
type BillLine struct {
	domain.Bill
	Status Status `json:"status"`
}

// BillStatuses annotates every bill, keeping their order.
func BillStatuses(bills []domain.Bill, today time.Time) []BillLine {
	out := make([]BillLine, 0, len(bills))
	for _, b := range bills {
		out = append(out, BillLine{Bill: b, Status: BillStatus(b, today)})
	}
	return out
}
