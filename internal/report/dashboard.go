package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"stockbook/m/domain"
	"stockbook/m/internal/ledger"
	"stockbook/m/internal/schema"
	"stockbook/m/internal/table"
)

// Source is what reports read from; *ledger.Store satisfies it.
type Source interface {
	Snapshot(ctx context.Context, names ...string) (map[string]*table.Table, error)
}

// Snapshot holds tables loaded at one moment, plus typed views of those that were loaded.
type Snapshot struct {
	Tables    map[string]*table.Table
	Stock     []domain.StockItem
	Sales     []domain.Sale
	Movements []domain.StockMovement
	Expenses  []domain.Expense
}

// LoadSnapshot loads the named tables (all registered tables when none are
// named) from src in one consistent read.
func LoadSnapshot(ctx context.Context, src Source, names ...string) (*Snapshot, error) {
	tables, err := src.Snapshot(ctx, names...)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Tables: tables}
	if t, ok := tables[schema.Stock]; ok {
		snap.Stock = ledger.StockItems(t)
	}
	if t, ok := tables[schema.Sales]; ok {
		snap.Sales = ledger.Sales(t)
	}
	if t, ok := tables[schema.StockUpdate]; ok {
		snap.Movements = ledger.Movements(t)
	}
	if t, ok := tables[schema.Expenses]; ok {
		snap.Expenses = ledger.Expenses(t)
	}
	return snap, nil
}

// Due is the reminder state of one table with a done flag.
type Due struct {
	Table string      `json:"table"`
	Soon  bool        `json:"due_soon"`
	Rows  []table.Row `json:"-"`
	Count int         `json:"count"`
	Open  int         `json:"outstanding"`
}

// DueFor computes the reminder state of a Cheques, BillToBill or OwingPurchases snapshot.
func DueFor(t *table.Table, today time.Time, horizonDays int) Due {
	done := schema.DoneColumns[t.Name]
	rows := DueRows(t, schema.DueColumns[t.Name], done, today, horizonDays)
	return Due{
		Table: t.Name,
		Soon:  len(rows) > 0,
		Rows:  rows,
		Count: len(rows),
		Open:  len(Outstanding(t, done)),
	}
}

// DashboardOptions tunes the dashboard thresholds.
type DashboardOptions struct {
	Today             time.Time
	LowStockThreshold int64
	HorizonDays       int
	PriceColumn       domain.PriceColumn
	TopN              int
}

// DashboardView is the at-a-glance summary the front page shows.
type DashboardView struct {
	Today     string          `json:"today"`
	Items     int             `json:"items"`
	LowStock  []string        `json:"low_stock"`
	Due       []Due           `json:"due"`
	Profit    Profit          `json:"profit"`
	Valuation decimal.Decimal `json:"valuation"`
	TopItems  []TopItem       `json:"top_items"`
}

// Dashboard bundles the reports over one snapshot.
func Dashboard(snap *Snapshot, opts DashboardOptions, logger *slog.Logger) DashboardView {
	if opts.Today.IsZero() {
		opts.Today = time.Now()
	}
	if opts.PriceColumn == "" {
		opts.PriceColumn = domain.Price1
	}
	if opts.TopN <= 0 {
		opts.TopN = 5
	}

	view := DashboardView{
		Today:     domain.NewDate(opts.Today).String(),
		Items:     len(snap.Stock),
		LowStock:  LowStock(snap.Stock, opts.LowStockThreshold),
		Profit:    ProfitEstimate(snap.Sales, snap.Movements, snap.Expenses, logger),
		Valuation: StockValuation(snap.Stock, opts.PriceColumn),
		TopItems:  TopSellingItems(snap.Sales, snap.Stock, opts.TopN, ByMonth),
	}
	for _, name := range []string{schema.Cheques, schema.BillToBill, schema.OwingPurchases} {
		if t, ok := snap.Tables[name]; ok {
			view.Due = append(view.Due, DueFor(t, opts.Today, opts.HorizonDays))
		}
	}
	return view
}
