package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"stockbook/m/domain"
	"stockbook/m/internal/schema"
	"stockbook/m/internal/table"
)

// Typed views over snapshots. Missing numbers read as zero, missing or
// unparseable dates as the zero domain.Date.

func dateCell(r table.Row, col string) domain.Date {
	if d, ok := r.Date(col); ok {
		return domain.NewDate(d)
	}
	return domain.Date{}
}

func intCell(r table.Row, col string) int64 {
	n, _ := r.Int(col)
	return n
}

func decimalCell(r table.Row, col string) decimal.Decimal {
	d, _ := r.Decimal(col)
	return d
}

// StockItems converts a Stock snapshot.
func StockItems(t *table.Table) []domain.StockItem {
	out := make([]domain.StockItem, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, domain.StockItem{
			RowID:    r.ID,
			ItemCode: r.String("ItemCode"),
			Item:     r.String("Item"),
			Stock:    intCell(r, "Stock"),
			Price1:   decimalCell(r, "Price1"),
			Price2:   decimalCell(r, "Price2"),
			Price3:   decimalCell(r, "Price3"),
		})
	}
	return out
}

// Sales converts a Sales snapshot. Empty Qty, Price or Total cells are listed in Sale.Missing.
func Sales(t *table.Table) []domain.Sale {
	out := make([]domain.Sale, 0, len(t.Rows))
	for _, r := range t.Rows {
		var missing []string
		if _, ok := r.Int("Qty"); !ok {
			missing = append(missing, "Qty")
		}
		for _, col := range []string{"Price", "Total"} {
			if _, ok := r.Decimal(col); !ok {
				missing = append(missing, col)
			}
		}
		out = append(out, domain.Sale{
			RowID:       r.ID,
			Date:        dateCell(r, "Date"),
			ItemCode:    r.String("ItemCode"),
			Qty:         intCell(r, "Qty"),
			Price:       decimalCell(r, "Price"),
			Total:       decimalCell(r, "Total"),
			InvoiceType: domain.InvoiceType(r.String("InvoiceType")),
			InvoiceID:   r.String("InvoiceID"),
			Missing:     missing,
		})
	}
	return out
}

// Movements converts a StockUpdate snapshot.
func Movements(t *table.Table) []domain.StockMovement {
	out := make([]domain.StockMovement, 0, len(t.Rows))
	for _, r := range t.Rows {
		bought, ok := r.Decimal("BoughtPrice")
		out = append(out, domain.StockMovement{
			RowID:       r.ID,
			Date:        dateCell(r, "Date"),
			ItemCode:    r.String("ItemCode"),
			Qty:         intCell(r, "Qty"),
			Type:        domain.MovementType(r.String("Type")),
			BoughtPrice: decimal.NullDecimal{Decimal: bought, Valid: ok},
		})
	}
	return out
}

// Cheques converts a Cheques snapshot.
func Cheques(t *table.Table) []domain.Cheque {
	out := make([]domain.Cheque, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, domain.Cheque{
			RowID:      r.ID,
			Date:       dateCell(r, "Date"),
			FutureDate: dateCell(r, "FutureDate"),
			ItemCode:   r.String("ItemCode"),
			Qty:        intCell(r, "Qty"),
			Amount:     decimalCell(r, "Amount"),
			Claimed:    r.Bool("Claimed"),
		})
	}
	return out
}

// Expenses converts an Expenses snapshot.
func Expenses(t *table.Table) []domain.Expense {
	out := make([]domain.Expense, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, domain.Expense{
			RowID:  r.ID,
			Month:  r.String("Month"),
			Type:   r.String("Type"),
			Amount: decimalCell(r, "Amount"),
		})
	}
	return out
}

// Bills converts a BillToBill or OwingPurchases snapshot.
func Bills(t *table.Table) []domain.Bill {
	out := make([]domain.Bill, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, domain.Bill{
			RowID:     r.ID,
			Date:      dateCell(r, "Date"),
			InvoiceID: r.String("InvoiceID"),
			Amount:    decimalCell(r, "Amount"),
			DueDate:   dateCell(r, "DueDate"),
			Paid:      r.Bool("Paid"),
		})
	}
	return out
}

func (s *Store) LoadStock(ctx context.Context) ([]domain.StockItem, error) {
	t, err := s.LoadTable(ctx, schema.Stock)
	if err != nil {
		return nil, err
	}
	return StockItems(t), nil
}

func (s *Store) LoadSales(ctx context.Context) ([]domain.Sale, error) {
	t, err := s.LoadTable(ctx, schema.Sales)
	if err != nil {
		return nil, err
	}
	return Sales(t), nil
}

func (s *Store) LoadMovements(ctx context.Context) ([]domain.StockMovement, error) {
	t, err := s.LoadTable(ctx, schema.StockUpdate)
	if err != nil {
		return nil, err
	}
	return Movements(t), nil
}

func (s *Store) LoadCheques(ctx context.Context) ([]domain.Cheque, error) {
	t, err := s.LoadTable(ctx, schema.Cheques)
	if err != nil {
		return nil, err
	}
	return Cheques(t), nil
}

func (s *Store) LoadExpenses(ctx context.Context) ([]domain.Expense, error) {
	t, err := s.LoadTable(ctx, schema.Expenses)
	if err != nil {
		return nil, err
	}
	return Expenses(t), nil
}

// LoadBills loads BillToBill or OwingPurchases.
func (s *Store) LoadBills(ctx context.Context, name string) ([]domain.Bill, error) {
	if name != schema.BillToBill && name != schema.OwingPurchases {
		return nil, validation("%q does not hold bills", name)
	}
	t, err := s.LoadTable(ctx, name)
	if err != nil {
		return nil, err
	}
	return Bills(t), nil
}
