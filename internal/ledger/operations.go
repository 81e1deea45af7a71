package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"stockbook/m/domain"
	"stockbook/m/internal/migrations"
	"stockbook/m/internal/schema"
)

// NormalizeCode trims an item code and puts it in Unicode NFC so that visually
// identical codes typed on different keyboards compare equal.
func NormalizeCode(code string) string {
	return norm.NFC.String(strings.TrimSpace(code))
}

// NewItem is the input of AddItem.
type NewItem struct {
	ItemCode string          `json:"item_code"`
	Item     string          `json:"item"`
	Stock    int64           `json:"stock"`
	Price1   decimal.Decimal `json:"price1"`
	Price2   decimal.Decimal `json:"price2"`
	Price3   decimal.Decimal `json:"price3"`
}

// SaleRequest is the input of RecordSale. PriceColumn defaults to Price1 and
// InvoiceType to Cash. ChequeDate opens a cheque; a deferred InvoiceType opens a
// BillToBill receivable due on DueDate (default Date + bill term).
type SaleRequest struct {
	Date        domain.Date        `json:"date"`
	ItemCode    string             `json:"item_code"`
	Qty         int64              `json:"qty"`
	PriceColumn domain.PriceColumn `json:"price_column"`
	InvoiceType domain.InvoiceType `json:"invoice_type"`
	InvoiceID   string             `json:"invoice_id,omitempty"`
	ChequeDate  domain.Date        `json:"cheque_date"`
	DueDate     domain.Date        `json:"due_date"`
}

// SaleResult holds every row RecordSale appended.
type SaleResult struct {
	Sale   domain.Sale          `json:"sale"`
	Update domain.StockMovement `json:"stock_update"`
	Cheque *domain.Cheque       `json:"cheque,omitempty"`
	Bill   *domain.Bill         `json:"bill,omitempty"`
}

// RestockRequest is the input of Restock.
type RestockRequest struct {
	Date        domain.Date     `json:"date"`
	ItemCode    string          `json:"item_code"`
	Qty         int64           `json:"qty"`
	BoughtPrice decimal.Decimal `json:"bought_price"`
}

// withTx runs fn in one transaction under the write lock. Either every write
// of fn is committed or none is.
func (s *Store) withTx(ctx context.Context, table string, fn func(tx *sqlx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return writeError(table, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return writeError(table, err)
	}
	return nil
}

// AddItem appends a Stock row. The code must not exist yet.
func (s *Store) AddItem(ctx context.Context, in NewItem) (domain.StockItem, error) {
	code := NormalizeCode(in.ItemCode)
	name := strings.TrimSpace(in.Item)
	switch {
	case code == "":
		return domain.StockItem{}, validation("item code is required")
	case name == "":
		return domain.StockItem{}, validation("item name is required")
	case in.Stock < 0:
		return domain.StockItem{}, validation("initial stock must not be negative")
	case in.Price1.IsNegative() || in.Price2.IsNegative() || in.Price3.IsNegative():
		return domain.StockItem{}, validation("prices must not be negative")
	}

	item := domain.StockItem{
		ItemCode: code,
		Item:     name,
		Stock:    in.Stock,
		Price1:   in.Price1,
		Price2:   in.Price2,
		Price3:   in.Price3,
	}
	err := s.withTx(ctx, schema.Stock, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM "Stock" WHERE "ItemCode" = ?`, code); err != nil {
			return readError(schema.Stock, err)
		}
		if n > 0 {
			return duplicateKey(schema.Stock, code)
		}
		id, err := insertRow(ctx, tx, schema.Stock, 0, map[string]any{
			"ItemCode": item.ItemCode,
			"Item":     item.Item,
			"Stock":    item.Stock,
			"Price1":   item.Price1,
			"Price2":   item.Price2,
			"Price3":   item.Price3,
		})
		item.RowID = id
		return err
	})
	if err != nil {
		return domain.StockItem{}, err
	}
	s.log.Info("item added", "item_code", code)
	return item, nil
}

// DeleteItem removes the Stock row of code. Sales, movements and cheques that
// reference the code are left alone; reports tolerate the orphans.
func (s *Store) DeleteItem(ctx context.Context, code string) error {
	code = NormalizeCode(code)
	if code == "" {
		return validation("item code is required")
	}
	return s.withTx(ctx, schema.Stock, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM "Stock" WHERE "ItemCode" = ?`, code)
		if err != nil {
			return writeError(schema.Stock, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return unknownItem(schema.Stock, code)
		}
		return nil
	})
}

// RecordSale appends the Sales and StockUpdate rows of a sale and decrements the
// item's stock. Stock may go negative. A cheque date appends a Cheques row and a
// deferred invoice type appends a BillToBill row.
func (s *Store) RecordSale(ctx context.Context, req SaleRequest) (SaleResult, error) {
	code := NormalizeCode(req.ItemCode)
	if code == "" {
		return SaleResult{}, validation("item code is required")
	}
	if req.Qty <= 0 {
		return SaleResult{}, validation("quantity must be positive, got %d", req.Qty)
	}
	if !req.Date.Valid() {
		return SaleResult{}, validation("sale date is required")
	}
	priceCol := req.PriceColumn
	if priceCol == "" {
		priceCol = domain.Price1
	}
	if _, err := domain.ParsePriceColumn(string(priceCol)); err != nil {
		return SaleResult{}, validation("%v", err)
	}
	invoiceType, err := domain.ParseInvoiceType(string(req.InvoiceType))
	if err != nil {
		return SaleResult{}, validation("%v", err)
	}

	var res SaleResult
	err = s.withTx(ctx, schema.Sales, func(tx *sqlx.Tx) error {
		price, err := unitPrice(ctx, tx, code, priceCol)
		if err != nil {
			return err
		}
		total := price.Mul(decimal.NewFromInt(req.Qty))

		invoiceID := strings.TrimSpace(req.InvoiceID)
		if invoiceID == "" && invoiceType.Deferred() {
			invoiceID = s.newID()
		}

		res.Sale = domain.Sale{
			Date:        req.Date,
			ItemCode:    code,
			Qty:         req.Qty,
			Price:       price,
			Total:       total,
			InvoiceType: invoiceType,
			InvoiceID:   invoiceID,
		}
		if res.Sale.RowID, err = insertRow(ctx, tx, schema.Sales, 0, map[string]any{
			"Date":        req.Date.Time,
			"ItemCode":    code,
			"Qty":         req.Qty,
			"Price":       price,
			"Total":       total,
			"InvoiceType": string(invoiceType),
			"InvoiceID":   invoiceID,
		}); err != nil {
			return err
		}

		res.Update = domain.StockMovement{
			Date:     req.Date,
			ItemCode: code,
			Qty:      -req.Qty,
			Type:     domain.MovementSale,
		}
		if res.Update.RowID, err = insertRow(ctx, tx, schema.StockUpdate, 0, map[string]any{
			"Date":     req.Date.Time,
			"ItemCode": code,
			"Qty":      -req.Qty,
			"Type":     string(domain.MovementSale),
		}); err != nil {
			return err
		}

		if err := adjustStock(ctx, tx, code, -req.Qty); err != nil {
			return err
		}

		if req.ChequeDate.Valid() {
			cheque := domain.Cheque{
				Date:       req.Date,
				FutureDate: req.ChequeDate,
				ItemCode:   code,
				Qty:        req.Qty,
				Amount:     total,
			}
			if cheque.RowID, err = insertRow(ctx, tx, schema.Cheques, 0, map[string]any{
				"Date":       req.Date.Time,
				"FutureDate": req.ChequeDate.Time,
				"ItemCode":   code,
				"Qty":        req.Qty,
				"Amount":     total,
				"Claimed":    false,
			}); err != nil {
				return err
			}
			res.Cheque = &cheque
		}

		if invoiceType.Deferred() {
			due := req.DueDate
			if !due.Valid() {
				due = req.Date.AddDays(s.billTerm)
			}
			bill := domain.Bill{
				Date:      req.Date,
				InvoiceID: invoiceID,
				Amount:    total,
				DueDate:   due,
			}
			if bill.RowID, err = insertRow(ctx, tx, schema.BillToBill, 0, map[string]any{
				"Date":      req.Date.Time,
				"InvoiceID": invoiceID,
				"Amount":    total,
				"DueDate":   due.Time,
				"Paid":      false,
			}); err != nil {
				return err
			}
			res.Bill = &bill
		}
		return nil
	})
	if err != nil {
		return SaleResult{}, err
	}
	s.log.Info("sale recorded", "item_code", code, "qty", req.Qty, "total", res.Sale.Total.String(),
		"invoice_type", string(invoiceType))
	return res, nil
}

// Restock appends a Restock movement carrying the cost basis and increments stock.
func (s *Store) Restock(ctx context.Context, req RestockRequest) (domain.StockMovement, error) {
	code := NormalizeCode(req.ItemCode)
	switch {
	case code == "":
		return domain.StockMovement{}, validation("item code is required")
	case req.Qty <= 0:
		return domain.StockMovement{}, validation("quantity must be positive, got %d", req.Qty)
	case req.BoughtPrice.IsNegative():
		return domain.StockMovement{}, validation("bought price must not be negative")
	case !req.Date.Valid():
		return domain.StockMovement{}, validation("restock date is required")
	}

	mv := domain.StockMovement{
		Date:        req.Date,
		ItemCode:    code,
		Qty:         req.Qty,
		Type:        domain.MovementRestock,
		BoughtPrice: decimal.NewNullDecimal(req.BoughtPrice),
	}
	err := s.withTx(ctx, schema.StockUpdate, func(tx *sqlx.Tx) error {
		if err := adjustStock(ctx, tx, code, req.Qty); err != nil {
			return err
		}
		id, err := insertRow(ctx, tx, schema.StockUpdate, 0, map[string]any{
			"Date":        req.Date.Time,
			"ItemCode":    code,
			"Qty":         req.Qty,
			"Type":        string(domain.MovementRestock),
			"BoughtPrice": req.BoughtPrice,
		})
		mv.RowID = id
		return err
	})
	if err != nil {
		return domain.StockMovement{}, err
	}
	s.log.Info("stock restocked", "item_code", code, "qty", req.Qty)
	return mv, nil
}

// AddExpense appends a monthly expense. Month is YYYY-MM.
func (s *Store) AddExpense(ctx context.Context, exp domain.Expense) (domain.Expense, error) {
	exp.Month = strings.TrimSpace(exp.Month)
	exp.Type = strings.TrimSpace(exp.Type)
	if _, err := time.Parse("2006-01", exp.Month); err != nil {
		return domain.Expense{}, validation("month must be YYYY-MM, got %q", exp.Month)
	}
	if exp.Type == "" {
		return domain.Expense{}, validation("expense type is required")
	}
	if exp.Amount.IsNegative() {
		return domain.Expense{}, validation("amount must not be negative")
	}
	err := s.withTx(ctx, schema.Expenses, func(tx *sqlx.Tx) error {
		id, err := insertRow(ctx, tx, schema.Expenses, 0, map[string]any{
			"Month":  exp.Month,
			"Type":   exp.Type,
			"Amount": exp.Amount,
		})
		exp.RowID = id
		return err
	})
	if err != nil {
		return domain.Expense{}, err
	}
	return exp, nil
}

// RecordOwingPurchase appends a supplier payable. An empty InvoiceID is generated,
// a missing DueDate defaults to Date + bill term.
func (s *Store) RecordOwingPurchase(ctx context.Context, bill domain.Bill) (domain.Bill, error) {
	if !bill.Date.Valid() {
		return domain.Bill{}, validation("purchase date is required")
	}
	if bill.Amount.IsNegative() {
		return domain.Bill{}, validation("amount must not be negative")
	}
	bill.InvoiceID = strings.TrimSpace(bill.InvoiceID)
	if bill.InvoiceID == "" {
		bill.InvoiceID = s.newID()
	}
	if !bill.DueDate.Valid() {
		bill.DueDate = bill.Date.AddDays(s.billTerm)
	}
	bill.Paid = false

	err := s.withTx(ctx, schema.OwingPurchases, func(tx *sqlx.Tx) error {
		id, err := insertRow(ctx, tx, schema.OwingPurchases, 0, map[string]any{
			"Date":      bill.Date.Time,
			"InvoiceID": bill.InvoiceID,
			"Amount":    bill.Amount,
			"DueDate":   bill.DueDate.Time,
			"Paid":      false,
		})
		bill.RowID = id
		return err
	})
	if err != nil {
		return domain.Bill{}, err
	}
	return bill, nil
}

// MarkClaimed flags a cheque as claimed. Claiming twice is a no-op.
func (s *Store) MarkClaimed(ctx context.Context, rowID int64) error {
	return s.markDone(ctx, schema.Cheques, rowID)
}

// MarkPaid flags a BillToBill or OwingPurchases row as paid. Paying twice is a no-op.
func (s *Store) MarkPaid(ctx context.Context, tableName string, rowID int64) error {
	if tableName != schema.BillToBill && tableName != schema.OwingPurchases {
		return validation("%q has no Paid flag", tableName)
	}
	return s.markDone(ctx, tableName, rowID)
}

func (s *Store) markDone(ctx context.Context, tableName string, rowID int64) error {
	if rowID <= 0 {
		return validation("row id must be positive, got %d", rowID)
	}
	col := schema.DoneColumns[tableName]
	err := s.withTx(ctx, tableName, func(tx *sqlx.Tx) error {
		query := fmt.Sprintf("UPDATE %s SET %s = 1 WHERE %s = ?",
			migrations.Quote(tableName), migrations.Quote(col), migrations.RowIDColumn)
		res, err := tx.ExecContext(ctx, query, rowID)
		if err != nil {
			return writeError(tableName, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return unknownItem(tableName, fmt.Sprintf("row %d", rowID))
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("flag set", "table", tableName, "column", col, "row", rowID)
	return nil
}

// unitPrice reads the chosen price of an item. Absent items are UnknownItem.
func unitPrice(ctx context.Context, tx *sqlx.Tx, code string, col domain.PriceColumn) (decimal.Decimal, error) {
	var raw sql.NullString
	query := fmt.Sprintf(`SELECT %s FROM "Stock" WHERE "ItemCode" = ? ORDER BY row_id LIMIT 1`, migrations.Quote(string(col)))
	err := tx.GetContext(ctx, &raw, query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, unknownItem(schema.Stock, code)
	}
	if err != nil {
		return decimal.Zero, readError(schema.Stock, err)
	}
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return decimal.Zero, validation("item %q has no %s", code, col)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(raw.String))
	if err != nil {
		return decimal.Zero, &Error{Code: CodeRead, Table: schema.Stock, Key: code, Message: fmt.Sprintf("malformed %s", col), Err: err}
	}
	return price, nil
}

// adjustStock adds delta to an item's stock; there is no floor.
func adjustStock(ctx context.Context, tx *sqlx.Tx, code string, delta int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE "Stock" SET "Stock" = COALESCE("Stock", 0) + ? WHERE "ItemCode" = ?`, delta, code)
	if err != nil {
		return writeError(schema.Stock, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return unknownItem(schema.Stock, code)
	}
	return nil
}

// ImportItems adds every item whose code is not in Stock yet, in one transaction.
// Existing codes and repeats within items are skipped, not errors.
func (s *Store) ImportItems(ctx context.Context, items []NewItem) (added, skipped int, err error) {
	err = s.withTx(ctx, schema.Stock, func(tx *sqlx.Tx) error {
		var codes []string
		if err := tx.SelectContext(ctx, &codes, `SELECT COALESCE("ItemCode", '') FROM "Stock"`); err != nil {
			return readError(schema.Stock, err)
		}
		seen := make(map[string]bool, len(codes)+len(items))
		for _, c := range codes {
			seen[NormalizeCode(c)] = true
		}
		for _, in := range items {
			code := NormalizeCode(in.ItemCode)
			if code == "" || seen[code] {
				skipped++
				continue
			}
			if in.Stock < 0 || in.Price1.IsNegative() || in.Price2.IsNegative() || in.Price3.IsNegative() {
				return &Error{Code: CodeValidation, Table: schema.Stock, Key: code, Message: "negative stock or price"}
			}
			if _, err := insertRow(ctx, tx, schema.Stock, 0, map[string]any{
				"ItemCode": code,
				"Item":     strings.TrimSpace(in.Item),
				"Stock":    in.Stock,
				"Price1":   in.Price1,
				"Price2":   in.Price2,
				"Price3":   in.Price3,
			}); err != nil {
				return err
			}
			seen[code] = true
			added++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return added, skipped, nil
}
