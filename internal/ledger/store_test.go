package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbook/m/domain"
	"stockbook/m/internal/database"
	"stockbook/m/internal/schema"
	"stockbook/m/internal/table"
)

func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	db, err := database.Connect(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := New(db, logger, opts...)
	t.Cleanup(func() { s.Close() })

	_, err = s.InitializeStore(context.Background())
	require.NoError(t, err)
	return s
}

func fixedIDs() InvoiceIDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("INV-%03d", n)
	}
}

func day(s string) domain.Date {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func addWidget(t *testing.T, s *Store, code string, stock int64) {
	t.Helper()
	_, err := s.AddItem(context.Background(), NewItem{
		ItemCode: code,
		Item:     "Widget " + code,
		Stock:    stock,
		Price1:   decimal.RequireFromString("2.50"),
		Price2:   decimal.RequireFromString("2.25"),
		Price3:   decimal.RequireFromString("2.00"),
	})
	require.NoError(t, err)
}

func stockOf(t *testing.T, s *Store, code string) int64 {
	t.Helper()
	items, err := s.LoadStock(context.Background())
	require.NoError(t, err)
	for _, it := range items {
		if it.ItemCode == code {
			return it.Stock
		}
	}
	t.Fatalf("item %s not in stock", code)
	return 0
}

func TestInitializeStore_Idempotent(t *testing.T) {
	s := createTestStore(t)
	addWidget(t, s, "A1", 3)

	res, err := s.InitializeStore(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Equal(t, int64(3), stockOf(t, s, "A1"))

	rep, err := s.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.OK())
}

func TestAddItem(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	item, err := s.AddItem(ctx, NewItem{ItemCode: "  B7 ", Item: "Bolt", Stock: 4, Price1: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, "B7", item.ItemCode)
	assert.NotZero(t, item.RowID)

	_, err = s.AddItem(ctx, NewItem{ItemCode: "B7", Item: "Other bolt"})
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))

	_, err = s.AddItem(ctx, NewItem{ItemCode: "", Item: "Nameless"})
	assert.True(t, IsValidation(err))

	_, err = s.AddItem(ctx, NewItem{ItemCode: "C1", Item: "Cheap", Price2: decimal.NewFromInt(-1)})
	assert.True(t, IsValidation(err))
}

func TestDeleteItem(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	addWidget(t, s, "A1", 1)

	require.NoError(t, s.DeleteItem(ctx, "A1"))
	items, err := s.LoadStock(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.True(t, IsUnknownItem(s.DeleteItem(ctx, "A1")))
}

func TestRecordSale_Cash(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	addWidget(t, s, "A1", 10)

	res, err := s.RecordSale(ctx, SaleRequest{
		Date:        day("2024-03-01"),
		ItemCode:    "A1",
		Qty:         4,
		PriceColumn: domain.Price2,
	})
	require.NoError(t, err)
	assert.Equal(t, "2.25", res.Sale.Price.String())
	assert.Equal(t, "9", res.Sale.Total.String())
	assert.Equal(t, domain.InvoiceCash, res.Sale.InvoiceType)
	assert.Empty(t, res.Sale.InvoiceID)
	assert.Nil(t, res.Cheque)
	assert.Nil(t, res.Bill)

	assert.Equal(t, int64(6), stockOf(t, s, "A1"))

	moves, err := s.LoadMovements(ctx)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, int64(-4), moves[0].Qty)
	assert.Equal(t, domain.MovementSale, moves[0].Type)
	assert.False(t, moves[0].BoughtPrice.Valid)

	sales, err := s.LoadSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "2024-03-01", sales[0].Date.String())
}

func TestRecordSale_StockMayGoNegative(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	addWidget(t, s, "A1", 1)

	_, err := s.RecordSale(ctx, SaleRequest{Date: day("2024-03-01"), ItemCode: "A1", Qty: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(-2), stockOf(t, s, "A1"))
}

func TestRecordSale_UnknownItemLeavesTablesUnchanged(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	addWidget(t, s, "A1", 5)

	_, err := s.RecordSale(ctx, SaleRequest{
		Date:        day("2024-03-01"),
		ItemCode:    "ZZ",
		Qty:         1,
		InvoiceType: domain.InvoiceCredit,
		ChequeDate:  day("2024-03-10"),
	})
	require.Error(t, err)
	assert.True(t, IsUnknownItem(err))

	for _, name := range []string{schema.Sales, schema.StockUpdate, schema.Cheques, schema.BillToBill} {
		tb, err := s.LoadTable(ctx, name)
		require.NoError(t, err)
		assert.Empty(t, tb.Rows, name)
	}
	assert.Equal(t, int64(5), stockOf(t, s, "A1"))
}

func TestRecordSale_Validation(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	addWidget(t, s, "A1", 5)

	cases := map[string]SaleRequest{
		"zero qty":      {Date: day("2024-03-01"), ItemCode: "A1", Qty: 0},
		"no date":       {ItemCode: "A1", Qty: 1},
		"no code":       {Date: day("2024-03-01"), Qty: 1},
		"bad price col": {Date: day("2024-03-01"), ItemCode: "A1", Qty: 1, PriceColumn: "Price9"},
		"bad invoice":   {Date: day("2024-03-01"), ItemCode: "A1", Qty: 1, InvoiceType: "Barter"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.RecordSale(ctx, req)
			assert.True(t, IsValidation(err), "%v", err)
		})
	}
	assert.Equal(t, int64(5), stockOf(t, s, "A1"))
}

func TestRecordSale_ChequeAndBill(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithInvoiceIDs(fixedIDs()))
	addWidget(t, s, "A1", 10)

	res, err := s.RecordSale(ctx, SaleRequest{
		Date:        day("2024-03-01"),
		ItemCode:    "A1",
		Qty:         2,
		InvoiceType: domain.InvoiceBillToBill,
		ChequeDate:  day("2024-03-20"),
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-001", res.Sale.InvoiceID)

	require.NotNil(t, res.Cheque)
	assert.Equal(t, "2024-03-20", res.Cheque.FutureDate.String())
	assert.Equal(t, "5", res.Cheque.Amount.String())

	require.NotNil(t, res.Bill)
	assert.Equal(t, "INV-001", res.Bill.InvoiceID)
	assert.Equal(t, "2024-03-15", res.Bill.DueDate.String())

	bills, err := s.LoadBills(ctx, schema.BillToBill)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.False(t, bills[0].Paid)
	assert.Equal(t, "5", bills[0].Amount.String())

	cheques, err := s.LoadCheques(ctx)
	require.NoError(t, err)
	require.Len(t, cheques, 1)
	assert.False(t, cheques[0].Claimed)
}

func TestRecordSale_ExplicitInvoiceAndDue(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, WithBillTerm(30))
	addWidget(t, s, "A1", 10)

	res, err := s.RecordSale(ctx, SaleRequest{
		Date:        day("2024-03-01"),
		ItemCode:    "A1",
		Qty:         1,
		InvoiceType: domain.InvoiceCredit,
		InvoiceID:   "CUST-9",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Bill)
	assert.Equal(t, "CUST-9", res.Bill.InvoiceID)
	assert.Equal(t, "2024-03-31", res.Bill.DueDate.String())
}

func TestRestockThenSale(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	addWidget(t, s, "A1", 0)

	mv, err := s.Restock(ctx, RestockRequest{
		Date:        day("2024-02-01"),
		ItemCode:    "A1",
		Qty:         12,
		BoughtPrice: decimal.RequireFromString("1.10"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MovementRestock, mv.Type)
	assert.Equal(t, int64(12), stockOf(t, s, "A1"))

	_, err = s.RecordSale(ctx, SaleRequest{Date: day("2024-02-02"), ItemCode: "A1", Qty: 12})
	require.NoError(t, err)
	assert.Equal(t, int64(0), stockOf(t, s, "A1"))

	moves, err := s.LoadMovements(ctx)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	require.True(t, moves[0].BoughtPrice.Valid)
	assert.Equal(t, "1.1", moves[0].BoughtPrice.Decimal.String())

	_, err = s.Restock(ctx, RestockRequest{Date: day("2024-02-01"), ItemCode: "nope", Qty: 1})
	assert.True(t, IsUnknownItem(err))
	moves, err = s.LoadMovements(ctx)
	require.NoError(t, err)
	assert.Len(t, moves, 2)
}

func TestMarkClaimed_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	addWidget(t, s, "A1", 5)

	res, err := s.RecordSale(ctx, SaleRequest{Date: day("2024-03-01"), ItemCode: "A1", Qty: 1, ChequeDate: day("2024-03-05")})
	require.NoError(t, err)
	id := res.Cheque.RowID

	require.NoError(t, s.MarkClaimed(ctx, id))
	require.NoError(t, s.MarkClaimed(ctx, id))

	cheques, err := s.LoadCheques(ctx)
	require.NoError(t, err)
	require.Len(t, cheques, 1)
	assert.True(t, cheques[0].Claimed)

	assert.True(t, IsUnknownItem(s.MarkClaimed(ctx, id+100)))
	assert.True(t, IsValidation(s.MarkClaimed(ctx, 0)))
}

func TestMarkPaid(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	bill, err := s.RecordOwingPurchase(ctx, domain.Bill{Date: day("2024-04-01"), InvoiceID: "SUP-1", Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)
	assert.Equal(t, "2024-04-15", bill.DueDate.String())

	require.NoError(t, s.MarkPaid(ctx, schema.OwingPurchases, bill.RowID))
	bills, err := s.LoadBills(ctx, schema.OwingPurchases)
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.True(t, bills[0].Paid)

	assert.True(t, IsValidation(s.MarkPaid(ctx, schema.Cheques, bill.RowID)))
	assert.True(t, IsUnknownItem(s.MarkPaid(ctx, schema.BillToBill, bill.RowID)))
}

func TestAddExpense(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	exp, err := s.AddExpense(ctx, domain.Expense{Month: "2024-05", Type: domain.ExpenseSalary, Amount: decimal.NewFromInt(1200)})
	require.NoError(t, err)
	assert.NotZero(t, exp.RowID)

	_, err = s.AddExpense(ctx, domain.Expense{Month: "May", Type: domain.ExpenseOil})
	assert.True(t, IsValidation(err))
	_, err = s.AddExpense(ctx, domain.Expense{Month: "2024-05", Type: ""})
	assert.True(t, IsValidation(err))

	all, err := s.LoadExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "2024-05", all[0].Month)
}

func TestLoadTable_Errors(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.LoadTable(ctx, "Invoices")
	assert.Equal(t, CodeRead, CodeOf(err))

	_, err = s.db.Exec(`DROP TABLE "Expenses"`)
	require.NoError(t, err)
	_, err = s.LoadTable(ctx, schema.Expenses)
	assert.Equal(t, CodeRead, CodeOf(err))
}

func TestLoadTable_UnreadableCellDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO "Sales" ("Date", "ItemCode", "Qty") VALUES ('2024-01-01', 'A1', 'lots')`)
	require.NoError(t, err)

	tb, err := s.LoadTable(ctx, schema.Sales)
	require.NoError(t, err)
	assert.Empty(t, tb.Rows)
	want, _ := schema.Columns(schema.Sales)
	assert.Len(t, tb.Columns, len(want))
}

func TestLoadTable_KeepsUnparseableDate(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO "Sales" ("Date", "ItemCode", "Qty") VALUES ('last tuesday', 'A1', 1)`)
	require.NoError(t, err)

	tb, err := s.LoadTable(ctx, schema.Sales)
	require.NoError(t, err)
	require.Len(t, tb.Rows, 1)
	assert.Equal(t, "last tuesday", tb.Rows[0].Get("Date"))

	sales := Sales(tb)
	assert.False(t, sales[0].Date.Valid())
}

func TestSaveTable_ReplacesOnlyThatTable(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	addWidget(t, s, "A1", 5)
	_, err := s.AddExpense(ctx, domain.Expense{Month: "2024-05", Type: "Oil", Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)

	tb, err := s.LoadTable(ctx, schema.Stock)
	require.NoError(t, err)
	tb.Append(map[string]any{"ItemCode": "B2", "Item": "Bracket", "Stock": int64(7)})
	require.NoError(t, s.SaveTable(ctx, tb))

	items, err := s.LoadStock(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A1", items[0].ItemCode)
	assert.Equal(t, "B2", items[1].ItemCode)

	expenses, err := s.LoadExpenses(ctx)
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
}

func TestSaveTable_Rejects(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	addWidget(t, s, "A1", 5)

	tb, err := s.LoadTable(ctx, schema.Stock)
	require.NoError(t, err)
	dup := tb.Clone()
	dup.Append(map[string]any{"ItemCode": "A1", "Item": "Again"})
	assert.True(t, IsDuplicateKey(s.SaveTable(ctx, dup)))

	extra := table.EnsureSchema(tb, []table.Column{{Name: "Supplier", Kind: table.KindText}})
	assert.True(t, IsValidation(s.SaveTable(ctx, extra)))

	unknown := table.New("Invoices", nil)
	assert.True(t, IsValidation(s.SaveTable(ctx, unknown)))

	// nothing above was applied
	items, err := s.LoadStock(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestSaveTable_NormalizesItemCodes(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	decomposed := "Cafe\u0301"

	tb, err := s.LoadTable(ctx, schema.Stock)
	require.NoError(t, err)
	tb.Append(map[string]any{"ItemCode": decomposed, "Item": "Coffee", "Stock": int64(5), "Price1": decimal.NewFromInt(3)})
	require.NoError(t, s.SaveTable(ctx, tb))
	assert.Equal(t, int64(5), stockOf(t, s, "Caf\u00e9"))

	_, err = s.RecordSale(ctx, SaleRequest{Date: day("2024-06-01"), ItemCode: decomposed, Qty: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stockOf(t, s, "Caf\u00e9"))

	_, err = s.AddItem(ctx, NewItem{ItemCode: decomposed, Item: "Coffee again"})
	assert.True(t, IsDuplicateKey(err))

	sales, err := s.LoadTable(ctx, schema.Sales)
	require.NoError(t, err)
	sales.Append(map[string]any{"ItemCode": " " + decomposed, "Qty": int64(1), "Price": decimal.NewFromInt(3), "Total": decimal.NewFromInt(3)})
	require.NoError(t, s.SaveTable(ctx, sales))
	stored, err := s.LoadSales(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "Caf\u00e9", stored[1].ItemCode)

	again, err := s.LoadTable(ctx, schema.Stock)
	require.NoError(t, err)
	require.Len(t, again.Rows, 1)
	require.NoError(t, s.SaveTable(ctx, again))
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	addWidget(t, s, "A1", 5)
	_, err := s.RecordSale(ctx, SaleRequest{Date: day("2024-06-01"), ItemCode: "A1", Qty: 2})
	require.NoError(t, err)

	tables, err := s.Snapshot(ctx, schema.Sales, schema.StockUpdate)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Len(t, tables[schema.Sales].Rows, 1)
	assert.Len(t, tables[schema.StockUpdate].Rows, 1)

	all, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(schema.Names()))

	_, err = s.Snapshot(ctx, schema.Sales, "Invoices")
	assert.Equal(t, CodeRead, CodeOf(err))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "caf\u00e9", NormalizeCode(" cafe\u0301 "))
	assert.Equal(t, "X1", NormalizeCode("\tX1\n"))
}

func TestErrorIs(t *testing.T) {
	err := unknownItem(schema.Stock, "A1")
	assert.ErrorIs(t, err, ErrUnknownItem)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "UNKNOWN_ITEM")
	assert.Equal(t, CodeUnknownItem, CodeOf(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, ErrorCode(""), CodeOf(io.EOF))
}
