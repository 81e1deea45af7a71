package domain

import "github.com/shopspring/decimal"

// Cheque is a deferred customer payment maturing on FutureDate.
type Cheque struct {
	RowID      int64           `json:"row_id"`
	Date       Date            `json:"date"`
	FutureDate Date            `json:"future_date"`
	ItemCode   string          `json:"item_code"`
	Qty        int64           `json:"qty"`
	Amount     decimal.Decimal `json:"amount"`
	Claimed    bool            `json:"claimed"`
}

// Bill is a BillToBill receivable or an OwingPurchases payable; both share one shape.
type Bill struct {
	RowID     int64           `json:"row_id"`
	Date      Date            `json:"date"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	DueDate   Date            `json:"due_date"`
	Paid      bool            `json:"paid"`
}

// Expense is a monthly running cost.
type Expense struct {
	RowID  int64           `json:"row_id"`
	Month  string          `json:"month"`
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

// Common expense types; Type is free text otherwise.
const (
	ExpenseSalary      = "Salary"
	ExpenseElectricity = "Electricity"
	ExpenseOil         = "Oil"
	ExpenseRepairs     = "Repairs"
)
