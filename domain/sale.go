package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InvoiceType is how a sale is billed.
type InvoiceType string

const (
	InvoiceCash       InvoiceType = "Cash"
	InvoiceNormal     InvoiceType = "Normal"
	InvoiceCredit     InvoiceType = "Credit"
	InvoiceBillToBill InvoiceType = "Bill-to-Bill"
)

// ParseInvoiceType validates an invoice type; empty means Cash.
func ParseInvoiceType(s string) (InvoiceType, error) {
	switch InvoiceType(s) {
	case "":
		return InvoiceCash, nil
	case InvoiceCash, InvoiceNormal, InvoiceCredit, InvoiceBillToBill:
		return InvoiceType(s), nil
	}
	return "", fmt.Errorf("invoice type must be Cash, Normal, Credit or Bill-to-Bill, got %q", s)
}

// Deferred reports whether the customer pays later, which opens a BillToBill receivable.
func (t InvoiceType) Deferred() bool {
	return t == InvoiceCredit || t == InvoiceBillToBill
}

type Sale struct {
	RowID       int64           `json:"row_id"`
	Date        Date            `json:"date"`
	ItemCode    string          `json:"item_code"`
	Qty         int64           `json:"qty"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
	InvoiceType InvoiceType     `json:"invoice_type"`
	InvoiceID   string          `json:"invoice_id,omitempty"`

	// Missing names the numeric columns (Qty, Price, Total) that were empty in
	// the stored row; their fields then hold zero.
	Missing []string `json:"-"`
}
