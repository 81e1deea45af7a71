package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceColumn names one of the three alternative sale prices of an item.
type PriceColumn string

const (
	Price1 PriceColumn = "Price1"
	Price2 PriceColumn = "Price2"
	Price3 PriceColumn = "Price3"
)

// ParsePriceColumn validates a price column name.
func ParsePriceColumn(s string) (PriceColumn, error) {
	switch PriceColumn(s) {
	case Price1, Price2, Price3:
		return PriceColumn(s), nil
	}
	return "", fmt.Errorf("price column must be Price1, Price2 or Price3, got %q", s)
}

type StockItem struct {
	RowID    int64           `json:"row_id"`
	ItemCode string          `json:"item_code"`
	Item     string          `json:"item"`
	Stock    int64           `json:"stock"`
	Price1   decimal.Decimal `json:"price1"`
	Price2   decimal.Decimal `json:"price2"`
	Price3   decimal.Decimal `json:"price3"`
}

// Price returns the unit price stored under col.
func (s StockItem) Price(col PriceColumn) decimal.Decimal {
	switch col {
	case Price2:
		return s.Price2
	case Price3:
		return s.Price3
	default:
		return s.Price1
	}
}

// MovementType classifies a StockUpdate entry.
type MovementType string

const (
	MovementAdd     MovementType = "Add"
	MovementRestock MovementType = "Restock"
	MovementSale    MovementType = "Sale"
)

// StockMovement is one StockUpdate row. Qty is signed: positive for restocks,
// negative for sale-driven decrements. BoughtPrice is only set on restocks.
type StockMovement struct {
	RowID       int64               `json:"row_id"`
	Date        Date                `json:"date"`
	ItemCode    string              `json:"item_code"`
	Qty         int64               `json:"qty"`
	Type        MovementType        `json:"type"`
	BoughtPrice decimal.NullDecimal `json:"bought_price"`
}
