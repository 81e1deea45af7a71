package report

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"stockbook/m/domain"
)

// Profit is the outcome of ProfitEstimate. When Fallback is set, Amount is
// total sales minus total expenses and Reason says which sale could not be costed.
type Profit struct {
	Amount   decimal.Decimal `json:"amount"`
	Fallback bool            `json:"fallback"`
	Reason   string          `json:"reason,omitempty"`
}

// CostBasis returns the mean BoughtPrice per item over the movements that carry one.
func CostBasis(movements []domain.StockMovement) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int64)
	for _, m := range movements {
		if !m.BoughtPrice.Valid {
			continue
		}
		sums[m.ItemCode] = sums[m.ItemCode].Add(m.BoughtPrice.Decimal)
		counts[m.ItemCode]++
	}
	out := make(map[string]decimal.Decimal, len(sums))
	for code, sum := range sums {
		out[code] = sum.Div(decimal.NewFromInt(counts[code]))
	}
	return out
}

// ProfitEstimate sums Qty * (Price - cost basis) over all sales; items never
// restocked with a price have a cost basis of zero. If any sale is malformed the
// estimate falls back to total sales minus total expenses, and says so.
func ProfitEstimate(sales []domain.Sale, movements []domain.StockMovement, expenses []domain.Expense, logger *slog.Logger) Profit {
	if logger == nil {
		logger = slog.Default()
	}
	cost := CostBasis(movements)

	profit := decimal.Zero
	for _, s := range sales {
		if reason := malformed(s); reason != "" {
			p := fallbackProfit(sales, expenses)
			p.Reason = fmt.Sprintf("sale row %d: %s", s.RowID, reason)
			logger.Warn("profit estimate fell back to sales minus expenses",
				"row", s.RowID, "item_code", s.ItemCode, "reason", reason)
			return p
		}
		margin := s.Price.Sub(cost[s.ItemCode])
		profit = profit.Add(margin.Mul(decimal.NewFromInt(s.Qty)))
	}
	return Profit{Amount: profit}
}

func malformed(s domain.Sale) string {
	switch {
	case len(s.Missing) > 0:
		return "missing " + strings.Join(s.Missing, ", ")
	case s.Qty <= 0:
		return fmt.Sprintf("quantity %d", s.Qty)
	case s.Price.IsNegative():
		return "negative price"
	case !s.Total.Equal(s.Price.Mul(decimal.NewFromInt(s.Qty))):
		return fmt.Sprintf("total %s is not %d x %s", s.Total, s.Qty, s.Price)
	}
	return ""
}

func fallbackProfit(sales []domain.Sale, expenses []domain.Expense) Profit {
	amount := decimal.Zero
	for _, s := range sales {
		amount = amount.Add(s.Total)
	}
	for _, e := range expenses {
		amount = amount.Sub(e.Amount)
	}
	return Profit{Amount: amount, Fallback: true}
}
