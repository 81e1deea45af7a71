package report

import (
	"fmt"
	"sort"

	"stockbook/m/domain"
)

// Period selects how sales are bucketed.
type Period string

const (
	ByMonth Period = "month"
	ByYear  Period = "year"
)

// ParsePeriod accepts "month" and "year"; empty means month.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", ByMonth:
		return ByMonth, nil
	case ByYear:
		return ByYear, nil
	}
	return "", fmt.Errorf("period must be month or year, got %q", s)
}

func (p Period) key(d domain.Date) string {
	if p == ByYear {
		return d.Format("2006")
	}
	return d.Format("2006-01")
}

// TopItem is one (period, item) group. Item is nil when the code is not in stock.
type TopItem struct {
	Period   string  `json:"period"`
	ItemCode string  `json:"item_code"`
	Item     *string `json:"item"`
	Qty      int64   `json:"qty"`
}

// TopSellingItems groups sales by period and item, sums their quantities and
// orders the groups by quantity descending, then item code and period ascending.
// Sales without a readable date are skipped. n <= 0 returns every group.
func TopSellingItems(sales []domain.Sale, stock []domain.StockItem, n int, by Period) []TopItem {
	if by != ByYear {
		by = ByMonth
	}

	names := make(map[string]string, len(stock))
	for _, it := range stock {
		if _, ok := names[it.ItemCode]; !ok {
			names[it.ItemCode] = it.Item
		}
	}

	type groupKey struct{ period, code string }
	sums := make(map[groupKey]int64)
	var keys []groupKey
	for _, s := range sales {
		if !s.Date.Valid() {
			continue
		}
		k := groupKey{by.key(s.Date), s.ItemCode}
		if _, ok := sums[k]; !ok {
			keys = append(keys, k)
		}
		sums[k] += s.Qty
	}

	out := make([]TopItem, 0, len(keys))
	for _, k := range keys {
		item := TopItem{Period: k.period, ItemCode: k.code, Qty: sums[k]}
		if name, ok := names[k.code]; ok {
			item.Item = &name
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Qty != b.Qty {
			return a.Qty > b.Qty
		}
		if a.ItemCode != b.ItemCode {
			return a.ItemCode < b.ItemCode
		}
		return a.Period < b.Period
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
