package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInvoiceType(t *testing.T) {
	tests := []struct {
		in       string
		want     InvoiceType
		deferred bool
		wantErr  bool
	}{
		{in: "", want: InvoiceCash},
		{in: "Cash", want: InvoiceCash},
		{in: "Normal", want: InvoiceNormal},
		{in: "Credit", want: InvoiceCredit, deferred: true},
		{in: "Bill-to-Bill", want: InvoiceBillToBill, deferred: true},
		{in: "barter", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInvoiceType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.deferred, got.Deferred())
		})
	}
}

func TestParsePriceColumn(t *testing.T) {
	col, err := ParsePriceColumn("Price2")
	require.NoError(t, err)
	assert.Equal(t, Price2, col)

	_, err = ParsePriceColumn("Price4")
	assert.Error(t, err)

	item := StockItem{Price1: decimal.NewFromInt(100), Price2: decimal.NewFromInt(90), Price3: decimal.NewFromInt(80)}
	assert.True(t, item.Price(Price3).Equal(decimal.NewFromInt(80)))
}

func TestDate(t *testing.T) {
	d := NewDate(time.Date(2024, 5, 1, 17, 30, 0, 0, time.UTC))
	assert.Equal(t, "2024-05-01", d.String())
	assert.Equal(t, "2024-05-15", d.AddDays(14).String())
	assert.Equal(t, 14, d.DaysUntil(d.AddDays(14)))
	assert.Equal(t, -2, d.DaysUntil(d.AddDays(-2)))
	assert.False(t, Date{}.Valid())

	_, err := ParseDate("01/05/2024")
	assert.Error(t, err)
}

func TestDate_JSON(t *testing.T) {
	var payload struct {
		Due  Date `json:"due"`
		Open Date `json:"open"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"due":"2024-06-01","open":null}`), &payload))
	assert.Equal(t, "2024-06-01", payload.Due.String())
	assert.False(t, payload.Open.Valid())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"due":"2024-06-01","open":null}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"due":"June"}`), &payload))
}
