package api

import (
	"net/http"
	"strconv"

	"stockbook/m/domain"
	"stockbook/m/internal/report"
	"stockbook/m/internal/schema"
)

// Report handlers read a fresh snapshot per request; nothing is cached.

func queryInt(r *http.Request, key string, def int64) (int64, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// doneTable resolves the ?table= parameter of the due and outstanding reports.
func doneTable(r *http.Request) (string, bool) {
	name := r.URL.Query().Get("table")
	if name == "" {
		name = schema.Cheques
	}
	_, ok := schema.DoneColumns[name]
	return name, ok
}

func (h *Handler) lowStockReport(w http.ResponseWriter, r *http.Request) {
	threshold, ok := queryInt(r, "threshold", h.lowStock)
	if !ok {
		respondError(w, http.StatusBadRequest, "threshold must be an integer")
		return
	}
	items, err := h.store.LoadStock(r.Context())
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	if threshold <= 0 {
		threshold = report.DefaultLowStockThreshold
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"threshold": threshold,
		"items":     report.LowStock(items, threshold),
	})
}

func (h *Handler) dueReport(w http.ResponseWriter, r *http.Request) {
	name, ok := doneTable(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "table must be Cheques, BillToBill or OwingPurchases")
		return
	}
	horizon, ok := queryInt(r, "horizon", int64(h.horizon))
	if !ok || horizon < 0 {
		respondError(w, http.StatusBadRequest, "horizon must be a non-negative integer")
		return
	}
	t, err := h.store.LoadTable(r.Context(), name)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	due := report.DueFor(t, h.now(), int(horizon))
	respondJSON(w, http.StatusOK, map[string]any{
		"table":    name,
		"horizon":  horizon,
		"due_soon": due.Soon,
		"rows":     viewRows(due.Rows),
	})
}

func (h *Handler) outstandingReport(w http.ResponseWriter, r *http.Request) {
	name, ok := doneTable(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "table must be Cheques, BillToBill or OwingPurchases")
		return
	}
	t, err := h.store.LoadTable(r.Context(), name)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	rows := report.Outstanding(t, schema.DoneColumns[name])
	respondJSON(w, http.StatusOK, map[string]any{"table": name, "rows": viewRows(rows)})
}

func (h *Handler) topSellingReport(w http.ResponseWriter, r *http.Request) {
	n, ok := queryInt(r, "n", 10)
	if !ok {
		respondError(w, http.StatusBadRequest, "n must be an integer")
		return
	}
	by, err := report.ParsePeriod(r.URL.Query().Get("by"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := report.LoadSnapshot(r.Context(), h.store, schema.Sales, schema.Stock)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"by":    by,
		"items": report.TopSellingItems(snap.Sales, snap.Stock, int(n), by),
	})
}

func (h *Handler) profitReport(w http.ResponseWriter, r *http.Request) {
	snap, err := report.LoadSnapshot(r.Context(), h.store, schema.Sales, schema.StockUpdate, schema.Expenses)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report.ProfitEstimate(snap.Sales, snap.Movements, snap.Expenses, h.log))
}

func (h *Handler) valuationReport(w http.ResponseWriter, r *http.Request) {
	col := domain.Price1
	if v := r.URL.Query().Get("price"); v != "" {
		parsed, err := domain.ParsePriceColumn(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		col = parsed
	}
	items, err := h.store.LoadStock(r.Context())
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"price_column": col,
		"valuation":    report.StockValuation(items, col),
	})
}

func (h *Handler) billsReport(w http.ResponseWriter, r *http.Request) {
	today := h.now()
	out := make(map[string][]report.BillLine, 2)
	for _, name := range []string{schema.BillToBill, schema.OwingPurchases} {
		bills, err := h.store.LoadBills(r.Context(), name)
		if err != nil {
			h.respondLedgerError(w, err)
			return
		}
		out[name] = report.BillStatuses(bills, today)
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) dashboardReport(w http.ResponseWriter, r *http.Request) {
	snap, err := report.LoadSnapshot(r.Context(), h.store)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	view := report.Dashboard(snap, report.DashboardOptions{
		Today:             h.now(),
		LowStockThreshold: h.lowStock,
		HorizonDays:       h.horizon,
	}, h.log)
	respondJSON(w, http.StatusOK, view)
}
