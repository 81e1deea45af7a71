package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockbook/m/internal/database"
	"stockbook/m/internal/ledger"
)

var fixedNow = time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

type testServer struct {
	t      *testing.T
	router http.Handler
	store  *ledger.Store
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Connect(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := ledger.New(db, logger, ledger.WithInvoiceIDs(func() string { return "INV-T" }))
	t.Cleanup(func() { store.Close() })
	_, err = store.InitializeStore(context.Background())
	require.NoError(t, err)

	h, err := New(store, Options{
		Secret:           "test-secret",
		OperatorUser:     "admin",
		OperatorPassword: "s3cret",
		Logger:           logger,
		Now:              func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	ts := &testServer{t: t, router: h.Router(), store: store}
	rec := ts.do(http.MethodPost, "/auth/login", `{"username":"admin","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, "operator", resp.Operator.Role)
	ts.token = resp.Token
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&out), rec.Body.String())
	return out
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t)
	ts.token = ""
	rec := ts.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t)

	saved := ts.token
	ts.token = ""
	rec := ts.do(http.MethodPost, "/auth/login", `{"username":"admin","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/auth/login", `{"username":"admin","password":"s3cret","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/tables/Stock", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ts.token = "garbage"
	rec = ts.do(http.MethodGet, "/tables/Stock", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ts.token = saved
	rec = ts.do(http.MethodGet, "/tables/Stock", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_RequiresOperator(t *testing.T) {
	_, err := New(nil, Options{OperatorUser: "admin"})
	assert.Error(t, err)
}

func TestSaleFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/items", `{"item_code":"A1","item":"Anvil","stock":5,"price1":"100"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/items", `{"item_code":"A1","item":"Anvil again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_KEY", decode(t, rec)["code"])

	rec = ts.do(http.MethodPost, "/sales", `{"date":"2024-06-09","item_code":"A1","qty":3,"price_column":"Price1","invoice_type":"Cash"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decode(t, rec)["sale"].(map[string]any)
	assert.Equal(t, "300", sale["total"])
	assert.Equal(t, "100", sale["price"])

	rec = ts.do(http.MethodPost, "/sales", `{"item_code":"A1","qty":3,"invoice_type":"Credit","cheque_date":"2024-06-12"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "2024-06-10", body["sale"].(map[string]any)["date"])
	bill := body["bill"].(map[string]any)
	assert.Equal(t, "INV-T", bill["invoice_id"])
	assert.Equal(t, "2024-06-24", bill["due_date"])
	cheque := body["cheque"].(map[string]any)

	items, err := ts.store.LoadStock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), items[0].Stock)

	rec = ts.do(http.MethodPost, "/sales", `{"item_code":"ZZ","qty":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/sales", `{"item_code":"A1","qty":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/reports/due?table=Cheques", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["due_soon"])

	chequeID := int64(cheque["row_id"].(float64))
	path := "/cheques/" + jsonNumber(chequeID) + "/claim"
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, path, "").Code)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, path, "").Code)

	rec = ts.do(http.MethodGet, "/reports/due?table=Cheques", "")
	assert.Equal(t, false, decode(t, rec)["due_soon"])

	billID := int64(bill["row_id"].(float64))
	rec = ts.do(http.MethodPost, "/bills/"+jsonNumber(billID)+"/pay", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodPost, "/bills/999/pay", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(http.MethodPost, "/bills/abc/pay", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestRestockExpenseAndPayables(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/items", `{"item_code":"B2","item":"Bucket","price1":"10"}`).Code)

	rec := ts.do(http.MethodPost, "/restocks", `{"date":"2024-06-01","item_code":"B2","qty":20,"bought_price":"6"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Restock", decode(t, rec)["type"])

	rec = ts.do(http.MethodPost, "/sales", `{"date":"2024-06-02","item_code":"B2","qty":5}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(http.MethodPost, "/expenses", `{"month":"2024-06","type":"Electricity","amount":"7.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/reports/profit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	profit := decode(t, rec)
	assert.Equal(t, "20", profit["amount"])
	assert.Equal(t, false, profit["fallback"])

	rec = ts.do(http.MethodPost, "/owing-purchases", `{"date":"2024-06-01","invoice_id":"SUP-7","amount":"120"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	owing := decode(t, rec)
	assert.Equal(t, "2024-06-15", owing["due_date"])

	rec = ts.do(http.MethodGet, "/reports/bills", "")
	require.Equal(t, http.StatusOK, rec.Code)
	bills := decode(t, rec)
	lines := bills["OwingPurchases"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, "Pending", lines[0].(map[string]any)["status"])

	id := int64(owing["row_id"].(float64))
	rec = ts.do(http.MethodPost, "/owing-purchases/"+jsonNumber(id)+"/pay", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/reports/outstanding?table=OwingPurchases", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["rows"])
}

func TestReports(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/items", `{"item_code":"A1","item":"Anvil","stock":50,"price1":"2","price2":"1"}`).Code)
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/items", `{"item_code":"B2","item":"Bucket","stock":3,"price1":"4"}`).Code)
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/sales", `{"date":"2024-05-01","item_code":"B2","qty":1}`).Code)

	rec := ts.do(http.MethodGet, "/reports/low-stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"B2"}, decode(t, rec)["items"])

	rec = ts.do(http.MethodGet, "/reports/low-stock?threshold=100", "")
	assert.Equal(t, []any{"A1", "B2"}, decode(t, rec)["items"])

	rec = ts.do(http.MethodGet, "/reports/low-stock?threshold=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/reports/valuation?price=Price2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "50", decode(t, rec)["valuation"])

	rec = ts.do(http.MethodGet, "/reports/valuation?price=Price7", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/reports/top-selling?by=year", "")
	require.Equal(t, http.StatusOK, rec.Code)
	top := decode(t, rec)["items"].([]any)
	require.Len(t, top, 1)
	assert.Equal(t, "2024", top[0].(map[string]any)["period"])
	assert.Equal(t, "Bucket", top[0].(map[string]any)["item"])

	rec = ts.do(http.MethodGet, "/reports/top-selling?by=week", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/reports/due?table=Stock", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/reports/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode(t, rec)
	assert.Equal(t, "2024-06-10", dash["today"])
	assert.Equal(t, float64(2), dash["items"])
	assert.Len(t, dash["due"], 3)
}

func TestTables(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/tables", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["tables"], 7)

	rec = ts.do(http.MethodPut, "/tables/Stock", `{"rows":[
		{"cells":{"ItemCode":"A1","Item":"Anvil","Stock":4,"Price1":"9.5"}},
		{"cells":{"ItemCode":"B2","Item":"Bucket","Stock":"7"}}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/tables/Stock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tbl := decode(t, rec)
	rows := tbl["rows"].([]any)
	require.Len(t, rows, 2)
	first := rows[0].(map[string]any)["cells"].(map[string]any)
	assert.Equal(t, "A1", first["ItemCode"])
	assert.Equal(t, float64(4), first["Stock"])
	assert.Equal(t, "9.5", first["Price1"])
	cols := tbl["columns"].([]any)
	assert.Equal(t, "text", cols[0].(map[string]any)["kind"])

	rec = ts.do(http.MethodPut, "/tables/Stock", `{"rows":[{"cells":{"ItemCode":"A1","Stock":"lots"}}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPut, "/tables/Stock", `{"rows":[{"cells":{"ItemCode":"A1"}},{"cells":{"ItemCode":"A1"}}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPut, "/tables/Stock", `{"rows":[{"cells":{"Supplier":"ACME"}}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/tables/Invoices", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "READ_ERROR", decode(t, rec)["code"])

	require.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/items/B2", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodDelete, "/items/B2", "").Code)
}
