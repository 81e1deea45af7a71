package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"stockbook/m/domain"
	"stockbook/m/internal/ledger"
	"stockbook/m/internal/schema"
	"stockbook/m/internal/table"
)

type ctxKey string

const ctxOperator ctxKey = "operator"

const roleOperator = "operator"

// Options configures a Handler.
type Options struct {
	Secret            string
	OperatorUser      string
	OperatorPassword  string
	LowStockThreshold int64
	HorizonDays       int
	CORSOrigins       []string
	Logger            *slog.Logger
	// Now is the clock used for "today" in reports; time.Now when nil.
	Now func() time.Time
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	store        *ledger.Store
	secret       string
	operator     string
	passwordHash []byte
	lowStock     int64
	horizon      int
	origins      []string
	log          *slog.Logger
	now          func() time.Time
}

// New constructs a Handler. The operator password is kept only as a bcrypt hash.
func New(store *ledger.Store, opts Options) (*Handler, error) {
	if opts.OperatorUser == "" || opts.OperatorPassword == "" {
		return nil, errors.New("operator user and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.OperatorPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	h := &Handler{
		store:        store,
		secret:       opts.Secret,
		operator:     opts.OperatorUser,
		passwordHash: hash,
		lowStock:     opts.LowStockThreshold,
		horizon:      opts.HorizonDays,
		origins:      opts.CORSOrigins,
		log:          opts.Logger,
		now:          opts.Now,
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	if len(h.origins) == 0 {
		h.origins = []string{"*"}
	}
	return h, nil
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Post("/auth/login", h.login)

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Route("/tables", func(r chi.Router) {
			r.Get("/", h.listTables)
			r.Get("/{name}", h.getTable)
			r.Put("/{name}", h.putTable)
		})

		pr.Route("/items", func(r chi.Router) {
			r.Post("/", h.addItem)
			r.Delete("/{code}", h.deleteItem)
		})

		pr.Post("/sales", h.recordSale)
		pr.Post("/restocks", h.restock)
		pr.Post("/expenses", h.addExpense)

		pr.Route("/owing-purchases", func(r chi.Router) {
			r.Post("/", h.recordOwingPurchase)
			r.Post("/{id}/pay", h.markPaid(schema.OwingPurchases))
		})
		pr.Post("/bills/{id}/pay", h.markPaid(schema.BillToBill))
		pr.Post("/cheques/{id}/claim", h.markClaimed)

		pr.Route("/reports", func(r chi.Router) {
			r.Get("/low-stock", h.lowStockReport)
			r.Get("/due", h.dueReport)
			r.Get("/outstanding", h.outstandingReport)
			r.Get("/top-selling", h.topSellingReport)
			r.Get("/profit", h.profitReport)
			r.Get("/valuation", h.valuationReport)
			r.Get("/bills", h.billsReport)
			r.Get("/dashboard", h.dashboardReport)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers

type authClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(op domain.Operator) (string, error) {
	claims := authClaims{
		Username: op.Username,
		Role:     op.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   op.Username,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok || claims.Role != roleOperator {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		op := domain.Operator{Username: claims.Username, Role: claims.Role}
		ctx := context.WithValue(r.Context(), ctxOperator, op)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func operatorFrom(ctx context.Context) string {
	op, _ := ctx.Value(ctxOperator).(domain.Operator)
	return op.Username
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token    string          `json:"token"`
	Operator domain.Operator `json:"operator"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username != h.operator || bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	op := domain.Operator{Username: h.operator, Role: roleOperator}
	token, err := h.generateToken(op)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}
	respondJSON(w, http.StatusOK, authResponse{Token: token, Operator: op})
}

// Table handlers

type tableView struct {
	Name    string         `json:"name"`
	Columns []table.Column `json:"columns"`
	Rows    []rowView      `json:"rows"`
}

type rowView struct {
	ID    int64          `json:"id"`
	Cells map[string]any `json:"cells"`
}

func viewRows(rows []table.Row) []rowView {
	out := make([]rowView, 0, len(rows))
	for _, row := range rows {
		cells := make(map[string]any, len(row.Cells))
		for k, v := range row.Cells {
			if t, ok := v.(time.Time); ok {
				v = t.Format(table.DateLayout)
			}
			cells[k] = v
		}
		out = append(out, rowView{ID: row.ID, Cells: cells})
	}
	return out
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"tables": schema.Names()})
}

func (h *Handler) getTable(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.LoadTable(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tableView{Name: t.Name, Columns: t.Columns, Rows: viewRows(t.Rows)})
}

type putTableRequest struct {
	Columns []string  `json:"columns"`
	Rows    []rowView `json:"rows"`
}

func (h *Handler) putTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req putTableRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := buildTable(name, req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.SaveTable(r.Context(), t); err != nil {
		h.respondLedgerError(w, err)
		return
	}
	h.log.Info("table replaced", "table", name, "rows", len(t.Rows), "operator", operatorFrom(r.Context()))
	respondJSON(w, http.StatusOK, map[string]any{"table": name, "rows": len(t.Rows)})
}

// buildTable turns a PUT body into a typed snapshot. Without explicit columns the
// registry columns are used; cells for other columns are rejected.
func buildTable(name string, req putTableRequest) (*table.Table, error) {
	if !schema.Known(name) {
		return nil, fmt.Errorf("unknown table %q", name)
	}
	var cols []table.Column
	if len(req.Columns) == 0 {
		cols, _ = schema.Columns(name)
	} else {
		for _, c := range req.Columns {
			cols = append(cols, schema.Lookup(name, c))
		}
	}
	t := table.New(name, cols)
	for i, rv := range req.Rows {
		row := table.Row{ID: rv.ID, Cells: make(map[string]any, len(cols))}
		for k := range rv.Cells {
			if !t.HasColumn(k) {
				return nil, fmt.Errorf("row %d: unknown column %q", i+1, k)
			}
		}
		for _, c := range cols {
			v, err := table.Coerce(c.Kind, rv.Cells[c.Name])
			if err != nil {
				return nil, fmt.Errorf("row %d, %s: %w", i+1, c.Name, err)
			}
			row.Cells[c.Name] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Ledger operations

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req ledger.NewItem
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := h.store.AddItem(r.Context(), req)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.store.DeleteItem(r.Context(), code); err != nil {
		h.respondLedgerError(w, err)
		return
	}
	h.log.Info("item deleted", "item_code", code, "operator", operatorFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request) {
	var req ledger.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Date.Valid() {
		req.Date = domain.NewDate(h.now())
	}
	res, err := h.store.RecordSale(r.Context(), req)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	var req ledger.RestockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Date.Valid() {
		req.Date = domain.NewDate(h.now())
	}
	mv, err := h.store.Restock(r.Context(), req)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, mv)
}

func (h *Handler) addExpense(w http.ResponseWriter, r *http.Request) {
	var req domain.Expense
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.RowID = 0
	exp, err := h.store.AddExpense(r.Context(), req)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, exp)
}

func (h *Handler) recordOwingPurchase(w http.ResponseWriter, r *http.Request) {
	var req domain.Bill
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.RowID = 0
	if !req.Date.Valid() {
		req.Date = domain.NewDate(h.now())
	}
	bill, err := h.store.RecordOwingPurchase(r.Context(), req)
	if err != nil {
		h.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, bill)
}

func (h *Handler) markClaimed(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid cheque id")
		return
	}
	if err := h.store.MarkClaimed(r.Context(), id); err != nil {
		h.respondLedgerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"row_id": id, "claimed": true})
}

func (h *Handler) markPaid(tableName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid row id")
			return
		}
		if err := h.store.MarkPaid(r.Context(), tableName, id); err != nil {
			h.respondLedgerError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"table": tableName, "row_id": id, "paid": true})
	}
}

// respondLedgerError maps ledger error codes to HTTP statuses.
func (h *Handler) respondLedgerError(w http.ResponseWriter, err error) {
	var status int
	switch ledger.CodeOf(err) {
	case ledger.CodeValidation:
		status = http.StatusBadRequest
	case ledger.CodeUnknownItem:
		status = http.StatusNotFound
	case ledger.CodeDuplicateKey:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
		h.log.Error("ledger operation failed", "error", err)
	}
	respondJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  string(ledger.CodeOf(err)),
	})
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	decoder.UseNumber()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
