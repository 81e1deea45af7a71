// Package ledger is the Ledger Store: it owns the named inventory tables in one
// SQLite file, loads and saves whole-table snapshots, and applies the mutation
// operations (sales, restocks, cheques, bills) as single transactions.
//
// Cross-table references (Sales.ItemCode, StockUpdate.ItemCode, Cheques.ItemCode)
// are plain key fields. Nothing enforces them: legacy data already carries
// orphans, so readers must tolerate unmatched keys.
//
// A Store serializes its callers with one RWMutex: writers are exclusive,
// readers share. One process owns the file; no cross-process locking is done.
package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"stockbook/m/internal/migrations"
)

// DefaultBillTermDays is how long a deferred sale may stay unpaid.
const DefaultBillTermDays = 14

// InvoiceIDGenerator produces invoice ids for deferred sales that arrive without one.
type InvoiceIDGenerator func() string

// UUIDInvoiceIDs generates time-sortable ids of the form INV-<uuidv7>.
func UUIDInvoiceIDs() string {
	return "INV-" + uuid.Must(uuid.NewV7()).String()
}

// Store is the explicit handle to the backing file. Construct one at startup
// and Close it at shutdown.
type Store struct {
	mu       sync.RWMutex
	db       *sqlx.DB
	log      *slog.Logger
	billTerm int
	newID    InvoiceIDGenerator
}

// Option configures a Store.
type Option func(*Store)

// WithBillTerm sets the default days until a deferred sale is due.
func WithBillTerm(days int) Option {
	return func(s *Store) {
		if days > 0 {
			s.billTerm = days
		}
	}
}

// WithInvoiceIDs overrides the invoice id generator (tests use fixed ids).
func WithInvoiceIDs(gen InvoiceIDGenerator) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// New wraps an open database. A nil logger means slog.Default().
func New(db *sqlx.DB, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:       db,
		log:      logger,
		billTerm: DefaultBillTermDays,
		newID:    UUIDInvoiceIDs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// BillTerm returns the configured days until a deferred sale is due.
func (s *Store) BillTerm() int {
	return s.billTerm
}

// InitializeStore creates the named tables (all of them when none are named) and any
// missing columns. Existing tables and rows are never touched.
func (s *Store) InitializeStore(ctx context.Context, names ...string) (migrations.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := migrations.Run(ctx, s.db, names...)
	if err != nil {
		return res, writeError("", err)
	}
	if len(res.Created) > 0 {
		s.log.Info("created tables", "tables", res.Created)
	}
	for name, cols := range res.AddedColumns {
		s.log.Info("added columns", "table", name, "columns", cols)
	}
	return res, nil
}

// Verify reports how the file differs from the registry.
func (s *Store) Verify(ctx context.Context) (migrations.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rep, err := migrations.Verify(ctx, s.db)
	if err != nil {
		return rep, readError("", err)
	}
	return rep, nil
}
