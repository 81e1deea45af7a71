// Package seed loads an item catalog CSV into the Stock table.
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"stockbook/m/internal/ledger"
)

// Importer is the part of the ledger store a catalog load needs.
type Importer interface {
	ImportItems(ctx context.Context, items []ledger.NewItem) (added, skipped int, err error)
}

// Result counts what a catalog load did.
type Result struct {
	Added   int
	Skipped int
	Invalid int
}

// LoadCatalogFile opens csvPath and loads it with LoadCatalog.
func LoadCatalogFile(ctx context.Context, store Importer, csvPath string, logger *slog.Logger) (Result, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return Result{}, fmt.Errorf("open catalog %s: %w", csvPath, err)
	}
	defer file.Close()
	return LoadCatalog(ctx, store, file, logger)
}

// LoadCatalog reads a CSV with a header row naming at least ItemCode and Item
// (Stock, Price1, Price2, Price3 optional, any order, case-insensitive) and adds
// the items not in stock yet. Unreadable rows are logged and counted as invalid.
func LoadCatalog(ctx context.Context, store Importer, r io.Reader, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read catalog header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := idx["itemcode"]; !ok {
		return Result{}, errors.New("catalog header has no ItemCode column")
	}
	if _, ok := idx["item"]; !ok {
		return Result{}, errors.New("catalog header has no Item column")
	}

	var res Result
	var items []ledger.NewItem
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.Warn("unable to read catalog row", "line", line, "error", err)
			res.Invalid++
			continue
		}
		item, err := parseItem(idx, record)
		if err != nil {
			logger.Warn("skipping catalog row", "line", line, "error", err)
			res.Invalid++
			continue
		}
		items = append(items, item)
	}

	added, skipped, err := store.ImportItems(ctx, items)
	if err != nil {
		return res, err
	}
	res.Added, res.Skipped = added, skipped
	logger.Info("seeded item catalog", "added", res.Added, "skipped", res.Skipped, "invalid", res.Invalid)
	return res, nil
}

func parseItem(idx map[string]int, record []string) (ledger.NewItem, error) {
	field := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	item := ledger.NewItem{
		ItemCode: field("itemcode"),
		Item:     field("item"),
	}
	if item.ItemCode == "" || item.Item == "" {
		return item, errors.New("ItemCode and Item are required")
	}
	if s := field("stock"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return item, fmt.Errorf("stock %q: %w", s, err)
		}
		item.Stock = n
	}
	prices := []*decimal.Decimal{&item.Price1, &item.Price2, &item.Price3}
	for i, name := range []string{"price1", "price2", "price3"} {
		s := field(name)
		if s == "" {
			continue
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return item, fmt.Errorf("%s %q: %w", name, s, err)
		}
		if d.IsNegative() {
			return item, fmt.Errorf("%s is negative", name)
		}
		*prices[i] = d
	}
	if item.Stock < 0 {
		return item, errors.New("stock is negative")
	}
	return item, nil
}
