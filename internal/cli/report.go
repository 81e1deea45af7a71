package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"stockbook/m/domain"
	"stockbook/m/internal/ledger"
	"stockbook/m/internal/report"
	"stockbook/m/internal/schema"
	"stockbook/m/internal/table"
)

// NewReportCommand creates the report command group.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print derived reports over the ledger",
	}
	cmd.AddCommand(
		newLowStockCommand(rootOpts),
		newDueCommand(rootOpts),
		newTopSellingCommand(rootOpts),
		newProfitCommand(rootOpts),
		newValuationCommand(rootOpts),
	)
	return cmd
}

func money(d decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", d.InexactFloat64())
}

// withStore opens the existing ledger for a read-only command.
func withStore(opts *RootOptions, fn func(*ledger.Store) error) error {
	store, err := opts.openExisting()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func newLowStockCommand(rootOpts *RootOptions) *cobra.Command {
	var threshold int64
	cmd := &cobra.Command{
		Use:   "low-stock",
		Short: "List items whose stock is below the threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("threshold") {
				threshold = rootOpts.Config.LowStockThreshold
			}
			return withStore(rootOpts, func(store *ledger.Store) error {
				items, err := store.LoadStock(commandContext(cmd))
				if err != nil {
					return ledgerExit("load stock", err)
				}
				byCode := make(map[string]domain.StockItem, len(items))
				for _, it := range items {
					byCode[it.ItemCode] = it
				}
				low := report.LowStock(items, threshold)
				return rootOpts.formatter(cmd).Success(low, func(w io.Writer) {
					if len(low) == 0 {
						fmt.Fprintln(w, "No items below threshold")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "CODE\tITEM\tSTOCK")
					for _, code := range low {
						it := byCode[code]
						fmt.Fprintf(tw, "%s\t%s\t%s\n", code, it.Item, humanize.Comma(it.Stock))
					}
					tw.Flush()
				})
			})
		},
	}
	cmd.Flags().Int64Var(&threshold, "threshold", report.DefaultLowStockThreshold, "stock level considered low")
	return cmd
}

// DueResult is the output of report due.
type DueResult struct {
	Table   string           `json:"table"`
	DueSoon bool             `json:"due_soon"`
	Rows    []map[string]any `json:"rows"`
}

func newDueCommand(rootOpts *RootOptions) *cobra.Command {
	var tableName string
	var horizon int
	cmd := &cobra.Command{
		Use:   "due",
		Short: "Show unresolved cheques or bills falling due soon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := schema.DoneColumns[tableName]; !ok {
				return NewExitError(ExitCommandError, "--table must be Cheques, BillToBill or OwingPurchases")
			}
			if !cmd.Flags().Changed("horizon") {
				horizon = rootOpts.Config.DueHorizonDays
			}
			return withStore(rootOpts, func(store *ledger.Store) error {
				t, err := store.LoadTable(commandContext(cmd), tableName)
				if err != nil {
					return ledgerExit("load "+tableName, err)
				}
				due := report.DueFor(t, time.Now(), horizon)
				out := DueResult{Table: tableName, DueSoon: due.Soon, Rows: plainRows(due.Rows)}
				dateCol := schema.DueColumns[tableName]
				return rootOpts.formatter(cmd).Success(out, func(w io.Writer) {
					if !due.Soon {
						fmt.Fprintf(w, "%s: nothing due in the next %d days\n", tableName, horizon)
						return
					}
					fmt.Fprintf(w, "%s: %d due in the next %d days\n", tableName, due.Count, horizon)
					for _, r := range due.Rows {
						amount, _ := r.Decimal("Amount")
						fmt.Fprintf(w, "  #%d due %s amount %s\n", r.ID, r.String(dateCol), money(amount))
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&tableName, "table", schema.Cheques, "Cheques, BillToBill or OwingPurchases")
	cmd.Flags().IntVar(&horizon, "horizon", report.DefaultHorizonDays, "days ahead to look")
	return cmd
}

func plainRows(rows []table.Row) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		m := map[string]any{"row_id": r.ID}
		for k := range r.Cells {
			m[k] = r.String(k)
		}
		out = append(out, m)
	}
	return out
}

func newTopSellingCommand(rootOpts *RootOptions) *cobra.Command {
	var n int
	var by string
	cmd := &cobra.Command{
		Use:   "top-selling",
		Short: "Rank items by quantity sold per month or year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := report.ParsePeriod(by)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --by", err)
			}
			return withStore(rootOpts, func(store *ledger.Store) error {
				snap, err := report.LoadSnapshot(commandContext(cmd), store, schema.Sales, schema.Stock)
				if err != nil {
					return ledgerExit("load sales", err)
				}
				top := report.TopSellingItems(snap.Sales, snap.Stock, n, period)
				return rootOpts.formatter(cmd).Success(top, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "PERIOD\tCODE\tITEM\tQTY")
					for _, it := range top {
						name := "-"
						if it.Item != nil {
							name = *it.Item
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.Period, it.ItemCode, name, humanize.Comma(it.Qty))
					}
					tw.Flush()
				})
			})
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 10, "number of rows (0 for all)")
	cmd.Flags().StringVar(&by, "by", "month", "group by month or year")
	return cmd
}

func newProfitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profit",
		Short: "Estimate profit from sales, restock costs and expenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(rootOpts, func(store *ledger.Store) error {
				snap, err := report.LoadSnapshot(commandContext(cmd), store, schema.Sales, schema.StockUpdate, schema.Expenses)
				if err != nil {
					return ledgerExit("load sales", err)
				}
				p := report.ProfitEstimate(snap.Sales, snap.Movements, snap.Expenses, rootOpts.Logger)
				return rootOpts.formatter(cmd).Success(p, func(w io.Writer) {
					fmt.Fprintf(w, "Estimated profit: %s\n", money(p.Amount))
					if p.Fallback {
						fmt.Fprintf(w, "(sales minus expenses; %s)\n", p.Reason)
					}
				})
			})
		},
	}
}

func newValuationCommand(rootOpts *RootOptions) *cobra.Command {
	var price string
	cmd := &cobra.Command{
		Use:   "valuation",
		Short: "Value the stock on hand at one of the price columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := domain.ParsePriceColumn(price)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --price", err)
			}
			return withStore(rootOpts, func(store *ledger.Store) error {
				items, err := store.LoadStock(commandContext(cmd))
				if err != nil {
					return ledgerExit("load stock", err)
				}
				v := report.StockValuation(items, col)
				out := map[string]any{"price_column": col, "valuation": v}
				return rootOpts.formatter(cmd).Success(out, func(w io.Writer) {
					fmt.Fprintf(w, "Stock value at %s: %s\n", col, money(v))
				})
			})
		},
	}
	cmd.Flags().StringVar(&price, "price", string(domain.Price1), "Price1, Price2 or Price3")
	return cmd
}
