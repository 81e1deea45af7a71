package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"stockbook/m/internal/migrations"
	"stockbook/m/internal/seed"
)

// NewDBCommand creates the db command group.
func NewDBCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Ledger file management commands",
	}
	cmd.AddCommand(newDBInitCommand(rootOpts), newDBVerifyCommand(rootOpts))
	return cmd
}

// InitResult is the output of db init.
type InitResult struct {
	Path           string              `json:"path"`
	Version        int                 `json:"version"`
	Created        []string            `json:"created"`
	AddedColumns   map[string][]string `json:"added_columns,omitempty"`
	CatalogAdded   int                 `json:"catalog_added"`
	CatalogSkipped int                 `json:"catalog_skipped"`
}

func newDBInitCommand(rootOpts *RootOptions) *cobra.Command {
	var catalog string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create missing tables and columns, optionally seeding the catalog",
		Long: `Create the ledger file if needed and add every missing table and column.
Existing rows are never touched; running init twice is harmless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(rootOpts, cmd, catalog)
		},
	}
	cmd.Flags().StringVar(&catalog, "catalog", "", "item catalog CSV to seed Stock from")
	return cmd
}

func runDBInit(opts *RootOptions, cmd *cobra.Command, catalog string) error {
	ctx := commandContext(cmd)
	f := opts.formatter(cmd)

	store, err := opts.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.InitializeStore(ctx)
	if err != nil {
		return ledgerExit("initialize ledger", err)
	}
	out := InitResult{
		Path:         opts.Config.DatabasePath,
		Version:      res.Version,
		Created:      res.Created,
		AddedColumns: res.AddedColumns,
	}

	if catalog == "" {
		catalog = opts.Config.CatalogCSV
	}
	if catalog != "" {
		f.VerboseLog("seeding catalog from %s", catalog)
		seeded, err := seed.LoadCatalogFile(ctx, store, catalog, opts.Logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "seed catalog", err)
		}
		out.CatalogAdded, out.CatalogSkipped = seeded.Added, seeded.Skipped
	}

	return f.Success(out, func(w io.Writer) {
		fmt.Fprintf(w, "Ledger %s at schema version %d\n", out.Path, out.Version)
		if len(out.Created) > 0 {
			fmt.Fprintf(w, "Created tables: %s\n", strings.Join(out.Created, ", "))
		}
		for name, cols := range out.AddedColumns {
			fmt.Fprintf(w, "Added to %s: %s\n", name, strings.Join(cols, ", "))
		}
		if catalog != "" {
			fmt.Fprintf(w, "Catalog: %d added, %d skipped\n", out.CatalogAdded, out.CatalogSkipped)
		}
	})
}

func newDBVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the ledger file against the expected tables and schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBVerify(rootOpts, cmd)
		},
	}
}

func runDBVerify(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	store, err := opts.openExisting()
	if err != nil {
		return err
	}
	defer store.Close()

	rep, err := store.Verify(commandContext(cmd))
	if err != nil {
		return ledgerExit("verify ledger", err)
	}
	if err := f.Success(rep, func(w io.Writer) { printReport(w, rep) }); err != nil {
		return err
	}
	if !rep.OK() {
		return NewExitError(ExitFailure, "ledger does not match the expected schema")
	}
	return nil
}

func printReport(w io.Writer, rep migrations.Report) {
	if rep.OK() {
		fmt.Fprintf(w, "OK: schema version %d, all tables present\n", rep.Version)
		return
	}
	fmt.Fprintf(w, "Schema version %d (expected %d)\n", rep.Version, rep.ExpectedVersion)
	for _, name := range rep.MissingTables {
		fmt.Fprintf(w, "Missing table: %s\n", name)
	}
	for name, cols := range rep.MissingColumns {
		fmt.Fprintf(w, "Missing columns in %s: %s\n", name, strings.Join(cols, ", "))
	}
}
