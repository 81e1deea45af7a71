// Package cli is the stockbook command line: serve the HTTP API, manage the
// backing file, print reports and export tables.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"stockbook/m/internal/config"
	"stockbook/m/internal/database"
	"stockbook/m/internal/ledger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DBPath  string

	// Config is loaded before any subcommand runs; --db overrides its DatabasePath.
	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the stockbook CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "stockbook",
		Short:         "stockbook - inventory ledger for a small shop",
		Long:          "Keeps stock, sales, cheques, bills and expenses in one SQLite ledger file and reports on them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			slog.SetDefault(opts.Logger)

			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "load configuration", err)
			}
			if opts.DBPath != "" {
				cfg.DatabasePath = opts.DBPath
			}
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "ledger file (default $STOCKBOOK_DB or inventory_system.db)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewDBCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openStore opens the configured ledger file. The caller closes the store.
func (o *RootOptions) openStore() (*ledger.Store, error) {
	db, err := database.Connect(o.Config.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open ledger", err)
	}
	return ledger.New(db, o.Logger, ledger.WithBillTerm(o.Config.BillTermDays)), nil
}

// openExisting is openStore for commands that only read: the file must exist.
func (o *RootOptions) openExisting() (*ledger.Store, error) {
	if _, err := os.Stat(o.Config.DatabasePath); err != nil {
		return nil, WrapExitError(ExitCommandError, "ledger file not found", err)
	}
	return o.openStore()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
