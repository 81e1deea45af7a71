package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"stockbook/m/internal/export"
	"stockbook/m/internal/ledger"
	"stockbook/m/internal/schema"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:       "export <table>",
		Short:     "Write a ledger table as CSV",
		Args:      cobra.ExactArgs(1),
		ValidArgs: schema.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, cmd, args[0], out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func runExport(opts *RootOptions, cmd *cobra.Command, name, out string) error {
	if !schema.Known(name) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown table %q", name))
	}
	f := opts.formatter(cmd)
	return withStore(opts, func(store *ledger.Store) error {
		var w io.Writer = cmd.OutOrStdout()
		if out != "" {
			file, err := os.Create(out)
			if err != nil {
				return WrapExitError(ExitCommandError, "create output", err)
			}
			defer file.Close()
			w = file
		}
		n, err := export.Table(commandContext(cmd), store, name, w)
		if err != nil {
			return ledgerExit("export "+name, err)
		}
		f.VerboseLog("exported %d rows from %s", n, name)
		return nil
	})
}
