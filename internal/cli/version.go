package cli

import (
	"fmt"
	"io"

	"github.com/maloquacious/semver"
	"github.com/spf13/cobra"

	"stockbook/m/internal/schema"
)

var version = semver.Version{Minor: 1, PreRelease: "alpha", Build: semver.Commit()}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the program and ledger schema versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := map[string]any{
				"version":        version.String(),
				"schema_version": schema.Version,
			}
			return rootOpts.formatter(cmd).Success(out, func(w io.Writer) {
				fmt.Fprintf(w, "stockbook %s (schema %d)\n", version.String(), schema.Version)
			})
		},
	}
}
