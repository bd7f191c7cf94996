package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jlehrer1/big-csv/pkg/bigcsv"
)

// buildVersion is set by the build with -ldflags -X.
var buildVersion string

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bigcsv version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "bigcsv v%s\nmodule: %s\n", bigcsv.Version, bigcsv.ModulePath)
			if buildVersion != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "build: %s\n", buildVersion)
			}
			return nil
		},
	}
}
