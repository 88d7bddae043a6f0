package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"market-predictor/pkg/tracing"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "version: %s\ngo: %s\n", tracing.Version, runtime.Version())
	},
}
