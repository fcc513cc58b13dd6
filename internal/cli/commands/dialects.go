package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	// Registered for their init() side effect: each import registers one
	// dialect.Dialect into the global registry (pkg/dialect/registry.go).
	_ "github.com/leapstack-labs/leapsql/pkg/dialects/ansi"
	_ "github.com/leapstack-labs/leapsql/pkg/dialects/athena"

	"github.com/leapstack-labs/leapsql/pkg/dialect"
)

// NewDialectsCommand lists every registered dialect.
func NewDialectsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dialects",
		Short: "List registered SQL dialects",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range dialect.List() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
