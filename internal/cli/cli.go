// Package cli provides the command-line interface for LeapSQL's SQL
// front-end: parse a statement against a named dialect and inspect the
// resulting segment tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapsql/internal/cli/commands"
	"github.com/leapstack-labs/leapsql/internal/cli/config"
	"github.com/leapstack-labs/leapsql/pkg/match"
)

var (
	cfgFile          string
	indentConfigFile string
)

// Version information (set at build time).
var (
	Version = "0.1.0"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leapsql",
		Short: "LeapSQL - a SQL linter front end",
		Long: `LeapSQL parses a SQL source string against a named dialect (ansi,
athena, ...) and produces a concrete parse tree downstream lint rules can
walk. This binary exposes that front end directly: parse a statement,
inspect its tree, or run a small HTTP debug endpoint for editor tooling.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			// --indent-config, when given, is a standalone policy file and
			// takes precedence over any "indentation:" block embedded in
			// --config; otherwise fall back to that embedded block.
			var indent match.IndentationConfig
			if indentConfigFile != "" {
				indent, err = config.LoadIndentationConfig(indentConfigFile)
				if err != nil {
					return err
				}
			} else {
				indent = match.IndentationConfig(cfg.Indentation)
			}

			cmd.SetContext(config.WithIndentation(cmd.Context(), indent))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML; its indentation block applies when --indent-config is not given)")
	rootCmd.PersistentFlags().StringVar(&indentConfigFile, "indent-config", "", "YAML file of indentation-policy feature flags consulted by Conditional grammar rules")

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewParseCommand())
	rootCmd.AddCommand(commands.NewDialectsCommand())
	rootCmd.AddCommand(commands.NewServeCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
