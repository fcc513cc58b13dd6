package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapsql/internal/cli/config"
	"github.com/leapstack-labs/leapsql/pkg/compiled"
	"github.com/leapstack-labs/leapsql/pkg/compiler"
	"github.com/leapstack-labs/leapsql/pkg/dialect"
	"github.com/leapstack-labs/leapsql/pkg/lex"
	"github.com/leapstack-labs/leapsql/pkg/match"
)

// compiledGraphs caches one compiled.Graph per dialect name: a dialect
// compiles once and is then read-only and safe to share across any number
// of concurrent parses (spec.md §4.B, §5), so the serve command's repeated
// POST /parse requests against the same dialect must not recompile it on
// every call.
var (
	compiledGraphsMu sync.Mutex
	compiledGraphs   = make(map[string]*compiled.Graph)
)

func compiledGraphFor(d *dialect.Dialect) (*compiled.Graph, error) {
	compiledGraphsMu.Lock()
	defer compiledGraphsMu.Unlock()
	if g, ok := compiledGraphs[d.Name]; ok {
		return g, nil
	}
	g, err := compiler.Compile(d)
	if err != nil {
		return nil, err
	}
	compiledGraphs[d.Name] = g
	slog.Debug("compiled dialect grammar",
		slog.String("dialect", d.Name),
		slog.Int("nodes", len(g.Nodes)))
	return g, nil
}

// ParseSQL lexes and parses sql against the named dialect, returning the
// resulting File segment's JSON-serializable tree. Shared by the parse and
// serve commands so both exercise exactly the same path. indent is nil-safe:
// a nil IndentationConfig means no indentation features are enabled.
func ParseSQL(dialectName, sql string, indent match.IndentationConfig) (treeNode, error) {
	d, ok := dialect.Get(dialectName)
	if !ok {
		return treeNode{}, fmt.Errorf("unknown dialect %q (available: %s)", dialectName, strings.Join(dialect.List(), ", "))
	}

	segs, err := lex.Lex(d, sql)
	if err != nil {
		return treeNode{}, err
	}

	g, err := compiledGraphFor(d)
	if err != nil {
		return treeNode{}, fmt.Errorf("compile %s grammar: %w", dialectName, err)
	}

	file, err := match.RootParseFile(g, d, segs, indent)
	if err != nil {
		return treeNode{}, err
	}

	return buildTree(file), nil
}

// NewParseCommand parses a SQL string or file against a dialect and prints
// the resulting tree.
func NewParseCommand() *cobra.Command {
	var file string
	var dialectName string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "parse [sql]",
		Short: "Parse a SQL statement and print its segment tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQL(args, file)
			if err != nil {
				return err
			}

			tree, err := ParseSQL(dialectName, sql, config.GetIndentation(cmd.Context()))
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tree)
			}

			var b strings.Builder
			fmt.Fprintf(&b, "kind: %s\n", tree.Kind)
			printTextTree(&b, tree, 0)
			_, err = fmt.Fprint(cmd.OutOrStdout(), b.String())
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read SQL from a file instead of the argument")
	cmd.Flags().StringVarP(&dialectName, "dialect", "d", "ansi", "dialect to parse against")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the tree as JSON instead of text")
	return cmd
}

func readSQL(args []string, file string) (string, error) {
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(b), nil
	}
	if len(args) == 1 {
		return args[0], nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil || len(b) == 0 {
		return "", fmt.Errorf("no SQL given: pass it as an argument, --file, or stdin")
	}
	return string(b), nil
}

func printTextTree(b *strings.Builder, n treeNode, depth int) {
	for _, c := range n.Children {
		fmt.Fprintf(b, "%s%s", strings.Repeat("  ", depth+1), c.Kind)
		if len(c.Children) == 0 {
			fmt.Fprintf(b, ": %q", c.Raw)
		}
		b.WriteByte('\n')
		printTextTree(b, c, depth+1)
	}
}
