// Package config loads leapsql's CLI configuration: dialect and output
// defaults, which are loaded but not read by any command, and the
// indentation-policy feature flags Conditional grammar nodes should see
// (spec.md §3's IndentationConfig, SPEC_FULL.md's indent policy demo).
package config

// Defaults mirror the zero-configuration behavior: ansi dialect, text
// output, no indentation features enabled.
const (
	DefaultDialect = "ansi"
	DefaultOutput  = "text"
)

// Config is the fully resolved CLI configuration, after defaults, an
// optional YAML file, LEAPSQL_ environment variables, and flags have been
// merged in that order of increasing precedence.
type Config struct {
	Dialect     string          `koanf:"dialect"`
	Output      string          `koanf:"output"`
	Indentation map[string]bool `koanf:"indentation"`
}
