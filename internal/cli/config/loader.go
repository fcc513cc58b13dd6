package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/leapsql/pkg/match"
)

// indentationKey is used to store the resolved IndentationConfig in a
// cobra command's context, the same way the teacher's config package
// threads a *slog.Logger through GetLogger/context.WithValue.
type indentationKey struct{}

// WithIndentation returns a child context carrying ind for GetIndentation.
func WithIndentation(ctx context.Context, ind match.IndentationConfig) context.Context {
	return context.WithValue(ctx, indentationKey{}, ind)
}

// GetIndentation retrieves the IndentationConfig stored by WithIndentation,
// or an empty one (no features enabled) if none was stored.
func GetIndentation(ctx context.Context) match.IndentationConfig {
	if ind, ok := ctx.Value(indentationKey{}).(match.IndentationConfig); ok {
		return ind
	}
	return match.IndentationConfig{}
}

var configFileUsed string

// GetConfigFileUsed returns the path to the config file the last LoadConfig
// call found, or "" if none was used.
func GetConfigFileUsed() string {
	return configFileUsed
}

// LoadConfig merges defaults, an optional YAML config file, LEAPSQL_
// environment variables, and CLI flags, in that order of increasing
// precedence (the same four-tier shape the teacher's loader uses, scaled
// down to this module's three config keys).
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	configFileUsed = ""

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"dialect": DefaultDialect,
		"output":  DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, fmt.Errorf("config: cannot read %s: %w", cfgFile, err)
		}
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", cfgFile, err)
		}
		configFileUsed = cfgFile
	}

	if err := k.Load(env.Provider("LEAPSQL_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "LEAPSQL_"))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return f.Name, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("config: load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

// LoadIndentationConfig reads the optional --indent-config YAML file into a
// flat map of feature flags (spec.md §3's IndentationConfig, consulted by
// the Conditional grammar variant). An empty path returns an empty, non-nil
// map: no indentation features enabled, the zero-configuration default.
func LoadIndentationConfig(path string) (match.IndentationConfig, error) {
	if path == "" {
		return match.IndentationConfig{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config: cannot read indent-config %s: %w", path, err)
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("config: parse indent-config %s: %w", path, err)
	}
	out := make(match.IndentationConfig)
	if err := k.Unmarshal("", &out); err != nil {
		return nil, fmt.Errorf("config: decode indent-config %s: %w", path, err)
	}
	return out, nil
}
