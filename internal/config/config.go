// Package config loads rollup settings from an optional YAML file and
// ROLLUP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/h0rv/rollup/internal/update"
	"github.com/spf13/viper"
)

// Config represents the full rollup configuration.
type Config struct {
	GitHub GitHubConfig `mapstructure:"github"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Update UpdateConfig `mapstructure:"update"`
	Log    LogConfig    `mapstructure:"log"`
	Report ReportConfig `mapstructure:"report"`
}

// GitHubConfig contains API access settings.
type GitHubConfig struct {
	Token             string  `mapstructure:"token"`
	Endpoint          string  `mapstructure:"endpoint"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// FetchConfig contains batch fetch settings.
type FetchConfig struct {
	BatchSize       int `mapstructure:"batch_size"`
	CommentPageSize int `mapstructure:"comment_page_size"`
}

// UpdateConfig contains the update-detection chain. Each strategy entry is
// either a shorthand string ("section:Status|last-month") or a map with kind,
// timeframe, name, pattern and strip_marker keys.
type UpdateConfig struct {
	Strategies []interface{} `mapstructure:"strategies"`
	Count      int           `mapstructure:"count"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ReportConfig contains defaults for the report and browse commands.
type ReportConfig struct {
	Search   string `mapstructure:"search"` // Listing search qualifiers
	Query    string `mapstructure:"query"`  // Filter query applied after listing
	Kind     string `mapstructure:"kind"`   // issue or discussion
	View     string `mapstructure:"view"`   // owner/project/view of a saved project view
	GroupBy  string `mapstructure:"group_by"`
	Output   string `mapstructure:"output"`
	MaxItems int    `mapstructure:"max_items"`
}

// EnvPrefix prefixes every environment override, e.g. ROLLUP_FETCH_BATCH_SIZE.
const EnvPrefix = "ROLLUP"

// configName is searched for as .rollup.yaml in the working and home directories.
const configName = ".rollup"

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("github.token", EnvPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("github.endpoint", "https://api.github.com/graphql")
	v.SetDefault("github.requests_per_second", 5.0)
	v.SetDefault("github.burst", 5)
	v.SetDefault("fetch.batch_size", 50)
	v.SetDefault("fetch.comment_page_size", 20)
	v.SetDefault("update.strategies", []interface{}{})
	v.SetDefault("update.count", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("report.kind", "issue")
	v.SetDefault("report.max_items", 0)
}

// Load reads configuration into v. An explicit path must exist; otherwise a
// .rollup.yaml in the working or home directory is used when present.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		if cwd, err := os.Getwd(); err == nil {
			v.AddConfigPath(cwd)
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and that the strategy chain parses.
func (c *Config) Validate() error {
	if c.Fetch.BatchSize < 1 {
		return fmt.Errorf("fetch.batch_size must be positive, got %d", c.Fetch.BatchSize)
	}
	if c.Fetch.CommentPageSize < 1 || c.Fetch.CommentPageSize > 100 {
		return fmt.Errorf("fetch.comment_page_size must be between 1 and 100, got %d", c.Fetch.CommentPageSize)
	}
	if c.Update.Count < 1 {
		return fmt.Errorf("update.count must be positive, got %d", c.Update.Count)
	}
	switch c.Report.Kind {
	case "issue", "discussion":
	default:
		return fmt.Errorf("invalid report.kind: %s (must be issue or discussion)", c.Report.Kind)
	}
	if _, err := c.Update.Chain(); err != nil {
		return err
	}
	return nil
}

// Chain parses the configured strategies in order.
func (u UpdateConfig) Chain() ([]update.Strategy, error) {
	chain := make([]update.Strategy, 0, len(u.Strategies))
	for i, entry := range u.Strategies {
		st, err := parseEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("update.strategies[%d]: %w", i, err)
		}
		chain = append(chain, st)
	}
	return chain, nil
}

func parseEntry(entry interface{}) (update.Strategy, error) {
	switch e := entry.(type) {
	case string:
		return update.ParseStrategy(e)
	case map[string]interface{}:
		return parseMap(e)
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(e))
		for k, v := range e {
			m[fmt.Sprint(k)] = v
		}
		return parseMap(m)
	}
	return update.Strategy{}, fmt.Errorf("unsupported strategy entry %T", entry)
}

func parseMap(m map[string]interface{}) (update.Strategy, error) {
	str := func(key string) string {
		if v, ok := m[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return ""
	}

	tf, err := update.ParseTimeframe(str("timeframe"))
	if err != nil {
		return update.Strategy{}, err
	}

	kind := update.Kind(strings.ToLower(str("kind")))
	switch kind {
	case update.KindTimebox:
		if tf == update.TimeframeNone {
			return update.Strategy{}, errors.New("timebox requires a timeframe")
		}
		return update.Timebox(tf), nil
	case update.KindSection:
		name := str("name")
		if name == "" {
			return update.Strategy{}, errors.New("section requires a name")
		}
		return update.Section(name, tf), nil
	case update.KindMarker:
		if str("pattern") == "" {
			return update.Strategy{}, errors.New("marker requires a pattern")
		}
		st, err := update.Marker(str("pattern"), tf)
		if err != nil {
			return update.Strategy{}, err
		}
		strip, _ := m["strip_marker"].(bool)
		st.StripMarker = strip
		return st, nil
	case update.KindSkip, update.KindBlame, update.KindFail:
		return update.Strategy{Kind: kind}, nil
	}
	return update.Strategy{}, fmt.Errorf("unknown strategy kind %q", str("kind"))
}

// DefaultPath returns the home-directory config path, for help text.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return configName + ".yaml"
	}
	return filepath.Join(home, configName+".yaml")
}
