package main

import (
	"fmt"
	"os"

	"github.com/h0rv/rollup/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rollup",
		Short: "Status reports from GitHub issue and discussion comments",
		Long: `rollup collects the latest status update from each matching GitHub issue
or discussion and renders a markdown report or an interactive browser.

Items are listed with GitHub search qualifiers, narrowed with a project-style
filter query, and each item's comments are scanned by the configured update
strategies (timebox, section, marker, skip, blame, fail).

Authentication:
  1. github.token in the config file, or ROLLUP_GITHUB_TOKEN
  2. GitHub CLI: Run 'gh auth login'
  3. Environment variable: Set GITHUB_TOKEN

Configuration is read from --config or ` + config.DefaultPath() + `.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default .rollup.yaml in the working or home directory)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")

	rootCmd.AddCommand(newReportCmd(), newBrowseCmd(), newParseCmd())
	return rootCmd
}

// flagBindings maps config keys to flag names. Only flags the command defines
// are bound; a bound flag overrides config only when set.
var flagBindings = map[string]string{
	"log.level":               "log-level",
	"log.format":              "log-format",
	"report.search":           "search",
	"report.query":            "query",
	"report.kind":             "kind",
	"report.view":             "view",
	"report.group_by":         "group-by",
	"report.output":           "output",
	"report.max_items":        "max-items",
	"update.count":            "count",
	"update.strategies":       "strategy",
	"fetch.batch_size":        "batch-size",
	"fetch.comment_page_size": "comment-page-size",
}

// loadConfig builds a viper instance, binds cmd's flags and loads the config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.New()
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return config.Load(v, configPath)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range flagBindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

// addSelectionFlags defines the flags shared by report and browse.
func addSelectionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("search", "", `GitHub search qualifiers, e.g. "repo:acme/widgets is:open"`)
	f.String("query", "", `Filter query applied after listing, e.g. "status:\"In Progress\" assignee:@me"`)
	f.String("kind", "", "Item kind: issue or discussion")
	f.String("view", "", "Saved project view as owner/project/view, e.g. acme/3/1")
	f.String("group-by", "", "Field to group by")
	f.Int("max-items", 0, "Maximum items to list (0 = all)")
	f.Int("count", 0, "Updates to keep per item")
	f.StringSlice("strategy", nil, "Update strategy, repeatable (e.g. section:Status|last-week, blame)")
	f.Int("batch-size", 0, "Initial items per batch query")
	f.Int("comment-page-size", 0, "Comments fetched per item")
}
