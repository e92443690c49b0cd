package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/h0rv/rollup/internal/update"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rollup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	path := writeConfig(t, "log:\n  level: debug\n")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Fetch.BatchSize)
	assert.Equal(t, 20, cfg.Fetch.CommentPageSize)
	assert.Equal(t, 1, cfg.Update.Count)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "issue", cfg.Report.Kind)
	assert.Equal(t, "https://api.github.com/graphql", cfg.GitHub.Endpoint)

	chain, err := cfg.Update.Chain()
	require.NoError(t, err)
	assert.Empty(t, chain)
}

func TestLoad_Strategies(t *testing.T) {
	path := writeConfig(t, `
update:
  count: 2
  strategies:
    - section:Status|last-month
    - kind: marker
      pattern: "^update:"
      timeframe: last-week
      strip_marker: true
    - kind: timebox
      timeframe: today
    - blame
`)

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Update.Count)

	chain, err := cfg.Update.Chain()
	require.NoError(t, err)
	require.Len(t, chain, 4)

	assert.Equal(t, update.KindSection, chain[0].Kind)
	assert.Equal(t, "Status", chain[0].Section)
	assert.Equal(t, update.TimeframeMonth, chain[0].Timeframe)

	assert.Equal(t, update.KindMarker, chain[1].Kind)
	assert.True(t, chain[1].StripMarker)
	assert.True(t, chain[1].Pattern.MatchString("UPDATE: shipped"))

	assert.Equal(t, update.Timebox(update.TimeframeToday), chain[2])
	assert.Equal(t, update.KindBlame, chain[3].Kind)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ROLLUP_FETCH_BATCH_SIZE", "10")
	t.Setenv("ROLLUP_LOG_FORMAT", "json")
	t.Setenv("GITHUB_TOKEN", "ghp_env")
	path := writeConfig(t, "fetch:\n  batch_size: 25\n")

	cfg, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Fetch.BatchSize)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "ghp_env", cfg.GitHub.Token)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_NoFileFound(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Fetch.BatchSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "batch size", body: "fetch:\n  batch_size: 0\n", want: "fetch.batch_size"},
		{name: "page size", body: "fetch:\n  comment_page_size: 500\n", want: "fetch.comment_page_size"},
		{name: "kind", body: "report:\n  kind: pull\n", want: "report.kind"},
		{name: "bad strategy", body: "update:\n  strategies:\n    - timebox:forever\n", want: "update.strategies[0]"},
		{name: "marker without pattern", body: "update:\n  strategies:\n    - kind: marker\n", want: "marker requires a pattern"},
		{name: "unknown kind", body: "update:\n  strategies:\n    - kind: guess\n", want: "unknown strategy kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(New(), writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
