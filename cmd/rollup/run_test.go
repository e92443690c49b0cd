package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseViewRef(t *testing.T) {
	owner, project, view, err := parseViewRef("acme/3/12")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, 3, project)
	assert.Equal(t, 12, view)

	for _, bad := range []string{"acme", "acme/3", "/3/1", "acme/x/1", "acme/3/0", "acme/3/1/2"} {
		_, _, _, err := parseViewRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestNeedsCustomFields(t *testing.T) {
	assert.False(t, needsCustomFields(""))
	assert.False(t, needsCustomFields("labels"))
	assert.False(t, needsCustomFields("State"))
	assert.True(t, needsCustomFields("Status"))
	assert.True(t, needsCustomFields("Target Date"))
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rollup.yaml")
	require.NoError(t, os.WriteFile(path, []byte("report:\n  search: repo:acme/widgets\n  group_by: Status\nupdate:\n  count: 3\n"), 0o600))

	cmd := newReportCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--group-by", "Priority", "--strategy", "section:Status|last-week", "--strategy", "blame"}))
	configPath = path
	t.Cleanup(func() { configPath = "" })

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "repo:acme/widgets", cfg.Report.Search)
	assert.Equal(t, "Priority", cfg.Report.GroupBy)
	assert.Equal(t, 3, cfg.Update.Count, "unset flags keep file values")

	chain, err := cfg.Update.Chain()
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "Status", chain[0].Section)
}

func TestParseCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"parse", "--actor", "alice", `fix* state:open assignee:@me status:"In Progress"`})

	require.NoError(t, root.Execute())
	got := out.String()
	assert.Contains(t, got, "title\tfix*")
	assert.Contains(t, got, "builtin\tstate:open")
	assert.Contains(t, got, "builtin\tassignee:alice")
	assert.Contains(t, got, "custom\t")
	assert.Contains(t, got, "fetches custom fields: status")
}

func TestParseCmd_InvalidQuery(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"parse", `title:"open`})
	assert.Error(t, root.Execute())
}
