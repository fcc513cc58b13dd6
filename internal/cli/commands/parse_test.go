package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapsql/pkg/match"
)

func TestParseSQL_SimpleSelect(t *testing.T) {
	tree, err := ParseSQL("ansi", "select 1", nil)
	require.NoError(t, err)

	assert.Equal(t, "File", tree.Kind)
	assert.NotEmpty(t, tree.Children)
}

func TestParseSQL_UnknownDialect(t *testing.T) {
	_, err := ParseSQL("nope", "select 1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dialect")
}

func TestParseSQL_LexError(t *testing.T) {
	_, err := ParseSQL("ansi", "select a ~ b", nil)
	require.Error(t, err)
}

func TestParseSQL_CachesCompiledGraph(t *testing.T) {
	// Two calls against the same dialect must not error, and afterwards
	// compiledGraphFor's map (keyed by dialect name) holds an "ansi" entry.
	_, err := ParseSQL("ansi", "select 1", nil)
	require.NoError(t, err)
	_, err = ParseSQL("ansi", "select 2", nil)
	require.NoError(t, err)

	compiledGraphsMu.Lock()
	_, ok := compiledGraphs["ansi"]
	compiledGraphsMu.Unlock()
	assert.True(t, ok)
}

func TestNewParseCommand_TextOutput(t *testing.T) {
	cmd := NewParseCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"select 1"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "kind: File")
}

func TestNewParseCommand_JSONOutput(t *testing.T) {
	cmd := NewParseCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--json", "select 1"})

	require.NoError(t, cmd.Execute())

	var tree treeNode
	require.NoError(t, json.Unmarshal(buf.Bytes(), &tree))
	assert.Equal(t, "File", tree.Kind)
}

func TestNewParseCommand_FileFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "query.sql")
	require.NoError(t, os.WriteFile(path, []byte("select 1"), 0o644))

	cmd := NewParseCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--file", path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "kind: File")
}

func TestReadSQL_NoInputErrors(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	require.NoError(t, w.Close())

	orig := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = orig }()

	_, err = readSQL(nil, "")
	require.Error(t, err)
}

func TestReadSQL_FromArg(t *testing.T) {
	sql, err := readSQL([]string{"select 1"}, "")
	require.NoError(t, err)
	assert.Equal(t, "select 1", sql)
}

func TestPrintTextTree_IndentsChildren(t *testing.T) {
	tree, err := ParseSQL("ansi", "select 1", match.IndentationConfig{})
	require.NoError(t, err)

	var b strings.Builder
	printTextTree(&b, tree, 0)
	assert.NotEmpty(t, b.String())
}
