package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDialectsCommand_ListsRegisteredDialects(t *testing.T) {
	cmd := NewDialectsCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "ansi")
	assert.Contains(t, out, "athena")
}
