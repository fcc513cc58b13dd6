package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{name: "default version", version: "0.1.0", want: "leapsql v0.1.0\n"},
		{name: "dev version", version: "dev", want: "leapsql vdev\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewVersionCommand(tt.version)
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestVersionCommandMetadata(t *testing.T) {
	cmd := NewVersionCommand("test")

	assert.Equal(t, "version", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
}
