package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandListsSubcommands(t *testing.T) {
	out, err := executeCommand(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"generate", "validate", "modules", "replay", "scenario", "stats"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootRejectsInvalidFormat(t *testing.T) {
	_, err := executeCommand(t, "--format", "xml", "modules", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootAcceptsValidFormats(t *testing.T) {
	for _, format := range ValidFormats {
		assert.True(t, isValidFormat(format))
	}
	assert.False(t, isValidFormat("yaml"))
}
