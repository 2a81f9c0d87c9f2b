package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// executeCommand runs the root command with args and captures stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

const snifflesModule = `{
  "name": "sniffles",
  "states": {
    "Initial": {"type": "Initial", "direct_transition": "Onset"},
    "Onset": {
      "type": "ConditionOnset",
      "code": {"system": "SNOMED-CT", "code": "82272006", "display": "Common cold"},
      "direct_transition": "Terminal"
    },
    "Terminal": {"type": "Terminal"}
  }
}`

const lopsidedModule = `{
  "name": "lopsided",
  "states": {
    "Initial": {
      "type": "Initial",
      "distributed_transition": [
        {"transition": "Terminal", "distribution": 0.5},
        {"transition": "Terminal", "distribution": 0.2}
      ]
    },
    "Terminal": {"type": "Terminal"}
  }
}`

// writeModules lays out a module directory for command tests.
func writeModules(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}
