package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitErrorCarriesCode(t *testing.T) {
	err := NewExitError(ExitFailure, "three patients failed")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "three patients failed", err.Error())

	wrapped := WrapExitError(ExitCommandError, "opening database", errors.New("no such file"))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Contains(t, wrapped.Error(), "no such file")
	assert.Contains(t, wrapped.Error(), "opening database")
}

func TestExitErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "inner", cause))

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, errors.Is(err, cause))
}

func TestGetExitCodeDefaultsToCommandError(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("plain")))
}

func TestWriteJSONEnvelope(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, writeJSON(buf, map[string]int{"patients": 5}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestWriteJSONErrorEnvelope(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, writeJSONError(buf, "E_MODULE", "bad module", "weights sum to 0.7"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_MODULE", resp.Error.Code)
}
