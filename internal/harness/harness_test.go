package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenarioParsesFullDocument(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "delayed_onset.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "delayed_onset", s.Name)
	assert.Equal(t, []string{"checkup.json"}, s.Modules)
	assert.EqualValues(t, 42, s.Seed)
	assert.Equal(t, 24, s.StepHours)
	assert.Equal(t, "F", s.Profile.Sex)
	assert.Len(t, s.Assertions, 3)
}

func TestLoadScenarioRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: typo
modules: [m.json]
end: "2000-01-01"
profile:
  sex: F
  birth_date: "1980-01-01"
assertionz: []
`), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertionz")
}

func TestLoadScenarioValidation(t *testing.T) {
	write := func(t *testing.T, doc string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "s.yaml")
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
		return path
	}

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			"missing modules",
			"name: x\nend: \"2000-01-01\"\nprofile: {sex: F, birth_date: \"1980-01-01\"}\n",
			"modules",
		},
		{
			"bad end date",
			"name: x\nmodules: [m.json]\nend: someday\nprofile: {sex: F, birth_date: \"1980-01-01\"}\n",
			"end date",
		},
		{
			"bad sex",
			"name: x\nmodules: [m.json]\nend: \"2000-01-01\"\nprofile: {sex: X, birth_date: \"1980-01-01\"}\n",
			"sex",
		},
		{
			"bad assertion type",
			"name: x\nmodules: [m.json]\nend: \"2000-01-01\"\nprofile: {sex: F, birth_date: \"1980-01-01\"}\nassertions: [{type: nope}]\n",
			"unknown assertion type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(write(t, tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunDelayedOnsetScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "delayed_onset.yaml"))
	require.NoError(t, err)

	result, err := Run(s, "testdata")
	require.NoError(t, err)

	require.NoError(t, result.Check(s.Assertions))
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "condition", result.Trace[0].Kind)
	assert.Equal(t, "1980-03-19T00:00:00Z", result.Trace[0].Start,
		"an exact 7 day delay fires exactly one week after birth")

	AssertGolden(t, s.Name, result)
}

func TestRunIsRepeatable(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "delayed_onset.yaml"))
	require.NoError(t, err)

	a, err := Run(s, "testdata")
	require.NoError(t, err)
	b, err := Run(s, "testdata")
	require.NoError(t, err)
	assert.Equal(t, a.Trace, b.Trace)
	assert.Equal(t, a.Person.ID, b.Person.ID, "identifiers derive from the seed")
}

func TestCheckFailures(t *testing.T) {
	r := &Result{Trace: []TraceEvent{
		{Kind: "condition", Code: "1"},
		{Kind: "observation", Code: "2"},
	}}

	assert.Error(t, r.Check([]Assertion{{Type: AssertTraceContains, Code: "404"}}))
	assert.Error(t, r.Check([]Assertion{{Type: AssertTraceCount, Kind: "condition", Count: 2}}))
	assert.Error(t, r.Check([]Assertion{{Type: AssertTraceOrder, Kinds: []string{"observation", "condition"}}}))
	assert.NoError(t, r.Check([]Assertion{
		{Type: AssertTraceContains, Kind: "condition", Code: "1"},
		{Type: AssertTraceCount, Kind: "observation", Count: 1},
		{Type: AssertTraceOrder, Kinds: []string{"condition", "observation"}},
	}))
}
