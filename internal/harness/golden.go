package harness

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot is the golden file shape: the scenario name, a summary
// of the patient, and the reduced trace.
type TraceSnapshot struct {
	Scenario string         `json:"scenario"`
	Patient  PatientSummary `json:"patient"`
	Trace    []TraceEvent   `json:"trace"`
}

// PatientSummary holds the demographic facts a golden trace pins.
type PatientSummary struct {
	Sex       string `json:"sex"`
	BirthDate string `json:"birth_date"`
	DeathDate string `json:"death_date,omitempty"`
}

// AssertGolden compares a result against testdata/golden/<name>.golden.
// Regenerate with:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, r *Result) {
	t.Helper()

	snapshot := TraceSnapshot{
		Scenario: name,
		Patient: PatientSummary{
			Sex:       string(r.Person.Sex),
			BirthDate: r.Person.BirthDate.Format(time.DateOnly),
		},
		Trace: r.Trace,
	}
	if r.Person.DeathDate != nil {
		snapshot.Patient.DeathDate = r.Person.DeathDate.Format(time.DateOnly)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.Fatalf("marshal trace snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
