package engine

import (
	"context"
	"fmt"

	"github.com/cohortgen/cohortgen/internal/record"
)

// Replay is possible because a patient is a pure function of the run
// configuration: (run seed, patient index, module set, end date) fully
// determine the random stream, the profile, and therefore every event.
// Re-running a failed patient with debug logging reproduces the exact
// lifetime that failed, at any later time and on any machine.

// VerifyDeterminism simulates the same patient twice and reports the
// first divergence between the two event sequences. A healthy engine
// never diverges; a non-nil error here means nondeterminism leaked in
// (wall-clock reads, map iteration, a shared random source).
func VerifyDeterminism(ctx context.Context, g *Generator, index int) error {
	_, first, err := g.Patient(ctx, index)
	if err != nil {
		return fmt.Errorf("first run: %w", err)
	}
	_, second, err := g.Patient(ctx, index)
	if err != nil {
		return fmt.Errorf("second run: %w", err)
	}
	return diffRecords(first, second)
}

// diffRecords compares two event sequences field by field and describes
// the first mismatch.
func diffRecords(a, b *record.Record) error {
	if a.Len() != b.Len() {
		return fmt.Errorf("event count differs: %d vs %d", a.Len(), b.Len())
	}
	for i := 0; i < a.Len(); i++ {
		ea, eb := a.Event(i), b.Event(i)
		if ea != eb {
			return fmt.Errorf("event %d differs: %s %s at %s vs %s %s at %s",
				i,
				ea.Kind, ea.Code.Value, ea.Start.Format("2006-01-02"),
				eb.Kind, eb.Code.Value, eb.Start.Format("2006-01-02"))
		}
	}
	return nil
}
