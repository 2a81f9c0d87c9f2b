// Package record models the clinical record one patient accumulates over
// a simulated lifetime: an append-only, causally ordered sequence of
// emitted events. The record is owned by the worker simulating its
// patient and is read-only once the simulation completes.
package record

import (
	"fmt"
	"time"

	"github.com/cohortgen/cohortgen/internal/pathway"
)

// Kind discriminates event rows.
type Kind string

const (
	KindEncounter   Kind = "encounter"
	KindCondition   Kind = "condition"
	KindMedication  Kind = "medication"
	KindProcedure   Kind = "procedure"
	KindObservation Kind = "observation"
	KindCarePlan    Kind = "careplan"
	KindDeath       Kind = "death"
)

// Kinds lists every event kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindEncounter,
		KindCondition,
		KindMedication,
		KindProcedure,
		KindObservation,
		KindCarePlan,
		KindDeath,
	}
}

// Event is one emitted clinical fact. Every event is tagged with the
// module and state that produced it and, when one was open, the enclosing
// encounter. Fields beyond the shared set apply to specific kinds:
// Class to encounters, Value and Unit to observations, Reason to
// encounters, medications and procedures.
type Event struct {
	ID          string
	Kind        Kind
	Code        pathway.Code
	Start       time.Time
	Stop        time.Time // zero while the event is open or for instants
	EncounterID string
	Module      string
	State       string

	Class  string
	Reason string
	Value  float64
	Unit   string
}

// Open reports whether the event has not been closed.
func (e Event) Open() bool {
	return e.Stop.IsZero()
}

// Record is the per-patient event sequence. Append is the only way in;
// events keep their position forever. Closing an open event fills its
// Stop time in place, which is the one sanctioned completion of an
// already appended row.
type Record struct {
	PatientID string
	events    []Event
}

// New returns an empty record for a patient.
func New(patientID string) *Record {
	return &Record{PatientID: patientID}
}

// Append adds an event and returns its index, the handle used to close it
// later.
func (r *Record) Append(e Event) int {
	r.events = append(r.events, e)
	return len(r.events) - 1
}

// Close sets the Stop time of an open event. Closing an event that is
// already closed, or an index out of range, is an error.
func (r *Record) Close(i int, at time.Time) error {
	if i < 0 || i >= len(r.events) {
		return fmt.Errorf("close event %d: index out of range (have %d events)", i, len(r.events))
	}
	if !r.events[i].Open() {
		return fmt.Errorf("close event %d (%s %s): already closed at %s",
			i, r.events[i].Kind, r.events[i].Code.Value, r.events[i].Stop.Format(time.RFC3339))
	}
	r.events[i].Stop = at
	return nil
}

// Events returns the underlying sequence. Callers must treat it as
// read-only.
func (r *Record) Events() []Event {
	return r.events
}

// Event returns the event at index i.
func (r *Record) Event(i int) Event {
	return r.events[i]
}

// Len reports the number of events.
func (r *Record) Len() int {
	return len(r.events)
}

// CountKind reports how many events of one kind the record holds.
func (r *Record) CountKind(k Kind) int {
	n := 0
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// FirstOfKind returns the first event of a kind, useful for tests and
// validation checks.
func (r *Record) FirstOfKind(k Kind) (Event, bool) {
	for _, e := range r.events {
		if e.Kind == k {
			return e, true
		}
	}
	return Event{}, false
}
