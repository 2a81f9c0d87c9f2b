// Package validate runs post-hoc consistency checks over completed
// patient records. The engine's invariants should make every check
// pass; the checks exist to catch module authoring mistakes and engine
// regressions before output ships anywhere.
package validate

import (
	"fmt"

	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/record"
)

// Check names, used to group issues in reports.
const (
	CheckEventOrder   = "event_order"
	CheckLifespan     = "lifespan"
	CheckSpan         = "event_span"
	CheckEncounterRef = "encounter_ref"
	CheckDeath        = "death_terminal"
)

// Issue is one failed check. Event is the offending event index, -1 for
// patient-level issues.
type Issue struct {
	PatientID string
	Check     string
	Event     int
	Message   string
}

func (i Issue) String() string {
	if i.Event < 0 {
		return fmt.Sprintf("%s: %s: %s", i.PatientID, i.Check, i.Message)
	}
	return fmt.Sprintf("%s: %s: event %d: %s", i.PatientID, i.Check, i.Event, i.Message)
}

// Report accumulates checks across a population.
type Report struct {
	Patients int
	Events   int
	Issues   []Issue
}

// OK reports whether every check passed.
func (r *Report) OK() bool {
	return len(r.Issues) == 0
}

// Add checks one patient and folds the result into the report.
func (r *Report) Add(p *person.Person, rec *record.Record) {
	r.Patients++
	r.Events += rec.Len()
	r.Issues = append(r.Issues, Patient(p, rec)...)
}

// Patient runs every check against one patient's record.
func Patient(p *person.Person, rec *record.Record) []Issue {
	var issues []Issue
	add := func(check string, event int, format string, args ...any) {
		issues = append(issues, Issue{
			PatientID: p.ID,
			Check:     check,
			Event:     event,
			Message:   fmt.Sprintf(format, args...),
		})
	}

	encounters := map[string]bool{}
	for _, e := range rec.Events() {
		if e.Kind == record.KindEncounter {
			encounters[e.ID] = true
		}
	}

	deathAt := -1
	for i, e := range rec.Events() {
		if i > 0 && e.Start.Before(rec.Event(i-1).Start) {
			add(CheckEventOrder, i, "starts %s, before previous event at %s",
				e.Start.Format("2006-01-02"), rec.Event(i-1).Start.Format("2006-01-02"))
		}
		if e.Start.Before(p.BirthDate) {
			add(CheckLifespan, i, "starts %s, before birth %s",
				e.Start.Format("2006-01-02"), p.BirthDate.Format("2006-01-02"))
		}
		if p.DeathDate != nil && e.Start.After(*p.DeathDate) {
			add(CheckLifespan, i, "starts %s, after death %s",
				e.Start.Format("2006-01-02"), p.DeathDate.Format("2006-01-02"))
		}
		if !e.Stop.IsZero() && e.Stop.Before(e.Start) {
			add(CheckSpan, i, "stops %s before it starts %s",
				e.Stop.Format("2006-01-02"), e.Start.Format("2006-01-02"))
		}
		if e.EncounterID != "" && !encounters[e.EncounterID] {
			add(CheckEncounterRef, i, "references encounter %q, which is not in the record", e.EncounterID)
		}
		if deathAt >= 0 {
			add(CheckDeath, i, "follows the death event at index %d", deathAt)
		}
		if e.Kind == record.KindDeath {
			deathAt = i
		}
	}

	if deathAt >= 0 && p.DeathDate == nil {
		add(CheckDeath, deathAt, "death event recorded for a living patient")
	}
	if deathAt < 0 && p.DeathDate != nil && rec.Len() > 0 {
		last := rec.Event(rec.Len() - 1)
		if last.Start.After(*p.DeathDate) {
			add(CheckDeath, rec.Len()-1, "record continues past death %s",
				p.DeathDate.Format("2006-01-02"))
		}
	}
	return issues
}
