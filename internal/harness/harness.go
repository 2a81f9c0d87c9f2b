package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cohortgen/cohortgen/internal/engine"
	"github.com/cohortgen/cohortgen/internal/loader"
	"github.com/cohortgen/cohortgen/internal/pathway"
	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/record"
	"github.com/cohortgen/cohortgen/internal/rng"
)

// TraceEvent is one record event reduced to its stable surface.
// Identifiers are deliberately excluded so traces and goldens survive
// id scheme changes; ordering and encounter nesting still show through
// the in_encounter flag.
type TraceEvent struct {
	Kind        string  `json:"kind"`
	System      string  `json:"system,omitempty"`
	Code        string  `json:"code,omitempty"`
	Display     string  `json:"display,omitempty"`
	Start       string  `json:"start"`
	Stop        string  `json:"stop,omitempty"`
	Module      string  `json:"module"`
	State       string  `json:"state"`
	InEncounter bool    `json:"in_encounter,omitempty"`
	Value       float64 `json:"value,omitempty"`
	Unit        string  `json:"unit,omitempty"`
}

// Result is a completed scenario execution.
type Result struct {
	Person *person.Person
	Record *record.Record
	Trace  []TraceEvent
}

// fixedProfile feeds the scenario's demographics to the engine without
// consuming any draws, keeping the module's stream identical to a run
// where profiles are sampled elsewhere.
type fixedProfile struct {
	p person.Profile
}

func (f fixedProfile) Profile(_ *rng.Source, _ int) person.Profile {
	return f.p
}

// Run executes a scenario. Module paths resolve relative to baseDir,
// normally the scenario file's directory.
func Run(s *Scenario, baseDir string) (*Result, error) {
	l, err := loader.New(loader.Options{})
	if err != nil {
		return nil, err
	}
	modules := make(map[string]*pathway.Module, len(s.Modules))
	for _, file := range s.Modules {
		m, err := l.LoadFile(filepath.Join(baseDir, file))
		if err != nil {
			return nil, err
		}
		if _, dup := modules[m.Name]; dup {
			return nil, fmt.Errorf("scenario %q: module %q listed twice", s.Name, m.Name)
		}
		modules[m.Name] = m
	}

	end, err := time.Parse(time.DateOnly, s.End)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: end date: %w", s.Name, err)
	}
	birth, err := time.Parse(time.DateOnly, s.Profile.BirthDate)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: birth date: %w", s.Name, err)
	}

	g, err := engine.NewGenerator(engine.Config{
		Modules: modules,
		Profiles: fixedProfile{p: person.Profile{
			Sex:        person.Sex(s.Profile.Sex),
			BirthDate:  birth,
			Attributes: s.Profile.Attributes,
		}},
		Seed: s.Seed,
		End:  end,
		Step: time.Duration(s.StepHours) * time.Hour,
	})
	if err != nil {
		return nil, err
	}

	p, rec, err := g.Patient(context.Background(), s.Index)
	if err != nil {
		return nil, err
	}
	return &Result{Person: p, Record: rec, Trace: trace(rec)}, nil
}

func trace(rec *record.Record) []TraceEvent {
	out := make([]TraceEvent, 0, rec.Len())
	for _, e := range rec.Events() {
		te := TraceEvent{
			Kind:        string(e.Kind),
			System:      e.Code.System,
			Code:        e.Code.Value,
			Display:     e.Code.Display,
			Start:       e.Start.Format(time.RFC3339),
			Module:      e.Module,
			State:       e.State,
			InEncounter: e.EncounterID != "",
			Value:       e.Value,
			Unit:        e.Unit,
		}
		if !e.Stop.IsZero() {
			te.Stop = e.Stop.Format(time.RFC3339)
		}
		out = append(out, te)
	}
	return out
}
