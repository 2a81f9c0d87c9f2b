// Package harness runs single-patient scenarios described in YAML: a
// module set, a fixed profile, and a seed, executed through the real
// engine. Scenario traces back assertions and golden files, so module
// authors can pin the exact behavior of a pathway without writing Go.
package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario describes one deterministic single-patient run.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario pins down.
	Description string `yaml:"description"`

	// Modules lists module JSON files, relative to the scenario file.
	Modules []string `yaml:"modules"`

	// Seed is the run seed; with Index it names the patient's stream.
	Seed uint64 `yaml:"seed"`

	// Index is the patient index to simulate.
	Index int `yaml:"index"`

	// End is the simulation end date, YYYY-MM-DD.
	End string `yaml:"end"`

	// StepHours is the clock step. Zero means the engine default.
	StepHours int `yaml:"step_hours,omitempty"`

	// Profile fixes the patient's demographics instead of sampling them.
	Profile Profile `yaml:"profile"`

	// Assertions validate the resulting trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Profile is the scenario's fixed demographic seed.
type Profile struct {
	Sex        string         `yaml:"sex"`
	BirthDate  string         `yaml:"birth_date"`
	Attributes map[string]any `yaml:"attributes,omitempty"`
}

// Assertion validates one aspect of the trace.
type Assertion struct {
	// Type is one of trace_contains, trace_count, trace_order.
	Type string `yaml:"type"`

	// Kind filters events by kind (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Code filters by clinical code value (trace_contains, trace_count).
	Code string `yaml:"code,omitempty"`

	// State filters by emitting state name (trace_contains).
	State string `yaml:"state,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Kinds is the expected kind order, as a subsequence of the trace
	// (trace_order).
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceCount    = "trace_count"
	AssertTraceOrder    = "trace_order"
)

// LoadScenario reads and parses a scenario file. Unknown YAML fields
// are rejected, so a typoed key fails the load instead of silently
// weakening the scenario.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Modules) == 0 {
		return fmt.Errorf("modules list is required")
	}
	if s.End == "" {
		return fmt.Errorf("end date is required")
	}
	if _, err := time.Parse(time.DateOnly, s.End); err != nil {
		return fmt.Errorf("end date: %w", err)
	}
	if s.StepHours < 0 {
		return fmt.Errorf("step_hours must be non-negative")
	}
	if s.Profile.Sex != "M" && s.Profile.Sex != "F" {
		return fmt.Errorf("profile sex must be M or F")
	}
	if _, err := time.Parse(time.DateOnly, s.Profile.BirthDate); err != nil {
		return fmt.Errorf("profile birth_date: %w", err)
	}
	for i, a := range s.Assertions {
		switch a.Type {
		case AssertTraceContains:
			if a.Kind == "" && a.Code == "" && a.State == "" {
				return fmt.Errorf("assertions[%d]: trace_contains needs a kind, code or state", i)
			}
		case AssertTraceCount:
			if a.Kind == "" && a.Code == "" {
				return fmt.Errorf("assertions[%d]: trace_count needs a kind or code", i)
			}
			if a.Count < 0 {
				return fmt.Errorf("assertions[%d]: count must be non-negative", i)
			}
		case AssertTraceOrder:
			if len(a.Kinds) == 0 {
				return fmt.Errorf("assertions[%d]: trace_order needs a kinds list", i)
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
	}
	return nil
}
