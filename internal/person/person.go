// Package person holds the mutable per-patient simulation state: identity,
// demographics, the typed attribute store, and the active clinical context
// (conditions, medications, care plans, symptoms) that predicates test
// against. A Person is exclusively owned by the worker simulating it.
package person

import (
	"sort"
	"time"

	"github.com/cohortgen/cohortgen/internal/rng"
)

// Sex is the administrative sex recorded for a patient.
type Sex string

const (
	Male   Sex = "M"
	Female Sex = "F"
)

// Profile is the demographic seed for one patient, produced by the
// population model before simulation starts. Everything downstream of the
// profile is derived inside the engine.
type Profile struct {
	FirstName string
	LastName  string
	Sex       Sex
	Race      string
	Ethnicity string
	City      string
	State     string
	Income    int
	BirthDate time.Time

	// Attributes seeds the patient's attribute store before any module runs.
	Attributes map[string]any
}

// Person is one simulated patient. All fields are owned by a single
// worker for the duration of the simulation; nothing here is shared.
type Person struct {
	ID        string
	Index     int
	FirstName string
	LastName  string
	Sex       Sex
	Race      string
	Ethnicity string
	City      string
	State     string
	Income    int
	BirthDate time.Time

	// DeathDate is nil while the patient is alive.
	DeathDate *time.Time

	Attributes *Attributes

	symptoms    map[string]int
	conditions  map[string]bool
	medications map[string]bool
	carePlans   map[string]bool
	visited     map[string]map[string]bool
}

// New builds a Person from a profile. The identifier is drawn from src so
// the same (seed, index) pair always names the same patient.
func New(profile Profile, index int, src *rng.Source) (*Person, error) {
	p := &Person{
		ID:          src.NewID(),
		Index:       index,
		FirstName:   profile.FirstName,
		LastName:    profile.LastName,
		Sex:         profile.Sex,
		Race:        profile.Race,
		Ethnicity:   profile.Ethnicity,
		City:        profile.City,
		State:       profile.State,
		Income:      profile.Income,
		BirthDate:   profile.BirthDate,
		Attributes:  NewAttributes(),
		symptoms:    make(map[string]int),
		conditions:  make(map[string]bool),
		medications: make(map[string]bool),
		carePlans:   make(map[string]bool),
		visited:     make(map[string]map[string]bool),
	}

	// Seed attributes in sorted order so any future hook observing writes
	// sees a stable sequence.
	names := make([]string, 0, len(profile.Attributes))
	for n := range profile.Attributes {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := p.Attributes.Set(n, profile.Attributes[n]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Alive reports whether the patient has not died.
func (p *Person) Alive() bool {
	return p.DeathDate == nil
}

// Die records the death time. Subsequent calls keep the first time.
func (p *Person) Die(at time.Time) {
	if p.DeathDate != nil {
		return
	}
	t := at
	p.DeathDate = &t
}

// AgeAt returns the patient's age at t in fractional years, using the
// 365-day year convention shared with duration sampling.
func (p *Person) AgeAt(t time.Time) float64 {
	if t.Before(p.BirthDate) {
		return 0
	}
	return t.Sub(p.BirthDate).Hours() / (24 * 365)
}

// OnsetCondition marks the condition code active.
func (p *Person) OnsetCondition(code string) {
	p.conditions[code] = true
}

// EndCondition clears the condition code. Clearing an inactive code is a
// no-op.
func (p *Person) EndCondition(code string) {
	delete(p.conditions, code)
}

// HasActiveCondition reports whether the condition code is active.
func (p *Person) HasActiveCondition(code string) bool {
	return p.conditions[code]
}

// StartMedication marks the medication code active.
func (p *Person) StartMedication(code string) {
	p.medications[code] = true
}

// EndMedication clears the medication code.
func (p *Person) EndMedication(code string) {
	delete(p.medications, code)
}

// HasActiveMedication reports whether the medication code is active.
func (p *Person) HasActiveMedication(code string) bool {
	return p.medications[code]
}

// StartCarePlan marks the care plan code active.
func (p *Person) StartCarePlan(code string) {
	p.carePlans[code] = true
}

// EndCarePlan clears the care plan code.
func (p *Person) EndCarePlan(code string) {
	delete(p.carePlans, code)
}

// HasActiveCarePlan reports whether the care plan code is active.
func (p *Person) HasActiveCarePlan(code string) bool {
	return p.carePlans[code]
}

// RecordVisit marks a module state as visited. The interpreter calls this
// on every state execution; the set backs prior-state predicates.
func (p *Person) RecordVisit(module, state string) {
	set, ok := p.visited[module]
	if !ok {
		set = make(map[string]bool)
		p.visited[module] = set
	}
	set[state] = true
}

// HasVisited reports whether the patient has ever executed the named
// state. An empty module matches the state name in any module.
func (p *Person) HasVisited(module, state string) bool {
	if module != "" {
		return p.visited[module][state]
	}
	for _, set := range p.visited {
		if set[state] {
			return true
		}
	}
	return false
}

// SetSymptom records the current severity (0-100) of a named symptom.
func (p *Person) SetSymptom(name string, severity int) {
	p.symptoms[name] = severity
}

// Symptom returns the current severity of a named symptom, 0 if unset.
func (p *Person) Symptom(name string) int {
	return p.symptoms[name]
}

// SymptomNames returns the recorded symptom names in sorted order.
func (p *Person) SymptomNames() []string {
	names := make([]string, 0, len(p.symptoms))
	for n := range p.symptoms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
