// Package testutil provides deterministic test doubles shared across
// packages: fixed demographic profiles and small module graphs with
// known behavior.
package testutil

import (
	"time"

	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/rng"
)

// FixedProfileSource returns the same demographic profile for every
// patient, consuming no randomness.
//
// Engine tests use it so the only random draws in a simulation are the
// ones the module under test declares, which makes draw sequences easy
// to reason about. It satisfies engine.ProfileSource.
type FixedProfileSource struct {
	P person.Profile
}

// Profile returns the fixed profile regardless of src and index.
func (f FixedProfileSource) Profile(_ *rng.Source, _ int) person.Profile {
	return f.P
}

// DefaultProfile is a plain adult profile born at the given date.
func DefaultProfile(birth time.Time) person.Profile {
	return person.Profile{
		FirstName: "Test",
		LastName:  "Patient",
		Sex:       person.Female,
		Race:      "white",
		Ethnicity: "non_hispanic",
		City:      "Boston",
		State:     "Massachusetts",
		BirthDate: birth,
	}
}
