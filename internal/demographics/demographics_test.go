package demographics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/rng"
)

var end = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewRejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no end date", Options{MaxAge: 90}},
		{"inverted age window", Options{End: end, MinAge: 40, MaxAge: 20}},
		{"negative min age", Options{End: end, MinAge: -1, MaxAge: 90}},
		{"ratio above one", Options{End: end, MaxAge: 90, MaleRatio: 1.3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestProfileIsDeterministic(t *testing.T) {
	m, err := New(Options{End: end})
	require.NoError(t, err)

	for index := 0; index < 10; index++ {
		a := m.Profile(rng.ForPatient(7, index, 0), index)
		b := m.Profile(rng.ForPatient(7, index, 0), index)
		assert.Equal(t, a, b, "same sub-seed must yield the same profile")
	}
}

func TestDistinctIndicesGetDistinctProfiles(t *testing.T) {
	m, err := New(Options{End: end})
	require.NoError(t, err)

	seen := map[string]bool{}
	for index := 0; index < 50; index++ {
		seen[fmt.Sprintf("%+v", m.Profile(rng.ForPatient(7, index, 0), index))] = true
	}
	// Collisions in small name tables happen; full-profile collisions
	// across 50 patients mean the streams overlap.
	assert.Greater(t, len(seen), 45)
}

func TestBirthDatesStayInsideAgeWindow(t *testing.T) {
	m, err := New(Options{End: end, MinAge: 18, MaxAge: 65})
	require.NoError(t, err)

	oldest := end.AddDate(-65, 0, 0)
	youngest := end.AddDate(-18, 0, 0)
	for index := 0; index < 200; index++ {
		p := m.Profile(rng.ForPatient(3, index, 0), index)
		assert.False(t, p.BirthDate.Before(oldest), "patient %d born %s, too old", index, p.BirthDate)
		assert.False(t, p.BirthDate.After(youngest), "patient %d born %s, too young", index, p.BirthDate)
		assert.Equal(t, time.UTC, p.BirthDate.Location())
	}
}

func TestSexRatioConverges(t *testing.T) {
	m, err := New(Options{End: end, MaleRatio: 0.3})
	require.NoError(t, err)

	males := 0
	const n = 2000
	for index := 0; index < n; index++ {
		if m.Profile(rng.ForPatient(11, index, 0), index).Sex == person.Male {
			males++
		}
	}
	assert.InDelta(t, 0.3, float64(males)/n, 0.03)
}

func TestAttemptSaltChangesProfile(t *testing.T) {
	m, err := New(Options{End: end})
	require.NoError(t, err)

	a := m.Profile(rng.ForPatient(7, 4, 0), 4)
	b := m.Profile(rng.ForPatient(7, 4, 1), 4)
	assert.NotEqual(t, a, b, "regeneration attempts must not replay the profile")
}
