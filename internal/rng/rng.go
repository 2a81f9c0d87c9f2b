// Package rng provides deterministic per-patient random sources.
//
// Every patient in a run draws from its own Source, derived from the run
// seed and the patient's stable index. Derivation never consults wall-clock
// time, goroutine identity, or completion order, so a (seed, index) pair
// names the same random stream on every machine and at every concurrency
// level.
package rng

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// Source is the random stream owned by exactly one patient simulation.
// It is not safe for concurrent use; ownership transfers with the patient.
//
// Source also implements io.Reader over the stream so that identifiers
// (UUIDs) can be drawn from the same deterministic sequence as every other
// sample.
type Source struct {
	*rand.Rand

	carry  uint64
	nCarry int
}

// New returns a Source seeded directly with the given pair.
func New(seed1, seed2 uint64) *Source {
	return &Source{Rand: rand.New(rand.NewPCG(seed1, seed2))}
}

// ForPatient derives the Source for one patient attempt.
//
// The attempt counter salts the stream when a patient is regenerated (for
// example under an only-living policy) so that retries do not replay the
// identical lifetime. Attempt 0 is the canonical stream for (runSeed, index).
//
// The derivation is a fixed contract: changing it invalidates recorded runs.
func ForPatient(runSeed uint64, index, attempt int) *Source {
	s1 := mix(runSeed ^ (0x9e3779b97f4a7c15 * (uint64(index) + 1)))
	s2 := mix(s1 ^ (0xd1342543de82ef95 * (uint64(attempt) + 1)))
	return New(s1, s2)
}

// mix is the splitmix64 finalizer. It spreads adjacent indices across the
// seed space so patient 0 and patient 1 share no stream prefix.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// Read fills p from the stream. It never fails; the error is always nil.
// Leftover bytes from a 64-bit draw are carried over to the next call, so
// mixed-width consumers still see one contiguous stream.
func (s *Source) Read(p []byte) (int, error) {
	for i := range p {
		if s.nCarry == 0 {
			s.carry = s.Uint64()
			s.nCarry = 8
		}
		p[i] = byte(s.carry)
		s.carry >>= 8
		s.nCarry--
	}
	return len(p), nil
}

// NewID returns a version 4 UUID drawn from the stream.
func (s *Source) NewID() string {
	id, err := uuid.NewRandomFromReader(s)
	if err != nil {
		// NewRandomFromReader only fails if the reader fails, and Read never does.
		panic("rng: uuid generation failed: " + err.Error())
	}
	return id.String()
}

// IntBetween returns a uniform integer in [low, high]. low > high is
// treated as the empty range and returns low.
func (s *Source) IntBetween(low, high int) int {
	if low >= high {
		return low
	}
	return low + s.IntN(high-low+1)
}

// Float64Between returns a uniform value in [low, high).
func (s *Source) Float64Between(low, high float64) float64 {
	if low >= high {
		return low
	}
	return low + s.Float64()*(high-low)
}

// SeedPair reports the derived seed pair for a patient attempt without
// constructing a Source. Exposed for run metadata and replay tooling.
func SeedPair(runSeed uint64, index, attempt int) (uint64, uint64) {
	s1 := mix(runSeed ^ (0x9e3779b97f4a7c15 * (uint64(index) + 1)))
	s2 := mix(s1 ^ (0xd1342543de82ef95 * (uint64(attempt) + 1)))
	return s1, s2
}
