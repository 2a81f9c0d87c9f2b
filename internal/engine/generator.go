package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/cohortgen/cohortgen/internal/pathway"
	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/record"
	"github.com/cohortgen/cohortgen/internal/rng"
)

// DefaultStep is the clock step used when none is configured: one week of
// simulated time per tick.
const DefaultStep = 7 * 24 * time.Hour

// defaultMaxAttempts bounds only-living regeneration so a lethal module
// set cannot retry forever.
const defaultMaxAttempts = 10

// ProfileSource supplies the demographic seed for each patient. The
// source draws are part of the patient's deterministic stream: a
// ProfileSource must take all randomness from src, in a fixed order.
type ProfileSource interface {
	Profile(src *rng.Source, index int) person.Profile
}

// Config assembles a Generator.
type Config struct {
	// Modules is the validated module set, keyed by module name.
	Modules map[string]*pathway.Module

	// Profiles seeds each patient's demographics.
	Profiles ProfileSource

	// Seed is the run seed every patient sub-seed derives from.
	Seed uint64

	// End is the simulation end date. Patients stop at death or here.
	End time.Time

	// Step is the clock step; zero means DefaultStep.
	Step time.Duration

	// StepBudget caps states per instance per tick; zero means
	// DefaultStepBudget.
	StepBudget int

	// LenientWeights renormalizes any positive distributed weight sum
	// instead of rejecting sums outside tolerance.
	LenientWeights bool

	// Unmatched picks the behavior of an unmatched conditional transition.
	Unmatched UnmatchedPolicy

	// OnlyLiving regenerates patients who die before End, up to
	// MaxAttempts, with an attempt-salted sub-seed.
	OnlyLiving bool

	// MaxAttempts bounds only-living regeneration; zero means
	// defaultMaxAttempts.
	MaxAttempts int

	// Log receives progress and retry diagnostics; nil means slog.Default.
	Log *slog.Logger
}

// Generator produces complete patient lifetimes. It is safe for
// concurrent use: all mutable state lives in per-call values, and the
// module set is read-only.
type Generator struct {
	cfg     Config
	ordered []*pathway.Module
	interp  *Interpreter
	log     *slog.Logger
}

// NewGenerator validates the run configuration and module set. Run-fatal
// problems (no modules, an invalid graph, a missing end date) surface
// here as *ConfigError before any patient simulates.
func NewGenerator(cfg Config) (*Generator, error) {
	if len(cfg.Modules) == 0 {
		return nil, &ConfigError{Field: "modules", Message: "no modules loaded"}
	}
	if cfg.Profiles == nil {
		return nil, &ConfigError{Field: "profiles", Message: "no profile source"}
	}
	if cfg.End.IsZero() {
		return nil, &ConfigError{Field: "end", Message: "no simulation end date"}
	}
	if cfg.Step == 0 {
		cfg.Step = DefaultStep
	}
	if cfg.Step < 0 {
		return nil, &ConfigError{Field: "step", Message: "clock step must be positive"}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	ordered := make([]*pathway.Module, 0, len(cfg.Modules))
	for name, m := range cfg.Modules {
		if m == nil {
			return nil, &ConfigError{Field: "modules", Message: "module " + name + " is nil"}
		}
		if err := m.Validate(); err != nil {
			return nil, &ConfigError{Field: "modules", Message: "invalid module", Err: err}
		}
		ordered = append(ordered, m)
	}
	// Evaluation order is part of the determinism contract: priority
	// first, then name. Creation order, the final tiebreak, is this
	// slice's order.
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].Name < ordered[j].Name
	})

	return &Generator{
		cfg:     cfg,
		ordered: ordered,
		interp:  NewInterpreter(cfg.Modules, cfg.LenientWeights, cfg.Unmatched),
		log:     cfg.Log,
	}, nil
}

// Modules returns the module set in evaluation order.
func (g *Generator) Modules() []*pathway.Module {
	return g.ordered
}

// Patient simulates one complete lifetime. The result is a function of
// (run seed, index, module set, end date) only.
//
// Under OnlyLiving, a patient who dies before End is regenerated with an
// attempt-salted sub-seed; after MaxAttempts the deceased patient is kept
// rather than failing the slot.
func (g *Generator) Patient(ctx context.Context, index int) (*person.Person, *record.Record, error) {
	attempts := 1
	if g.cfg.OnlyLiving {
		attempts = g.cfg.MaxAttempts
	}

	var (
		p   *person.Person
		rec *record.Record
	)
	for attempt := 0; attempt < attempts; attempt++ {
		src := rng.ForPatient(g.cfg.Seed, index, attempt)
		profile := g.cfg.Profiles.Profile(src, index)

		var err error
		p, err = person.New(profile, index, src)
		if err != nil {
			kind := Classify(err)
			if kind == "" {
				kind = FailAttributeType
			}
			return nil, nil, &SimError{Kind: kind, Index: index, Message: "profile attributes", Err: err}
		}

		rec, err = g.simulate(ctx, p, src)
		if err != nil {
			return nil, nil, err
		}
		if p.Alive() || !g.cfg.OnlyLiving {
			return p, rec, nil
		}
		g.log.Debug("patient died before run end, regenerating",
			"index", index,
			"attempt", attempt,
			"died", p.DeathDate.Format(time.DateOnly))
	}

	g.log.Warn("only-living retries exhausted, keeping deceased patient",
		"index", index,
		"attempts", attempts)
	return p, rec, nil
}
