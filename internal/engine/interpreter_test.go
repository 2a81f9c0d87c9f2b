package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortgen/cohortgen/internal/pathway"
	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/record"
	"github.com/cohortgen/cohortgen/internal/rng"
	"github.com/cohortgen/cohortgen/internal/testutil"
)

var (
	birth   = time.Date(1980, 3, 12, 0, 0, 0, 0, time.UTC)
	runEnd  = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	fluCode = pathway.Code{System: "SNOMED-CT", Value: "6142004", Display: "Influenza"}
)

// newGenerator builds a generator over the given modules with a fixed
// profile and daily ticks. mutate, when non-nil, adjusts the config
// before construction.
func newGenerator(t *testing.T, modules map[string]*pathway.Module, mutate func(*Config)) *Generator {
	t.Helper()
	cfg := Config{
		Modules:  modules,
		Profiles: testutil.FixedProfileSource{P: testutil.DefaultProfile(birth)},
		Seed:     42,
		End:      runEnd,
		Step:     24 * time.Hour,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	g, err := NewGenerator(cfg)
	require.NoError(t, err)
	return g
}

func TestDelayTransitionsExactlyAtDeadline(t *testing.T) {
	m := testutil.DelayThen("flu", 10, pathway.Days, fluCode)
	g := newGenerator(t, testutil.Modules(m), nil)

	_, rec, err := g.Patient(context.Background(), 0)
	require.NoError(t, err)

	ev, ok := rec.FirstOfKind(record.KindCondition)
	require.True(t, ok, "delay module should emit its condition")
	assert.Equal(t, birth.Add(10*24*time.Hour), ev.Start,
		"a 10-day delay with daily ticks fires on tick 10, not before or after")
}

func TestDelaySamplesOnceAndNeverResamples(t *testing.T) {
	m := &pathway.Module{
		Name: "ranged",
		States: map[string]pathway.State{
			"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Wait"}}},
			"Wait": &pathway.Delay{
				Base:     pathway.Base{Name: "Wait", Next: &pathway.DirectTransition{To: "Terminal"}},
				Duration: pathway.DurationSpec{Low: 5, High: 15, Unit: pathway.Days},
			},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
	require.NoError(t, m.Validate())

	interp := NewInterpreter(testutil.Modules(m), false, UnmatchedFails)
	env := newEnv(t)
	inst := NewInstance(m, 0, 0, env.Now)

	out, err := interp.Advance(inst, env)
	require.NoError(t, err)
	require.Equal(t, Blocked, out)
	deadline, sampled := inst.Deadline()
	require.True(t, sampled)

	// Re-evaluating on later ticks keeps the sampled deadline.
	for i := 0; i < 3; i++ {
		env.Now = env.Now.Add(24 * time.Hour)
		out, err = interp.Advance(inst, env)
		require.NoError(t, err)
		require.Equal(t, Blocked, out)
		again, _ := inst.Deadline()
		assert.Equal(t, deadline, again, "delay must not resample on re-evaluation")
	}

	env.Now = deadline
	out, err = interp.Advance(inst, env)
	require.NoError(t, err)
	assert.Equal(t, Completed, out)
}

// newEnv builds an interpreter environment positioned at birth.
func newEnv(t *testing.T) *Env {
	t.Helper()
	src := rng.ForPatient(7, 0, 0)
	p, err := person.New(testutil.DefaultProfile(birth), 0, src)
	require.NoError(t, err)
	return &Env{
		Person: p,
		Record: record.New(p.ID),
		Source: src,
		Open:   NewOpenEvents(),
		Now:    birth,
	}
}

func TestConditionalFirstTrueWins(t *testing.T) {
	pick := func(name string, code string) pathway.State {
		return &pathway.ConditionOnset{
			Base: pathway.Base{Name: name, Next: &pathway.DirectTransition{To: "Terminal"}},
			Code: pathway.Code{System: "SNOMED-CT", Value: code},
		}
	}
	m := &pathway.Module{
		Name: "choice",
		States: map[string]pathway.State{
			"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Branch"}}},
			"Branch": &pathway.Conditional{Base: pathway.Base{Name: "Branch", Next: &pathway.ConditionalTransition{
				Cases: []pathway.ConditionalCase{
					{If: pathway.False{}, To: "First"},
					{If: pathway.True{}, To: "Second"},
					{If: pathway.True{}, To: "Third"},
				},
			}}},
			"First":    pick("First", "1"),
			"Second":   pick("Second", "2"),
			"Third":    pick("Third", "3"),
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
	g := newGenerator(t, testutil.Modules(m), nil)

	_, rec, err := g.Patient(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, rec.CountKind(record.KindCondition))
	ev, _ := rec.FirstOfKind(record.KindCondition)
	assert.Equal(t, "2", ev.Code.Value, "the second case is the first true one")
}

func TestConditionalUnmatchedPolicies(t *testing.T) {
	build := func() *pathway.Module {
		return &pathway.Module{
			Name: "unmatched",
			States: map[string]pathway.State{
				"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Branch"}}},
				"Branch": &pathway.Conditional{Base: pathway.Base{Name: "Branch", Next: &pathway.ConditionalTransition{
					Cases: []pathway.ConditionalCase{{If: pathway.False{}, To: "Terminal"}},
				}}},
				"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
			},
		}
	}

	t.Run("default policy fails the patient", func(t *testing.T) {
		g := newGenerator(t, testutil.Modules(build()), nil)
		_, _, err := g.Patient(context.Background(), 0)
		require.Error(t, err)
		assert.True(t, IsTransitionError(err))
		se, ok := AsSimError(err)
		require.True(t, ok)
		assert.Equal(t, "unmatched", se.Module)
		assert.Equal(t, "Branch", se.State)
		assert.Equal(t, 0, se.Index)
	})

	t.Run("lenient policy ends the module", func(t *testing.T) {
		g := newGenerator(t, testutil.Modules(build()), func(c *Config) {
			c.Unmatched = UnmatchedEndsModule
		})
		p, rec, err := g.Patient(context.Background(), 0)
		require.NoError(t, err)
		assert.True(t, p.Alive())
		assert.Zero(t, rec.Len())
	})
}

func TestConditionalDefaultTaken(t *testing.T) {
	m := &pathway.Module{
		Name: "defaulted",
		States: map[string]pathway.State{
			"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Branch"}}},
			"Branch": &pathway.Conditional{Base: pathway.Base{Name: "Branch", Next: &pathway.ConditionalTransition{
				Cases:   []pathway.ConditionalCase{{If: pathway.False{}, To: "Terminal"}},
				Default: "Onset",
			}}},
			"Onset":    &pathway.ConditionOnset{Base: pathway.Base{Name: "Onset", Next: &pathway.DirectTransition{To: "Terminal"}}, Code: fluCode},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
	g := newGenerator(t, testutil.Modules(m), nil)
	_, rec, err := g.Patient(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.CountKind(record.KindCondition))
}

func TestMalformedDistribution(t *testing.T) {
	build := func() *pathway.Module {
		return &pathway.Module{
			Name: "skewed",
			States: map[string]pathway.State{
				"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Branch"}}},
				"Branch": &pathway.Distributed{Base: pathway.Base{Name: "Branch", Next: &pathway.DistributedTransition{
					Choices: []pathway.WeightedChoice{
						{Weight: 0.5, To: "Terminal"},
						{Weight: 0.2, To: "Terminal"},
					},
				}}},
				"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
			},
		}
	}

	t.Run("strict rejects weights outside tolerance", func(t *testing.T) {
		g := newGenerator(t, testutil.Modules(build()), nil)
		_, _, err := g.Patient(context.Background(), 0)
		require.Error(t, err)
		se, ok := AsSimError(err)
		require.True(t, ok)
		assert.Equal(t, FailMalformedDistribution, se.Kind)
	})

	t.Run("lenient renormalizes any positive sum", func(t *testing.T) {
		g := newGenerator(t, testutil.Modules(build()), func(c *Config) {
			c.LenientWeights = true
		})
		_, _, err := g.Patient(context.Background(), 0)
		assert.NoError(t, err)
	})
}

func TestStuckModuleExhaustsBudget(t *testing.T) {
	g := newGenerator(t, testutil.Modules(testutil.SelfLoop("spin")), func(c *Config) {
		c.StepBudget = 50
	})
	_, _, err := g.Patient(context.Background(), 3)
	require.Error(t, err)
	require.True(t, IsStuckModule(err))

	se, _ := AsSimError(err)
	assert.Equal(t, "spin", se.Module)
	assert.Equal(t, 3, se.Index)
	assert.NotEmpty(t, se.Recent, "a stuck failure shows the cycle it was trapped in")
	assert.Contains(t, se.Recent, "Spin")
	assert.Contains(t, se.Recent, "Loop")
}

func TestSubmoduleCallAndReturn(t *testing.T) {
	caller := testutil.Caller("caller", "callee", fluCode)
	callee := testutil.Callee("callee")
	g := newGenerator(t, testutil.Modules(caller, callee), nil)

	p, rec, err := g.Patient(context.Background(), 0)
	require.NoError(t, err)

	ran, ok, err := p.Attributes.Bool("callee_ran")
	require.NoError(t, err)
	assert.True(t, ok && ran, "submodule attribute mutations persist after return")

	ev, ok := rec.FirstOfKind(record.KindCondition)
	require.True(t, ok, "the caller resumes at the state after CallSubmodule")
	assert.Equal(t, "caller", ev.Module)
}

func TestSubmoduleUnknownModule(t *testing.T) {
	caller := testutil.Caller("caller", "missing", fluCode)
	g := newGenerator(t, testutil.Modules(caller), nil)

	_, _, err := g.Patient(context.Background(), 0)
	require.Error(t, err)
	se, ok := AsSimError(err)
	require.True(t, ok)
	assert.Equal(t, FailModuleReference, se.Kind)
	assert.Equal(t, "Call", se.State)
}

func TestDeathHaltsAllProgression(t *testing.T) {
	lethal := testutil.Lethal("lethal", pathway.Code{System: "SNOMED-CT", Value: "X"})
	slow := testutil.DelayThen("slow", 10, pathway.Days, fluCode)
	g := newGenerator(t, testutil.Modules(lethal, slow), nil)

	p, rec, err := g.Patient(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, p.Alive())
	require.NotNil(t, p.DeathDate)
	assert.Equal(t, birth, *p.DeathDate, "the lethal module fires on the first tick")

	assert.Equal(t, 1, rec.CountKind(record.KindDeath))
	assert.Zero(t, rec.CountKind(record.KindCondition),
		"the delay module never reaches its onset once the patient is dead")
}

func TestEncounterEnclosesEvents(t *testing.T) {
	m := &pathway.Module{
		Name: "visit",
		States: map[string]pathway.State{
			"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Visit"}}},
			"Visit": &pathway.Encounter{
				Base:  pathway.Base{Name: "Visit", Next: &pathway.DirectTransition{To: "Onset"}},
				Class: "ambulatory",
				Code:  pathway.Code{System: "SNOMED-CT", Value: "185345009"},
			},
			"Onset":    &pathway.ConditionOnset{Base: pathway.Base{Name: "Onset", Next: &pathway.DirectTransition{To: "Leave"}}, Code: fluCode},
			"Leave":    &pathway.EncounterEnd{Base: pathway.Base{Name: "Leave", Next: &pathway.DirectTransition{To: "Terminal"}}},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
	g := newGenerator(t, testutil.Modules(m), nil)

	_, rec, err := g.Patient(context.Background(), 0)
	require.NoError(t, err)

	enc, ok := rec.FirstOfKind(record.KindEncounter)
	require.True(t, ok)
	assert.False(t, enc.Open(), "EncounterEnd closes the encounter")
	assert.Equal(t, "ambulatory", enc.Class)

	cond, ok := rec.FirstOfKind(record.KindCondition)
	require.True(t, ok)
	assert.Equal(t, enc.ID, cond.EncounterID, "events emitted inside an encounter carry its id")
	assert.Equal(t, "visit", cond.Module)
	assert.Equal(t, "Onset", cond.State)
}

func TestAttributeTypeMismatchFailsPatient(t *testing.T) {
	m := &pathway.Module{
		Name: "typed",
		States: map[string]pathway.State{
			"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Mark"}}},
			"Mark": &pathway.SetAttribute{
				Base:      pathway.Base{Name: "Mark", Next: &pathway.DirectTransition{To: "Check"}},
				Attribute: "severity", Value: "high",
			},
			"Check": &pathway.Guard{
				Base:  pathway.Base{Name: "Check", Next: &pathway.DirectTransition{To: "Terminal"}},
				Allow: pathway.Attribute{Attribute: "severity", Op: pathway.OpGreater, Value: 5.0},
			},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
	g := newGenerator(t, testutil.Modules(m), nil)

	_, _, err := g.Patient(context.Background(), 0)
	require.Error(t, err)
	se, ok := AsSimError(err)
	require.True(t, ok)
	assert.Equal(t, FailAttributeType, se.Kind)

	var typeErr *person.AttributeTypeError
	assert.ErrorAs(t, err, &typeErr)
}

func TestGuardBlocksUntilPredicatePasses(t *testing.T) {
	m := &pathway.Module{
		Name: "gated",
		States: map[string]pathway.State{
			"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Adult"}}},
			"Adult": &pathway.Guard{
				Base:  pathway.Base{Name: "Adult", Next: &pathway.DirectTransition{To: "Onset"}},
				Allow: pathway.Age{Op: pathway.OpGreaterEqual, Quantity: 18, Unit: pathway.Years},
			},
			"Onset":    &pathway.ConditionOnset{Base: pathway.Base{Name: "Onset", Next: &pathway.DirectTransition{To: "Terminal"}}, Code: fluCode},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
	g := newGenerator(t, testutil.Modules(m), func(c *Config) {
		c.Step = 7 * 24 * time.Hour
	})

	_, rec, err := g.Patient(context.Background(), 0)
	require.NoError(t, err)

	ev, ok := rec.FirstOfKind(record.KindCondition)
	require.True(t, ok)
	// 18 years under the 365-day convention, rounded up to the next weekly tick.
	wait := time.Duration(18*365) * 24 * time.Hour
	assert.False(t, ev.Start.Before(birth.Add(wait)), "guard must hold until the patient is 18")
	assert.True(t, ev.Start.Before(birth.Add(wait+7*24*time.Hour)), "guard releases on the first passing tick")
}

func TestPriorStateGuardsAcrossModules(t *testing.T) {
	first := &pathway.Module{
		Name:     "first",
		Priority: 1,
		States: map[string]pathway.State{
			"Initial":  &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Onset"}}},
			"Onset":    &pathway.ConditionOnset{Base: pathway.Base{Name: "Onset", Next: &pathway.DirectTransition{To: "Terminal"}}, Code: fluCode},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
	second := &pathway.Module{
		Name:     "second",
		Priority: 2,
		States: map[string]pathway.State{
			"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Wait"}}},
			"Wait": &pathway.Guard{
				Base:  pathway.Base{Name: "Wait", Next: &pathway.DirectTransition{To: "Obs"}},
				Allow: pathway.PriorState{Module: "first", State: "Onset"},
			},
			"Obs": &pathway.Observation{
				Base:  pathway.Base{Name: "Obs", Next: &pathway.DirectTransition{To: "Terminal"}},
				Code:  pathway.Code{System: "LOINC", Value: "8302-2"},
				Unit:  "cm",
				Value: pathway.ExactValue{Quantity: 170},
			},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
	g := newGenerator(t, testutil.Modules(first, second), nil)

	_, rec, err := g.Patient(context.Background(), 0)
	require.NoError(t, err)
	obs, ok := rec.FirstOfKind(record.KindObservation)
	require.True(t, ok, "the guard passes once the lower-priority module has run its Onset")
	assert.Equal(t, birth, obs.Start, "first runs before second within the same tick")
	assert.Equal(t, 170.0, obs.Value)
}

func TestMedicationAndCarePlanLifecycle(t *testing.T) {
	med := pathway.Code{System: "RxNorm", Value: "313782", Display: "Acetaminophen"}
	plan := pathway.Code{System: "SNOMED-CT", Value: "734163000", Display: "Care plan"}
	m := &pathway.Module{
		Name: "therapy",
		States: map[string]pathway.State{
			"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Order"}}},
			"Order": &pathway.MedicationOrder{
				Base: pathway.Base{Name: "Order", Next: &pathway.DirectTransition{To: "Plan"}},
				Code: med, Assign: "current_med",
			},
			"Plan": &pathway.CarePlanStart{
				Base: pathway.Base{Name: "Plan", Next: &pathway.DirectTransition{To: "Pause"}},
				Code: plan,
			},
			"Pause": &pathway.Delay{
				Base:     pathway.Base{Name: "Pause", Next: &pathway.DirectTransition{To: "Stop"}},
				Duration: pathway.Exact(30, pathway.Days),
			},
			"Stop": &pathway.MedicationEnd{
				Base:      pathway.Base{Name: "Stop", Next: &pathway.DirectTransition{To: "Unplan"}},
				Attribute: "current_med",
			},
			"Unplan": &pathway.CarePlanEnd{
				Base: pathway.Base{Name: "Unplan", Next: &pathway.DirectTransition{To: "Terminal"}},
				Code: plan,
			},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
	g := newGenerator(t, testutil.Modules(m), nil)

	p, rec, err := g.Patient(context.Background(), 0)
	require.NoError(t, err)

	medEv, ok := rec.FirstOfKind(record.KindMedication)
	require.True(t, ok)
	assert.Equal(t, birth, medEv.Start)
	assert.Equal(t, birth.Add(30*24*time.Hour), medEv.Stop, "MedicationEnd resolves through the assigned attribute")

	planEv, ok := rec.FirstOfKind(record.KindCarePlan)
	require.True(t, ok)
	assert.False(t, planEv.Open())

	assert.False(t, p.HasActiveMedication(med.Value))
	assert.False(t, p.HasActiveCarePlan(plan.Value))
}
