package engine

import (
	"fmt"
	"time"

	"github.com/cohortgen/cohortgen/internal/pathway"
	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/record"
	"github.com/cohortgen/cohortgen/internal/rng"
)

// Outcome is the result of advancing an instance.
type Outcome int

const (
	// Advanced: the state's action ran and the cursor moved.
	Advanced Outcome = iota
	// Blocked: a Guard is still false or a Delay has not elapsed; the
	// instance is re-evaluated on a later tick.
	Blocked
	// SubmoduleCalled: a return frame was pushed and the cursor moved to a
	// callee's Initial state.
	SubmoduleCalled
	// SubmoduleReturned: a callee reached Terminal and the caller resumed.
	SubmoduleReturned
	// Completed: Terminal reached with an empty call stack.
	Completed
	// Died: a Death state fired; all progression for the patient halts.
	Died
)

func (o Outcome) String() string {
	switch o {
	case Advanced:
		return "advanced"
	case Blocked:
		return "blocked"
	case SubmoduleCalled:
		return "submodule_called"
	case SubmoduleReturned:
		return "submodule_returned"
	case Completed:
		return "completed"
	case Died:
		return "died"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// UnmatchedPolicy decides what an unmatched conditional transition with
// no default does.
type UnmatchedPolicy int

const (
	// UnmatchedFails raises a transition error for the patient.
	UnmatchedFails UnmatchedPolicy = iota
	// UnmatchedEndsModule completes the module (or returns to its caller)
	// as if a Terminal had been reached.
	UnmatchedEndsModule
)

// OpenEvents tracks the record indexes of events that are still open for
// one patient, so End states can close what their Start counterparts
// opened. It spans all of the patient's instances: a condition opened by
// one module can be ended by another.
type OpenEvents struct {
	encounter   int
	encounterID string
	conditions  map[string]int
	medications map[string]int
	carePlans   map[string]int
}

// NewOpenEvents returns an empty tracker.
func NewOpenEvents() *OpenEvents {
	return &OpenEvents{
		encounter:   -1,
		conditions:  make(map[string]int),
		medications: make(map[string]int),
		carePlans:   make(map[string]int),
	}
}

// EncounterID returns the id of the open encounter, empty if none.
func (o *OpenEvents) EncounterID() string {
	return o.encounterID
}

// Env bundles the per-patient mutable state one step executes against.
// Everything here is owned by the worker simulating the patient.
type Env struct {
	Person *person.Person
	Record *record.Record
	Source *rng.Source
	Open   *OpenEvents
	Now    time.Time
}

// Interpreter advances module instances one logical step at a time. It is
// stateless across patients; one Interpreter serves a whole run.
type Interpreter struct {
	modules   map[string]*pathway.Module
	lenient   bool
	unmatched UnmatchedPolicy
}

// NewInterpreter builds an interpreter over a named module set.
func NewInterpreter(modules map[string]*pathway.Module, lenientWeights bool, unmatched UnmatchedPolicy) *Interpreter {
	return &Interpreter{modules: modules, lenient: lenientWeights, unmatched: unmatched}
}

// Advance evaluates an instance within one clock tick: states execute
// until one blocks, the module completes, or the patient dies. The
// instance's step budget converts a non-terminating chain into a
// stuck-module failure.
func (it *Interpreter) Advance(inst *Instance, env *Env) (Outcome, error) {
	inst.budget.Reset()
	for {
		if err := inst.budget.Spend(); err != nil {
			return 0, &SimError{
				Kind:    FailStuckModule,
				Module:  inst.Module().Name,
				State:   inst.CurrentName(),
				Time:    env.Now,
				Index:   env.Person.Index,
				Message: err.Error(),
				Recent:  inst.history.Recent(),
				Err:     err,
			}
		}
		out, err := it.step(inst, env)
		if err != nil {
			return 0, err
		}
		switch out {
		case Advanced, SubmoduleCalled, SubmoduleReturned:
			// Zero simulated time passed; keep going within this tick.
		default:
			return out, nil
		}
	}
}

// step executes exactly one state: its action, then its transition. The
// switch is exhaustive over every state kind; a kind added to the pathway
// package without a case here fails loudly at runtime rather than
// silently doing nothing.
func (it *Interpreter) step(inst *Instance, env *Env) (Outcome, error) {
	st, ok := inst.Current()
	if !ok {
		return 0, it.fail(FailTransition, inst, env, fmt.Sprintf("state %q does not exist in module %q", inst.CurrentName(), inst.Module().Name), nil)
	}
	inst.history.Push(st.StateName())
	env.Person.RecordVisit(inst.Module().Name, st.StateName())

	switch s := st.(type) {
	case *pathway.Initial, *pathway.Simple, *pathway.Distributed, *pathway.Conditional:
		// Pure graph structure; the transition does the work.

	case *pathway.Guard:
		pass, err := s.Allow.Test(env.Person, env.Now)
		if err != nil {
			return 0, it.evalErr(err, inst, env)
		}
		if !pass {
			return Blocked, nil
		}

	case *pathway.Delay:
		deadline, sampled := inst.Deadline()
		if !sampled {
			d, err := s.Duration.Sample(env.Source)
			if err != nil {
				return 0, it.fail(FailTransition, inst, env, "delay duration is unusable", err)
			}
			deadline = env.Now.Add(d)
			inst.SetDeadline(deadline)
		}
		if env.Now.Before(deadline) {
			return Blocked, nil
		}

	case *pathway.Terminal:
		if inst.Return(env.Now) {
			return SubmoduleReturned, nil
		}
		inst.Complete()
		return Completed, nil

	case *pathway.Death:
		ev := it.newEvent(record.KindDeath, s.Cause, inst, env)
		env.Record.Append(ev)
		env.Person.Die(env.Now)
		inst.Complete()
		return Died, nil

	case *pathway.CallSubmodule:
		callee, found := it.modules[s.Submodule]
		if !found {
			return 0, it.fail(FailModuleReference, inst, env, fmt.Sprintf("submodule %q is not loaded", s.Submodule), nil)
		}
		returnTo, endModule, err := it.selectTarget(st, inst, env)
		if err != nil {
			return 0, err
		}
		if endModule {
			if inst.Return(env.Now) {
				return SubmoduleReturned, nil
			}
			inst.Complete()
			return Completed, nil
		}
		inst.Call(callee, returnTo, env.Now)
		return SubmoduleCalled, nil

	case *pathway.Encounter:
		if err := it.startEncounter(s, inst, env); err != nil {
			return 0, err
		}

	case *pathway.EncounterEnd:
		if err := it.endEncounter(env); err != nil {
			return 0, err
		}

	case *pathway.ConditionOnset:
		if err := it.onsetCondition(s, inst, env); err != nil {
			return 0, err
		}

	case *pathway.ConditionEnd:
		if err := it.endByCode(env, inst, s.Code, s.Attribute, env.Open.conditions, env.Person.EndCondition); err != nil {
			return 0, err
		}

	case *pathway.MedicationOrder:
		if err := it.orderMedication(s, inst, env); err != nil {
			return 0, err
		}

	case *pathway.MedicationEnd:
		if err := it.endByCode(env, inst, s.Code, s.Attribute, env.Open.medications, env.Person.EndMedication); err != nil {
			return 0, err
		}

	case *pathway.CarePlanStart:
		if err := it.startCarePlan(s, inst, env); err != nil {
			return 0, err
		}

	case *pathway.CarePlanEnd:
		if err := it.endByCode(env, inst, s.Code, s.Attribute, env.Open.carePlans, env.Person.EndCarePlan); err != nil {
			return 0, err
		}

	case *pathway.ProcedureRequest:
		if err := it.performProcedure(s, inst, env); err != nil {
			return 0, err
		}

	case *pathway.Observation:
		if err := it.observe(s, inst, env); err != nil {
			return 0, err
		}

	case *pathway.Symptom:
		env.Person.SetSymptom(s.Symptom, s.Severity.Sample(env.Source))

	case *pathway.SetAttribute:
		if s.Value == nil {
			env.Person.Attributes.Delete(s.Attribute)
		} else if err := env.Person.Attributes.Set(s.Attribute, s.Value); err != nil {
			return 0, it.evalErr(err, inst, env)
		}

	default:
		return 0, it.fail(FailTransition, inst, env, fmt.Sprintf("unhandled state kind %T", st), nil)
	}

	next, endModule, err := it.selectTarget(st, inst, env)
	if err != nil {
		return 0, err
	}
	if endModule {
		if inst.Return(env.Now) {
			return SubmoduleReturned, nil
		}
		inst.Complete()
		return Completed, nil
	}
	inst.MoveTo(next, env.Now)
	return Advanced, nil
}

// selectTarget resolves a state's transition to the next state name. The
// endModule result substitutes for a target when policy turns an
// unmatched conditional into module completion, or when a Death state
// carries no successor.
func (it *Interpreter) selectTarget(st pathway.State, inst *Instance, env *Env) (next string, endModule bool, err error) {
	switch tr := st.Transition().(type) {
	case nil:
		return "", true, nil

	case *pathway.DirectTransition:
		return tr.To, false, nil

	case *pathway.DistributedTransition:
		choices, err := tr.Normalized(it.lenient)
		if err != nil {
			return "", false, it.fail(FailMalformedDistribution, inst, env, err.Error(), nil)
		}
		u := env.Source.Float64()
		return pathway.Pick(choices, u), false, nil

	case *pathway.ConditionalTransition:
		for _, c := range tr.Cases {
			pass, err := c.If.Test(env.Person, env.Now)
			if err != nil {
				return "", false, it.evalErr(err, inst, env)
			}
			if pass {
				return c.To, false, nil
			}
		}
		if tr.Default != "" {
			return tr.Default, false, nil
		}
		if it.unmatched == UnmatchedEndsModule {
			return "", true, nil
		}
		return "", false, it.fail(FailTransition, inst, env, "no conditional case matched and no default is declared", nil)

	default:
		return "", false, it.fail(FailTransition, inst, env, fmt.Sprintf("unhandled transition kind %T", st.Transition()), nil)
	}
}

// newEvent stamps the shared event fields: origin, time, and the open
// encounter if any.
func (it *Interpreter) newEvent(kind record.Kind, code pathway.Code, inst *Instance, env *Env) record.Event {
	return record.Event{
		ID:          env.Source.NewID(),
		Kind:        kind,
		Code:        code,
		Start:       env.Now,
		EncounterID: env.Open.encounterID,
		Module:      inst.Module().Name,
		State:       inst.CurrentName(),
	}
}

// startEncounter opens an encounter. Encounters do not nest: an already
// open one is closed first.
func (it *Interpreter) startEncounter(s *pathway.Encounter, inst *Instance, env *Env) error {
	if err := it.endEncounter(env); err != nil {
		return err
	}
	ev := it.newEvent(record.KindEncounter, s.Code, inst, env)
	ev.Class = s.Class
	if s.Reason != "" {
		reason, ok, err := env.Person.Attributes.Text(s.Reason)
		if err != nil {
			return it.evalErr(err, inst, env)
		}
		if ok {
			ev.Reason = reason
		}
	}
	idx := env.Record.Append(ev)
	env.Open.encounter = idx
	env.Open.encounterID = ev.ID
	return nil
}

func (it *Interpreter) endEncounter(env *Env) error {
	if env.Open.encounter < 0 {
		return nil
	}
	if err := env.Record.Close(env.Open.encounter, env.Now); err != nil {
		return fmt.Errorf("close encounter: %w", err)
	}
	env.Open.encounter = -1
	env.Open.encounterID = ""
	return nil
}

func (it *Interpreter) onsetCondition(s *pathway.ConditionOnset, inst *Instance, env *Env) error {
	if env.Person.HasActiveCondition(s.Code.Value) {
		// Re-onset of an active condition is a no-op; the original event
		// stays open.
		return nil
	}
	ev := it.newEvent(record.KindCondition, s.Code, inst, env)
	idx := env.Record.Append(ev)
	env.Open.conditions[s.Code.Value] = idx
	env.Person.OnsetCondition(s.Code.Value)
	if s.Assign != "" {
		if err := env.Person.Attributes.Set(s.Assign, s.Code.Value); err != nil {
			return it.evalErr(err, inst, env)
		}
	}
	return nil
}

func (it *Interpreter) orderMedication(s *pathway.MedicationOrder, inst *Instance, env *Env) error {
	if env.Person.HasActiveMedication(s.Code.Value) {
		return nil
	}
	ev := it.newEvent(record.KindMedication, s.Code, inst, env)
	if s.Reason != "" {
		reason, ok, err := env.Person.Attributes.Text(s.Reason)
		if err != nil {
			return it.evalErr(err, inst, env)
		}
		if ok {
			ev.Reason = reason
		}
	}
	idx := env.Record.Append(ev)
	env.Open.medications[s.Code.Value] = idx
	env.Person.StartMedication(s.Code.Value)
	if s.Assign != "" {
		if err := env.Person.Attributes.Set(s.Assign, s.Code.Value); err != nil {
			return it.evalErr(err, inst, env)
		}
	}
	return nil
}

func (it *Interpreter) startCarePlan(s *pathway.CarePlanStart, inst *Instance, env *Env) error {
	if env.Person.HasActiveCarePlan(s.Code.Value) {
		return nil
	}
	ev := it.newEvent(record.KindCarePlan, s.Code, inst, env)
	idx := env.Record.Append(ev)
	env.Open.carePlans[s.Code.Value] = idx
	env.Person.StartCarePlan(s.Code.Value)
	if s.Assign != "" {
		if err := env.Person.Attributes.Set(s.Assign, s.Code.Value); err != nil {
			return it.evalErr(err, inst, env)
		}
	}
	return nil
}

// endByCode closes an open event addressed by an explicit code or by an
// attribute holding one. Ending something that is not active is a no-op;
// modules routinely guard both paths.
func (it *Interpreter) endByCode(env *Env, inst *Instance, code pathway.Code, attribute string, open map[string]int, clear func(string)) error {
	value := code.Value
	if value == "" && attribute != "" {
		stored, ok, err := env.Person.Attributes.Text(attribute)
		if err != nil {
			return it.evalErr(err, inst, env)
		}
		if !ok {
			return nil
		}
		value = stored
	}
	if value == "" {
		return nil
	}
	if idx, ok := open[value]; ok {
		if err := env.Record.Close(idx, env.Now); err != nil {
			return fmt.Errorf("close %s: %w", value, err)
		}
		delete(open, value)
	}
	clear(value)
	return nil
}

func (it *Interpreter) performProcedure(s *pathway.ProcedureRequest, inst *Instance, env *Env) error {
	ev := it.newEvent(record.KindProcedure, s.Code, inst, env)
	if s.Reason != "" {
		reason, ok, err := env.Person.Attributes.Text(s.Reason)
		if err != nil {
			return it.evalErr(err, inst, env)
		}
		if ok {
			ev.Reason = reason
		}
	}
	if s.Duration != nil {
		d, err := s.Duration.Sample(env.Source)
		if err != nil {
			return it.fail(FailTransition, inst, env, "procedure duration is unusable", err)
		}
		ev.Stop = env.Now.Add(d)
	}
	env.Record.Append(ev)
	return nil
}

func (it *Interpreter) observe(s *pathway.Observation, inst *Instance, env *Env) error {
	var value float64
	switch v := s.Value.(type) {
	case pathway.ExactValue:
		value = v.Quantity
	case pathway.RangeValue:
		value = env.Source.Float64Between(v.Low, v.High)
	case pathway.AttributeValue:
		stored, ok, err := env.Person.Attributes.Number(v.Attribute)
		if err != nil {
			return it.evalErr(err, inst, env)
		}
		if ok {
			value = stored
		}
	default:
		return it.fail(FailTransition, inst, env, fmt.Sprintf("unhandled observation value kind %T", s.Value), nil)
	}
	ev := it.newEvent(record.KindObservation, s.Code, inst, env)
	ev.Value = value
	ev.Unit = s.Unit
	env.Record.Append(ev)
	return nil
}

// fail builds a SimError with full reproduction context.
func (it *Interpreter) fail(kind FailureKind, inst *Instance, env *Env, msg string, cause error) error {
	return &SimError{
		Kind:    kind,
		Module:  inst.Module().Name,
		State:   inst.CurrentName(),
		Time:    env.Now,
		Index:   env.Person.Index,
		Message: msg,
		Err:     cause,
	}
}

// evalErr wraps a predicate or attribute evaluation error. Attribute type
// mismatches keep their own failure kind; anything else surfaces as a
// transition failure at the evaluating state.
func (it *Interpreter) evalErr(err error, inst *Instance, env *Env) error {
	kind := Classify(err)
	if kind == "" {
		kind = FailTransition
	}
	return &SimError{
		Kind:   kind,
		Module: inst.Module().Name,
		State:  inst.CurrentName(),
		Time:   env.Now,
		Index:  env.Person.Index,
		Err:    err,
	}
}
