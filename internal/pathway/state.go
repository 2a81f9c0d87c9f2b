package pathway

// State is one typed node of a module: an action plus a transition rule.
// The set of kinds is closed; the interpreter dispatches on concrete type
// so adding a kind is a compile-visible change at every switch.
type State interface {
	// StateName returns the node's unique name within its module.
	StateName() string
	// Transition returns the node's transition rule, nil for Terminal and
	// for a Death with no successor.
	Transition() Transition

	isState()
}

// Base carries the fields every state shares. Kind structs embed it.
type Base struct {
	Name string
	Next Transition
}

func (b Base) StateName() string      { return b.Name }
func (b Base) Transition() Transition { return b.Next }
func (Base) isState()                 {}

// Initial is the single entry point of a module. It performs no action.
type Initial struct {
	Base
}

// Terminal ends the module (or returns to the caller when the module was
// entered as a submodule). It carries no transition.
type Terminal struct {
	Base
}

// Simple performs no action and exists for graph structure.
type Simple struct {
	Base
}

// Guard blocks the instance until Allow passes, re-evaluated each tick.
type Guard struct {
	Base
	Allow Predicate
}

// Delay blocks the instance for a duration sampled once on entry.
type Delay struct {
	Base
	Duration DurationSpec
}

// Encounter opens a clinical encounter. Until the matching EncounterEnd,
// emitted events attach to it.
type Encounter struct {
	Base
	Class  string
	Code   Code
	Reason string // attribute naming the condition code that motivated the visit
}

// EncounterEnd closes the open encounter. With none open it is a no-op.
type EncounterEnd struct {
	Base
}

// ConditionOnset begins a condition. When Assign is set the condition's
// code value is stored under that attribute for later reference.
type ConditionOnset struct {
	Base
	Code   Code
	Assign string
}

// ConditionEnd resolves an active condition, addressed either by Code or
// by the attribute a ConditionOnset assigned.
type ConditionEnd struct {
	Base
	Code      Code
	Attribute string
}

// MedicationOrder starts a medication. Reason names an attribute holding
// the motivating condition's code value.
type MedicationOrder struct {
	Base
	Code   Code
	Assign string
	Reason string
}

// MedicationEnd stops an active medication, addressed by Code or by the
// attribute a MedicationOrder assigned.
type MedicationEnd struct {
	Base
	Code      Code
	Attribute string
}

// ProcedureRequest performs a procedure during the open encounter. A
// Duration, when present, sets the procedure's stop time.
type ProcedureRequest struct {
	Base
	Code     Code
	Reason   string
	Duration *DurationSpec
}

// Observation records a measured value with a unit.
type Observation struct {
	Base
	Code  Code
	Unit  string
	Value ValueSpec
}

// Symptom sets the severity of a named symptom on the patient. Symptoms
// live on the patient, not in the clinical record.
type Symptom struct {
	Base
	Symptom  string
	Severity IntRange
}

// SetAttribute writes a fixed value to a patient attribute. A nil Value
// deletes the attribute.
type SetAttribute struct {
	Base
	Attribute string
	Value     any
}

// CallSubmodule suspends this module, pushes a return frame, and resumes
// at the named module's Initial state.
type CallSubmodule struct {
	Base
	Submodule string
}

// Death ends the patient's life immediately. All module progression halts.
type Death struct {
	Base
	Cause Code
}

// Distributed is a branch node: no action, a probability-weighted choice
// of successor. Its transition must be a DistributedTransition.
type Distributed struct {
	Base
}

// Conditional is a branch node: no action, an ordered predicate choice of
// successor. Its transition must be a ConditionalTransition.
type Conditional struct {
	Base
}

// CarePlanStart begins a care plan.
type CarePlanStart struct {
	Base
	Code   Code
	Assign string
}

// CarePlanEnd ends an active care plan, addressed by Code or by the
// attribute a CarePlanStart assigned.
type CarePlanEnd struct {
	Base
	Code      Code
	Attribute string
}
