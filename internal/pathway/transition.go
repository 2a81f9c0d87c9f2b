package pathway

import (
	"fmt"
	"math"
)

// WeightTolerance is how far a Distributed weight sum may drift from 1.0
// and still be silently renormalized. Sums outside the tolerance are an
// error unless the engine is configured lenient.
const WeightTolerance = 1e-6

// Transition selects the next state after a state's action runs. It is a
// closed sum; Terminal and Death states may carry a nil Transition.
type Transition interface {
	isTransition()
}

// DirectTransition always moves to a single target state.
type DirectTransition struct {
	To string
}

// WeightedChoice is one arm of a DistributedTransition.
type WeightedChoice struct {
	Weight float64
	To     string
}

// DistributedTransition selects a target by probability weight. Choices
// are walked in declared order accumulating mass; the first choice whose
// cumulative mass reaches the draw wins.
type DistributedTransition struct {
	Choices []WeightedChoice
}

// ConditionalCase is one arm of a ConditionalTransition.
type ConditionalCase struct {
	If Predicate
	To string
}

// ConditionalTransition selects the first case whose predicate passes, in
// declared order. Default, when set, is taken if no case matches; with no
// default an unmatched evaluation is a transition error for the patient.
type ConditionalTransition struct {
	Cases   []ConditionalCase
	Default string
}

func (*DirectTransition) isTransition()      {}
func (*DistributedTransition) isTransition() {}
func (*ConditionalTransition) isTransition() {}

// Normalized returns the choices with weights scaled so they sum to 1.
//
// When the declared sum is within WeightTolerance of 1 the adjustment is
// silent. Outside the tolerance the transition is malformed: strict mode
// rejects it, lenient mode renormalizes any positive sum. A non-positive
// sum is always malformed.
func (t *DistributedTransition) Normalized(lenient bool) ([]WeightedChoice, error) {
	if len(t.Choices) == 0 {
		return nil, fmt.Errorf("distributed transition has no choices")
	}
	sum := 0.0
	for _, c := range t.Choices {
		if c.Weight < 0 || math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) {
			return nil, fmt.Errorf("weight %v for target %q is not a probability", c.Weight, c.To)
		}
		sum += c.Weight
	}
	if sum <= 0 {
		return nil, fmt.Errorf("weights sum to %v, nothing to select", sum)
	}
	if math.Abs(sum-1) > WeightTolerance && !lenient {
		return nil, fmt.Errorf("weights sum to %v, outside tolerance %v of 1", sum, WeightTolerance)
	}
	out := make([]WeightedChoice, len(t.Choices))
	for i, c := range t.Choices {
		out[i] = WeightedChoice{Weight: c.Weight / sum, To: c.To}
	}
	return out, nil
}

// Pick walks normalized choices in order and returns the first target
// whose cumulative mass is at least u, which the caller draws uniformly
// from [0, 1). The final choice absorbs residual floating point error.
func Pick(choices []WeightedChoice, u float64) string {
	cum := 0.0
	for i, c := range choices {
		cum += c.Weight
		if cum >= u || i == len(choices)-1 {
			return c.To
		}
	}
	return ""
}

// Targets returns every state name the transition can reach, in declared
// order, including a conditional default.
func Targets(t Transition) []string {
	switch tr := t.(type) {
	case nil:
		return nil
	case *DirectTransition:
		return []string{tr.To}
	case *DistributedTransition:
		out := make([]string, 0, len(tr.Choices))
		for _, c := range tr.Choices {
			out = append(out, c.To)
		}
		return out
	case *ConditionalTransition:
		out := make([]string, 0, len(tr.Cases)+1)
		for _, c := range tr.Cases {
			out = append(out, c.To)
		}
		if tr.Default != "" {
			out = append(out, tr.Default)
		}
		return out
	default:
		return nil
	}
}
