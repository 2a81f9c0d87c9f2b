package testutil

import "github.com/cohortgen/cohortgen/internal/pathway"

// Linear builds Initial -> Terminal with no action states.
func Linear(name string) *pathway.Module {
	return &pathway.Module{
		Name: name,
		States: map[string]pathway.State{
			"Initial":  &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Terminal"}}},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
}

// DelayThen builds Initial -> Wait (exact delay) -> emit condition -> Terminal.
func DelayThen(name string, quantity float64, unit pathway.Unit, code pathway.Code) *pathway.Module {
	return &pathway.Module{
		Name: name,
		States: map[string]pathway.State{
			"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Wait"}}},
			"Wait": &pathway.Delay{
				Base:     pathway.Base{Name: "Wait", Next: &pathway.DirectTransition{To: "Onset"}},
				Duration: pathway.Exact(quantity, unit),
			},
			"Onset":    &pathway.ConditionOnset{Base: pathway.Base{Name: "Onset", Next: &pathway.DirectTransition{To: "Terminal"}}, Code: code},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
}

// Coin builds Initial -> Distributed(weight -> "Heads" emitting code,
// 1-weight -> "Tails") -> Terminal. The spec-facing shape for fairness
// and end-to-end fraction tests.
func Coin(name string, weight float64, code pathway.Code) *pathway.Module {
	return &pathway.Module{
		Name: name,
		States: map[string]pathway.State{
			"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Branch"}}},
			"Branch": &pathway.Distributed{Base: pathway.Base{Name: "Branch", Next: &pathway.DistributedTransition{
				Choices: []pathway.WeightedChoice{
					{Weight: weight, To: "Heads"},
					{Weight: 1 - weight, To: "Tails"},
				},
			}}},
			"Heads":    &pathway.ConditionOnset{Base: pathway.Base{Name: "Heads", Next: &pathway.DirectTransition{To: "Terminal"}}, Code: code},
			"Tails":    &pathway.Simple{Base: pathway.Base{Name: "Tails", Next: &pathway.DirectTransition{To: "Terminal"}}},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
}

// SelfLoop builds a zero-duration cycle with no exit: the canonical
// stuck module.
func SelfLoop(name string) *pathway.Module {
	return &pathway.Module{
		Name: name,
		States: map[string]pathway.State{
			"Initial":  &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Spin"}}},
			"Spin":     &pathway.Simple{Base: pathway.Base{Name: "Spin", Next: &pathway.DirectTransition{To: "Loop"}}},
			"Loop":     &pathway.Simple{Base: pathway.Base{Name: "Loop", Next: &pathway.DirectTransition{To: "Spin"}}},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
}

// Caller builds a module that sets an attribute, calls sub, then emits a
// condition after the submodule returns.
func Caller(name, sub string, code pathway.Code) *pathway.Module {
	return &pathway.Module{
		Name: name,
		States: map[string]pathway.State{
			"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Mark"}}},
			"Mark": &pathway.SetAttribute{
				Base:      pathway.Base{Name: "Mark", Next: &pathway.DirectTransition{To: "Call"}},
				Attribute: "caller_ran", Value: true,
			},
			"Call": &pathway.CallSubmodule{
				Base:      pathway.Base{Name: "Call", Next: &pathway.DirectTransition{To: "After"}},
				Submodule: sub,
			},
			"After":    &pathway.ConditionOnset{Base: pathway.Base{Name: "After", Next: &pathway.DirectTransition{To: "Terminal"}}, Code: code},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
}

// Callee builds a submodule that writes an attribute before terminating,
// so tests can observe that submodule mutations survive the return.
func Callee(name string) *pathway.Module {
	return &pathway.Module{
		Name: name,
		States: map[string]pathway.State{
			"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Leave"}}},
			"Leave": &pathway.SetAttribute{
				Base:      pathway.Base{Name: "Leave", Next: &pathway.DirectTransition{To: "Terminal"}},
				Attribute: "callee_ran", Value: true,
			},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
}

// Lethal builds a module that kills the patient immediately.
func Lethal(name string, cause pathway.Code) *pathway.Module {
	return &pathway.Module{
		Name: name,
		States: map[string]pathway.State{
			"Initial": &pathway.Initial{Base: pathway.Base{Name: "Initial", Next: &pathway.DirectTransition{To: "Die"}}},
			// The transition is never taken; death halts progression. It keeps
			// a Terminal reachable for validation.
			"Die":      &pathway.Death{Base: pathway.Base{Name: "Die", Next: &pathway.DirectTransition{To: "Terminal"}}, Cause: cause},
			"Terminal": &pathway.Terminal{Base: pathway.Base{Name: "Terminal"}},
		},
	}
}

// Modules keys a module list by name, the shape engine.Config wants.
func Modules(ms ...*pathway.Module) map[string]*pathway.Module {
	out := make(map[string]*pathway.Module, len(ms))
	for _, m := range ms {
		out[m.Name] = m
	}
	return out
}
