package harness

import "fmt"

// Check runs every scenario assertion against the trace, returning the
// first failure.
func (r *Result) Check(assertions []Assertion) error {
	for i, a := range assertions {
		if err := r.check(a); err != nil {
			return fmt.Errorf("assertion %d (%s): %w", i, a.Type, err)
		}
	}
	return nil
}

func (r *Result) check(a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		for _, e := range r.Trace {
			if matches(e, a) {
				return nil
			}
		}
		return fmt.Errorf("no event matches kind=%q code=%q state=%q", a.Kind, a.Code, a.State)

	case AssertTraceCount:
		n := 0
		for _, e := range r.Trace {
			if matches(e, a) {
				n++
			}
		}
		if n != a.Count {
			return fmt.Errorf("kind=%q code=%q matched %d events, want %d", a.Kind, a.Code, n, a.Count)
		}
		return nil

	case AssertTraceOrder:
		// The expected kinds must appear as a subsequence of the trace.
		i := 0
		for _, e := range r.Trace {
			if i < len(a.Kinds) && e.Kind == a.Kinds[i] {
				i++
			}
		}
		if i != len(a.Kinds) {
			return fmt.Errorf("kinds %v not found in order; stopped at %q", a.Kinds, a.Kinds[i])
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func matches(e TraceEvent, a Assertion) bool {
	if a.Kind != "" && e.Kind != a.Kind {
		return false
	}
	if a.Code != "" && e.Code != a.Code {
		return false
	}
	if a.State != "" && e.State != a.State {
		return false
	}
	return true
}
