package engine

import "fmt"

// DefaultStepBudget caps how many states one instance may execute within a
// single clock tick. Legitimate modules chain at most a handful of
// zero-time states between waits; hundreds in one tick means a loop with
// no exit.
const DefaultStepBudget = 1000

// Budget enforces the per-tick step cap for one module instance. The
// interpreter resets it at every tick boundary and spends one unit per
// state executed; exhaustion converts a runaway cycle into an isolated
// patient failure instead of a hung worker.
type Budget struct {
	limit int
	used  int
}

// NewBudget creates a budget with the given limit. A non-positive limit
// falls back to DefaultStepBudget.
func NewBudget(limit int) *Budget {
	if limit <= 0 {
		limit = DefaultStepBudget
	}
	return &Budget{limit: limit}
}

// ExhaustedError reports a spent budget.
type ExhaustedError struct {
	Limit int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("step budget of %d exhausted within one tick", e.Limit)
}

// Spend consumes one step. It returns an *ExhaustedError once the limit
// is exceeded.
func (b *Budget) Spend() error {
	b.used++
	if b.used > b.limit {
		return &ExhaustedError{Limit: b.limit}
	}
	return nil
}

// Reset returns the budget to full, keeping the limit.
func (b *Budget) Reset() {
	b.used = 0
}

// Used reports steps spent since the last reset.
func (b *Budget) Used() int {
	return b.used
}

// Limit reports the configured cap.
func (b *Budget) Limit() int {
	return b.limit
}
