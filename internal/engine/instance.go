package engine

import (
	"time"

	"github.com/cohortgen/cohortgen/internal/pathway"
)

// Frame is one submodule call record: the module to resume and the state
// to resume it at. The stack of frames is strictly last-in-first-out.
type Frame struct {
	Module   *pathway.Module
	ReturnTo string
}

// Instance is the execution cursor of one scheduled module for one
// patient: the module currently running (the scheduled module or a
// callee), the current state, the time that state was entered, sampled
// decisions that must not be re-drawn, and the submodule call stack.
type Instance struct {
	root    *pathway.Module
	module  *pathway.Module
	current string
	entered time.Time

	deadline    time.Time
	deadlineSet bool

	stack   []Frame
	history History
	budget  *Budget
	created int
	done    bool
}

// NewInstance creates an instance positioned at the module's Initial
// state, entered at start.
func NewInstance(m *pathway.Module, created int, budgetLimit int, start time.Time) *Instance {
	return &Instance{
		root:    m,
		module:  m,
		current: m.InitialName(),
		entered: start,
		budget:  NewBudget(budgetLimit),
		created: created,
	}
}

// Root returns the scheduled top-level module.
func (in *Instance) Root() *pathway.Module {
	return in.root
}

// Module returns the module currently executing, which differs from Root
// while a submodule call is in progress.
func (in *Instance) Module() *pathway.Module {
	return in.module
}

// CurrentName returns the current state name.
func (in *Instance) CurrentName() string {
	return in.current
}

// Current resolves the current state in the executing module.
func (in *Instance) Current() (pathway.State, bool) {
	return in.module.State(in.current)
}

// Entered returns when the current state was entered.
func (in *Instance) Entered() time.Time {
	return in.entered
}

// MoveTo repositions the cursor. Entry time and sampled decisions reset
// only when the state actually changes; a transition back onto the same
// state keeps them.
func (in *Instance) MoveTo(name string, now time.Time) {
	if name == in.current {
		return
	}
	in.current = name
	in.entered = now
	in.deadlineSet = false
}

// Deadline returns the sampled delay deadline and whether one is set.
func (in *Instance) Deadline() (time.Time, bool) {
	return in.deadline, in.deadlineSet
}

// SetDeadline stores the sampled delay deadline for the current state.
func (in *Instance) SetDeadline(t time.Time) {
	in.deadline = t
	in.deadlineSet = true
}

// Call pushes a return frame and repositions the cursor at the callee's
// Initial state.
func (in *Instance) Call(callee *pathway.Module, returnTo string, now time.Time) {
	in.stack = append(in.stack, Frame{Module: in.module, ReturnTo: returnTo})
	in.module = callee
	in.current = callee.InitialName()
	in.entered = now
	in.deadlineSet = false
}

// Return pops the most recent frame and resumes the caller. It reports
// false with an empty stack.
func (in *Instance) Return(now time.Time) bool {
	if len(in.stack) == 0 {
		return false
	}
	frame := in.stack[len(in.stack)-1]
	in.stack = in.stack[:len(in.stack)-1]
	in.module = frame.Module
	in.current = frame.ReturnTo
	in.entered = now
	in.deadlineSet = false
	return true
}

// Depth reports the submodule nesting depth.
func (in *Instance) Depth() int {
	return len(in.stack)
}

// Done reports whether the instance has completed.
func (in *Instance) Done() bool {
	return in.done
}

// Complete marks the instance finished; it is never evaluated again.
func (in *Instance) Complete() {
	in.done = true
}

// Created returns the instance's creation ordinal, the final tiebreak in
// evaluation ordering.
func (in *Instance) Created() int {
	return in.created
}
