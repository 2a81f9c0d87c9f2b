// Package pathway defines the in-memory representation of clinical pathway
// modules: the state graph, transition rules, predicates, and sampling
// specifications the engine interprets against a simulated timeline.
//
// A Module is an immutable named graph of States keyed by state name.
// Exactly one state is the Initial entry point and at least one Terminal
// must be reachable from it; Validate enforces both along with per-kind
// structural rules. Cycles are legal and expected for recurring clinical
// logic, so validation never requires acyclicity.
//
// State is a closed sum: the interpreter dispatches on concrete type and a
// new kind forces a compile-visible update at every switch. Transitions and
// observation value specifications follow the same pattern.
//
// Modules are shared read-only across all concurrently simulated patients.
// Nothing in this package mutates a Module after validation.
package pathway
