// Package engine interprets clinical pathway modules over a simulated
// timeline to produce one patient's lifetime of clinical events.
//
// ARCHITECTURE:
//
// Per-Patient Single Owner:
// One goroutine owns one patient end to end. The patient's attributes,
// module instances and clinical record are never shared, so the engine
// holds no locks. Modules themselves are validated, immutable, and read
// concurrently by every patient.
//
// Tick Loop:
// 1. The clock starts at birth and advances by a fixed step.
// 2. Each tick, every active module instance is advanced in a fixed
//    order: priority, then module name, then creation order.
// 3. Advancing an instance runs states until one blocks (Guard false,
//    Delay pending), the module completes, or the patient dies.
// 4. Emitted events append to the clinical record in execution order.
// 5. The loop ends at death or at the configured end date.
//
// Determinism:
// Identical (seed, profile, module set, end date) inputs produce a
// byte-identical event sequence at any concurrency level. Every random
// draw for a patient comes from that patient's own source, in the order
// states declare them. Wall-clock time, goroutine identity and map
// iteration order never influence an outcome.
//
// Failure Isolation:
// Interpretation errors are patient-scoped: the offending patient's
// simulation stops with a SimError carrying the module, state and
// simulated time, and no other patient is affected. A per-tick step
// budget converts runaway cycles into the same kind of isolated failure.
package engine
