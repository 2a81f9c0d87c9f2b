package pathway

import (
	"fmt"
	"sort"
)

// Module is an immutable named graph of states describing one clinical
// pathway. After Validate succeeds a module is shared read-only across
// every patient in a run.
type Module struct {
	Name     string
	Priority int
	Remarks  string
	States   map[string]State
}

// State looks up a state by name.
func (m *Module) State(name string) (State, bool) {
	s, ok := m.States[name]
	return s, ok
}

// InitialName returns the name of the module's Initial state, empty when
// the module has none (Validate rejects that).
func (m *Module) InitialName() string {
	for name, s := range m.States {
		if _, ok := s.(*Initial); ok {
			return name
		}
	}
	return ""
}

// StateNames returns all state names in sorted order.
func (m *Module) StateNames() []string {
	names := make([]string, 0, len(m.States))
	for n := range m.States {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SubmoduleRefs returns the sorted, de-duplicated set of module names this
// module calls.
func (m *Module) SubmoduleRefs() []string {
	seen := map[string]bool{}
	for _, s := range m.States {
		if call, ok := s.(*CallSubmodule); ok && !seen[call.Submodule] {
			seen[call.Submodule] = true
		}
	}
	refs := make([]string, 0, len(seen))
	for r := range seen {
		refs = append(refs, r)
	}
	sort.Strings(refs)
	return refs
}

// Validate checks the structural invariants the engine relies on: exactly
// one Initial, every transition target resolvable, per-kind fields
// present, and at least one Terminal reachable from the Initial. Weight
// sums are deliberately not checked here; they are an evaluation-time
// concern so that a malformed distribution fails only the patients that
// reach it under the configured policy.
func (m *Module) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("module has no name")
	}
	if len(m.States) == 0 {
		return fmt.Errorf("module %q has no states", m.Name)
	}

	var initial string
	for _, name := range m.StateNames() {
		s := m.States[name]
		if s == nil {
			return fmt.Errorf("module %q: state %q is nil", m.Name, name)
		}
		if s.StateName() != name {
			return fmt.Errorf("module %q: state keyed %q names itself %q", m.Name, name, s.StateName())
		}
		if _, ok := s.(*Initial); ok {
			if initial != "" {
				return fmt.Errorf("module %q: more than one Initial state (%q, %q)", m.Name, initial, name)
			}
			initial = name
		}
		if err := m.validateState(s); err != nil {
			return fmt.Errorf("module %q: state %q: %w", m.Name, name, err)
		}
	}
	if initial == "" {
		return fmt.Errorf("module %q has no Initial state", m.Name)
	}

	reachable := m.reachableFrom(initial)
	terminalReachable := false
	for name := range reachable {
		if _, ok := m.States[name].(*Terminal); ok {
			terminalReachable = true
			break
		}
	}
	if !terminalReachable {
		return fmt.Errorf("module %q: no Terminal state is reachable from %q", m.Name, initial)
	}
	return nil
}

func (m *Module) validateState(s State) error {
	switch st := s.(type) {
	case *Terminal, *Death:
		// Transition optional.
	default:
		if st.Transition() == nil {
			return fmt.Errorf("missing transition")
		}
	}

	for _, target := range Targets(s.Transition()) {
		if _, ok := m.States[target]; !ok {
			return fmt.Errorf("transition target %q does not exist", target)
		}
	}

	switch st := s.(type) {
	case *Guard:
		if st.Allow == nil {
			return fmt.Errorf("guard has no allow predicate")
		}
	case *Delay:
		if err := st.Duration.Validate(); err != nil {
			return err
		}
	case *Distributed:
		tr, ok := st.Next.(*DistributedTransition)
		if !ok {
			return fmt.Errorf("distributed state requires a distributed transition")
		}
		if len(tr.Choices) == 0 {
			return fmt.Errorf("distributed transition has no choices")
		}
	case *Conditional:
		tr, ok := st.Next.(*ConditionalTransition)
		if !ok {
			return fmt.Errorf("conditional state requires a conditional transition")
		}
		if len(tr.Cases) == 0 && tr.Default == "" {
			return fmt.Errorf("conditional transition has no cases and no default")
		}
		for i, c := range tr.Cases {
			if c.If == nil {
				return fmt.Errorf("conditional case %d has no predicate", i)
			}
		}
	case *Observation:
		if st.Value == nil {
			return fmt.Errorf("observation has no value specification")
		}
	case *Symptom:
		if st.Symptom == "" {
			return fmt.Errorf("symptom has no name")
		}
		if err := st.Severity.Validate(); err != nil {
			return err
		}
	case *SetAttribute:
		if st.Attribute == "" {
			return fmt.Errorf("set attribute has no attribute name")
		}
	case *CallSubmodule:
		if st.Submodule == "" {
			return fmt.Errorf("call submodule has no module name")
		}
	case *ConditionEnd:
		if st.Code.IsZero() && st.Attribute == "" {
			return fmt.Errorf("condition end needs a code or an attribute reference")
		}
	case *MedicationEnd:
		if st.Code.IsZero() && st.Attribute == "" {
			return fmt.Errorf("medication end needs a code or an attribute reference")
		}
	case *CarePlanEnd:
		if st.Code.IsZero() && st.Attribute == "" {
			return fmt.Errorf("care plan end needs a code or an attribute reference")
		}
	case *ProcedureRequest:
		if st.Duration != nil {
			if err := st.Duration.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// reachableFrom walks transition edges from start. CallSubmodule return
// paths count as edges; the callee graph lives in another module and is
// not this module's concern.
func (m *Module) reachableFrom(start string) map[string]bool {
	reachable := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		s, ok := m.States[name]
		if !ok {
			continue
		}
		for _, target := range Targets(s.Transition()) {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}
	return reachable
}

// Unreachable returns states no path from the Initial touches, sorted.
// Orphans are legal (authors stage work-in-progress branches) but worth
// surfacing in tooling.
func (m *Module) Unreachable() []string {
	initial := m.InitialName()
	if initial == "" {
		return nil
	}
	reachable := m.reachableFrom(initial)
	var orphans []string
	for _, name := range m.StateNames() {
		if !reachable[name] {
			orphans = append(orphans, name)
		}
	}
	return orphans
}
