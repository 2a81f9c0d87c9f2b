package pathway

import (
	"fmt"
	"time"

	"github.com/cohortgen/cohortgen/internal/person"
)

// Op is a comparison operator used by predicates.
type Op string

const (
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpEqual        Op = "=="
	OpNotEqual     Op = "!="
	OpGreaterEqual Op = ">="
	OpGreater      Op = ">"
	OpIsNil        Op = "is nil"
	OpIsNotNil     Op = "is not nil"
)

// ValidOp reports whether op is a known operator.
func ValidOp(op Op) bool {
	switch op {
	case OpLess, OpLessEqual, OpEqual, OpNotEqual, OpGreaterEqual, OpGreater, OpIsNil, OpIsNotNil:
		return true
	}
	return false
}

// Predicate is a pure boolean test over a patient's attributes, demographic
// facts, active clinical context and the simulated date. Predicates never
// mutate anything and never draw randomness, so re-evaluation is free.
type Predicate interface {
	Test(p *person.Person, now time.Time) (bool, error)
}

// True always passes.
type True struct{}

func (True) Test(*person.Person, time.Time) (bool, error) { return true, nil }

// False never passes.
type False struct{}

func (False) Test(*person.Person, time.Time) (bool, error) { return false, nil }

// And passes when every sub-predicate passes. Evaluation short-circuits in
// declared order.
type And struct {
	Conditions []Predicate
}

func (a And) Test(p *person.Person, now time.Time) (bool, error) {
	for _, c := range a.Conditions {
		ok, err := c.Test(p, now)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Or passes when any sub-predicate passes. Evaluation short-circuits in
// declared order.
type Or struct {
	Conditions []Predicate
}

func (o Or) Test(p *person.Person, now time.Time) (bool, error) {
	for _, c := range o.Conditions {
		ok, err := c.Test(p, now)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Not inverts its sub-predicate.
type Not struct {
	Condition Predicate
}

func (n Not) Test(p *person.Person, now time.Time) (bool, error) {
	ok, err := n.Condition.Test(p, now)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Gender passes when the patient's administrative sex matches.
type Gender struct {
	Is person.Sex
}

func (g Gender) Test(p *person.Person, _ time.Time) (bool, error) {
	return p.Sex == g.Is, nil
}

// Age compares the patient's age, measured in Unit, against Quantity.
type Age struct {
	Op       Op
	Quantity float64
	Unit     Unit
}

func (a Age) Test(p *person.Person, now time.Time) (bool, error) {
	span, err := a.Unit.Span()
	if err != nil {
		return false, err
	}
	age := float64(now.Sub(p.BirthDate)) / float64(span)
	if age < 0 {
		age = 0
	}
	return compareFloat(a.Op, age, a.Quantity)
}

// Date compares the simulated calendar year against Year.
type Date struct {
	Op   Op
	Year int
}

func (d Date) Test(_ *person.Person, now time.Time) (bool, error) {
	return compareFloat(d.Op, float64(now.Year()), float64(d.Year))
}

// ActiveCondition passes while the coded condition is active.
type ActiveCondition struct {
	Code Code
}

func (c ActiveCondition) Test(p *person.Person, _ time.Time) (bool, error) {
	return p.HasActiveCondition(c.Code.Value), nil
}

// ActiveMedication passes while the coded medication is active.
type ActiveMedication struct {
	Code Code
}

func (m ActiveMedication) Test(p *person.Person, _ time.Time) (bool, error) {
	return p.HasActiveMedication(m.Code.Value), nil
}

// ActiveCarePlan passes while the coded care plan is active.
type ActiveCarePlan struct {
	Code Code
}

func (c ActiveCarePlan) Test(p *person.Person, _ time.Time) (bool, error) {
	return p.HasActiveCarePlan(c.Code.Value), nil
}

// PriorState passes once the patient has executed the named state. An
// empty Module matches the state name in any module the patient has run.
type PriorState struct {
	Module string
	State  string
}

func (s PriorState) Test(p *person.Person, _ time.Time) (bool, error) {
	return p.HasVisited(s.Module, s.State), nil
}

// SymptomCheck compares the current severity of a named symptom.
type SymptomCheck struct {
	Symptom string
	Op      Op
	Value   float64
}

func (s SymptomCheck) Test(p *person.Person, _ time.Time) (bool, error) {
	return compareFloat(s.Op, float64(p.Symptom(s.Symptom)), s.Value)
}

// Attribute compares a stored patient attribute against Value.
//
// The nil checks (OpIsNil, OpIsNotNil) test presence and ignore Value.
// For the ordered and equality operators, an unset attribute fails the
// test without error; a set attribute of the wrong kind is an
// *person.AttributeTypeError, which fails the patient.
type Attribute struct {
	Attribute string
	Op        Op
	Value     any
}

func (a Attribute) Test(p *person.Person, _ time.Time) (bool, error) {
	switch a.Op {
	case OpIsNil:
		return !p.Attributes.Has(a.Attribute), nil
	case OpIsNotNil:
		return p.Attributes.Has(a.Attribute), nil
	}

	switch want := a.Value.(type) {
	case float64:
		stored, ok, err := p.Attributes.Number(a.Attribute)
		if err != nil || !ok {
			return false, err
		}
		return compareFloat(a.Op, stored, want)
	case int:
		stored, ok, err := p.Attributes.Number(a.Attribute)
		if err != nil || !ok {
			return false, err
		}
		return compareFloat(a.Op, stored, float64(want))
	case string:
		stored, ok, err := p.Attributes.Text(a.Attribute)
		if err != nil || !ok {
			return false, err
		}
		return compareEquality(a.Op, stored == want)
	case bool:
		stored, ok, err := p.Attributes.Bool(a.Attribute)
		if err != nil || !ok {
			return false, err
		}
		return compareEquality(a.Op, stored == want)
	case time.Time:
		stored, ok, err := p.Attributes.Date(a.Attribute)
		if err != nil || !ok {
			return false, err
		}
		switch a.Op {
		case OpEqual:
			return stored.Equal(want), nil
		case OpNotEqual:
			return !stored.Equal(want), nil
		case OpLess:
			return stored.Before(want), nil
		case OpLessEqual:
			return !stored.After(want), nil
		case OpGreater:
			return stored.After(want), nil
		case OpGreaterEqual:
			return !stored.Before(want), nil
		}
		return false, fmt.Errorf("operator %q not supported for dates", string(a.Op))
	default:
		return false, fmt.Errorf("attribute %q: unsupported comparison value %T", a.Attribute, a.Value)
	}
}

func compareFloat(op Op, got, want float64) (bool, error) {
	switch op {
	case OpLess:
		return got < want, nil
	case OpLessEqual:
		return got <= want, nil
	case OpEqual:
		return got == want, nil
	case OpNotEqual:
		return got != want, nil
	case OpGreaterEqual:
		return got >= want, nil
	case OpGreater:
		return got > want, nil
	default:
		return false, fmt.Errorf("operator %q not supported for numbers", string(op))
	}
}

func compareEquality(op Op, equal bool) (bool, error) {
	switch op {
	case OpEqual:
		return equal, nil
	case OpNotEqual:
		return !equal, nil
	default:
		return false, fmt.Errorf("operator %q requires == or !=", string(op))
	}
}
