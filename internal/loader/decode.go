package loader

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"

	"github.com/cohortgen/cohortgen/internal/pathway"
	"github.com/cohortgen/cohortgen/internal/person"
)

// rawModule is the JSON shape of a module file. States stay generic
// here; decodeState turns each into its typed kind.
type rawModule struct {
	Name     string                    `json:"name"`
	Priority int                       `json:"priority"`
	Remarks  string                    `json:"remarks"`
	States   map[string]map[string]any `json:"states"`
}

type rawCode struct {
	System  string `mapstructure:"system"`
	Code    string `mapstructure:"code"`
	Display string `mapstructure:"display"`
}

func (c *rawCode) toCode() pathway.Code {
	if c == nil {
		return pathway.Code{}
	}
	return pathway.Code{System: c.System, Value: c.Code, Display: c.Display}
}

type rawExact struct {
	Quantity float64 `mapstructure:"quantity"`
	Unit     string  `mapstructure:"unit"`
}

type rawRange struct {
	Low  float64 `mapstructure:"low"`
	High float64 `mapstructure:"high"`
	Unit string  `mapstructure:"unit"`
}

type rawChoice struct {
	Distribution float64 `mapstructure:"distribution"`
	Transition   string  `mapstructure:"transition"`
}

type rawCase struct {
	Condition  map[string]any `mapstructure:"condition"`
	Transition string         `mapstructure:"transition"`
}

// rawState is the union of every per-kind field; the schema has already
// constrained which combinations appear.
type rawState struct {
	Type string `mapstructure:"type"`

	DirectTransition      string      `mapstructure:"direct_transition"`
	DistributedTransition []rawChoice `mapstructure:"distributed_transition"`
	ConditionalTransition []rawCase   `mapstructure:"conditional_transition"`

	Allow          map[string]any `mapstructure:"allow"`
	Exact          *rawExact      `mapstructure:"exact"`
	Range          *rawRange      `mapstructure:"range"`
	Duration       *rawRange      `mapstructure:"duration"`
	Code           *rawCode       `mapstructure:"code"`
	EncounterClass string         `mapstructure:"encounter_class"`
	Reason         string         `mapstructure:"reason"`
	AssignTo       string         `mapstructure:"assign_to_attribute"`
	ReferencedBy   string         `mapstructure:"referenced_by_attribute"`
	Attribute      string         `mapstructure:"attribute"`
	Value          any            `mapstructure:"value"`
	Unit           string         `mapstructure:"unit"`
	Symptom        string         `mapstructure:"symptom"`
	Submodule      string         `mapstructure:"submodule"`
}

// decodeModule turns validated JSON into a typed module.
func decodeModule(data []byte) (*pathway.Module, error) {
	var raw rawModule
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding module: %w", err)
	}

	m := &pathway.Module{
		Name:     raw.Name,
		Priority: raw.Priority,
		Remarks:  raw.Remarks,
		States:   make(map[string]pathway.State, len(raw.States)),
	}

	names := make([]string, 0, len(raw.States))
	for name := range raw.States {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st, err := decodeState(name, raw.States[name])
		if err != nil {
			return nil, fmt.Errorf("state %q: %w", name, err)
		}
		m.States[name] = st
	}
	return m, nil
}

// decode runs mapstructure with unused-field errors enabled; combined
// with the closed CUE schema this makes field typos impossible to load.
func decode(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

func decodeState(name string, fields map[string]any) (pathway.State, error) {
	var raw rawState
	if err := decode(fields, &raw); err != nil {
		return nil, err
	}

	next, err := buildTransition(raw)
	if err != nil {
		return nil, err
	}
	base := pathway.Base{Name: name, Next: next}

	switch raw.Type {
	case "Initial":
		return &pathway.Initial{Base: base}, nil
	case "Terminal":
		return &pathway.Terminal{Base: base}, nil
	case "Simple":
		return &pathway.Simple{Base: base}, nil

	case "Guard":
		if raw.Allow == nil {
			return nil, fmt.Errorf("guard requires an allow condition")
		}
		allow, err := buildPredicate(raw.Allow)
		if err != nil {
			return nil, err
		}
		return &pathway.Guard{Base: base, Allow: allow}, nil

	case "Delay":
		spec, err := durationSpec(raw.Exact, raw.Range)
		if err != nil {
			return nil, err
		}
		return &pathway.Delay{Base: base, Duration: spec}, nil

	case "Encounter":
		return &pathway.Encounter{Base: base, Class: raw.EncounterClass, Code: raw.Code.toCode(), Reason: raw.Reason}, nil
	case "EncounterEnd":
		return &pathway.EncounterEnd{Base: base}, nil

	case "ConditionOnset":
		return &pathway.ConditionOnset{Base: base, Code: raw.Code.toCode(), Assign: raw.AssignTo}, nil
	case "ConditionEnd":
		return &pathway.ConditionEnd{Base: base, Code: raw.Code.toCode(), Attribute: raw.ReferencedBy}, nil

	case "MedicationOrder":
		return &pathway.MedicationOrder{Base: base, Code: raw.Code.toCode(), Assign: raw.AssignTo, Reason: raw.Reason}, nil
	case "MedicationEnd":
		return &pathway.MedicationEnd{Base: base, Code: raw.Code.toCode(), Attribute: raw.ReferencedBy}, nil

	case "CarePlanStart":
		return &pathway.CarePlanStart{Base: base, Code: raw.Code.toCode(), Assign: raw.AssignTo}, nil
	case "CarePlanEnd":
		return &pathway.CarePlanEnd{Base: base, Code: raw.Code.toCode(), Attribute: raw.ReferencedBy}, nil

	case "Procedure":
		st := &pathway.ProcedureRequest{Base: base, Code: raw.Code.toCode(), Reason: raw.Reason}
		if raw.Duration != nil {
			spec, err := durationSpec(nil, raw.Duration)
			if err != nil {
				return nil, err
			}
			st.Duration = &spec
		}
		return st, nil

	case "Observation":
		value, err := valueSpec(raw)
		if err != nil {
			return nil, err
		}
		return &pathway.Observation{Base: base, Code: raw.Code.toCode(), Unit: raw.Unit, Value: value}, nil

	case "Symptom":
		severity, err := severityRange(raw.Exact, raw.Range)
		if err != nil {
			return nil, err
		}
		return &pathway.Symptom{Base: base, Symptom: raw.Symptom, Severity: severity}, nil

	case "SetAttribute":
		return &pathway.SetAttribute{Base: base, Attribute: raw.Attribute, Value: raw.Value}, nil

	case "CallSubmodule":
		return &pathway.CallSubmodule{Base: base, Submodule: raw.Submodule}, nil

	case "Death":
		return &pathway.Death{Base: base, Cause: raw.Code.toCode()}, nil

	case "Distributed":
		return &pathway.Distributed{Base: base}, nil
	case "Conditional":
		return &pathway.Conditional{Base: base}, nil

	default:
		return nil, fmt.Errorf("unknown state type %q", raw.Type)
	}
}

// buildTransition assembles the declared transition form. At most one
// form may be present; none is legal only for Terminal and Death, which
// module validation enforces.
func buildTransition(raw rawState) (pathway.Transition, error) {
	declared := 0
	if raw.DirectTransition != "" {
		declared++
	}
	if len(raw.DistributedTransition) > 0 {
		declared++
	}
	if len(raw.ConditionalTransition) > 0 {
		declared++
	}
	if declared > 1 {
		return nil, fmt.Errorf("more than one transition form declared")
	}

	switch {
	case raw.DirectTransition != "":
		return &pathway.DirectTransition{To: raw.DirectTransition}, nil

	case len(raw.DistributedTransition) > 0:
		choices := make([]pathway.WeightedChoice, len(raw.DistributedTransition))
		for i, c := range raw.DistributedTransition {
			choices[i] = pathway.WeightedChoice{Weight: c.Distribution, To: c.Transition}
		}
		return &pathway.DistributedTransition{Choices: choices}, nil

	case len(raw.ConditionalTransition) > 0:
		tr := &pathway.ConditionalTransition{}
		for i, c := range raw.ConditionalTransition {
			if c.Condition == nil {
				if i != len(raw.ConditionalTransition)-1 {
					return nil, fmt.Errorf("conditional case %d has no condition but is not last", i)
				}
				tr.Default = c.Transition
				continue
			}
			pred, err := buildPredicate(c.Condition)
			if err != nil {
				return nil, err
			}
			tr.Cases = append(tr.Cases, pathway.ConditionalCase{If: pred, To: c.Transition})
		}
		return tr, nil

	default:
		return nil, nil
	}
}

func durationSpec(exact *rawExact, rng *rawRange) (pathway.DurationSpec, error) {
	switch {
	case exact != nil && rng != nil:
		return pathway.DurationSpec{}, fmt.Errorf("both exact and range declared")
	case exact != nil:
		if exact.Unit == "" {
			return pathway.DurationSpec{}, fmt.Errorf("exact duration requires a unit")
		}
		return pathway.Exact(exact.Quantity, pathway.Unit(exact.Unit)), nil
	case rng != nil:
		if rng.Unit == "" {
			return pathway.DurationSpec{}, fmt.Errorf("ranged duration requires a unit")
		}
		return pathway.DurationSpec{Low: rng.Low, High: rng.High, Unit: pathway.Unit(rng.Unit)}, nil
	default:
		return pathway.DurationSpec{}, fmt.Errorf("missing exact or range duration")
	}
}

func valueSpec(raw rawState) (pathway.ValueSpec, error) {
	switch {
	case raw.Exact != nil:
		return pathway.ExactValue{Quantity: raw.Exact.Quantity}, nil
	case raw.Range != nil:
		return pathway.RangeValue{Low: raw.Range.Low, High: raw.Range.High}, nil
	case raw.Attribute != "":
		return pathway.AttributeValue{Attribute: raw.Attribute}, nil
	default:
		return nil, fmt.Errorf("observation requires exact, range or attribute")
	}
}

func severityRange(exact *rawExact, rng *rawRange) (pathway.IntRange, error) {
	switch {
	case exact != nil:
		return pathway.IntRange{Low: int(exact.Quantity), High: int(exact.Quantity)}, nil
	case rng != nil:
		return pathway.IntRange{Low: int(rng.Low), High: int(rng.High)}, nil
	default:
		return pathway.IntRange{}, fmt.Errorf("symptom requires exact or range severity")
	}
}

// rawCondition is the union of predicate fields, discriminated by
// condition_type.
type rawCondition struct {
	Type       string           `mapstructure:"condition_type"`
	Conditions []map[string]any `mapstructure:"conditions"`
	Condition  map[string]any   `mapstructure:"condition"`
	Gender     string           `mapstructure:"gender"`
	Operator   string           `mapstructure:"operator"`
	Quantity   float64          `mapstructure:"quantity"`
	Unit       string           `mapstructure:"unit"`
	Year       int              `mapstructure:"year"`
	Attribute  string           `mapstructure:"attribute"`
	Value      any              `mapstructure:"value"`
	Code       *rawCode         `mapstructure:"code"`
	Symptom    string           `mapstructure:"symptom"`
	Name       string           `mapstructure:"name"`
	Module     string           `mapstructure:"module"`
}

func buildPredicate(fields map[string]any) (pathway.Predicate, error) {
	var raw rawCondition
	if err := decode(fields, &raw); err != nil {
		return nil, err
	}

	op := pathway.Op(raw.Operator)
	switch raw.Type {
	case "True":
		return pathway.True{}, nil
	case "False":
		return pathway.False{}, nil

	case "And", "Or":
		if len(raw.Conditions) == 0 {
			return nil, fmt.Errorf("%s requires sub-conditions", raw.Type)
		}
		subs := make([]pathway.Predicate, len(raw.Conditions))
		for i, c := range raw.Conditions {
			sub, err := buildPredicate(c)
			if err != nil {
				return nil, err
			}
			subs[i] = sub
		}
		if raw.Type == "And" {
			return pathway.And{Conditions: subs}, nil
		}
		return pathway.Or{Conditions: subs}, nil

	case "Not":
		if raw.Condition == nil {
			return nil, fmt.Errorf("Not requires a sub-condition")
		}
		sub, err := buildPredicate(raw.Condition)
		if err != nil {
			return nil, err
		}
		return pathway.Not{Condition: sub}, nil

	case "Gender":
		return pathway.Gender{Is: person.Sex(raw.Gender)}, nil

	case "Age":
		if !pathway.ValidOp(op) {
			return nil, fmt.Errorf("Age has invalid operator %q", raw.Operator)
		}
		return pathway.Age{Op: op, Quantity: raw.Quantity, Unit: pathway.Unit(raw.Unit)}, nil

	case "Date":
		if !pathway.ValidOp(op) {
			return nil, fmt.Errorf("Date has invalid operator %q", raw.Operator)
		}
		return pathway.Date{Op: op, Year: raw.Year}, nil

	case "Attribute":
		if raw.Attribute == "" {
			return nil, fmt.Errorf("Attribute requires an attribute name")
		}
		if !pathway.ValidOp(op) {
			return nil, fmt.Errorf("Attribute has invalid operator %q", raw.Operator)
		}
		return pathway.Attribute{Attribute: raw.Attribute, Op: op, Value: raw.Value}, nil

	case "ActiveCondition":
		return pathway.ActiveCondition{Code: raw.Code.toCode()}, nil
	case "ActiveMedication":
		return pathway.ActiveMedication{Code: raw.Code.toCode()}, nil
	case "ActiveCarePlan":
		return pathway.ActiveCarePlan{Code: raw.Code.toCode()}, nil

	case "Symptom":
		if !pathway.ValidOp(op) {
			return nil, fmt.Errorf("Symptom has invalid operator %q", raw.Operator)
		}
		return pathway.SymptomCheck{Symptom: raw.Symptom, Op: op, Value: raw.Quantity}, nil

	case "PriorState":
		if raw.Name == "" {
			return nil, fmt.Errorf("PriorState requires a state name")
		}
		return pathway.PriorState{Module: raw.Module, State: raw.Name}, nil

	default:
		return nil, fmt.Errorf("unknown condition type %q", raw.Type)
	}
}
