package person

import (
	"fmt"
	"sort"
	"time"
)

// Attributes is the mutable typed key/value store scoped to one patient.
// It persists across every module instance the patient runs and is owned
// by the worker simulating that patient; it is not safe for concurrent use.
//
// Stored values are one of: float64 (numeric), string, bool, time.Time.
// Integer inputs are widened to float64 on Set so that module authors can
// write whole numbers without creating a distinct numeric type.
type Attributes struct {
	values map[string]any
}

// NewAttributes returns an empty store.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]any)}
}

// AttributeTypeError reports a read or write that disagrees with the type
// already stored under an attribute name. It is patient-scoped: the
// simulation that triggered it fails, siblings are unaffected.
type AttributeTypeError struct {
	Attribute string
	Want      string
	Got       string
}

func (e *AttributeTypeError) Error() string {
	return fmt.Sprintf("attribute %q: have %s, want %s", e.Attribute, e.Got, e.Want)
}

// kindName reports the storage kind of v for error messages.
func kindName(v any) string {
	switch v.(type) {
	case float64:
		return "numeric"
	case string:
		return "text"
	case bool:
		return "boolean"
	case time.Time:
		return "date"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Set stores v under name. Supported kinds are numeric, text, boolean and
// date; integers are widened to float64. Any other kind is rejected.
func (a *Attributes) Set(name string, v any) error {
	switch t := v.(type) {
	case float64, string, bool, time.Time:
		a.values[name] = v
	case int:
		a.values[name] = float64(t)
	case int64:
		a.values[name] = float64(t)
	case float32:
		a.values[name] = float64(t)
	default:
		return &AttributeTypeError{Attribute: name, Want: "numeric, text, boolean or date", Got: kindName(v)}
	}
	return nil
}

// Get returns the raw stored value.
func (a *Attributes) Get(name string) (any, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Has reports whether name is set.
func (a *Attributes) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// Delete removes name. Deleting an absent name is a no-op.
func (a *Attributes) Delete(name string) {
	delete(a.values, name)
}

// Number reads name as a numeric attribute. ok is false when the name is
// unset; err is an *AttributeTypeError when it is set to another kind.
func (a *Attributes) Number(name string) (v float64, ok bool, err error) {
	raw, present := a.values[name]
	if !present {
		return 0, false, nil
	}
	f, isNum := raw.(float64)
	if !isNum {
		return 0, true, &AttributeTypeError{Attribute: name, Want: "numeric", Got: kindName(raw)}
	}
	return f, true, nil
}

// Text reads name as a text attribute.
func (a *Attributes) Text(name string) (v string, ok bool, err error) {
	raw, present := a.values[name]
	if !present {
		return "", false, nil
	}
	s, isStr := raw.(string)
	if !isStr {
		return "", true, &AttributeTypeError{Attribute: name, Want: "text", Got: kindName(raw)}
	}
	return s, true, nil
}

// Bool reads name as a boolean attribute.
func (a *Attributes) Bool(name string) (v bool, ok bool, err error) {
	raw, present := a.values[name]
	if !present {
		return false, false, nil
	}
	b, isBool := raw.(bool)
	if !isBool {
		return false, true, &AttributeTypeError{Attribute: name, Want: "boolean", Got: kindName(raw)}
	}
	return b, true, nil
}

// Date reads name as a date attribute.
func (a *Attributes) Date(name string) (v time.Time, ok bool, err error) {
	raw, present := a.values[name]
	if !present {
		return time.Time{}, false, nil
	}
	t, isTime := raw.(time.Time)
	if !isTime {
		return time.Time{}, true, &AttributeTypeError{Attribute: name, Want: "date", Got: kindName(raw)}
	}
	return t, true, nil
}

// Names returns the set attribute names in sorted order. Exports and
// validation iterate attributes through Names so output never depends on
// map iteration order.
func (a *Attributes) Names() []string {
	names := make([]string, 0, len(a.values))
	for n := range a.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of set attributes.
func (a *Attributes) Len() int {
	return len(a.values)
}
