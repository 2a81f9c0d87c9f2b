package pathway

import (
	"fmt"
	"time"

	"github.com/cohortgen/cohortgen/internal/rng"
)

// Unit is a calendar-ish time unit used by delays, ages and procedure
// durations. Months and years use the fixed 30/365-day convention so that
// sampling is independent of the calendar position of the clock.
type Unit string

const (
	Hours  Unit = "hours"
	Days   Unit = "days"
	Weeks  Unit = "weeks"
	Months Unit = "months"
	Years  Unit = "years"
)

// Span returns the length of one unit.
func (u Unit) Span() (time.Duration, error) {
	switch u {
	case Hours:
		return time.Hour, nil
	case Days:
		return 24 * time.Hour, nil
	case Weeks:
		return 7 * 24 * time.Hour, nil
	case Months:
		return 30 * 24 * time.Hour, nil
	case Years:
		return 365 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown time unit %q", string(u))
	}
}

// DurationSpec describes how long something lasts. Low == High is an exact
// duration and consumes no random draw; otherwise Sample draws one uniform
// value in [Low, High).
type DurationSpec struct {
	Low  float64
	High float64
	Unit Unit
}

// Exact returns a spec for a fixed quantity of a unit.
func Exact(quantity float64, unit Unit) DurationSpec {
	return DurationSpec{Low: quantity, High: quantity, Unit: unit}
}

// Validate checks the spec is usable before simulation starts.
func (d DurationSpec) Validate() error {
	if _, err := d.Unit.Span(); err != nil {
		return err
	}
	if d.Low < 0 || d.High < 0 {
		return fmt.Errorf("duration bounds must be non-negative, got [%v, %v]", d.Low, d.High)
	}
	if d.Low > d.High {
		return fmt.Errorf("duration low %v exceeds high %v", d.Low, d.High)
	}
	return nil
}

// Sample draws a concrete duration. Exact specs (Low == High) do not touch
// the source, keeping the draw sequence identical whether an author writes
// an exact delay or a degenerate range.
func (d DurationSpec) Sample(src *rng.Source) (time.Duration, error) {
	span, err := d.Unit.Span()
	if err != nil {
		return 0, err
	}
	q := d.Low
	if d.Low != d.High {
		q = src.Float64Between(d.Low, d.High)
	}
	return time.Duration(q * float64(span)), nil
}

// IntRange is an inclusive integer range, used for symptom severities.
type IntRange struct {
	Low  int
	High int
}

// Validate checks the range is ordered.
func (r IntRange) Validate() error {
	if r.Low > r.High {
		return fmt.Errorf("range low %d exceeds high %d", r.Low, r.High)
	}
	return nil
}

// Sample draws a uniform integer in [Low, High]. A degenerate range
// consumes no draw.
func (r IntRange) Sample(src *rng.Source) int {
	if r.Low == r.High {
		return r.Low
	}
	return src.IntBetween(r.Low, r.High)
}

// ValueSpec describes how an Observation obtains its value. It is a closed
// sum: exact number, uniform range, or a numeric patient attribute.
type ValueSpec interface {
	isValueSpec()
}

// ExactValue yields a fixed quantity.
type ExactValue struct {
	Quantity float64
}

// RangeValue yields a uniform draw in [Low, High).
type RangeValue struct {
	Low  float64
	High float64
}

// AttributeValue reads a numeric attribute from the patient.
type AttributeValue struct {
	Attribute string
}

func (ExactValue) isValueSpec()     {}
func (RangeValue) isValueSpec()     {}
func (AttributeValue) isValueSpec() {}
