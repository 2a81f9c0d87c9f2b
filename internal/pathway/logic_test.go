package pathway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortgen/cohortgen/internal/person"
	"github.com/cohortgen/cohortgen/internal/rng"
)

func testPerson(t *testing.T) *person.Person {
	t.Helper()
	p, err := person.New(person.Profile{
		FirstName: "Ira",
		LastName:  "Stone",
		Sex:       person.Male,
		BirthDate: time.Date(1970, 6, 15, 0, 0, 0, 0, time.UTC),
		Attributes: map[string]any{
			"pack_years": 12.0,
			"payer":      "private",
			"smoker":     true,
			"quit_date":  time.Date(2001, 2, 3, 0, 0, 0, 0, time.UTC),
		},
	}, 0, rng.ForPatient(1, 0, 0))
	require.NoError(t, err)
	return p
}

var testNow = time.Date(2010, 6, 15, 0, 0, 0, 0, time.UTC)

func mustTest(t *testing.T, pred Predicate, p *person.Person) bool {
	t.Helper()
	ok, err := pred.Test(p, testNow)
	require.NoError(t, err)
	return ok
}

func TestBooleanPredicates(t *testing.T) {
	p := testPerson(t)

	assert.True(t, mustTest(t, True{}, p))
	assert.False(t, mustTest(t, False{}, p))
	assert.True(t, mustTest(t, Not{Condition: False{}}, p))
	assert.True(t, mustTest(t, And{Conditions: []Predicate{True{}, True{}}}, p))
	assert.False(t, mustTest(t, And{Conditions: []Predicate{True{}, False{}}}, p))
	assert.True(t, mustTest(t, Or{Conditions: []Predicate{False{}, True{}}}, p))
	assert.False(t, mustTest(t, Or{Conditions: []Predicate{False{}, False{}}}, p))
	assert.True(t, mustTest(t, And{}, p), "empty conjunction is vacuously true")
	assert.False(t, mustTest(t, Or{}, p), "empty disjunction is vacuously false")
}

func TestBooleanShortCircuitStopsOnError(t *testing.T) {
	p := testPerson(t)
	// Comparing a text attribute as a number errors; And should surface it.
	bad := Attribute{Attribute: "payer", Op: OpGreater, Value: 1.0}

	_, err := And{Conditions: []Predicate{True{}, bad}}.Test(p, testNow)
	var typeErr *person.AttributeTypeError
	require.ErrorAs(t, err, &typeErr)

	// A short-circuited And never reaches the failing predicate.
	ok, err := And{Conditions: []Predicate{False{}, bad}}.Test(p, testNow)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGender(t *testing.T) {
	p := testPerson(t)
	assert.True(t, mustTest(t, Gender{Is: person.Male}, p))
	assert.False(t, mustTest(t, Gender{Is: person.Female}, p))
}

func TestAge(t *testing.T) {
	p := testPerson(t)

	// Patient is 40 years old (modulo leap days under the 365-day year) at testNow.
	assert.True(t, mustTest(t, Age{Op: OpGreaterEqual, Quantity: 39, Unit: Years}, p))
	assert.False(t, mustTest(t, Age{Op: OpLess, Quantity: 30, Unit: Years}, p))
	assert.True(t, mustTest(t, Age{Op: OpGreater, Quantity: 470, Unit: Months}, p))

	_, err := Age{Op: OpGreater, Quantity: 1, Unit: "eons"}.Test(p, testNow)
	assert.Error(t, err)
}

func TestAgeBeforeBirthClampsToZero(t *testing.T) {
	p := testPerson(t)
	early := p.BirthDate.AddDate(-5, 0, 0)

	ok, err := Age{Op: OpEqual, Quantity: 0, Unit: Years}.Test(p, early)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDate(t *testing.T) {
	p := testPerson(t)
	assert.True(t, mustTest(t, Date{Op: OpGreaterEqual, Year: 2010}, p))
	assert.False(t, mustTest(t, Date{Op: OpLess, Year: 2000}, p))
}

func TestActivePredicates(t *testing.T) {
	p := testPerson(t)

	cond := ActiveCondition{Code: Code{System: "SNOMED-CT", Value: "44054006"}}
	med := ActiveMedication{Code: Code{System: "RxNorm", Value: "860975"}}
	plan := ActiveCarePlan{Code: Code{System: "SNOMED-CT", Value: "734163000"}}

	assert.False(t, mustTest(t, cond, p))
	assert.False(t, mustTest(t, med, p))
	assert.False(t, mustTest(t, plan, p))

	p.OnsetCondition("44054006")
	p.StartMedication("860975")
	p.StartCarePlan("734163000")

	assert.True(t, mustTest(t, cond, p))
	assert.True(t, mustTest(t, med, p))
	assert.True(t, mustTest(t, plan, p))
}

func TestSymptomCheck(t *testing.T) {
	p := testPerson(t)
	p.SetSymptom("fatigue", 55)

	assert.True(t, mustTest(t, SymptomCheck{Symptom: "fatigue", Op: OpGreater, Value: 50}, p))
	assert.False(t, mustTest(t, SymptomCheck{Symptom: "fatigue", Op: OpGreater, Value: 60}, p))
	assert.True(t, mustTest(t, SymptomCheck{Symptom: "unknown", Op: OpEqual, Value: 0}, p), "unset symptom reads as zero")
}

func TestAttributePredicate(t *testing.T) {
	p := testPerson(t)

	tests := []struct {
		name string
		pred Attribute
		want bool
	}{
		{"numeric greater", Attribute{Attribute: "pack_years", Op: OpGreater, Value: 10.0}, true},
		{"numeric int literal", Attribute{Attribute: "pack_years", Op: OpLessEqual, Value: 12}, true},
		{"text equal", Attribute{Attribute: "payer", Op: OpEqual, Value: "private"}, true},
		{"text not equal", Attribute{Attribute: "payer", Op: OpNotEqual, Value: "medicare"}, true},
		{"bool equal", Attribute{Attribute: "smoker", Op: OpEqual, Value: true}, true},
		{"date before", Attribute{Attribute: "quit_date", Op: OpLess, Value: time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC)}, true},
		{"present", Attribute{Attribute: "payer", Op: OpIsNotNil}, true},
		{"absent", Attribute{Attribute: "ghost", Op: OpIsNil}, true},
		{"unset comparison fails quietly", Attribute{Attribute: "ghost", Op: OpGreater, Value: 1.0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := tt.pred.Test(p, testNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestAttributePredicateTypeMismatch(t *testing.T) {
	p := testPerson(t)

	_, err := Attribute{Attribute: "payer", Op: OpGreaterEqual, Value: 3.0}.Test(p, testNow)
	var typeErr *person.AttributeTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Equal(t, "payer", typeErr.Attribute)
}

func TestAttributePredicateRejectsOrderedText(t *testing.T) {
	p := testPerson(t)

	_, err := Attribute{Attribute: "payer", Op: OpLess, Value: "zzz"}.Test(p, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires == or !=")
}

func TestValidOp(t *testing.T) {
	assert.True(t, ValidOp(OpLess))
	assert.True(t, ValidOp(OpIsNotNil))
	assert.False(t, ValidOp("~"))
}
