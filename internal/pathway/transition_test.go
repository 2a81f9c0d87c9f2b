package pathway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizedExactSum(t *testing.T) {
	tr := &DistributedTransition{Choices: []WeightedChoice{
		{Weight: 0.3, To: "A"},
		{Weight: 0.7, To: "B"},
	}}

	choices, err := tr.Normalized(false)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, choices[0].Weight, 1e-12)
	assert.InDelta(t, 0.7, choices[1].Weight, 1e-12)
}

func TestNormalizedWithinTolerance(t *testing.T) {
	tr := &DistributedTransition{Choices: []WeightedChoice{
		{Weight: 0.3000000001, To: "A"},
		{Weight: 0.7, To: "B"},
	}}

	choices, err := tr.Normalized(false)
	require.NoError(t, err)

	sum := 0.0
	for _, c := range choices {
		sum += c.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestNormalizedStrictRejectsDrift(t *testing.T) {
	tr := &DistributedTransition{Choices: []WeightedChoice{
		{Weight: 0.5, To: "A"},
		{Weight: 0.7, To: "B"},
	}}

	_, err := tr.Normalized(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside tolerance")

	choices, err := tr.Normalized(true)
	require.NoError(t, err)
	assert.InDelta(t, 0.5/1.2, choices[0].Weight, 1e-12)
	assert.InDelta(t, 0.7/1.2, choices[1].Weight, 1e-12)
}

func TestNormalizedRejectsBadWeights(t *testing.T) {
	for _, tt := range []struct {
		name    string
		choices []WeightedChoice
	}{
		{"negative", []WeightedChoice{{Weight: -0.1, To: "A"}, {Weight: 1.1, To: "B"}}},
		{"zero sum", []WeightedChoice{{Weight: 0, To: "A"}, {Weight: 0, To: "B"}}},
		{"empty", nil},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tr := &DistributedTransition{Choices: tt.choices}
			_, err := tr.Normalized(true)
			assert.Error(t, err, "lenient mode still rejects non-probabilities")
		})
	}
}

func TestPickWalksCumulativeMass(t *testing.T) {
	choices := []WeightedChoice{
		{Weight: 0.3, To: "A"},
		{Weight: 0.5, To: "B"},
		{Weight: 0.2, To: "C"},
	}

	assert.Equal(t, "A", Pick(choices, 0.0))
	assert.Equal(t, "A", Pick(choices, 0.29))
	assert.Equal(t, "A", Pick(choices, 0.3), "boundary belongs to the earlier choice")
	assert.Equal(t, "B", Pick(choices, 0.31))
	assert.Equal(t, "B", Pick(choices, 0.8))
	assert.Equal(t, "C", Pick(choices, 0.81))
	assert.Equal(t, "C", Pick(choices, 0.999999))
	assert.Equal(t, "C", Pick(choices, 1.0), "residual float error lands on the last choice")
}

func TestTargets(t *testing.T) {
	assert.Nil(t, Targets(nil))
	assert.Equal(t, []string{"A"}, Targets(&DirectTransition{To: "A"}))
	assert.Equal(t, []string{"A", "B"}, Targets(&DistributedTransition{Choices: []WeightedChoice{
		{Weight: 0.5, To: "A"}, {Weight: 0.5, To: "B"},
	}}))
	assert.Equal(t, []string{"A", "B", "D"}, Targets(&ConditionalTransition{
		Cases:   []ConditionalCase{{If: True{}, To: "A"}, {If: False{}, To: "B"}},
		Default: "D",
	}))
	assert.Equal(t, []string{"A"}, Targets(&ConditionalTransition{
		Cases: []ConditionalCase{{If: True{}, To: "A"}},
	}))
}
