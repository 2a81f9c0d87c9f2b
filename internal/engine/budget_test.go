package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetSpendAndReset(t *testing.T) {
	b := NewBudget(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Spend())
	}
	err := b.Spend()
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Limit)

	b.Reset()
	assert.Zero(t, b.Used())
	assert.NoError(t, b.Spend())
}

func TestBudgetDefaultsLimit(t *testing.T) {
	assert.Equal(t, DefaultStepBudget, NewBudget(0).Limit())
	assert.Equal(t, DefaultStepBudget, NewBudget(-5).Limit())
	assert.Equal(t, 10, NewBudget(10).Limit())
}
