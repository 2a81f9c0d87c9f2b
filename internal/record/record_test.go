package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortgen/cohortgen/internal/pathway"
)

var t0 = time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAppendPreservesOrder(t *testing.T) {
	r := New("patient-1")

	i0 := r.Append(Event{Kind: KindEncounter, Start: t0})
	i1 := r.Append(Event{Kind: KindCondition, Start: t0})
	i2 := r.Append(Event{Kind: KindObservation, Start: t0.AddDate(0, 0, 7)})

	assert.Equal(t, []int{0, 1, 2}, []int{i0, i1, i2})
	require.Equal(t, 3, r.Len())
	assert.Equal(t, KindEncounter, r.Event(0).Kind)
	assert.Equal(t, KindCondition, r.Event(1).Kind)
	assert.Equal(t, KindObservation, r.Event(2).Kind)
}

func TestCloseFillsStopOnce(t *testing.T) {
	r := New("patient-1")
	i := r.Append(Event{Kind: KindCondition, Start: t0})
	require.True(t, r.Event(i).Open())

	stop := t0.AddDate(1, 0, 0)
	require.NoError(t, r.Close(i, stop))
	assert.Equal(t, stop, r.Event(i).Stop)
	assert.False(t, r.Event(i).Open())

	err := r.Close(i, stop.AddDate(1, 0, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already closed")
	assert.Equal(t, stop, r.Event(i).Stop, "second close must not move the stop time")
}

func TestCloseOutOfRange(t *testing.T) {
	r := New("patient-1")
	assert.Error(t, r.Close(0, t0))
	assert.Error(t, r.Close(-1, t0))
}

func TestCountAndFirstOfKind(t *testing.T) {
	r := New("patient-1")
	r.Append(Event{Kind: KindEncounter, Start: t0})
	r.Append(Event{Kind: KindCondition, Start: t0, Code: pathway.Code{Value: "44054006"}})
	r.Append(Event{Kind: KindCondition, Start: t0.AddDate(2, 0, 0), Code: pathway.Code{Value: "195662009"}})

	assert.Equal(t, 2, r.CountKind(KindCondition))
	assert.Equal(t, 0, r.CountKind(KindDeath))

	first, ok := r.FirstOfKind(KindCondition)
	require.True(t, ok)
	assert.Equal(t, "44054006", first.Code.Value)

	_, ok = r.FirstOfKind(KindDeath)
	assert.False(t, ok)
}

func TestKindsStable(t *testing.T) {
	assert.Equal(t, []Kind{
		KindEncounter, KindCondition, KindMedication, KindProcedure,
		KindObservation, KindCarePlan, KindDeath,
	}, Kinds())
}
