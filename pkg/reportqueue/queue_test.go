package reportqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostpulse/agent/pkg/types"
)

func TestQueuePushDrainFIFO(t *testing.T) {
	q := New()
	require.NoError(t, q.Push(types.Report{ID: "a"}))
	require.NoError(t, q.Push(types.Report{ID: "b"}))
	require.NoError(t, q.Push(types.Report{ID: "c"}))

	assert.Equal(t, 3, q.Len())
	drained := q.Drain()
	require.Len(t, drained, 3)
	assert.Equal(t, types.TaskID("a"), drained[0].ID)
	assert.Equal(t, types.TaskID("b"), drained[1].ID)
	assert.Equal(t, types.TaskID("c"), drained[2].ID)
	assert.Equal(t, 0, q.Len())
}

func TestQueueDrainEmptyReturnsNil(t *testing.T) {
	q := New()
	assert.Nil(t, q.Drain())
}

func TestQueueFreezeRejectsPush(t *testing.T) {
	q := New()
	q.Freeze()
	assert.ErrorIs(t, q.Push(types.Report{ID: "a"}), ErrFrozen)
}

func TestQueueCapDropsOldestFirst(t *testing.T) {
	q := New()
	q.SetCap(2)

	require.NoError(t, q.Push(types.Report{ID: "a"}))
	require.NoError(t, q.Push(types.Report{ID: "b"}))
	require.NoError(t, q.Push(types.Report{ID: "c"}))

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 1, q.Dropped())

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, types.TaskID("b"), drained[0].ID)
	assert.Equal(t, types.TaskID("c"), drained[1].ID)
}
