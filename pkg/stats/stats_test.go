package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hostpulse/agent/pkg/types"
)

func TestCountersIncDec(t *testing.T) {
	c := New()

	c.Inc(types.Process)
	c.Inc(types.Process)
	c.Inc(types.Directory)

	snap := c.Snapshot()
	assert.Equal(t, 3, snap.NumTasks)
	assert.Equal(t, 2, snap.NumProcessTasks)
	assert.Equal(t, 1, snap.NumDirTasks)

	c.Dec(types.Process)
	snap = c.Snapshot()
	assert.Equal(t, 2, snap.NumTasks)
	assert.Equal(t, 1, snap.NumProcessTasks)
}

func TestCountersUnknownTypeOnlyAdjustsTotal(t *testing.T) {
	c := New()
	c.Inc(types.NoType)
	snap := c.Snapshot()
	assert.Equal(t, 1, snap.NumTasks)
	assert.Equal(t, 0, snap.NumProcessTasks)
}
