package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivePath_EnterLeave(t *testing.T) {
	p := newActivePath()
	assert.Equal(t, 0, p.Depth())

	p.Enter(1)
	p.Enter(2)
	assert.True(t, p.Contains(1))
	assert.True(t, p.Contains(2))
	assert.Equal(t, 2, p.Depth())

	p.Leave(2)
	assert.False(t, p.Contains(2))
	assert.True(t, p.Contains(1))
	assert.Equal(t, []int64{1}, p.Path())
}

func TestActivePath_PathWithReentry(t *testing.T) {
	p := newActivePath()
	p.Enter(1)
	p.Enter(2)
	p.Enter(3)

	assert.Equal(t, []int64{1, 2, 3, 1}, p.Path(1))
	assert.Equal(t, []int64{1, 2, 3}, p.Path(), "Path does not mutate")
}

func TestActivePath_DiamondIsNotCycle(t *testing.T) {
	// A -> B -> D, A -> C -> D
	p := newActivePath()
	p.Enter(1) // A
	p.Enter(2) // B
	p.Enter(4) // D via B
	p.Leave(4)
	p.Leave(2)
	p.Enter(3) // C

	assert.False(t, p.Contains(4), "D finished under B, reaching it from C is not a cycle")
}
