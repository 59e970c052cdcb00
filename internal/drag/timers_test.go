package drag

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimersOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tm := NewTimers(clock)
	var n atomic.Int32

	tm.Once("k", 50*time.Millisecond, func() { n.Add(1) })
	assert.True(t, tm.Pending("k"))

	clock.Advance(49 * time.Millisecond)
	assert.Never(t, func() bool { return n.Load() > 0 }, 20*time.Millisecond, 2*time.Millisecond)

	clock.Advance(time.Millisecond)
	eventually(t, func() bool { return n.Load() == 1 }, "once timer fired")
	eventually(t, func() bool { return !tm.Pending("k") }, "slot released")
}

func TestTimersReplaceAndCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tm := NewTimers(clock)
	var first, second atomic.Int32

	tm.Once("k", 10*time.Millisecond, func() { first.Add(1) })
	tm.Once("k", 30*time.Millisecond, func() { second.Add(1) })
	clock.Advance(20 * time.Millisecond)
	assert.Never(t, func() bool { return first.Load()+second.Load() > 0 }, 20*time.Millisecond, 2*time.Millisecond)

	assert.True(t, tm.Cancel("k"))
	assert.False(t, tm.Cancel("k"))
	clock.Advance(time.Second)
	assert.Never(t, func() bool { return second.Load() > 0 }, 20*time.Millisecond, 2*time.Millisecond)
}

func TestTimersEvery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tm := NewTimers(clock)
	var n atomic.Int32
	tm.Every("tick", 10*time.Millisecond, func() { n.Add(1) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := int32(1); i <= 3; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(10 * time.Millisecond)
		eventually(t, func() bool { return n.Load() == i }, "tick delivered")
	}

	tm.Cancel("tick")
	clock.Advance(time.Second)
	assert.Never(t, func() bool { return n.Load() > 3 }, 20*time.Millisecond, 2*time.Millisecond)
}

func TestTimersStop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tm := NewTimers(clock)
	var n atomic.Int32

	tm.Once("a", 10*time.Millisecond, func() { n.Add(1) })
	tm.Every("b", 10*time.Millisecond, func() { n.Add(1) })
	tm.Stop()
	tm.Once("c", 10*time.Millisecond, func() { n.Add(1) })

	assert.False(t, tm.Pending("c"))
	clock.Advance(time.Second)
	assert.Never(t, func() bool { return n.Load() > 0 }, 20*time.Millisecond, 2*time.Millisecond)
}
