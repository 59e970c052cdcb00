package drag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChoreographer(opts Options) (*Choreographer, *fakeWindow, *clockwork.FakeClock, *callLog) {
	clock := clockwork.NewFakeClock()
	log := &callLog{}
	store := newOptionStore(opts)
	timers := NewTimers(clock)
	hud := newHUDScheduler(context.Background(), &fakeHUD{log: log}, timers, clock, store)
	win := &fakeWindow{log: log, pos: Position{X: 40, Y: 60}}
	return newChoreographer(context.Background(), win, hud, timers, store), win, clock, log
}

func TestChoreographerRoundTrip(t *testing.T) {
	c, win, _, log := newTestChoreographer(DefaultOptions())
	ctx := context.Background()

	require.NoError(t, c.Begin(ctx))
	assert.True(t, c.Hidden())
	assert.Equal(t, Position{X: -10000, Y: -10000}, win.position())

	c.Finish(ctx)
	assert.False(t, c.Hidden())
	assert.Equal(t, Position{X: 40, Y: 60}, win.position())
	assert.Equal(t, []string{"win:position", "win:offscreen", "win:set:40,60", "win:show"}, log.all())

	require.NoError(t, c.Restore(ctx))
	assert.Equal(t, 1, log.count("win:set:"))
}

func TestChoreographerDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.HideOnDrag = false
	c, _, _, log := newTestChoreographer(opts)

	require.NoError(t, c.Begin(context.Background()))
	assert.False(t, c.Hidden())
	assert.Empty(t, log.all())
}

func TestChoreographerPositionFailure(t *testing.T) {
	c, win, _, log := newTestChoreographer(DefaultOptions())
	win.posErr = errors.New("no window")

	err := c.Begin(context.Background())
	require.ErrorContains(t, err, "read window position")
	assert.False(t, c.Hidden())
	assert.Zero(t, log.count("win:offscreen"))
}

func TestChoreographerMoveFailureLeavesNothingToRestore(t *testing.T) {
	c, win, _, log := newTestChoreographer(DefaultOptions())
	win.moveErr = errors.New("compositor refused")

	require.Error(t, c.Begin(context.Background()))
	require.NoError(t, c.Restore(context.Background()))
	assert.Zero(t, log.count("win:set:"))
}

func TestChoreographerHideAfterDragRestoresLater(t *testing.T) {
	opts := DefaultOptions()
	opts.HideAfterDrag = true
	c, win, clock, log := newTestChoreographer(opts)
	ctx := context.Background()

	require.NoError(t, c.Begin(ctx))
	c.Finish(ctx)
	assert.Equal(t, 1, log.count("win:hide"))
	assert.Zero(t, log.count("win:show"))

	clock.Advance(119 * time.Millisecond)
	assert.Never(t, func() bool { return log.count("win:set:") > 0 }, 20*time.Millisecond, 2*time.Millisecond)

	clock.Advance(time.Millisecond)
	eventually(t, func() bool { return win.position() == Position{X: 40, Y: 60} }, "position restored")
}

func TestChoreographerBeginFlushesPendingRestore(t *testing.T) {
	opts := DefaultOptions()
	opts.HideAfterDrag = true
	c, win, _, _ := newTestChoreographer(opts)
	ctx := context.Background()

	require.NoError(t, c.Begin(ctx))
	c.Finish(ctx)

	// A new drag before the delayed restore must record the real position,
	// not the off-screen one.
	require.NoError(t, c.Begin(ctx))
	c.Finish(ctx)
	require.NoError(t, c.Restore(ctx))
	assert.Equal(t, Position{X: 40, Y: 60}, win.position())
}
