package drag

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func newTestHUD(opts Options) (*HUDScheduler, *clockwork.FakeClock, *callLog) {
	clock := clockwork.NewFakeClock()
	log := &callLog{}
	h := newHUDScheduler(context.Background(), &fakeHUD{log: log}, NewTimers(clock), clock, newOptionStore(opts))
	return h, clock, log
}

func TestHUDHideBeforeShowDelayNeverShows(t *testing.T) {
	h, clock, log := newTestHUD(DefaultOptions())

	h.RequestShow()
	clock.Advance(100 * time.Millisecond)
	h.RequestHide()
	clock.Advance(time.Second)

	assert.Never(t, func() bool { return log.count("hud:show") > 0 }, 30*time.Millisecond, 2*time.Millisecond)
	assert.Zero(t, log.count("hud:hide"))
	assert.False(t, h.Visible())
}

func TestHUDMinimumVisibility(t *testing.T) {
	h, clock, log := newTestHUD(DefaultOptions())

	h.RequestShow()
	clock.Advance(150 * time.Millisecond)
	eventually(t, func() bool { return log.count("hud:show") == 1 }, "hud shown after delay")
	assert.True(t, h.Visible())

	h.RequestHide()
	clock.Advance(199 * time.Millisecond)
	assert.Never(t, func() bool { return log.count("hud:hide") > 0 }, 30*time.Millisecond, 2*time.Millisecond)
	assert.True(t, h.Visible())

	clock.Advance(time.Millisecond)
	eventually(t, func() bool { return log.count("hud:hide") == 1 }, "hud hidden after minimum visibility")
	assert.False(t, h.Visible())
}

func TestHUDHideAfterMinimumIsImmediate(t *testing.T) {
	h, clock, log := newTestHUD(DefaultOptions())

	h.RequestShow()
	clock.Advance(150 * time.Millisecond)
	eventually(t, func() bool { return h.Visible() }, "hud shown")

	clock.Advance(500 * time.Millisecond)
	h.RequestHide()
	assert.Equal(t, 1, log.count("hud:hide"))
}

func TestHUDShowCancelsPendingHide(t *testing.T) {
	h, clock, log := newTestHUD(DefaultOptions())

	h.RequestShow()
	clock.Advance(150 * time.Millisecond)
	eventually(t, func() bool { return h.Visible() }, "hud shown")

	h.RequestHide()
	h.RequestShow()
	clock.Advance(time.Second)

	assert.Never(t, func() bool { return log.count("hud:hide") > 0 }, 30*time.Millisecond, 2*time.Millisecond)
	assert.Equal(t, 1, log.count("hud:show"))
}

func TestHUDFollowsCursorWhileVisible(t *testing.T) {
	h, clock, log := newTestHUD(DefaultOptions())

	h.RequestShow()
	clock.Advance(150 * time.Millisecond)
	eventually(t, func() bool { return log.count("hud:follow") >= 1 }, "initial follow")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(90 * time.Millisecond)
	eventually(t, func() bool { return log.count("hud:follow") >= 2 }, "follow tick")

	h.Stop()
	n := log.count("hud:follow")
	clock.Advance(time.Second)
	assert.Never(t, func() bool { return log.count("hud:follow") > n }, 30*time.Millisecond, 2*time.Millisecond)
	assert.Equal(t, 1, log.count("hud:hide"))
}

func TestHUDDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.HUD = false
	h, clock, log := newTestHUD(opts)

	h.RequestShow()
	clock.Advance(time.Second)
	assert.Never(t, func() bool { return len(log.all()) > 0 }, 30*time.Millisecond, 2*time.Millisecond)
}
