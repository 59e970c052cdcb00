package drag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const timerWindowRestore = "window.restore"

// Choreographer moves the application window out of the way while a drag
// is in progress and puts it back afterwards.
type Choreographer struct {
	win    Window
	hud    *HUDScheduler
	timers *Timers
	opts   *optionStore
	ctx    context.Context
	log    *slog.Logger

	mu     sync.Mutex
	origin *Position
	hidden bool
}

func newChoreographer(ctx context.Context, win Window, hud *HUDScheduler, timers *Timers, opts *optionStore) *Choreographer {
	return &Choreographer{
		win:    win,
		hud:    hud,
		timers: timers,
		opts:   opts,
		ctx:    ctx,
		log:    slog.With("component", "drag.window"),
	}
}

// Hidden reports whether the window is off-screen for a drag.
func (c *Choreographer) Hidden() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hidden
}

// Begin records the window position and moves the window off-screen when
// HideOnDrag is set. A restore still pending from the previous drag runs
// first so the recorded position is the real one.
func (c *Choreographer) Begin(ctx context.Context) error {
	if c.timers.Cancel(timerWindowRestore) {
		if err := c.Restore(ctx); err != nil {
			c.log.Warn("pending restore failed", "err", err)
		}
	}
	if !c.opts.get().HideOnDrag {
		return nil
	}

	pos, err := c.win.Position(ctx)
	if err != nil {
		return fmt.Errorf("read window position: %w", err)
	}
	c.mu.Lock()
	c.origin = &pos
	c.mu.Unlock()

	if err := c.win.MoveOffscreen(ctx); err != nil {
		c.mu.Lock()
		c.origin = nil
		c.mu.Unlock()
		return fmt.Errorf("move window off-screen: %w", err)
	}

	c.mu.Lock()
	c.hidden = true
	c.mu.Unlock()
	c.log.Debug("window moved off-screen", "origin", pos)
	return nil
}

// Finish ends the drag for the window. With HideAfterDrag the window is
// hidden and its position restored after RestoreDelay; otherwise it is
// restored, shown and focused right away.
func (c *Choreographer) Finish(ctx context.Context) {
	c.mu.Lock()
	c.hidden = false
	c.mu.Unlock()

	o := c.opts.get()
	if o.HideAfterDrag {
		if err := c.win.Hide(ctx); err != nil {
			c.log.Warn("window hide failed", "err", err)
		}
		c.timers.Once(timerWindowRestore, o.RestoreDelay, func() {
			if err := c.Restore(c.ctx); err != nil {
				c.log.Warn("delayed restore failed", "err", err)
			}
		})
		return
	}

	if err := c.Restore(ctx); err != nil {
		c.log.Warn("window restore failed", "err", err)
	}
	if err := c.win.Show(ctx); err != nil {
		c.log.Warn("window show failed", "err", err)
	}
	c.hud.StopFollow()
}

// Restore moves the window back to the recorded position. It is a no-op
// when nothing is recorded; the record is cleared after the first success.
func (c *Choreographer) Restore(ctx context.Context) error {
	c.mu.Lock()
	pos := c.origin
	c.mu.Unlock()
	if pos == nil {
		return nil
	}

	if err := c.win.SetPosition(ctx, *pos); err != nil {
		return fmt.Errorf("restore window position %s: %w", pos, err)
	}

	c.mu.Lock()
	if c.origin == pos {
		c.origin = nil
	}
	c.hidden = false
	c.mu.Unlock()
	c.log.Debug("window restored", "position", *pos)
	return nil
}

// Abort restores the window after a failed Begin.
func (c *Choreographer) Abort(ctx context.Context) {
	if err := c.Restore(ctx); err != nil {
		c.log.Warn("window restore after failed start", "err", err)
	}
	c.mu.Lock()
	c.hidden = false
	c.mu.Unlock()
}
