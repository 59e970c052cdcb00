package drag

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	timerHUDShow   = "hud.show"
	timerHUDHide   = "hud.hide"
	timerHUDFollow = "hud.follow"
)

// HUDScheduler debounces the download indicator. A show only takes effect
// after ShowDelay, so short downloads never flash it, and once shown it
// stays up for at least MinVisible.
type HUDScheduler struct {
	hud    HUD
	timers *Timers
	clock  clockwork.Clock
	opts   *optionStore
	ctx    context.Context
	log    *slog.Logger

	mu           sync.Mutex
	pending      bool
	visible      bool
	visibleSince time.Time
}

func newHUDScheduler(ctx context.Context, hud HUD, timers *Timers, clock clockwork.Clock, opts *optionStore) *HUDScheduler {
	return &HUDScheduler{
		hud:    hud,
		timers: timers,
		clock:  clock,
		opts:   opts,
		ctx:    ctx,
		log:    slog.With("component", "drag.hud"),
	}
}

// Visible reports whether the HUD is currently shown.
func (h *HUDScheduler) Visible() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.visible
}

func (h *HUDScheduler) pendingShow() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending
}

// RequestShow shows the HUD after ShowDelay unless a hide arrives first.
// A pending hide is cancelled.
func (h *HUDScheduler) RequestShow() {
	o := h.opts.get()
	if !o.HUD {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timers.Cancel(timerHUDHide)
	if h.visible || h.pending {
		return
	}
	h.pending = true
	h.timers.Once(timerHUDShow, o.ShowDelay, h.show)
}

// RequestHide hides the HUD once it has been visible for MinVisible. A show
// that has not fired yet is dropped.
func (h *HUDScheduler) RequestHide() {
	h.mu.Lock()
	h.timers.Cancel(timerHUDShow)
	h.pending = false
	if !h.visible {
		h.mu.Unlock()
		return
	}
	remaining := h.opts.get().MinVisible - h.clock.Since(h.visibleSince)
	if remaining > 0 {
		h.timers.Once(timerHUDHide, remaining, h.hideNow)
		h.mu.Unlock()
		return
	}
	h.markHiddenLocked()
	h.mu.Unlock()
	h.doHide()
}

// StopFollow stops repositioning the HUD without hiding it.
func (h *HUDScheduler) StopFollow() {
	h.timers.Cancel(timerHUDFollow)
}

// Stop cancels every HUD timer and hides it immediately if shown.
func (h *HUDScheduler) Stop() {
	h.mu.Lock()
	h.timers.Cancel(timerHUDShow)
	h.pending = false
	wasVisible := h.visible
	h.markHiddenLocked()
	h.mu.Unlock()
	if wasVisible {
		h.doHide()
	}
}

func (h *HUDScheduler) show() {
	h.mu.Lock()
	if !h.pending {
		h.mu.Unlock()
		return
	}
	h.pending = false
	h.visible = true
	h.visibleSince = h.clock.Now()
	h.timers.Every(timerHUDFollow, h.opts.get().FollowInterval, h.follow)
	h.mu.Unlock()

	h.log.Debug("hud shown")
	if err := h.hud.Show(h.ctx); err != nil {
		h.log.Warn("hud show failed", "err", err)
	}
	h.follow()
}

func (h *HUDScheduler) hideNow() {
	h.mu.Lock()
	if !h.visible {
		h.mu.Unlock()
		return
	}
	h.markHiddenLocked()
	h.mu.Unlock()
	h.doHide()
}

func (h *HUDScheduler) markHiddenLocked() {
	h.visible = false
	h.timers.Cancel(timerHUDHide)
	h.timers.Cancel(timerHUDFollow)
}

func (h *HUDScheduler) doHide() {
	h.log.Debug("hud hidden")
	if err := h.hud.Hide(h.ctx); err != nil {
		h.log.Warn("hud hide failed", "err", err)
	}
}

func (h *HUDScheduler) follow() {
	if !h.Visible() {
		return
	}
	if err := h.hud.FollowCursor(h.ctx); err != nil {
		h.log.Debug("hud follow failed", "err", err)
	}
}
