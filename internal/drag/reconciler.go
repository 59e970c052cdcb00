package drag

import (
	"log/slog"
	"sync"

	"go.klb.dev/clipdrag/internal/progress"
)

// Reconciler turns progress events into DownloadState. Events for a request
// other than the active one are dropped; with no active request the
// event's ID is adopted, so downloads started elsewhere on the same bus
// still drive the indicator.
type Reconciler struct {
	tracker *Tracker
	hud     *HUDScheduler
	hidden  func() bool
	opts    *optionStore
	log     *slog.Logger

	mu    sync.Mutex
	unsub func()
}

func newReconciler(tracker *Tracker, hud *HUDScheduler, hidden func() bool, opts *optionStore) *Reconciler {
	return &Reconciler{
		tracker: tracker,
		hud:     hud,
		hidden:  hidden,
		opts:    opts,
		log:     slog.With("component", "drag.reconciler"),
	}
}

// Start subscribes to bus. A second call is a no-op.
func (r *Reconciler) Start(bus Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsub != nil {
		return
	}
	r.unsub = bus.Subscribe(r.Handle)
}

// Stop removes the subscription.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	unsub := r.unsub
	r.unsub = nil
	r.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

type hudAction int

const (
	hudNone hudAction = iota
	hudShow
	hudHide
)

// Handle applies one event.
func (r *Reconciler) Handle(ev progress.Event) {
	adopt := r.opts.get().AdoptForeign
	var (
		action  = hudNone
		adopted bool
		ignored string
	)

	r.tracker.Update(func(active string, st DownloadState) (string, DownloadState, bool) {
		switch {
		case active != "" && active != ev.RequestID:
			ignored = active
			return active, st, false
		case active == "" && !adopt:
			return active, st, false
		case active == "":
			adopted = true
			active = ev.RequestID
		}

		switch {
		case ev.Status == progress.StatusDownloading:
			action = hudShow
			return active, DownloadState{IsDownloading: true, Progress: clampPercent(ev.Progress)}, true
		case ev.Status == progress.StatusCompleted:
			action = hudHide
			return "", DownloadState{Progress: 100}, true
		case ev.Cancelled():
			action = hudHide
			return "", DownloadState{}, true
		case ev.Status == progress.StatusFailed:
			action = hudHide
			return "", DownloadState{Progress: clampPercent(ev.Progress), Error: failureText(ev)}, true
		default:
			if adopted {
				return active, st, true
			}
			return active, st, false
		}
	})

	switch {
	case ignored != "":
		r.log.Debug("ignoring event for inactive request",
			"request_id", ev.RequestID, "active", ignored, "status", ev.Status)
		return
	case adopted:
		r.log.Debug("adopted request", "request_id", ev.RequestID, "status", ev.Status)
	}

	switch action {
	case hudShow:
		if r.hidden() && r.opts.get().HUD {
			r.hud.RequestShow()
		}
	case hudHide:
		r.hud.RequestHide()
	}
}

func failureText(ev progress.Event) string {
	title := progress.Title(ev.ErrorCode, ev.Stage)
	if ev.ErrorMessage == "" {
		return title
	}
	return title + ": " + ev.ErrorMessage
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0 || p != p:
		return 0
	case p > 100:
		return 100
	}
	return p
}
