package drag

import "sync"

// DownloadState is the UI-facing download indicator. An empty Error means
// no error.
type DownloadState struct {
	IsDownloading bool    `json:"is_downloading"`
	Progress      float64 `json:"progress"`
	Error         string  `json:"error,omitempty"`
}

// Tracker holds the active request ID and the DownloadState. Every change
// goes through one lock, so a filter decision and the state write it leads
// to can never interleave with another writer.
type Tracker struct {
	mu        sync.Mutex
	active    string
	state     DownloadState
	listeners []func(DownloadState)
}

// NewTracker returns an idle Tracker.
func NewTracker() *Tracker { return &Tracker{} }

// OnChange registers fn to receive every new state. Listeners run on the
// writer's goroutine after the lock is released and must not block.
func (t *Tracker) OnChange(fn func(DownloadState)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Active returns the active request ID, or "".
func (t *Tracker) Active() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// State returns a snapshot of the DownloadState.
func (t *Tracker) State() DownloadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Activate makes id the active request and marks a download as running.
func (t *Tracker) Activate(id string) {
	t.Update(func(string, DownloadState) (string, DownloadState, bool) {
		return id, DownloadState{IsDownloading: true}, true
	})
}

// Set replaces the DownloadState, keeping the active ID.
func (t *Tracker) Set(st DownloadState) {
	t.Update(func(active string, _ DownloadState) (string, DownloadState, bool) {
		return active, st, true
	})
}

// Update applies fn atomically. fn receives the current active ID and state
// and returns the new ones; when changed is false nothing is written.
func (t *Tracker) Update(fn func(active string, st DownloadState) (newActive string, newState DownloadState, changed bool)) {
	t.mu.Lock()
	active, st, changed := fn(t.active, t.state)
	if !changed {
		t.mu.Unlock()
		return
	}
	notify := st != t.state
	t.active, t.state = active, st
	listeners := t.listeners
	t.mu.Unlock()

	if !notify {
		return
	}
	for _, l := range listeners {
		l(st)
	}
}
