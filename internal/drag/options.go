package drag

import (
	"sync/atomic"
	"time"
)

// Options tunes the drag pipeline. Zero durations are replaced with the
// defaults from DefaultOptions.
type Options struct {
	// Prefetch starts remote image downloads at drag start.
	Prefetch bool
	// HideOnDrag moves the window off-screen while dragging.
	HideOnDrag bool
	// HideAfterDrag hides the window once the drop is handled instead of
	// bringing it back.
	HideAfterDrag bool
	// HUD enables the floating download indicator.
	HUD bool
	// AdoptForeign lets progress events from downloads this package did not
	// start (e.g. a copy button) drive the state while no request is active.
	AdoptForeign bool

	ShowDelay      time.Duration
	MinVisible     time.Duration
	FollowInterval time.Duration
	RestoreDelay   time.Duration
	ResetDelay     time.Duration
	RetryDelay     time.Duration
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Prefetch:       true,
		HideOnDrag:     true,
		HideAfterDrag:  false,
		HUD:            true,
		AdoptForeign:   true,
		ShowDelay:      150 * time.Millisecond,
		MinVisible:     200 * time.Millisecond,
		FollowInterval: 90 * time.Millisecond,
		RestoreDelay:   120 * time.Millisecond,
		ResetDelay:     100 * time.Millisecond,
		RetryDelay:     150 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&o.ShowDelay, d.ShowDelay)
	fill(&o.MinVisible, d.MinVisible)
	fill(&o.FollowInterval, d.FollowInterval)
	fill(&o.RestoreDelay, d.RestoreDelay)
	fill(&o.ResetDelay, d.ResetDelay)
	fill(&o.RetryDelay, d.RetryDelay)
	return o
}

// optionStore shares the live Options between components so a config
// reload takes effect on the next read.
type optionStore struct {
	p atomic.Pointer[Options]
}

func newOptionStore(o Options) *optionStore {
	s := &optionStore{}
	s.set(o)
	return s
}

func (s *optionStore) get() Options { return *s.p.Load() }

func (s *optionStore) set(o Options) {
	o = o.withDefaults()
	s.p.Store(&o)
}
