package drag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"go.klb.dev/clipdrag/internal/logging"
)

var (
	// ErrNoSession is returned by EndDrag when no drag is in progress.
	ErrNoSession = errors.New("no drag in progress")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("drag controller closed")
)

const timerSessionReset = "session.reset"

// Phase is the step a drag session is in.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDragging
	PhaseResolving
	PhasePasting
	PhaseRestoring
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDragging:
		return "dragging"
	case PhaseResolving:
		return "resolving"
	case PhasePasting:
		return "pasting"
	case PhaseRestoring:
		return "restoring"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Session is one drag gesture, from StartDrag to the end of EndDrag.
type Session struct {
	Text      string
	Kind      Kind
	Event     DragEvent
	Version   uint64
	StartedAt time.Time

	prefetch *Request
	ending   bool
}

// Result describes how EndDrag resolved a session.
type Result struct {
	Kind Kind `json:"kind"`
	// Via is "prefetch", "router" or the name of the fallback step that
	// produced the clipboard content. Empty when nothing was copied.
	Via        string `json:"via,omitempty"`
	CopyErr    error  `json:"-"`
	PasteErr   error  `json:"-"`
	Cancelled  bool   `json:"cancelled,omitempty"`
	FellBack   bool   `json:"fell_back,omitempty"`
	// Superseded is set when a new drag started before this one finished.
	// The window is then left to the new drag.
	Superseded bool   `json:"superseded,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Downloader Downloader
	Clipboard  Clipboard
	Paster     Paster
	Window     Window
	HUD        HUD
	// Bus feeds the Reconciler. May be nil when progress events are
	// delivered through Reconciler().Handle instead.
	Bus Subscriber
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Cascade defaults to DefaultCascade.
	Cascade Cascade
}

// Controller runs drag sessions.
type Controller struct {
	opts   *optionStore
	clock  clockwork.Clock
	timers *Timers
	base   context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	tracker    *Tracker
	registry   *Registry
	router     *Router
	prefetcher *Prefetcher
	reconciler *Reconciler
	hud        *HUDScheduler
	window     *Choreographer
	paster     Paster
	cascade    Cascade

	// winMu orders the window steps of one session against the next.
	winMu sync.Mutex

	mu      sync.Mutex
	session *Session
	phase   Phase
	version uint64
	closed  bool
}

// New builds a Controller and subscribes its Reconciler to deps.Bus.
func New(deps Deps, opts Options) *Controller {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	base, cancel := context.WithCancel(context.Background())
	store := newOptionStore(opts)
	timers := NewTimers(clock)
	tracker := NewTracker()
	registry := NewRegistry(base, deps.Downloader, tracker)
	hud := newHUDScheduler(base, deps.HUD, timers, clock, store)
	window := newChoreographer(base, deps.Window, hud, timers, store)

	c := &Controller{
		opts:       store,
		clock:      clock,
		timers:     timers,
		base:       base,
		cancel:     cancel,
		log:        slog.With("component", "drag"),
		tracker:    tracker,
		registry:   registry,
		router:     NewRouter(deps.Clipboard, registry),
		prefetcher: newPrefetcher(registry, store),
		reconciler: newReconciler(tracker, hud, window.Hidden, store),
		hud:        hud,
		window:     window,
		paster:     deps.Paster,
		cascade:    deps.Cascade,
	}
	if c.cascade == nil {
		c.cascade = DefaultCascade(deps.Clipboard, clock, func() time.Duration {
			return store.get().RetryDelay
		})
	}
	if deps.Bus != nil {
		c.reconciler.Start(deps.Bus)
	}
	return c
}

// Tracker exposes the download state for observers.
func (c *Controller) Tracker() *Tracker { return c.tracker }

// Reconciler exposes the progress event handler.
func (c *Controller) Reconciler() *Reconciler { return c.reconciler }

// State returns the current DownloadState.
func (c *Controller) State() DownloadState { return c.tracker.State() }

// Phase returns the phase of the live session.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Options returns the options in effect.
func (c *Controller) Options() Options { return c.opts.get() }

// SetOptions replaces the options. Sessions already running pick up the
// new values at their next step.
func (c *Controller) SetOptions(o Options) {
	c.opts.set(o)
	c.log.Info("drag options updated",
		"prefetch", o.Prefetch,
		"hide_on_drag", o.HideOnDrag,
		"hide_after_drag", o.HideAfterDrag,
		"hud", o.HUD,
	)
}

// StartDrag begins a session for text. A session still live is abandoned:
// its prefetch is cancelled and the window restored before the new one
// starts.
func (c *Controller) StartDrag(ctx context.Context, ev DragEvent, text string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	prev := c.session
	var prevPrefetch *Request
	if prev != nil {
		prevPrefetch = prev.prefetch
	}
	c.version++
	s := &Session{
		Text:      text,
		Kind:      Classify(text),
		Event:     ev,
		Version:   c.version,
		StartedAt: c.clock.Now(),
	}
	c.session = s
	c.phase = PhaseDragging
	c.mu.Unlock()

	log := c.log.With("session", s.Version)
	log.Debug("drag started", "kind", s.Kind, "preview", logging.Preview(text))

	c.timers.Cancel(timerSessionReset)
	c.winMu.Lock()
	defer c.winMu.Unlock()
	if prev != nil {
		log.Warn("previous drag abandoned", "previous", prev.Version)
		c.prefetcher.Discard(ctx, prevPrefetch)
		c.window.Abort(ctx)
	}

	if req := c.prefetcher.Start(ctx, s.Kind, text); req != nil {
		c.mu.Lock()
		current := c.session == s
		if current {
			s.prefetch = req
		}
		c.mu.Unlock()
		if !current {
			c.prefetcher.Discard(ctx, req)
		}
	}

	if err := c.window.Begin(ctx); err != nil {
		log.Error("drag start failed", "err", err)
		c.mu.Lock()
		current := c.session == s
		if current {
			c.session = nil
			c.phase = PhaseIdle
		}
		c.mu.Unlock()
		c.window.Abort(ctx)
		if current {
			c.prefetcher.Discard(ctx, s.prefetch)
			c.tracker.Set(DownloadState{Error: "Drag start failed: " + err.Error()})
		}
		return fmt.Errorf("start drag: %w", err)
	}
	return nil
}

// EndDrag resolves the live session: it places the content on the
// clipboard, falling back to plain text on failure, simulates a paste and
// restores the window. The window is restored even if a step panics.
func (c *Controller) EndDrag(ctx context.Context) (res Result, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, ErrClosed
	}
	s := c.session
	if s == nil || s.ending {
		c.mu.Unlock()
		return Result{}, ErrNoSession
	}
	s.ending = true
	c.phase = PhaseResolving
	prefetch := s.prefetch
	c.mu.Unlock()

	log := c.log.With("session", s.Version)
	res.Kind = s.Kind

	defer func() {
		c.winMu.Lock()
		if c.current(s, PhaseRestoring) {
			c.window.Finish(context.WithoutCancel(ctx))
		} else {
			res.Superseded = true
		}
		c.winMu.Unlock()

		c.mu.Lock()
		if c.session == s {
			c.session = nil
			c.phase = PhaseIdle
		}
		c.mu.Unlock()

		if res.Superseded {
			log.Info("drag superseded, window left to the new drag")
		} else {
			c.scheduleReset(s.Version)
		}
		res.DurationMS = c.clock.Since(s.StartedAt).Milliseconds()
		log.Debug("drag finished", "via", res.Via, "duration_ms", res.DurationMS)
	}()

	c.resolve(ctx, s, prefetch, &res)

	if !c.current(s, PhasePasting) {
		log.Debug("paste skipped, drag superseded")
		return res, nil
	}
	if perr := c.paster.SimulatePaste(ctx); perr != nil {
		log.Warn("paste simulation failed", "err", perr)
		res.PasteErr = perr
	}
	return res, nil
}

func (c *Controller) resolve(ctx context.Context, s *Session, prefetch *Request, res *Result) {
	log := c.log.With("session", s.Version)

	var err error
	if req := c.prefetcher.Join(prefetch, s.Text); req != nil {
		res.Via = "prefetch"
		err = req.Wait(ctx)
	} else {
		res.Via = "router"
		err = c.router.Execute(ctx, s.Kind, s.Text)
	}
	if err == nil {
		return
	}

	res.CopyErr = err
	class := ClassOf(err)
	if class == ClassCancelled {
		log.Debug("copy cancelled", "kind", s.Kind)
		res.Via = ""
		res.Cancelled = true
		return
	}

	log.Warn("copy failed, falling back to text", "kind", s.Kind, "class", class, "err", err)
	c.recordFailure(s, err)

	res.FellBack = true
	via, ferr := c.cascade.Run(ctx, err, s.Text)
	if ferr != nil {
		log.Error("fallback failed", "err", ferr)
		res.Via = ""
		return
	}
	res.Via = via
}

func (c *Controller) recordFailure(s *Session, err error) {
	c.mu.Lock()
	current := c.version == s.Version
	c.mu.Unlock()
	if !current {
		return
	}
	msg := Describe(err)
	c.tracker.Update(func(active string, st DownloadState) (string, DownloadState, bool) {
		return active, DownloadState{Progress: st.Progress, Error: msg}, true
	})
}

// current reports whether s is still the live session and, if so, moves
// it to phase p.
func (c *Controller) current(s *Session, p Phase) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		return false
	}
	c.phase = p
	return true
}

func (c *Controller) scheduleReset(version uint64) {
	c.timers.Once(timerSessionReset, c.opts.get().ResetDelay, func() {
		c.mu.Lock()
		current := c.version == version && c.session == nil
		c.mu.Unlock()
		if !current {
			return
		}
		c.tracker.Update(func(active string, st DownloadState) (string, DownloadState, bool) {
			if !st.IsDownloading {
				return active, st, false
			}
			st.IsDownloading = false
			return active, st, true
		})
	})
}

// ClearDownloadState resets the download indicator and hides the HUD.
func (c *Controller) ClearDownloadState() {
	c.tracker.Set(DownloadState{})
	c.hud.RequestHide()
}

// Close cancels running downloads, stops every timer and unsubscribes from
// the progress bus. The window is restored if a drag was live.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	live := c.session != nil
	c.session = nil
	c.phase = PhaseIdle
	c.mu.Unlock()

	c.reconciler.Stop()
	c.registry.CancelAll(ctx)
	c.timers.Cancel(timerWindowRestore)
	if err := c.window.Restore(ctx); err != nil && live {
		c.log.Warn("window restore on close failed", "err", err)
	}
	c.hud.Stop()
	c.timers.Stop()
	c.cancel()
}
