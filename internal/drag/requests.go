package drag

import (
	"context"
	"log/slog"
	"sync"

	"go.klb.dev/clipdrag/internal/logging"
)

// Registry issues request IDs, starts downloads under them and cancels
// them. At most one request is active at a time; starting a new one always
// cancels the previous one first.
type Registry struct {
	dl      Downloader
	tracker *Tracker
	base    context.Context
	log     *slog.Logger

	mu       sync.Mutex
	inflight map[string]*Request
}

// Request is a download started by the Registry.
type Request struct {
	ID   string
	Text string

	done chan struct{}
	err  error
}

// Wait blocks until the download finishes or ctx ends.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done reports whether the download has finished.
func (r *Request) Done() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// NewRegistry returns a Registry. Downloads run under base, not under the
// context of the call that started them, since they outlive it.
func NewRegistry(base context.Context, dl Downloader, tracker *Tracker) *Registry {
	return &Registry{
		dl:       dl,
		tracker:  tracker,
		base:     base,
		log:      slog.With("component", "drag.registry"),
		inflight: make(map[string]*Request),
	}
}

// NewID returns a fresh request ID.
func (r *Registry) NewID() string { return r.dl.NewRequestID() }

// Cancel asks the downloader to stop id. It is advisory and idempotent;
// failures are logged and reported as false.
func (r *Registry) Cancel(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	ok, err := r.dl.CancelDownload(ctx, id)
	if err != nil {
		r.log.Debug("cancel failed", "request_id", id, "err", err)
		return false
	}
	r.log.Debug("cancel requested", "request_id", id, "known", ok)
	return ok
}

// Begin cancels the active request, then starts downloading url under a
// new ID which becomes the active one.
func (r *Registry) Begin(ctx context.Context, url string) *Request {
	if prev := r.tracker.Active(); prev != "" {
		r.Cancel(ctx, prev)
	}

	req := &Request{
		ID:   r.NewID(),
		Text: url,
		done: make(chan struct{}),
	}
	r.tracker.Activate(req.ID)

	r.mu.Lock()
	r.inflight[req.ID] = req
	r.mu.Unlock()

	r.log.Debug("download started", "request_id", req.ID, "url", logging.RedactURL(url))
	go func() {
		defer close(req.done)
		req.err = r.dl.DownloadAndCopyImage(r.base, url, req.ID)

		r.mu.Lock()
		delete(r.inflight, req.ID)
		r.mu.Unlock()

		if req.err != nil {
			r.log.Debug("download finished with error", "request_id", req.ID, "err", req.err)
		}
	}()
	return req
}

// Inflight returns the number of downloads still running.
func (r *Registry) Inflight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// CancelAll cancels every running download.
func (r *Registry) CancelAll(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.inflight))
	for id := range r.inflight {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Cancel(ctx, id)
	}
}
