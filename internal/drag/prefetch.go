package drag

import (
	"context"
	"log/slog"
	"strings"
)

// Prefetcher starts remote image downloads when a drag begins so the image
// is usually on the clipboard by the time the drop happens.
type Prefetcher struct {
	reg  *Registry
	opts *optionStore
	log  *slog.Logger
}

func newPrefetcher(reg *Registry, opts *optionStore) *Prefetcher {
	return &Prefetcher{reg: reg, opts: opts, log: slog.With("component", "drag.prefetch")}
}

// Start begins a download for text when prefetch is enabled and kind is a
// remote image. It returns nil when nothing was started.
func (p *Prefetcher) Start(ctx context.Context, kind Kind, text string) *Request {
	if !p.opts.get().Prefetch || kind != KindHTTPImage {
		return nil
	}
	req := p.reg.Begin(ctx, strings.TrimSpace(text))
	p.log.Debug("prefetch started", "request_id", req.ID)
	return req
}

// Join returns req if it was started for text, so the caller can wait on it
// instead of downloading again. Otherwise it returns nil.
func (p *Prefetcher) Join(req *Request, text string) *Request {
	if req == nil || req.Text != strings.TrimSpace(text) {
		return nil
	}
	p.log.Debug("joining prefetch", "request_id", req.ID, "finished", req.Done())
	return req
}

// Discard cancels req if it is still running.
func (p *Prefetcher) Discard(ctx context.Context, req *Request) {
	if req == nil || req.Done() {
		return
	}
	p.log.Debug("prefetch discarded", "request_id", req.ID)
	p.reg.Cancel(ctx, req.ID)
}
