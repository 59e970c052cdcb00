// Package localpeer implements the hub.Peer that watches the system
// clipboard and tells UI peers when it changes, and whether the change was
// clipdrag's own write or another application's copy.
package localpeer

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.klb.dev/clipdrag/internal/clip"
	"go.klb.dev/clipdrag/internal/hub"
	"go.klb.dev/clipdrag/internal/message"
)

const peerID = "local"

// Peer is the hub.Peer that owns the system clipboard watcher.
type Peer struct {
	h    *hub.Hub
	clip *clip.Clipboard
	log  *slog.Logger

	mu        sync.RWMutex
	info      message.PeerInfo
	lastSeen  time.Time
	lastItems []clip.Item
}

// New creates the local peer but does not start it.
func New(h *hub.Hub, c *clip.Clipboard, source string) *Peer {
	now := time.Now()
	return &Peer{
		h:    h,
		clip: c,
		log:  slog.With("component", "localpeer"),
		info: message.PeerInfo{
			ID:          peerID,
			Source:      source,
			Addr:        "local",
			Role:        message.RoleClipboard,
			ConnectedAt: now,
			LastSeen:    now,
		},
		lastSeen: now,
	}
}

func (p *Peer) ID() string { return peerID }

func (p *Peer) Info() message.PeerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info := p.info
	info.LastSeen = p.lastSeen
	return info
}

// Send implements hub.Peer. The clipboard has no use for broadcasts.
func (p *Peer) Send(*message.Message) {}

// Run registers with the hub and publishes clipboard changes until ctx is
// done or the backend's watch channel closes.
func (p *Peer) Run(ctx context.Context) {
	p.h.Register(p)
	defer p.h.Unregister(p)

	p.log.Info("clipboard watcher started", "backend", p.clip.Backend().Name())

	watch := p.clip.Watch()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-watch:
			if !ok {
				return
			}
			p.changed()
		}
	}
}

func (p *Peer) changed() {
	items, err := p.clip.Read()
	if err != nil {
		p.log.Error("clipboard read failed", "err", err)
		return
	}
	if len(items) == 0 {
		return
	}

	p.mu.Lock()
	if sameItems(items, p.lastItems) {
		p.mu.Unlock()
		return
	}
	p.lastItems = items
	p.lastSeen = time.Now()
	p.mu.Unlock()

	origin := message.OriginExternal
	if p.clip.Own(items) {
		origin = message.OriginOwn
	}
	mimes := clip.MIMEs(items)
	p.log.Debug("clipboard changed", "origin", origin, "types", mimes)
	p.h.Broadcast(&message.Message{Type: message.TypeClipboard, Origin: origin, MIMEs: mimes}, peerID)
}

func sameItems(a, b []clip.Item) bool {
	return slices.EqualFunc(a, b, func(x, y clip.Item) bool {
		return x.MIME == y.MIME && bytes.Equal(x.Data, y.Data)
	})
}
