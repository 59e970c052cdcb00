// Package hub implements the broker between the daemon and its connected UI
// peers. It is transport-agnostic: peers register, receive messages through
// a non-blocking Send, and the daemon broadcasts state to all of them.
package hub

import (
	"log/slog"
	"sort"
	"sync"

	"go.klb.dev/clipdrag/internal/message"
)

// Peer is anything that can receive messages from the hub.
type Peer interface {
	ID() string
	Info() message.PeerInfo
	// Send delivers a message to the peer. Must be non-blocking.
	Send(*message.Message)
}

// PeerChangeListener is notified whenever the set of registered peers
// changes, with a snapshot of the peers after the change.
type PeerChangeListener interface {
	OnPeerChange(peers []message.PeerInfo)
}

// retained lists the broadcast types whose latest value is replayed to a
// newly registered peer.
var retained = map[message.Type]bool{
	message.TypeState: true,
}

// Hub routes messages between the daemon and all registered peers.
type Hub struct {
	mu     sync.RWMutex
	peers  map[string]Peer
	latest map[message.Type]*message.Message

	listenerMu sync.RWMutex
	listeners  []PeerChangeListener
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{
		peers:  make(map[string]Peer),
		latest: make(map[message.Type]*message.Message),
	}
}

// AddPeerChangeListener registers a listener called whenever the peer set
// changes.
func (h *Hub) AddPeerChangeListener(l PeerChangeListener) {
	h.listenerMu.Lock()
	h.listeners = append(h.listeners, l)
	h.listenerMu.Unlock()
}

// Register adds a peer and immediately delivers the retained broadcasts.
func (h *Hub) Register(p Peer) {
	h.mu.Lock()
	h.peers[p.ID()] = p
	replay := make([]*message.Message, 0, len(h.latest))
	for _, m := range h.latest {
		replay = append(replay, m)
	}
	total := len(h.peers)
	snapshot := h.snapshotLocked()
	h.mu.Unlock()

	info := p.Info()
	slog.Info("peer registered",
		"peer", p.ID(),
		"source", info.Source,
		"role", info.Role,
		"total", total,
	)

	h.notifyListeners(snapshot)
	for _, m := range replay {
		p.Send(m)
	}
}

// Update re-announces p after its Info changed (e.g. a HELLO).
func (h *Hub) Update(p Peer) {
	h.mu.RLock()
	_, ok := h.peers[p.ID()]
	snapshot := h.snapshotLocked()
	h.mu.RUnlock()
	if ok {
		h.notifyListeners(snapshot)
	}
}

// Unregister removes a peer from the hub.
func (h *Hub) Unregister(p Peer) {
	h.mu.Lock()
	if cur, ok := h.peers[p.ID()]; !ok || cur != p {
		h.mu.Unlock()
		return
	}
	delete(h.peers, p.ID())
	total := len(h.peers)
	snapshot := h.snapshotLocked()
	h.mu.Unlock()

	slog.Info("peer unregistered",
		"peer", p.ID(),
		"source", p.Info().Source,
		"total", total,
	)

	h.notifyListeners(snapshot)
}

// Broadcast delivers msg to every peer except originID (which may be
// empty) and retains it for late joiners if its type is retained.
func (h *Hub) Broadcast(msg *message.Message, originID string) {
	h.mu.Lock()
	if retained[msg.Type] {
		h.latest[msg.Type] = msg
	}
	targets := make([]Peer, 0, len(h.peers))
	for id, p := range h.peers {
		if id != originID {
			targets = append(targets, p)
		}
	}
	h.mu.Unlock()

	for _, p := range targets {
		p.Send(msg)
	}
}

// SendTo delivers msg to one peer. It reports whether the peer exists.
func (h *Hub) SendTo(id string, msg *message.Message) bool {
	h.mu.RLock()
	p, ok := h.peers[id]
	h.mu.RUnlock()
	if ok {
		p.Send(msg)
	}
	return ok
}

// Latest returns the retained broadcast of type t, or nil.
func (h *Hub) Latest(t message.Type) *message.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest[t]
}

// Peers returns a snapshot of all current peer metadata, oldest first.
func (h *Hub) Peers() []message.PeerInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

// snapshotLocked must be called with h.mu held.
func (h *Hub) snapshotLocked() []message.PeerInfo {
	out := make([]message.PeerInfo, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (h *Hub) notifyListeners(peers []message.PeerInfo) {
	h.listenerMu.RLock()
	ls := h.listeners
	h.listenerMu.RUnlock()
	for _, l := range ls {
		l.OnPeerChange(peers)
	}
}
