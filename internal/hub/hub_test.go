package hub

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.klb.dev/clipdrag/internal/drag"
	"go.klb.dev/clipdrag/internal/message"
	"go.klb.dev/clipdrag/internal/progress"
)

type fakePeer struct {
	id   string
	at   time.Time
	mu   sync.Mutex
	msgs []*message.Message
}

func newPeer(id string, at time.Time) *fakePeer { return &fakePeer{id: id, at: at} }

func (p *fakePeer) ID() string { return p.id }
func (p *fakePeer) Info() message.PeerInfo {
	return message.PeerInfo{ID: p.id, Source: p.id, Role: message.RoleObserver, ConnectedAt: p.at}
}

func (p *fakePeer) Send(m *message.Message) {
	p.mu.Lock()
	p.msgs = append(p.msgs, m)
	p.mu.Unlock()
}

func (p *fakePeer) types() []message.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]message.Type, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Type
	}
	return out
}

type listener struct{ calls [][]message.PeerInfo }

func (l *listener) OnPeerChange(peers []message.PeerInfo) { l.calls = append(l.calls, peers) }

func TestBroadcastSkipsOrigin(t *testing.T) {
	h := New()
	now := time.Now()
	a, b := newPeer("a", now), newPeer("b", now)
	h.Register(a)
	h.Register(b)

	h.Broadcast(&message.Message{Type: message.TypePing}, "a")
	assert.Empty(t, a.types())
	assert.Equal(t, []message.Type{message.TypePing}, b.types())
}

func TestRegisterReplaysRetainedState(t *testing.T) {
	h := New()
	h.Broadcast(message.StateMessage(drag.DownloadState{IsDownloading: true}, drag.PhaseResolving), "")
	h.Broadcast(message.ProgressMessage(progressEvent()), "")

	p := newPeer("late", time.Now())
	h.Register(p)
	assert.Equal(t, []message.Type{message.TypeState}, p.types())
	assert.True(t, h.Latest(message.TypeState).State.IsDownloading)
	assert.Nil(t, h.Latest(message.TypeProgress))
}

func TestSendTo(t *testing.T) {
	h := New()
	p := newPeer("shell", time.Now())
	h.Register(p)

	assert.True(t, h.SendTo("shell", &message.Message{Type: message.TypeHUD, Action: message.ActionShow}))
	assert.False(t, h.SendTo("nobody", &message.Message{Type: message.TypeHUD}))
	assert.Equal(t, []message.Type{message.TypeHUD}, p.types())
}

func TestPeersAndListeners(t *testing.T) {
	h := New()
	l := &listener{}
	h.AddPeerChangeListener(l)
	now := time.Now()
	older, newer := newPeer("z", now), newPeer("a", now.Add(time.Second))

	h.Register(newer)
	h.Register(older)
	peers := h.Peers()
	assert.Equal(t, "z", peers[0].ID, "oldest first")
	assert.Equal(t, "a", peers[1].ID)

	h.Unregister(older)
	h.Unregister(older)
	assert.Len(t, h.Peers(), 1)
	assert.Len(t, l.calls, 3)
	assert.Len(t, l.calls[2], 1)
}

func TestUnregisterIgnoresReplacedPeer(t *testing.T) {
	h := New()
	first, second := newPeer("same", time.Now()), newPeer("same", time.Now())
	h.Register(first)
	h.Register(second)
	h.Unregister(first)
	assert.Len(t, h.Peers(), 1)
}

func progressEvent() progress.Event {
	return progress.Event{RequestID: "r", Status: progress.StatusDownloading, Progress: 10}
}
