// Package shell relays window and HUD commands to the UI shell connected
// over the daemon socket. The shell owns the real application window; the
// relay implements drag.Window and drag.HUD by sending it WINDOW and HUD
// messages and answers position reads from the shell's latest POSITION
// report.
package shell

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.klb.dev/clipdrag/internal/drag"
	"go.klb.dev/clipdrag/internal/message"
)

// ErrNoShell is returned by every command while no shell is attached and
// the relay requires one.
var ErrNoShell = errors.New("shell: no UI shell connected")

// ErrNoPosition is returned by Position before the shell reported one.
var ErrNoPosition = errors.New("shell: window position not reported yet")

// Sender delivers a message to one peer, reporting whether it exists.
type Sender interface {
	SendTo(id string, msg *message.Message) bool
}

// Relay forwards window and HUD commands to the attached shell.
type Relay struct {
	out     Sender
	require bool
	log     *slog.Logger

	mu      sync.Mutex
	shellID string
	pos     *drag.Position
}

// New returns a Relay sending through out. With requireShell unset, window
// and HUD commands issued while no shell is attached succeed without
// effect, so drags started from the CLI work on a daemon without a UI.
func New(out Sender, requireShell bool) *Relay {
	return &Relay{out: out, require: requireShell, log: slog.With("component", "shell")}
}

// Attach makes peerID the window owner. A later shell replaces an earlier one.
func (r *Relay) Attach(peerID string) {
	r.mu.Lock()
	prev := r.shellID
	r.shellID = peerID
	r.pos = nil
	r.mu.Unlock()
	if prev != "" && prev != peerID {
		r.log.Info("shell replaced", "previous", prev, "peer", peerID)
	} else {
		r.log.Info("shell attached", "peer", peerID)
	}
}

// Detach forgets peerID if it is the current shell.
func (r *Relay) Detach(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shellID == peerID {
		r.shellID = ""
		r.pos = nil
		r.log.Info("shell detached", "peer", peerID)
	}
}

// OnPeerChange implements hub.PeerChangeListener: the shell is detached as
// soon as it leaves the hub.
func (r *Relay) OnPeerChange(peers []message.PeerInfo) {
	r.mu.Lock()
	id := r.shellID
	r.mu.Unlock()
	if id == "" {
		return
	}
	for _, p := range peers {
		if p.ID == id {
			return
		}
	}
	r.Detach(id)
}

// Report records a POSITION report from peerID. Reports from peers other
// than the shell are ignored.
func (r *Relay) Report(peerID string, pos drag.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if peerID == r.shellID {
		r.pos = &pos
	}
}

// Attached returns the current shell's peer ID, or "".
func (r *Relay) Attached() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shellID
}

func (r *Relay) send(ctx context.Context, msg *message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	id := r.shellID
	r.mu.Unlock()
	switch {
	case id == "" && !r.require:
		r.log.Debug("no shell attached, command skipped", "type", msg.Type, "action", msg.Action)
		return nil
	case id == "" || !r.out.SendTo(id, msg):
		return ErrNoShell
	}
	return nil
}

// ── drag.Window ────────────────────────────────────────────────────────────

// Position returns the shell's last reported outer window position.
func (r *Relay) Position(ctx context.Context) (drag.Position, error) {
	if err := ctx.Err(); err != nil {
		return drag.Position{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.shellID == "" && !r.require:
		return drag.Position{}, nil
	case r.shellID == "":
		return drag.Position{}, ErrNoShell
	case r.pos == nil:
		return drag.Position{}, ErrNoPosition
	}
	return *r.pos, nil
}

// SetPosition moves the window. The cached position follows the command
// until the shell reports again.
func (r *Relay) SetPosition(ctx context.Context, pos drag.Position) error {
	if err := r.send(ctx, &message.Message{Type: message.TypeWindow, Action: message.ActionMove, Position: &pos}); err != nil {
		return err
	}
	r.mu.Lock()
	r.pos = &pos
	r.mu.Unlock()
	return nil
}

func (r *Relay) Hide(ctx context.Context) error { return r.window(ctx, message.ActionHide) }
func (r *Relay) Show(ctx context.Context) error { return r.window(ctx, message.ActionShow) }

// MoveOffscreen parks the window outside every monitor; the shell knows the
// monitor layout.
func (r *Relay) MoveOffscreen(ctx context.Context) error {
	return r.window(ctx, message.ActionOffscreen)
}

func (r *Relay) window(ctx context.Context, action string) error {
	return r.send(ctx, &message.Message{Type: message.TypeWindow, Action: action})
}

// ── drag.HUD ───────────────────────────────────────────────────────────────

// HUD returns the relay's drag.HUD view.
func (r *Relay) HUD() *HUD { return &HUD{r: r} }

// HUD sends HUD commands through a Relay.
type HUD struct{ r *Relay }

func (h *HUD) Show(ctx context.Context) error         { return h.send(ctx, message.ActionShow) }
func (h *HUD) Hide(ctx context.Context) error         { return h.send(ctx, message.ActionHide) }
func (h *HUD) FollowCursor(ctx context.Context) error { return h.send(ctx, message.ActionFollow) }

func (h *HUD) send(ctx context.Context, action string) error {
	return h.r.send(ctx, &message.Message{Type: message.TypeHUD, Action: action})
}

var (
	_ drag.Window = (*Relay)(nil)
	_ drag.HUD    = (*HUD)(nil)
)
