// Package message defines the clipdrag UI shell protocol.
//
// All messages are newline-delimited JSON; each message is exactly one line:
// <json>\n. A UI shell connects to the daemon socket, introduces itself with
// HELLO and then drives drags (START_DRAG, END_DRAG, CLEAR) and reports its
// window position (POSITION). The daemon answers with RESULT or ERROR
// (matched by Seq), broadcasts STATE and PROGRESS to every peer, and sends
// WINDOW and HUD commands to the shell that owns the window.
package message

import (
	"encoding/json"
	"fmt"
	"time"

	"go.klb.dev/clipdrag/internal/drag"
	"go.klb.dev/clipdrag/internal/progress"
)

// Type identifies the kind of message.
type Type string

const (
	// UI → daemon
	TypeHello     Type = "HELLO"
	TypePosition  Type = "POSITION"
	TypeStartDrag Type = "START_DRAG"
	TypeEndDrag   Type = "END_DRAG"
	TypeClear     Type = "CLEAR"
	TypeStatus    Type = "STATUS"

	// daemon → UI
	TypeState          Type = "STATE"
	TypeProgress       Type = "PROGRESS"
	TypeWindow         Type = "WINDOW"
	TypeHUD            Type = "HUD"
	TypeClipboard      Type = "CLIPBOARD"
	TypeResult         Type = "RESULT"
	TypeStatusResponse Type = "STATUS_RESPONSE"
	TypeError          Type = "ERROR"

	// both directions
	TypePing Type = "PING"
	TypePong Type = "PONG"
)

// Role identifies what a connected peer is.
type Role string

const (
	// RoleShell owns the application window and the HUD. At most one shell
	// receives WINDOW and HUD commands at a time.
	RoleShell Role = "shell"
	// RoleObserver only receives broadcasts (status panels, tests).
	RoleObserver Role = "observer"
	// RoleClipboard is the daemon's own system clipboard watcher.
	RoleClipboard Role = "clipboard"
)

// Window and HUD actions.
const (
	ActionShow      = "show"
	ActionHide      = "hide"
	ActionOffscreen = "offscreen"
	ActionMove      = "move"
	ActionFollow    = "follow"
)

// Clipboard change origins.
const (
	OriginOwn      = "own"
	OriginExternal = "external"
)

// PeerInfo carries metadata about a connected peer, used in STATUS responses.
type PeerInfo struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Addr        string    `json:"addr"`
	Role        Role      `json:"role"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// Result is drag.Result with its errors flattened to text.
type Result struct {
	drag.Result
	CopyError  string `json:"copy_error,omitempty"`
	PasteError string `json:"paste_error,omitempty"`
}

// NewResult converts r for the wire.
func NewResult(r drag.Result) *Result {
	out := &Result{Result: r}
	if r.CopyErr != nil {
		out.CopyError = r.CopyErr.Error()
	}
	if r.PasteErr != nil {
		out.PasteError = r.PasteErr.Error()
	}
	return out
}

// Message is the top-level wire envelope.
type Message struct {
	// Always present
	Type Type `json:"type"`
	// Seq correlates a request with its RESULT or ERROR.
	Seq uint64 `json:"seq,omitempty"`

	// HELLO
	Source string `json:"source,omitempty"`
	Role   Role   `json:"role,omitempty"`

	// START_DRAG
	ItemID string         `json:"item_id,omitempty"`
	Text   string         `json:"text,omitempty"`
	Cursor *drag.Position `json:"cursor,omitempty"`

	// POSITION, WINDOW move
	Position *drag.Position `json:"position,omitempty"`

	// WINDOW, HUD
	Action string `json:"action,omitempty"`

	// STATE
	State *drag.DownloadState `json:"state,omitempty"`
	Phase string              `json:"phase,omitempty"`

	// PROGRESS
	Event *progress.Event `json:"event,omitempty"`

	// CLIPBOARD
	Origin string   `json:"origin,omitempty"`
	MIMEs  []string `json:"mimes,omitempty"`

	// RESULT
	Result *Result `json:"result,omitempty"`

	// STATUS_RESPONSE
	Peers []PeerInfo `json:"peers,omitempty"`

	// ERROR
	Error string `json:"error,omitempty"`
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("message decode: missing type")
	}
	return &m, nil
}

// DragEvent returns the drag gesture carried by a START_DRAG message.
func (m *Message) DragEvent() drag.DragEvent {
	ev := drag.DragEvent{ItemID: m.ItemID}
	if m.Cursor != nil {
		ev.Cursor = *m.Cursor
	}
	return ev
}

// Reply returns an empty message of type t answering m.
func (m *Message) Reply(t Type) *Message {
	return &Message{Type: t, Seq: m.Seq}
}

// Errorf returns an ERROR reply to m.
func (m *Message) Errorf(format string, args ...any) *Message {
	r := m.Reply(TypeError)
	r.Error = fmt.Sprintf(format, args...)
	return r
}

// StateMessage builds a STATE broadcast.
func StateMessage(st drag.DownloadState, phase drag.Phase) *Message {
	return &Message{Type: TypeState, State: &st, Phase: phase.String()}
}

// ProgressMessage builds a PROGRESS broadcast.
func ProgressMessage(ev progress.Event) *Message {
	return &Message{Type: TypeProgress, Event: &ev}
}
