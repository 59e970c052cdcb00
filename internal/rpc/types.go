package rpc

import (
	"go.klb.dev/clipdrag/internal/drag"
	"go.klb.dev/clipdrag/internal/message"
	"go.klb.dev/clipdrag/internal/progress"
)

type StartDragRequest struct {
	Text   string        `json:"text"`
	ItemID string        `json:"item_id,omitempty"`
	Cursor drag.Position `json:"cursor"`
}

type StartDragResponse struct {
	Kind drag.Kind `json:"kind"`
}

type EndDragRequest struct{}

type EndDragResponse struct {
	Result *message.Result `json:"result"`
}

// DragRequest runs a whole gesture. HoldMS is the time between start and
// drop, during which a prefetch can make progress.
type DragRequest struct {
	StartDragRequest
	HoldMS int64 `json:"hold_ms,omitempty"`
}

type ClearRequest struct{}

type StateRequest struct{}

type StateResponse struct {
	State drag.DownloadState `json:"state"`
	Phase string             `json:"phase"`
	Peers []message.PeerInfo `json:"peers,omitempty"`
}

type WatchRequest struct {
	// NoProgress suppresses raw progress events; state changes are always
	// sent.
	NoProgress bool `json:"no_progress,omitempty"`
}

// WatchResponse carries exactly one of State or Event.
type WatchResponse struct {
	State *drag.DownloadState `json:"state,omitempty"`
	Phase string              `json:"phase,omitempty"`
	Event *progress.Event     `json:"event,omitempty"`
}
