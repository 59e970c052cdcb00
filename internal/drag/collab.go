// Package drag turns a drag gesture over a clipboard-history entry into a
// sequenced pipeline: optional image prefetch, window choreography,
// content-specific clipboard write, paste simulation and window restore.
//
// The Controller owns one Session at a time. Downloads are correlated with
// their progress events by request ID through the Tracker, which the
// Reconciler and the Controller both write. Every write that follows a
// blocking collaborator call is guarded by an identity check (request ID or
// session version) so a superseded operation can never overwrite newer state.
package drag

import (
	"context"
	"fmt"

	"go.klb.dev/clipdrag/internal/progress"
)

// Position is an outer window position in physical pixels.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// DragEvent describes the pointer gesture that started a drag.
type DragEvent struct {
	ItemID string   `json:"item_id,omitempty"`
	Cursor Position `json:"cursor"`
}

// Downloader fetches a remote image and places it on the system clipboard.
type Downloader interface {
	NewRequestID() string
	// DownloadAndCopyImage returns nil once the image is on the clipboard.
	// Failures are *progress.Error values.
	DownloadAndCopyImage(ctx context.Context, url, requestID string) error
	// CancelDownload is best-effort; false means the ID was unknown.
	CancelDownload(ctx context.Context, requestID string) (bool, error)
}

// Clipboard writes typed content to the system clipboard.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
	WriteFileList(ctx context.Context, paths []string) error
	WriteBase64Image(ctx context.Context, data string) error
	WriteLocalImage(ctx context.Context, path string) error
	WriteSVGFile(ctx context.Context, path string) error
}

// Paster simulates the platform paste keystroke.
type Paster interface {
	SimulatePaste(ctx context.Context) error
}

// Window controls the application window.
type Window interface {
	Position(ctx context.Context) (Position, error)
	SetPosition(ctx context.Context, pos Position) error
	Hide(ctx context.Context) error
	// Show makes the window visible and focuses it.
	Show(ctx context.Context) error
	MoveOffscreen(ctx context.Context) error
}

// HUD controls the floating download indicator.
type HUD interface {
	Show(ctx context.Context) error
	Hide(ctx context.Context) error
	FollowCursor(ctx context.Context) error
}

// Subscriber is the part of progress.Bus the Reconciler needs.
type Subscriber interface {
	Subscribe(h progress.Handler) (unsubscribe func())
}
