// Package clip provides a unified interface to the system clipboard across
// platforms. Build constraints select the appropriate implementation:
//
//	clip_darwin.go   macOS via golang.design/x/clipboard + cgo changeCount
//	clip_windows.go  Windows via golang.design/x/clipboard + AddClipboardFormatListener
//	clip_linux.go    Linux via golang.design/x/clipboard, polling only
//	clip_other.go    in-memory stand-in for other platforms
//
// Clipboard layers the typed writes the drag pipeline needs (text, file
// lists, PNG images) on top of a Backend and remembers what it wrote last so
// change watchers can tell its own writes from other applications'.
package clip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
)

// MIME types understood by the backends.
const (
	MIMEText    = "text/plain"
	MIMEPNG     = "image/png"
	MIMEURIList = "text/uri-list"
)

// ErrUnsupported is returned by a Backend asked to write only formats it
// cannot represent.
var ErrUnsupported = errors.New("clip: unsupported clipboard format")

// Item is a single clipboard representation with a MIME type.
type Item struct {
	MIME string
	Data []byte
}

// Backend is the interface that all platform clipboard implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Read returns the current clipboard contents as a slice of typed items.
	// Returns nil, nil if the clipboard is empty or contains only unsupported types.
	Read() ([]Item, error)

	// Write replaces the clipboard contents with the items it can represent
	// and skips the rest. It returns ErrUnsupported if none could be written.
	Write(items []Item) error

	// Watch returns a channel that receives a signal whenever the clipboard
	// changes. The channel is closed by Close. On platforms without native
	// change notification this is implemented via polling.
	Watch() <-chan struct{}

	// Close releases any resources held by the backend.
	Close()
}

// Clipboard is the system clipboard as used by the drag pipeline. It is
// safe for concurrent use.
type Clipboard struct {
	b   Backend
	log *slog.Logger

	// Backends are not reentrant; writes are serialized.
	writeMu sync.Mutex

	mu   sync.Mutex
	last []Item
}

// NewClipboard wraps b.
func NewClipboard(b Backend) *Clipboard {
	return &Clipboard{b: b, log: slog.With("component", "clip", "backend", b.Name())}
}

// Backend returns the wrapped backend.
func (c *Clipboard) Backend() Backend { return c.b }

// WriteText puts text on the clipboard.
func (c *Clipboard) WriteText(ctx context.Context, text string) error {
	return c.write(ctx, "text", []Item{{MIME: MIMEText, Data: []byte(text)}})
}

// WriteFileList puts paths on the clipboard as a text/uri-list, with the
// newline-joined paths as the plain-text representation for targets that
// do not accept file drops.
func (c *Clipboard) WriteFileList(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return errors.New("clip: empty file list")
	}
	uris := make([]string, 0, len(paths))
	for _, p := range paths {
		uris = append(uris, fileURI(p))
	}
	return c.write(ctx, "files", []Item{
		{MIME: MIMEURIList, Data: []byte(strings.Join(uris, "\r\n") + "\r\n")},
		{MIME: MIMEText, Data: []byte(strings.Join(paths, "\n"))},
	})
}

// WriteImage puts a PNG-encoded image on the clipboard.
func (c *Clipboard) WriteImage(ctx context.Context, png []byte) error {
	if !bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")) {
		return errors.New("clip: image is not PNG encoded")
	}
	return c.write(ctx, "image", []Item{{MIME: MIMEPNG, Data: png}})
}

func (c *Clipboard) write(ctx context.Context, kind string, items []Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.last = items
	c.mu.Unlock()

	if err := c.b.Write(items); err != nil {
		c.mu.Lock()
		c.last = nil
		c.mu.Unlock()
		return fmt.Errorf("clipboard write %s: %w", kind, err)
	}
	c.log.Debug("clipboard written", "kind", kind, "bytes", size(items))
	return nil
}

// Own reports whether items are what this Clipboard wrote last. Every
// item read back must match a written item; formats the backend dropped
// are ignored.
func (c *Clipboard) Own(items []Item) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(items) == 0 || len(c.last) == 0 {
		return false
	}
	for _, it := range items {
		if !slices.ContainsFunc(c.last, func(w Item) bool {
			return w.MIME == it.MIME && bytes.Equal(w.Data, it.Data)
		}) {
			return false
		}
	}
	return true
}

// Read returns the current clipboard contents.
func (c *Clipboard) Read() ([]Item, error) { return c.b.Read() }

// Watch returns the backend change channel.
func (c *Clipboard) Watch() <-chan struct{} { return c.b.Watch() }

// Close closes the backend.
func (c *Clipboard) Close() { c.b.Close() }

func fileURI(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if !strings.HasPrefix(p, "/") {
		// Windows drive paths become file:///C:/...
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

func size(items []Item) int {
	n := 0
	for _, it := range items {
		n += len(it.Data)
	}
	return n
}

// MIMEs returns the MIME types of items in order.
func MIMEs(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.MIME
	}
	return out
}
