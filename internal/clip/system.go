//go:build darwin || linux || windows

package clip

import (
	"log/slog"
	"sync"
	"time"

	"golang.design/x/clipboard"
)

// systemBackend is the golang.design/x/clipboard backend shared by every
// desktop platform. Platforms differ only in how a change is detected:
// changed is called every interval from a single goroutine.
type systemBackend struct {
	name     string
	interval time.Duration
	changed  func() bool

	watchCh   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// initSystem initialises the clipboard library. ok is false on a headless
// session, where callers fall back to NewMemory. It is called from New
// rather than init() so CLI commands that never touch the clipboard stay
// quiet.
func initSystem() bool {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return false
	}
	return true
}

func newSystemBackend(name string, interval time.Duration, changed func() bool) *systemBackend {
	b := &systemBackend{
		name:     name,
		interval: interval,
		changed:  changed,
		watchCh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go b.watch()
	return b
}

func (b *systemBackend) watch() {
	defer close(b.watchCh)
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			if !b.changed() {
				continue
			}
			select {
			case b.watchCh <- struct{}{}:
			default:
			}
		}
	}
}

func (b *systemBackend) Name() string             { return b.name }
func (b *systemBackend) Read() ([]Item, error)    { return readSystem(), nil }
func (b *systemBackend) Write(items []Item) error { return writeSystem(items) }
func (b *systemBackend) Watch() <-chan struct{}   { return b.watchCh }
func (b *systemBackend) Close()                   { b.closeOnce.Do(func() { close(b.done) }) }

// readSystem returns the text and image formats currently on the system
// clipboard.
func readSystem() []Item {
	var items []Item
	if text := clipboard.Read(clipboard.FmtText); text != nil {
		items = append(items, Item{MIME: MIMEText, Data: text})
	}
	if img := clipboard.Read(clipboard.FmtImage); img != nil {
		items = append(items, Item{MIME: MIMEPNG, Data: img})
	}
	return items
}

// writeSystem writes the formats golang.design/x/clipboard can represent.
// A file list is carried by its plain-text item.
func writeSystem(items []Item) error {
	wrote := false
	for _, it := range items {
		switch it.MIME {
		case MIMEText:
			clipboard.Write(clipboard.FmtText, it.Data)
		case MIMEPNG:
			clipboard.Write(clipboard.FmtImage, it.Data)
		default:
			slog.Debug("clipboard format skipped", "mime", it.MIME)
			continue
		}
		wrote = true
	}
	if !wrote {
		return ErrUnsupported
	}
	return nil
}
