package drag

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

// callLog records collaborator calls in order across goroutines.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

func (l *callLog) count(prefix string) int {
	n := 0
	for _, c := range l.all() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (l *callLog) index(call string) int {
	return slices.Index(l.all(), call)
}

type fakeDownloader struct {
	log *callLog

	mu   sync.Mutex
	next int
	fn   func(ctx context.Context, url, id string) error
}

func (d *fakeDownloader) NewRequestID() string {
	d.mu.Lock()
	d.next++
	id := fmt.Sprintf("req-%d", d.next)
	d.mu.Unlock()
	d.log.add("newid:%s", id)
	return id
}

func (d *fakeDownloader) DownloadAndCopyImage(ctx context.Context, url, id string) error {
	d.log.add("download:%s:%s", id, url)
	d.mu.Lock()
	fn := d.fn
	d.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, url, id)
}

func (d *fakeDownloader) CancelDownload(_ context.Context, id string) (bool, error) {
	d.log.add("cancel:%s", id)
	return true, nil
}

func (d *fakeDownloader) setFn(fn func(ctx context.Context, url, id string) error) {
	d.mu.Lock()
	d.fn = fn
	d.mu.Unlock()
}

type fakeClipboard struct {
	log *callLog

	mu        sync.Mutex
	textFails int
	imageErr  error
	filesErr  error
	texts     []string
}

var errClipboardBusy = errors.New("clipboard busy")

func (c *fakeClipboard) WriteText(_ context.Context, text string) error {
	c.log.add("text:%s", text)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.textFails > 0 {
		c.textFails--
		return errClipboardBusy
	}
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeClipboard) WriteFileList(_ context.Context, paths []string) error {
	c.log.add("files:%s", strings.Join(paths, ","))
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filesErr
}

func (c *fakeClipboard) WriteBase64Image(_ context.Context, data string) error {
	c.log.add("base64:%d", len(data))
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imageErr
}

func (c *fakeClipboard) WriteLocalImage(_ context.Context, path string) error {
	c.log.add("local:%s", path)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imageErr
}

func (c *fakeClipboard) WriteSVGFile(_ context.Context, path string) error {
	c.log.add("svg:%s", path)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.imageErr
}

func (c *fakeClipboard) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.texts)
}

type fakePaster struct {
	log *callLog
	err error
	fn  func()
}

func (p *fakePaster) SimulatePaste(context.Context) error {
	p.log.add("paste")
	if p.fn != nil {
		p.fn()
	}
	return p.err
}

type fakeWindow struct {
	log *callLog

	mu      sync.Mutex
	pos     Position
	posErr  error
	moveErr error
}

func (w *fakeWindow) Position(context.Context) (Position, error) {
	w.log.add("win:position")
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pos, w.posErr
}

func (w *fakeWindow) SetPosition(_ context.Context, p Position) error {
	w.log.add("win:set:%d,%d", p.X, p.Y)
	w.mu.Lock()
	w.pos = p
	w.mu.Unlock()
	return nil
}

func (w *fakeWindow) Hide(context.Context) error { w.log.add("win:hide"); return nil }
func (w *fakeWindow) Show(context.Context) error { w.log.add("win:show"); return nil }

func (w *fakeWindow) MoveOffscreen(context.Context) error {
	w.log.add("win:offscreen")
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.moveErr != nil {
		return w.moveErr
	}
	w.pos = Position{X: -10000, Y: -10000}
	return nil
}

func (w *fakeWindow) position() Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pos
}

type fakeHUD struct {
	log *callLog
}

func (h *fakeHUD) Show(context.Context) error         { h.log.add("hud:show"); return nil }
func (h *fakeHUD) Hide(context.Context) error         { h.log.add("hud:hide"); return nil }
func (h *fakeHUD) FollowCursor(context.Context) error { h.log.add("hud:follow"); return nil }

type harness struct {
	c      *Controller
	clock  *clockwork.FakeClock
	log    *callLog
	dl     *fakeDownloader
	clip   *fakeClipboard
	win    *fakeWindow
	paster *fakePaster
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	log := &callLog{}
	h := &harness{
		clock:  clockwork.NewFakeClock(),
		log:    log,
		dl:     &fakeDownloader{log: log},
		clip:   &fakeClipboard{log: log},
		win:    &fakeWindow{log: log, pos: Position{X: 100, Y: 200}},
		paster: &fakePaster{log: log},
	}
	h.c = New(Deps{
		Downloader: h.dl,
		Clipboard:  h.clip,
		Paster:     h.paster,
		Window:     h.win,
		HUD:        &fakeHUD{log: log},
		Clock:      h.clock,
	}, opts)
	t.Cleanup(func() { h.c.Close(context.Background()) })
	return h
}

// blockDownloads makes every download wait until release is closed or the
// download context ends.
func (h *harness) blockDownloads(t *testing.T) (release func()) {
	ch := make(chan struct{})
	h.dl.setFn(func(ctx context.Context, _, _ string) error {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	var once sync.Once
	release = func() { once.Do(func() { close(ch) }) }
	t.Cleanup(release)
	return release
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	assert.Eventually(t, cond, time.Second, 2*time.Millisecond, msg)
}
