package imagefetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"go.klb.dev/clipdrag/internal/logging"
	"go.klb.dev/clipdrag/internal/progress"
)

var errCancelled = errors.New("download cancelled")

// ImageWriter is the system clipboard as seen by the fetcher.
type ImageWriter interface {
	WriteImage(ctx context.Context, png []byte) error
	WriteText(ctx context.Context, text string) error
}

// Publisher receives progress events.
type Publisher interface {
	Publish(ev progress.Event) error
}

// Service fetches images and copies them to the clipboard. It is safe for
// concurrent use; each download runs on its caller's goroutine.
type Service struct {
	client *http.Client
	clip   ImageWriter
	bus    Publisher
	clock  clockwork.Clock
	log    *slog.Logger

	cfgMu sync.RWMutex
	cfg   Config

	mu      sync.Mutex
	cancels map[string]context.CancelCauseFunc
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the real clock, for tests.
func WithClock(c clockwork.Clock) Option { return func(s *Service) { s.clock = c } }

// WithHTTPClient replaces the default HTTP client. Its redirect policy is
// left untouched.
func WithHTTPClient(c *http.Client) Option { return func(s *Service) { s.client = c } }

// New returns a Service writing to clip and publishing progress on bus.
func New(cfg Config, clip ImageWriter, bus Publisher, opts ...Option) *Service {
	s := &Service{
		clip:    clip,
		bus:     bus,
		clock:   clockwork.NewRealClock(),
		log:     slog.With("component", "imagefetch"),
		cfg:     cfg.withDefaults(),
		cancels: make(map[string]context.CancelCauseFunc),
	}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		s.client = s.defaultClient()
	}
	return s
}

func (s *Service) defaultClient() *http.Client {
	dialer := &net.Dialer{Timeout: s.config().ConnectTimeout}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = dialer.DialContext
	return &http.Client{
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			cfg := s.config()
			if len(via) >= cfg.MaxRedirects {
				return progress.Errorf(progress.CodeNetRequest, "stopped after %d redirects", len(via))
			}
			_, err := checkURL(req.URL.String(), cfg.AllowPrivateNetwork)
			return err
		},
	}
}

func (s *Service) config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// SetConfig replaces the limits for downloads started afterwards.
func (s *Service) SetConfig(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg.withDefaults()
	s.cfgMu.Unlock()
}

// NewRequestID returns a fresh random request ID.
func (s *Service) NewRequestID() string { return uuid.NewString() }

// Inflight returns the number of downloads that can still be cancelled.
func (s *Service) Inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cancels)
}

// CancelDownload flags requestID as cancelled. It reports whether the ID
// belonged to a running download.
func (s *Service) CancelDownload(_ context.Context, requestID string) (bool, error) {
	s.mu.Lock()
	cancel, ok := s.cancels[requestID]
	s.mu.Unlock()
	if ok {
		cancel(errCancelled)
		s.log.Debug("download cancel requested", "request_id", requestID)
	}
	return ok, nil
}

// DownloadAndCopyImage downloads rawURL, puts the image on the clipboard
// and publishes progress under requestID. Exactly one terminal event is
// published per call.
func (s *Service) DownloadAndCopyImage(ctx context.Context, rawURL, requestID string) error {
	cfg := s.config()
	log := s.log.With("request_id", requestID)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	s.mu.Lock()
	s.cancels[requestID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, requestID)
		s.mu.Unlock()
	}()

	ctx, stop := context.WithTimeout(ctx, cfg.DownloadTimeout)
	defer stop()

	th := newThrottle(s.clock)
	var lastBytes uint64
	var lastTotal *uint64
	onProgress := func(downloaded uint64, total *uint64) {
		lastBytes, lastTotal = downloaded, total
		pct := percent(downloaded, total)
		if !th.allow(pct, downloaded, total) {
			return
		}
		s.publish(progress.Event{
			RequestID:       requestID,
			Progress:        float64(pct),
			DownloadedBytes: downloaded,
			TotalBytes:      total,
			Status:          progress.StatusDownloading,
		})
	}

	log.Info("downloading image", "url", logging.RedactURL(rawURL))
	onProgress(0, nil)
	err := s.fetchAndCopy(ctx, rawURL, cfg, onProgress)
	if err != nil && (errors.Is(context.Cause(ctx), errCancelled) || errors.Is(err, context.Canceled)) {
		err = progress.Wrap(progress.CodeCancelled, errCancelled, "")
	}

	ev := progress.Event{
		RequestID:       requestID,
		DownloadedBytes: lastBytes,
		TotalBytes:      lastTotal,
	}
	var pe *progress.Error
	switch {
	case err == nil:
		done := max(lastBytes, 1)
		if lastTotal == nil {
			lastTotal = &done
		}
		ev.Status, ev.Progress, ev.DownloadedBytes, ev.TotalBytes = progress.StatusCompleted, 100, done, lastTotal
		log.Info("image copied", "bytes", humanize.IBytes(lastBytes))
	case progress.CodeOf(err) == progress.CodeCancelled:
		ev.Status, ev.ErrorCode = progress.StatusCancelled, progress.CodeCancelled
		log.Info("download cancelled")
	case errors.As(err, &pe):
		ev.Status, ev.Progress = progress.StatusFailed, float64(percent(lastBytes, lastTotal))
		ev.ErrorCode, ev.Stage, ev.ErrorMessage = pe.Code, pe.Stage, pe.Detail()
		log.Warn("image copy failed", "code", pe.Code, "err", pe.Detail())
	default:
		ev.Status, ev.Stage, ev.ErrorMessage = progress.StatusFailed, progress.StageUnknown, err.Error()
		log.Warn("image copy failed", "err", err)
	}
	s.publish(ev)
	return err
}

func (s *Service) publish(ev progress.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ev); err != nil {
		s.log.Debug("progress event dropped", "request_id", ev.RequestID, "err", err)
	}
}

func (s *Service) fetchAndCopy(ctx context.Context, rawURL string, cfg Config, onProgress progressFunc) error {
	u, err := checkURL(strings.TrimSpace(rawURL), cfg.AllowPrivateNetwork)
	if err != nil {
		return err
	}
	body, err := s.download(ctx, u.String(), cfg, onProgress)
	if err != nil {
		return err
	}
	if err := checkSignature(body); err != nil {
		return err
	}
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return s.copyImage(ctx, body, cfg, "url")
}

// WriteBase64Image decodes a data URL or bare base64 image and copies it.
func (s *Service) WriteBase64Image(ctx context.Context, data string) error {
	cfg := s.config()
	b, err := decodeBase64(data, cfg)
	if err != nil {
		return err
	}
	if int64(len(b)) > cfg.MaxFileSize {
		return tooLarge(int64(len(b)), cfg.MaxFileSize)
	}
	if err := checkSignature(b); err != nil {
		return err
	}
	return s.copyImage(ctx, b, cfg, "base64")
}

// WriteLocalImage reads an image file and copies it.
func (s *Service) WriteLocalImage(ctx context.Context, path string) error {
	cfg := s.config()
	b, err := readFile(path, cfg)
	if err != nil {
		return err
	}
	if err := checkSignature(b); err != nil {
		return err
	}
	return s.copyImage(ctx, b, cfg, "file")
}

// WriteSVGFile copies the markup of an SVG file as text, which is what
// editors and browsers expect when an SVG is pasted.
func (s *Service) WriteSVGFile(ctx context.Context, path string) error {
	cfg := s.config()
	b, err := readFile(path, cfg)
	if err != nil {
		return err
	}
	if !utf8.Valid(b) || !strings.Contains(strings.ToLower(string(b)), "<svg") {
		return progress.Errorf(progress.CodeFormatInvalid, "%s is not an SVG document", path)
	}
	if err := s.clip.WriteText(ctx, string(b)); err != nil {
		return progress.Wrap(progress.CodeClipboardWrite, err, "write svg to clipboard")
	}
	s.log.Info("svg copied as text", "path", path, "bytes", humanize.IBytes(uint64(len(b))))
	return nil
}

func (s *Service) copyImage(ctx context.Context, b []byte, cfg Config, source string) error {
	p, err := prepare(b, cfg)
	if err != nil {
		return err
	}
	attrs := []any{"source", source, "format", p.Format, "size", fmt.Sprintf("%dx%d", p.OutW, p.OutH)}
	if p.DownscaledFrom != "" {
		attrs = append(attrs, "downscaled_from", p.DownscaledFrom)
	}
	s.log.Debug("image prepared", attrs...)
	return s.writeImage(ctx, p.PNG, cfg)
}

func (s *Service) writeImage(ctx context.Context, png []byte, cfg Config) error {
	var last error
	for attempt := 1; attempt <= cfg.ClipboardRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-s.clock.After(cfg.ClipboardRetryDelay):
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		}
		if last = s.clip.WriteImage(ctx, png); last == nil {
			return nil
		}
		s.log.Debug("clipboard write failed", "attempt", attempt, "err", last)
	}
	var pe *progress.Error
	if errors.As(last, &pe) {
		return pe
	}
	return progress.Wrap(progress.CodeClipboardWrite, last, fmt.Sprintf("write image after %d attempts", cfg.ClipboardRetries))
}
