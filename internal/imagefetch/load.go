package imagefetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"go.klb.dev/clipdrag/internal/progress"
)

// progressFunc receives the running byte count and the announced total.
type progressFunc func(downloaded uint64, total *uint64)

func tooLarge(size, limit int64) *progress.Error {
	return progress.Errorf(progress.CodeResourceLimit, "image too large: %s (limit %s)",
		humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
}

// download fetches u and returns the body. The body is read in full but
// never beyond cfg.MaxFileSize.
func (s *Service) download(ctx context.Context, u string, cfg Config, onProgress progressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, progress.Wrap(progress.CodeNetRequest, err, "build request")
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err, cfg)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, progress.Errorf(progress.CodeNetRequest, "HTTP %d: %s", resp.StatusCode, statusText(resp.StatusCode))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "image/") {
		return nil, progress.Errorf(progress.CodeFormatInvalid, "not an image: %s", ct)
	}

	var total *uint64
	if resp.ContentLength >= 0 {
		if resp.ContentLength > cfg.MaxFileSize {
			return nil, tooLarge(resp.ContentLength, cfg.MaxFileSize)
		}
		n := uint64(resp.ContentLength)
		total = &n
	}

	var buf bytes.Buffer
	if total != nil {
		buf.Grow(int(*total))
	}
	chunk := make([]byte, 32<<10)
	var downloaded uint64
	onProgress(0, total)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			downloaded += uint64(n)
			if int64(downloaded) > cfg.MaxFileSize {
				return nil, tooLarge(int64(downloaded), cfg.MaxFileSize)
			}
			buf.Write(chunk[:n])
			onProgress(downloaded, total)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return nil, classifyTransportError(rerr, cfg)
		}
	}
	return buf.Bytes(), nil
}

func classifyTransportError(err error, cfg Config) error {
	var pe *progress.Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return progress.Wrap(progress.CodeNetTimeout, err, fmt.Sprintf("download timed out after %s", cfg.DownloadTimeout))
	}
	return progress.Wrap(progress.CodeNetRequest, err, "request failed")
}

func statusText(code int) string {
	if t := http.StatusText(code); t != "" {
		return t
	}
	return "request failed"
}

// decodeBase64 accepts a data URL or bare standard base64.
func decodeBase64(data string, cfg Config) ([]byte, error) {
	payload := strings.TrimSpace(data)
	if len(payload) > 5 && strings.EqualFold(payload[:5], "data:") {
		_, after, ok := strings.Cut(payload, ";base64,")
		if !ok {
			return nil, progress.Errorf(progress.CodeFormatInvalid, "data URL is not base64 encoded")
		}
		payload = after
	}
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > cfg.MaxFileSize+2 {
		return nil, tooLarge(int64(base64.StdEncoding.DecodedLen(len(payload))), cfg.MaxFileSize)
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, progress.Wrap(progress.CodeDecodeFailed, err, "base64 decode")
	}
	return b, nil
}

// readFile reads a local image after checking its size.
func readFile(path string, cfg Config) ([]byte, error) {
	path = expandHome(path)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, progress.Wrap(progress.CodeFileIO, err, "stat image")
	}
	if fi.IsDir() {
		return nil, progress.Errorf(progress.CodeFileIO, "%s is a directory", path)
	}
	if fi.Size() > cfg.MaxFileSize {
		return nil, tooLarge(fi.Size(), cfg.MaxFileSize)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, progress.Wrap(progress.CodeFileIO, err, "read image")
	}
	return b, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}

// checkSignature verifies that b starts with the magic bytes of an image
// format, independent of what the server or file name claimed.
func checkSignature(b []byte) error {
	if len(b) == 0 {
		return progress.Errorf(progress.CodeFormatInvalid, "empty image")
	}
	if sniffImage(b) == "" {
		return progress.Errorf(progress.CodeFormatInvalid, "content is not an image (%s)", http.DetectContentType(b))
	}
	return nil
}

// sniffImage returns the image MIME type of b, or "".
func sniffImage(b []byte) string {
	if ct := http.DetectContentType(b); strings.HasPrefix(ct, "image/") && ct != "image/svg+xml" {
		return ct
	}
	switch {
	case bytes.HasPrefix(b, []byte("II*\x00")), bytes.HasPrefix(b, []byte("MM\x00*")):
		return "image/tiff"
	case len(b) >= 12 && string(b[4:8]) == "ftyp" && (string(b[8:12]) == "avif" || string(b[8:12]) == "avis"):
		return "image/avif"
	}
	return ""
}
