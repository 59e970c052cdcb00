package drag

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"go.klb.dev/clipdrag/internal/logging"
)

// Kind is the copy strategy chosen for dragged content.
type Kind int

const (
	KindText Kind = iota
	KindFileList
	KindBase64Image
	KindHTTPImage
	KindSVGFile
	KindLocalImage
	KindFilePath
)

var kindNames = map[Kind]string{
	KindText:        "text",
	KindFileList:    "file-list",
	KindBase64Image: "base64-image",
	KindHTTPImage:   "http-image",
	KindSVGFile:     "svg-file",
	KindLocalImage:  "local-image",
	KindFilePath:    "file-path",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown copy kind %q", b)
}

// IsImage reports whether k places image data on the clipboard.
func (k Kind) IsImage() bool {
	switch k {
	case KindBase64Image, KindHTTPImage, KindLocalImage:
		return true
	}
	return false
}

// FileListHeader marks a multi-file clipboard entry. Each following
// non-empty line is a path.
const FileListHeader = "[FILES]"

var rasterExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".bmp": true, ".ico": true, ".tif": true, ".tiff": true, ".avif": true,
}

// Classify picks the copy strategy for text. Rules are checked in a fixed
// order and the first match wins.
func Classify(text string) Kind {
	switch {
	case len(ParseFileList(text)) > 0:
		return KindFileList
	case isDataImage(text):
		return KindBase64Image
	case isHTTPImage(text):
		return KindHTTPImage
	}
	if p, ok := LocalPath(text); ok {
		ext := strings.ToLower(path.Ext(strings.ReplaceAll(p, `\`, "/")))
		switch {
		case ext == ".svg":
			return KindSVGFile
		case rasterExts[ext]:
			return KindLocalImage
		default:
			return KindFilePath
		}
	}
	return KindText
}

// ParseFileList returns the paths of a file-list entry, or nil when text is
// not one.
func ParseFileList(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[0]) != FileListHeader {
		return nil
	}
	var paths []string
	for _, l := range lines[1:] {
		if l = strings.TrimSpace(l); l != "" {
			paths = append(paths, l)
		}
	}
	return paths
}

func isDataImage(text string) bool {
	t := strings.TrimSpace(text)
	if len(t) < len("data:image/") || !strings.EqualFold(t[:len("data:image/")], "data:image/") {
		return false
	}
	head, _, ok := strings.Cut(t, ",")
	return ok && strings.HasSuffix(strings.ToLower(head), ";base64")
}

func isHTTPImage(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" || strings.ContainsAny(t, " \t\r\n") {
		return false
	}
	u, err := url.Parse(t)
	if err != nil || u.Host == "" {
		return false
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return false
	}
	if rasterExts[strings.ToLower(path.Ext(u.Path))] {
		return true
	}
	q := u.Query()
	for _, key := range []string{"format", "fm"} {
		v := strings.ToLower(q.Get(key))
		if v == "" {
			continue
		}
		v = strings.TrimPrefix(v, "image/")
		if rasterExts["."+v] {
			return true
		}
	}
	return false
}

// LocalPath reports whether text is a single absolute local path and
// returns it with any file:// scheme removed.
func LocalPath(text string) (string, bool) {
	t := strings.TrimSpace(text)
	if t == "" || strings.ContainsAny(t, "\r\n") {
		return "", false
	}
	if len(t) > len("file://") && strings.EqualFold(t[:len("file://")], "file://") {
		u, err := url.Parse(t)
		if err != nil || u.Path == "" {
			return "", false
		}
		return u.Path, true
	}
	switch {
	case strings.HasPrefix(t, "/"),
		strings.HasPrefix(t, "~/"),
		strings.HasPrefix(t, `\\`):
		return t, true
	case len(t) >= 3 && isDriveLetter(t[0]) && t[1] == ':' && (t[2] == '\\' || t[2] == '/'):
		return t, true
	}
	return "", false
}

func isDriveLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// Router performs the clipboard write for a classified drag.
type Router struct {
	clip Clipboard
	reg  *Registry
	log  *slog.Logger
}

// NewRouter returns a Router writing through clip. Remote images are
// downloaded through reg.
func NewRouter(clip Clipboard, reg *Registry) *Router {
	return &Router{clip: clip, reg: reg, log: slog.With("component", "drag.router")}
}

// Execute performs the single clipboard action for kind. Image and
// file-list failures are returned; text and file-path failures are logged
// and swallowed.
func (r *Router) Execute(ctx context.Context, kind Kind, text string) error {
	r.log.Debug("copy", "kind", kind, "preview", logging.Preview(text))

	switch kind {
	case KindFileList:
		paths := ParseFileList(text)
		if err := r.clip.WriteFileList(ctx, paths); err != nil {
			return fmt.Errorf("copy %d files: %w", len(paths), err)
		}
		return nil

	case KindBase64Image:
		return r.clip.WriteBase64Image(ctx, strings.TrimSpace(text))

	case KindHTTPImage:
		req := r.reg.Begin(ctx, strings.TrimSpace(text))
		return req.Wait(ctx)

	case KindSVGFile:
		p, _ := LocalPath(text)
		return r.clip.WriteSVGFile(ctx, p)

	case KindLocalImage:
		p, _ := LocalPath(text)
		return r.clip.WriteLocalImage(ctx, p)

	default:
		if err := r.clip.WriteText(ctx, text); err != nil {
			r.log.Warn("text copy failed", "kind", kind, "err", err)
		}
		return nil
	}
}
