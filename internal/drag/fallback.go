package drag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"go.klb.dev/clipdrag/internal/progress"
)

// ErrorClass groups failures by how they are reported and recovered.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassNetwork
	ClassContent
	ClassClipboard
	ClassResource
	ClassCancelled
	ClassUnstructured
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassNetwork:
		return "network"
	case ClassContent:
		return "content"
	case ClassClipboard:
		return "clipboard"
	case ClassResource:
		return "resource"
	case ClassCancelled:
		return "cancelled"
	default:
		return "unstructured"
	}
}

// ClassOf classifies err. Context cancellation counts as ClassCancelled.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var pe *progress.Error
	if !errors.As(err, &pe) {
		if errors.Is(err, context.Canceled) {
			return ClassCancelled
		}
		return ClassUnstructured
	}
	switch pe.Code {
	case progress.CodeNetRequest, progress.CodeNetTimeout:
		return ClassNetwork
	case progress.CodeFormatInvalid, progress.CodeDecodeFailed:
		return ClassContent
	case progress.CodeClipboardBusy, progress.CodeClipboardWrite:
		return ClassClipboard
	case progress.CodeResourceLimit, progress.CodeFileIO:
		return ClassResource
	case progress.CodeCancelled:
		return ClassCancelled
	default:
		return ClassUnstructured
	}
}

// Describe renders err for DownloadState.Error: the title for its code and
// stage, followed by the detail message when there is one.
func Describe(err error) string {
	var pe *progress.Error
	if !errors.As(err, &pe) {
		return err.Error()
	}
	title := progress.Title(pe.Code, pe.Stage)
	if d := pe.Detail(); d != "" {
		return title + ": " + d
	}
	return title
}

// Fallback is one recovery step run after resolution fails.
type Fallback struct {
	Name    string
	Handles []ErrorClass
	Run     func(ctx context.Context, text string) error
}

func (f Fallback) handles(c ErrorClass) bool {
	for _, h := range f.Handles {
		if h == c {
			return true
		}
	}
	return false
}

// Cascade is an ordered list of fallbacks. Run stops at the first success.
type Cascade []Fallback

// ErrNoFallback is returned by Cascade.Run when no step handles the class.
var ErrNoFallback = errors.New("no fallback for error class")

// Run tries each fallback that handles the class of cause. It returns the
// name of the step that succeeded.
func (c Cascade) Run(ctx context.Context, cause error, text string) (string, error) {
	class := ClassOf(cause)
	var errs []error
	for _, f := range c {
		if !f.handles(class) {
			continue
		}
		err := f.Run(ctx, text)
		if err == nil {
			return f.Name, nil
		}
		slog.Debug("fallback step failed", "component", "drag.fallback", "step", f.Name, "err", err)
		errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("%w %s", ErrNoFallback, class)
	}
	return "", errors.Join(errs...)
}

var recoverable = []ErrorClass{
	ClassNetwork, ClassContent, ClassClipboard, ClassResource, ClassUnstructured,
}

// DefaultCascade copies the original text, then retries once after delay.
// Cancellation has no fallback.
func DefaultCascade(clip Clipboard, clock clockwork.Clock, delay func() time.Duration) Cascade {
	return Cascade{
		{
			Name:    "copy-text",
			Handles: recoverable,
			Run:     clip.WriteText,
		},
		{
			Name:    "copy-text-retry",
			Handles: recoverable,
			Run: func(ctx context.Context, text string) error {
				select {
				case <-clock.After(delay()):
				case <-ctx.Done():
					return ctx.Err()
				}
				return clip.WriteText(ctx, text)
			},
		},
	}
}
