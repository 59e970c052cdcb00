// Package progress defines the download progress stream shared by the image
// fetcher (producer) and the drag reconciler (consumer), and the Bus that
// carries it.
package progress

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state carried by an Event.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusFailed      Status = "failed"
)

// Terminal reports whether no further events follow s for the same request.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Code is a machine-readable failure code.
type Code string

const (
	CodeNetRequest     Code = "E_NET_REQUEST"
	CodeNetTimeout     Code = "E_NET_TIMEOUT"
	CodeFormatInvalid  Code = "E_FORMAT_INVALID"
	CodeDecodeFailed   Code = "E_DECODE_FAILED"
	CodeClipboardBusy  Code = "E_CLIPBOARD_BUSY"
	CodeClipboardWrite Code = "E_CLIPBOARD_WRITE"
	CodeFileIO         Code = "E_FILE_IO"
	CodeResourceLimit  Code = "E_RESOURCE_LIMIT"
	CodeCancelled      Code = "E_CANCELLED"
)

// Stage names the pipeline step a failure happened in.
type Stage string

const (
	StageDownload  Stage = "download"
	StageFormat    Stage = "format"
	StageDecode    Stage = "decode"
	StageClipboard Stage = "clipboard"
	StageResource  Stage = "resource"
	StageUnknown   Stage = "unknown"
)

// StageOf returns the stage a code is normally reported under.
func StageOf(c Code) Stage {
	switch c {
	case CodeNetRequest, CodeNetTimeout:
		return StageDownload
	case CodeFormatInvalid:
		return StageFormat
	case CodeDecodeFailed:
		return StageDecode
	case CodeClipboardBusy, CodeClipboardWrite:
		return StageClipboard
	case CodeResourceLimit:
		return StageResource
	default:
		return StageUnknown
	}
}

// Event is one progress notification for a download request.
type Event struct {
	RequestID       string  `json:"request_id"`
	Progress        float64 `json:"progress"`
	DownloadedBytes uint64  `json:"downloaded_bytes"`
	TotalBytes      *uint64 `json:"total_bytes"`
	Status          Status  `json:"status"`
	ErrorCode       Code    `json:"error_code,omitempty"`
	Stage           Stage   `json:"stage,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

// Cancelled reports whether the event signals a cancellation, either as an
// explicit status or as a failure carrying E_CANCELLED.
func (e Event) Cancelled() bool {
	return e.Status == StatusCancelled ||
		(e.Status == StatusFailed && e.ErrorCode == CodeCancelled)
}

// Error is a structured failure from the image pipeline.
type Error struct {
	Code    Code
	Stage   Stage
	Message string
	Err     error
}

// Errorf builds an *Error for code, with the stage implied by the code.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Stage: StageOf(code), Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error for code around err.
func Wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, Stage: StageOf(code), Message: msg, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Detail is the human-facing message without the code prefix.
func (e *Error) Detail() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// CodeOf extracts the Code from err, or "" when err carries none.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

var codeTitles = map[Code]string{
	CodeNetRequest:     "Image download failed",
	CodeNetTimeout:     "Image download failed (timed out)",
	CodeFormatInvalid:  "Image processing failed (unsupported format)",
	CodeDecodeFailed:   "Image processing failed (decode error)",
	CodeClipboardBusy:  "Clipboard busy, retry later",
	CodeClipboardWrite: "Clipboard write failed, retry later",
	CodeFileIO:         "File operation failed",
	CodeResourceLimit:  "Image exceeds resource limits",
}

var stageTitles = map[Stage]string{
	StageDownload:  "Image download failed",
	StageFormat:    "Image processing failed",
	StageDecode:    "Image processing failed",
	StageClipboard: "Clipboard write failed, retry later",
	StageResource:  "Resource limit reached",
}

// Title maps a failure code and stage to a user-facing title. Unknown codes
// fall back to the stage, then to a generic title.
func Title(code Code, stage Stage) string {
	if t, ok := codeTitles[code]; ok {
		return t
	}
	if t, ok := stageTitles[stage]; ok {
		return t
	}
	return "Image copy failed"
}
