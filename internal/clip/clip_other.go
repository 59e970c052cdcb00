//go:build !darwin && !windows && !linux

package clip

import "log/slog"

// New returns an in-memory backend; this platform has no supported system
// clipboard.
func New() Backend {
	slog.Warn("system clipboard not supported on this platform, using in-memory clipboard")
	return NewMemory()
}
