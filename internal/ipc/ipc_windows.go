//go:build windows

package ipc

import (
	"os"
	"path/filepath"
)

// socketDir uses the per-user local app data directory; Windows 10 and
// later support AF_UNIX sockets there.
func socketDir() string {
	if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
		return filepath.Join(dir, "clipdrag")
	}
	return os.TempDir()
}

// restrict is a no-op; the directory ACL of LOCALAPPDATA is per-user.
func restrict(string) {}
