//go:build darwin

package clip

// #cgo CFLAGS: -x objective-c
// #cgo LDFLAGS: -framework Cocoa
// #import <Cocoa/Cocoa.h>
//
// NSInteger clipdrag_changeCount() {
//     return [[NSPasteboard generalPasteboard] changeCount];
// }
import "C"

import "time"

// New returns the macOS clipboard backend. NSPasteboard has no change
// notification; its change count is polled instead.
func New() Backend {
	if !initSystem() {
		return NewMemory()
	}
	last := C.clipdrag_changeCount()
	return newSystemBackend("macOS NSPasteboard", 100*time.Millisecond, func() bool {
		cc := C.clipdrag_changeCount()
		if cc == last {
			return false
		}
		last = cc
		return true
	})
}
