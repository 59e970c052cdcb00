//go:build windows

package clip

// #cgo LDFLAGS: -luser32
//
// #include <windows.h>
// #include <stdlib.h>
//
// static HWND clipdrag_create_listener_window();
// static void clipdrag_pump_messages(HWND hwnd, int* changed);
//
// static LRESULT CALLBACK clipdrag_wnd_proc(HWND hwnd, UINT msg, WPARAM wp, LPARAM lp) {
//     if (msg == WM_CLIPBOARDUPDATE) {
//         PostMessage(hwnd, WM_USER + 1, 0, 0);
//         return 0;
//     }
//     return DefWindowProc(hwnd, msg, wp, lp);
// }
//
// static HWND clipdrag_create_listener_window() {
//     WNDCLASS wc = {0};
//     wc.lpfnWndProc   = clipdrag_wnd_proc;
//     wc.hInstance     = GetModuleHandle(NULL);
//     wc.lpszClassName = "ClipdragClipboard";
//     RegisterClass(&wc);
//     HWND hwnd = CreateWindowEx(0, "ClipdragClipboard", NULL, 0,
//         0, 0, 0, 0, HWND_MESSAGE, NULL, GetModuleHandle(NULL), NULL);
//     AddClipboardFormatListener(hwnd);
//     return hwnd;
// }
//
// static void clipdrag_pump_messages(HWND hwnd, int* changed) {
//     MSG msg;
//     *changed = 0;
//     while (PeekMessage(&msg, hwnd, 0, 0, PM_REMOVE)) {
//         if (msg.message == WM_USER + 1) { *changed = 1; }
//         TranslateMessage(&msg);
//         DispatchMessage(&msg);
//     }
// }
import "C"

import (
	"runtime"
	"time"
)

// New returns the Windows clipboard backend. WM_CLIPBOARDUPDATE is posted
// to a message-only window registered with AddClipboardFormatListener; its
// queue is drained on every tick. A window's messages can only be read on
// the thread that created it, so the window is created lazily on the
// locked watch goroutine.
func New() Backend {
	if !initSystem() {
		return NewMemory()
	}
	var hwnd C.HWND
	return newSystemBackend("Windows clipboard", 50*time.Millisecond, func() bool {
		if hwnd == nil {
			runtime.LockOSThread()
			hwnd = C.clipdrag_create_listener_window()
			return false
		}
		var changed C.int
		C.clipdrag_pump_messages(hwnd, &changed)
		return changed != 0
	})
}
