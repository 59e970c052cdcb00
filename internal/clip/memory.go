package clip

import (
	"slices"
	"sync"
)

// Memory is an in-process clipboard used on headless hosts (no X11,
// Wayland or window server) and in tests. Writes are readable back and
// signal Watch like a real clipboard change.
type Memory struct {
	mu      sync.Mutex
	items   []Item
	closed  bool
	watchCh chan struct{}
	fail    error
}

// NewMemory returns an empty in-memory clipboard.
func NewMemory() *Memory {
	return &Memory{watchCh: make(chan struct{}, 1)}
}

func (m *Memory) Name() string { return "in-memory (headless)" }

func (m *Memory) Read() ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.items), nil
}

func (m *Memory) Write(items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.items = slices.Clone(items)
	m.notifyLocked()
	return nil
}

// Set replaces the contents as if another application had copied them.
func (m *Memory) Set(items ...Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
	m.notifyLocked()
}

// FailWrites makes subsequent writes return err; nil restores them.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *Memory) notifyLocked() {
	if m.closed {
		return
	}
	select {
	case m.watchCh <- struct{}{}:
	default:
	}
}

func (m *Memory) Watch() <-chan struct{} { return m.watchCh }

func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.watchCh)
	}
}
