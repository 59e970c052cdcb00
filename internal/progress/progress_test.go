package progress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversInOrder(t *testing.T) {
	b := NewBus(16)
	b.Start()
	defer b.Stop()

	var mu sync.Mutex
	var got []float64
	unsub := b.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Progress)
		mu.Unlock()
	})
	defer unsub()

	for i := 1; i <= 5; i++ {
		require.NoError(t, b.Publish(Event{RequestID: "r", Progress: float64(i * 10), Status: StatusDownloading}))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 5
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []float64{10, 20, 30, 40, 50}, got)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(4)
	b.Start()
	defer b.Stop()

	var mu sync.Mutex
	n := 0
	unsub := b.Subscribe(func(Event) {
		mu.Lock()
		n++
		mu.Unlock()
	})
	require.NoError(t, b.Publish(Event{RequestID: "a"}))
	unsub()
	unsub()
	require.NoError(t, b.Publish(Event{RequestID: "b"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, b.Subscribers())
}

func TestBusSlowSubscriberDrops(t *testing.T) {
	b := NewBus(1)
	b.Start()
	defer b.Stop()

	release := make(chan struct{})
	unsub := b.Subscribe(func(Event) { <-release })

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(Event{RequestID: "r"}))
	}
	close(release)
	unsub()
}

func TestBusKeepsTerminalEventsWhenFull(t *testing.T) {
	b := NewBus(1)
	b.Start()
	defer b.Stop()

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	var mu sync.Mutex
	var got []Status
	unsub := b.Subscribe(func(ev Event) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		mu.Lock()
		got = append(got, ev.Status)
		mu.Unlock()
	})
	defer unsub()

	require.NoError(t, b.Publish(Event{RequestID: "r", Status: StatusDownloading}))
	<-entered
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Publish(Event{RequestID: "r", Status: StatusDownloading}))
	}

	published := make(chan error, 1)
	go func() { published <- b.Publish(Event{RequestID: "r", Status: StatusCompleted}) }()
	select {
	case <-published:
		t.Fatal("terminal event published into a full queue without waiting")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-published:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("terminal event never delivered")
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1] == StatusCompleted
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusDownloading, StatusDownloading, StatusCompleted}, got)
}

func TestBusPublishAfterStop(t *testing.T) {
	b := NewBus(1)
	b.Start()
	b.Stop()
	assert.ErrorIs(t, b.Publish(Event{}), ErrStopped)

	unsub := b.Subscribe(func(Event) { t.Fatal("delivered after stop") })
	unsub()
}

func TestEventCancelled(t *testing.T) {
	assert.True(t, Event{Status: StatusCancelled}.Cancelled())
	assert.True(t, Event{Status: StatusFailed, ErrorCode: CodeCancelled}.Cancelled())
	assert.False(t, Event{Status: StatusFailed, ErrorCode: CodeNetRequest}.Cancelled())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusDownloading.Terminal())
}

func TestErrorFormatting(t *testing.T) {
	err := Wrap(CodeFileIO, errors.New("permission denied"), "read /tmp/a.png")
	assert.Equal(t, "E_FILE_IO: read /tmp/a.png: permission denied", err.Error())
	assert.Equal(t, "read /tmp/a.png: permission denied", err.Detail())
	assert.Equal(t, StageUnknown, err.Stage)

	wrapped := errors.Join(errors.New("outer"), Errorf(CodeNetTimeout, "after %ds", 30))
	assert.Equal(t, CodeNetTimeout, CodeOf(wrapped))
	assert.Equal(t, Code(""), CodeOf(errors.New("plain")))
}

func TestTitle(t *testing.T) {
	assert.Contains(t, Title(CodeNetRequest, StageDownload), "download failed")
	assert.Contains(t, Title(CodeClipboardBusy, StageClipboard), "retry later")
	assert.Equal(t, "Image processing failed", Title("E_SOMETHING_NEW", StageDecode))
	assert.Equal(t, "Image copy failed", Title("", ""))
}
