package rpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"go.klb.dev/clipdrag/internal/drag"
	"go.klb.dev/clipdrag/internal/hub"
	"go.klb.dev/clipdrag/internal/message"
	"go.klb.dev/clipdrag/internal/progress"
)

type fakeController struct {
	mu       sync.Mutex
	calls    []string
	text     string
	event    drag.DragEvent
	startErr error
	endErr   error
	result   drag.Result
	state    drag.DownloadState
	phase    drag.Phase
}

func (c *fakeController) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *fakeController) StartDrag(_ context.Context, ev drag.DragEvent, text string) error {
	c.record("start")
	c.mu.Lock()
	c.text, c.event = text, ev
	c.mu.Unlock()
	return c.startErr
}

func (c *fakeController) EndDrag(context.Context) (drag.Result, error) {
	c.record("end")
	return c.result, c.endErr
}

func (c *fakeController) ClearDownloadState() {
	c.record("clear")
	c.mu.Lock()
	c.state = drag.DownloadState{}
	c.mu.Unlock()
}

func (c *fakeController) State() drag.DownloadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeController) Phase() drag.Phase { return c.phase }

func (c *fakeController) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func newTestClient(t *testing.T, ctrl Controller, h *hub.Hub, opts ...grpc.DialOption) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, NewService(ctrl, h))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	opts = append(opts,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	cc, err := grpc.NewClient("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return NewClient(cc)
}

func TestStartAndEndDrag(t *testing.T) {
	ctrl := &fakeController{result: drag.Result{
		Kind:     drag.KindHTTPImage,
		Via:      "prefetch",
		PasteErr: errors.New("xdotool missing"),
	}}
	c := newTestClient(t, ctrl, hub.New())
	ctx := context.Background()

	resp, err := c.StartDrag(ctx, &StartDragRequest{
		Text:   "https://example.com/cat.png",
		ItemID: "42",
		Cursor: drag.Position{X: 10, Y: 20},
	})
	require.NoError(t, err)
	assert.Equal(t, drag.KindHTTPImage, resp.Kind)
	assert.Equal(t, drag.DragEvent{ItemID: "42", Cursor: drag.Position{X: 10, Y: 20}}, ctrl.event)

	end, err := c.EndDrag(ctx)
	require.NoError(t, err)
	require.NotNil(t, end.Result)
	assert.Equal(t, "prefetch", end.Result.Via)
	assert.Equal(t, drag.KindHTTPImage, end.Result.Kind)
	assert.Equal(t, "xdotool missing", end.Result.PasteError)
	assert.Equal(t, []string{"start", "end"}, ctrl.recorded())
}

func TestStartDragRequiresText(t *testing.T) {
	c := newTestClient(t, &fakeController{}, hub.New())
	_, err := c.StartDrag(context.Background(), &StartDragRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{drag.ErrNoSession, codes.FailedPrecondition},
		{drag.ErrClosed, codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			c := newTestClient(t, &fakeController{endErr: tt.err}, hub.New())
			_, err := c.EndDrag(context.Background())
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestDrag(t *testing.T) {
	ctrl := &fakeController{result: drag.Result{Kind: drag.KindText, Via: "router"}}
	c := newTestClient(t, ctrl, hub.New())

	resp, err := c.Drag(context.Background(), &DragRequest{
		StartDragRequest: StartDragRequest{Text: "hello"},
		HoldMS:           10,
	})
	require.NoError(t, err)
	assert.Equal(t, "router", resp.Result.Via)
	assert.Equal(t, "hello", ctrl.text)
	assert.Equal(t, []string{"start", "end"}, ctrl.recorded())

	_, err = c.Drag(context.Background(), &DragRequest{
		StartDragRequest: StartDragRequest{Text: "hello"},
		HoldMS:           -1,
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestClearAndState(t *testing.T) {
	ctrl := &fakeController{
		state: drag.DownloadState{Progress: 40, Error: "Image download failed"},
		phase: drag.PhaseDragging,
	}
	c := newTestClient(t, ctrl, hub.New())
	ctx := context.Background()

	st, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Image download failed", st.State.Error)
	assert.Equal(t, "dragging", st.Phase)

	st, err = c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, drag.DownloadState{}, st.State)
	assert.Equal(t, []string{"clear"}, ctrl.recorded())
}

func TestWatch(t *testing.T) {
	h := hub.New()
	ctrl := &fakeController{state: drag.DownloadState{IsDownloading: true}}
	c := newTestClient(t, ctrl, h, grpc.WithPerRPCCredentials(callCreds{source: "status-panel"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *WatchResponse, 8)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Watch(ctx, &WatchRequest{}, func(r *WatchResponse) error {
			got <- r
			return nil
		})
	}()

	first := <-got
	require.NotNil(t, first.State)
	assert.True(t, first.State.IsDownloading)
	peers := h.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "status-panel", peers[0].Source)
	assert.Equal(t, message.RoleObserver, peers[0].Role)

	h.Broadcast(message.ProgressMessage(progress.Event{RequestID: "r1", Progress: 50, Status: progress.StatusDownloading}), "")
	h.Broadcast(&message.Message{Type: message.TypeClipboard, Origin: message.OriginOwn}, "")
	h.Broadcast(message.StateMessage(drag.DownloadState{Progress: 100}, drag.PhaseIdle), "")

	ev := <-got
	require.NotNil(t, ev.Event)
	assert.Equal(t, "r1", ev.Event.RequestID)

	st := <-got
	require.NotNil(t, st.State)
	assert.Equal(t, 100.0, st.State.Progress)
	assert.Equal(t, "idle", st.Phase)

	cancel()
	<-errCh
	assert.Eventually(t, func() bool { return len(h.Peers()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestWatchWithoutProgress(t *testing.T) {
	h := hub.New()
	c := newTestClient(t, &fakeController{}, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *WatchResponse, 8)
	go func() {
		_ = c.Watch(ctx, &WatchRequest{NoProgress: true}, func(r *WatchResponse) error {
			got <- r
			return nil
		})
	}()
	<-got

	h.Broadcast(message.ProgressMessage(progress.Event{RequestID: "r1"}), "")
	h.Broadcast(message.StateMessage(drag.DownloadState{Error: "x"}, drag.PhaseIdle), "")

	st := <-got
	assert.Nil(t, st.Event)
	require.NotNil(t, st.State)
	assert.Equal(t, "x", st.State.Error)
}
