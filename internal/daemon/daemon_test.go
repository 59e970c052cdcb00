package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipdrag/internal/clip"
	"go.klb.dev/clipdrag/internal/drag"
	"go.klb.dev/clipdrag/internal/imagefetch"
	"go.klb.dev/clipdrag/internal/message"
	"go.klb.dev/clipdrag/internal/rpc"
	"go.klb.dev/clipdrag/internal/tlsconf"
	"go.klb.dev/clipdrag/internal/wire"
)

type fakePaster struct{ n atomic.Int32 }

func (p *fakePaster) SimulatePaste(context.Context) error {
	p.n.Add(1)
	return nil
}

type harness struct {
	d     *Daemon
	mem   *clip.Memory
	paste *fakePaster
	addr  string
	tcp   string // TLS listener, when started with a token
}

func start(t *testing.T) *harness {
	t.Helper()
	return startRemote(t, "", false)
}

func startRemote(t *testing.T, token string, remote bool) *harness {
	t.Helper()
	h := &harness{mem: clip.NewMemory(), paste: &fakePaster{}}
	h.d = New(Config{Source: "test", Token: token, Drag: drag.DefaultOptions()}, WithBackend(h.mem), WithPaster(h.paste))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	h.addr = ln.Addr().String()

	var tcpLn net.Listener
	if remote {
		tcpLn, err = net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		h.tcp = tcpLn.Addr().String()
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.d.Serve(ctx, ln, tcpLn) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})
	return h
}

func (h *harness) client(t *testing.T) *rpc.Client {
	t.Helper()
	cc, err := grpc.NewClient("passthrough:///"+h.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return rpc.NewClient(cc)
}

func (h *harness) shell(t *testing.T, role message.Role) *wire.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	wc := wire.New(conn)
	t.Cleanup(func() { _ = wc.Close() })

	require.NoError(t, wc.WriteMsg(&message.Message{Type: message.TypeHello, Seq: 1, Source: "panel", Role: role}))
	reply := readUntil(t, wc, message.TypeResult)
	assert.Equal(t, uint64(1), reply.Seq)
	return wc
}

// readUntil returns the next message of type typ, or the next message of
// any type when typ is empty.
func readUntil(t *testing.T, wc *wire.Conn, typ message.Type) *message.Message {
	t.Helper()
	wc.SetReadDeadline(5 * time.Second)
	defer wc.SetReadDeadline(0)
	for {
		msg, err := wc.ReadMsg()
		require.NoError(t, err, "waiting for %s", typ)
		if typ == "" || msg.Type == typ {
			return msg
		}
	}
}

func (h *harness) clipboardText(t *testing.T) string {
	t.Helper()
	items, err := h.mem.Read()
	require.NoError(t, err)
	for _, it := range items {
		if it.MIME == clip.MIMEText {
			return string(it.Data)
		}
	}
	return ""
}

func TestDragOverGRPC(t *testing.T) {
	h := start(t)
	c := h.client(t)

	resp, err := c.Drag(context.Background(), &rpc.DragRequest{StartDragRequest: rpc.StartDragRequest{Text: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, drag.KindText, resp.Result.Kind)
	assert.Equal(t, "router", resp.Result.Via)
	assert.Equal(t, "hello", h.clipboardText(t))
	assert.Equal(t, int32(1), h.paste.n.Load())

	_, err = c.EndDrag(context.Background())
	assert.Error(t, err, "no session left")
}

func TestShellSession(t *testing.T) {
	h := start(t)
	wc := h.shell(t, message.RoleShell)

	require.NoError(t, wc.WriteMsg(&message.Message{Type: message.TypePosition, Position: &drag.Position{X: 5, Y: 6}}))
	require.NoError(t, wc.WriteMsg(&message.Message{Type: message.TypeStatus, Seq: 2}))
	status := readUntil(t, wc, message.TypeStatusResponse)
	roles := map[string]message.Role{}
	for _, p := range status.Peers {
		roles[p.Source] = p.Role
	}
	assert.Equal(t, message.RoleShell, roles["panel"])
	assert.Equal(t, message.RoleClipboard, roles["test"])

	require.NoError(t, wc.WriteMsg(&message.Message{Type: message.TypeStartDrag, Seq: 3, Text: "from the shell"}))
	win := readUntil(t, wc, message.TypeWindow)
	assert.Equal(t, message.ActionOffscreen, win.Action)
	assert.Equal(t, uint64(3), readUntil(t, wc, message.TypeResult).Seq)

	require.NoError(t, wc.WriteMsg(&message.Message{Type: message.TypeEndDrag, Seq: 4}))
	var (
		res     *message.Message
		cb      *message.Message
		actions []string
	)
	for res == nil || cb == nil {
		msg := readUntil(t, wc, "")
		switch msg.Type {
		case message.TypeResult:
			res = msg
		case message.TypeClipboard:
			cb = msg
		case message.TypeWindow:
			actions = append(actions, msg.Action)
			if msg.Action == message.ActionMove {
				assert.Equal(t, &drag.Position{X: 5, Y: 6}, msg.Position)
			}
		}
	}
	assert.Equal(t, uint64(4), res.Seq)
	require.NotNil(t, res.Result)
	assert.Equal(t, "router", res.Result.Via)
	assert.Equal(t, message.OriginOwn, cb.Origin)
	assert.Equal(t, []string{message.ActionMove, message.ActionShow}, actions)
	assert.Equal(t, "from the shell", h.clipboardText(t))
}

func TestExternalCopyIsReported(t *testing.T) {
	h := start(t)
	wc := h.shell(t, message.RoleObserver)

	h.mem.Set(clip.Item{MIME: clip.MIMEText, Data: []byte("copied elsewhere")})
	cb := readUntil(t, wc, message.TypeClipboard)
	assert.Equal(t, message.OriginExternal, cb.Origin)
	assert.Equal(t, []string{clip.MIMEText}, cb.MIMEs)
}

func TestFailedCopyBroadcastsState(t *testing.T) {
	h := start(t)
	wc := h.shell(t, message.RoleObserver)
	h.mem.FailWrites(errors.New("clipboard busy"))

	resp, err := h.client(t).Drag(context.Background(), &rpc.DragRequest{StartDragRequest: rpc.StartDragRequest{Text: "hello"}})
	require.NoError(t, err)
	assert.True(t, resp.Result.FellBack)
	assert.NotEmpty(t, resp.Result.CopyError)

	st := readUntil(t, wc, message.TypeState)
	require.NotNil(t, st.State)
	assert.NotEmpty(t, st.State.Error)
	assert.False(t, st.State.IsDownloading)
}

func TestHTTPOnSocket(t *testing.T) {
	h := start(t)

	resp, err := http.Get("http://" + h.addr + "/v1/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out rpc.StateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "idle", out.Phase)
}

func TestRemoteTLS(t *testing.T) {
	h := startRemote(t, "s3cret", true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cc, err := rpc.DialTCP(h.tcp, "s3cret", "remote-test")
	require.NoError(t, err)
	defer cc.Close()
	st, err := rpc.NewClient(cc).State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", st.Phase)

	bad, err := rpc.DialTCP(h.tcp, "guess", "remote-test")
	require.NoError(t, err)
	defer bad.Close()
	_, err = rpc.NewClient(bad).State(ctx)
	assert.Equal(t, codes.Unavailable, status.Code(err), "server key does not match")

	id, err := tlsconf.Derive("s3cret")
	require.NoError(t, err)
	hc := &http.Client{Transport: &http.Transport{TLSClientConfig: id.ClientConfig()}}
	defer hc.CloseIdleConnections()

	get := func(token string) int {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+h.tcp+"/v1/state", http.NoBody)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := hc.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusOK, get("s3cret"))
	assert.Equal(t, http.StatusUnauthorized, get(""))
}

func TestApply(t *testing.T) {
	d := New(Config{}, WithBackend(clip.NewMemory()), WithPaster(&fakePaster{}))
	defer d.shutdown(context.Background())

	o := drag.DefaultOptions()
	o.Prefetch = false
	d.Apply(o, imagefetch.DefaultConfig())
	assert.False(t, d.Controller().Options().Prefetch)
}
