// Package uipeer adapts a socket connection from a UI process into a
// hub.Peer and turns its requests into drag controller calls.
package uipeer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.klb.dev/clipdrag/internal/drag"
	"go.klb.dev/clipdrag/internal/hub"
	"go.klb.dev/clipdrag/internal/message"
	"go.klb.dev/clipdrag/internal/wire"
)

const (
	pingInterval = 15 * time.Second
	pongDeadline = 10 * time.Second
	helloTimeout = 10 * time.Second
	sendBuffer   = 64
	queueDepth   = 16
)

// Controller is the part of drag.Controller a UI peer drives.
type Controller interface {
	StartDrag(ctx context.Context, ev drag.DragEvent, text string) error
	EndDrag(ctx context.Context) (drag.Result, error)
	ClearDownloadState()
}

// Shell receives the window owner's identity and position reports.
type Shell interface {
	Attach(peerID string)
	Report(peerID string, pos drag.Position)
}

var nextID atomic.Uint64

// Peer wraps a single UI connection as a hub.Peer.
type Peer struct {
	id     string
	conn   *wire.Conn
	h      *hub.Hub
	ctrl   Controller
	shell  Shell
	sendCh chan *message.Message
	cmdCh  chan *message.Message
	pongCh chan struct{}
	done   chan struct{}
	log    *slog.Logger

	mu       sync.RWMutex
	info     message.PeerInfo
	lastSeen atomic.Int64 // UnixNano
}

// New creates a Peer for conn.
func New(conn net.Conn, h *hub.Hub, ctrl Controller, shell Shell) *Peer {
	now := time.Now()
	id := fmt.Sprintf("ui-%d", nextID.Add(1))
	p := &Peer{
		id:     id,
		conn:   wire.New(conn),
		h:      h,
		ctrl:   ctrl,
		shell:  shell,
		sendCh: make(chan *message.Message, sendBuffer),
		cmdCh:  make(chan *message.Message, queueDepth),
		pongCh: make(chan struct{}, 1),
		done:   make(chan struct{}),
		log:    slog.With("component", "uipeer", "peer", id),
		info: message.PeerInfo{
			ID:          id,
			Addr:        addrString(conn.RemoteAddr()),
			Role:        message.RoleObserver,
			ConnectedAt: now,
			LastSeen:    now,
		},
	}
	p.lastSeen.Store(now.UnixNano())
	return p
}

func addrString(a net.Addr) string {
	if a == nil || a.String() == "" {
		return "local"
	}
	return a.String()
}

func (p *Peer) ID() string { return p.id }

func (p *Peer) Info() message.PeerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info := p.info
	info.LastSeen = time.Unix(0, p.lastSeen.Load())
	return info
}

// Send implements hub.Peer. Messages are dropped when the peer is slow or gone.
func (p *Peer) Send(msg *message.Message) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.sendCh <- msg:
	default:
		p.log.Warn("send channel full, dropping", "type", msg.Type)
	}
}

func (p *Peer) notifyAlive() {
	p.lastSeen.Store(time.Now().UnixNano())
	select {
	case p.pongCh <- struct{}{}:
	default:
	}
}

// Serve waits for HELLO, registers with the hub, and runs the read, write,
// command and ping loops until the connection or ctx ends.
func (p *Peer) Serve(ctx context.Context) {
	defer p.conn.Close()
	defer close(p.done)

	// Hello
	p.conn.SetReadDeadline(helloTimeout)
	hello, err := p.conn.ReadMsg()
	if err != nil {
		p.log.Warn("hello read failed", "err", err)
		return
	}
	p.conn.SetReadDeadline(0)
	if hello.Type != message.TypeHello {
		p.log.Warn("expected HELLO", "type", hello.Type)
		_ = p.conn.WriteMsg(hello.Errorf("expected HELLO, got %s", hello.Type))
		return
	}
	p.mu.Lock()
	p.info.Source = hello.Source
	if hello.Role == message.RoleShell {
		p.info.Role = message.RoleShell
	}
	role := p.info.Role
	p.mu.Unlock()
	p.log.Info("hello", "source", hello.Source, "role", role)

	// Register
	p.h.Register(p)
	defer p.h.Unregister(p)
	if role == message.RoleShell {
		p.shell.Attach(p.id)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = p.conn.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); p.writeLoop(ctx) }()
	go func() { defer wg.Done(); p.commandLoop(ctx) }()
	go func() { defer wg.Done(); p.pingLoop(ctx) }()
	defer wg.Wait()
	defer cancel()

	p.Send(hello.Reply(message.TypeResult))

	// Reader
	for {
		msg, err := p.conn.ReadMsg()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				p.log.Info("connection closed", "err", err)
			}
			return
		}
		p.notifyAlive()
		hub.LogMessage(p.log, "message received", msg)

		switch msg.Type {
		case message.TypeStartDrag, message.TypeEndDrag, message.TypeClear:
			select {
			case p.cmdCh <- msg:
			default:
				p.Send(msg.Errorf("too many pending commands"))
			}

		case message.TypePosition:
			if msg.Position != nil {
				p.shell.Report(p.id, *msg.Position)
			}

		case message.TypePong:
			// handled by notifyAlive

		case message.TypePing:
			p.Send(msg.Reply(message.TypePong))

		case message.TypeStatus:
			resp := msg.Reply(message.TypeStatusResponse)
			resp.Peers = p.h.Peers()
			if st := p.h.Latest(message.TypeState); st != nil {
				resp.State, resp.Phase = st.State, st.Phase
			}
			p.Send(resp)

		default:
			p.log.Warn("unexpected message type", "type", msg.Type)
			p.Send(msg.Errorf("unexpected message type %s", msg.Type))
		}
	}
}

func (p *Peer) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.sendCh:
			if err := p.conn.WriteMsg(msg); err != nil {
				p.log.Error("write failed", "err", err)
				_ = p.conn.Close()
				return
			}
		}
	}
}

// commandLoop runs drag commands one at a time so START_DRAG and END_DRAG
// reach the controller in the order the UI sent them, while the reader
// keeps handling position reports.
func (p *Peer) commandLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.cmdCh:
			p.Send(p.handle(ctx, msg))
		}
	}
}

func (p *Peer) handle(ctx context.Context, msg *message.Message) *message.Message {
	switch msg.Type {
	case message.TypeStartDrag:
		if err := p.ctrl.StartDrag(ctx, msg.DragEvent(), msg.Text); err != nil {
			return msg.Errorf("%v", err)
		}
		return msg.Reply(message.TypeResult)
	case message.TypeEndDrag:
		res, err := p.ctrl.EndDrag(ctx)
		if err != nil {
			return msg.Errorf("%v", err)
		}
		reply := msg.Reply(message.TypeResult)
		reply.Result = message.NewResult(res)
		return reply
	default:
		p.ctrl.ClearDownloadState()
		return msg.Reply(message.TypeResult)
	}
}

func (p *Peer) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		p.Send(&message.Message{Type: message.TypePing})
		select {
		case <-ctx.Done():
			return
		case <-p.pongCh:
		case <-time.After(pongDeadline):
			p.log.Warn("pong timeout, closing")
			_ = p.conn.Close()
			return
		}
	}
}
