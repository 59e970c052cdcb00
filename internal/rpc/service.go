package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipdrag/internal/drag"
	"go.klb.dev/clipdrag/internal/hub"
	"go.klb.dev/clipdrag/internal/message"
	"go.klb.dev/clipdrag/internal/shell"
)

// maxHold caps DragRequest.HoldMS.
const maxHold = time.Minute

// Controller is the part of drag.Controller the service exposes.
type Controller interface {
	StartDrag(ctx context.Context, ev drag.DragEvent, text string) error
	EndDrag(ctx context.Context) (drag.Result, error)
	ClearDownloadState()
	State() drag.DownloadState
	Phase() drag.Phase
}

// Service implements DragServer on top of a drag controller. Watch streams
// are hub peers fed by the daemon's STATE and PROGRESS broadcasts.
type Service struct {
	ctrl Controller
	h    *hub.Hub
	log  *slog.Logger
}

// NewService returns a Service for ctrl, watching broadcasts on h.
func NewService(ctrl Controller, h *hub.Hub) *Service {
	return &Service{ctrl: ctrl, h: h, log: slog.With("component", "rpc")}
}

func (s *Service) StartDrag(ctx context.Context, req *StartDragRequest) (*StartDragResponse, error) {
	if req.Text == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	if err := s.ctrl.StartDrag(ctx, drag.DragEvent{ItemID: req.ItemID, Cursor: req.Cursor}, req.Text); err != nil {
		return nil, toStatus(err)
	}
	return &StartDragResponse{Kind: drag.Classify(req.Text)}, nil
}

func (s *Service) EndDrag(ctx context.Context, _ *EndDragRequest) (*EndDragResponse, error) {
	res, err := s.ctrl.EndDrag(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &EndDragResponse{Result: message.NewResult(res)}, nil
}

func (s *Service) Drag(ctx context.Context, req *DragRequest) (*EndDragResponse, error) {
	hold := time.Duration(req.HoldMS) * time.Millisecond
	if hold < 0 || hold > maxHold {
		return nil, status.Errorf(codes.InvalidArgument, "hold_ms must be between 0 and %d", maxHold.Milliseconds())
	}
	if _, err := s.StartDrag(ctx, &req.StartDragRequest); err != nil {
		return nil, err
	}
	if hold > 0 {
		t := time.NewTimer(hold)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			// Still drop, so the window comes back.
			_, _ = s.ctrl.EndDrag(context.WithoutCancel(ctx))
			return nil, toStatus(ctx.Err())
		}
	}
	return s.EndDrag(ctx, &EndDragRequest{})
}

func (s *Service) Clear(_ context.Context, _ *ClearRequest) (*StateResponse, error) {
	s.ctrl.ClearDownloadState()
	return s.state(), nil
}

func (s *Service) State(_ context.Context, _ *StateRequest) (*StateResponse, error) {
	return s.state(), nil
}

func (s *Service) state() *StateResponse {
	return &StateResponse{
		State: s.ctrl.State(),
		Phase: s.ctrl.Phase().String(),
		Peers: s.h.Peers(),
	}
}

var watchSeq atomic.Uint64

// Watch streams the current state, then every state change and (unless
// suppressed) every progress event until the client goes away.
func (s *Service) Watch(req *WatchRequest, stream WatchStream) error {
	ctx := stream.Context()
	wp := &watchPeer{
		id:          fmt.Sprintf("rpc-watch-%d", watchSeq.Add(1)),
		source:      sourceFromCtx(ctx),
		addr:        addrFromCtx(ctx),
		noProgress:  req.NoProgress,
		ch:          make(chan *message.Message, 64),
		connectedAt: time.Now(),
	}
	s.h.Register(wp)
	defer s.h.Unregister(wp)
	s.log.Info("watch started", "peer", wp.id, "source", wp.source, "progress", !req.NoProgress)

	st := s.ctrl.State()
	if err := stream.Send(&WatchResponse{State: &st, Phase: s.ctrl.Phase().String()}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-wp.ch:
			resp := &WatchResponse{State: m.State, Phase: m.Phase, Event: m.Event}
			if err := stream.Send(resp); err != nil {
				return err
			}
		}
	}
}

// toStatus maps controller errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, drag.ErrNoSession):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, drag.ErrClosed), errors.Is(err, shell.ErrNoShell):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// SourceHeader is the metadata key naming the calling tool.
const SourceHeader = "x-clipdrag-source"

func sourceFromCtx(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(SourceHeader); len(vals) > 0 {
			return vals[0]
		}
	}
	return addrFromCtx(ctx)
}

func addrFromCtx(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if a := p.Addr.String(); a != "" {
			return a
		}
	}
	return "unknown"
}

// ── watchPeer ──────────────────────────────────────────────────────────────

// watchPeer is a transient hub.Peer backed by a Watch stream.
type watchPeer struct {
	id          string
	source      string
	addr        string
	noProgress  bool
	ch          chan *message.Message
	connectedAt time.Time
	lastSeen    atomic.Int64
}

func (p *watchPeer) ID() string { return p.id }

func (p *watchPeer) Info() message.PeerInfo {
	info := message.PeerInfo{
		ID:          p.id,
		Source:      p.source,
		Addr:        p.addr,
		Role:        message.RoleObserver,
		ConnectedAt: p.connectedAt,
	}
	if ls := p.lastSeen.Load(); ls > 0 {
		info.LastSeen = time.Unix(0, ls)
	}
	return info
}

func (p *watchPeer) Send(m *message.Message) {
	switch m.Type {
	case message.TypeState:
	case message.TypeProgress:
		if p.noProgress {
			return
		}
	default:
		return
	}
	p.lastSeen.Store(time.Now().UnixNano())
	select {
	case p.ch <- m:
	default:
		slog.Warn("watch peer channel full, dropping", "peer", p.id)
	}
}
