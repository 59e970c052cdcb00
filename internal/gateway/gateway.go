// Package gateway serves a small HTTP/JSON API next to the gRPC control
// service, for scripts and status panels that cannot speak gRPC.
package gateway

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipdrag/internal/rpc"
)

const maxBody = 1 << 20

// Backend is the part of the control service the HTTP API exposes.
type Backend interface {
	State(context.Context, *rpc.StateRequest) (*rpc.StateResponse, error)
	Clear(context.Context, *rpc.ClearRequest) (*rpc.StateResponse, error)
	Drag(context.Context, *rpc.DragRequest) (*rpc.EndDragResponse, error)
}

// Canceller cancels a running image download by request ID.
type Canceller interface {
	CancelDownload(ctx context.Context, requestID string) (bool, error)
}

type gateway struct {
	b      Backend
	cancel Canceller
	token  string
	m      gwruntime.JSONBuiltin
	log    *slog.Logger
}

// NewMux returns the HTTP API:
//
//	GET    /v1/state
//	POST   /v1/clear
//	POST   /v1/drag                        body: rpc.DragRequest
//	DELETE /v1/downloads/{request_id}
//
// When token is non-empty every request must carry it as a bearer token.
func NewMux(b Backend, c Canceller, token string) (*gwruntime.ServeMux, error) {
	g := &gateway{b: b, cancel: c, token: token, log: slog.With("component", "gateway")}
	mux := gwruntime.NewServeMux()
	routes := []struct {
		method, path string
		h            gwruntime.HandlerFunc
	}{
		{http.MethodGet, "/v1/state", g.state},
		{http.MethodPost, "/v1/clear", g.clear},
		{http.MethodPost, "/v1/drag", g.drag},
		{http.MethodDelete, "/v1/downloads/{request_id}", g.cancelDownload},
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.path, g.auth(r.h)); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

// Serve runs an HTTP/1.1 server for mux on ln until ctx is done.
func Serve(ctx context.Context, ln net.Listener, mux http.Handler) error {
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *gateway) auth(next gwruntime.HandlerFunc) gwruntime.HandlerFunc {
	if g.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(tok), []byte(g.token)) != 1 {
			g.fail(w, status.Error(codes.Unauthenticated, "invalid token"))
			return
		}
		next(w, r, params)
	}
}

func (g *gateway) state(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := g.b.State(r.Context(), &rpc.StateRequest{})
	g.reply(w, resp, err)
}

func (g *gateway) clear(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	resp, err := g.b.Clear(r.Context(), &rpc.ClearRequest{})
	g.reply(w, resp, err)
}

func (g *gateway) drag(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req rpc.DragRequest
	if err := g.m.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		g.fail(w, status.Errorf(codes.InvalidArgument, "decode request: %v", err))
		return
	}
	resp, err := g.b.Drag(r.Context(), &req)
	g.reply(w, resp, err)
}

func (g *gateway) cancelDownload(w http.ResponseWriter, r *http.Request, params map[string]string) {
	id := params["request_id"]
	ok, err := g.cancel.CancelDownload(r.Context(), id)
	if err != nil {
		g.fail(w, status.Error(codes.Internal, err.Error()))
		return
	}
	if !ok {
		g.fail(w, status.Errorf(codes.NotFound, "no running download %q", id))
		return
	}
	g.log.Info("download cancelled over http", "request_id", id)
	g.reply(w, map[string]string{"request_id": id}, nil)
}

func (g *gateway) reply(w http.ResponseWriter, v any, err error) {
	if err != nil {
		g.fail(w, err)
		return
	}
	g.write(w, http.StatusOK, v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *gateway) fail(w http.ResponseWriter, err error) {
	st, ok := status.FromError(err)
	if !ok {
		st = status.New(codes.Internal, err.Error())
	}
	g.write(w, gwruntime.HTTPStatusFromCode(st.Code()), errorBody{Code: st.Code().String(), Message: st.Message()})
}

func (g *gateway) write(w http.ResponseWriter, code int, v any) {
	b, err := g.m.Marshal(v)
	if err != nil {
		g.log.Error("encode response", "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", g.m.ContentType(v))
	w.WriteHeader(code)
	_, _ = w.Write(append(b, '\n'))
}
