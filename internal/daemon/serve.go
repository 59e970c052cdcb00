package daemon

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/soheilhy/cmux"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"go.klb.dev/clipdrag/internal/gateway"
	"go.klb.dev/clipdrag/internal/ipc"
	"go.klb.dev/clipdrag/internal/rpc"
	"go.klb.dev/clipdrag/internal/tlsconf"
	"go.klb.dev/clipdrag/internal/uipeer"
)

// sniffTimeout bounds how long a new connection may stay silent before
// cmux gives up classifying it.
const sniffTimeout = 10 * time.Second

// Run listens on the socket at path (and on cfg.Addr if set) and serves
// until ctx is done.
func (d *Daemon) Run(ctx context.Context, path string) error {
	ln, err := ipc.Listen(path)
	if err != nil {
		return err
	}
	d.log.Info("IPC socket listening", "path", path)

	var tcpLn net.Listener
	if d.cfg.Addr != "" {
		tcpLn, err = net.Listen("tcp", d.cfg.Addr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("listen %s: %w", d.cfg.Addr, err)
		}
		d.log.Info("TCP listening", "addr", tcpLn.Addr(), "auth", d.cfg.Token != "")
	}
	return d.Serve(ctx, ln, tcpLn)
}

// Serve splits ln into gRPC, HTTP and UI shell connections and serves them
// until ctx is done or one of the servers fails. tcpLn may be nil; when set
// it is wrapped in TLS and split into gRPC and HTTP. Serve closes both
// listeners and shuts the pipeline down before returning.
func (d *Daemon) Serve(ctx context.Context, ln, tcpLn net.Listener) error {
	mux, err := gateway.NewMux(d.svc, d.fetch, "")
	if err != nil {
		return fmt.Errorf("http api: %w", err)
	}

	m := cmux.New(ln)
	m.SetReadTimeout(sniffTimeout)
	grpcL := m.Match(cmux.HTTP2())
	httpL := m.Match(cmux.HTTP1Fast())
	uiL := m.Match(cmux.Any())

	srv := grpc.NewServer()
	rpc.Register(srv, d.svc)

	d.bus.Start()
	d.log.Info("clipdrag daemon started",
		"source", d.cfg.Source,
		"clipboard", d.backend.Name(),
		"require_shell", d.cfg.RequireShell,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.local.Run(gctx)
		return nil
	})
	g.Go(func() error { return ignoreClosed(gctx, srv.Serve(grpcL)) })
	g.Go(func() error { return ignoreClosed(gctx, gateway.Serve(gctx, httpL, mux)) })
	g.Go(func() error { return d.acceptUI(gctx, uiL) })
	g.Go(func() error { return ignoreClosed(gctx, m.Serve()) })
	g.Go(func() error {
		<-gctx.Done()
		srv.Stop()
		_ = ln.Close()
		return nil
	})
	if tcpLn != nil {
		if err := d.serveRemote(gctx, g, tcpLn); err != nil {
			_ = tcpLn.Close()
			g.Go(func() error { return err })
		}
	}

	err = g.Wait()
	d.shutdown(context.WithoutCancel(ctx))
	return err
}

// serveRemote adds the TLS listener's servers to g.
func (d *Daemon) serveRemote(ctx context.Context, g *errgroup.Group, ln net.Listener) error {
	id, err := tlsconf.Derive(cmp.Or(d.cfg.Token, tlsconf.DefaultToken))
	if err != nil {
		return err
	}
	mux, err := gateway.NewMux(d.svc, d.fetch, d.cfg.Token)
	if err != nil {
		return fmt.Errorf("http api: %w", err)
	}

	m := cmux.New(tls.NewListener(ln, id.ServerConfig()))
	m.SetReadTimeout(sniffTimeout)
	grpcL := m.Match(cmux.HTTP2())
	httpL := m.Match(cmux.Any())

	srv := grpc.NewServer(rpc.TokenAuth(d.cfg.Token)...)
	rpc.Register(srv, d.svc)

	g.Go(func() error { return ignoreClosed(ctx, srv.Serve(grpcL)) })
	g.Go(func() error { return ignoreClosed(ctx, gateway.Serve(ctx, httpL, mux)) })
	g.Go(func() error { return ignoreClosed(ctx, m.Serve()) })
	g.Go(func() error {
		<-ctx.Done()
		srv.Stop()
		_ = ln.Close()
		return nil
	})
	return nil
}

func (d *Daemon) acceptUI(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return ignoreClosed(ctx, err)
		}
		p := uipeer.New(conn, d.hub, d.ctrl, d.relay)
		wg.Add(1)
		go func() {
			defer wg.Done()
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			defer stop()
			p.Serve(ctx)
		}()
	}
}

// ignoreClosed drops the errors servers return when their listener is
// closed during shutdown.
func ignoreClosed(ctx context.Context, err error) error {
	if err == nil || ctx.Err() != nil {
		return nil
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, cmux.ErrListenerClosed) || errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}
