// Package daemon assembles the drag pipeline and serves it on the local
// socket: UI shells speak newline-delimited JSON, the CLI speaks gRPC and
// scripts speak HTTP, all on one listener split by cmux. An optional TCP
// listener carries gRPC and HTTP over TLS for remote callers.
package daemon

import (
	"context"
	"log/slog"

	"go.klb.dev/clipdrag/internal/clip"
	"go.klb.dev/clipdrag/internal/drag"
	"go.klb.dev/clipdrag/internal/hub"
	"go.klb.dev/clipdrag/internal/imagefetch"
	"go.klb.dev/clipdrag/internal/localpeer"
	"go.klb.dev/clipdrag/internal/message"
	"go.klb.dev/clipdrag/internal/paste"
	"go.klb.dev/clipdrag/internal/progress"
	"go.klb.dev/clipdrag/internal/rpc"
	"go.klb.dev/clipdrag/internal/shell"
)

// Config is the daemon configuration.
type Config struct {
	// Source names this daemon in peer lists.
	Source string
	// RequireShell makes drags fail when no UI shell is attached. Without
	// it, window and HUD commands are skipped while no shell is connected.
	RequireShell bool
	// Addr is an optional TCP address serving gRPC and HTTP over TLS.
	Addr string
	// Token keys the TLS identity of Addr and, when set, is required as a
	// bearer token there. The socket never asks for it.
	Token string

	Drag  drag.Options
	Fetch imagefetch.Config
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithBackend replaces the system clipboard, for tests and headless runs.
func WithBackend(b clip.Backend) Option { return func(d *Daemon) { d.backend = b } }

// WithPaster replaces the keystroke simulator.
func WithPaster(p drag.Paster) Option { return func(d *Daemon) { d.paster = p } }

// Daemon owns every long-lived component of a clipdrag process.
type Daemon struct {
	cfg Config
	log *slog.Logger

	backend clip.Backend
	paster  drag.Paster

	bus   *progress.Bus
	hub   *hub.Hub
	clip  *clip.Clipboard
	fetch *imagefetch.Service
	relay *shell.Relay
	ctrl  *drag.Controller
	svc   *rpc.Service
	local *localpeer.Peer
	unsub func()
}

// New wires the components. Nothing runs until Serve or Run.
func New(cfg Config, opts ...Option) *Daemon {
	d := &Daemon{cfg: cfg, log: slog.With("component", "daemon")}
	for _, o := range opts {
		o(d)
	}
	if d.backend == nil {
		d.backend = clip.New()
	}
	if d.paster == nil {
		d.paster = paste.New()
	}

	d.bus = progress.NewBus(0)
	d.hub = hub.New()
	d.clip = clip.NewClipboard(d.backend)
	d.fetch = imagefetch.New(cfg.Fetch, d.clip, d.bus)
	d.relay = shell.New(d.hub, cfg.RequireShell)
	d.hub.AddPeerChangeListener(d.relay)

	d.ctrl = drag.New(drag.Deps{
		Downloader: d.fetch,
		Clipboard:  copier{clip: d.clip, fetch: d.fetch},
		Paster:     d.paster,
		Window:     d.relay,
		HUD:        d.relay.HUD(),
		Bus:        d.bus,
	}, cfg.Drag)
	d.svc = rpc.NewService(d.ctrl, d.hub)
	d.local = localpeer.New(d.hub, d.clip, cfg.Source)

	d.ctrl.Tracker().OnChange(func(st drag.DownloadState) {
		d.hub.Broadcast(message.StateMessage(st, d.ctrl.Phase()), "")
	})
	d.unsub = d.bus.Subscribe(func(ev progress.Event) {
		d.hub.Broadcast(message.ProgressMessage(ev), "")
	})
	return d
}

// Controller returns the drag controller.
func (d *Daemon) Controller() *drag.Controller { return d.ctrl }

// Hub returns the peer hub.
func (d *Daemon) Hub() *hub.Hub { return d.hub }

// Apply hot-swaps the drag options and fetch limits.
func (d *Daemon) Apply(o drag.Options, fc imagefetch.Config) {
	d.ctrl.SetOptions(o)
	d.fetch.SetConfig(fc)
}

func (d *Daemon) shutdown(ctx context.Context) {
	d.ctrl.Close(ctx)
	d.unsub()
	d.bus.Stop()
	d.clip.Close()
	d.log.Info("daemon stopped")
}

// copier is the drag pipeline's view of the clipboard: plain writes go to
// the clipboard, anything that needs decoding goes through the fetcher.
type copier struct {
	clip  *clip.Clipboard
	fetch *imagefetch.Service
}

func (c copier) WriteText(ctx context.Context, text string) error {
	return c.clip.WriteText(ctx, text)
}

func (c copier) WriteFileList(ctx context.Context, paths []string) error {
	return c.clip.WriteFileList(ctx, paths)
}

func (c copier) WriteBase64Image(ctx context.Context, data string) error {
	return c.fetch.WriteBase64Image(ctx, data)
}

func (c copier) WriteLocalImage(ctx context.Context, path string) error {
	return c.fetch.WriteLocalImage(ctx, path)
}

func (c copier) WriteSVGFile(ctx context.Context, path string) error {
	return c.fetch.WriteSVGFile(ctx, path)
}

var _ drag.Clipboard = copier{}
