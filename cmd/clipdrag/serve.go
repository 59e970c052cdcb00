package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipdrag/internal/daemon"
)

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the drag daemon",
		Long: `Starts the clipdrag daemon: the drag pipeline, the system clipboard
watcher and the local socket the UI shell and CLI connect to.

Drag and image settings are re-read when the config file changes.

Config file search order:
  /etc/clipdrag/clipdrag.toml
  $HOME/.config/clipdrag/clipdrag.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → CLIPDRAG_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runServe(v) },
	}

	f := cmd.Flags()
	f.String("source", defaultSource(), "name for this host in peer lists")
	f.Bool("require-shell", false, "fail drags while no UI shell is connected")
	addSocketFlag(cmd)
	addRemoteFlags(cmd, true)
	addPipelineFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runServe(v *viper.Viper) error {
	setupLogging(v)

	fc, err := fetchConfig(v)
	if err != nil {
		return err
	}
	cfg := daemon.Config{
		Source:       v.GetString("source"),
		RequireShell: v.GetBool("require-shell"),
		Addr:         v.GetString("addr"),
		Token:        v.GetString("token"),
		Drag:         dragOptions(v),
		Fetch:        fc,
	}

	slog.Info("clipdrag starting",
		"version", Version,
		"socket", v.GetString("socket"),
		"prefetch", cfg.Drag.Prefetch,
		"hide_on_drag", cfg.Drag.HideOnDrag,
	)

	d := daemon.New(cfg)

	if file := v.ConfigFileUsed(); file != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				return
			}
			fc, err := fetchConfig(v)
			if err != nil {
				slog.Warn("config reload rejected", "file", e.Name, "err", err)
				return
			}
			d.Apply(dragOptions(v), fc)
			slog.Info("config reloaded", "file", e.Name)
		})
		v.WatchConfig()
		slog.Debug("watching config", "file", file)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx, v.GetString("socket")); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
