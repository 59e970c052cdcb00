package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipdrag/internal/drag"
	"go.klb.dev/clipdrag/internal/imagefetch"
	"go.klb.dev/clipdrag/internal/ipc"
	"go.klb.dev/clipdrag/internal/logging"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and CLIPDRAG_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → CLIPDRAG_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("clipdrag")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/clipdrag/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(fmt.Sprintf("%s/.config/clipdrag", home))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("CLIPDRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for service, debug for interactive)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// addSocketFlag adds the --socket flag to a command.
func addSocketFlag(cmd *cobra.Command) {
	cmd.Flags().String("socket", ipc.SocketPath(), "daemon socket path")
}

// addRemoteFlags adds --addr and --token. On "serve" they configure the TLS
// listener; on client commands they select it instead of the socket.
func addRemoteFlags(cmd *cobra.Command, listen bool) {
	if listen {
		cmd.Flags().String("addr", "", "also serve gRPC and HTTP over TLS on this TCP address (e.g. 0.0.0.0:8753)")
		cmd.Flags().String("token", "", "token keying the TLS listener and required from its callers")
		return
	}
	cmd.Flags().String("addr", "", "dial the daemon's TLS listener at this address instead of the socket")
	cmd.Flags().String("token", "", "token of the daemon's TLS listener")
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	interactive := v.GetBool("no-background") || logging.IsTTY(os.Stderr)
	resolveLogging(interactive, v.GetString("log-format"), v.GetString("log-level"))
}

// addPipelineFlags adds the drag and image fetch tunables. They are the
// settings "clipdrag serve" re-reads when the config file changes.
func addPipelineFlags(cmd *cobra.Command) {
	d := drag.DefaultOptions()
	fc := imagefetch.DefaultConfig()
	f := cmd.Flags()

	f.Bool("prefetch", d.Prefetch, "start remote image downloads when the drag starts")
	f.Bool("hide-on-drag", d.HideOnDrag, "move the window off-screen while dragging")
	f.Bool("hide-after-drag", d.HideAfterDrag, "hide the window after the drop instead of bringing it back")
	f.Bool("hud", d.HUD, "show the floating download indicator")
	f.Bool("adopt-foreign", d.AdoptForeign, "track downloads started outside a drag while idle")
	f.Duration("hud-show-delay", d.ShowDelay, "delay before the download indicator appears")
	f.Duration("hud-min-visible", d.MinVisible, "minimum time the download indicator stays up")
	f.Duration("hud-follow-interval", d.FollowInterval, "how often the indicator follows the cursor")
	f.Duration("restore-delay", d.RestoreDelay, "delay before a hidden window is moved back")
	f.Duration("reset-delay", d.ResetDelay, "delay before the download flag is cleared after a drop")
	f.Duration("retry-delay", d.RetryDelay, "delay before the text fallback is retried")

	f.String("max-file-size", humanize.IBytes(uint64(fc.MaxFileSize)), "largest image accepted (e.g. 50MiB)")
	f.Duration("download-timeout", fc.DownloadTimeout, "timeout for a whole image download")
	f.Int("max-dimension", fc.MaxDimension, "images are downscaled to at most this many pixels per side")
	f.Bool("allow-private-network", fc.AllowPrivateNetwork, "allow image downloads from loopback and private hosts")
}

func dragOptions(v *viper.Viper) drag.Options {
	return drag.Options{
		Prefetch:       v.GetBool("prefetch"),
		HideOnDrag:     v.GetBool("hide-on-drag"),
		HideAfterDrag:  v.GetBool("hide-after-drag"),
		HUD:            v.GetBool("hud"),
		AdoptForeign:   v.GetBool("adopt-foreign"),
		ShowDelay:      v.GetDuration("hud-show-delay"),
		MinVisible:     v.GetDuration("hud-min-visible"),
		FollowInterval: v.GetDuration("hud-follow-interval"),
		RestoreDelay:   v.GetDuration("restore-delay"),
		ResetDelay:     v.GetDuration("reset-delay"),
		RetryDelay:     v.GetDuration("retry-delay"),
	}
}

func fetchConfig(v *viper.Viper) (imagefetch.Config, error) {
	fc := imagefetch.DefaultConfig()
	size, err := humanize.ParseBytes(v.GetString("max-file-size"))
	if err != nil {
		return fc, fmt.Errorf("max-file-size: %w", err)
	}
	fc.MaxFileSize = int64(size)
	fc.DownloadTimeout = v.GetDuration("download-timeout")
	fc.MaxDimension = v.GetInt("max-dimension")
	fc.AllowPrivateNetwork = v.GetBool("allow-private-network")
	return fc, nil
}

// fmtAge renders how long ago t was, for status tables.
func fmtAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t).Round(time.Second)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	}
	return t.Format("15:04:05")
}
