// clipdrag: drag-out pipeline for a clipboard-history app.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/clipdrag/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "clipdrag",
		Short: "Drag clipboard-history entries into other apps",
		Long: `clipdrag turns a drag gesture over a clipboard-history entry into the
right clipboard content and a paste: remote images are downloaded (and
prefetched while the pointer is still moving), local images and SVGs are
decoded, file lists become file drops, everything else is copied as text.

Run "clipdrag serve" once per desktop session. The UI shell and the CLI
commands below talk to it over a local socket.

Config file search order (first found wins):
  /etc/clipdrag/clipdrag.toml
  $HOME/.config/clipdrag/clipdrag.toml
  path supplied via --config

All flags can be set via CLIPDRAG_<FLAG> env vars or config-file keys.
See "clipdrag serve --help" for the full flag reference.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newDragCmd(),
		newStatusCmd(),
		newClearCmd(),
		newClassifyCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("clipdrag %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
