package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipdrag/internal/drag"
	"go.klb.dev/clipdrag/internal/progress"
	"go.klb.dev/clipdrag/internal/rpc"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the download state and connected peers",
		Long: `Displays the daemon's drag phase, the download indicator state and
every connected peer. With --watch, state changes and progress events are
streamed until interrupted.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runStatus(v) },
	}

	f := cmd.Flags()
	f.Bool("json", false, "output raw JSON")
	f.Bool("watch", false, "stream state changes and progress events")
	f.Bool("no-progress", false, "with --watch, only print state changes")
	addSocketFlag(cmd)
	addRemoteFlags(cmd, false)
	addConfigFlag(cmd)

	return cmd
}

func runStatus(v *viper.Viper) error {
	client, conn, err := dialDaemon(v, "status")
	if err != nil {
		return err
	}
	defer conn.Close()

	jsonOut := v.GetBool("json")
	if v.GetBool("watch") {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return client.Watch(ctx, &rpc.WatchRequest{NoProgress: v.GetBool("no-progress")}, func(r *rpc.WatchResponse) error {
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(r)
			}
			printUpdate(os.Stdout, r)
			return nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.State(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if jsonOut {
		enc, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(enc))
		return nil
	}
	printStatus(os.Stdout, resp, v.GetString("socket"))
	return nil
}

func printStatus(out io.Writer, resp *rpc.StateResponse, socket string) {
	w := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Socket:\t%s\n", socket)
	fmt.Fprintf(w, "Phase:\t%s\n", resp.Phase)
	fmt.Fprintf(w, "Download:\t%s\n", describeState(resp.State))
	fmt.Fprintln(w)
	_ = w.Flush()

	if len(resp.Peers) == 0 {
		fmt.Fprintln(out, "No peers connected.")
		return
	}

	tw := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID\tSOURCE\tADDR\tROLE\tCONNECTED\tLAST SEEN\n")
	_, _ = fmt.Fprintf(tw, "--\t------\t----\t----\t---------\t---------\n")
	for _, p := range resp.Peers {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Source, p.Addr, p.Role, fmtAge(p.ConnectedAt), fmtAge(p.LastSeen),
		)
	}
	_ = tw.Flush()
}

func describeState(st drag.DownloadState) string {
	switch {
	case st.Error != "":
		return "error: " + st.Error
	case st.IsDownloading:
		return fmt.Sprintf("downloading (%.0f%%)", st.Progress)
	case st.Progress >= 100:
		return "done"
	}
	return "idle"
}

func printUpdate(out io.Writer, r *rpc.WatchResponse) {
	ts := time.Now().Format("15:04:05.000")
	if r.State != nil {
		fmt.Fprintf(out, "%s  state     %-9s %s\n", ts, r.Phase, describeState(*r.State))
	}
	if ev := r.Event; ev != nil {
		fmt.Fprintf(out, "%s  progress  %-9s %s %s\n", ts, ev.Status, ev.RequestID, describeEvent(*ev))
	}
}

func describeEvent(ev progress.Event) string {
	if ev.ErrorCode != "" {
		return fmt.Sprintf("%s: %s", ev.ErrorCode, ev.ErrorMessage)
	}
	got := humanize.IBytes(ev.DownloadedBytes)
	if ev.TotalBytes == nil {
		return got
	}
	return fmt.Sprintf("%s / %s (%.0f%%)", got, humanize.IBytes(*ev.TotalBytes), ev.Progress)
}

func newClearCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "clear",
		Short:   "Reset the download indicator",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(_ *cobra.Command, _ []string) error {
			client, conn, err := dialDaemon(v, "clear")
			if err != nil {
				return err
			}
			defer conn.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := client.Clear(ctx); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			return nil
		},
	}
	addSocketFlag(cmd)
	addRemoteFlags(cmd, false)
	addConfigFlag(cmd)
	return cmd
}
