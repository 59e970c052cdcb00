package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipdrag/internal/message"
	"go.klb.dev/clipdrag/internal/rpc"
)

func newDragCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "drag [text|-]",
		Short: "Run a drag gesture for text through the daemon",
		Long: `Starts a drag for the given text, holds it for --hold, then drops it:
the daemon copies the content the text stands for and simulates a paste into
the focused application. Use "-" to read the text from stdin.

  clipdrag drag https://example.com/cat.png --hold 500ms
  printf '[FILES]\n/tmp/a.txt\n/tmp/b.txt' | clipdrag drag -`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, args []string) error { return runDrag(v, args[0]) },
	}

	f := cmd.Flags()
	f.Duration("hold", 0, "time between drag start and drop")
	f.String("item-id", "", "history entry ID reported with the drag")
	f.Bool("json", false, "output raw JSON")
	addSocketFlag(cmd)
	addRemoteFlags(cmd, false)
	addConfigFlag(cmd)

	return cmd
}

func runDrag(v *viper.Viper, text string) error {
	if text == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = strings.TrimRight(string(b), "\n")
	}
	hold := v.GetDuration("hold")

	client, conn, err := dialDaemon(v, "drag")
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), hold+time.Minute)
	defer cancel()
	resp, err := client.Drag(ctx, &rpc.DragRequest{
		StartDragRequest: rpc.StartDragRequest{Text: text, ItemID: v.GetString("item-id")},
		HoldMS:           hold.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("drag: %w", err)
	}

	if v.GetBool("json") {
		enc, _ := json.MarshalIndent(resp.Result, "", "  ")
		fmt.Println(string(enc))
		return nil
	}
	printResult(resp.Result)
	return nil
}

func printResult(r *message.Result) {
	w := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	via := r.Via
	if via == "" {
		via = "-"
	}
	fmt.Fprintf(w, "Kind:\t%s\n", r.Kind)
	fmt.Fprintf(w, "Copied via:\t%s\n", via)
	if r.Superseded {
		fmt.Fprintf(w, "Superseded:\tyes\n")
	}
	if r.Cancelled {
		fmt.Fprintf(w, "Cancelled:\tyes\n")
	}
	if r.FellBack {
		fmt.Fprintf(w, "Fell back:\tyes\n")
	}
	if r.CopyError != "" {
		fmt.Fprintf(w, "Copy error:\t%s\n", r.CopyError)
	}
	if r.PasteError != "" {
		fmt.Fprintf(w, "Paste error:\t%s\n", r.PasteError)
	}
	fmt.Fprintf(w, "Duration:\t%s\n", time.Duration(r.DurationMS)*time.Millisecond)
	_ = w.Flush()
}
