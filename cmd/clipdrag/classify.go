package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/clipdrag/internal/drag"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Show how a drag of text would be copied",
		Long: `Prints the copy strategy the daemon would pick for text, without
touching the clipboard or contacting the daemon.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			printClassification(os.Stdout, args[0])
		},
	}
}

func printClassification(out io.Writer, text string) {
	kind := drag.Classify(text)
	fmt.Fprintln(out, kind)
	switch kind {
	case drag.KindFileList:
		for _, p := range drag.ParseFileList(text) {
			fmt.Fprintf(out, "  %s\n", p)
		}
	case drag.KindLocalImage, drag.KindSVGFile, drag.KindFilePath:
		if p, ok := drag.LocalPath(text); ok {
			fmt.Fprintf(out, "  %s\n", p)
		}
	}
}
