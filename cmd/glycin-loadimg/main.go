// Command glycin-loadimg decodes a single image file through the
// sandboxed pipeline and prints its metadata, optionally dumping a raw
// frame buffer to disk for inspection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ehrlich-b/glycin-go/pkg/glycin"
)

func main() {
	var sandboxFlag string
	var memCapFlag uint64
	var mimeFlag string
	var frameFlag int
	var outFlag string

	root := &cobra.Command{
		Use:   "glycin-loadimg [file]",
		Short: "Decode an image in a sandboxed process and print its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			st, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat %s: %w", args[0], err)
			}

			loader := glycin.New(f, st.Size())
			if sandboxFlag != "" {
				loader.Sandbox(glycin.Selector(sandboxFlag))
			}
			if memCapFlag > 0 {
				loader.MemoryCap(memCapFlag)
			}
			if mimeFlag != "" {
				loader.MIME(mimeFlag)
			}

			img, err := loader.Load(ctx)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			defer img.Close()

			info := img.Info()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "width\t%d\n", info.Width)
			fmt.Fprintf(w, "height\t%d\n", info.Height)
			fmt.Fprintf(w, "frames\t%d\n", info.FrameCount)
			fmt.Fprintf(w, "format\t%s\n", info.MemoryFormat)
			icc, err := img.ICCProfile()
			if err != nil {
				return fmt.Errorf("icc profile: %w", err)
			}
			fmt.Fprintf(w, "icc_bytes\t%d\n", len(icc))
			w.Flush()

			if outFlag == "" {
				return nil
			}

			var frame *glycin.Frame
			if frameFlag < 0 {
				frame, err = img.NextFrame(ctx)
			} else {
				frame, err = img.SpecificFrame(ctx, frameFlag)
			}
			if err != nil {
				return fmt.Errorf("decode frame: %w", err)
			}
			defer frame.Release()

			if err := os.WriteFile(outFlag, frame.Buffer(), 0644); err != nil {
				return fmt.Errorf("write %s: %w", outFlag, err)
			}
			fmt.Printf("wrote %s (%d bytes, stride %d)\n", outFlag, len(frame.Buffer()), frame.Stride)
			return nil
		},
	}
	root.Flags().StringVar(&sandboxFlag, "sandbox", "", "Sandbox backend: bwrap, flatpak-spawn, not-sandboxed (default: auto)")
	root.Flags().Uint64Var(&memCapFlag, "mem-cap", 0, "Memory cap in bytes for the decoder process")
	root.Flags().StringVar(&mimeFlag, "mime", "", "MIME type override (default: sniffed)")
	root.Flags().IntVar(&frameFlag, "frame", -1, "Frame index to dump (-1 for next frame)")
	root.Flags().StringVar(&outFlag, "out", "", "Write the decoded frame's raw pixel buffer to this path")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
