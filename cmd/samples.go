package cmd

import (
	"fmt"

	"github.com/audiolibrelab/wavesync/internal/analysis"

	"github.com/spf13/cobra"
)

var samplesCmd = &cobra.Command{
	Use:   "samples [file]",
	Short: "Decode a file and report its samples",
	Long: `Decode the whole file and print the number of decoded samples.

With --live, packets are decoded on a separate goroutine and reported one
line per packet as they arrive. With --export, the decoded samples are
written to a 16-bit WAV file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		live, _ := cmd.Flags().GetBool("live")
		export, _ := cmd.Flags().GetString("export")
		svc := newService()

		if live {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			total := 0
			err := svc.LiveSamples(ctx, args[0], func(p analysis.Packet) {
				total += p.Length
				fmt.Printf("packet %d: ts=%d frames=%d total=%d\n", p.Index, p.Timestamp, p.Length, total)
			})
			if err != nil {
				return fmt.Errorf("live decoding failed: %w", err)
			}
			return nil
		}

		buf, err := svc.Samples(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("samples: %d\n", len(buf.Samples))
		fmt.Printf("frames: %d\n", buf.Frames())
		fmt.Printf("channels: %d\n", buf.Channels)
		fmt.Printf("sample_rate: %d\n", buf.SampleRate)

		if export != "" {
			if err := analysis.ExportWAV(export, buf); err != nil {
				return err
			}
			fmt.Printf("exported: %s\n", export)
		}
		return nil
	},
}

func init() {
	samplesCmd.Flags().Bool("live", false, "stream per-packet sample counts while decoding")
	samplesCmd.Flags().String("export", "", "write the decoded samples to this WAV file")
}
