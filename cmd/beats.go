package cmd

import (
	"fmt"

	"github.com/audiolibrelab/wavesync/internal/analysis"
	"github.com/audiolibrelab/wavesync/internal/config"

	"github.com/spf13/cobra"
)

var beatsCmd = &cobra.Command{
	Use:   "beats [file]",
	Short: "Detect beats in a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		algorithm, _ := cmd.Flags().GetString("algorithm")
		if algorithm != "" && !config.IsBeatAlgorithm(algorithm) {
			return fmt.Errorf("invalid beat algorithm %q (valid: %v)", algorithm, config.BeatAlgorithms)
		}

		times, err := newService().Beats(args[0], algorithm)
		if err != nil {
			return err
		}
		for i, t := range times {
			fmt.Printf("%d\t%.3f\n", i, t)
		}
		if gap, ok := analysis.SmallestInterval(times); ok {
			fmt.Printf("beats: %d, smallest interval: %.3fs (%.1f bpm)\n", len(times), gap, 60/gap)
		} else {
			fmt.Printf("beats: %d\n", len(times))
		}
		return nil
	},
}

func init() {
	beatsCmd.Flags().StringP("algorithm", "a", "", "onset function (default from config beats.algorithm)")
}
