package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/wavesync/internal/metadata"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Show format metadata and tags of a file",
	Long: `Display the format metadata and embedded tags of an audio file.

Known names: ` + strings.Join(metadata.Names, ", ") + `.
Format metadata (duration, frameRate, channelsNumber, totalFrames) is read
from the decoder and takes priority over tags.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringSlice("tag")
		asYAML, _ := cmd.Flags().GetBool("yaml")

		for _, n := range names {
			if !metadata.IsKnown(n) {
				return fmt.Errorf("unknown tag %q (valid: %s)", n, strings.Join(metadata.Names, ", "))
			}
		}

		info, err := newService().Info(args[0], names)
		if err != nil {
			return err
		}

		if asYAML {
			out, err := yaml.Marshal(info)
			if err != nil {
				return fmt.Errorf("error marshaling info: %w", err)
			}
			fmt.Print(string(out))
			return nil
		}

		fmt.Printf("=== %s ===\n", filepath.Base(info.Path))
		fmt.Printf("codec: %s\n", info.Codec)
		fmt.Printf("size: %s\n", info.SizeHuman)
		for _, key := range metadata.SortedKeys(info.Values) {
			fmt.Printf("%s: %s\n", key, info.Values[key])
		}
		for _, n := range names {
			if _, ok := info.Values[n]; !ok {
				fmt.Printf("%s: (not set)\n", n)
			}
		}
		return nil
	},
}

func trimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

func init() {
	infoCmd.Flags().StringSliceP("tag", "t", nil, "only show these names (repeatable)")
	infoCmd.Flags().Bool("yaml", false, "print as YAML")
}
