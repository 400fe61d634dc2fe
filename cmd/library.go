package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/audiolibrelab/wavesync/internal/library"
	"github.com/audiolibrelab/wavesync/internal/metadata"

	"github.com/spf13/cobra"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Walk a music directory and group files by tag",
	Long: `Recursively visit the audio files of a directory (extensions from
library.extensions) and count, aggregate or filter them by tag.

Tags: ` + strings.Join(metadata.Names, ", ") + `.`,
}

var libraryCountCmd = &cobra.Command{
	Use:   "count [dir]",
	Short: "Count audio files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newService().Library(args[0]).Count(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", args[0], err)
		}
		fmt.Printf("total %d\n", n)
		return nil
	},
}

var libraryAggregateCmd = &cobra.Command{
	Use:   "aggregate [dir] [tag]",
	Short: "Count audio files per tag value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		agg, err := newService().Library(args[0]).Aggregate(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		for _, v := range agg.Values() {
			fmt.Printf("%6d  %s\n", agg.Counts[v], v)
		}
		reportErrors(agg.Errors)
		return nil
	},
}

var libraryFilterCmd = &cobra.Command{
	Use:   "filter [dir] [tag] [value]",
	Short: "List audio files whose tag equals a value (case sensitive)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := newService().Library(args[0]).Filter(cmd.Context(), args[1], args[2])
		if err != nil {
			return err
		}
		for _, p := range sel.Paths {
			fmt.Println(p)
		}
		reportErrors(sel.Errors)
		return nil
	},
}

var libraryTreeCmd = &cobra.Command{
	Use:   "tree [dir]",
	Short: "Show a tag hierarchy with file counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tags, _ := cmd.Flags().GetStringSlice("levels")
		tree, errs, err := newService().Library(args[0]).Tree(cmd.Context(), tags...)
		if err != nil {
			return err
		}
		tree.Walk(func(depth int, n library.Node) {
			if depth == 0 {
				fmt.Printf("%s (%d)\n", args[0], n.Count)
				return
			}
			fmt.Printf("%s%s (%d)\n", strings.Repeat("  ", depth), n.Value, n.Count)
		})
		reportErrors(errs)
		return nil
	},
}

// reportErrors logs unreadable files without failing the command.
func reportErrors(errs []*library.FileError) {
	if len(errs) == 0 {
		return
	}
	for _, e := range errs {
		slog.Debug("Unreadable file", "path", e.Path, "error", e.Err)
	}
	slog.Warn("Some files could not be read", "count", len(errs))
}

func init() {
	libraryTreeCmd.Flags().StringSlice("levels", []string{metadata.Genre, metadata.Artist, metadata.Album}, "tags for each tree level")

	libraryCmd.AddCommand(libraryCountCmd)
	libraryCmd.AddCommand(libraryAggregateCmd)
	libraryCmd.AddCommand(libraryFilterCmd)
	libraryCmd.AddCommand(libraryTreeCmd)
}
