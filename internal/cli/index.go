package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/projectsamarth/samarth/internal/models"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and inspect the embedding index",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the index from the cleaned CSV files",
	Long: `Reads the cleaned crop-production and rainfall CSV files, renders one
document per record, embeds every document and saves the index atomically.
Malformed records are skipped and counted.`,
	Args: cobra.NoArgs,
	RunE: runIndexBuild,
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the saved index",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

func init() {
	indexCmd.AddCommand(indexBuildCmd, indexStatsCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexBuild(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(ctx context.Context, s *Services) error {
		report, err := s.Builder.Run(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd, report)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Index built in %s\n", report.Duration.Round(time.Millisecond))

		sources := make([]string, 0, len(report.Documents))
		for src := range report.Documents {
			sources = append(sources, string(src))
		}
		sort.Strings(sources)
		for _, src := range sources {
			fmt.Fprintf(out, "  %-16s %d documents\n", src+":", report.Documents[models.Source(src)])
		}
		fmt.Fprintf(out, "  %-16s %d\n", "skipped:", report.Skipped)
		fmt.Fprintf(out, "  %-16s %s (%d dims)\n", "model:", report.Model, report.Dimension)
		fmt.Fprintf(out, "  %-16s %s\n", "saved to:", report.IndexPath)
		if report.Mirrored {
			fmt.Fprintf(out, "  %-16s pgvector\n", "mirrored to:")
		}
		return nil
	})
}

func runIndexStats(cmd *cobra.Command, _ []string) error {
	return withServices(cmd, func(_ context.Context, s *Services) error {
		meta, ok := s.Index.Stats()
		if !ok {
			return fmt.Errorf("no usable index at %s; run `samarth index build`", s.IndexPath)
		}
		if asJSON {
			return printJSON(cmd, meta)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Index: %s\n", s.IndexPath)
		fmt.Fprintf(out, "  documents: %d\n", meta.Count)
		fmt.Fprintf(out, "  model:     %s (%d dims)\n", meta.Model, meta.Dimension)
		fmt.Fprintf(out, "  built at:  %s\n", meta.BuiltAt.Format(time.RFC3339))
		return nil
	})
}
