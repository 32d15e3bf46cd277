package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/projectsamarth/samarth/internal/rag"
	"github.com/projectsamarth/samarth/internal/session"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "List the records nearest to a query",
	Long: `Embeds the query and prints the nearest indexed records with their cosine
similarity, without calling the language model.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", rag.DefaultTopK, "number of records to return")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", searchLimit)
	}

	return withServices(cmd, func(ctx context.Context, s *Services) error {
		hits, err := s.Pipeline.Search(ctx, args[0], searchLimit)
		if err != nil {
			return errors.New(session.Describe(err))
		}
		if asJSON {
			return printJSON(cmd, hits)
		}

		out := cmd.OutOrStdout()
		if len(hits) == 0 {
			fmt.Fprintln(out, "No results found.")
			return nil
		}
		for i, h := range hits {
			fmt.Fprintf(out, "  [%d] %.3f  %s (%s)\n", i+1, h.Score, h.Document.Citation(), h.Document.Source())
		}
		return nil
	})
}
