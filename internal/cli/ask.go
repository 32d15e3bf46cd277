package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/projectsamarth/samarth/internal/session"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed data",
	Long: `Retrieves the records most similar to the question and asks the language
model to answer from them only. The cited records are listed after the answer.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]
	if strings.TrimSpace(question) == "" {
		return errors.New("question must not be empty")
	}

	return withServices(cmd, func(ctx context.Context, s *Services) error {
		ans, err := s.Pipeline.Ask(ctx, question)
		if err != nil {
			return errors.New(session.Describe(err))
		}
		if asJSON {
			return printJSON(cmd, ans)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ans.Text)
		if len(ans.Sources) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Sources:")
			for i, d := range ans.Sources {
				fmt.Fprintf(out, "  [%d] %s (%s)\n", i+1, d.Citation(), d.Source())
			}
		}
		return nil
	})
}
