package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQuestionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "question <url>",
		Short: "Ingest a single question thread",
		Long: `Fetches one question thread with all of its answer pages and stores it,
replacing any previously stored copy.`,
		Args: cobra.ExactArgs(1),
		RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
			res, err := rt.app.Worker().IngestQuestion(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("ingest %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "question %d stored: %d answers, %d keywords (replaced=%t)\n",
				res.QuestionID, res.Answers, res.Keywords, res.Replaced)
			return nil
		}),
	}
}
