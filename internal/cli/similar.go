package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	similarQuery string
	similarTopK  int
	similarJSON  bool
)

var similarCmd = &cobra.Command{
	Use:   "similar",
	Short: "Find stored feedback similar to a query",
	Long: `Search the feedback index for the closest stored records.

Examples:
  feedbackctl similar -q "refund still not processed"
  feedbackctl similar -q "slow delivery" -k 10 --json`,
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)
	similarCmd.Flags().StringVarP(&similarQuery, "query", "q", "", "query text (required)")
	similarCmd.Flags().IntVarP(&similarTopK, "top-k", "k", 0, "number of results (default from config)")
	similarCmd.Flags().BoolVar(&similarJSON, "json", false, "output as JSON")
	similarCmd.MarkFlagRequired("query")
}

func runSimilar(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.Replies.QuerySimilar(cmd.Context(), similarQuery, similarTopK)
	if res.Err != nil {
		return fmt.Errorf("retrieval failed: %w", res.Err)
	}

	if similarJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Matches)
	}

	if len(res.Matches) == 0 {
		fmt.Println("No similar feedback found.")
		return nil
	}
	for i, m := range res.Matches {
		fmt.Printf("%d. [%.3f] (%s) %s\n", i+1, m.Score, m.DominantEmotion(), m.Text)
	}
	return nil
}
