package cli

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/timmy/emoreply/internal/service"
	"github.com/timmy/emoreply/internal/source/file"
)

var seedLimit int

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load past feedback into the index",
	Long: `Classify every line of a .jsonl or .txt file and store it in the feedback index.
JSONL lines may carry an "emotion" object, which skips classification.

Examples:
  feedbackctl seed data/feedback/support.jsonl
  feedbackctl seed reviews.txt --limit 200`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().IntVarP(&seedLimit, "limit", "n", 0, "maximum number of items to read (0 reads all)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	src := file.NewAdapter(args[0])
	total, err := src.GetTotalCount()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	if seedLimit > 0 && seedLimit < total {
		total = seedLimit
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Seeding[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	var failures []service.SeedItemResult
	stats, err := a.Seeder.SeedFromSource(cmd.Context(), src, &service.SeedOptions{
		Limit: seedLimit,
		OnItem: func(res service.SeedItemResult) {
			if res.Err != nil {
				failures = append(failures, res)
			}
			_ = bar.Add(1)
		},
	})
	_ = bar.Finish()

	if stats != nil {
		fmt.Printf("\nSeed complete:\n")
		fmt.Printf("  Read:     %d\n", stats.Total)
		fmt.Printf("  Stored:   %d\n", stats.Stored)
		fmt.Printf("  Skipped:  %d (empty)\n", stats.Skipped)
		fmt.Printf("  Failed:   %d\n", stats.Failed)
		fmt.Printf("  Duration: %s\n", stats.EndTime.Sub(stats.StartTime).Round(time.Millisecond))
	}
	if len(failures) > 0 {
		fmt.Printf("\nFailures:\n")
		for _, f := range failures {
			fmt.Printf("  - %s: %v\n", f.SourceID, f.Err)
		}
	}

	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	return nil
}
