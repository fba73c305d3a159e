// Package cli implements the feedbackctl command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/timmy/emoreply/internal/app"
	"github.com/timmy/emoreply/internal/config"
	"github.com/timmy/emoreply/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "feedbackctl",
	Short: "Seed, inspect and reply to customer feedback",
	Long: `feedbackctl drives the reply pipeline from the command line.

Example usage:
  feedbackctl seed data/feedback/support.jsonl   # Load past feedback
  feedbackctl classify "The app keeps crashing"  # Detect emotion
  feedbackctl similar -q "refund delayed"        # Query similar feedback
  feedbackctl reply --stream "Love the update"   # Generate a reply`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.SetDefaultLogger(logger.NewDefault())

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command. SIGINT or SIGTERM cancels the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")
}

// openApp builds the services without the audit database or archive.
func openApp(cmd *cobra.Command) (*app.App, error) {
	a, err := app.New(cmd.Context(), cfg, app.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return a, nil
}
