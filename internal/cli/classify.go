package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/timmy/emoreply/internal/api/handler"
	"github.com/timmy/emoreply/internal/service"
)

var classifyJSON bool

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Detect the emotion of a piece of feedback",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "output as JSON")
}

func runClassify(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("text must not be empty")
	}

	classifier := service.NewEmotionService(&service.EmotionConfig{
		URL:     cfg.Classifier.URL,
		ModelID: cfg.Classifier.ModelID,
		Timeout: cfg.Classifier.Timeout,
	})
	result := classifier.Classify(cmd.Context(), text)

	if classifyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if !result.IsKnown() {
		return fmt.Errorf("%s", handler.InvalidTextMessage)
	}
	fmt.Println(handler.FormatEmotionSentence(result))
	return nil
}
