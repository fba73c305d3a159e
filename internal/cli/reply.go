package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var replyStream bool

var replyCmd = &cobra.Command{
	Use:   "reply <text>",
	Short: "Generate a suggested reply for a piece of feedback",
	Long: `Classify the feedback, retrieve similar past feedback and generate a reply.

Examples:
  feedbackctl reply "My order arrived broken"
  feedbackctl reply --stream "Thanks for the quick fix!"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReply,
}

func init() {
	rootCmd.AddCommand(replyCmd)
	replyCmd.Flags().BoolVarP(&replyStream, "stream", "s", false, "print the reply as it is generated")
}

func runReply(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return fmt.Errorf("text must not be empty")
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if !replyStream {
		res, err := a.Replies.GenerateReply(ctx, text)
		if err != nil {
			return err
		}
		printReplyHeader(string(res.DominantEmotion), len(res.Matches), res.RetrievalError)
		fmt.Println(res.Reply)
		return nil
	}

	stream, err := a.Replies.StreamReply(ctx, text)
	if err != nil {
		return err
	}
	defer stream.Close()

	retrievalErr := ""
	if err := stream.RetrievalErr(); err != nil {
		retrievalErr = err.Error()
	}
	printReplyHeader(string(stream.DominantEmotion()), len(stream.Matches()), retrievalErr)
	for fragment := range stream.All() {
		fmt.Print(fragment)
	}
	fmt.Println()
	return stream.Err()
}

func printReplyHeader(emotion string, matches int, retrievalErr string) {
	fmt.Printf("Detected emotion: %s\n", emotion)
	fmt.Printf("Similar feedback: %d\n", matches)
	if retrievalErr != "" {
		fmt.Printf("Retrieval warning: %s\n", retrievalErr)
	}
	fmt.Println()
}
