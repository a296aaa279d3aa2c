package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/avachat/ava/pkg/ava/assistant"
	"github.com/avachat/ava/pkg/ava/workflow"
)

// newChatCmd creates the `ava chat` command for direct conversations.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant from the terminal",
		Long: `Send one message, or start an interactive session when called with no
arguments.

Examples:
  ava chat "What's on my agenda today?"
  ava chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().String("conversation", "cli", "conversation id to chat under")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := buildLogger(cmd, cfg)
	assistant.ResolveAPIKey(cfg, logger)

	a, err := assistant.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	conversation, _ := cmd.Flags().GetString("conversation")
	ctx := cmd.Context()

	if len(args) > 0 {
		reply := a.RunTurn(ctx, workflow.Input{
			ConversationID: conversation,
			Media:          workflow.MediaText,
			Text:           args[0],
		})
		fmt.Println(reply.Text)
		return nil
	}

	return runREPL(ctx, a, conversation)
}

// runREPL is the interactive loop. Replies always render as text here; the
// terminal has no use for audio or image bytes.
func runREPL(ctx context.Context, a *assistant.Assistant, conversation string) error {
	rl, err := readline.New("you> ")
	if err != nil {
		return fmt.Errorf("starting readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("Interactive session. Type /quit to leave.")

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		reply := a.RunTurn(ctx, workflow.Input{
			ConversationID: conversation,
			Media:          workflow.MediaText,
			Text:           line,
		})
		fmt.Printf("ava> %s\n", reply.Text)
	}
}
