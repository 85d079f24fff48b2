package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/skillbase/internal/agent"
	"github.com/nextlevelbuilder/skillbase/internal/bus"
)

func chatCmd() *cobra.Command {
	var conversationID string
	var showEvents bool
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the assistant from the terminal",
		Long: `Chat with the assistant. With a message argument, runs one turn and
exits. Without arguments, starts an interactive session.`,
		Run: func(cmd *cobra.Command, args []string) {
			runChat(conversationID, strings.Join(args, " "), showEvents)
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id (default: new conversation)")
	cmd.Flags().BoolVar(&showEvents, "events", false, "print pipeline events (phases, tools, search results)")
	return cmd
}

func runChat(conversationID, message string, showEvents bool) {
	cfg := loadConfig()
	setupLogging(cfg)

	ctx := context.Background()
	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer rt.close()

	if conversationID == "" {
		conv, err := rt.convs.CreateConversation(ctx, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		conversationID = conv.ID
		fmt.Fprintf(os.Stderr, "conversation: %s\n", conversationID)
	}

	if message != "" {
		runOneTurn(ctx, rt, conversationID, message, showEvents)
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		runOneTurn(ctx, rt, conversationID, line, showEvents)
	}
}

// runOneTurn streams one turn's events to the terminal.
func runOneTurn(ctx context.Context, rt *runtime, conversationID, message string, showEvents bool) {
	turnID := uuid.NewString()
	events := rt.bus.Subscribe(turnID, "cli")
	defer rt.bus.Forget(turnID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(events, showEvents)
	}()

	_, err := rt.loop.Run(ctx, agent.RunRequest{
		ConversationID: conversationID,
		TurnID:         turnID,
		Input:          message,
	})
	<-done
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}
}

func printEvents(events <-chan bus.Event, showEvents bool) {
	streamed := false
	for ev := range events {
		switch ev.Type {
		case "assistant.delta":
			if delta, ok := ev.Payload["delta"].(string); ok {
				fmt.Print(delta)
				streamed = true
			}
		case "assistant.final":
			// Deltas already printed the content; only print when nothing
			// streamed (non-delta providers).
			if !streamed {
				if content, ok := ev.Payload["content"].(string); ok {
					fmt.Print(content)
				}
			}
			fmt.Println()
		case "error":
			fmt.Fprintf(os.Stderr, "\n[error] %v\n", ev.Payload["error"])
		default:
			if showEvents && !ev.Terminal {
				fmt.Fprintf(os.Stderr, "[%s] %v\n", ev.Type, ev.Payload)
			}
		}
	}
}
