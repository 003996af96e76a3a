package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/smppsim/internal/web"
)

func messageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Inspect submitted messages",
	}

	cmd.AddCommand(messageListCmd())

	return cmd
}

// --- message list ---

func messageListCmd() *cobra.Command {
	var pending bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recently submitted messages",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path := "/api/messages"
			if pending {
				path += "?pending=true"
			}

			var messages []web.MessageView
			if err := client.getJSON(context.Background(), path, &messages); err != nil {
				return fmt.Errorf("list messages: %w", err)
			}

			out, err := formatMessages(messages, outputFormat)
			if err != nil {
				return fmt.Errorf("format messages: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}

	cmd.Flags().BoolVar(&pending, "pending", false,
		"show only messages still awaiting a delivery receipt")

	return cmd
}
