package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/smppsim/internal/smpp"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect bound ESME sessions",
	}

	cmd.AddCommand(sessionListCmd())

	return cmd
}

// --- session list ---

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all bound sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var sessions []smpp.SessionSnapshot
			if err := client.getJSON(context.Background(), "/api/sessions", &sessions); err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			out, err := formatSessions(sessions, outputFormat)
			if err != nil {
				return fmt.Errorf("format sessions: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}
