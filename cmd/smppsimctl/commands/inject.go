package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/smppsim/internal/web"
)

// Sentinel errors for CLI validation.
var (
	errSourceRequired = errors.New("--source flag is required")
	errDestRequired   = errors.New("--dest flag is required")
)

func injectCmd() *cobra.Command {
	var (
		source  string
		dest    string
		message string
	)

	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Inject a mobile-originated message",
		Long:  "Queues a mobile-originated message for delivery to the bound receiver or transceiver session whose address range matches the destination.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if source == "" {
				return errSourceRequired
			}
			if dest == "" {
				return errDestRequired
			}

			req := web.InjectRequest{
				Source:  source,
				Dest:    dest,
				Message: message,
			}
			if err := client.postJSON(context.Background(), "/api/inject-mo", req, http.StatusAccepted); err != nil {
				return fmt.Errorf("inject message: %w", err)
			}

			fmt.Println("Message queued.")

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&source, "source", "", "source address, typically an MSISDN (required)")
	flags.StringVar(&dest, "dest", "", "destination address matched against session address ranges (required)")
	flags.StringVar(&message, "message", "", "message text, or 0x-prefixed hex for binary payloads")

	return cmd
}
