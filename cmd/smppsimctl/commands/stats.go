package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/smppsim/internal/web"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show simulator statistics",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var stats web.StatsResponse
			if err := client.getJSON(context.Background(), "/api/stats", &stats); err != nil {
				return fmt.Errorf("get stats: %w", err)
			}

			out, err := formatStats(&stats, outputFormat)
			if err != nil {
				return fmt.Errorf("format stats: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}
