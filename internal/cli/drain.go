package cli

import (
	"fmt"

	"aptitude-ace/internal/config"
	"github.com/spf13/cobra"
)

// NewDrainCmd retries results that could not be delivered earlier.
func NewDrainCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Retry queued quiz results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := rt.service.Drain(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "delivered %d, dropped %d, still queued %d\n",
				report.Delivered, report.Dropped, report.Remaining)
			return err
		},
	}
}
