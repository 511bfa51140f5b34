package cli

import (
	"encoding/json"
	"fmt"

	"group-quiz-service/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// NewLeaderboardCmd shows or resets a quiz leaderboard against the configured stores.
func NewLeaderboardCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Inspect or reset quiz leaderboards",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <quizId>",
		Short: "Print the top-N leaderboard as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			b, err := openBackends(cmd.Context(), cfg, log, metrics.New(prometheus.NewRegistry()))
			if err != nil {
				return err
			}
			defer b.Close()

			lb, err := b.leaderboard.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(lb)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset <quizId>",
		Short: "Delete every score recorded for a quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime(*configPath)
			if err != nil {
				return err
			}
			b, err := openBackends(cmd.Context(), cfg, log, metrics.New(prometheus.NewRegistry()))
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.leaderboard.Reset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "leaderboard %s reset\n", args[0])
			return nil
		},
	})
	return cmd
}
