package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	statsUser string
	statsDate string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show a user's emotion counts for a day",
	Long: `Count the emotions of a user's messages on one UTC day, read directly
from the history store.

Examples:
  emochat stats --user 5f0c... --date 2026-03-14 --format card`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		if statsUser == "" {
			return fmt.Errorf("--user is required")
		}
		day := time.Now().UTC()
		if statsDate != "" {
			day, err = time.Parse(time.DateOnly, statsDate)
			if err != nil {
				return fmt.Errorf("invalid date format, use YYYY-MM-DD: %w", err)
			}
		}

		svc := newServices(cfg)
		defer svc.Close()
		store, err := svc.openHistory()
		if err != nil {
			return err
		}
		counts, err := store.EmotionStats(cmd.Context(), statsUser, day)
		if err != nil {
			return err
		}
		return output(statsResult{User: statsUser, Date: day.Format(time.DateOnly), Counts: counts})
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsUser, "user", "", "user id")
	statsCmd.Flags().StringVar(&statsDate, "date", "", "day as YYYY-MM-DD (default today, UTC)")
	rootCmd.AddCommand(statsCmd)
}
