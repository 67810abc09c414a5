package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/emochat/pkg/cli"
	"github.com/haivivi/emochat/pkg/storage"
)

var cleanupMaxAge time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete archived audio older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		svc := newServices(cfg)
		defer svc.Close()
		archive, err := svc.openArchive()
		if err != nil {
			return err
		}
		if archive == nil {
			cli.PrintWarning("audio archive is disabled")
			return nil
		}

		maxAge := cfg.Storage.MaxAge
		if cleanupMaxAge > 0 {
			maxAge = cleanupMaxAge
		}
		c := &storage.Cleaner{Store: archive, MaxAge: maxAge, Suffix: cfg.Storage.Suffix}
		n, err := c.Sweep(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		cli.PrintSuccess("deleted %d recording(s) older than %s", n, cli.FormatDuration(maxAge))
		return nil
	},
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupMaxAge, "max-age", 0, "override storage.max_age")
	rootCmd.AddCommand(cleanupCmd)
}
