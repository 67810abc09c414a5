package commands

import (
	"github.com/spf13/cobra"
)

type modelsResult struct {
	Models   []string `json:"models" yaml:"models"`
	Primary  string   `json:"primary" yaml:"primary"`
	Fallback string   `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List registered reply generators",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		svc := newServices(cfg)
		defer svc.Close()
		mux, err := svc.openModels(cmd.Context())
		if err != nil {
			return err
		}
		res := modelsResult{Models: mux.Names(), Primary: cfg.Chat.Primary}
		if cfg.Chat.FallbackEnabled {
			res.Fallback = cfg.Chat.Fallback
		}
		return output(res)
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
