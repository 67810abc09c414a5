package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/haivivi/emochat/cmd/emochat/internal/build"
)

type versionResult struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
	Go      string `json:"go" yaml:"go"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("format") {
			return output(versionResult{
				Name:    build.Name,
				Version: build.Version,
				Commit:  build.Commit,
				Date:    build.Date,
				Go:      runtime.Version(),
			})
		}
		fmt.Println(build.String())
		if verbose {
			fmt.Printf("  go:     %s\n", runtime.Version())
			if cfg, err := getConfig(); err == nil {
				fmt.Printf("  config: %s\n", cfg.Path)
			} else {
				fmt.Printf("  config: (unavailable: %v)\n", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
