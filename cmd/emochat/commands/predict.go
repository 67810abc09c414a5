package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/emochat/pkg/cli"
)

var predictCmd = &cobra.Command{
	Use:   "predict <file.wav>",
	Short: "Classify the emotion of a WAV file",
	Long: `Classify the speaker's emotion in a WAV recording.

Examples:
  emochat predict clip.wav
  emochat predict clip.wav --format card`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		audio, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}

		svc := newServices(cfg)
		defer svc.Close()
		pred, err := svc.openEmotion()
		if err != nil {
			return err
		}

		start := time.Now()
		p, err := pred.Predict(cmd.Context(), audio)
		if err != nil {
			return err
		}
		return output(predictResult{
			File:       filepath.Base(args[0]),
			Emotion:    p.Label,
			Confidence: p.Confidence,
			Probs:      p.Probs,
			Elapsed:    cli.FormatDuration(time.Since(start)),
		})
	},
}

func init() {
	rootCmd.AddCommand(predictCmd)
}
