package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/emochat/cmd/emochat/internal/config"
	"github.com/haivivi/emochat/pkg/cli"
)

var (
	// Global flags
	cfgFile      string
	verbose      bool
	formatOutput string
	outputFile   string

	// Loaded lazily by getConfig.
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "emochat",
	Short: "Emotion-aware voice chatbot",
	Long: `emochat - an emotion-aware voice chatbot.

A voice turn is a WAV recording plus its transcript. emochat classifies the
speaker's emotion from the audio with a Whisper encoder and a small trained
head, then answers in Vietnamese with a tone that follows the emotion.

Configuration is read from --config, or ~/.emochat/config.yaml when present.
Without a file the defaults are used with paths under ~/.emochat/.

Examples:
  # Run the HTTP API
  emochat serve --config deploy/emochat.yaml

  # Classify one file
  emochat predict clip.wav --format card

  # Ask for a reply without audio
  emochat reply --text "hôm nay mệt quá" --emotion sad`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.emochat/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&formatOutput, "format", "yaml", "output format: yaml, json, card, raw")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
}

// setupLogger installs the default slog handler. --verbose forces debug;
// otherwise the config's log_level applies when the config loads.
func setupLogger() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else if cfg, err := getConfig(); err == nil {
		if l, err := config.ParseLevel(cfg.LogLevel); err == nil {
			level = l
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// getConfig loads the configuration once. An explicit --config must exist;
// the per-user file is optional.
func getConfig() (*config.Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return nil, err
		}
		globalConfig = cfg
		return cfg, nil
	}

	paths, err := cli.NewPaths()
	if err != nil {
		return nil, fmt.Errorf("config not available: %w", err)
	}
	cfg, err := config.Load(paths.ConfigFile())
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		cfg.ModelsDir = paths.ModelsDir()
		cfg.History.Dir = paths.DataDir()
		cfg.Storage.Dir = paths.AudioDir()
		cfg.Resolve(paths.BaseDir())
		err = nil
	}
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return cfg, nil
}

func output(result any) error {
	format, err := cli.ParseFormat(formatOutput)
	if err != nil {
		return err
	}
	return cli.Output(result, cli.OutputOptions{Format: format, File: outputFile})
}
