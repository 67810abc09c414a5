// Package main is the entry point for the emochat CLI.
//
// Usage:
//
//	emochat [flags] <command> [args]
//
// Commands:
//
//	serve     - Run the HTTP API
//	chat      - Run one voice turn through the full pipeline
//	predict   - Classify the emotion of a WAV file
//	reply     - Generate a reply for a transcript and an emotion
//	stats     - Show a user's emotion counts for a day
//	cleanup   - Delete archived audio older than the retention window
//	models    - List registered reply generators
//	version   - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/emochat/cmd/emochat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
