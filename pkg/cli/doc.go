// Package cli holds the terminal helpers shared by the emochat commands:
// result output as YAML, JSON or a styled card, file locations under
// ~/.emochat, and loading request documents such as a chat history file.
//
//	cli.Output(resp, cli.OutputOptions{Format: cli.FormatCard})
package cli
