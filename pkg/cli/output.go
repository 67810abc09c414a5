package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// OutputFormat selects how results are printed.
type OutputFormat string

const (
	FormatYAML OutputFormat = "yaml" // default
	FormatJSON OutputFormat = "json"
	FormatCard OutputFormat = "card" // lipgloss card for Carder results
	FormatRaw  OutputFormat = "raw"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case "", FormatYAML, FormatJSON, FormatCard, FormatRaw:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// Carder is implemented by results that render as a card.
type Carder interface {
	Card() Card
}

// OutputOptions configures output behavior.
type OutputOptions struct {
	Format OutputFormat
	File   string    // output file path; empty for stdout
	Indent string    // JSON indentation
	Writer io.Writer // overrides File
	Styles *Styles   // card styles; DefaultStyles when nil
}

// Output writes result in the configured format.
func Output(result any, opts OutputOptions) error {
	var w io.Writer = os.Stdout
	if opts.Writer != nil {
		w = opts.Writer
	} else if opts.File != "" {
		f, err := os.Create(opts.File)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch opts.Format {
	case FormatJSON:
		return outputJSON(w, result, opts.Indent)
	case FormatYAML, "":
		return outputYAML(w, result)
	case FormatCard:
		c, ok := result.(Carder)
		if !ok {
			return outputYAML(w, result)
		}
		styles := DefaultStyles()
		if opts.Styles != nil {
			styles = *opts.Styles
		}
		_, err := fmt.Fprintln(w, c.Card().Render(styles))
		return err
	case FormatRaw:
		return outputRaw(w, result)
	default:
		return fmt.Errorf("unsupported output format: %s", opts.Format)
	}
}

func outputJSON(w io.Writer, result any, indent string) error {
	enc := json.NewEncoder(w)
	if indent == "" {
		indent = "  "
	}
	enc.SetIndent("", indent)
	enc.SetEscapeHTML(false)
	return enc.Encode(result)
}

func outputYAML(w io.Writer, result any) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func outputRaw(w io.Writer, result any) error {
	switch v := result.(type) {
	case []byte:
		_, err := w.Write(v)
		return err
	case string:
		_, err := io.WriteString(w, v)
		return err
	default:
		return outputYAML(w, result)
	}
}

// PrintSuccess prints a success message with checkmark.
func PrintSuccess(format string, args ...any) {
	fmt.Printf("✓ "+format+"\n", args...)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// PrintWarning prints a warning message to stderr.
func PrintWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "⚠ "+format+"\n", args...)
}
