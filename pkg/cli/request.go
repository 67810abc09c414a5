package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadRequest decodes a YAML or JSON document from path into v. The path
// "-" reads stdin.
func LoadRequest(path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseRequest(data, path, v)
}

// ParseRequest decodes data by the filename extension. Unknown extensions
// try JSON first, then YAML.
func ParseRequest(data []byte, filename string, v any) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		if err := json.Unmarshal(data, v); err != nil {
			if err := yaml.Unmarshal(data, v); err != nil {
				return fmt.Errorf("failed to parse %s (tried JSON and YAML)", filename)
			}
		}
	}
	return nil
}
