package cli

import (
	"os"
	"path/filepath"
)

const (
	// DefaultBaseDir is the per-user directory name under $HOME.
	DefaultBaseDir = ".emochat"
	// DefaultConfigFile is the default configuration filename.
	DefaultConfigFile = "config.yaml"
)

// Paths locates per-user emochat files (~/.emochat).
type Paths struct {
	HomeDir string
}

// NewPaths returns Paths for the current user.
func NewPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{HomeDir: home}, nil
}

// BaseDir returns ~/.emochat.
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// ConfigFile returns ~/.emochat/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.BaseDir(), DefaultConfigFile)
}

// ModelsDir returns ~/.emochat/models, searched for provider configs.
func (p *Paths) ModelsDir() string {
	return filepath.Join(p.BaseDir(), "models")
}

// DataDir returns ~/.emochat/data, the default history database.
func (p *Paths) DataDir() string {
	return filepath.Join(p.BaseDir(), "data")
}

// AudioDir returns ~/.emochat/audio, the default archive root.
func (p *Paths) AudioDir() string {
	return filepath.Join(p.BaseDir(), "audio")
}
