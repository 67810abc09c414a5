// Package modelloader builds genx generators from provider config files and
// registers them into a generators.Mux.
//
// A config file describes one provider account and the models served by it:
//
//	schema: openai/chat/v1
//	type: generator
//	api_key: $GROQ_API_KEY
//	base_url: https://api.groq.com/openai/v1
//	models:
//	  - name: groq/llama-3.1-8b
//	    model: llama-3.1-8b-instant
//	    use_system_role: true
//
// Values of api_key starting with "$" are read from the environment.
package modelloader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"github.com/haivivi/emochat/pkg/genx"
	"github.com/haivivi/emochat/pkg/genx/generators"
)

// GroqBaseURL is the OpenAI-compatible endpoint used for kind "groq".
const GroqBaseURL = "https://api.groq.com/openai/v1"

// ErrMissingCredential is returned when a config has no API key after
// environment expansion.
var ErrMissingCredential = errors.New("modelloader: api_key is required")

type verboseTransport struct {
	base   http.RoundTripper
	logger *slog.Logger
}

func (t *verboseTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(body))

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err == nil {
			body = pretty.Bytes()
		}
		t.logger.Debug("provider request", "url", req.URL.String(), "body", string(body))
	}
	return t.base.RoundTrip(req)
}

type ConfigFile struct {
	Schema string `json:"schema,omitzero" yaml:"schema,omitzero"` // e.g., "openai/chat/v1", "gemini/generate/v1"
	Type   string `json:"type,omitzero" yaml:"type,omitzero"`     // "generator"

	// Legacy format (for backward compatibility)
	Kind string `json:"kind,omitzero" yaml:"kind,omitzero"` // "openai", "groq", "gemini"

	APIKey  string `json:"api_key,omitzero" yaml:"api_key,omitzero"` // Can be env var name like "$OPENAI_API_KEY"
	BaseURL string `json:"base_url,omitzero" yaml:"base_url,omitzero"`

	Models []Entry `json:"models,omitzero" yaml:"models,omitzero"`
}

type Entry struct {
	Name           string            `json:"name" yaml:"name"`
	Model          string            `json:"model" yaml:"model"`
	GenerateParams *genx.ModelParams `json:"generate_params,omitzero" yaml:"generate_params,omitzero"`
	UseSystemRole  bool              `json:"use_system_role,omitzero" yaml:"use_system_role,omitzero"`
	ExtraFields    map[string]any    `json:"extra_fields,omitzero" yaml:"extra_fields,omitzero"`
	Desc           string            `json:"desc,omitzero" yaml:"desc,omitzero"`
}

// Loader registers generators described by config files into Mux.
type Loader struct {
	Mux    *generators.Mux
	Logger *slog.Logger

	// Verbose logs every provider request body at debug level.
	Verbose bool
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// LoadFromDir loads model configs from dir recursively and registers generators.
// Returns the registered model names.
// Configs with missing credentials (empty API key after env expansion) are skipped.
func (l *Loader) LoadFromDir(ctx context.Context, dir string) ([]string, error) {
	var names []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			return nil
		}
		fileNames, err := l.LoadFile(ctx, path)
		if err != nil {
			if errors.Is(err, ErrMissingCredential) {
				l.logger().Warn("skipping model config", "path", path, "error", err)
				return nil
			}
			return err
		}
		names = append(names, fileNames...)
		return nil
	})

	return names, err
}

// LoadFile parses and registers a single config file.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]string, error) {
	cfg, err := ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	names, err := l.Register(ctx, *cfg)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", path, err)
	}
	return names, nil
}

// ParseFile reads a JSON or YAML config file.
func ParseFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	var cfg ConfigFile
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported extension: %s", ext)
	}
	return &cfg, nil
}

// Register builds the generators described by cfg and adds them to the mux.
func (l *Loader) Register(ctx context.Context, cfg ConfigFile) ([]string, error) {
	if l.Mux == nil {
		return nil, errors.New("modelloader: nil mux")
	}
	cfg.APIKey = ExpandEnv(cfg.APIKey)
	cfg.BaseURL = ExpandEnv(cfg.BaseURL)

	provider, err := cfg.provider()
	if err != nil {
		return nil, err
	}
	switch provider {
	case "openai":
		return l.registerOpenAI(cfg)
	case "groq":
		if cfg.BaseURL == "" {
			cfg.BaseURL = GroqBaseURL
		}
		return l.registerOpenAI(cfg)
	case "gemini":
		return l.registerGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown generator provider: %s", provider)
	}
}

// provider resolves the provider from the schema ({provider}/{subject}/{version})
// or the legacy kind.
func (cfg ConfigFile) provider() (string, error) {
	if cfg.Schema == "" {
		if cfg.Kind == "" {
			return "", errors.New("schema or kind is required")
		}
		return strings.ToLower(cfg.Kind), nil
	}
	if cfg.Type != "" && cfg.Type != "generator" {
		return "", fmt.Errorf("unsupported type: %s", cfg.Type)
	}
	parts := strings.Split(cfg.Schema, "/")
	if len(parts) < 2 || parts[0] == "" {
		return "", fmt.Errorf("invalid schema: %s", cfg.Schema)
	}
	return strings.ToLower(parts[0]), nil
}

// ExpandEnv expands environment variables in a string.
// Supports formats: $VAR, ${VAR}, and plain values.
// If the value starts with $ but the env var is not set, returns empty string.
func ExpandEnv(s string) string {
	if s == "" {
		return s
	}
	if strings.HasPrefix(s, "$") {
		return os.ExpandEnv(s)
	}
	return s
}

func (l *Loader) httpClient() *http.Client {
	if !l.Verbose {
		return nil
	}
	return &http.Client{Transport: &verboseTransport{base: http.DefaultTransport, logger: l.logger()}}
}

func (l *Loader) registerOpenAI(cfg ConfigFile) ([]string, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for %s", ErrMissingCredential, cfg.describe())
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if hc := l.httpClient(); hc != nil {
		opts = append(opts, option.WithHTTPClient(hc))
	}
	client := openai.NewClient(opts...)

	return l.registerModels(cfg, func(m Entry) genx.Generator {
		return &genx.OpenAIGenerator{
			Client:         &client,
			Model:          m.Model,
			GenerateParams: m.GenerateParams,
			UseSystemRole:  m.UseSystemRole,
			ExtraFields:    m.ExtraFields,
		}
	})
}

func (l *Loader) registerGemini(ctx context.Context, cfg ConfigFile) ([]string, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for %s", ErrMissingCredential, cfg.describe())
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: l.httpClient(),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}

	return l.registerModels(cfg, func(m Entry) genx.Generator {
		return &genx.GeminiGenerator{
			Client:         client,
			Model:          m.Model,
			GenerateParams: m.GenerateParams,
		}
	})
}

func (l *Loader) registerModels(cfg ConfigFile, build func(Entry) genx.Generator) ([]string, error) {
	var names []string
	for _, m := range cfg.Models {
		if m.Name == "" || m.Model == "" {
			return nil, fmt.Errorf("model entry missing name or model")
		}
		if err := l.Mux.Handle(m.Name, build(m)); err != nil {
			return nil, fmt.Errorf("register generator %q: %w", m.Name, err)
		}
		names = append(names, m.Name)
	}
	return names, nil
}

func (cfg ConfigFile) describe() string {
	if cfg.Schema != "" {
		return cfg.Schema
	}
	return cfg.Kind
}
