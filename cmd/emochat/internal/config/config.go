// Package config loads the emochat service configuration.
//
// The configuration is one YAML file. A sibling .env file (or the one named
// by env_file) is loaded into the process environment first, so secrets can
// be referenced as $VAR:
//
//	log_level: info
//	server:
//	  addr: :8000
//	emotion:
//	  encoder_model: models/whisper-tiny-encoder.onnx
//	  weights: models/emotion-head.msgpack
//	chat:
//	  primary: groq/llama-3.1-8b-instant
//	  fallback: gemini/flash
//	  fallback_enabled: true
//	providers:
//	  - kind: groq
//	    api_key: $GROQ_API_KEY
//	    models:
//	      - name: groq/llama-3.1-8b-instant
//	        model: llama-3.1-8b-instant
//	auth:
//	  supabase_url: $SUPABASE_URL
//	  supabase_key: $SUPABASE_KEY
//
// Relative paths are resolved against the directory of the config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/haivivi/emochat/pkg/chat"
	"github.com/haivivi/emochat/pkg/chatbot"
	"github.com/haivivi/emochat/pkg/genx/modelloader"
	"github.com/haivivi/emochat/pkg/storage"
)

// Defaults.
const (
	DefaultAddr           = ":8000"
	DefaultMaxUploadBytes = 25 << 20
	DefaultEmotionTimeout = 30 * time.Second
)

// Config is the root configuration.
type Config struct {
	LogLevel string `yaml:"log_level,omitempty"`
	EnvFile  string `yaml:"env_file,omitempty"`

	Server    Server                   `yaml:"server,omitempty"`
	Emotion   Emotion                  `yaml:"emotion,omitempty"`
	Chat      chat.Config              `yaml:"chat,omitempty"`
	ModelsDir string                   `yaml:"models_dir,omitempty"`
	Providers []modelloader.ConfigFile `yaml:"providers,omitempty"`
	History   History                  `yaml:"history,omitempty"`
	Auth      Auth                     `yaml:"auth,omitempty"`
	Storage   Storage                  `yaml:"storage,omitempty"`

	// Path is the file the config was loaded from; empty for Default().
	Path string `yaml:"-"`
}

// Server configures the HTTP API.
type Server struct {
	Addr            string        `yaml:"addr,omitempty"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes,omitempty"`
	CORSOrigins     []string      `yaml:"cors_origins,omitempty"`
	ReadTimeout     time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `yaml:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty"`
}

// Emotion configures the emotion model.
type Emotion struct {
	EncoderModel   string        `yaml:"encoder_model,omitempty"`
	Weights        string        `yaml:"weights,omitempty"`
	MaxConcurrent  int           `yaml:"max_concurrent,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	IntraOpThreads int           `yaml:"intra_op_threads,omitempty"`
	InterOpThreads int           `yaml:"inter_op_threads,omitempty"`
}

// History configures the chat history store.
type History struct {
	Driver string `yaml:"driver,omitempty"` // badger (default) or memory
	Dir    string `yaml:"dir,omitempty"`
	Limit  int    `yaml:"limit,omitempty"`
}

// Auth configures credential resolution. Supabase wins when both are set.
type Auth struct {
	SupabaseURL string            `yaml:"supabase_url,omitempty"`
	SupabaseKey string            `yaml:"supabase_key,omitempty"`
	Tokens      map[string]string `yaml:"tokens,omitempty"`
}

// Enabled reports whether any resolver is configured.
func (a Auth) Enabled() bool {
	return a.SupabaseURL != "" || len(a.Tokens) > 0
}

// Storage configures the audio archive.
type Storage struct {
	Driver string            `yaml:"driver,omitempty"` // local (default), s3 or none
	Dir    string            `yaml:"dir,omitempty"`
	Bucket string            `yaml:"bucket,omitempty"`
	Prefix string            `yaml:"prefix,omitempty"`
	S3     storage.S3Options `yaml:"s3,omitempty"`
	MaxAge time.Duration     `yaml:"max_age,omitempty"`
	Suffix string            `yaml:"suffix,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: Server{
			Addr:            DefaultAddr,
			MaxUploadBytes:  DefaultMaxUploadBytes,
			CORSOrigins:     []string{"*"},
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CleanupInterval: time.Hour,
		},
		Emotion: Emotion{
			EncoderModel:  "models/whisper-tiny-encoder.onnx",
			Weights:       "models/emotion-head.msgpack",
			MaxConcurrent: runtime.NumCPU(),
			Timeout:       DefaultEmotionTimeout,
		},
		Chat:      chat.DefaultConfig(),
		ModelsDir: "models",
		History: History{
			Driver: "badger",
			Dir:    "data/history",
			Limit:  chatbot.DefaultHistoryLimit,
		},
		Storage: Storage{
			Driver: "local",
			Dir:    "audio",
			MaxAge: storage.DefaultMaxAge,
			Suffix: ".wav",
		},
	}
}

// Load reads the config file at path on top of Default(). A .env file is
// loaded first; variables already set in the environment win.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	dir := filepath.Dir(path)

	var head struct {
		EnvFile string `yaml:"env_file"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := loadEnv(dir, head.EnvFile); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Path = path
	cfg.expand()
	cfg.Resolve(dir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnv loads name (relative to dir) or, when name is empty, an optional
// .env next to the config file.
func loadEnv(dir, name string) error {
	if name == "" {
		p := filepath.Join(dir, ".env")
		if _, err := os.Stat(p); err != nil {
			return nil
		}
		name = p
	} else if !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	if err := godotenv.Load(name); err != nil {
		return fmt.Errorf("config: load env %s: %w", name, err)
	}
	return nil
}

// expand substitutes $VAR references in secret-bearing fields.
func (c *Config) expand() {
	c.Auth.SupabaseURL = modelloader.ExpandEnv(c.Auth.SupabaseURL)
	c.Auth.SupabaseKey = modelloader.ExpandEnv(c.Auth.SupabaseKey)
	for tok, user := range c.Auth.Tokens {
		if exp := modelloader.ExpandEnv(tok); exp != tok {
			delete(c.Auth.Tokens, tok)
			if exp != "" {
				c.Auth.Tokens[exp] = user
			}
		}
	}
	c.Storage.Bucket = modelloader.ExpandEnv(c.Storage.Bucket)
	c.Storage.S3.Endpoint = modelloader.ExpandEnv(c.Storage.S3.Endpoint)
	c.Storage.S3.AccessKey = modelloader.ExpandEnv(c.Storage.S3.AccessKey)
	c.Storage.S3.SecretKey = modelloader.ExpandEnv(c.Storage.S3.SecretKey)
}

// Resolve makes relative file paths absolute against dir.
func (c *Config) Resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Emotion.EncoderModel = abs(c.Emotion.EncoderModel)
	c.Emotion.Weights = abs(c.Emotion.Weights)
	c.ModelsDir = abs(c.ModelsDir)
	c.History.Dir = abs(c.History.Dir)
	c.Storage.Dir = abs(c.Storage.Dir)
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if c.Emotion.EncoderModel == "" || c.Emotion.Weights == "" {
		errs = append(errs, errors.New("emotion.encoder_model and emotion.weights are required"))
	}
	if c.Emotion.MaxConcurrent < 0 {
		errs = append(errs, errors.New("emotion.max_concurrent must not be negative"))
	}
	if err := c.Chat.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.History.Driver {
	case "memory":
	case "badger", "":
		if c.History.Dir == "" {
			errs = append(errs, errors.New("history.dir is required for the badger driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown history driver %q", c.History.Driver))
	}
	if c.History.Limit < 0 {
		errs = append(errs, errors.New("history.limit must not be negative"))
	}
	switch c.Storage.Driver {
	case "none":
	case "local", "":
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the local driver"))
		}
	case "s3":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if c.Auth.SupabaseURL != "" && c.Auth.SupabaseKey == "" {
		errs = append(errs, errors.New("auth.supabase_key is required with auth.supabase_url"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseLevel maps debug|info|warn|error to a slog level. Empty is info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
