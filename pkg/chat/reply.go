package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/haivivi/emochat/pkg/genx"
)

// DefaultDegraded is the canned reply returned when no provider answers.
const DefaultDegraded = "Hệ thống đang bận chút xíu."

// ErrEmptyReply is reported when a provider answers with blank text.
var ErrEmptyReply = errors.New("chat: empty reply")

// Tier identifies which stage of the reply policy produced a reply.
type Tier int

const (
	TierPrimary Tier = iota
	TierFallback
	TierDegraded
)

func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierFallback:
		return "fallback"
	case TierDegraded:
		return "degraded"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ProviderError records a failed attempt of one tier.
type ProviderError struct {
	Tier  Tier
	Model string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("chat: %s model %q: %v", e.Tier, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Reply is the outcome of Replier.Reply. Text is never empty.
type Reply struct {
	Text  string     `json:"text"`
	Tier  Tier       `json:"tier"`
	Model string     `json:"model,omitempty"`
	Usage genx.Usage `json:"-"`
}

// Request is one utterance to answer.
type Request struct {
	Text    string
	Emotion string
	History []Turn
}

// Config controls the reply policy.
type Config struct {
	// Primary is the generator name of the primary tier.
	Primary string `yaml:"primary"`
	// Fallback is the generator name of the fallback tier.
	Fallback string `yaml:"fallback,omitempty"`
	// FallbackEnabled turns the fallback tier on. Without it a primary
	// failure goes straight to the degraded reply. Off unless configured.
	FallbackEnabled bool `yaml:"fallback_enabled,omitempty"`

	Temperature float32       `yaml:"temperature,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"` // per attempt; 0 disables

	// MaxConcurrent bounds in-flight provider calls; 0 means unbounded.
	MaxConcurrent int `yaml:"max_concurrent,omitempty"`

	Prompts  Prompts `yaml:"prompts,omitempty"`
	Degraded string  `yaml:"degraded,omitempty"`

	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns the settings the chatbot ships with.
func DefaultConfig() Config {
	return Config{
		Primary:         "groq/llama-3.1-8b",
		Fallback:        "gemini/flash",
		FallbackEnabled: false,
		Temperature:     0.7,
		MaxTokens:       500,
		Timeout:         15 * time.Second,
		MaxConcurrent:   8,
		Prompts:         DefaultPrompts(),
		Degraded:        DefaultDegraded,
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Primary == "" {
		return errors.New("chat: primary model is required")
	}
	if c.FallbackEnabled && c.Fallback == "" {
		return errors.New("chat: fallback enabled without a fallback model")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("chat: temperature %v out of range [0, 2]", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("chat: negative max tokens %d", c.MaxTokens)
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("chat: negative max concurrent %d", c.MaxConcurrent)
	}
	if c.Degraded != "" && strings.TrimSpace(c.Degraded) == "" {
		return errors.New("chat: degraded reply is blank")
	}
	return nil
}

// Replier answers utterances through a primary model, an optional fallback
// model, and finally a fixed degraded reply. It is safe for concurrent use.
type Replier struct {
	gen    genx.Generator
	cfg    Config
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewReplier creates a Replier that resolves model names through gen.
func NewReplier(gen genx.Generator, cfg Config) (*Replier, error) {
	if gen == nil {
		return nil, errors.New("chat: nil generator")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Degraded = strings.TrimSpace(cfg.Degraded)
	if cfg.Degraded == "" {
		cfg.Degraded = DefaultDegraded
	}
	cfg.Prompts = cfg.Prompts.withDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Replier{
		gen:    gen,
		cfg:    cfg,
		logger: logger.With("component", "chat.replier"),
	}
	if cfg.MaxConcurrent > 0 {
		r.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return r, nil
}

// Config returns the effective configuration.
func (r *Replier) Config() Config {
	return r.cfg
}

// Reply answers req. It never fails: provider errors, blank answers and
// timeouts move the request to the next tier, and the degraded tier always
// yields the configured canned text.
func (r *Replier) Reply(ctx context.Context, req Request) Reply {
	tier := TierPrimary
	for {
		switch tier {
		case TierPrimary:
			mcb := contextBuilder(req.History, req.Text, req.Emotion, r.cfg.Prompts)
			res, err := r.attempt(ctx, tier, r.cfg.Primary, mcb)
			if err == nil {
				return Reply{Text: res.Text, Tier: tier, Model: r.cfg.Primary, Usage: res.Usage}
			}
			r.logger.WarnContext(ctx, "primary reply failed", "model", r.cfg.Primary, "error", err)
			if r.cfg.FallbackEnabled {
				tier = TierFallback
			} else {
				tier = TierDegraded
			}
		case TierFallback:
			mcb := fallbackBuilder(req.Text, req.Emotion, r.cfg.Prompts)
			res, err := r.attempt(ctx, tier, r.cfg.Fallback, mcb)
			if err == nil {
				return Reply{Text: res.Text, Tier: tier, Model: r.cfg.Fallback, Usage: res.Usage}
			}
			r.logger.WarnContext(ctx, "fallback reply failed", "model", r.cfg.Fallback, "error", err)
			tier = TierDegraded
		default:
			r.logger.WarnContext(ctx, "returning degraded reply")
			return Reply{Text: r.cfg.Degraded, Tier: TierDegraded}
		}
	}
}

// attempt runs one provider call under the concurrency limit and the
// per-attempt timeout. Blank text and provider panics are errors.
func (r *Replier) attempt(ctx context.Context, tier Tier, model string, mcb *genx.ModelContextBuilder) (res *genx.Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			buf := make([]byte, 64<<10)
			buf = buf[:runtime.Stack(buf, false)]
			r.logger.ErrorContext(ctx, "panic in generator", "tier", tier, "model", model, "panic", v, "stack", string(buf))
			res, err = nil, &ProviderError{Tier: tier, Model: model, Err: fmt.Errorf("panic: %v", v)}
		}
	}()

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return nil, &ProviderError{Tier: tier, Model: model, Err: err}
		}
		defer r.sem.Release(1)
	}

	mcb.Params = &genx.ModelParams{
		Temperature: r.cfg.Temperature,
		MaxTokens:   r.cfg.MaxTokens,
	}
	start := time.Now()
	res, err = r.gen.Generate(ctx, model, mcb.Build())
	if err != nil {
		return nil, &ProviderError{Tier: tier, Model: model, Err: err}
	}
	if res == nil {
		return nil, &ProviderError{Tier: tier, Model: model, Err: ErrEmptyReply}
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return nil, &ProviderError{Tier: tier, Model: model, Err: ErrEmptyReply}
	}
	r.logger.DebugContext(ctx, "reply generated",
		"tier", tier,
		"model", model,
		"status", res.Status,
		"elapsed", time.Since(start),
	)
	out := *res
	out.Text = text
	return &out, nil
}
