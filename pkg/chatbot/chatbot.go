// Package chatbot wires emotion inference, history, auth and the reply
// policy into the request flow behind the HTTP API and the CLI.
//
// A chat request goes through:
//
//  1. input validation
//  2. emotion prediction from the audio
//  3. user resolution (anonymous on failure)
//  4. history lookup, reply generation
//  5. best-effort persistence of both turns and the audio
//
// Only validation and prediction errors reach the caller. Everything after
// prediction degrades instead of failing.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haivivi/emochat/pkg/auth"
	"github.com/haivivi/emochat/pkg/chat"
	"github.com/haivivi/emochat/pkg/emotion"
	"github.com/haivivi/emochat/pkg/history"
	"github.com/haivivi/emochat/pkg/storage"
)

var (
	// ErrInvalidInput is returned for empty audio or empty text.
	ErrInvalidInput = errors.New("chatbot: invalid input")

	// ErrUnauthorized is returned when an operation needs a known user.
	ErrUnauthorized = errors.New("chatbot: unauthorized")
)

// DefaultHistoryLimit is the number of stored turns fed back as context.
const DefaultHistoryLimit = 5

// Predictor infers an emotion from a WAV upload. *emotion.Service
// implements it.
type Predictor interface {
	Predict(ctx context.Context, audio []byte) (emotion.Prediction, error)
}

// Replier answers an utterance and never fails. *chat.Replier implements it.
type Replier interface {
	Reply(ctx context.Context, req chat.Request) chat.Reply
}

// Config assembles a Pipeline. Emotion and Replier are required; the rest
// is optional and the matching step is skipped when nil.
type Config struct {
	Emotion Predictor
	Replier Replier

	History history.Store
	Auth    auth.Resolver
	Archive storage.FileStore

	HistoryLimit int // DefaultHistoryLimit when zero
	Logger       *slog.Logger
	Now          func() time.Time
}

// Pipeline runs chat requests. It is safe for concurrent use.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Emotion == nil {
		return nil, errors.New("chatbot: emotion predictor is required")
	}
	if cfg.Replier == nil {
		return nil, errors.New("chatbot: replier is required")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger.With("component", "chatbot")}, nil
}

// Request is one voice turn: the raw WAV upload, the transcript produced
// by the client, and an optional credential.
type Request struct {
	Audio      []byte
	Text       string
	Credential string
}

// Response is the answer to a Request.
type Response struct {
	UserText   string    `json:"user_text" yaml:"user_text"`
	ReplyText  string    `json:"reply_text" yaml:"reply_text"`
	Emotion    string    `json:"emotion" yaml:"emotion"`
	Confidence float64   `json:"confidence" yaml:"confidence"`
	Tier       chat.Tier `json:"-" yaml:"tier"`
	UserID     string    `json:"-" yaml:"user_id,omitempty"`
}

// Chat runs one request. It returns ErrInvalidInput for empty audio or
// text, and the prediction error (*emotion.DecodeError or
// *emotion.InferenceError) when inference fails.
func (p *Pipeline) Chat(ctx context.Context, req Request) (*Response, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("%w: audio is empty", ErrInvalidInput)
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}
	p.logger.InfoContext(ctx, "processing chat", "text_len", len(text), "audio_bytes", len(req.Audio))

	pred, err := p.cfg.Emotion.Predict(ctx, req.Audio)
	if err != nil {
		return nil, err
	}
	label := string(pred.Label)

	userID := p.resolve(ctx, req.Credential)
	recent := p.recent(ctx, userID)

	reply := p.cfg.Replier.Reply(ctx, chat.Request{Text: text, Emotion: label, History: recent})

	now := p.cfg.Now()
	conf := pred.Confidence
	p.append(ctx, userID, chat.Turn{Role: chat.RoleUser, Content: text, Emotion: label, Confidence: &conf, CreatedAt: now})
	p.append(ctx, userID, chat.Turn{Role: chat.RoleAssistant, Content: reply.Text, CreatedAt: now.Add(time.Microsecond)})
	p.archive(ctx, userID, now, req.Audio)

	p.logger.InfoContext(ctx, "chat completed",
		"emotion", label,
		"confidence", pred.Confidence,
		"tier", reply.Tier,
	)
	return &Response{
		UserText:   text,
		ReplyText:  reply.Text,
		Emotion:    label,
		Confidence: pred.Confidence,
		Tier:       reply.Tier,
		UserID:     userID,
	}, nil
}

// EmotionStats returns the emotion distribution of the credential's user
// for the UTC day containing day.
func (p *Pipeline) EmotionStats(ctx context.Context, credential string, day time.Time) (map[string]int, error) {
	if p.cfg.Auth == nil || p.cfg.History == nil {
		return nil, fmt.Errorf("%w: no user store configured", ErrUnauthorized)
	}
	userID, err := p.cfg.Auth.Resolve(ctx, credential)
	if err != nil {
		p.logger.WarnContext(ctx, "auth failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return p.cfg.History.EmotionStats(ctx, userID, day)
}

// resolve returns "" for anonymous requests.
func (p *Pipeline) resolve(ctx context.Context, credential string) string {
	if p.cfg.Auth == nil || strings.TrimSpace(credential) == "" {
		return ""
	}
	userID, err := p.cfg.Auth.Resolve(ctx, credential)
	if err != nil {
		p.logger.WarnContext(ctx, "auth failed", "error", err)
		return ""
	}
	return userID
}

func (p *Pipeline) recent(ctx context.Context, userID string) []chat.Turn {
	if userID == "" || p.cfg.History == nil {
		return nil
	}
	turns, err := p.cfg.History.Recent(ctx, userID, p.cfg.HistoryLimit)
	if err != nil {
		p.logger.WarnContext(ctx, "fetch recent messages", "user", userID, "error", err)
		return nil
	}
	return turns
}

func (p *Pipeline) append(ctx context.Context, userID string, turn chat.Turn) {
	if userID == "" || p.cfg.History == nil {
		return
	}
	if err := p.cfg.History.Append(ctx, userID, turn); err != nil {
		p.logger.ErrorContext(ctx, "save message", "user", userID, "role", turn.Role, "error", err)
	}
}

func (p *Pipeline) archive(ctx context.Context, userID string, now time.Time, audio []byte) {
	if userID == "" || p.cfg.Archive == nil {
		return
	}
	path, err := storage.Archive(ctx, p.cfg.Archive, now, audio)
	if err != nil {
		p.logger.WarnContext(ctx, "archive audio", "error", err)
		return
	}
	p.logger.DebugContext(ctx, "audio archived", "user", userID, "path", path)
}
