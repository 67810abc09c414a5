package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/haivivi/emochat/cmd/emochat/internal/config"
	"github.com/haivivi/emochat/pkg/auth"
	"github.com/haivivi/emochat/pkg/chat"
	"github.com/haivivi/emochat/pkg/chatbot"
	"github.com/haivivi/emochat/pkg/emotion"
	"github.com/haivivi/emochat/pkg/emotion/whisper"
	"github.com/haivivi/emochat/pkg/genx/generators"
	"github.com/haivivi/emochat/pkg/genx/modelloader"
	"github.com/haivivi/emochat/pkg/history"
	"github.com/haivivi/emochat/pkg/onnx"
	"github.com/haivivi/emochat/pkg/storage"
)

// services holds the components opened for one command. Each open* method
// is idempotent; Close releases everything opened so far.
type services struct {
	cfg    *config.Config
	logger *slog.Logger

	env     *onnx.Env
	encoder *whisper.Encoder
	emotion *emotion.Service

	mux     *generators.Mux
	models  []string
	replier *chat.Replier

	history history.Store
	archive storage.FileStore
	auth    auth.Resolver
}

func newServices(cfg *config.Config) *services {
	return &services{cfg: cfg, logger: slog.Default()}
}

func (s *services) Close() error {
	var errs []error
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	if s.encoder != nil {
		errs = append(errs, s.encoder.Close())
	}
	if s.env != nil {
		errs = append(errs, s.env.Close())
	}
	return errors.Join(errs...)
}

func (s *services) openEmotion() (*emotion.Service, error) {
	if s.emotion != nil {
		return s.emotion, nil
	}
	ec := s.cfg.Emotion

	w, err := emotion.LoadWeights(ec.Weights)
	if err != nil {
		return nil, err
	}
	if s.env == nil {
		env, err := onnx.NewEnv("emochat")
		if err != nil {
			return nil, &emotion.ModelLoadError{Path: ec.EncoderModel, Err: err}
		}
		s.env = env
	}
	enc, err := whisper.Load(s.env, ec.EncoderModel, onnx.SessionOptions{
		IntraOpThreads: ec.IntraOpThreads,
		InterOpThreads: ec.InterOpThreads,
	}, whisper.WithHiddenSize(w.HiddenSize()))
	if err != nil {
		return nil, err
	}
	s.encoder = enc

	clf, err := emotion.NewClassifier(enc, w)
	if err != nil {
		return nil, err
	}
	s.emotion = emotion.NewService(emotion.NewPreprocessor(), clf, emotion.ServiceConfig{
		MaxConcurrent: ec.MaxConcurrent,
		Timeout:       ec.Timeout,
		Logger:        s.logger,
	})
	s.logger.Info("emotion model loaded", "encoder", ec.EncoderModel, "weights", ec.Weights, "labels", clf.Labels())
	return s.emotion, nil
}

// openModels registers generators from the models directory and the inline
// providers. A missing models directory is not an error.
func (s *services) openModels(ctx context.Context) (*generators.Mux, error) {
	if s.mux != nil {
		return s.mux, nil
	}
	mux := generators.NewMux()
	loader := &modelloader.Loader{Mux: mux, Logger: s.logger, Verbose: verbose}

	var names []string
	if dir := s.cfg.ModelsDir; dir != "" {
		if _, err := os.Stat(dir); err == nil {
			n, err := loader.LoadFromDir(ctx, dir)
			if err != nil {
				return nil, fmt.Errorf("load models from %s: %w", dir, err)
			}
			names = append(names, n...)
		}
	}
	for _, p := range s.cfg.Providers {
		n, err := loader.Register(ctx, p)
		if errors.Is(err, modelloader.ErrMissingCredential) {
			s.logger.Warn("skipping provider", "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		names = append(names, n...)
	}
	s.mux, s.models = mux, names
	return mux, nil
}

func (s *services) openReplier(ctx context.Context) (*chat.Replier, error) {
	if s.replier != nil {
		return s.replier, nil
	}
	mux, err := s.openModels(ctx)
	if err != nil {
		return nil, err
	}
	cc := s.cfg.Chat
	cc.Logger = s.logger
	if !mux.Has(cc.Primary) {
		s.logger.Warn("primary model not registered; replies will degrade", "model", cc.Primary)
	}
	if cc.FallbackEnabled && !mux.Has(cc.Fallback) {
		s.logger.Warn("fallback model not registered", "model", cc.Fallback)
	}
	r, err := chat.NewReplier(mux, cc)
	if err != nil {
		return nil, err
	}
	s.replier = r
	return r, nil
}

func (s *services) openHistory() (history.Store, error) {
	if s.history != nil {
		return s.history, nil
	}
	hc := s.cfg.History
	switch hc.Driver {
	case "memory":
		s.history = history.NewMemory()
	default:
		b, err := history.OpenBadger(history.BadgerOptions{Dir: hc.Dir, Logger: s.logger})
		if err != nil {
			return nil, err
		}
		s.history = b
	}
	return s.history, nil
}

// openArchive returns nil when archiving is disabled.
func (s *services) openArchive() (storage.FileStore, error) {
	if s.archive != nil {
		return s.archive, nil
	}
	sc := s.cfg.Storage
	switch sc.Driver {
	case "none":
		return nil, nil
	case "s3":
		client := storage.NewS3Client(sc.S3)
		s.archive = storage.NewS3(client, sc.Bucket, sc.Prefix)
	default:
		l, err := storage.NewLocal(sc.Dir)
		if err != nil {
			return nil, err
		}
		s.archive = l
	}
	return s.archive, nil
}

// openAuth returns nil when no resolver is configured; every caller is
// then anonymous.
func (s *services) openAuth() auth.Resolver {
	if s.auth != nil {
		return s.auth
	}
	ac := s.cfg.Auth
	switch {
	case ac.SupabaseURL != "":
		s.auth = auth.NewSupabase(ac.SupabaseURL, ac.SupabaseKey)
	case len(ac.Tokens) > 0:
		s.auth = auth.Static(ac.Tokens)
	}
	return s.auth
}

// openPipeline opens every component and assembles the chat pipeline.
func (s *services) openPipeline(ctx context.Context) (*chatbot.Pipeline, error) {
	pred, err := s.openEmotion()
	if err != nil {
		return nil, err
	}
	replier, err := s.openReplier(ctx)
	if err != nil {
		return nil, err
	}
	cfg := chatbot.Config{
		Emotion:      pred,
		Replier:      replier,
		HistoryLimit: s.cfg.History.Limit,
		Logger:       s.logger,
	}
	if resolver := s.openAuth(); resolver != nil {
		store, err := s.openHistory()
		if err != nil {
			return nil, err
		}
		cfg.Auth, cfg.History = resolver, store
		archive, err := s.openArchive()
		if err != nil {
			return nil, err
		}
		cfg.Archive = archive
	} else {
		s.logger.Warn("no auth configured; every request is anonymous")
	}
	return chatbot.New(cfg)
}
