// Package httpapi serves the chatbot over HTTP.
//
//	POST /chat            multipart: file (audio/wav), text; optional Authorization
//	GET  /emotion-stats   ?date_param=YYYY-MM-DD; Authorization required
//	GET  /healthz
//	GET  /
//
// Errors are JSON objects of the form {"detail": "..."}.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/haivivi/emochat/pkg/chatbot"
	"github.com/haivivi/emochat/pkg/emotion"
)

// Chatbot is the service behind the API. *chatbot.Pipeline implements it.
type Chatbot interface {
	Chat(ctx context.Context, req chatbot.Request) (*chatbot.Response, error)
	EmotionStats(ctx context.Context, credential string, day time.Time) (map[string]int, error)
}

// Options configures a Server.
type Options struct {
	Name           string
	Version        string
	MaxUploadBytes int64
	CORSOrigins    []string
	Logger         *slog.Logger
}

// formOverhead is the multipart body allowance on top of the audio size.
const formOverhead = 1 << 20

// Server routes HTTP requests to a Chatbot.
type Server struct {
	bot     Chatbot
	opts    Options
	logger  *slog.Logger
	mux     *http.ServeMux
	handler http.Handler
}

// NewServer returns a Server with routes and middleware installed.
func NewServer(bot Chatbot, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}
	if opts.Name == "" {
		opts.Name = "emochat"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		bot:    bot,
		opts:   opts,
		logger: logger.With("component", "httpapi"),
		mux:    http.NewServeMux(),
	}
	s.routes()
	s.handler = s.cors(s.logRequests(s.mux))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /emotion-stats", s.handleEmotionStats)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"name": s.opts.Name, "version": s.opts.Version})
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || r.ContentLength > s.opts.MaxUploadBytes+formOverhead {
			writeError(w, http.StatusBadRequest, s.tooLarge())
			return
		}
		writeError(w, http.StatusBadRequest, "Yêu cầu multipart không hợp lệ")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Thiếu file audio")
		return
	}
	defer file.Close()

	if header.Size > s.opts.MaxUploadBytes {
		writeError(w, http.StatusBadRequest, s.tooLarge())
		return
	}
	switch header.Header.Get("Content-Type") {
	case "audio/wav", "audio/x-wav":
	default:
		writeError(w, http.StatusBadRequest, "Chỉ hỗ trợ định dạng WAV")
		return
	}

	audio, err := io.ReadAll(io.LimitReader(file, s.opts.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Không đọc được file audio")
		return
	}
	if int64(len(audio)) > s.opts.MaxUploadBytes {
		writeError(w, http.StatusBadRequest, s.tooLarge())
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "Audio file is empty")
		return
	}
	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		writeError(w, http.StatusBadRequest, "Thiếu 'text' từ frontend STT")
		return
	}

	resp, err := s.bot.Chat(ctx, chatbot.Request{
		Audio:      audio,
		Text:       text,
		Credential: r.Header.Get("Authorization"),
	})
	if err != nil {
		s.chatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) chatError(w http.ResponseWriter, r *http.Request, err error) {
	var decodeErr *emotion.DecodeError
	switch {
	case errors.Is(err, chatbot.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &decodeErr):
		s.logger.InfoContext(r.Context(), "undecodable audio", "error", err)
		writeError(w, http.StatusBadRequest, "Không đọc được file audio")
	default:
		s.logger.ErrorContext(r.Context(), "chat failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) handleEmotionStats(w http.ResponseWriter, r *http.Request) {
	credential := r.Header.Get("Authorization")
	if strings.TrimSpace(credential) == "" {
		writeError(w, http.StatusUnauthorized, "Authorization header required")
		return
	}
	day, err := time.Parse(time.DateOnly, r.URL.Query().Get("date_param"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format, use YYYY-MM-DD")
		return
	}
	stats, err := s.bot.EmotionStats(r.Context(), credential, day)
	if err != nil {
		if errors.Is(err, chatbot.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		s.logger.ErrorContext(r.Context(), "emotion stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) tooLarge() string {
	return fmt.Sprintf("File quá lớn (max %.0fMB)", float64(s.opts.MaxUploadBytes)/(1<<20))
}

// cors answers preflight requests and sets the allow headers for listed
// origins. "*" allows any origin.
func (s *Server) cors(next http.Handler) http.Handler {
	wildcard := slices.Contains(s.opts.CORSOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (wildcard || slices.Contains(s.opts.CORSOrigins, origin)) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.DebugContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
