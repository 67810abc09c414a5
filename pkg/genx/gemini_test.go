package genx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func newGeminiGenerator(t *testing.T, status int, body string, gotBody *string) *GeminiGenerator {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if gotBody != nil {
			b, _ := io.ReadAll(r.Body)
			*gotBody = string(b)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL},
	})
	if err != nil {
		t.Fatalf("genai.NewClient: %v", err)
	}
	return &GeminiGenerator{Client: client, Model: "gemini-2.0-flash"}
}

func geminiResponse(text, finish string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{{
			"content":      map[string]any{"role": "model", "parts": []map[string]any{{"text": text}}},
			"finishReason": finish,
		}},
		"usageMetadata": map[string]any{"promptTokenCount": 8, "candidatesTokenCount": 4},
	})
	return string(b)
}

func TestGeminiGenerate(t *testing.T) {
	var body string
	g := newGeminiGenerator(t, http.StatusOK, geminiResponse("Chào bạn.", "STOP"), &body)

	res, err := g.Generate(context.Background(), "gemini/flash", testContext())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "Chào bạn." || res.Status != StatusDone {
		t.Errorf("result = %+v", res)
	}
	if res.Usage.PromptTokenCount != 8 || res.Usage.GeneratedTokenCount != 4 {
		t.Errorf("usage = %+v", res.Usage)
	}
	for _, want := range []string{"systemInstruction", "Trả lời ngắn gọn.", "maxOutputTokens"} {
		if !strings.Contains(body, want) {
			t.Errorf("request body missing %q: %s", want, body)
		}
	}
	if strings.Contains(body, "topK") {
		t.Errorf("unset topK must not be sent: %s", body)
	}
}

func TestGeminiGenerateFinishReasons(t *testing.T) {
	tests := []struct {
		name   string
		finish string
		status Status
		err    bool
	}{
		{"max tokens", "MAX_TOKENS", StatusTruncated, false},
		{"safety", "SAFETY", StatusBlocked, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGeminiGenerator(t, http.StatusOK, geminiResponse("x", tt.finish), nil)
			res, err := g.Generate(context.Background(), "", testContext())
			if tt.err {
				var st *State
				if !errors.As(err, &st) || st.Status() != tt.status {
					t.Fatalf("err = %v, want state %v", err, tt.status)
				}
				return
			}
			if err != nil || res.Status != tt.status {
				t.Fatalf("res = %+v, err = %v", res, err)
			}
		})
	}
}

func TestGeminiGenerateNoCandidates(t *testing.T) {
	g := newGeminiGenerator(t, http.StatusOK, `{"candidates": []}`, nil)
	_, err := g.Generate(context.Background(), "", testContext())
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}
}

func TestGeminiGenerateHTTPError(t *testing.T) {
	g := newGeminiGenerator(t, http.StatusBadRequest, `{"error": {"code": 400, "message": "bad request", "status": "INVALID_ARGUMENT"}}`, nil)
	_, err := g.Generate(context.Background(), "", testContext())
	var st *State
	if !errors.As(err, &st) || st.Status() != StatusError {
		t.Fatalf("err = %v, want error state", err)
	}
}
