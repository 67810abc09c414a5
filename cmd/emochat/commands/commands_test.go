package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haivivi/emochat/pkg/chat"
	"github.com/haivivi/emochat/pkg/history"
)

// setupTestEnv points HOME at a temp dir and writes a config file there
// with the given extra YAML appended.
func setupTestEnv(t *testing.T, extra string) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("HOME", dir)
	path = filepath.Join(dir, "emochat.yaml")
	body := "log_level: error\nhistory:\n  driver: memory\nstorage:\n  driver: none\n" + extra
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, path
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	globalConfig = nil
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	var outBuf, errBuf bytes.Buffer
	outBuf.ReadFrom(rOut)
	errBuf.ReadFrom(rErr)

	stdout = outBuf.String()
	stderr = errBuf.String()
	if err != nil {
		exitCode = 1
		if stderr == "" {
			stderr = err.Error()
		}
	}

	resetFlags(rootCmd)
	globalConfig = nil
	return
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Changed = false
		f.Value.Set(f.DefValue)
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestVersion(t *testing.T) {
	setupTestEnv(t, "")

	stdout, _, code := runCmd(t, "version")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "emochat") {
		t.Fatalf("expected 'emochat', got: %s", stdout)
	}
}

func TestVersionJSON(t *testing.T) {
	setupTestEnv(t, "")

	stdout, _, code := runCmd(t, "version", "--format", "json")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, `"version"`) {
		t.Fatalf("expected JSON, got: %s", stdout)
	}
}

func TestBadFormat(t *testing.T) {
	_, path := setupTestEnv(t, "")

	_, stderr, code := runCmd(t, "models", "--config", path, "--format", "xml")
	if code == 0 {
		t.Fatal("expected non-zero exit")
	}
	if !strings.Contains(stderr, "unsupported output format") {
		t.Fatalf("stderr = %s", stderr)
	}
}

func TestMissingConfig(t *testing.T) {
	dir, _ := setupTestEnv(t, "")

	_, _, code := runCmd(t, "models", "--config", filepath.Join(dir, "nope.yaml"))
	if code == 0 {
		t.Fatal("expected non-zero exit for a missing --config")
	}
}

func TestModels(t *testing.T) {
	_, path := setupTestEnv(t, `
chat:
  primary: groq/llama
  fallback: gemini/flash
  fallback_enabled: true
providers:
  - kind: groq
    api_key: test-key
    models:
      - name: groq/llama
        model: llama-3.1-8b-instant
  - kind: openai
    api_key: $EMOCHAT_TEST_UNSET_KEY
    models:
      - name: openai/gpt
        model: gpt-4o-mini
`)
	stdout, stderr, code := runCmd(t, "models", "--config", path, "--format", "json")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	var res modelsResult
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if len(res.Models) != 1 || res.Models[0] != "groq/llama" {
		t.Errorf("models = %v, want [groq/llama]", res.Models)
	}
	if res.Primary != "groq/llama" || res.Fallback != "gemini/flash" {
		t.Errorf("res = %+v", res)
	}
}

func TestReplyDegradesWithoutProviders(t *testing.T) {
	_, path := setupTestEnv(t, "")

	stdout, stderr, code := runCmd(t, "reply", "--config", path, "--text", "hôm nay mệt quá", "--emotion", "sad", "--format", "json")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	var res struct {
		Text string `json:"text"`
		Tier string `json:"tier"`
	}
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	if res.Text != chat.DefaultDegraded || res.Tier != "degraded" {
		t.Errorf("reply = %+v", res)
	}
}

func TestReplyFromFile(t *testing.T) {
	dir, path := setupTestEnv(t, "")
	req := filepath.Join(dir, "req.yaml")
	os.WriteFile(req, []byte(`
text: chào bạn
emotion: happy
history:
  - role: user
    content: alo
  - role: assistant
    content: chào
`), 0o644)

	stdout, stderr, code := runCmd(t, "reply", "--config", path, "-f", req)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "degraded") {
		t.Errorf("stdout = %s", stdout)
	}
}

func TestReplyRequiresText(t *testing.T) {
	_, path := setupTestEnv(t, "")

	_, stderr, code := runCmd(t, "reply", "--config", path)
	if code == 0 {
		t.Fatal("expected non-zero exit")
	}
	if !strings.Contains(stderr, "--text") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestPredictMissingFile(t *testing.T) {
	dir, path := setupTestEnv(t, "")

	_, stderr, code := runCmd(t, "predict", "--config", path, filepath.Join(dir, "missing.wav"))
	if code == 0 {
		t.Fatal("expected non-zero exit")
	}
	if !strings.Contains(stderr, "read audio") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestStats(t *testing.T) {
	dir, _ := setupTestEnv(t, "")
	dbDir := filepath.Join(dir, "history")

	store, err := history.OpenBadger(history.BadgerOptions{Dir: dbDir})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, emo := range []string{"sad", "sad", "happy"} {
		turn := chat.Turn{Role: chat.RoleUser, Content: "x", Emotion: emo, CreatedAt: day.Add(time.Duration(i) * time.Minute)}
		if err := store.Append(ctx, "u1", turn); err != nil {
			t.Fatal(err)
		}
	}
	store.Append(ctx, "u1", chat.Turn{Role: chat.RoleUser, Content: "x", Emotion: "angry", CreatedAt: day.AddDate(0, 0, 1)})
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "badger.yaml")
	os.WriteFile(path, []byte("history:\n  driver: badger\n  dir: history\nstorage:\n  driver: none\n"), 0o644)

	stdout, stderr, code := runCmd(t, "stats", "--config", path, "--user", "u1", "--date", "2026-03-14", "--format", "json")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	var res statsResult
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
	want := map[string]int{"happy": 1, "neutral": 0, "sad": 2, "angry": 0}
	for k, v := range want {
		if res.Counts[k] != v {
			t.Errorf("counts[%s] = %d, want %d", k, res.Counts[k], v)
		}
	}
	if res.Date != "2026-03-14" {
		t.Errorf("date = %q", res.Date)
	}
}

func TestStatsCard(t *testing.T) {
	_, path := setupTestEnv(t, "")

	stdout, stderr, code := runCmd(t, "stats", "--config", path, "--user", "u1", "--date", "2026-03-14", "--format", "card")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	for _, want := range []string{"happy", "neutral", "sad", "angry", "total"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("card missing %q:\n%s", want, stdout)
		}
	}
}

func TestStatsErrors(t *testing.T) {
	_, path := setupTestEnv(t, "")

	if _, _, code := runCmd(t, "stats", "--config", path); code == 0 {
		t.Error("expected failure without --user")
	}
	_, stderr, code := runCmd(t, "stats", "--config", path, "--user", "u1", "--date", "14/03/2026")
	if code == 0 || !strings.Contains(stderr, "YYYY-MM-DD") {
		t.Errorf("bad date: code %d, stderr %s", code, stderr)
	}
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	audio := filepath.Join(dir, "audio", "utterances")
	if err := os.MkdirAll(audio, 0o755); err != nil {
		t.Fatal(err)
	}
	old := filepath.Join(audio, "old.wav")
	fresh := filepath.Join(audio, "fresh.wav")
	other := filepath.Join(audio, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		os.WriteFile(p, []byte("x"), 0o644)
	}
	stale := time.Now().Add(-48 * time.Hour)
	os.Chtimes(old, stale, stale)
	os.Chtimes(other, stale, stale)

	path := filepath.Join(dir, "emochat.yaml")
	os.WriteFile(path, []byte("history:\n  driver: memory\nstorage:\n  driver: local\n  dir: audio\n  max_age: 24h\n"), 0o644)

	stdout, stderr, code := runCmd(t, "cleanup", "--config", path)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "deleted 1") {
		t.Errorf("stdout = %s", stdout)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("stale recording not deleted")
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s: %v", filepath.Base(p), err)
		}
	}
}

func TestCleanupDisabled(t *testing.T) {
	_, path := setupTestEnv(t, "")

	_, stderr, code := runCmd(t, "cleanup", "--config", path)
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stderr, "disabled") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestResultCards(t *testing.T) {
	card := predictResult{File: "a.wav", Emotion: "sad", Confidence: 0.3, Elapsed: "1ms"}.Card()
	if !card.Rows[1].Warn {
		t.Error("low confidence should warn")
	}
	r := replyResult{Text: "x", Tier: chat.TierFallback}.Card()
	if r.Rows[1].Value != "fallback" || !r.Rows[1].Warn {
		t.Errorf("tier row = %+v", r.Rows[1])
	}
	if r.Rows[2].Value != "-" {
		t.Errorf("model row = %+v", r.Rows[2])
	}
}
