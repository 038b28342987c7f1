package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.PollInterval.Std() != 5*time.Second {
		t.Errorf("poll_interval = %v, want 5s", cfg.Backend.PollInterval.Std())
	}
	if cfg.Questions.AdvanceDebounce.Std() != 500*time.Millisecond {
		t.Errorf("advance_debounce = %v, want 500ms", cfg.Questions.AdvanceDebounce.Std())
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.FramesPerBuffer != 4096 {
		t.Errorf("audio defaults = %+v", cfg.Audio)
	}
	if cfg.Recognition.Backend != "deepgram" {
		t.Errorf("recognition backend = %q", cfg.Recognition.Backend)
	}
	if !cfg.Questions.AutoAdvance {
		t.Error("auto_advance default should be on")
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
backend:
  base_url: https://pmf.example.com
  poll_interval: 10s
recognition:
  backend: google
  google:
    language: de-DE
questions:
  auto_advance: false
transcript:
  flush_interval: 2s
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.BaseURL != "https://pmf.example.com" {
		t.Errorf("base_url = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.PollInterval.Std() != 10*time.Second {
		t.Errorf("poll_interval = %v", cfg.Backend.PollInterval.Std())
	}
	if cfg.Recognition.Backend != "google" || cfg.Recognition.Google.Language != "de-DE" {
		t.Errorf("recognition = %+v", cfg.Recognition)
	}
	if cfg.Questions.AutoAdvance {
		t.Error("auto_advance override lost")
	}
	if cfg.Transcript.FlushInterval.Std() != 2*time.Second {
		t.Errorf("flush_interval = %v", cfg.Transcript.FlushInterval.Std())
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "env-key")
	t.Setenv("INTERVIEWD_BACKEND_URL", "http://env.example.com")

	cfg, err := Load(writeConfig(t, `
backend:
  base_url: http://file.example.com
recognition:
  deepgram:
    api_key: file-key
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Recognition.Deepgram.APIKey != "env-key" {
		t.Errorf("api_key = %q, want env override", cfg.Recognition.Deepgram.APIKey)
	}
	if cfg.Backend.BaseURL != "http://env.example.com" {
		t.Errorf("base_url = %q, want env override", cfg.Backend.BaseURL)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	if _, err := Load(writeConfig(t, "recognition:\n  backend: whisper\n")); err == nil {
		t.Error("unknown recognition backend accepted")
	}
	if _, err := Load(writeConfig(t, "backend:\n  poll_interval: -1s\n")); err == nil {
		t.Error("negative poll interval accepted")
	}
	if _, err := Load(writeConfig(t, "backend:\n  poll_interval: soon\n")); err == nil {
		t.Error("unparseable duration accepted")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestHotConfigReload(t *testing.T) {
	path := writeConfig(t, "backend:\n  base_url: http://one.example.com\n")
	hc, err := NewHotConfig(path)
	if err != nil {
		t.Fatalf("NewHotConfig: %v", err)
	}

	var reloaded *Config
	hc.OnReload(func(c *Config) { reloaded = c })

	if err := os.WriteFile(path, []byte("backend:\n  base_url: http://two.example.com\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	hc.reload()

	if got := hc.Get().Backend.BaseURL; got != "http://two.example.com" {
		t.Errorf("BaseURL after reload = %q", got)
	}
	if reloaded == nil || reloaded.Backend.BaseURL != "http://two.example.com" {
		t.Error("reload subscriber not called with new config")
	}
}

func TestHotConfigReloadKeepsOldOnError(t *testing.T) {
	path := writeConfig(t, "backend:\n  base_url: http://one.example.com\n")
	hc, err := NewHotConfig(path)
	if err != nil {
		t.Fatalf("NewHotConfig: %v", err)
	}

	if err := os.WriteFile(path, []byte(": not yaml ["), 0o644); err != nil {
		t.Fatal(err)
	}
	hc.reload()

	if got := hc.Get().Backend.BaseURL; !strings.Contains(got, "one.example.com") {
		t.Errorf("broken reload replaced config: %q", got)
	}
}
