package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Duration parses yaml values like "500ms" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Backend     BackendConfig     `yaml:"backend"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Audio       AudioConfig       `yaml:"audio"`
	Transcript  TranscriptConfig  `yaml:"transcript"`
	Questions   QuestionsConfig   `yaml:"questions"`
	Web         WebConfig         `yaml:"web"`
	Store       StoreConfig       `yaml:"store"`
}

type BackendConfig struct {
	BaseURL      string   `yaml:"base_url" env:"INTERVIEWD_BACKEND_URL"`
	PollInterval Duration `yaml:"poll_interval"`
}

type RecognitionConfig struct {
	Backend  string         `yaml:"backend"` // "deepgram" or "google"
	Deepgram DeepgramConfig `yaml:"deepgram"`
	Google   GoogleConfig   `yaml:"google"`
}

type DeepgramConfig struct {
	APIKey   string `yaml:"api_key" env:"DEEPGRAM_API_KEY"` // empty means fetch from backend
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type GoogleConfig struct {
	Credentials string `yaml:"credentials" env:"GOOGLE_APPLICATION_CREDENTIALS"` // path to service account JSON
	Language    string `yaml:"language"`
}

type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

type TranscriptConfig struct {
	FlushInterval Duration `yaml:"flush_interval"`
	LogDir        string   `yaml:"log_dir"`
}

type QuestionsConfig struct {
	AutoAdvance     bool     `yaml:"auto_advance"`
	AdvanceDebounce Duration `yaml:"advance_debounce"`
}

type WebConfig struct {
	Listen        string `yaml:"listen"`
	AdminPassword string `yaml:"admin_password" env:"INTERVIEWD_ADMIN_PASSWORD"` // empty disables login
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

func defaults() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:      "http://localhost:8000",
			PollInterval: Duration(5 * time.Second),
		},
		Recognition: RecognitionConfig{
			Backend: "deepgram",
			Deepgram: DeepgramConfig{
				Model:    "nova-2",
				Language: "en-US",
			},
			Google: GoogleConfig{
				Language: "en-US",
			},
		},
		Audio: AudioConfig{
			SampleRate:      16000,
			FramesPerBuffer: 4096,
		},
		Transcript: TranscriptConfig{
			FlushInterval: Duration(5 * time.Second),
			LogDir:        "transcripts",
		},
		Questions: QuestionsConfig{
			AutoAdvance:     true,
			AdvanceDebounce: Duration(500 * time.Millisecond),
		},
		Web: WebConfig{
			Listen: ":8080",
		},
		Store: StoreConfig{
			Path: "interviewd.db",
		},
	}
}

// Load reads the yaml file, then applies environment overrides so
// credentials can stay out of the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Recognition.Backend {
	case "deepgram", "google":
	default:
		return fmt.Errorf("unknown recognition backend %q", c.Recognition.Backend)
	}
	if c.Backend.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}
