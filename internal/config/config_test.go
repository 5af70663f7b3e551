package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"SIFT_CONFIG", "SIFT_API_KEY", "MISTRAL_API_KEY", "OPENAI_API_KEY",
	"SIFT_BASE_URL", "SIFT_MODEL", "SIFT_TEMPERATURE", "SIFT_MAX_TOKENS",
	"SIFT_REQUEST_TIMEOUT", "SIFT_PROMPT_DIR", "SIFT_BUDGET", "SIFT_WORKERS",
	"SIFT_ATTEMPTS", "SIFT_TIMEOUT", "SIFT_FORMAT", "SIFT_OUT_DIR", "LOG_LEVEL",
	"SIFT_STATUS_ADDR", "DATABASE_URL", "NATS_URL", "NATS_TOKEN",
	"SLACK_BOT_TOKEN", "SLACK_CHANNEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	// Keep a stray .env in the working directory out of the test.
	chdir(t, t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Budget != 31000 {
		t.Errorf("expected default budget 31000, got %d", cfg.Budget)
	}
	if cfg.Workers != 5 {
		t.Errorf("expected default workers 5, got %d", cfg.Workers)
	}
	if cfg.Attempts != 3 {
		t.Errorf("expected default attempts 3, got %d", cfg.Attempts)
	}
	if cfg.BackoffBase != 2*time.Second || cfg.BackoffMax != time.Minute {
		t.Errorf("unexpected backoff defaults %s/%s", cfg.BackoffBase, cfg.BackoffMax)
	}
	if cfg.RequestTimeout != time.Minute {
		t.Errorf("expected default request timeout 60s, got %s", cfg.RequestTimeout)
	}
	if cfg.Temperature != 0.7 {
		t.Errorf("expected default temperature 0.7, got %v", cfg.Temperature)
	}
	if cfg.MaxTokens != 16000 {
		t.Errorf("expected default max tokens 16000, got %d", cfg.MaxTokens)
	}
	if cfg.Model != "mistral-large-latest" {
		t.Errorf("expected default model, got %s", cfg.Model)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.APIKey != "" || cfg.NatsURL != "" || cfg.DatabaseURL != "" {
		t.Error("expected optional integrations to be unset")
	}
}

func TestLoad_APIKeyPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "openai")

	cfg, _ := Load("")
	if cfg.APIKey != "openai" {
		t.Errorf("expected OPENAI_API_KEY fallback, got %q", cfg.APIKey)
	}

	t.Setenv("MISTRAL_API_KEY", "mistral")
	cfg, _ = Load("")
	if cfg.APIKey != "mistral" {
		t.Errorf("expected MISTRAL_API_KEY over OPENAI_API_KEY, got %q", cfg.APIKey)
	}

	t.Setenv("SIFT_API_KEY", "sift")
	cfg, _ = Load("")
	if cfg.APIKey != "sift" {
		t.Errorf("expected SIFT_API_KEY to win, got %q", cfg.APIKey)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "sift.yaml")
	body := `
workers: 2
budget: 8000
model: file-model
timeout: 90s
select: [1, 3]
inputs:
  - exports/
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SIFT_CONFIG", path)
	t.Setenv("SIFT_WORKERS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 7 {
		t.Errorf("expected env to override file workers, got %d", cfg.Workers)
	}
	if cfg.Budget != 8000 {
		t.Errorf("expected file budget 8000, got %d", cfg.Budget)
	}
	if cfg.Model != "file-model" {
		t.Errorf("expected file model, got %s", cfg.Model)
	}
	if cfg.Timeout != 90*time.Second {
		t.Errorf("expected 90s timeout, got %s", cfg.Timeout)
	}
	if len(cfg.Select) != 2 || cfg.Select[1] != 3 {
		t.Errorf("unexpected select %v", cfg.Select)
	}
	if cfg.Attempts != 3 {
		t.Errorf("expected unset keys to keep defaults, got attempts %d", cfg.Attempts)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides a variable that exists, even when empty.
	os.Unsetenv("SIFT_MODEL")
	if err := os.WriteFile(".env", []byte("SIFT_MODEL=dotenv-model\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "dotenv-model" {
		t.Errorf("expected model from .env, got %s", cfg.Model)
	}
}

func TestLoad_BadFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("workers: [nope"), 0o644)
	_, err = Load(path)
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for bad yaml, got %v", err)
	}
}

func TestLoad_InvalidNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("SIFT_BUDGET", "notanumber")

	cfg, _ := Load("")
	if cfg.Budget != 31000 {
		t.Errorf("expected default budget on invalid value, got %d", cfg.Budget)
	}
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.APIKey = "k"
	valid.Inputs = []string{"a.json"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	simulated := Defaults()
	simulated.Simulate = true
	simulated.Inputs = []string{"a.json"}
	if err := simulated.Validate(); err != nil {
		t.Errorf("simulated runs need no API key, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no api key", func(c *Config) { c.APIKey = "" }, "API key"},
		{"no inputs", func(c *Config) { c.Inputs = nil }, "no input"},
		{"zero budget", func(c *Config) { c.Budget = 0 }, "budget"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"no attempts", func(c *Config) { c.Attempts = 0 }, "attempts"},
		{"bad split", func(c *Config) { c.Split = "halves" }, "split"},
		{"zero select", func(c *Config) { c.Select = []int{0} }, "1-based"},
		{"no prompt", func(c *Config) { c.PromptName = "" }, "prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
