package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks errors that abort a run before any work is dispatched.
var ErrConfiguration = errors.New("configuration error")

type Config struct {
	Inputs    []string `yaml:"inputs"`
	Recursive bool     `yaml:"recursive"`
	Schema    string   `yaml:"schema"`

	PromptName string `yaml:"prompt"`
	PromptText string `yaml:"prompt_text"`
	PromptFile string `yaml:"prompt_file"`
	PromptDir  string `yaml:"prompt_dir"`

	Simulate       bool          `yaml:"simulate"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Budget      int           `yaml:"budget"`
	Workers     int           `yaml:"workers"`
	Attempts    int           `yaml:"attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	Timeout     time.Duration `yaml:"timeout"`
	Grace       time.Duration `yaml:"grace"`

	Select []int  `yaml:"select"`
	Split  string `yaml:"split"`

	Format string `yaml:"format"`
	Out    string `yaml:"out"`
	OutDir string `yaml:"out_dir"`
	Report string `yaml:"report"`

	LogLevel      string `yaml:"log_level"`
	StatusAddr    string `yaml:"status_addr"`
	DatabaseURL   string `yaml:"database_url"`
	NatsURL       string `yaml:"nats_url"`
	NatsToken     string `yaml:"nats_token"`
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackChannel  string `yaml:"slack_channel"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Schema:         "auto",
		PromptName:     "summary",
		PromptDir:      "prompts",
		BaseURL:        "https://api.mistral.ai/v1/",
		Model:          "mistral-large-latest",
		Temperature:    0.7,
		MaxTokens:      16000,
		RequestTimeout: 60 * time.Second,
		Budget:         31000,
		Workers:        5,
		Attempts:       3,
		BackoffBase:    2 * time.Second,
		BackoffMax:     60 * time.Second,
		Grace:          5 * time.Second,
		Split:          "all",
		Format:         "csv",
		OutDir:         ".",
		LogLevel:       "info",
	}
}

// Load builds the configuration from defaults, an optional .env file, an
// optional YAML file (path, or SIFT_CONFIG when path is empty) and the
// environment, in that order of precedence.
func Load(path string) (Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	cfg := Defaults()
	if path == "" {
		path = os.Getenv("SIFT_CONFIG")
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read config %s: %w", ErrConfiguration, path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parse config %s: %w", ErrConfiguration, path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.APIKey = envStr("SIFT_API_KEY", envStr("MISTRAL_API_KEY", envStr("OPENAI_API_KEY", c.APIKey)))
	c.BaseURL = envStr("SIFT_BASE_URL", c.BaseURL)
	c.Model = envStr("SIFT_MODEL", c.Model)
	c.Temperature = envFloat("SIFT_TEMPERATURE", c.Temperature)
	c.MaxTokens = envInt("SIFT_MAX_TOKENS", c.MaxTokens)
	c.RequestTimeout = envDuration("SIFT_REQUEST_TIMEOUT", c.RequestTimeout)

	c.PromptDir = envStr("SIFT_PROMPT_DIR", c.PromptDir)
	c.Budget = envInt("SIFT_BUDGET", c.Budget)
	c.Workers = envInt("SIFT_WORKERS", c.Workers)
	c.Attempts = envInt("SIFT_ATTEMPTS", c.Attempts)
	c.Timeout = envDuration("SIFT_TIMEOUT", c.Timeout)
	c.Format = envStr("SIFT_FORMAT", c.Format)
	c.OutDir = envStr("SIFT_OUT_DIR", c.OutDir)

	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.StatusAddr = envStr("SIFT_STATUS_ADDR", c.StatusAddr)
	c.DatabaseURL = envStr("DATABASE_URL", c.DatabaseURL)
	c.NatsURL = envStr("NATS_URL", c.NatsURL)
	c.NatsToken = envStr("NATS_TOKEN", c.NatsToken)
	c.SlackBotToken = envStr("SLACK_BOT_TOKEN", c.SlackBotToken)
	c.SlackChannel = envStr("SLACK_CHANNEL", c.SlackChannel)
}

// Validate reports every setting that makes a run impossible, joined into
// one error wrapping ErrConfiguration.
func (c Config) Validate() error {
	var problems []string
	if !c.Simulate && c.APIKey == "" {
		problems = append(problems, "no API key (set SIFT_API_KEY or use -simulate)")
	}
	if len(c.Inputs) == 0 {
		problems = append(problems, "no input files")
	}
	if c.PromptName == "" && c.PromptText == "" && c.PromptFile == "" {
		problems = append(problems, "no prompt")
	}
	if c.Budget <= 0 {
		problems = append(problems, fmt.Sprintf("budget must be positive, got %d", c.Budget))
	}
	if c.Workers < 1 {
		problems = append(problems, fmt.Sprintf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Attempts < 1 {
		problems = append(problems, fmt.Sprintf("attempts must be at least 1, got %d", c.Attempts))
	}
	if c.Timeout < 0 || c.Grace < 0 {
		problems = append(problems, "timeout and grace must not be negative")
	}
	switch strings.ToLower(c.Split) {
	case "", "all", "split", "unsplit":
	default:
		problems = append(problems, fmt.Sprintf("unknown split filter %q", c.Split))
	}
	for _, n := range c.Select {
		if n < 1 {
			problems = append(problems, fmt.Sprintf("chunk selection is 1-based, got %d", n))
			break
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
