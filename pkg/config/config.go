package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultMaxAttempts    = 3
	DefaultInvokerRetries = 3
	DefaultInvokerTimeout = 60 * time.Second
	DefaultCheckTimeout   = 2 * time.Minute
)

// RoleBinding maps an agent role to the invoker and model serving it.
type RoleBinding struct {
	Invoker string `yaml:"invoker"`
	Model   string `yaml:"model,omitempty"`
}

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string

	PipelinePath   string
	JournalDir     string
	StorePath      string
	MaxAttempts    int
	InvokerRetries int
	InvokerTimeout time.Duration
	CheckTimeout   time.Duration
	Roles          map[string]RoleBinding
}

// FileConfig is the on-disk shape of the config file.
type FileConfig struct {
	APIKeys        APIKeysConfig          `yaml:"api_keys"`
	Pipeline       string                 `yaml:"pipeline"`
	JournalDir     string                 `yaml:"journal_dir"`
	StorePath      string                 `yaml:"store_path"`
	MaxAttempts    int                    `yaml:"max_attempts"`
	InvokerRetries int                    `yaml:"invoker_retries"`
	InvokerTimeout string                 `yaml:"invoker_timeout"`
	CheckTimeout   string                 `yaml:"check_timeout"`
	Roles          map[string]RoleBinding `yaml:"roles"`
}

// APIKeysConfig holds API key configuration from file.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic"`
	OpenAI    string `yaml:"openai"`
	Google    string `yaml:"google"`
}

// Load reads configuration from the given file (or ~/.stagegate/config.yaml
// when path is empty) and environment variables. Environment variables take
// precedence over file configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		configDir, err := getConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		path = filepath.Join(configDir, "config.yaml")
	}

	fileConfig, err := loadFileConfig(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AnthropicAPIKey: getEnvOrDefault("ANTHROPIC_API_KEY", fileConfig.APIKeys.Anthropic),
		OpenAIAPIKey:    getEnvOrDefault("OPENAI_API_KEY", fileConfig.APIKeys.OpenAI),
		GoogleAPIKey:    getEnvOrDefault("GOOGLE_API_KEY", fileConfig.APIKeys.Google),
		PipelinePath:    fileConfig.Pipeline,
		JournalDir:      fileConfig.JournalDir,
		StorePath:       fileConfig.StorePath,
		MaxAttempts:     fileConfig.MaxAttempts,
		InvokerRetries:  fileConfig.InvokerRetries,
		InvokerTimeout:  DefaultInvokerTimeout,
		CheckTimeout:    DefaultCheckTimeout,
		Roles:           fileConfig.Roles,
	}

	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InvokerRetries == 0 {
		cfg.InvokerRetries = DefaultInvokerRetries
	}
	if cfg.JournalDir == "" {
		cfg.JournalDir = filepath.Join(".stagegate", "journal")
	}
	if cfg.StorePath == "" {
		cfg.StorePath = filepath.Join(".stagegate", "tasks.json")
	}
	if cfg.Roles == nil {
		cfg.Roles = make(map[string]RoleBinding)
	}

	if fileConfig.InvokerTimeout != "" {
		d, err := time.ParseDuration(fileConfig.InvokerTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid invoker_timeout: %w", err)
		}
		cfg.InvokerTimeout = d
	}
	if fileConfig.CheckTimeout != "" {
		d, err := time.ParseDuration(fileConfig.CheckTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid check_timeout: %w", err)
		}
		cfg.CheckTimeout = d
	}

	if cfg.MaxAttempts < 0 || cfg.InvokerRetries < 0 {
		return nil, fmt.Errorf("retry limits must not be negative")
	}

	return cfg, nil
}

// HasInvoker returns true if the API key for the given invoker is configured.
func (c *Config) HasInvoker(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "mock":
		return true
	default:
		return false
	}
}

// loadFileConfig reads the config file, returning an empty config if the file
// does not exist.
func loadFileConfig(path string) (*FileConfig, error) {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// getEnvOrDefault returns the environment variable value if set, otherwise
// the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".stagegate")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}
