package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment describes one deployment target from the environments file.
type Environment struct {
	Name        string `yaml:"name"`
	Workdir     string `yaml:"workdir"`
	VarFile     string `yaml:"varFile"`
	AutoApply   bool   `yaml:"autoApply"`
	SecretsPath string `yaml:"secretsPath"`
	AttestImage string `yaml:"attestImage"`
}

// Config holds all configuration for the tfbot service
type Config struct {
	// Server settings
	Port int

	// GitHub App settings (or a PAT via GitHubToken)
	GitHubAppID         string
	GitHubPrivateKey    string
	GitHubWebhookSecret string
	GitHubToken         string

	// Comment settings
	CommentMarker string

	// Pipeline settings
	TerraformBinary string
	WorkRoot        string
	AttestType      string

	// Deployment environments
	EnvironmentsFile string
	Environments     []Environment

	// Dispatcher settings
	DispatcherWorkers           int
	DispatcherQueueSize         int
	DispatcherMaxAttempts       int
	DispatcherRetryInitial      time.Duration
	DispatcherRetryMax          time.Duration
	DispatcherBackoffMultiplier float64
}

// Load loads configuration from environment variables and the
// environments file.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                        getEnvInt("PORT", 8000),
		GitHubAppID:                 os.Getenv("GITHUB_APP_ID"),
		GitHubPrivateKey:            normalizePrivateKey(os.Getenv("GITHUB_PRIVATE_KEY")),
		GitHubWebhookSecret:         os.Getenv("GITHUB_WEBHOOK_SECRET"),
		GitHubToken:                 os.Getenv("GITHUB_TOKEN"),
		CommentMarker:               getEnv("COMMENT_MARKER", "<!-- tfbot -->"),
		TerraformBinary:             getEnv("TERRAFORM_BINARY", "terraform"),
		WorkRoot:                    getEnv("WORK_ROOT", os.TempDir()),
		AttestType:                  getEnv("ATTEST_TYPE", ""),
		EnvironmentsFile:            getEnv("ENVIRONMENTS_FILE", "environments.yaml"),
		DispatcherWorkers:           getEnvInt("DISPATCHER_WORKERS", 4),
		DispatcherQueueSize:         getEnvInt("DISPATCHER_QUEUE_SIZE", 16),
		DispatcherMaxAttempts:       getEnvInt("DISPATCHER_MAX_ATTEMPTS", 3),
		DispatcherRetryInitial:      time.Duration(getEnvInt("DISPATCHER_RETRY_SECONDS", 15)) * time.Second,
		DispatcherRetryMax:          time.Duration(getEnvInt("DISPATCHER_RETRY_MAX_SECONDS", 300)) * time.Second,
		DispatcherBackoffMultiplier: getEnvFloat("DISPATCHER_BACKOFF_MULTIPLIER", 2.0),
	}

	envs, err := LoadEnvironments(cfg.EnvironmentsFile)
	if err != nil {
		return nil, err
	}
	cfg.Environments = envs

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadEnvironments parses the deployment environments file.
func LoadEnvironments(path string) ([]Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environments file %s: %w", path, err)
	}

	var doc struct {
		Environments []Environment `yaml:"environments"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse environments file %s: %w", path, err)
	}

	return doc.Environments, nil
}

// Environment returns the named environment, nil when unknown.
func (c *Config) Environment(name string) *Environment {
	for i := range c.Environments {
		if c.Environments[i].Name == name {
			return &c.Environments[i]
		}
	}
	return nil
}

// validate checks that all required configuration is present
func (c *Config) validate() error {
	hasApp := c.GitHubAppID != "" && c.GitHubPrivateKey != ""
	if !hasApp && c.GitHubToken == "" {
		return fmt.Errorf("either GITHUB_APP_ID + GITHUB_PRIVATE_KEY or GITHUB_TOKEN is required")
	}
	if c.GitHubWebhookSecret == "" {
		return fmt.Errorf("GITHUB_WEBHOOK_SECRET is required")
	}

	if len(c.Environments) == 0 {
		return fmt.Errorf("environments file %s defines no environments", c.EnvironmentsFile)
	}
	seen := make(map[string]bool)
	for _, env := range c.Environments {
		if env.Name == "" {
			return fmt.Errorf("environment with empty name in %s", c.EnvironmentsFile)
		}
		if seen[env.Name] {
			return fmt.Errorf("duplicate environment %q in %s", env.Name, c.EnvironmentsFile)
		}
		seen[env.Name] = true
		if env.Workdir == "" {
			return fmt.Errorf("environment %q has no workdir", env.Name)
		}
		if strings.HasPrefix(env.Workdir, "/") || strings.Contains(env.Workdir, "..") {
			return fmt.Errorf("environment %q workdir must be a relative path inside the repo", env.Name)
		}
	}

	if c.DispatcherWorkers <= 0 || c.DispatcherQueueSize <= 0 || c.DispatcherMaxAttempts <= 0 {
		return fmt.Errorf("dispatcher workers, queue size and max attempts must be positive")
	}

	return nil
}

// UseAppAuth reports whether GitHub App credentials are configured.
func (c *Config) UseAppAuth() bool {
	return c.GitHubAppID != "" && c.GitHubPrivateKey != ""
}

// normalizePrivateKey unquotes and unescapes a PEM key passed through an
// environment variable.
func normalizePrivateKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "\"") && strings.HasSuffix(trimmed, "\"") {
		trimmed = strings.Trim(trimmed, "\"")
	}
	if strings.HasPrefix(trimmed, "'") && strings.HasSuffix(trimmed, "'") {
		trimmed = strings.Trim(trimmed, "'")
	}

	trimmed = strings.ReplaceAll(trimmed, "\r\n", "\n")
	trimmed = strings.ReplaceAll(trimmed, "\r", "\n")
	if strings.Contains(trimmed, "\\n") {
		trimmed = strings.ReplaceAll(trimmed, "\\r", "")
		trimmed = strings.ReplaceAll(trimmed, "\\n", "\n")
	}

	return trimmed
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as float64 or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
