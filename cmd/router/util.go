package main

import (
	"os"
	"time"

	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/agentkit/llm"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/config"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// parseRetryConfig converts config values to RetryConfig.
func parseRetryConfig(maxRetries int, backoffStr string) llm.RetryConfig {
	cfg := llm.RetryConfig{
		MaxRetries: maxRetries,
	}
	if backoffStr != "" {
		if d, err := time.ParseDuration(backoffStr); err == nil {
			cfg.MaxBackoff = d
		}
	}
	return cfg
}

// apiKey prefers the credentials file, then the configured env var.
func apiKey(creds *credentials.Credentials, provider string, l config.LLMConfig) string {
	if creds != nil {
		if key := creds.GetAPIKey(provider); key != "" {
			return key
		}
	}
	return l.GetAPIKey()
}

// loadConfig loads path, or ./router.toml with defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadDefault()
}
