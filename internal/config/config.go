// Package config loads master and agent configuration from environment
// variables, matching the env-var names the original Python system used,
// with an optional YAML overlay for master deployment profiles.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// MasterConfig holds settings for the coordinating process (Store + HTTP
// API + Controller).
type MasterConfig struct {
	ListenAddr              string `yaml:"listen_addr"`
	DBDriver                string `yaml:"db_driver"` // "sqlite" or "postgres"
	DBDSN                   string `yaml:"db_dsn"`
	TokenAuth               string `yaml:"token_auth"`
	MaxTaskDurationSeconds  int    `yaml:"max_task_duration_seconds"`
	MaxTaskRetries          int    `yaml:"max_task_retries"`
	MetricsAddr             string `yaml:"metrics_addr"`
}

// AgentConfig holds settings for a worker process.
type AgentConfig struct {
	MasterURL string
	AgentAddr string
	AgentPort string
	RunnerNum string
	TokenAuth string
}

// LoadMaster builds a MasterConfig from PYMADA_CONFIG_FILE (if set) then
// overlays environment variables, which always win — the same
// "env var with a default" posture getEnv uses, extended with a
// file layer for operators who want one.
func LoadMaster() (*MasterConfig, error) {
	cfg := &MasterConfig{
		ListenAddr:             ":8000",
		DBDriver:               "sqlite",
		DBDSN:                  "pymada.db",
		MaxTaskDurationSeconds: 300,
		MaxTaskRetries:         3,
	}

	if path := os.Getenv("PYMADA_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := os.Getenv("PYMADA_DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("PYMADA_DB_DSN"); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv("PYMADA_TOKEN_AUTH"); v != "" {
		cfg.TokenAuth = v
	}

	if v := os.Getenv("PYMADA_MAX_TASK_DURATION_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PYMADA_MAX_TASK_DURATION_SECONDS: %w", err)
		}
		cfg.MaxTaskDurationSeconds = n
	}
	if v := os.Getenv("PYMADA_MAX_TASK_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PYMADA_MAX_TASK_RETRIES: %w", err)
		}
		cfg.MaxTaskRetries = n
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = cfg.ListenAddr
	}
	cfg.MetricsAddr = getEnv("PYMADA_METRICS_ADDR", cfg.MetricsAddr)

	return cfg, nil
}

// LoadAgent builds an AgentConfig from environment variables, matching
// agent_server.py's AGENT_PORT/AGENT_ADDR/RUNNER_NUM/MASTER_URL defaults.
func LoadAgent() *AgentConfig {
	return &AgentConfig{
		MasterURL: getEnv("MASTER_URL", "http://localhost:8000"),
		AgentAddr: getEnv("AGENT_ADDR", "127.0.0.1"),
		AgentPort: getEnv("AGENT_PORT", "5001"),
		RunnerNum: getEnv("RUNNER_NUM", "1"),
		TokenAuth: os.Getenv("PYMADA_TOKEN_AUTH"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
