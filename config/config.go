// Package config implements the environment+YAML configuration layer:
// bus/service timeouts, dashboard server port and client caps,
// persistence path, and log level. The dashboard port, client cap and
// rate, persistence path, log level, log directory and metrics address
// are also overridable by environment variables; the timeouts are not.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable timeout, port, and path.
type Config struct {
	// Bus / service.
	SlowHandlerThreshold  time.Duration `yaml:"slow_handler_threshold"`
	SubscribeResponseWait time.Duration `yaml:"subscribe_response_wait"`
	SpeechTimeout         time.Duration `yaml:"speech_timeout"`
	CrossfadeBaseTimeout  time.Duration `yaml:"crossfade_base_timeout"`
	PostFromThreadTimeout time.Duration `yaml:"post_from_thread_timeout"`
	MemoryWaitTimeout     time.Duration `yaml:"memory_wait_timeout"`
	HeartbeatInterval     time.Duration `yaml:"heartbeat_interval"`
	StopTimeout           time.Duration `yaml:"stop_timeout"`

	// Memory Store.
	MemoryPersistPath     string        `yaml:"memory_persist_path"`
	MemoryPersistDebounce time.Duration `yaml:"memory_persist_debounce"`

	// Brain / DJ-mode.
	DJLeadTime     time.Duration `yaml:"dj_lead_time"`
	DJHistoryDepth int           `yaml:"dj_history_depth"`

	// Web Bridge.
	DashboardPort       int      `yaml:"dashboard_port"`
	DashboardMaxClients int      `yaml:"dashboard_max_clients"`
	DashboardClientRPM  int      `yaml:"dashboard_client_rpm"`
	CORSAllowedOrigins  []string `yaml:"cors_allowed_origins"`

	// Logging.
	LogLevel       string        `yaml:"log_level"`
	LogDir         string        `yaml:"log_dir"`
	LogDedupWindow time.Duration `yaml:"log_dedup_window"`

	// Metrics. A non-empty address enables the Prometheus exporter.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Defaults returns a Config with every documented default filled in.
func Defaults() *Config {
	return &Config{
		SlowHandlerThreshold:  100 * time.Millisecond,
		SubscribeResponseWait: 5 * time.Second,
		SpeechTimeout:         25 * time.Second,
		CrossfadeBaseTimeout:  2 * time.Second,
		PostFromThreadTimeout: 100 * time.Millisecond,
		MemoryWaitTimeout:     5 * time.Second,
		HeartbeatInterval:     30 * time.Second,
		StopTimeout:           5 * time.Second,

		MemoryPersistPath:     "./data/memory.json",
		MemoryPersistDebounce: 500 * time.Millisecond,

		DJLeadTime:     30 * time.Second,
		DJHistoryDepth: 5,

		DashboardPort:       8080,
		DashboardMaxClients: 10,
		DashboardClientRPM:  60,
		CORSAllowedOrigins:  []string{"http://localhost:3000"},

		LogLevel:       "info",
		LogDir:         "./logs",
		LogDedupWindow: 30 * time.Second,

		MetricsAddr: ":9090",
	}
}

// LoadEnvFile loads a .env file of vendor secrets (LLM and speech API
// keys) into the process environment if path exists. It is not an error
// for the file to be absent; this is a local development convenience.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Load builds a Config starting from Defaults, overlaying a YAML file at
// yamlPath (if non-empty and present), then overlaying recognized
// environment variables.
func Load(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", yamlPath, err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", yamlPath, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("CANTINA_DASHBOARD_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DashboardPort = n
		}
	}
	if v, ok := os.LookupEnv("CANTINA_DASHBOARD_MAX_CLIENTS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DashboardMaxClients = n
		}
	}
	if v, ok := os.LookupEnv("CANTINA_DASHBOARD_CLIENT_RPM"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DashboardClientRPM = n
		}
	}
	if v, ok := os.LookupEnv("CANTINA_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("CANTINA_MEMORY_PERSIST_PATH"); ok {
		cfg.MemoryPersistPath = v
	}
	if v, ok := os.LookupEnv("CANTINA_LOG_DIR"); ok {
		cfg.LogDir = v
	}
	if v, ok := os.LookupEnv("CANTINA_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
}
