package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the phigo configuration file (~/.config/phigo/config.yaml).
// All fields are pointers or strings so we can distinguish "not set" from zero values.
type Config struct {
	Model string `yaml:"model"`

	// Sampling defaults
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int64   `yaml:"max_tokens"`
	Seed        *int64   `yaml:"seed"`

	// Server
	ServerAddress  string         `yaml:"server_address"`
	ModelName      string         `yaml:"model_name"`
	AssistantLabel string         `yaml:"assistant_label"`
	MaxSessions    *int64         `yaml:"max_sessions"`
	RequestTimeout *time.Duration `yaml:"request_timeout"`
	RateLimit      *float64       `yaml:"rate_limit"`
	DecodeChunk    *int64         `yaml:"decode_chunk"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "phigo", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config unless the path was given explicitly.
func LoadConfig(path string, explicit bool) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.Model != "" && !c.IsSet("model") {
		modelPath = cfg.Model
	}
}

// applySamplingConfig applies config file defaults to the sampling flags
// shared by serve and generate when the flag was not explicitly set.
func applySamplingConfig(c *cli.Command, cfg Config, s *samplingOptions) {
	if cfg.Temperature != nil && !c.IsSet("temp") {
		s.temp = *cfg.Temperature
	}
	if cfg.MaxTokens != nil && !c.IsSet("max-tokens") {
		s.maxTokens = *cfg.MaxTokens
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		s.seed = *cfg.Seed
	}
	if cfg.DecodeChunk != nil && !c.IsSet("decode-chunk") {
		s.decodeChunk = *cfg.DecodeChunk
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, o *serveOptions) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		o.addr = cfg.ServerAddress
	}
	if cfg.ModelName != "" && !c.IsSet("model-name") {
		o.modelName = cfg.ModelName
	}
	if cfg.AssistantLabel != "" && !c.IsSet("assistant-label") {
		o.assistantLabel = cfg.AssistantLabel
	}
	if cfg.MaxSessions != nil && !c.IsSet("max-sessions") {
		o.maxSessions = *cfg.MaxSessions
	}
	if cfg.RequestTimeout != nil && !c.IsSet("request-timeout") {
		o.requestTimeout = *cfg.RequestTimeout
	}
	if cfg.RateLimit != nil && !c.IsSet("rate-limit") {
		o.rateLimit = *cfg.RateLimit
	}
}
