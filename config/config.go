package config

import (
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type EngineConfig struct {
	RematchIntervalMS int64 `yaml:"rematch_interval_ms"`
}

func (c *EngineConfig) RematchInterval() time.Duration {
	return time.Duration(c.RematchIntervalMS) * time.Millisecond
}

type AppConfig struct {
	ServiceName string        `yaml:"service_name"`
	LogLevel    string        `yaml:"log_level"`
	Engine      *EngineConfig `yaml:"engine"`
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	sugar.Debug("Load config...")
	zap.S().Debugf("CONFIG_FILE=%v", filePath)

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}

	err = yaml.Unmarshal(configBytes, cfg)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	cfg.applyDefaults()
	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}

// Default returns the config used when no file is given.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *AppConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "exchange-engine"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Engine == nil {
		c.Engine = &EngineConfig{}
	}
	if c.Engine.RematchIntervalMS <= 0 {
		c.Engine.RematchIntervalMS = 5000
	}
}
