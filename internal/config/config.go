package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Plan      PlanConfig      `yaml:"plan"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Output      string `yaml:"output"`
	Development bool   `yaml:"development"`
}

func LoadConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/membership.yaml"
	}

	// Ensure absolute path
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Secrets are referenced as ${ENV_VAR} in the file
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Plan.PeriodDays == 0 {
		c.Plan.PeriodDays = 30
	}
	if c.Plan.Currency == "" {
		c.Plan.Currency = "USD"
	}
	if c.Scheduler.CheckTime == "" {
		c.Scheduler.CheckTime = "09:00"
	}
	if len(c.Scheduler.ReminderDays) == 0 {
		c.Scheduler.ReminderDays = []int{3, 1}
	}
	if c.Service.Idempotency.Backend == "" {
		c.Service.Idempotency.Backend = "postgres"
	}
}
