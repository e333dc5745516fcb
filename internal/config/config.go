package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

type Scheduler struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	CallbackURL string `yaml:"callback_url"`
	TimeoutSecs int    `yaml:"timeout_seconds"`
}

type SMTP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type Messaging struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	TimeoutSecs int     `yaml:"timeout_seconds"`
	PerSecond   float64 `yaml:"per_second"`
	Burst       int     `yaml:"burst"`
}

type Config struct {
	Addr          string    `yaml:"addr"`
	DBPath        string    `yaml:"db_path"`
	CountryPrefix string    `yaml:"country_prefix"`
	TZOffsetHours int       `yaml:"tz_offset_hours"`
	SweepSpec     string    `yaml:"sweep_spec"`
	Scheduler     Scheduler `yaml:"scheduler"`
	SMTP          SMTP      `yaml:"smtp"`
	Messaging     Messaging `yaml:"messaging"`
}

func Default() *Config {
	return &Config{
		Addr:          ":8080",
		DBPath:        "remindflow.db",
		CountryPrefix: "62",
		TZOffsetHours: 7,
		SweepSpec:     "@every 1m",
		Scheduler: Scheduler{
			BaseURL:     "http://localhost:9090",
			CallbackURL: "http://localhost:8080/internal/jobs/fire",
			TimeoutSecs: 5,
		},
		SMTP:      SMTP{Host: "localhost", Port: 25, From: "reminders@localhost"},
		Messaging: Messaging{BaseURL: "http://localhost:9091", TimeoutSecs: 5, PerSecond: 1, Burst: 3},
	}
}

// Load reads the YAML config at path, applying defaults for absent fields.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (s Scheduler) Timeout() time.Duration { return secs(s.TimeoutSecs) }
func (m Messaging) Timeout() time.Duration { return secs(m.TimeoutSecs) }

func secs(n int) time.Duration {
	if n <= 0 {
		n = 5
	}
	return time.Duration(n) * time.Second
}
