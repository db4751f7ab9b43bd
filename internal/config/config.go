// Package config holds daybrief configuration: file-based YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"daybrief/internal/schedule"
)

// Config is the full daybrief configuration.
type Config struct {
	Workspace string          `yaml:"workspace" env:"DAYBRIEF_WORKSPACE"`
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Store     StoreConfig     `yaml:"store"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Triggers  []TriggerConfig `yaml:"triggers"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the delivery API surface.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"DAYBRIEF_ADDR"`
}

// LLMConfig configures the synthesizer capability.
type LLMConfig struct {
	Provider string `yaml:"provider" env:"DAYBRIEF_LLM_PROVIDER"`
	APIKey   string `yaml:"api_key" env:"DAYBRIEF_API_KEY"`
	Model    string `yaml:"model" env:"DAYBRIEF_MODEL"`
}

// StoreConfig configures the state database.
type StoreConfig struct {
	Path string `yaml:"path" env:"DAYBRIEF_DB_PATH"`
}

// ScheduleConfig is the delivery schedule: local time of day, clamped.
type ScheduleConfig struct {
	Timezone string `yaml:"timezone" json:"timezone" env:"DAYBRIEF_TZ"`
	Hour     int    `yaml:"hour" json:"hour"`
	Minute   int    `yaml:"minute" json:"minute"`
}

// TriggerConfig declares one refresh trigger.
type TriggerConfig struct {
	Type               string `yaml:"type"`
	Enabled            bool   `yaml:"enabled"`
	MinIntervalMinutes int    `yaml:"min_interval_minutes"`
	CoolDownMinutes    int    `yaml:"cooldown_minutes"`
}

// LoggingConfig controls the zap logger built in cmd.
type LoggingConfig struct {
	Level       string `yaml:"level" env:"DAYBRIEF_LOG_LEVEL"`
	Development bool   `yaml:"development" env:"DAYBRIEF_LOG_DEV"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Workspace: "default",
		Server:    ServerConfig{Addr: ":8470"},
		LLM:       LLMConfig{Provider: "gemini"},
		Store:     StoreConfig{Path: "daybrief.db"},
		Schedule:  ScheduleConfig{Timezone: "UTC", Hour: 8, Minute: 0},
		Triggers: []TriggerConfig{
			{Type: "time.morning", Enabled: true, MinIntervalMinutes: 360, CoolDownMinutes: 60},
			{Type: "event.blocker", Enabled: true, MinIntervalMinutes: 30, CoolDownMinutes: 45},
			{Type: "event.deploy", Enabled: true, MinIntervalMinutes: 30, CoolDownMinutes: 30},
			{Type: schedule.TriggerUserRefresh, Enabled: true},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (if it exists) over the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Defaults apply.
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("apply env overrides: %w", err)
	}

	cfg.Schedule = cfg.Schedule.Clamp()
	return cfg, nil
}

// Clamp forces the schedule into valid ranges: hour in [0,23], minute in
// [0,59], defaulting to 08:00 UTC when unset or out of range.
func (s ScheduleConfig) Clamp() ScheduleConfig {
	out := s
	if out.Hour < 0 || out.Hour > 23 {
		out.Hour = 8
	}
	if out.Minute < 0 || out.Minute > 59 {
		out.Minute = 0
	}
	if out.Timezone == "" {
		out.Timezone = "UTC"
	} else if _, err := time.LoadLocation(out.Timezone); err != nil {
		out.Timezone = "UTC"
	}
	return out
}

// TriggerStates converts configured triggers into scheduler state records.
func (c Config) TriggerStates() []schedule.TriggerState {
	out := make([]schedule.TriggerState, 0, len(c.Triggers))
	for _, t := range c.Triggers {
		out = append(out, schedule.TriggerState{
			ID:                 t.Type,
			Type:               t.Type,
			Enabled:            t.Enabled,
			MinIntervalMinutes: t.MinIntervalMinutes,
			CoolDownMinutes:    t.CoolDownMinutes,
		})
	}
	return out
}
