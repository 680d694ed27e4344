package application

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines auto-transfer scheduling and execution settings.
type Config struct {
	Schedule ScheduleConfig `yaml:"schedule"`
	Executor ExecutorConfig `yaml:"executor"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Alert    AlertConfig    `yaml:"alert"`
}

// ScheduleConfig defines the daily trigger.
type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DailyAt  string `yaml:"daily_at"`
	Timezone string `yaml:"timezone"`
}

// ExecutorConfig tunes the due-transfer executor.
type ExecutorConfig struct {
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// GatewayConfig points at the bank transfer gateway.
type GatewayConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// AlertConfig points at the operator webhook for exhausted transfers.
type AlertConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		Schedule: ScheduleConfig{
			Enabled: getenvBoolDefault("AUTOTRANSFER_SCHEDULE_ENABLED", true),
		},
		Executor: ExecutorConfig{
			LockTTL: getenvDuration("AUTOTRANSFER_LOCK_TTL", defaultLockTTL),
		},
		Gateway: GatewayConfig{
			BaseURL: os.Getenv("BANK_GATEWAY_URL"),
			Token:   os.Getenv("BANK_GATEWAY_TOKEN"),
			Timeout: getenvDuration("BANK_GATEWAY_TIMEOUT", 10*time.Second),
		},
		Alert: AlertConfig{
			WebhookURL: os.Getenv("AUTOTRANSFER_ALERT_WEBHOOK"),
			Timeout:    getenvDuration("AUTOTRANSFER_ALERT_TIMEOUT", 10*time.Second),
		},
	}

	if path := os.Getenv("AUTOTRANSFER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Schedule.DailyAt == "" {
		cfg.Schedule.DailyAt = getenvDefault("AUTOTRANSFER_DAILY_AT", "09:00")
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = getenvDefault("TIMEZONE", "Asia/Seoul")
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = os.Getenv("BANK_GATEWAY_URL")
	}
	if cfg.Executor.LockTTL <= 0 {
		cfg.Executor.LockTTL = defaultLockTTL
	}
	if _, _, err := parseDailyAt(cfg.Schedule.DailyAt); err != nil {
		return cfg, errors.New("autotransfer: daily_at must be HH:MM")
	}
	if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Location resolves the configured schedule timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
