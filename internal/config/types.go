package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Backend  BackendConfig  `json:"backend"`
	Stream   StreamConfig   `json:"stream"`
	Dispatch DispatchConfig `json:"dispatch"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics,omitempty"`
	Storage  StorageConfig  `json:"storage,omitempty"`
	Report   ReportConfig   `json:"report,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// GroupLog receives log-sink messages and digests. 0 disables both.
	GroupLog int64 `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type BackendConfig struct {
	BaseURL     string `json:"base_url"`
	M2MToken    string `json:"m2m_token"`
	FrontendURL string `json:"frontend_url"`
}

type StreamConfig struct {
	URL string `json:"url"`
	// ReconnectDelay is a Go duration string. Default "5s".
	ReconnectDelay string `json:"reconnect_delay,omitempty"`
}

type DispatchConfig struct {
	// Workers drain the event queue concurrently. Default 10.
	Workers int `json:"workers,omitempty"`
	// SendRatePerSec caps outbound sends. 0 disables the limiter.
	SendRatePerSec int `json:"send_rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9090"
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type ReportConfig struct {
	Enabled bool `json:"enabled"`
	// Schedule is a standard 5-field cron expression.
	Schedule string `json:"schedule,omitempty"`
	// ChatID overrides telegram.group_log as the digest destination.
	ChatID int64 `json:"chat_id,omitempty"`
}

// ApplyEnv layers environment overrides on top of the file values. Env wins
// when set; this keeps container deployments working without a config edit.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("M2M_TOKEN"); v != "" {
		c.Backend.M2MToken = v
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		c.Backend.FrontendURL = v
	}
	if v := os.Getenv("MESSAGE_WS"); v != "" {
		c.Stream.URL = v
	}
	if v := os.Getenv("WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("WORKERS: invalid worker count %q", v)
		}
		c.Dispatch.Workers = n
	}
	return nil
}

// Validate checks the fields the process cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if strings.TrimSpace(c.Backend.M2MToken) == "" {
		return fmt.Errorf("backend.m2m_token is required")
	}
	if strings.TrimSpace(c.Stream.URL) == "" {
		return fmt.Errorf("stream.url is required")
	}
	if c.Dispatch.Workers < 0 {
		return fmt.Errorf("dispatch.workers must be >= 0")
	}
	if c.Dispatch.SendRatePerSec < 0 {
		return fmt.Errorf("dispatch.send_rate_per_sec must be >= 0")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("stream.reconnect_delay", c.Stream.ReconnectDelay); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	return nil
}
