package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	// DataDir is the root for the exam database, media blobs and saved
	// responses. Defaults to "./data".
	DataDir string `json:"data_dir,omitempty"`

	Server    ServerConfig    `json:"server,omitempty"`
	Storage   StorageConfig   `json:"storage,omitempty"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
	Telegram  TelegramConfig  `json:"telegram,omitempty"`
	Transcode TranscodeConfig `json:"transcode,omitempty"`
}

type ServerConfig struct {
	Addr string `json:"addr,omitempty"` // default: "127.0.0.1:8844"
}

// StorageConfig controls the sqlite database.
//
// Path defaults to "<data_dir>/exam.db".
type StorageConfig struct {
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console *bool      `json:"console,omitempty"` // default true
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// TelegramConfig controls the outbound delivery transport.
//
// Token may be omitted; the TELEGRAM_BOT_TOKEN environment variable is used
// as fallback. Recipients are not configured here: they live in the
// app_settings table (with TELEGRAM_CHAT_IDS / TELEGRAM_CHAT_ID as
// environment fallbacks) so operators can change them at runtime.
type TelegramConfig struct {
	Token      string `json:"token,omitempty"`
	APIBase    string `json:"api_base,omitempty"` // default: "https://api.telegram.org"
	Timeout    string `json:"timeout,omitempty"`  // per-call HTTP timeout, default "30s"
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// TranscodeConfig controls the external MP3 conversion tool.
type TranscodeConfig struct {
	FFmpegPath string `json:"ffmpeg_path,omitempty"` // default: "ffmpeg" (from PATH)
}

const (
	DefaultAddr    = "127.0.0.1:8844"
	DefaultAPIBase = "https://api.telegram.org"
)

// Normalized returns cfg with defaults applied. It does not mutate cfg.
func (c Config) Normalized() Config {
	out := c
	if strings.TrimSpace(out.DataDir) == "" {
		out.DataDir = "./data"
	}
	if strings.TrimSpace(out.Server.Addr) == "" {
		out.Server.Addr = DefaultAddr
	}
	if strings.TrimSpace(out.Storage.Path) == "" {
		out.Storage.Path = filepath.Join(out.DataDir, "exam.db")
	}
	if strings.TrimSpace(out.Telegram.APIBase) == "" {
		out.Telegram.APIBase = DefaultAPIBase
	}
	if strings.TrimSpace(out.Telegram.Token) == "" {
		out.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if out.Telegram.RatePerSec <= 0 {
		out.Telegram.RatePerSec = 3
	}
	if strings.TrimSpace(out.Transcode.FFmpegPath) == "" {
		out.Transcode.FFmpegPath = "ffmpeg"
	}
	return out
}

// ConsoleEnabled treats an omitted logging.console as true.
func (c Config) ConsoleEnabled() bool {
	if c.Logging.Console == nil {
		return true
	}
	return *c.Logging.Console
}

// TelegramTimeout parses telegram.timeout with a 30s default.
func (c Config) TelegramTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("telegram.timeout", c.Telegram.Timeout, 30*time.Second)
}

// StorageBusyTimeout parses storage.busy_timeout; 0 means the driver default.
func (c Config) StorageBusyTimeout() (time.Duration, error) {
	return ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
}

// Validate rejects configs that cannot possibly run.
func (c Config) Validate() error {
	n := c.Normalized()
	if strings.TrimSpace(n.Telegram.Token) == "" {
		return errors.New("telegram.token is empty (set it in the config or via TELEGRAM_BOT_TOKEN)")
	}
	if _, err := n.TelegramTimeout(); err != nil {
		return err
	}
	if _, err := n.StorageBusyTimeout(); err != nil {
		return err
	}
	if lvl := strings.TrimSpace(n.Logging.Level); lvl != "" {
		switch strings.ToUpper(lvl) {
		case "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		default:
			return fmt.Errorf("logging.level: unknown level %q", lvl)
		}
	}
	return nil
}
