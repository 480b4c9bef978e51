package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	golobby "github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"

	"github.com/marcus-crane/presence-bridge/shared"
	"github.com/marcus-crane/presence-bridge/utils"
)

const (
	SchemaVersion = 1

	envDiscordAppID  = "PRESENCE_BRIDGE_DISCORD_APP_ID"
	envLogLevel      = "PRESENCE_BRIDGE_LOG_LEVEL"
	envEnableButtons = "PRESENCE_BRIDGE_ENABLE_BUTTONS"

	minFileWatchPoll = 2 * time.Second
)

type Config struct {
	SchemaVersion     int            `toml:"schema_version"`
	DiscordAppID      string         `toml:"discord_app_id"`
	ProviderPriority  []string       `toml:"provider_priority"`
	Intervals         IntervalConfig `toml:"intervals"`
	EnableButtons     bool           `toml:"enable_buttons"`
	LogLevel          string         `toml:"log_level"`
	WatchConfigEvents bool           `toml:"watch_config_events"`
	Assets            AssetsConfig   `toml:"assets"`
}

type IntervalConfig struct {
	PlayingPollMs       int64 `toml:"playing_poll_ms"`
	PausedPollMs        int64 `toml:"paused_poll_ms"`
	StoppedPollMs       int64 `toml:"stopped_poll_ms"`
	PresenceMinUpdateMs int64 `toml:"presence_min_update_ms"`
	DebounceMs          int64 `toml:"debounce_ms"`
	FileWatchPollMs     int64 `toml:"file_watch_poll_ms"`
}

type AssetsConfig struct {
	LargeImage      string `toml:"large_image"`
	LargeText       string `toml:"large_text"`
	SmallPlayImage  string `toml:"small_play_image"`
	SmallPauseImage string `toml:"small_pause_image"`
}

// Default returns a fresh configuration value on every call so callers are free
// to mutate what they get back.
func Default() Config {
	return Config{
		SchemaVersion: SchemaVersion,
		DiscordAppID:  "YOUR_DISCORD_APP_ID",
		ProviderPriority: []string{
			shared.PROVIDER_APPLE_MUSIC,
			shared.PROVIDER_WINDOWS,
			shared.PROVIDER_MPRIS,
		},
		Intervals: IntervalConfig{
			PlayingPollMs:       1_000,
			PausedPollMs:        7_000,
			StoppedPollMs:       30_000,
			PresenceMinUpdateMs: 15_000,
			DebounceMs:          500,
			FileWatchPollMs:     10_000,
		},
		EnableButtons: true,
		LogLevel:      "info",
		Assets: AssetsConfig{
			LargeImage:      "app_icon",
			LargeText:       "presence-bridge",
			SmallPlayImage:  "play",
			SmallPauseImage: "pause",
		},
	}
}

func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "presence-bridge", "config.toml")
}

// Load reads the config file at path on top of the defaults and then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		// Decoding straight into the defaults keeps any key the file leaves out
		if err := golobby.New().AddFeeder(feeder.Toml{Path: path}).AddStruct(&cfg).Feed(); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes the default configuration to path, creating any parent directories.
func Init(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", filepath.Dir(path), err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(Default()); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema_version %d", c.SchemaVersion)
	}
	i := c.Intervals
	for name, v := range map[string]int64{
		"playing_poll_ms":        i.PlayingPollMs,
		"paused_poll_ms":         i.PausedPollMs,
		"stopped_poll_ms":        i.StoppedPollMs,
		"presence_min_update_ms": i.PresenceMinUpdateMs,
		"debounce_ms":            i.DebounceMs,
		"file_watch_poll_ms":     i.FileWatchPollMs,
	} {
		if v < 0 {
			return fmt.Errorf("intervals.%s must not be negative", name)
		}
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(utils.GetEnv(envDiscordAppID, "")); v != "" {
		c.DiscordAppID = v
	}
	if v := strings.TrimSpace(utils.GetEnv(envLogLevel, "")); v != "" {
		c.LogLevel = v
	}
	if v, err := strconv.ParseBool(utils.GetEnv(envEnableButtons, "")); err == nil {
		c.EnableButtons = v
	}
}

// FileWatchPoll is how often the config file's modification time is checked.
func (c *Config) FileWatchPoll() time.Duration {
	return max(time.Duration(c.Intervals.FileWatchPollMs)*time.Millisecond, minFileWatchPoll)
}

func (c *Config) GetLogLevel() slog.Leveler {
	logLevel := strings.ToLower(c.LogLevel)
	if logLevel == "error" {
		return slog.LevelError
	}
	if logLevel == "warning" || logLevel == "warn" {
		return slog.LevelWarn
	}
	if logLevel == "info" {
		return slog.LevelInfo
	}
	if logLevel == "debug" || logLevel == "trace" {
		return slog.LevelDebug
	}
	// default to info if unknown
	slog.With(slog.String("log_level", logLevel)).Info("Received invalid log level. Defaulting to INFO.")
	return slog.LevelInfo
}
