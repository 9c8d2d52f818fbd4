package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	defaultWayBinary    = "way"
	defaultShell        = "sh"
	defaultPanelListen  = "127.0.0.1:0"
	defaultRefreshDelay = 500 * time.Millisecond
	defaultJournalPath  = "~/.local/share/wayside/journal.db"
	defaultLogLevel     = "info"
)

// Config holds runtime settings for the wayside host.
type Config struct {
	Way     WayConfig     `mapstructure:"way"`
	Panel   PanelConfig   `mapstructure:"panel"`
	Journal JournalConfig `mapstructure:"journal"`
	Log     LogConfig     `mapstructure:"log"`
}

// WayConfig controls how the external way tool is invoked.
type WayConfig struct {
	Binary string `mapstructure:"binary"`
	Shell  string `mapstructure:"shell"`
	// Timeout bounds a single way invocation. Zero means no timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// PanelConfig controls the panel listener.
type PanelConfig struct {
	Listen       string        `mapstructure:"listen"`
	RefreshDelay time.Duration `mapstructure:"refresh_delay"`
}

// JournalConfig controls the local command journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from an optional TOML file and WAYSIDE_ prefixed
// environment variables, applying defaults when unset. An explicit path (or
// WAYSIDE_CONFIG) must exist; the default location is optional.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("way.binary", defaultWayBinary)
	v.SetDefault("way.shell", defaultShell)
	v.SetDefault("way.timeout", time.Duration(0))
	v.SetDefault("panel.listen", defaultPanelListen)
	v.SetDefault("panel.refresh_delay", defaultRefreshDelay)
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", defaultJournalPath)
	v.SetDefault("log.level", defaultLogLevel)

	v.SetConfigType("toml")

	if path == "" {
		path = strings.TrimSpace(os.Getenv("WAYSIDE_CONFIG"))
	}
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "wayside"))
		}
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("WAYSIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.Way.Binary = strings.TrimSpace(c.Way.Binary); c.Way.Binary == "" {
		return fmt.Errorf("way binary required")
	}
	if c.Way.Shell = strings.TrimSpace(c.Way.Shell); c.Way.Shell == "" {
		c.Way.Shell = defaultShell
	}
	if c.Way.Timeout < 0 {
		return fmt.Errorf("way timeout must not be negative")
	}

	listen := strings.TrimSpace(c.Panel.Listen)
	if listen == "" {
		listen = defaultPanelListen
	}
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		return fmt.Errorf("invalid panel listen address %q: %w", listen, err)
	}
	if !isLoopback(host) {
		return fmt.Errorf("panel listen address %q must be loopback", listen)
	}
	c.Panel.Listen = listen
	if c.Panel.RefreshDelay < 0 {
		c.Panel.RefreshDelay = 0
	}

	c.Journal.Path = expandPath(c.Journal.Path)
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal path required when journal is enabled")
	}
	return nil
}

func isLoopback(host string) bool {
	host = strings.Trim(strings.TrimSpace(host), "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}
