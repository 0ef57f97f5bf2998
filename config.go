package devicemap

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/leonelquinteros/gotext"
)

// translationDomain is the gettext domain of device descriptions.
const translationDomain = "devicemap"

// Config holds the settings of a device map program.
type Config struct {
	// Addr is the listen address of the web target. Empty disables it.
	Addr string `yaml:"addr"`
	// Interval between two feed updates.
	Interval time.Duration `yaml:"interval"`
	// DevicesFile is read by the feed on every tick.
	DevicesFile string `yaml:"devices_file"`
	// Terminal enables the terminal target on stdout.
	Terminal bool `yaml:"terminal"`
	// LocaleDir and Language select the translations of device descriptions.
	LocaleDir string `yaml:"locale_dir"`
	Language  string `yaml:"language"`
	// LogFile enables a rotated log file instead of stderr.
	LogFile string `yaml:"log_file"`
	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() Config {
	return Config{
		Addr:     ":8080",
		Interval: time.Second,
		Language: "en_US",
		LogLevel: "INFO",
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	switch c.LogLevel {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// ApplyLocale loads the description translations when a locale directory is set.
func (c Config) ApplyLocale() {
	if c.LocaleDir == "" {
		return
	}
	gotext.Configure(c.LocaleDir, c.Language, translationDomain)
}
