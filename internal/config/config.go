// Package config resolves run settings from flags, DIAGLOAD_* environment
// variables and an optional YAML file.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "DIAGLOAD"

// DefaultImage is a 1x1 PNG, enough for a backend that only checks the
// field is present.
const DefaultImage = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Image       string        `mapstructure:"image"`
	Timeout     time.Duration `mapstructure:"-"`
	TimeScale   float64       `mapstructure:"time_scale"`
	Tick        time.Duration `mapstructure:"tick"`
	Seed        uint64        `mapstructure:"seed"`
	Scenarios   []string      `mapstructure:"scenarios"`
	History     string        `mapstructure:"history"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
	Out         string        `mapstructure:"out"`
	LogLevel    string        `mapstructure:"log_level"`
	LogFile     string        `mapstructure:"log_file"`
	TUI         bool          `mapstructure:"tui"`

	// ImageData is the base64 fixture sent with every submission.
	ImageData string `mapstructure:"-"`
}

// SetDefaults registers every key so AutomaticEnv can see it even when no
// flag or file mentions it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("endpoint", "")
	v.SetDefault("image", "")
	v.SetDefault("timeout", 30)
	v.SetDefault("time_scale", 1.0)
	v.SetDefault("tick", 100*time.Millisecond)
	v.SetDefault("seed", 0)
	v.SetDefault("scenarios", []string{})
	v.SetDefault("history", defaultHistory())
	v.SetDefault("metrics_addr", "")
	v.SetDefault("out", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("tui", false)
}

// Bind wires v to the environment.
func Bind(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// ReadFile loads path, or $HOME/.diagload.yaml when path is empty. A missing
// default file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".diagload")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes v into a Config, loads the image fixture and validates.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.Timeout = time.Duration(v.GetInt("timeout")) * time.Second
	cfg.Scenarios = splitList(v.GetStringSlice("scenarios"))

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	img, err := LoadImage(cfg.Image)
	if err != nil {
		return cfg, err
	}
	cfg.ImageData = img

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalid)
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: endpoint %q is not an http(s) URL", ErrInvalid, c.Endpoint)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalid)
	}
	if c.TimeScale <= 0 {
		return fmt.Errorf("%w: time_scale must be positive", ErrInvalid)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("%w: tick must be positive", ErrInvalid)
	}
	return nil
}

// LoadImage base64-encodes the file at path. An empty path yields
// DefaultImage.
func LoadImage(path string) (string, error) {
	if path == "" {
		return DefaultImage, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image fixture: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: image fixture %s is empty", ErrInvalid, path)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// splitList accepts both repeated values and one comma-separated value,
// which is how lists arrive from the environment.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func defaultHistory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "diagload-history.db"
	}
	return filepath.Join(home, ".diagload", "history.db")
}
