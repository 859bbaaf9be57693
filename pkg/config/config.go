// Package config loads rcopy settings from TOML or YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"

	"avaneesh/rcopy-go/pkg/codec"
	"avaneesh/rcopy-go/pkg/frame"
	"avaneesh/rcopy-go/pkg/internal/logger"
)

// Defaults
const (
	DefaultAddress   = "127.0.0.1:10001"
	DefaultTransport = "udp"
	DefaultLogLevel  = "info"
)

// Transports lists the accepted transport names
var Transports = []string{"udp", "tcp", "quic"}

// Log configures logging
type Log struct {
	Level   string `toml:"level" yaml:"level"`
	NoColor bool   `toml:"no_color" yaml:"no_color"`
}

// Config is the full rcopy configuration shared by server and client
type Config struct {
	Mode       string `toml:"mode" yaml:"mode"`               // plain, parity or hamming
	Transport  string `toml:"transport" yaml:"transport"`     // udp, tcp or quic
	Listen     string `toml:"listen" yaml:"listen"`           // Server bind address
	Remote     string `toml:"remote" yaml:"remote"`           // Client server address
	MaxFrame   int    `toml:"max_frame" yaml:"max_frame"`     // Largest frame on the wire
	Root       string `toml:"root" yaml:"root"`               // Server start directory and confinement root
	MaxRetries int    `toml:"max_retries" yaml:"max_retries"` // Retry loop bound, 0 = unbounded
	Journal    string `toml:"journal" yaml:"journal"`         // SQLite journal path, empty disables it
	Log        Log    `toml:"log" yaml:"log"`
}

// Default returns the default configuration
func Default() Config {
	c := Config{}
	c.setDefaults()
	return c
}

// Load reads path. Files ending in .yaml or .yml are YAML, everything else TOML.
// Unset keys keep their defaults.
func Load(path string) (Config, error) {
	var (
		c   Config
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		c, err = loadYAML(path)
	default:
		c, err = loadTOML(path)
	}
	if err != nil {
		return Config{}, err
	}

	c.setDefaults()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func loadYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func loadTOML(path string) (Config, error) {
	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		logger.Warn("config: %s: unknown keys %v", path, undecoded)
	}

	c := Default()
	if meta.IsDefined("mode") {
		c.Mode = strings.TrimSpace(raw.Mode)
	}
	if meta.IsDefined("transport") {
		c.Transport = strings.TrimSpace(raw.Transport)
	}
	if meta.IsDefined("listen") {
		c.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("remote") {
		c.Remote = strings.TrimSpace(raw.Remote)
	}
	if meta.IsDefined("max_frame") {
		c.MaxFrame = raw.MaxFrame
	}
	if meta.IsDefined("root") {
		c.Root = strings.TrimSpace(raw.Root)
	}
	if meta.IsDefined("max_retries") {
		c.MaxRetries = raw.MaxRetries
	}
	if meta.IsDefined("journal") {
		c.Journal = strings.TrimSpace(raw.Journal)
	}
	if meta.IsDefined("log", "level") {
		c.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "no_color") {
		c.Log.NoColor = raw.Log.NoColor
	}
	return c, nil
}

func (c *Config) setDefaults() {
	if c.Transport == "" {
		c.Transport = DefaultTransport
	}
	if c.Listen == "" {
		c.Listen = DefaultAddress
	}
	if c.Remote == "" {
		c.Remote = DefaultAddress
	}
	if c.MaxFrame == 0 {
		c.MaxFrame = frame.DefaultMaxSize
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var allErrors []error

	if _, err := codec.ParseMode(c.Mode); err != nil {
		allErrors = append(allErrors, err)
	}
	if !slices.Contains(Transports, c.Transport) {
		allErrors = append(allErrors, fmt.Errorf("transport must be one of %s, got %q", strings.Join(Transports, ", "), c.Transport))
	}
	if err := frame.ValidateMaxSize(c.MaxFrame); err != nil {
		allErrors = append(allErrors, err)
	}
	if c.MaxRetries < 0 {
		allErrors = append(allErrors, fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	if _, ok := logger.ParseLevel(c.Log.Level); !ok {
		allErrors = append(allErrors, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	return writeErr(allErrors)
}

// CodecMode returns the parsed mode
func (c *Config) CodecMode() (codec.Mode, error) {
	return codec.ParseMode(c.Mode)
}

func writeErr(allErrors []error) error {
	if len(allErrors) > 0 {
		var messages []string
		for _, err := range allErrors {
			messages = append(messages, err.Error())
		}
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}
	return nil
}
