// Package config loads the standoff CLI configuration from a YAML file.
package config

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/standoffconverter/core/bundle"
	"github.com/FocuswithJustin/standoffconverter/core/errors"
	"github.com/FocuswithJustin/standoffconverter/internal/logging"
)

// Config is the on-disk configuration. Zero fields fall back to Default.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Filter FilterConfig `yaml:"filter"`
	Edit   EditConfig   `yaml:"edit"`
	Bundle BundleConfig `yaml:"bundle"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type FilterConfig struct {
	// Namespace is matched against element namespaces when a query tag
	// carries no prefix.
	Namespace string `yaml:"namespace"`
}

type EditConfig struct {
	// Unique suppresses additions that duplicate an existing annotation.
	Unique bool `yaml:"unique"`
}

type BundleConfig struct {
	Compression string `yaml:"compression"`
}

type SQLiteConfig struct {
	DSN string `yaml:"dsn"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info", Format: "text"},
		Edit:   EditConfig{Unique: true},
		Bundle: BundleConfig{Compression: string(bundle.CompressionXZ)},
		SQLite: SQLiteConfig{DSN: "standoff.db"},
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, leaving fields the document omits untouched,
// and validates the result. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return errors.NewParse("YAML", "", err.Error())
	}
	return cfg.Validate()
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errors.NewValidation("log.level", err.Error())
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return errors.NewValidation("log.format", err.Error())
	}
	if _, err := bundle.ParseCompression(c.Bundle.Compression); err != nil {
		return errors.NewValidation("bundle.compression", err.Error())
	}
	return nil
}

// Marshal encodes c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
