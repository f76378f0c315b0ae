// Package config resolves conversion settings from built-in defaults,
// environment variables, and an optional YAML file. Flags override all of
// these; the caller applies them last.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the conversion settings the CLI exposes.
type Config struct {
	InputDir           string `yaml:"input_dir"`
	OutputDir          string `yaml:"output_dir"`
	Mode               string `yaml:"mode"`
	Style              string `yaml:"style"`
	MediaAll           bool   `yaml:"media_all"`
	SplitChapters      bool   `yaml:"split_chapters"`
	ChapterFallback    string `yaml:"chapter_fallback"`
	FallbackMinSpacing int    `yaml:"fallback_min_spacing"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		InputDir:           ".",
		OutputDir:          "./out",
		Mode:               "plain",
		Style:              "inline",
		ChapterFallback:    "auto",
		FallbackMinSpacing: 2,
	}
}

// envVars maps environment variable names onto config fields.
var envVars = map[string]func(*Config, string) error{
	"EPUB2MD_INPUT_DIR":  func(c *Config, v string) error { c.InputDir = v; return nil },
	"EPUB2MD_OUTPUT_DIR": func(c *Config, v string) error { c.OutputDir = v; return nil },
	"EPUB2MD_MODE":       func(c *Config, v string) error { c.Mode = v; return nil },
	"EPUB2MD_STYLE":      func(c *Config, v string) error { c.Style = v; return nil },
	"EPUB2MD_MEDIA_ALL": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.MediaAll = b
		return err
	},
	"EPUB2MD_SPLIT_CHAPTERS": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.SplitChapters = b
		return err
	},
	"EPUB2MD_CHAPTER_FALLBACK": func(c *Config, v string) error { c.ChapterFallback = v; return nil },
	"EPUB2MD_FALLBACK_MIN_SPACING": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.FallbackMinSpacing = n
		return err
	},
}

// ApplyEnv overlays EPUB2MD_* environment variables, including any loaded
// from a .env file earlier in startup.
func (c *Config) ApplyEnv() error {
	for name, set := range envVars {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		if err := set(c, v); err != nil {
			return fmt.Errorf("config: invalid %s=%q: %w", name, v, err)
		}
	}
	return nil
}

// ApplyFile overlays settings from a YAML file. Fields absent from the file
// keep their current values.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
