// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Serial SerialConfig `toml:"serial"`
	Record RecordConfig `toml:"record"`
	OCR    OCRConfig    `toml:"ocr"`
	UI     UIConfig     `toml:"ui"`
	DBPath *string      `toml:"db-path"`
}

// SerialConfig maps serial port settings.
type SerialConfig struct {
	Port *string `toml:"port"`
	Baud *int    `toml:"baud"`
}

// RecordConfig maps session recorder settings.
type RecordConfig struct {
	StartDebounce *int     `toml:"start-debounce"`
	StopDebounce  *int     `toml:"stop-debounce"`
	GapSeconds    *float64 `toml:"gap-seconds"`
	Buckets       *int     `toml:"buckets"`
}

// OCRConfig maps field recognition settings.
type OCRConfig struct {
	Tolerance *float64 `toml:"tolerance"`
	Confirm   *int     `toml:"confirm-passes"`
}

// UIConfig maps presentation settings.
type UIConfig struct {
	WaterfallDepth *int `toml:"waterfall-depth"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
