// Copyright (c) 2021 Canonical Ltd
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License version 3 as
// published by the Free Software Foundation.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config loads esh's optional YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is esh's optional on-disk configuration.
type Config struct {
	PluginDir   string `yaml:"plugin_dir"`
	MetricsAddr string `yaml:"metrics_addr"`
	Prompt      string `yaml:"prompt"`

	// HistorySize is reserved for a future version; history is an
	// explicit non-goal of this shell. Keeping the field lets a config
	// file written against that future version round-trip cleanly
	// through this one.
	HistorySize int `yaml:"history_size"`
}

// Path returns the configuration file path: $ESH_CONFIG if set, otherwise
// ~/.config/esh/esh.yaml.
func Path() (string, error) {
	if p := os.Getenv("ESH_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".config", "esh", "esh.yaml"), nil
}

// Load reads and parses the configuration file at Path(). A missing file
// is not an error and returns a zero-value Config; a malformed file is,
// since unlike an absent config there's no reasonable default to fall
// back to.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
