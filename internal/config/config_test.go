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

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/esh-project/esh/internal/config"
)

func TestPathHonorsEnvOverride(t *testing.T) {
	t.Setenv("ESH_CONFIG", "/tmp/custom-esh.yaml")
	path, err := config.Path()
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if path != "/tmp/custom-esh.yaml" {
		t.Errorf("Path() = %q, want %q", path, "/tmp/custom-esh.yaml")
	}
}

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	t.Setenv("ESH_CONFIG", filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg != (config.Config{}) {
		t.Errorf("Load() of a missing file = %+v, want zero value", *cfg)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "esh.yaml")
	contents := "plugin_dir: /opt/esh/plugins\nmetrics_addr: 127.0.0.1:9191\nprompt: \"% \"\n"
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ESH_CONFIG", path)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PluginDir != "/opt/esh/plugins" {
		t.Errorf("PluginDir = %q, want %q", cfg.PluginDir, "/opt/esh/plugins")
	}
	if cfg.MetricsAddr != "127.0.0.1:9191" {
		t.Errorf("MetricsAddr = %q, want %q", cfg.MetricsAddr, "127.0.0.1:9191")
	}
	if cfg.Prompt != "% " {
		t.Errorf("Prompt = %q, want %q", cfg.Prompt, "% ")
	}
}

func TestLoadMalformedFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "esh.yaml")
	if err := os.WriteFile(path, []byte("prompt: [unterminated"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ESH_CONFIG", path)

	if _, err := config.Load(); err == nil {
		t.Fatal("Load of a malformed file returned no error")
	}
}
