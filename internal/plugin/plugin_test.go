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

package plugin_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/esh-project/esh/internal/plugin"
	"github.com/esh-project/esh/internal/prompt"
)

func TestNewHostHasEmptyCommandTable(t *testing.T) {
	h := plugin.NewHost(prompt.New())
	if h.Commands == nil {
		t.Fatal("NewHost: Commands is nil, want an empty map")
	}
	if len(h.Commands) != 0 {
		t.Fatalf("NewHost: Commands has %d entries, want 0", len(h.Commands))
	}
}

func TestLoadDirEmptyPathIsNoOp(t *testing.T) {
	h := plugin.NewHost(prompt.New())
	if err := h.LoadDir(""); err != nil {
		t.Fatalf("LoadDir(\"\"): %v", err)
	}
	if len(h.Commands) != 0 {
		t.Fatalf("LoadDir(\"\") registered %d commands, want 0", len(h.Commands))
	}
}

func TestLoadDirNonexistentDirIsAnError(t *testing.T) {
	h := plugin.NewHost(prompt.New())
	if err := h.LoadDir(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatal("LoadDir(nonexistent) returned no error")
	}
}

func TestLoadDirSkipsNonSoEntries(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.so"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	h := plugin.NewHost(prompt.New())
	if err := h.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(h.Commands) != 0 {
		t.Fatalf("LoadDir registered %d commands from non-plugin entries, want 0", len(h.Commands))
	}
}

func TestLoadDirInvalidPluginIsLoggedNotFatal(t *testing.T) {
	dir := t.TempDir()
	// Not a real ELF shared object; plugin.Open will fail to load it. A
	// broken plugin must not prevent the rest of the directory — or the
	// shell itself — from starting.
	if err := os.WriteFile(filepath.Join(dir, "broken.so"), []byte("not an elf"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h := plugin.NewHost(prompt.New())
	if err := h.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v, want nil (load failures are non-fatal)", err)
	}
	if len(h.Commands) != 0 {
		t.Fatalf("LoadDir registered %d commands from a broken plugin, want 0", len(h.Commands))
	}
}
