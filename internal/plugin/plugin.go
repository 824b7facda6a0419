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

// Package plugin loads optional *.so modules from a directory, passed to
// the shell via -p, and wires their exported symbols into the prompt
// builder and the built-in dispatch table. Side effects are limited to
// those two registrations; nothing here is on the critical job-control
// path.
package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"

	"github.com/esh-project/esh/internal/logger"
	"github.com/esh-project/esh/internal/prompt"
)

// Command is a command a plugin registers, invoked with the arguments
// following its name on the command line.
type Command func(argv []string) error

// Host is the set of registration points plugins can use.
type Host struct {
	Prompt   *prompt.Builder
	Commands map[string]Command
}

// NewHost returns a Host with an empty command table.
func NewHost(p *prompt.Builder) *Host {
	return &Host{Prompt: p, Commands: make(map[string]Command)}
}

// LoadDir opens every *.so file in dir and wires up the symbols it
// exports. A plugin may export:
//   - MakePrompt func() string      — registered as a prompt fragment.
//   - Commands map[string]func([]string) error — registered as built-ins.
//
// A plugin missing both symbols is loaded but contributes nothing. Load
// failures are logged and otherwise non-fatal: a broken plugin must not
// prevent the shell from starting.
func (h *Host) LoadDir(dir string) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read plugin dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".so" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := h.load(path); err != nil {
			logger.Noticef("cannot load plugin %s: %v", path, err)
		}
	}
	return nil
}

func (h *Host) load(path string) error {
	p, err := plugin.Open(path)
	if err != nil {
		return err
	}

	if sym, err := p.Lookup("MakePrompt"); err == nil {
		if fn, ok := sym.(func() string); ok {
			h.Prompt.Register(fn)
		}
	}

	if sym, err := p.Lookup("Commands"); err == nil {
		// Lookup returns a pointer for an exported variable.
		if cmds, ok := sym.(*map[string]func([]string) error); ok {
			for name, fn := range *cmds {
				h.Commands[name] = fn
			}
		}
	}

	return nil
}
