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

// Package prompt builds the text shown before each read. A plugin loaded
// via -p may register a fragment function that runs ahead of the default
// text, e.g. to show a hostname or job count.
package prompt

import "fmt"

const defaultPrompt = "esh> "

// Fragment is a function a plugin can register to contribute to the
// prompt, run before the static default text.
type Fragment func() string

// Builder assembles the next prompt from the default text plus whatever
// fragments plugins have registered.
type Builder struct {
	fragments []Fragment
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// Register adds a fragment function, called in registration order.
func (b *Builder) Register(f Fragment) {
	b.fragments = append(b.fragments, f)
}

// Build returns the prompt text for the next read. The caller owns the
// returned string.
func (b *Builder) Build() string {
	s := ""
	for _, f := range b.fragments {
		s += f()
	}
	return s + defaultPrompt
}

// String implements fmt.Stringer for convenience in log messages.
func (b *Builder) String() string {
	return fmt.Sprintf("prompt.Builder{%d fragments}", len(b.fragments))
}
