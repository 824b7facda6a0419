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

// Package terminal owns the controlling terminal: saving and restoring its
// attributes, and transferring it race-free between process groups.
package terminal

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/esh-project/esh/internal/siggate"
)

// State is a snapshot of a terminal's attributes.
type State struct {
	termios unix.Termios
}

// IsTerminal reports whether fd refers to a terminal.
func IsTerminal(fd int) bool {
	_, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	return err == nil
}

// Save captures the current attributes of the terminal on fd. Returns a nil
// State and no error if fd is not a terminal; save/restore errors on a
// non-terminal fd are not fatal to the shell.
func Save(fd int) (*State, error) {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		if !IsTerminal(fd) {
			return nil, nil
		}
		return nil, fmt.Errorf("save terminal state: %w", err)
	}
	return &State{termios: *t}, nil
}

// Restore applies a previously saved State to fd. A nil state is a no-op.
func Restore(fd int, state *State) error {
	if state == nil {
		return nil
	}
	t := state.termios
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &t); err != nil {
		if !IsTerminal(fd) {
			return nil
		}
		return fmt.Errorf("restore terminal state: %w", err)
	}
	return nil
}

// Foreground returns the pgrp currently owning the controlling terminal on
// fd.
func Foreground(fd int) (int, error) {
	pgrp, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
	if err != nil {
		return 0, fmt.Errorf("tcgetpgrp: %w", err)
	}
	return pgrp, nil
}

// GiveTo transfers ownership of the controlling terminal on fd to pgrp,
// race-free against SIGTTOU: the signal is blocked for the duration of the
// tcsetpgrp call via gate, and restoreState, if non-nil, is applied to the
// terminal before the signal is unblocked again.
//
// Callers differ in how they treat a non-nil error: shell startup, which has
// no correct way to continue without known terminal ownership, treats it as
// fatal; the REPL and launcher, mid-session, just log it and carry on.
func GiveTo(gate *siggate.Gate, fd int, pgrp int, restoreState *State) error {
	if err := gate.Block(unix.SIGTTOU); err != nil {
		return err
	}
	defer gate.Unblock(unix.SIGTTOU)

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, pgrp); err != nil {
		return fmt.Errorf("tcsetpgrp: %w", err)
	}
	if restoreState != nil {
		if err := Restore(fd, restoreState); err != nil {
			return err
		}
	}
	return nil
}
