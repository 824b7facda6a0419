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

// Package builtins implements the shell's job-control verbs: jobs, fg, bg,
// stop, kill and quit. Each parses its single integer jid argument and
// reports an unknown jid the same way, per the bit-exact formats in the
// external interface.
package builtins

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/esh-project/esh/internal/jobtab"
	"github.com/esh-project/esh/internal/launcher"
	"github.com/esh-project/esh/internal/logger"
	"github.com/esh-project/esh/internal/metrics"
	"github.com/esh-project/esh/internal/terminal"
)

// errQuit is returned by Dispatch for the quit built-in, telling the REPL
// driver to end the session cleanly.
var errQuit = errors.New("quit")

// ErrQuit reports whether err is the sentinel returned when the user ran
// the quit built-in.
func ErrQuit(err error) bool {
	return errors.Is(err, errQuit)
}

// noMatchingJob is the message this implementation prints for an unknown
// jid everywhere a jid is looked up — the source uses two different
// spellings ("No job mathcing that ID" in fg, "No job with matching ID"
// elsewhere); this implementation standardizes on the latter, corrected
// spelling throughout.
const noMatchingJob = "No job with matching ID"

// Builtins dispatches the shell's job-control verbs against a jobs table.
type Builtins struct {
	Table    *jobtab.Table
	Launcher *launcher.Launcher
	Out      io.Writer

	// Metrics is optional; nil unless the status server is enabled.
	Metrics *metrics.Metrics
}

// IsBuiltin reports whether name names one of the built-in verbs.
func IsBuiltin(name string) bool {
	switch name {
	case "jobs", "fg", "bg", "stop", "kill", "quit":
		return true
	default:
		return false
	}
}

// Dispatch runs the built-in named argv[0] with the remaining arguments.
// It returns errQuit (test with ErrQuit) when the user ran quit.
func (b *Builtins) Dispatch(argv []string) error {
	switch argv[0] {
	case "jobs":
		return b.jobs()
	case "fg":
		return b.fg(argv)
	case "bg":
		return b.bg(argv)
	case "stop":
		return b.stop(argv)
	case "kill":
		return b.kill(argv)
	case "quit":
		return errQuit
	default:
		return fmt.Errorf("not a builtin: %s", argv[0])
	}
}

// jobs lists every live job: "[jid] <status>     (cmdline)".
func (b *Builtins) jobs() error {
	for _, job := range b.Table.Iter() {
		fmt.Fprintf(b.Out, "[%d] %s     (%s)\n", job.JID, job.State.String(), job.CmdLine())
	}
	return nil
}

// fg brings a job to the foreground. A job already in the foreground is a
// no-op; a Background job is simply foregrounded; a Stopped or
// NeedsTerminal job is continued (SIGCONT after restoring its saved
// terminal state).
func (b *Builtins) fg(argv []string) error {
	job, err := b.argJob(argv)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	switch job.State {
	case jobtab.Foreground:
		return nil
	case jobtab.Background:
		return b.Launcher.Foreground(job)
	case jobtab.Stopped, jobtab.NeedsTerminal:
		return b.Launcher.Continue(job)
	default:
		return nil
	}
}

// bg resumes a job in the background: SIGCONT to its process group, clear
// every command's stopped flag, set state to Background.
func (b *Builtins) bg(argv []string) error {
	job, err := b.argJob(argv)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	if err := unix.Kill(-job.Pgrp, unix.SIGCONT); err != nil {
		logger.Noticef("kill -SIGCONT %d: %v", job.Pgrp, err)
		return nil
	}
	for _, c := range job.Commands {
		c.Stopped = false
	}
	job.State = jobtab.Background
	job.Notified = false
	return nil
}

// stop snapshots the terminal state into the job and sends SIGTSTP to its
// process group.
func (b *Builtins) stop(argv []string) error {
	job, err := b.argJob(argv)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	if state, err := terminal.Save(b.Launcher.TTYFD); err == nil {
		job.SavedTTY = state
	}
	if err := unix.Kill(-job.Pgrp, unix.SIGTSTP); err != nil {
		logger.Noticef("kill -SIGTSTP %d: %v", job.Pgrp, err)
		return nil
	}
	job.State = jobtab.Stopped
	return nil
}

// kill sends SIGKILL to the job's process group and removes it from the
// table immediately; the corpses are reaped by the next sweep.
func (b *Builtins) kill(argv []string) error {
	job, err := b.argJob(argv)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	if err := unix.Kill(-job.Pgrp, unix.SIGKILL); err != nil {
		logger.Noticef("kill -SIGKILL %d: %v", job.Pgrp, err)
		return nil
	}
	b.Table.Remove(job)
	if b.Metrics != nil {
		b.Metrics.JobsKilled.Inc()
	}
	return nil
}

// argJob parses argv[1] as a jid and looks it up, printing noMatchingJob
// and returning a nil job (not an error — unknown jids are not fatal to
// the REPL) if absent.
func (b *Builtins) argJob(argv []string) (*jobtab.Job, error) {
	if len(argv) < 2 {
		fmt.Fprintln(b.Out, noMatchingJob)
		return nil, nil
	}
	jid, err := strconv.Atoi(argv[1])
	if err != nil {
		fmt.Fprintln(b.Out, noMatchingJob)
		return nil, nil
	}
	job := b.Table.FindByJID(jid)
	if job == nil {
		fmt.Fprintln(b.Out, noMatchingJob)
		return nil, nil
	}
	return job, nil
}
