// Copyright (c) 2022 Canonical Ltd
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

// Package launcher forks a pipeline's children, assigns them a shared
// process group, picks their initial foreground/background state, and
// waits synchronously when the job is in the foreground.
package launcher

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/esh-project/esh/internal/jobtab"
	"github.com/esh-project/esh/internal/logger"
	"github.com/esh-project/esh/internal/metrics"
	"github.com/esh-project/esh/internal/reaper"
	"github.com/esh-project/esh/internal/siggate"
	"github.com/esh-project/esh/internal/terminal"
)

// Launcher owns fork/exec of pipelines and the terminal handoff around a
// foreground job's lifetime.
type Launcher struct {
	Table       *jobtab.Table
	Gate        *siggate.Gate
	Reaper      *reaper.Reaper
	ShellPgrp   int
	ShellTTY    *terminal.State
	TTYFD       int
	Interactive bool
	Out         io.Writer

	// Metrics is optional; nil unless the status server is enabled.
	Metrics *metrics.Metrics

	// OnEvent, if set, is called once a new job has been launched, feeding
	// the status server's /events websocket alongside the reaper's own
	// stopped/done events.
	OnEvent func(jid int, kind, cmdline string)
}

// Launch runs job, a freshly parsed pipeline not yet in the table. bg
// selects whether the job starts in the foreground or background.
func (l *Launcher) Launch(job *jobtab.Job, bg bool) error {
	if err := l.Gate.Block(unix.SIGCHLD); err != nil {
		return err
	}

	job.JID = l.Table.AllocateJID()
	job.Bg = bg
	if bg {
		job.State = jobtab.Background
	} else {
		job.State = jobtab.Foreground
	}
	l.Table.Insert(job)

	for _, cmd := range job.Commands {
		if err := l.forkOne(job, cmd, !bg); err != nil {
			logger.Noticef("cannot start %q: %v", cmd.Argv[0], err)
			l.Table.Remove(job)
			l.Gate.Unblock(unix.SIGCHLD)
			return err
		}
	}

	fmt.Fprintf(l.Out, "[%d] %d\n", job.JID, job.Pgrp)
	if l.Metrics != nil {
		l.Metrics.JobsLaunched.Inc()
	}
	if l.OnEvent != nil {
		l.OnEvent(job.JID, "started", job.CmdLine())
	}

	l.Gate.Unblock(unix.SIGCHLD)

	if !l.Interactive {
		l.Reaper.WaitForJob(job)
		l.postWait(job)
		return nil
	}

	if bg {
		return nil
	}

	if err := terminal.GiveTo(l.Gate, l.TTYFD, job.Pgrp, nil); err != nil {
		return err
	}
	l.Reaper.WaitForJob(job)
	l.reclaim(job)
	return nil
}

// Foreground transitions job, already in the table, into the foreground:
// used by the "fg" built-in for a job that was already Background.
func (l *Launcher) Foreground(job *jobtab.Job) error {
	job.State = jobtab.Foreground
	if !l.Interactive {
		l.Reaper.WaitForJob(job)
		l.postWait(job)
		return nil
	}
	if err := terminal.GiveTo(l.Gate, l.TTYFD, job.Pgrp, nil); err != nil {
		return err
	}
	l.Reaper.WaitForJob(job)
	l.reclaim(job)
	return nil
}

// Continue resumes a Stopped or NeedsTerminal job into the foreground:
// clears every command's stopped flag, restores its saved terminal state,
// sends SIGCONT to the process group, then waits as Foreground does.
func (l *Launcher) Continue(job *jobtab.Job) error {
	job.State = jobtab.NeedsTerminal
	for _, c := range job.Commands {
		c.Stopped = false
	}
	job.Notified = false

	if l.Interactive {
		if err := terminal.GiveTo(l.Gate, l.TTYFD, job.Pgrp, job.SavedTTY); err != nil {
			return err
		}
	}
	job.State = jobtab.Foreground

	if err := unix.Kill(-job.Pgrp, unix.SIGCONT); err != nil {
		logger.Noticef("kill -SIGCONT %d: %v", job.Pgrp, err)
	}

	l.Reaper.WaitForJob(job)
	if l.Interactive {
		l.reclaim(job)
	} else {
		l.postWait(job)
	}
	return nil
}

// postWait removes job from the table if every command has completed,
// after a blocking wait outside the terminal-owning path (non-interactive
// shells have no terminal to reclaim).
func (l *Launcher) postWait(job *jobtab.Job) {
	if job.AllCompleted() {
		l.Table.Remove(job)
		if l.Metrics != nil {
			l.Metrics.JobsCompleted.Inc()
		}
	}
}

// reclaim gives the terminal back to the shell's own process group and
// restores its saved attributes, snapshotting the job's terminal state
// first if it stopped rather than completed, then removes the job if it
// completed. This is the interactive counterpart to postWait.
func (l *Launcher) reclaim(job *jobtab.Job) {
	if job.AllCompleted() {
		l.Table.Remove(job)
		if l.Metrics != nil {
			l.Metrics.JobsCompleted.Inc()
		}
	} else if job.AnyStopped() {
		if state, err := terminal.Save(l.TTYFD); err == nil {
			job.SavedTTY = state
		}
		job.State = jobtab.Stopped
		if l.Metrics != nil {
			l.Metrics.JobsStopped.Inc()
		}
	}

	if err := terminal.GiveTo(l.Gate, l.TTYFD, l.ShellPgrp, l.ShellTTY); err != nil {
		logger.Noticef("reclaim terminal: %v", err)
	}
}

// forkOne starts one command of job, wiring up process-group assignment
// and (for the first command of a foreground job) the terminal handoff.
// The SysProcAttr fields do the pgid assignment and tcsetpgrp call inside
// the child, atomically with respect to the fork — Setpgid+Pgid avoids the
// race where the parent's setpgid and the child's own exec interleave, and
// Foreground+Ctty avoids a second race around tcsetpgrp. The explicit
// parent-side setpgid below is the second half of that same defense: it is
// deliberately redundant with the child's own pgid assignment.
func (l *Launcher) forkOne(job *jobtab.Job, cmd *jobtab.Command, foreground bool) error {
	c := exec.Command(cmd.Argv[0], cmd.Argv[1:]...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr

	attr := &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    job.Pgrp,
	}
	if foreground && l.Interactive && job.Pgrp == 0 {
		attr.Foreground = true
		attr.Ctty = l.TTYFD
	}
	c.SysProcAttr = attr

	if err := c.Start(); err != nil {
		return fmt.Errorf("fork/exec: %w", err)
	}

	cmd.Pid = c.Process.Pid
	if job.Pgrp == 0 {
		job.Pgrp = c.Process.Pid
	}

	if err := unix.Setpgid(cmd.Pid, job.Pgrp); err != nil {
		switch err {
		case unix.EACCES, unix.ESRCH, unix.EPERM:
			// The child has already exec'd and set its own pgid, or has
			// already exited; either way the group is already correct.
		default:
			logger.Debugf("setpgid(%d, %d): %v", cmd.Pid, job.Pgrp, err)
		}
	}

	// Deliberately not c.Wait(): every wait4 call in this shell goes
	// through the reaper (Sweep / WaitForJob / the SIGCHLD watcher) so
	// WUNTRACED stop notifications are observed; a concurrent cmd.Wait
	// would race the reaper for the same pid.
	return nil
}
