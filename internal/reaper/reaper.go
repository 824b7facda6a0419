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

// Package reaper reconciles kernel child-process state into the jobs
// table: a non-blocking sweep run from the REPL between prompts, a
// blocking wait used by the launcher for foreground jobs, and a background
// goroutine that keeps the table consistent between sweeps so SIGCHLD
// never goes unobserved while the REPL is blocked in readline.
package reaper

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"golang.org/x/sys/unix"
	"gopkg.in/tomb.v2"

	"github.com/esh-project/esh/internal/jobtab"
	"github.com/esh-project/esh/internal/logger"
	"github.com/esh-project/esh/internal/metrics"
	"github.com/esh-project/esh/internal/terminal"
)

// Reaper reconciles wait(2) results into a jobs table and prints the
// user-visible notifications the REPL shows on each pass.
type Reaper struct {
	table     *jobtab.Table
	ttyFD     int
	shellPgrp int
	out       io.Writer

	// Metrics is optional; nil unless the status server is enabled.
	Metrics *metrics.Metrics

	// OnEvent, if set, is called for every job-control transition Sweep
	// observes (kind is "stopped" or "done"), feeding the status server's
	// /events websocket. Never blocks the sweep: the status server's
	// Broadcast is itself non-blocking.
	OnEvent func(jid int, kind, cmdline string)

	tomb    tomb.Tomb
	mu      sync.Mutex
	started bool
}

// New returns a Reaper operating on table, reclaiming ttyFD to shellPgrp
// whenever it stops. Notifications are written to out.
func New(table *jobtab.Table, ttyFD, shellPgrp int, out io.Writer) *Reaper {
	return &Reaper{table: table, ttyFD: ttyFD, shellPgrp: shellPgrp, out: out}
}

// Start launches the background goroutine that reconciles SIGCHLD delivery
// between REPL prompts, so zombies are reaped even while the shell is
// blocked reading a line. It performs only state reconciliation — never
// notifications or table-structure changes.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.tomb.Go(r.watch)
}

// Stop ends the background goroutine and reclaims the terminal to
// shellPgrp, the same defensive reclaim the source performs whenever the
// reaping machinery is torn down.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.tomb.Kill(nil)
	r.tomb.Wait()

	if r.ttyFD >= 0 && terminal.IsTerminal(r.ttyFD) {
		if err := unix.IoctlSetPointerInt(r.ttyFD, unix.TIOCSPGRP, r.shellPgrp); err != nil {
			logger.Debugf("reaper stop: reclaim terminal: %v", err)
		}
	}

	r.mu.Lock()
	r.started = false
	r.mu.Unlock()
}

// watch waits for SIGCHLD and reconciles, until the tomb is killed.
func (r *Reaper) watch() error {
	sigChld := make(chan os.Signal, 1)
	signal.Notify(sigChld, unix.SIGCHLD)
	for {
		select {
		case <-sigChld:
			r.reconcileOnly()
		case <-r.tomb.Dying():
			signal.Stop(sigChld)
			return nil
		}
	}
}

// reconcileOnly drains pending wait results into Command/Job fields without
// printing anything or changing the table's structure: the async half of
// the reaper never performs stdio and never races the REPL's structural
// mutations.
func (r *Reaper) reconcileOnly() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG|unix.WUNTRACED, nil)
		if err != nil || pid <= 0 {
			return
		}
		r.applyStatus(pid, status)
	}
}

// applyStatus records a wait(2) result against the Command with that pid.
// Per the source's buggy raw signal-number comparisons, this uses the
// WaitStatus accessors (Stopped/StopSignal/Signaled/Signal) instead. A pid
// matching no tracked Command is ignored.
func (r *Reaper) applyStatus(pid int, status unix.WaitStatus) {
	_, cmd := r.table.FindByPid(pid)
	if cmd == nil {
		return
	}
	cmd.Status = int(status)
	if status.Stopped() {
		cmd.Stopped = true
		if r.Metrics != nil {
			r.Metrics.SignalsSeen.WithLabelValues(status.StopSignal().String()).Inc()
		}
	} else {
		cmd.Completed = true
		cmd.Stopped = false
		if status.Signaled() && r.Metrics != nil {
			r.Metrics.SignalsSeen.WithLabelValues(status.Signal().String()).Inc()
		}
	}
}

// Sweep performs one non-blocking reap pass, updates every job's state, and
// prints the stop/completion notifications the REPL shows before its next
// prompt. Jobs with every command completed are removed after their DONE
// line is printed.
func (r *Reaper) Sweep() {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG|unix.WUNTRACED, nil)
		if err != nil || pid <= 0 {
			break
		}
		r.applyStatus(pid, status)
	}

	for _, job := range r.table.Iter() {
		if job.State == jobtab.Foreground {
			// The launcher's WaitForJob owns removal of a job that was
			// foreground when it completed, to avoid a double free.
			continue
		}
		switch {
		case job.AllCompleted():
			fmt.Fprintf(r.out, "[%d]  DONE          %s\n", job.JID, job.CmdLine())
			r.table.Remove(job)
			if r.Metrics != nil {
				r.Metrics.JobsCompleted.Inc()
			}
			if r.OnEvent != nil {
				r.OnEvent(job.JID, "done", job.CmdLine())
			}
		case job.AnyStopped() && job.AllStoppedOrDone():
			job.State = jobtab.Stopped
			if !job.Notified {
				fmt.Fprintf(r.out, "[%d] Stopped%s\n", job.JID, job.CmdLine())
				job.Notified = true
				if r.OnEvent != nil {
					r.OnEvent(job.JID, "stopped", job.CmdLine())
				}
			}
		}
	}
}

// WaitForJob blocks, reaping any child, until every command in job is
// either completed or stopped. It is used by the launcher while a job is
// in the foreground: the shell has nothing else to do but wait.
func (r *Reaper) WaitForJob(job *jobtab.Job) {
	for !job.AllCompleted() && !job.AllStoppedOrDone() {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WUNTRACED, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.ECHILD {
				return
			}
			logger.Noticef("wait: %v", err)
			return
		}
		r.applyStatus(pid, status)
	}
}
