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

// Package jobtab is the shell's jobs table: the ordered collection of live
// jobs, keyed by a small integer job-id, with allocation, lookup, removal
// and renumbering.
package jobtab

import (
	"strings"
	"sync"

	"github.com/esh-project/esh/internal/terminal"
)

// State is a Job's job-control state.
type State int

const (
	// Foreground is the job currently holding the controlling terminal.
	Foreground State = iota
	// Background is a running job that does not hold the terminal.
	Background
	// Stopped is a job all of whose commands have received a stop signal.
	Stopped
	// NeedsTerminal is a Stopped job about to be continued into the
	// foreground, between the decision to foreground it and the terminal
	// handoff actually completing.
	NeedsTerminal
)

func (s State) String() string {
	switch s {
	case Foreground, Background:
		return "Running"
	case Stopped, NeedsTerminal:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Command is one program invocation within a pipeline.
type Command struct {
	Argv      []string
	Pid       int
	Completed bool
	Stopped   bool
	Status    int
}

// Job is one or more Commands linked by pipes, sharing a process group.
type Job struct {
	JID      int
	Pgrp     int
	Commands []*Command
	State    State
	Bg       bool
	SavedTTY *terminal.State
	Notified bool
}

// CmdLine renders the job's commands the way the source's print_job_name
// does: every argv token followed by a space, pipeline stages joined by
// " | ". The trailing space is intentional and appears in the bit-exact
// notification formats.
func (j *Job) CmdLine() string {
	var b strings.Builder
	for i, c := range j.Commands {
		if i > 0 {
			b.WriteString(" | ")
		}
		for _, a := range c.Argv {
			b.WriteString(a)
			b.WriteString(" ")
		}
	}
	return b.String()
}

// AllCompleted reports whether every command in the job has completed.
func (j *Job) AllCompleted() bool {
	for _, c := range j.Commands {
		if !c.Completed {
			return false
		}
	}
	return true
}

// AllStoppedOrDone reports whether every command is either stopped or
// completed, i.e. none is still running.
func (j *Job) AllStoppedOrDone() bool {
	for _, c := range j.Commands {
		if !c.Completed && !c.Stopped {
			return false
		}
	}
	return true
}

// AnyStopped reports whether at least one command is stopped.
func (j *Job) AnyStopped() bool {
	for _, c := range j.Commands {
		if c.Stopped {
			return true
		}
	}
	return false
}

// Table is the ordered collection of live jobs. Order is insertion order.
// Every live JID and every live Pgrp is unique among entries in the table.
//
// Table is not internally goroutine-safe beyond serializing its own method
// calls: callers mutate it only while SIGCHLD is blocked via the signal
// gate, per the REPL's discipline, except for the reconciliation goroutine
// which only ever touches Command/Job fields already protected by mu.
type Table struct {
	mu   sync.Mutex
	jobs []*Job
}

// New returns an empty jobs table.
func New() *Table {
	return &Table{}
}

// Insert adds job to the table. The caller must set job.JID before calling,
// typically to the result of AllocateJID.
func (t *Table) Insert(job *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs = append(t.jobs, job)
}

// Remove deletes job from the table, if present.
func (t *Table) Remove(job *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, j := range t.jobs {
		if j == job {
			t.jobs = append(t.jobs[:i], t.jobs[i+1:]...)
			return
		}
	}
}

// FindByJID returns the job with the given jid, or nil if none.
func (t *Table) FindByJID(jid int) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.JID == jid {
			return j
		}
	}
	return nil
}

// FindByPgrp returns the job with the given process group, or nil if none.
func (t *Table) FindByPgrp(pgrp int) *Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		if j.Pgrp == pgrp {
			return j
		}
	}
	return nil
}

// FindByPid returns the job and command containing pid, or nil, nil if no
// live job has a command with that pid. Used by the reaper to map a wait
// result back to table state.
func (t *Table) FindByPid(pid int) (*Job, *Command) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range t.jobs {
		for _, c := range j.Commands {
			if c.Pid == pid {
				return j, c
			}
		}
	}
	return nil, nil
}

// Iter returns a snapshot slice of the jobs currently in the table, in
// insertion order. Safe to range over without holding the table lock.
func (t *Table) Iter() []*Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Job, len(t.jobs))
	copy(out, t.jobs)
	return out
}

// IsEmpty reports whether the table has no live jobs.
func (t *Table) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.jobs) == 0
}

// AllocateJID returns the next job-id to assign: one greater than the
// largest jid currently in the table, or 1 if the table is empty.
func (t *Table) AllocateJID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	max := 0
	for _, j := range t.jobs {
		if j.JID > max {
			max = j.JID
		}
	}
	return max + 1
}
