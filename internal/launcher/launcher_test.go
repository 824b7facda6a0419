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

package launcher_test

import (
	"bytes"
	"os"
	"os/exec"
	"syscall"
	"testing"

	. "gopkg.in/check.v1"

	dto "github.com/prometheus/client_model/go"

	"github.com/esh-project/esh/internal/jobtab"
	"github.com/esh-project/esh/internal/launcher"
	"github.com/esh-project/esh/internal/metrics"
	"github.com/esh-project/esh/internal/reaper"
	"github.com/esh-project/esh/internal/siggate"
	"github.com/esh-project/esh/internal/testutil"
)

func Test(t *testing.T) { TestingT(t) }

var _ = Suite(&launcherSuite{})

// launcherSuite exercises the launcher in non-interactive mode, where every
// job is launched into its own process group and block-waited regardless of
// the background marker — there is no terminal to hand off without a real
// pty, which this module's dependency set does not provide.
type launcherSuite struct {
	table *jobtab.Table
	out   *bytes.Buffer
	reap  *reaper.Reaper
	l     *launcher.Launcher
}

func (s *launcherSuite) SetUpTest(c *C) {
	s.table = jobtab.New()
	s.out = &bytes.Buffer{}
	s.reap = reaper.New(s.table, -1, 0, s.out)
	s.reap.Start()
	s.l = &launcher.Launcher{
		Table:       s.table,
		Gate:        siggate.New(),
		Reaper:      s.reap,
		TTYFD:       -1,
		Interactive: false,
		Out:         s.out,
	}
}

func (s *launcherSuite) TearDownTest(c *C) {
	s.reap.Stop()
}

func job(argv ...string) *jobtab.Job {
	return &jobtab.Job{Commands: []*jobtab.Command{{Argv: argv}}}
}

// spawnGroup starts a real child in its own process group and inserts it
// into the table as a Background job, mirroring how the launcher itself
// tracks a job it has already forked.
func (s *launcherSuite) spawnGroup(c *C, argv ...string) *jobtab.Job {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Assert(cmd.Start(), IsNil)

	j := &jobtab.Job{
		JID:      s.table.AllocateJID(),
		Pgrp:     cmd.Process.Pid,
		Commands: []*jobtab.Command{{Argv: argv, Pid: cmd.Process.Pid}},
		State:    jobtab.Background,
	}
	s.table.Insert(j)
	return j
}

func (s *launcherSuite) TestLaunchForegroundRunsToCompletion(c *C) {
	j := job("true")
	err := s.l.Launch(j, false)
	c.Assert(err, IsNil)

	c.Check(j.Commands[0].Completed, Equals, true)
	c.Check(j.Commands[0].Pid > 0, Equals, true)
	c.Check(j.Pgrp, Equals, j.Commands[0].Pid)
	c.Check(s.table.FindByJID(j.JID), IsNil)
}

func (s *launcherSuite) TestLaunchAnnouncesJidAndPgrp(c *C) {
	j := job("true")
	err := s.l.Launch(j, false)
	c.Assert(err, IsNil)
	c.Check(s.out.String(), Matches, `\[1\] \d+\n`)
}

func (s *launcherSuite) TestLaunchNonInteractiveBlocksEvenInBackground(c *C) {
	j := job("sh", "-c", "exit 7")
	err := s.l.Launch(j, true)
	c.Assert(err, IsNil)

	// Non-interactive Launch always block-waits, per job-control step 5,
	// regardless of the background marker: there is no sweep loop that
	// would otherwise reap it.
	c.Check(j.Commands[0].Completed, Equals, true)
	c.Check(s.table.FindByJID(j.JID), IsNil)
}

func (s *launcherSuite) TestLaunchIncrementsMetrics(c *C) {
	m, _ := metrics.New()
	s.l.Metrics = m
	s.reap.Metrics = m

	j := job("true")
	err := s.l.Launch(j, false)
	c.Assert(err, IsNil)

	var out dto.Metric
	c.Assert(m.JobsLaunched.Write(&out), IsNil)
	c.Check(out.GetCounter().GetValue(), Equals, float64(1))

	out = dto.Metric{}
	c.Assert(m.JobsCompleted.Write(&out), IsNil)
	c.Check(out.GetCounter().GetValue(), Equals, float64(1))
}

func (s *launcherSuite) TestLaunchBadCommandErrorsAndDoesNotLeaveJobInTable(c *C) {
	j := job("/no/such/executable-esh-test")
	err := s.l.Launch(j, false)
	c.Assert(err, NotNil)
	c.Check(s.table.FindByJID(j.JID), IsNil)
}

func (s *launcherSuite) TestLaunchPassesArgvThrough(c *C) {
	outFile := c.MkDir() + "/args.out"
	fake := testutil.FakeCommand(c, "esh-test-echo-args", `printf '%s\n' "$@" > `+outFile)
	defer fake.Restore()

	j := job(fake.Exe(), "one", "two three")
	err := s.l.Launch(j, false)
	c.Assert(err, IsNil)
	c.Check(j.Commands[0].Completed, Equals, true)

	got, err := os.ReadFile(outFile)
	c.Assert(err, IsNil)
	c.Check(string(got), Equals, "one\ntwo three\n")
}

func (s *launcherSuite) TestForegroundPromotesBackgroundJobAndWaits(c *C) {
	j := s.spawnGroup(c, "true")
	c.Assert(j.State, Equals, jobtab.Background)

	err := s.l.Foreground(j)
	c.Assert(err, IsNil)

	c.Check(j.Commands[0].Completed, Equals, true)
	c.Check(s.table.FindByJID(j.JID), IsNil)
}

func (s *launcherSuite) TestContinueResumesStoppedJobAndWaits(c *C) {
	j := s.spawnGroup(c, "sh", "-c", "kill -STOP $$")

	var status syscall.WaitStatus
	_, err := syscall.Wait4(j.Pgrp, &status, syscall.WUNTRACED, nil)
	c.Assert(err, IsNil)
	c.Assert(status.Stopped(), Equals, true)
	j.Commands[0].Stopped = true
	j.State = jobtab.Stopped

	err = s.l.Continue(j)
	c.Assert(err, IsNil)

	c.Check(j.State, Equals, jobtab.Foreground)
	c.Check(j.Commands[0].Stopped, Equals, false)
	c.Check(j.Commands[0].Completed, Equals, true)
	c.Check(s.table.FindByJID(j.JID), IsNil)
}

func (s *launcherSuite) TestOnEventFiresOnLaunch(c *C) {
	var gotJID int
	var gotKind, gotCmdLine string
	s.l.OnEvent = func(jid int, kind, cmdline string) {
		gotJID, gotKind, gotCmdLine = jid, kind, cmdline
	}

	j := job("true")
	err := s.l.Launch(j, false)
	c.Assert(err, IsNil)

	c.Check(gotJID, Equals, 1)
	c.Check(gotKind, Equals, "started")
	c.Check(gotCmdLine, Equals, "true ")
}
