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

// Package testutil provides the fake-command plumbing the launcher test
// suite forks against (a shell script placed on $PATH) and the pty helpers
// the terminal package's tests use.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/check.v1"
)

// FakeCmd is a faked command on $PATH, removed by Restore.
type FakeCmd struct {
	binDir  string
	exeFile string
}

// scriptTpl wraps script in a shebang so FakeCommand's caller can supply
// plain shell body text.
const scriptTpl = "#!/bin/sh\n%s\n"

// FakeCommand installs basename as a shell script on $PATH running script,
// returning a handle the test uses to clean up. c.MkDir()'s directory is
// prepended to $PATH and restored to its prior value by Restore.
func FakeCommand(c *check.C, basename, script string) *FakeCmd {
	binDir := c.MkDir()
	exeFile := filepath.Join(binDir, basename)
	body := fmt.Sprintf(scriptTpl, script)
	if err := os.WriteFile(exeFile, []byte(body), 0700); err != nil {
		panic(err)
	}
	oldPath := os.Getenv("PATH")
	os.Setenv("PATH", binDir+":"+oldPath)
	return &FakeCmd{binDir: binDir, exeFile: exeFile}
}

// Exe returns the fake command's full path.
func (cmd *FakeCmd) Exe() string {
	return cmd.exeFile
}

// Restore removes the faked command's directory from $PATH.
func (cmd *FakeCmd) Restore() {
	entries := filepath.SplitList(os.Getenv("PATH"))
	out := entries[:0]
	removed := false
	for _, e := range entries {
		if e == cmd.binDir && !removed {
			removed = true
			continue
		}
		out = append(out, e)
	}
	os.Setenv("PATH", strings.Join(out, string(os.PathListSeparator)))
}
