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

// Package repl is the shell's top-level loop: notify, prompt, read,
// parse, then dispatch to a built-in or the launcher. It owns the
// signal-masking discipline around each iteration — the block/unblock
// bracket around the read ensures the reaper's asynchronous reconciliation
// never interleaves with the launcher's table mutations.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/esh-project/esh/internal/builtins"
	"github.com/esh-project/esh/internal/jobtab"
	"github.com/esh-project/esh/internal/launcher"
	"github.com/esh-project/esh/internal/logger"
	"github.com/esh-project/esh/internal/parser"
	"github.com/esh-project/esh/internal/plugin"
	"github.com/esh-project/esh/internal/prompt"
	"github.com/esh-project/esh/internal/reaper"
	"github.com/esh-project/esh/internal/siggate"
	"github.com/esh-project/esh/internal/terminal"
)

// REPL is the shell's read-eval-print loop.
type REPL struct {
	Table    *jobtab.Table
	Reaper   *reaper.Reaper
	Launcher *launcher.Launcher
	Builtins *builtins.Builtins
	Gate     *siggate.Gate
	Prompt   *prompt.Builder

	// Plugins is optional; a nil Host (or one with no registered commands)
	// simply means every line that isn't a built-in falls through to the
	// launcher, as if no -p flag had been given.
	Plugins *plugin.Host

	ShellPgrp   int
	ShellTTY    *terminal.State
	TTYFD       int
	Interactive bool

	In  io.Reader
	Out io.Writer

	lines *bufio.Scanner
}

// Run executes the loop until quit or EOF, returning the process exit
// code.
func (r *REPL) Run() int {
	r.lines = bufio.NewScanner(r.In)

	for {
		if r.Interactive {
			if err := terminal.GiveTo(r.Gate, r.TTYFD, r.ShellPgrp, r.ShellTTY); err != nil {
				logger.Noticef("reclaim terminal: %v", err)
			}
		}

		r.Reaper.Sweep()

		r.Gate.Unblock(unix.SIGCHLD)
		r.Gate.Unblock(unix.SIGTTOU)

		line, ok := r.readLine()
		if !ok {
			return 0
		}

		r.Gate.Block(unix.SIGCHLD)
		r.Gate.Block(unix.SIGTTOU)

		cmdLine, err := parser.Parse(line)
		if err != nil {
			fmt.Fprintf(r.Out, "esh: %v\n", err)
			continue
		}
		if cmdLine.Pipeline == nil || len(cmdLine.Pipeline.Commands) == 0 {
			continue
		}

		argv0 := cmdLine.Pipeline.Commands[0].Argv[0]
		if builtins.IsBuiltin(argv0) {
			err := r.Builtins.Dispatch(cmdLine.Pipeline.Commands[0].Argv)
			if builtins.ErrQuit(err) {
				return 0
			}
			if err != nil {
				fmt.Fprintf(r.Out, "esh: %v\n", err)
			}
			continue
		}

		if r.Plugins != nil {
			if cmd, ok := r.Plugins.Commands[argv0]; ok {
				if err := cmd(cmdLine.Pipeline.Commands[0].Argv); err != nil {
					fmt.Fprintf(r.Out, "esh: %v\n", err)
				}
				continue
			}
		}

		if err := r.Launcher.Launch(cmdLine.Pipeline, cmdLine.Bg); err != nil {
			fmt.Fprintf(r.Out, "esh: %v\n", err)
		}
	}
}

// readLine prints the prompt (when interactive) and reads one line,
// reporting false on EOF.
func (r *REPL) readLine() (string, bool) {
	if r.Interactive {
		fmt.Fprint(r.Out, r.Prompt.Build())
	}
	if !r.lines.Scan() {
		if err := r.lines.Err(); err != nil && !errors.Is(err, io.EOF) {
			logger.Debugf("read line: %v", err)
		}
		return "", false
	}
	return strings.TrimRight(r.lines.Text(), "\n"), true
}
