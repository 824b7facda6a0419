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

// Command esh is an interactive POSIX job-control shell.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/canonical/go-flags"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/esh-project/esh/internal/builtins"
	"github.com/esh-project/esh/internal/config"
	"github.com/esh-project/esh/internal/jobtab"
	"github.com/esh-project/esh/internal/launcher"
	"github.com/esh-project/esh/internal/logger"
	"github.com/esh-project/esh/internal/metrics"
	"github.com/esh-project/esh/internal/plugin"
	"github.com/esh-project/esh/internal/prompt"
	"github.com/esh-project/esh/internal/reaper"
	"github.com/esh-project/esh/internal/repl"
	"github.com/esh-project/esh/internal/siggate"
	"github.com/esh-project/esh/internal/statusserver"
	"github.com/esh-project/esh/internal/terminal"
)

const usage = `Usage: %s -h
 -h            print this help
 -p  plugindir directory from which to load plug-ins
`

type options struct {
	PluginDir string `short:"p"`
}

func main() {
	os.Exit(run())
}

func run() int {
	progname := os.Args[0]
	for _, arg := range os.Args[1:] {
		if arg == "-h" {
			fmt.Printf(usage, progname)
			return 0
		}
	}

	var opts options
	parser := flags.NewParser(&opts, flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		fmt.Fprintf(os.Stderr, "esh: %v\n", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("%v", err)
	}
	if opts.PluginDir == "" {
		opts.PluginDir = cfg.PluginDir
	}

	ttyFD := int(os.Stdin.Fd())
	interactive := term.IsTerminal(ttyFD)

	shellPgrp, err := unix.Getpgrp()
	if err != nil {
		fatalf("cannot get process group: %v", err)
	}

	table := jobtab.New()
	gate := siggate.New()

	var shellTTY *terminal.State
	if interactive {
		// Make sure we own the terminal before we start; esh.c does the
		// same loop-until-foreground dance at startup.
		for {
			fg, err := terminal.Foreground(ttyFD)
			if err != nil {
				fatalf("cannot read controlling terminal's foreground group: %v", err)
			}
			if fg == shellPgrp {
				break
			}
			if err := unix.Kill(-shellPgrp, unix.SIGTTIN); err != nil {
				fatalf("cannot stop until foreground: %v", err)
			}
		}
		if err := unix.Setpgid(0, 0); err != nil {
			logger.Debugf("setpgid(0,0): %v", err)
		}
		shellPgrp, _ = unix.Getpgrp()
		shellTTY, err = terminal.Save(ttyFD)
		if err != nil {
			fatalf("cannot save terminal state: %v", err)
		}
		if err := terminal.GiveTo(gate, ttyFD, shellPgrp, nil); err != nil {
			fatalf("cannot claim controlling terminal: %v", err)
		}
	}

	prompts := prompt.New()
	if cfg.Prompt != "" {
		prompts.Register(func() string { return cfg.Prompt })
	}
	pluginHost := plugin.NewHost(prompts)
	if err := pluginHost.LoadDir(opts.PluginDir); err != nil {
		logger.Noticef("cannot load plugins: %v", err)
	}

	reap := reaper.New(table, ttyFD, shellPgrp, os.Stdout)

	launch := &launcher.Launcher{
		Table:       table,
		Gate:        gate,
		Reaper:      reap,
		ShellPgrp:   shellPgrp,
		ShellTTY:    shellTTY,
		TTYFD:       ttyFD,
		Interactive: interactive,
		Out:         os.Stdout,
	}
	build := &builtins.Builtins{
		Table:    table,
		Launcher: launch,
		Out:      os.Stdout,
	}

	metricsAddr := cfg.MetricsAddr
	if metricsAddr != "" {
		m, reg := metrics.New()
		reap.Metrics = m
		launch.Metrics = m
		build.Metrics = m
		srv := statusserver.New(table, reg)
		broadcast := func(jid int, kind, cmdline string) {
			srv.Broadcast(statusserver.Event{JID: jid, Kind: kind, CmdLine: cmdline})
		}
		reap.OnEvent = broadcast
		launch.OnEvent = broadcast
		go func() {
			if err := http.ListenAndServe(metricsAddr, srv.Router()); err != nil {
				logger.Noticef("status server: %v", err)
			}
		}()
	}

	reap.Start()
	defer reap.Stop()

	r := &repl.REPL{
		Table:       table,
		Reaper:      reap,
		Launcher:    launch,
		Builtins:    build,
		Gate:        gate,
		Prompt:      prompts,
		Plugins:     pluginHost,
		ShellPgrp:   shellPgrp,
		ShellTTY:    shellTTY,
		TTYFD:       ttyFD,
		Interactive: interactive,
		In:          os.Stdin,
		Out:         os.Stdout,
	}
	return r.Run()
}

// fatalf reports a fatal initialization error and exits: the shell has no
// correct way to continue without known terminal ownership or a valid
// configuration.
func fatalf(format string, v ...any) {
	logger.Noticef(format, v...)
	os.Exit(1)
}
