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

// Package parser turns a line of shell input into the pipeline data model
// the launcher and built-ins operate on: tokenizing with the same
// shell-word rules as the rest of the stack, splitting on "|" into
// pipeline stages, and recognizing a trailing "&" as the background
// marker.
package parser

import (
	"strings"

	"github.com/canonical/x-go/strutil/shlex"

	"github.com/esh-project/esh/internal/jobtab"
)

// CommandLine is the result of parsing one line of input: zero or one
// pipelines (the spec models a list for generality; an empty line is a
// valid, empty CommandLine meaning "user hit enter").
type CommandLine struct {
	Pipeline *jobtab.Job
	Bg       bool
}

// Parse tokenizes text and builds a CommandLine. It returns an empty
// CommandLine (nil Pipeline) and no error for a blank line, and nil, err for
// a malformed line (unbalanced quotes, for instance) — both cases the REPL
// treats as "nothing to dispatch".
func Parse(text string) (*CommandLine, error) {
	if strings.TrimSpace(text) == "" {
		return &CommandLine{}, nil
	}

	tokens, err := shlex.Split(text)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return &CommandLine{}, nil
	}

	bg := false
	if tokens[len(tokens)-1] == "&" {
		bg = true
		tokens = tokens[:len(tokens)-1]
	} else if last := tokens[len(tokens)-1]; strings.HasSuffix(last, "&") {
		bg = true
		tokens[len(tokens)-1] = strings.TrimSuffix(last, "&")
	}
	if len(tokens) == 0 {
		return &CommandLine{}, nil
	}

	stages := splitStages(tokens)
	commands := make([]*jobtab.Command, 0, len(stages))
	for _, stage := range stages {
		if len(stage) == 0 {
			return nil, errEmptyStage
		}
		commands = append(commands, &jobtab.Command{Argv: stage})
	}

	return &CommandLine{
		Pipeline: &jobtab.Job{Commands: commands, Bg: bg},
		Bg:       bg,
	}, nil
}

// errEmptyStage is returned when "|" appears with no command on one side,
// e.g. "echo hi | | wc".
var errEmptyStage = parseError("empty pipeline stage")

type parseError string

func (e parseError) Error() string { return string(e) }

// splitStages splits tokens on bare "|" tokens into pipeline stages. Only
// the single-stage case is exercised by the launcher today; multi-stage
// pipelines are preserved in the data model without wiring up inter-stage
// pipes, matching the source's scope.
func splitStages(tokens []string) [][]string {
	var stages [][]string
	var cur []string
	for _, tok := range tokens {
		if tok == "|" {
			stages = append(stages, cur)
			cur = nil
			continue
		}
		cur = append(cur, tok)
	}
	stages = append(stages, cur)
	return stages
}
