// Copyright (c) 2024 Canonical Ltd
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

// Package metrics exposes esh's job-control activity as Prometheus
// counters: a read-only observability surface, never a command path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters the reaper, launcher and built-ins update as
// they act on jobs.
type Metrics struct {
	JobsLaunched  prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsStopped   prometheus.Counter
	JobsKilled    prometheus.Counter
	SignalsSeen   *prometheus.CounterVec
}

// New registers esh's counters against a fresh registry (so repeated
// construction in tests doesn't panic on duplicate registration) and
// returns both.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		JobsLaunched: factory.NewCounter(prometheus.CounterOpts{
			Name: "esh_jobs_launched_total",
			Help: "Number of jobs launched.",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "esh_jobs_completed_total",
			Help: "Number of jobs that ran to completion.",
		}),
		JobsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "esh_jobs_stopped_total",
			Help: "Number of times a job transitioned to the stopped state.",
		}),
		JobsKilled: factory.NewCounter(prometheus.CounterOpts{
			Name: "esh_jobs_killed_total",
			Help: "Number of jobs ended by the kill built-in.",
		}),
		SignalsSeen: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "esh_signals_seen_total",
			Help: "Number of signals observed by the reaper, by signal name.",
		}, []string{"signal"}),
	}, reg
}
