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

// Package statusserver is esh's optional, read-only observability
// surface: GET /jobs reports the current jobs table as JSON, GET /metrics
// serves Prometheus counters, and GET /events streams job lifecycle
// transitions over a websocket as the reaper observes them. None of this
// accepts commands — it is reporting, not a second control path into the
// shell.
package statusserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/esh-project/esh/internal/jobtab"
	"github.com/esh-project/esh/internal/logger"
)

// Event is one job lifecycle transition broadcast to /events subscribers.
type Event struct {
	JID     int    `json:"jid"`
	Kind    string `json:"kind"` // "started", "stopped", "done"
	CmdLine string `json:"cmdline"`
}

// jobView is the JSON shape of one row of GET /jobs.
type jobView struct {
	JID     int    `json:"jid"`
	Pgrp    int    `json:"pgrp"`
	State   string `json:"state"`
	CmdLine string `json:"cmdline"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin checks don't apply to a localhost reporting endpoint
	// with no browser client; accept any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server serves the three read-only endpoints over an http.Server the
// caller starts and stops.
type Server struct {
	table *jobtab.Table
	reg   *prometheus.Registry

	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

// New builds a Server backed by table, reporting the metrics registered
// against reg.
func New(table *jobtab.Table, reg *prometheus.Registry) *Server {
	return &Server{
		table:       table,
		reg:         reg,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Broadcast publishes ev to every connected /events subscriber. Called by
// the launcher when it starts a job and by the reaper as it observes state
// transitions; never blocks on a slow subscriber.
func (s *Server) Broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop the event rather than stall the
			// reaper, which is on the job-control critical path.
		}
	}
}

// Router builds the mux.Router serving /jobs, /metrics and /events.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	return r
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	views := make([]jobView, 0)
	for _, j := range s.table.Iter() {
		views = append(views, jobView{
			JID:     j.JID,
			Pgrp:    j.Pgrp,
			State:   j.State.String(),
			CmdLine: j.CmdLine(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		logger.Debugf("encode /jobs response: %v", err)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debugf("upgrade /events websocket: %v", err)
		return
	}
	defer conn.Close()

	ch := make(chan Event, 16)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subscribers, ch)
		s.mu.Unlock()
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}
