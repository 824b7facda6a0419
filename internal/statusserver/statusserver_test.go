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

package statusserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/esh-project/esh/internal/jobtab"
	"github.com/esh-project/esh/internal/metrics"
	"github.com/esh-project/esh/internal/statusserver"
)

func TestHandleJobsReportsTableContents(t *testing.T) {
	table := jobtab.New()
	job := &jobtab.Job{
		JID:   table.AllocateJID(),
		Pgrp:  4242,
		State: jobtab.Background,
		Commands: []*jobtab.Command{
			{Argv: []string{"sleep", "10"}},
		},
	}
	table.Insert(job)

	_, reg := metrics.New()
	srv := statusserver.New(table, reg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var views []struct {
		JID     int    `json:"jid"`
		Pgrp    int    `json:"pgrp"`
		State   string `json:"state"`
		CmdLine string `json:"cmdline"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d jobs, want 1", len(views))
	}
	if views[0].Pgrp != 4242 || views[0].State != "Running" {
		t.Fatalf("got %+v, want pgrp=4242 state=Running", views[0])
	}
}

func TestHandleMetricsServesPrometheusFormat(t *testing.T) {
	table := jobtab.New()
	m, reg := metrics.New()
	m.JobsLaunched.Inc()
	srv := statusserver.New(table, reg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "esh_jobs_launched_total") {
		t.Fatalf("response missing esh_jobs_launched_total: %s", rec.Body.String())
	}
}

func TestBroadcastWithNoSubscribersDoesNotBlock(t *testing.T) {
	table := jobtab.New()
	_, reg := metrics.New()
	srv := statusserver.New(table, reg)

	done := make(chan struct{})
	go func() {
		srv.Broadcast(statusserver.Event{JID: 1, Kind: "done", CmdLine: "echo hi "})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked with no subscribers")
	}
}
