// Run history for the mirror API
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"sync"
	"time"

	"mirrorsim/pkg/errors"
	"mirrorsim/pkg/mirror"
)

// Run job states.
const (
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobError      = "error"
)

// defaultHistorySize bounds the number of jobs kept.
const defaultHistorySize = 256

// RunJob records one mirror.run call.
type RunJob struct {
	JobID     string         `json:"job_id"`
	Mirror    string         `json:"mirror"`
	Params    any            `json:"params"`
	Status    string         `json:"status"`
	StartTime float64        `json:"start_time"`
	EndTime   *float64       `json:"end_time"`
	Duration  float64        `json:"duration"`
	Error     string         `json:"error,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
	Result    *mirror.Result `json:"result,omitempty"`
}

// JobTotals holds aggregated run statistics.
type JobTotals struct {
	TotalJobs   int     `json:"total_jobs"`
	FailedJobs  int     `json:"failed_jobs"`
	TotalTime   float64 `json:"total_time"`
	LongestJob  float64 `json:"longest_job"`
	SurfacesRun int     `json:"surfaces_run"`
}

// RunHistory keeps the most recent run jobs, newest first. Jobs may run
// concurrently.
type RunHistory struct {
	mu       sync.RWMutex
	jobs     map[string]*RunJob
	jobOrder []string
	capacity int
	now      func() time.Time
}

// NewRunHistory creates a history keeping at most capacity jobs; zero
// uses the default size.
func NewRunHistory(capacity int) *RunHistory {
	if capacity <= 0 {
		capacity = defaultHistorySize
	}
	return &RunHistory{
		jobs:     make(map[string]*RunJob),
		capacity: capacity,
		now:      time.Now,
	}
}

func generateJobID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func (h *RunHistory) timestamp() float64 {
	return float64(h.now().UnixNano()) / 1e9
}

// Start records a new in-progress job and returns its ID.
func (h *RunHistory) Start(mirrorName string, params any) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	job := &RunJob{
		JobID:     generateJobID(),
		Mirror:    mirrorName,
		Params:    params,
		Status:    JobInProgress,
		StartTime: h.timestamp(),
	}
	h.jobs[job.JobID] = job
	h.jobOrder = append([]string{job.JobID}, h.jobOrder...)

	// Drop the oldest finished jobs beyond capacity.
	for i := len(h.jobOrder) - 1; i >= 0 && len(h.jobOrder) > h.capacity; i-- {
		id := h.jobOrder[i]
		if h.jobs[id].Status == JobInProgress {
			continue
		}
		delete(h.jobs, id)
		h.jobOrder = append(h.jobOrder[:i], h.jobOrder[i+1:]...)
	}
	return job.JobID
}

// Finish completes job id with the run's outcome.
func (h *RunHistory) Finish(id string, res *mirror.Result, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	job, ok := h.jobs[id]
	if !ok {
		return
	}
	now := h.timestamp()
	job.EndTime = &now
	job.Duration = now - job.StartTime
	if err != nil {
		job.Status = JobError
		job.Error = err.Error()
		job.ErrorCode = string(errors.CodeOf(err))
		return
	}
	job.Status = JobCompleted
	job.Result = res
}

// Get returns a copy of job id.
func (h *RunHistory) Get(id string) (RunJob, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	job, ok := h.jobs[id]
	if !ok {
		return RunJob{}, invalidParams("job not found: " + id)
	}
	return *job, nil
}

// List returns copies of the jobs, newest first unless order is "asc",
// skipping start and returning at most limit (all when limit <= 0).
func (h *RunHistory) List(limit, start int, order string) (jobs []RunJob, count int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count = len(h.jobOrder)
	ids := h.jobOrder
	if order == "asc" {
		ids = make([]string, count)
		for i, id := range h.jobOrder {
			ids[count-1-i] = id
		}
	}
	if start >= len(ids) {
		return nil, count
	}
	if start > 0 {
		ids = ids[start:]
	}
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	jobs = make([]RunJob, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, *h.jobs[id])
	}
	return jobs, count
}

// Delete removes job id.
func (h *RunHistory) Delete(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.jobs[id]; !ok {
		return invalidParams("job not found: " + id)
	}
	delete(h.jobs, id)
	for i, jid := range h.jobOrder {
		if jid == id {
			h.jobOrder = append(h.jobOrder[:i], h.jobOrder[i+1:]...)
			break
		}
	}
	return nil
}

// Totals aggregates the finished jobs.
func (h *RunHistory) Totals() JobTotals {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var t JobTotals
	for _, job := range h.jobs {
		if job.Status == JobInProgress {
			continue
		}
		t.TotalJobs++
		t.TotalTime += job.Duration
		if job.Duration > t.LongestJob {
			t.LongestJob = job.Duration
		}
		if job.Status == JobError {
			t.FailedJobs++
		} else if job.Result != nil {
			t.SurfacesRun += len(job.Result.Surfaces)
		}
	}
	return t
}

// handleHistoryList serves GET /server/history/list?limit=&start=&order=.
func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit, start := 50, 0
	var err error
	if l := q.Get("limit"); l != "" {
		if limit, err = strconv.Atoi(l); err != nil {
			s.writeJSONError(w, invalidParams("limit: "+err.Error()))
			return
		}
	}
	if st := q.Get("start"); st != "" {
		if start, err = strconv.Atoi(st); err != nil {
			s.writeJSONError(w, invalidParams("start: "+err.Error()))
			return
		}
	}
	jobs, count := s.history.List(limit, start, q.Get("order"))
	s.writeJSON(w, map[string]any{
		"result": map[string]any{
			"count": count,
			"jobs":  jobs,
		},
	})
}
