// Package runstore keeps an in-memory record of pipeline runs for the
// status API. Records are best-effort observability, not durable state;
// the source of truth for results is the PR comment itself.
package runstore

import (
	"sort"
	"sync"
	"time"
)

type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
)

// Run is one pipeline execution for one environment of one pull request.
type Run struct {
	ID          string
	Repo        string
	Number      int
	Environment string
	Stage       string
	Actor       string
	Status      RunStatus
	Summary     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Logs        []LogEntry
}

type LogEntry struct {
	Timestamp time.Time
	Level     string // info, error, success
	Message   string
}

type Store struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func NewStore() *Store {
	return &Store{
		runs: make(map[string]*Run),
	}
}

func (s *Store) Create(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run.CreatedAt = time.Now()
	run.UpdatedAt = time.Now()
	if run.Status == "" {
		run.Status = StatusPending
	}
	s.runs[run.ID] = run
}

// Get returns a snapshot of the run. The executor keeps mutating the
// stored record while a pipeline is in flight, so callers never see the
// live pointer.
func (s *Store) Get(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, false
	}
	return run.snapshot(), true
}

// List returns snapshots of all runs, most recent first.
func (s *Store) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run.snapshot())
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs
}

// snapshot copies the run, including the log slice. Callers must hold
// the store lock.
func (r *Run) snapshot() *Run {
	c := *r
	c.Logs = append([]LogEntry(nil), r.Logs...)
	return &c
}

func (s *Store) SetStatus(id string, status RunStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Status = status
		run.UpdatedAt = time.Now()
	}
}

// SetSummary records the resource-change summary line for the run.
func (s *Store) SetSummary(id, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Summary = summary
		run.UpdatedAt = time.Now()
	}
}

func (s *Store) AddLog(id, level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Logs = append(run.Logs, LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   message,
		})
		run.UpdatedAt = time.Now()
	}
}
