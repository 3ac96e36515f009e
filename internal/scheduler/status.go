package scheduler

import (
	"sort"
	"sync"
	"time"
)

// JobRun is the outcome of one job invocation.
type JobRun struct {
	Job       string        `json:"job"`
	Trigger   string        `json:"trigger"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Result    string        `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// JobStatus is the last known state of a registered job.
type JobStatus struct {
	Name       string     `json:"name"`
	Schedule   string     `json:"schedule"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	LastResult string     `json:"last_result,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	Runs       int        `json:"runs"`
	Failures   int        `json:"failures"`
}

// StatusRecorder receives one record per job run. The runner never keeps
// run history itself.
type StatusRecorder interface {
	Record(run JobRun)
	Last(job string) (JobStatus, bool)
}

// MemoryRecorder keeps the latest run per job in memory.
type MemoryRecorder struct {
	mu   sync.RWMutex
	jobs map[string]JobStatus
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{jobs: make(map[string]JobStatus)}
}

// Record stores run as the job's latest.
func (m *MemoryRecorder) Record(run JobRun) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.jobs[run.Job]
	status.Name = run.Job
	started := run.StartedAt
	status.LastRun = &started
	status.LastResult = run.Result
	status.LastError = run.Error
	status.Runs++
	if run.Error != "" {
		status.Failures++
	}
	m.jobs[run.Job] = status
}

// Last returns the latest state of job.
func (m *MemoryRecorder) Last(job string) (JobStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.jobs[job]
	return status, ok
}

// Jobs lists recorded job names in order.
func (m *MemoryRecorder) Jobs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
