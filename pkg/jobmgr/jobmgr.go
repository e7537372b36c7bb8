// Package jobmgr runs named background jobs, optionally delayed until a
// point in time, with cancellation and lifecycle reporting.
//
//	jm := jobmgr.NewManager(func(msg string) { log.Println("[JOB]", msg) })
//	jm.Schedule("unmute:guild:user", time.Now().Add(10*time.Minute), func(ctx context.Context) error {
//	    return unmute(ctx)
//	})
//	// mute lifted by hand before the timer fired
//	_ = jm.Stop("unmute:guild:user")
//
// Jobs live in memory only. Names are unique: scheduling a name that is
// already pending replaces the old job.
package jobmgr

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Job is a pending or running unit of work.
type Job struct {
	Name   string
	RunAt  time.Time
	ctx    context.Context
	cancel context.CancelFunc
}

// StatusReporter receives lifecycle events such as
//
//	scheduled:unmute:1:2
//	running:unmute:1:2
//	error:unmute:1:2:missing permissions
//	done:unmute:1:2
type StatusReporter func(string)

// Manager is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	wg       sync.WaitGroup
	Reporter StatusReporter
}

// NewManager creates a Manager. reporter may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*Job),
		Reporter: reporter,
	}
}

// StartAsync runs runner now in its own goroutine. It fails when a job with
// the same name is pending or running.
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("job '%s' is already running", name)
	}
	job := m.addLocked(name, time.Now())
	m.mu.Unlock()

	m.launch(job, 0, runner)
	return nil
}

// Schedule runs runner at at (immediately if at has passed). A pending job
// with the same name is cancelled and replaced.
func (m *Manager) Schedule(name string, at time.Time, runner func(ctx context.Context) error) {
	m.mu.Lock()
	if old, exists := m.jobs[name]; exists {
		old.cancel()
	}
	job := m.addLocked(name, at)
	m.mu.Unlock()

	m.report("scheduled:" + name)
	m.launch(job, time.Until(at), runner)
}

func (m *Manager) addLocked(name string, at time.Time) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{Name: name, RunAt: at, ctx: ctx, cancel: cancel}
	m.jobs[name] = job
	m.wg.Add(1)
	return job
}

func (m *Manager) launch(job *Job, delay time.Duration, runner func(ctx context.Context) error) {
	ctx := job.ctx
	go func() {
		defer m.wg.Done()
		defer job.cancel()
		defer m.remove(job)

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		m.report("running:" + job.Name)
		if err := runner(ctx); err != nil {
			m.report("error:" + job.Name + ":" + err.Error())
			return
		}
		m.report("done:" + job.Name)
	}()
}

// remove forgets job unless it was already replaced by a newer one.
func (m *Manager) remove(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs[job.Name] == job {
		delete(m.jobs, job.Name)
	}
}

// Stop cancels a job by name. A job that has not started yet never runs.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("job '%s' not running", name)
	}
	job.cancel()
	delete(m.jobs, name)
	return nil
}

// StopAll cancels every job and waits for their goroutines to return.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for name, job := range m.jobs {
		job.cancel()
		delete(m.jobs, name)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Pending reports whether a job with that name is waiting or running.
func (m *Manager) Pending(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jobs[name]
	return ok
}

// List returns the names of all jobs, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	m.mu.Unlock()
	slices.Sort(out)
	return out
}

// Status is a human-readable summary, e.g. "Running jobs: a, b".
func (m *Manager) Status() string {
	active := m.List()
	if len(active) == 0 {
		return "No jobs are running."
	}
	return fmt.Sprintf("Running jobs: %s", strings.Join(active, ", "))
}

func (m *Manager) report(s string) {
	if m.Reporter != nil {
		m.Reporter(s)
	}
}
