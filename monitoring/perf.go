package monitoring

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// PhaseTiming holds recorded timing for one phase.
type PhaseTiming struct {
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Duration time.Duration `json:"duration"`
}

// PerformanceMonitor records phase and task timing for a run. Side-effecting
// only; nothing in the pipeline branches on its data.
type PerformanceMonitor struct {
	mu        sync.Mutex
	started   time.Time
	phases    map[string]*PhaseTiming
	taskCount int
	taskTotal time.Duration
	taskMin   time.Duration
	taskMax   time.Duration
}

// NewPerformanceMonitor creates a monitor with the run clock started.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{
		started: time.Now(),
		phases:  make(map[string]*PhaseTiming),
	}
}

// PhaseStarted records the start of a phase.
func (m *PerformanceMonitor) PhaseStarted(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases[name] = &PhaseTiming{Name: name, Started: time.Now()}
}

// PhaseFinished records the end of a phase.
func (m *PerformanceMonitor) PhaseFinished(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	phase, ok := m.phases[name]
	if !ok {
		return
	}
	phase.Finished = time.Now()
	phase.Duration = phase.Finished.Sub(phase.Started)
}

// RecordTask folds one task duration into the latency stats.
func (m *PerformanceMonitor) RecordTask(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.taskCount++
	m.taskTotal += d
	if m.taskMin == 0 || d < m.taskMin {
		m.taskMin = d
	}
	if d > m.taskMax {
		m.taskMax = d
	}
}

// Elapsed returns time since the monitor was created.
func (m *PerformanceMonitor) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.started)
}

// Phases returns recorded phase timings ordered by start time.
func (m *PerformanceMonitor) Phases() []PhaseTiming {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PhaseTiming, 0, len(m.phases))
	for _, p := range m.phases {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}

// Summary returns a one-line human-readable digest.
func (m *PerformanceMonitor) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	avg := time.Duration(0)
	if m.taskCount > 0 {
		avg = m.taskTotal / time.Duration(m.taskCount)
	}
	return fmt.Sprintf("tasks: %d | latency: avg=%v, min=%v, max=%v | elapsed: %v",
		m.taskCount, avg, m.taskMin, m.taskMax, time.Since(m.started).Round(time.Millisecond))
}
