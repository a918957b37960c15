// Package results persists per-step records and the run's terminal record.
// The core itself keeps no state across runs; everything durable goes
// through a Store.
package results

import (
	"sync"

	"main/internal/health"
	"main/internal/sink"
)

// Store accepts step records and the terminal record of a run. Records
// already committed stay valid and queryable even when the run later fails.
type Store interface {
	SaveStep(e sink.StepEvent) error
	SaveTerminal(rec health.TerminalRecord) error
	Close() error
}

// Memory is the in-process store used for backtests.
type Memory struct {
	mu       sync.Mutex
	steps    []sink.StepEvent
	terminal *health.TerminalRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// SaveStep appends a step record.
func (m *Memory) SaveStep(e sink.StepEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, e)
	return nil
}

// SaveTerminal records the run's terminal record.
func (m *Memory) SaveTerminal(rec health.TerminalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminal = &rec
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}

// Steps returns a copy of all saved step records.
func (m *Memory) Steps() []sink.StepEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sink.StepEvent, len(m.steps))
	copy(out, m.steps)
	return out
}

// Terminal returns the saved terminal record, if any.
func (m *Memory) Terminal() *health.TerminalRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminal
}
