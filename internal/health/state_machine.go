package health

import (
	"time"

	"github.com/yanun0323/errors"
)

// State tracks the escalation ladder of the run.
type State uint16

const (
	StateHealthy State = iota
	StateDegraded
	StateCritical
	StateSystemFailure
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "HEALTHY"
	case StateDegraded:
		return "DEGRADED"
	case StateCritical:
		return "CRITICAL"
	case StateSystemFailure:
		return "SYSTEM_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// FailureKind classifies a recorded failure for escalation purposes.
type FailureKind uint16

const (
	FailureKindUnknown FailureKind = iota
	FailureKindValidation
	FailureKindExecution
	FailureKindReconciliation
	FailureKindStrategy
	FailureKindData
)

func (k FailureKind) String() string {
	switch k {
	case FailureKindValidation:
		return "VALIDATION"
	case FailureKindExecution:
		return "EXECUTION"
	case FailureKindReconciliation:
		return "RECONCILIATION"
	case FailureKindStrategy:
		return "STRATEGY"
	case FailureKindData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// Config defines the escalation thresholds.
type Config struct {
	DegradedThreshold int
	CriticalThreshold int
}

// DefaultConfig returns the baseline thresholds.
func DefaultConfig() Config {
	return Config{DegradedThreshold: 5, CriticalThreshold: 10}
}

// Validate checks if the thresholds are usable.
func (c Config) Validate() error {
	if c.DegradedThreshold <= 0 {
		return errors.New("health: degraded threshold must be > 0")
	}
	if c.CriticalThreshold <= c.DegradedThreshold {
		return errors.New("health: critical threshold must exceed degraded threshold")
	}
	return nil
}

// TerminalRecord is the run's last word before the process signals its host.
type TerminalRecord struct {
	Timestamp  time.Time
	Cause      string
	ErrorCount int
}

// Machine escalates Healthy -> Degraded -> Critical -> SystemFailure from a
// running error budget. SystemFailure is terminal: the instance never
// self-repairs, it stops the clock and asks its supervisor for a restart.
type Machine struct {
	cfg      Config
	state    State
	errCount int
	terminal *TerminalRecord
}

// NewMachine creates a healthy machine.
func NewMachine(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Machine{cfg: cfg, state: StateHealthy}, nil
}

// State returns the current escalation state.
func (m *Machine) State() State {
	return m.state
}

// ErrorCount returns the number of failures recorded so far.
func (m *Machine) ErrorCount() int {
	return m.errCount
}

// Terminal reports whether the machine reached SystemFailure.
func (m *Machine) Terminal() bool {
	return m.state == StateSystemFailure
}

// TerminalRecord returns the record written on SystemFailure, if any.
func (m *Machine) TerminalRecord() *TerminalRecord {
	return m.terminal
}

// Record counts one recoverable failure and escalates. An execution failure
// while the machine is (or just became) Critical forces SystemFailure
// immediately. Returns the state after escalation.
func (m *Machine) Record(kind FailureKind, ts time.Time, cause string) State {
	if m.state == StateSystemFailure {
		return m.state
	}

	m.errCount++
	switch {
	case m.errCount > m.cfg.CriticalThreshold:
		m.state = StateCritical
	case m.errCount > m.cfg.DegradedThreshold:
		m.state = StateDegraded
	}

	// Reconciliation drift is critical regardless of budget.
	if kind == FailureKindReconciliation && m.state < StateCritical {
		m.state = StateCritical
	}

	if m.state == StateCritical && kind == FailureKindExecution {
		m.state = StateSystemFailure
		m.terminal = &TerminalRecord{
			Timestamp:  ts,
			Cause:      cause,
			ErrorCount: m.errCount,
		}
	}
	return m.state
}
