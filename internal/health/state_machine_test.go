package health

import (
	"testing"
	"time"
)

func TestEscalationLadder(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	ts := time.Now()

	for i := 0; i < 5; i++ {
		m.Record(FailureKindValidation, ts, "bad order")
	}
	if m.State() != StateHealthy {
		t.Fatalf("at threshold should stay healthy, got %s", m.State())
	}

	m.Record(FailureKindValidation, ts, "bad order")
	if m.State() != StateDegraded {
		t.Fatalf("past degraded threshold should be degraded, got %s", m.State())
	}

	for i := 0; i < 5; i++ {
		m.Record(FailureKindStrategy, ts, "strategy error")
	}
	if m.State() != StateCritical {
		t.Fatalf("past critical threshold should be critical, got %s", m.State())
	}
	if m.ErrorCount() != 11 {
		t.Fatalf("error count mismatch! should be 11 but got %d", m.ErrorCount())
	}
}

func TestReconciliationFailureJumpsToCritical(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}

	state := m.Record(FailureKindReconciliation, time.Now(), "balance drift")
	if state != StateCritical {
		t.Fatalf("drift should escalate straight to critical, got %s", state)
	}
	if m.Terminal() {
		t.Fatal("drift alone should not be terminal")
	}
}

func TestExecutionFailureAtCriticalIsTerminal(t *testing.T) {
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	ts := time.Now()

	// ten errors exhaust the budget, the eleventh crosses into critical;
	// because it is an execution failure the machine goes terminal at once
	for i := 0; i < 10; i++ {
		m.Record(FailureKindExecution, ts, "venue down")
	}
	if m.Terminal() {
		t.Fatal("should not be terminal inside the budget")
	}
	state := m.Record(FailureKindExecution, ts, "atomic group revert")
	if state != StateSystemFailure {
		t.Fatalf("execution failure crossing critical should be terminal, got %s", state)
	}
	if !m.Terminal() {
		t.Fatal("machine should report terminal")
	}

	rec := m.TerminalRecord()
	if rec == nil {
		t.Fatal("terminal record should be written")
	}
	if rec.Cause != "atomic group revert" {
		t.Fatalf("terminal cause mismatch! got %q", rec.Cause)
	}
	if rec.ErrorCount != 11 {
		t.Fatalf("terminal error count mismatch! should be 11 but got %d", rec.ErrorCount)
	}
}

func TestRecordAfterTerminalIsNoop(t *testing.T) {
	m, err := NewMachine(Config{DegradedThreshold: 1, CriticalThreshold: 2})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	ts := time.Now()

	m.Record(FailureKindReconciliation, ts, "drift")
	m.Record(FailureKindExecution, ts, "venue down")
	if !m.Terminal() {
		t.Fatal("execution failure at critical should be terminal")
	}
	count := m.ErrorCount()

	m.Record(FailureKindExecution, ts, "ignored")
	if m.ErrorCount() != count {
		t.Fatal("terminal machine should stop counting")
	}
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		desc    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"zero degraded", Config{CriticalThreshold: 10}, true},
		{"critical below degraded", Config{DegradedThreshold: 10, CriticalThreshold: 5}, true},
		{"equal thresholds", Config{DegradedThreshold: 5, CriticalThreshold: 5}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("validate mismatch! wantErr=%v got %v", tc.wantErr, err)
			}
		})
	}
}
