package results

import (
	"sync"
	"testing"
	"time"

	"main/internal/health"
	"main/internal/sink"
)

func TestMemoryStoreKeepsCommittedRecords(t *testing.T) {
	m := NewMemory()

	for i := 1; i <= 3; i++ {
		if err := m.SaveStep(sink.StepEvent{Step: i}); err != nil {
			t.Fatalf("save step %d: %v", i, err)
		}
	}
	// the run ends badly; committed steps must survive
	if err := m.SaveTerminal(health.TerminalRecord{
		Timestamp:  time.Now(),
		Cause:      "atomic group revert",
		ErrorCount: 11,
	}); err != nil {
		t.Fatalf("save terminal: %v", err)
	}

	steps := m.Steps()
	if len(steps) != 3 {
		t.Fatalf("step count mismatch! should be 3 but got %d", len(steps))
	}
	for i, step := range steps {
		if step.Step != i+1 {
			t.Fatalf("step order mismatch at %d: got %d", i, step.Step)
		}
	}

	rec := m.Terminal()
	if rec == nil {
		t.Fatal("terminal record should be saved")
	}
	if rec.Cause != "atomic group revert" || rec.ErrorCount != 11 {
		t.Fatalf("terminal record mismatch: %+v", rec)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestMemoryStoreIsSafeForConcurrentWriters(t *testing.T) {
	m := NewMemory()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = m.SaveStep(sink.StepEvent{Step: w*100 + i})
			}
		}(w)
	}
	wg.Wait()

	if got := len(m.Steps()); got != 800 {
		t.Fatalf("step count mismatch! should be 800 but got %d", got)
	}
}

func TestStepsReturnsACopy(t *testing.T) {
	m := NewMemory()
	_ = m.SaveStep(sink.StepEvent{Step: 1})

	steps := m.Steps()
	steps[0].Step = 99

	if got := m.Steps()[0].Step; got != 1 {
		t.Fatalf("mutation leaked into store! got %d", got)
	}
}
