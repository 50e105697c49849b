package engine

import (
	"context"
	"testing"
	"time"
)

func TestPatternWorker_StartSweepsImmediately(t *testing.T) {
	events := newFakeEventStore()
	patterns := newFakePatternStore()
	events.timestamps["cam-1"] = eventsAtHour(time.Now(), 9, 20)

	analyzer, err := NewPatternAnalyzer(events, patterns)
	if err != nil {
		t.Fatalf("NewPatternAnalyzer: %v", err)
	}

	worker, err := NewPatternWorker(events, analyzer, time.Hour, 30)
	if err != nil {
		t.Fatalf("NewPatternWorker: %v", err)
	}

	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer worker.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := patterns.GetPattern(context.Background(), "cam-1"); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("worker did not calculate a pattern within the deadline")
}

func TestPatternWorker_DoubleStartFails(t *testing.T) {
	events := newFakeEventStore()
	analyzer, err := NewPatternAnalyzer(events, newFakePatternStore())
	if err != nil {
		t.Fatalf("NewPatternAnalyzer: %v", err)
	}

	worker, err := NewPatternWorker(events, analyzer, time.Hour, 30)
	if err != nil {
		t.Fatalf("NewPatternWorker: %v", err)
	}

	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer worker.Stop()

	if err := worker.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
}

func TestPatternWorker_StopIsIdempotent(t *testing.T) {
	events := newFakeEventStore()
	analyzer, err := NewPatternAnalyzer(events, newFakePatternStore())
	if err != nil {
		t.Fatalf("NewPatternAnalyzer: %v", err)
	}

	worker, err := NewPatternWorker(events, analyzer, time.Hour, 30)
	if err != nil {
		t.Fatalf("NewPatternWorker: %v", err)
	}

	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	worker.Stop()
	worker.Stop() // second call is a no-op
}

func TestNewPatternWorker_RejectsBadInterval(t *testing.T) {
	events := newFakeEventStore()
	analyzer, err := NewPatternAnalyzer(events, newFakePatternStore())
	if err != nil {
		t.Fatalf("NewPatternAnalyzer: %v", err)
	}

	if _, err := NewPatternWorker(events, analyzer, 0, 30); err == nil {
		t.Error("zero interval should be rejected")
	}
}
