package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTaskTerminalIncrementsCounters(t *testing.T) {
	m := New()
	m.ObserveTaskTerminal(false, 1.5)
	m.ObserveTaskTerminal(true, 0)

	if got := testutil.ToFloat64(m.TasksCompleted); got != 1 {
		t.Errorf("expected 1 completed, got %v", got)
	}
	if got := testutil.ToFloat64(m.TasksFailed); got != 1 {
		t.Errorf("expected 1 failed, got %v", got)
	}
}

func TestStartPollingUpdatesGauges(t *testing.T) {
	m := New()
	stop := make(chan struct{})
	defer close(stop)

	m.StartPolling(5*time.Millisecond, stop,
		func() SchedulerSnapshot { return SchedulerSnapshot{QueueSize: 3, ActiveWorkers: 2, Concurrency: 4} },
		func() CacheSnapshot { return CacheSnapshot{Count: 7, TotalBytes: 1024} },
	)

	time.Sleep(30 * time.Millisecond)

	if got := testutil.ToFloat64(m.QueueSize); got != 3 {
		t.Errorf("expected queue size 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheBytes); got != 1024 {
		t.Errorf("expected cache bytes 1024, got %v", got)
	}
}
