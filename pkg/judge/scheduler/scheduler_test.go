package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockingHandler(release <-chan struct{}) Handler {
	return func(ctx context.Context, data interface{}) (interface{}, error) {
		<-release
		return data, nil
	}
}

func TestPriorityPreemptionFree(t *testing.T) {
	// Mirrors spec.md §8 scenario 8: with concurrency=1, a long task
	// already running is never displaced, but queued tasks start in
	// priority order once it completes.
	s := New(Config{Concurrency: 1})

	var mu sync.Mutex
	var order []string
	release := make(chan struct{})

	s.RegisterHandler("work", func(ctx context.Context, data interface{}) (interface{}, error) {
		name := data.(string)
		if name == "D" {
			<-release
		}
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		return nil, nil
	})

	dID := s.AddTask("work", "D", 0)
	waitForStatus(t, s, dID, StatusRunning)

	aID := s.AddTask("work", "A", 0)
	bID := s.AddTask("work", "B", 10)
	cID := s.AddTask("work", "C", 0)

	close(release)

	waitForAllTerminal(t, s, []string{dID, aID, bID, cID})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 4)
	assert.Equal(t, []string{"D", "B", "A", "C"}, order)
}

func TestConcurrencyCapRespected(t *testing.T) {
	s := New(Config{Concurrency: 2})

	release := make(chan struct{})
	s.RegisterHandler("slow", blockingHandler(release))

	ids := make([]string, 5)
	for i := range ids {
		ids[i] = s.AddTask("slow", i, 0)
	}

	time.Sleep(20 * time.Millisecond)

	status := s.Status()
	assert.LessOrEqual(t, status.ActiveWorkers, 2)
	assert.Equal(t, 2, status.ActiveWorkers)
	assert.Equal(t, 3, status.QueueSize)

	close(release)
	waitForAllTerminal(t, s, ids)
}

func TestFailedTaskSetsError(t *testing.T) {
	s := New(Config{Concurrency: 1})
	s.RegisterHandler("boom", func(ctx context.Context, data interface{}) (interface{}, error) {
		return nil, assertError("kaboom")
	})

	id := s.AddTask("boom", nil, 0)
	waitForAllTerminal(t, s, []string{id})

	task := s.GetTask(id)
	require.Equal(t, StatusFailed, task.Status)
	require.Error(t, task.Error)
	require.Nil(t, task.Result)
}

func TestUnregisteredTaskTypeFails(t *testing.T) {
	s := New(Config{Concurrency: 1})
	id := s.AddTask("no-such-handler", nil, 0)
	waitForAllTerminal(t, s, []string{id})

	task := s.GetTask(id)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Error(t, task.Error)
}

func TestPanicIsRecovered(t *testing.T) {
	s := New(Config{Concurrency: 1})
	s.RegisterHandler("panics", func(ctx context.Context, data interface{}) (interface{}, error) {
		panic("handler exploded")
	})

	id := s.AddTask("panics", nil, 0)
	waitForAllTerminal(t, s, []string{id})

	task := s.GetTask(id)
	assert.Equal(t, StatusFailed, task.Status)
}

func TestSetConcurrencyAdmitsMoreTasks(t *testing.T) {
	s := New(Config{Concurrency: 1})
	release := make(chan struct{})
	s.RegisterHandler("slow", blockingHandler(release))

	ids := []string{s.AddTask("slow", 1, 0), s.AddTask("slow", 2, 0)}
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 1, s.Status().ActiveWorkers)

	require.NoError(t, s.SetConcurrency(2))
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 2, s.Status().ActiveWorkers)

	close(release)
	waitForAllTerminal(t, s, ids)
}

func waitForStatus(t *testing.T, s *Scheduler, id string, want Status) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if task := s.GetTask(id); task != nil && task.Status == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %s did not reach status %s in time", id, want)
}

func waitForAllTerminal(t *testing.T, s *Scheduler, ids []string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		allDone := true
		for _, id := range ids {
			task := s.GetTask(id)
			if task == nil || (task.Status != StatusCompleted && task.Status != StatusFailed) {
				allDone = false
				break
			}
		}
		if allDone {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("tasks %v did not all reach a terminal status in time", ids)
}

type assertError string

func (e assertError) Error() string { return string(e) }
