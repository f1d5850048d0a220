package workerpool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.QueueSize = 16
	cfg.MaxRetries = 1
	cfg.RetryDelay = time.Millisecond
	cfg.GracefulShutdownTimeout = time.Second
	return cfg
}

func waitResult(t *testing.T, results <-chan *Result) *Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a result")
		return nil
	}
}

func TestPoolProcessesTask(t *testing.T) {
	pool, err := New(testConfig(), func(_ context.Context, task *Task) *Result {
		return &Result{TaskID: task.ID, Success: true}
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool.Start()
	defer pool.Stop()

	if err := pool.Submit(&Task{ID: "t1"}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	r := waitResult(t, pool.Results())
	if r.TaskID != "t1" || !r.Success {
		t.Errorf("unexpected result: %+v", r)
	}

	if !pool.IsHealthy() {
		t.Error("expected an idle pool to report healthy")
	}
	stats := pool.Stats()
	if stats.TasksCompleted != 1 {
		t.Errorf("expected 1 completed task, got %d", stats.TasksCompleted)
	}
}

func TestPoolRetriesPreservePayload(t *testing.T) {
	payload := []byte(`{"sig_text":"Take 1 tablet daily"}`)
	attempts := 0
	pool, err := New(testConfig(), func(_ context.Context, task *Task) *Result {
		attempts++
		return &Result{
			TaskID:  task.ID,
			Success: false,
			Error:   errors.New("downstream unavailable"),
			Data:    task.Payload,
		}
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool.Start()
	defer pool.Stop()

	if err := pool.Submit(&Task{ID: "t1", Payload: payload}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	r := waitResult(t, pool.Results())
	if r.Success {
		t.Fatal("expected a failed result")
	}
	if attempts != 2 {
		t.Errorf("expected initial attempt plus one retry, got %d attempts", attempts)
	}
	got, ok := r.Data.([]byte)
	if !ok || string(got) != string(payload) {
		t.Errorf("expected the task payload on the final result, got %v", r.Data)
	}
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1

	block := make(chan struct{})
	pool, err := New(cfg, func(_ context.Context, task *Task) *Result {
		<-block
		return &Result{TaskID: task.ID, Success: true}
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pool.Start()
	defer func() {
		close(block)
		pool.Stop()
	}()

	// First task occupies the worker, second fills the queue; the third
	// must be rejected rather than block the caller.
	pool.Submit(&Task{ID: "t1"})
	var rejected bool
	for i := 0; i < 50; i++ {
		if err := pool.Submit(&Task{ID: "tn"}); err != nil {
			rejected = true
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !rejected {
		t.Error("expected a submit rejection once the queue filled")
	}
}

func TestPoolRequiresWorkerFunc(t *testing.T) {
	if _, err := New(testConfig(), nil, nil); err == nil {
		t.Error("expected an error without a worker function")
	}
}
