package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adsboard-next/internal/authz"
	"github.com/adsboard-next/internal/config"
	"github.com/adsboard-next/internal/queue"

	"github.com/hibiken/asynq"
)

type fakeCleaner struct {
	mu         sync.Mutex
	requestIDs []string
	err        error
}

func (f *fakeCleaner) CleanupExpired(_ context.Context, requestID string) (*authz.CleanupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestIDs = append(f.requestIDs, requestID)
	if f.err != nil {
		return nil, f.err
	}
	return &authz.CleanupResult{Expired: 2, Batches: 1}, nil
}

func (f *fakeCleaner) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requestIDs...)
}

func TestHandleAssignmentCleanupUsesPayloadRequestID(t *testing.T) {
	cleaner := &fakeCleaner{}
	consumer := &Consumer{cleaner: cleaner}
	task, err := queue.NewAssignmentCleanupTask(queue.AssignmentCleanupPayload{RequestID: "req-7", RequestedBy: 1})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if err := consumer.handleAssignmentCleanup(context.Background(), task); err != nil {
		t.Fatalf("handle task failed: %v", err)
	}
	calls := cleaner.calls()
	if len(calls) != 1 || calls[0] != "req-7" {
		t.Fatalf("unexpected cleanup calls: %v", calls)
	}
}

func TestHandleAssignmentCleanupCorruptedPayloadSkipsRetry(t *testing.T) {
	consumer := &Consumer{cleaner: &fakeCleaner{}}
	task := asynq.NewTask(queue.TaskAssignmentCleanup, []byte("{bad"))
	err := consumer.handleAssignmentCleanup(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("want SkipRetry got %v", err)
	}
}

func TestHandleAssignmentCleanupPropagatesFailure(t *testing.T) {
	storeErr := errors.New("store unavailable")
	consumer := &Consumer{cleaner: &fakeCleaner{err: storeErr}}
	task, _ := queue.NewAssignmentCleanupTask(queue.AssignmentCleanupPayload{})
	if err := consumer.handleAssignmentCleanup(context.Background(), task); !errors.Is(err, storeErr) {
		t.Fatalf("want store error got %v", err)
	}
}

func TestCleanupLoopRunsUntilCanceled(t *testing.T) {
	cleaner := &fakeCleaner{}
	svc := &Service{consumer: &Consumer{cleaner: cleaner}, interval: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.runCleanupLoop(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(cleaner.calls()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("cleanup loop did not tick, calls=%d", len(cleaner.calls()))
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("cleanup loop did not stop after cancel")
	}
	for _, id := range cleaner.calls() {
		if !strings.HasPrefix(id, "sweep:") {
			t.Fatalf("sweep request id should be prefixed, got %s", id)
		}
	}
}

func TestNewServiceRequiresWork(t *testing.T) {
	cfg := &config.Config{}
	if _, err := NewService(cfg, &Consumer{}); !errors.Is(err, ErrNothingToRun) {
		t.Fatalf("want ErrNothingToRun got %v", err)
	}
	cfg.Authz.CleanupIntervalSeconds = 60
	svc, err := NewService(cfg, &Consumer{})
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	if svc.server != nil || svc.interval != time.Minute {
		t.Fatalf("unexpected service: server=%v interval=%s", svc.server, svc.interval)
	}
}
