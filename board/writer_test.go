package board

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (n *recordingNotifier) Info(msg string) {}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

func TestSubmitRunsJobExactlyOnce(t *testing.T) {
	w := NewAsyncWriter(2, 8, time.Second, 15*time.Millisecond, nil, quietLogger())
	defer w.Close()

	var runs atomic.Int32
	w.Submit("update task", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	waitFor(t, func() bool { return runs.Load() == 1 }, "job never ran")
	time.Sleep(20 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Fatalf("job must run exactly once, got %d", got)
	}
}

func TestSubmitFailureReachesNotifier(t *testing.T) {
	notify := &recordingNotifier{}
	w := NewAsyncWriter(1, 8, time.Second, 0, notify, quietLogger())
	defer w.Close()

	w.Submit("delete task", func(ctx context.Context) error {
		return errors.New("503")
	})

	waitFor(t, func() bool { return notify.errorCount() == 1 }, "failure never surfaced")
}

func TestSubmitAfterCloseRunsInline(t *testing.T) {
	w := NewAsyncWriter(1, 1, time.Second, 0, nil, quietLogger())
	w.Close()

	var runs atomic.Int32
	w.Submit("move task", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	if got := runs.Load(); got != 1 {
		t.Fatalf("closed writer must run the job inline, got %d runs", got)
	}
}

func TestSubmitSaturatedFallsBackInline(t *testing.T) {
	w := NewAsyncWriter(1, 1, time.Second, 5*time.Millisecond, nil, quietLogger())
	defer w.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	w.Submit("blocker", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started
	// The single worker is pinned; fill the one-slot buffer.
	w.Submit("queued", func(ctx context.Context) error { return nil })

	var inline atomic.Int32
	done := make(chan struct{})
	go func() {
		w.Submit("overflow", func(ctx context.Context) error {
			inline.Add(1)
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("saturated submit must not block indefinitely")
	}
	if got := inline.Load(); got != 1 {
		t.Fatalf("overflow job must run inline, got %d runs", got)
	}
	close(release)
}

func TestJobContextCarriesTimeout(t *testing.T) {
	w := NewAsyncWriter(1, 1, 50*time.Millisecond, 0, nil, quietLogger())
	defer w.Close()

	gotDeadline := make(chan bool, 1)
	w.Submit("slow write", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		gotDeadline <- ok
		return nil
	})

	select {
	case ok := <-gotDeadline:
		if !ok {
			t.Fatal("job context must carry a deadline")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
}
