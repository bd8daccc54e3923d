package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// job is one deferred remote write.
type job struct {
	name string
	fn   func(ctx context.Context) error
}

// AsyncWriter executes optimistic remote writes off the caller's path.
// Jobs are handed off without blocking; when the buffer is saturated the
// handoff waits one short timer and then falls back to running the job
// inline. Failures are logged and pushed to the notifier, never retried.
type AsyncWriter struct {
	jobs    chan job
	timeout time.Duration
	handoff time.Duration
	notify  Notifier
	log     *log.Logger
	wg      sync.WaitGroup
}

// NewAsyncWriter starts the worker pool. Zero or negative tunables fall
// back to defaults (8 workers, 1024 buffer, 60s job timeout, 15ms handoff).
func NewAsyncWriter(workers, buffer int, timeout, handoff time.Duration, notify Notifier, logger *log.Logger) *AsyncWriter {
	if logger == nil {
		panic("board.NewAsyncWriter: logger is required")
	}
	if workers <= 0 {
		workers = 8
	}
	if buffer <= 0 {
		buffer = 1024
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	w := &AsyncWriter{
		jobs:    make(chan job, buffer),
		timeout: timeout,
		handoff: handoff,
		notify:  notify,
		log:     logger,
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
	logger.Infof("async writer started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workers, buffer, timeout, handoff)
	return w
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (w *AsyncWriter) Close() {
	close(w.jobs)
	w.wg.Wait()
}

// Submit hands the job to the pool, or runs it inline when the pool is
// saturated or already closed. It never blocks beyond the handoff timer
// and never returns the job's error; failures are reported out of band.
func (w *AsyncWriter) Submit(name string, fn func(ctx context.Context) error) {
	j := job{name: name, fn: fn}

	if ok, closed := trySendNonBlocking(w.jobs, j); ok {
		return
	} else if !closed && w.handoff > 0 {
		timer := time.NewTimer(w.handoff)
		ok, _ = sendWithTimer(w.jobs, j, timer.C)
		timer.Stop()
		if ok {
			return
		}
	}

	w.log.Warnf("writer buffer saturated; running %s inline", name)
	w.run(j)
}

func (w *AsyncWriter) worker() {
	defer w.wg.Done()
	for j := range w.jobs {
		w.run(j)
	}
}

func (w *AsyncWriter) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	err := j.fn(ctx)
	cancel()

	if err != nil {
		w.log.Errorf("%s failed: %v", j.name, err)
		notifyErr(w.notify, j.name+" failed")
	}
}

func trySendNonBlocking(ch chan job, j job) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- j:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan job, j job, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- j:
		return true, false
	case <-timer:
		return false, false
	}
}
