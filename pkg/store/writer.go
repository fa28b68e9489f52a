package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull reports a batch dropped because the writer backlog is full.
var ErrQueueFull = errors.New("persistence queue full")

// ErrWriterClosed reports a batch rejected because Close already ran.
var ErrWriterClosed = errors.New("persistence writer closed")

// defaultQueueCapacity bounds the persistence backlog. A pipeline run
// enqueues one batch per plant forecast plus one per model, so 64 covers a
// sizable fleet; beyond that batches are dropped rather than blocking the
// pipeline.
const defaultQueueCapacity = 64

// Batch is one unit of deferred persistence work.
type Batch struct {
	// Label identifies the batch in logs, e.g. "forecasts plant=3".
	Label string

	// Fn performs the write.
	Fn func(ctx context.Context) error
}

// AsyncWriter executes persistence batches on a dedicated goroutine so the
// pipeline never blocks on the database. The queue is bounded; when it is
// full, Enqueue drops the batch and logs instead of blocking.
type AsyncWriter struct {
	queue  chan Batch
	logger *slog.Logger

	// onResult is invoked after every executed batch. Used for metrics.
	onResult func(label string, err error)

	// mu orders Enqueue sends against Close: once closed is set, no
	// goroutine touches the channel again.
	mu     sync.RWMutex
	closed bool

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewAsyncWriter starts the writer goroutine.
func NewAsyncWriter(logger *slog.Logger, onResult func(label string, err error)) *AsyncWriter {
	w := &AsyncWriter{
		queue:    make(chan Batch, defaultQueueCapacity),
		logger:   logger,
		onResult: onResult,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *AsyncWriter) run() {
	defer w.wg.Done()
	for batch := range w.queue {
		err := batch.Fn(context.Background())
		if err != nil {
			w.logger.Error("background write failed", "batch", batch.Label, "error", err)
		} else {
			w.logger.Debug("background write complete", "batch", batch.Label)
		}
		if w.onResult != nil {
			w.onResult(batch.Label, err)
		}
	}
}

// Enqueue hands a batch to the writer without blocking. Returns false if the
// batch was dropped, either because the queue is full or because the writer
// is already closed.
func (w *AsyncWriter) Enqueue(batch Batch) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.logger.Error("writer closed, dropping batch", "batch", batch.Label)
		if w.onResult != nil {
			w.onResult(batch.Label, ErrWriterClosed)
		}
		return false
	}

	select {
	case w.queue <- batch:
		return true
	default:
		w.logger.Error("persistence queue full, dropping batch", "batch", batch.Label)
		if w.onResult != nil {
			w.onResult(batch.Label, ErrQueueFull)
		}
		return false
	}
}

// Pending reports the current queue depth.
func (w *AsyncWriter) Pending() int {
	return len(w.queue)
}

// Close stops accepting batches and blocks until the queue is drained.
// Enqueue calls arriving after Close drop their batch instead of panicking
// on the closed channel.
func (w *AsyncWriter) Close() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()
	})
	w.wg.Wait()
}
