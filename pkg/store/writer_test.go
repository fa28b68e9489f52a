package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/solarops/sunforecast/pkg/openmeteo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAsyncWriter_ExecutesBatches(t *testing.T) {
	var executed atomic.Int32
	w := NewAsyncWriter(discardLogger(), nil)

	for i := 0; i < 5; i++ {
		ok := w.Enqueue(Batch{Label: "test", Fn: func(ctx context.Context) error {
			executed.Add(1)
			return nil
		}})
		if !ok {
			t.Fatalf("Enqueue() = false on batch %d", i)
		}
	}
	w.Close()

	if got := executed.Load(); got != 5 {
		t.Errorf("executed = %d, want 5", got)
	}
}

func TestAsyncWriter_ReportsFailures(t *testing.T) {
	var mu sync.Mutex
	results := map[string]error{}

	w := NewAsyncWriter(discardLogger(), func(label string, err error) {
		mu.Lock()
		results[label] = err
		mu.Unlock()
	})

	boom := errors.New("boom")
	w.Enqueue(Batch{Label: "bad", Fn: func(ctx context.Context) error { return boom }})
	w.Enqueue(Batch{Label: "good", Fn: func(ctx context.Context) error { return nil }})
	w.Close()

	if !errors.Is(results["bad"], boom) {
		t.Errorf("results[bad] = %v, want boom", results["bad"])
	}
	if results["good"] != nil {
		t.Errorf("results[good] = %v, want nil", results["good"])
	}
}

func TestAsyncWriter_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	var dropped atomic.Int32

	w := NewAsyncWriter(discardLogger(), func(label string, err error) {
		if errors.Is(err, ErrQueueFull) {
			dropped.Add(1)
		}
	})

	// Stall the writer, then overfill the queue.
	w.Enqueue(Batch{Label: "stall", Fn: func(ctx context.Context) error {
		<-block
		return nil
	}})
	for i := 0; i < defaultQueueCapacity+10; i++ {
		w.Enqueue(Batch{Label: "filler", Fn: func(ctx context.Context) error { return nil }})
	}

	if dropped.Load() == 0 {
		t.Error("expected at least one dropped batch with a full queue")
	}
	close(block)
	w.Close()
}

func TestAsyncWriter_CloseDrains(t *testing.T) {
	var executed atomic.Int32
	w := NewAsyncWriter(discardLogger(), nil)

	for i := 0; i < 10; i++ {
		w.Enqueue(Batch{Label: "drain", Fn: func(ctx context.Context) error {
			time.Sleep(time.Millisecond)
			executed.Add(1)
			return nil
		}})
	}
	w.Close()

	if got := executed.Load(); got != 10 {
		t.Errorf("executed = %d after Close, want 10 (queue must drain)", got)
	}
}

func TestAsyncWriter_EnqueueAfterClose(t *testing.T) {
	var rejected atomic.Int32
	w := NewAsyncWriter(discardLogger(), func(label string, err error) {
		if errors.Is(err, ErrWriterClosed) {
			rejected.Add(1)
		}
	})
	w.Close()

	// Must drop the batch, not panic on the closed queue.
	ok := w.Enqueue(Batch{Label: "late", Fn: func(ctx context.Context) error { return nil }})
	if ok {
		t.Error("Enqueue() = true after Close")
	}
	if rejected.Load() != 1 {
		t.Errorf("rejected = %d, want 1", rejected.Load())
	}
}

func TestForecastRowsFromWeather(t *testing.T) {
	cycle := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rad := 480.5
	f := &openmeteo.Forecast{
		PlantID:   1,
		FetchTime: cycle,
		Points: []openmeteo.Point{
			{Time: cycle.Add(15 * time.Minute), ShortwaveRadiation: &rad},
			{Time: cycle.Add(30 * time.Minute)},
		},
	}

	rows := ForecastRowsFromWeather(f)
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	for i, r := range rows {
		if !r.CreatedAt.Equal(cycle) {
			t.Errorf("row %d: CreatedAt = %v, want cycle %v", i, r.CreatedAt, cycle)
		}
	}
	if rows[0].ShortwaveRadiation == nil || *rows[0].ShortwaveRadiation != 480.5 {
		t.Errorf("row 0 radiation = %v, want 480.5", rows[0].ShortwaveRadiation)
	}
	if rows[1].ShortwaveRadiation != nil {
		t.Errorf("row 1 radiation = %v, want nil", *rows[1].ShortwaveRadiation)
	}
}
