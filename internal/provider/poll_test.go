package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWatcherWaitsForFinished(t *testing.T) {
	t.Parallel()
	w := Watcher{Platform: "test", Interval: 5 * time.Millisecond, Deadline: time.Second}

	sequence := []HandleStatus{HandleProcessing, HandleProcessing, HandleFinished}
	calls := 0
	err := w.Wait(context.Background(), "h1", func(ctx context.Context) (HandleStatus, string, error) {
		status := sequence[calls]
		calls++
		return status, "", nil
	})
	if err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("poll called %d times, want 3", calls)
	}
}

func TestWatcherMapsErrorStatus(t *testing.T) {
	t.Parallel()
	w := Watcher{Platform: "test", Interval: 5 * time.Millisecond, Deadline: time.Second}

	err := w.Wait(context.Background(), "h1", func(ctx context.Context) (HandleStatus, string, error) {
		return HandleError, "codec rejected", nil
	})

	var perr *ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if perr.HandleID != "h1" || perr.Detail != "codec rejected" {
		t.Fatalf("unexpected error fields: %+v", perr)
	}
}

func TestWatcherTimesOut(t *testing.T) {
	t.Parallel()
	w := Watcher{Platform: "test", Interval: 5 * time.Millisecond, Deadline: 20 * time.Millisecond}

	err := w.Wait(context.Background(), "h1", func(ctx context.Context) (HandleStatus, string, error) {
		return HandleProcessing, "", nil
	})

	var terr *ProcessingTimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("expected ProcessingTimeoutError, got %v", err)
	}
	if terr.Deadline != w.Deadline {
		t.Fatalf("Deadline = %v, want %v", terr.Deadline, w.Deadline)
	}
}

func TestWatcherPropagatesPollErrors(t *testing.T) {
	t.Parallel()
	w := Watcher{Platform: "test", Interval: 5 * time.Millisecond, Deadline: time.Second}

	transport := errors.New("connection reset")
	err := w.Wait(context.Background(), "h1", func(ctx context.Context) (HandleStatus, string, error) {
		return "", "", transport
	})
	if !errors.Is(err, transport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	w := Watcher{Platform: "test", Interval: 50 * time.Millisecond, Deadline: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := w.Wait(ctx, "h1", func(ctx context.Context) (HandleStatus, string, error) {
		return HandleProcessing, "", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
