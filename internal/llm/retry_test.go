package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	for attempt := range 3 {
		base := time.Duration(1<<uint(attempt)) * backoffBase
		d := Backoff(attempt)
		if d < base || d > base+base/2 {
			t.Errorf("attempt %d: %s outside [%s, %s]", attempt, d, base, base+base/2)
		}
	}
	if d := Backoff(20); d > 45*time.Second {
		t.Errorf("expected cap near 30s, got %s", d)
	}
}

func TestRetry_StopsOnSuccess(t *testing.T) {
	backoffBase = time.Millisecond
	t.Cleanup(func() { backoffBase = 500 * time.Millisecond })

	calls := 0
	err := Retry(context.Background(), quietLogger(), "embed", func(context.Context) error {
		calls++
		if calls < 2 {
			return &RetryableError{StatusCode: http.StatusServiceUnavailable, Message: "busy"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	backoffBase = time.Millisecond
	t.Cleanup(func() { backoffBase = 500 * time.Millisecond })

	calls := 0
	err := Retry(context.Background(), quietLogger(), "generate", func(context.Context) error {
		calls++
		return &RetryableError{StatusCode: http.StatusTooManyRequests}
	})
	if !IsRetryable(err) {
		t.Fatalf("expected last retryable error, got %v", err)
	}
	if calls != MaxRetries {
		t.Errorf("expected %d calls, got %d", MaxRetries, calls)
	}
}

func TestRetry_DoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	permanent := errors.New("bad request")
	err := Retry(context.Background(), quietLogger(), "embed", func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("expected one call returning permanent error, got %d calls, %v", calls, err)
	}
}

func TestRetry_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Retry(ctx, quietLogger(), "embed", func(context.Context) error {
		return &RetryableError{StatusCode: http.StatusBadGateway}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRetryableStatus(t *testing.T) {
	for code, want := range map[int]bool{200: false, 400: false, 404: false, 429: true, 500: true, 503: true} {
		if got := RetryableStatus(code); got != want {
			t.Errorf("RetryableStatus(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestLimiter(t *testing.T) {
	var nilLimiter *Limiter
	if err := nilLimiter.Wait(context.Background()); err != nil {
		t.Fatalf("nil limiter should not block: %v", err)
	}

	unlimited := NewLimiter(0, 0)
	for range 100 {
		if err := unlimited.Wait(context.Background()); err != nil {
			t.Fatalf("unlimited limiter: %v", err)
		}
	}

	slow := NewLimiter(0.001, 1)
	if err := slow.Wait(context.Background()); err != nil {
		t.Fatalf("first token should be available: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := slow.Wait(ctx); err == nil {
		t.Fatal("expected second wait to fail within the deadline")
	}
}
