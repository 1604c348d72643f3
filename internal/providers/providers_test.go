package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 Too Many Requests"), true},
		{"server error", errors.New("upstream returned 503 Service Unavailable"), true},
		{"overloaded", errors.New("Overloaded, please retry"), true},
		{"timeout", errors.New("context deadline exceeded"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"auth failure", errors.New("401 invalid api key"), false},
		{"validation", errors.New("max_tokens must be positive"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transientError(tt.err); got != tt.want {
				t.Errorf("transientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	b := newBase(3, time.Millisecond)
	calls := 0
	err := b.retry(context.Background(), transientError, func() error {
		calls++
		return errors.New("401 unauthorized")
	})
	if err == nil || calls != 1 {
		t.Errorf("calls = %d err = %v, want one attempt", calls, err)
	}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	b := newBase(3, time.Millisecond)
	calls := 0
	err := b.retry(context.Background(), transientError, func() error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("calls = %d err = %v", calls, err)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	b := newBase(2, time.Millisecond)
	calls := 0
	err := b.retry(context.Background(), transientError, func() error {
		calls++
		return errors.New("429 rate limited")
	})
	if err == nil || calls != 2 {
		t.Errorf("calls = %d err = %v, want budget exhausted", calls, err)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := newBase(3, time.Millisecond)
	err := b.retry(ctx, transientError, func() error { return errors.New("503") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
