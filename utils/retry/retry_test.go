package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fastConfig = RetryConfig{
	MaxRetries:  3,
	InitialWait: time.Millisecond,
	MaxWait:     5 * time.Millisecond,
	Factor:      2,
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("429 too many requests")
		}
		return "ok", nil
	}, Is429Error, fastConfig)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("bad request")
	}, Is429Error, fastConfig)

	if err == nil || calls != 1 {
		t.Errorf("err=%v calls=%d, want error after 1 call", err, calls)
	}
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("rate limit")
	}, Is429Error, fastConfig)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != fastConfig.MaxRetries+1 {
		t.Errorf("calls = %d, want %d", calls, fastConfig.MaxRetries+1)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := RetryConfig{MaxRetries: 5, InitialWait: time.Hour, MaxWait: time.Hour, Factor: 2}

	calls := 0
	_, err := Do(ctx, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("429")
	}, Is429Error, slow)

	if err == nil {
		t.Error("expected an error once the context is cancelled")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestIs429Error(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("status 429"), true},
		{errors.New("Rate Limit reached"), true},
		{errors.New("quota exceeded"), true},
		{errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		if got := Is429Error(tt.err); got != tt.want {
			t.Errorf("Is429Error(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestExtractRetryTime(t *testing.T) {
	tests := []struct {
		msg  string
		want time.Duration
	}{
		{"please retry in 18s", 18 * time.Second},
		{"Try again after 30 seconds", 30 * time.Second},
		{"no hint", 0},
	}
	for _, tt := range tests {
		if got := extractRetryTime(tt.msg); got != tt.want {
			t.Errorf("extractRetryTime(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
