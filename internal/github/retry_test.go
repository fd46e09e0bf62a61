package github

import (
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := retryWithBackoffCustom(3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("retryWithBackoffCustom() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryWithBackoff_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	err := retryWithBackoffCustom(3, time.Millisecond, func() error {
		attempts++
		return errors.New("404 not found")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry for permanent errors)", attempts)
	}
}

func TestRetryWithBackoff_GivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	err := retryWithBackoffCustom(2, time.Millisecond, func() error {
		attempts++
		return errors.New("timeout waiting for response")
	})

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (initial + 2 retries)", attempts)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"eof", errors.New("unexpected EOF"), true},
		{"timeout", errors.New("i/o timeout"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limit", errors.New("API rate limit exceeded"), true},
		{"no such host", errors.New("lookup api.github.com: no such host"), true},
		{"permission denied", errors.New("403 forbidden"), false},
		{"bad request", errors.New("422 validation failed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
