package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBaseConnectionStatusTransitions(t *testing.T) {
	b := newBaseConnection(ConnectionConfig{})
	if b.Connected() {
		t.Fatal("expected disconnected by default")
	}
	b.setStatus(StatusConnected)
	if !b.Connected() {
		t.Fatal("expected connected after setStatus")
	}
	if b.getStatus() != StatusConnected {
		t.Fatalf("expected StatusConnected, got %v", b.getStatus())
	}
}

func TestRetryWithTimeoutSucceedsFirstTry(t *testing.T) {
	b := newBaseConnection(ConnectionConfig{RetryCount: 3, RetryInterval: time.Millisecond})
	calls := 0
	err := b.retryWithTimeout(context.Background(), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls)
	}
}

func TestRetryWithTimeoutRetriesThenSucceeds(t *testing.T) {
	b := newBaseConnection(ConnectionConfig{RetryCount: 3, RetryInterval: time.Millisecond})
	calls := 0
	err := b.retryWithTimeout(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryWithTimeoutExhaustsRetries(t *testing.T) {
	b := newBaseConnection(ConnectionConfig{RetryCount: 2, RetryInterval: time.Millisecond})
	calls := 0
	err := b.retryWithTimeout(context.Background(), func() error {
		calls++
		return errors.New("permanent")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("expected RetryCount+1 = 3 attempts, got %d", calls)
	}
}

func TestRetryWithTimeoutHonorsCancellation(t *testing.T) {
	b := newBaseConnection(ConnectionConfig{RetryCount: 10, RetryInterval: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.retryWithTimeout(ctx, func() error {
		return errors.New("fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
