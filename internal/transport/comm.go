package transport

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ConnectionStatus is the link state of a transport backend.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

// ConnectionConfig holds the retry/timeout knobs shared by every
// backend (Modbus, serial, ...).
type ConnectionConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	RetryCount    int           `yaml:"retry_count"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// baseConnection is embedded by concrete backends: it tracks connection
// status and the last error, and provides a retry helper (fixed
// RetryInterval between attempts, no backoff growth) so every backend
// doesn't reimplement it.
type baseConnection struct {
	config ConnectionConfig
	mu     sync.RWMutex
	status ConnectionStatus
	lastErr error
}

func newBaseConnection(config ConnectionConfig) *baseConnection {
	return &baseConnection{config: config, status: StatusDisconnected}
}

func (b *baseConnection) setStatus(status ConnectionStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

func (b *baseConnection) getStatus() ConnectionStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *baseConnection) setLastError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastErr = err
}

// Connected reports whether the backend is in the connected state,
// satisfying transport.Robot.
func (b *baseConnection) Connected() bool {
	return b.getStatus() == StatusConnected
}

// retryWithTimeout runs operation, retrying on failure up to
// config.RetryCount times with config.RetryInterval between attempts,
// honoring ctx cancellation.
func (b *baseConnection) retryWithTimeout(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= b.config.RetryCount; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := operation(); err == nil {
			return nil
		} else {
			lastErr = err
			b.setLastError(err)
		}

		if attempt == b.config.RetryCount {
			break
		}

		select {
		case <-time.After(b.config.RetryInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", b.config.RetryCount, lastErr)
}
