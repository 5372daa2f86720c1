package logging

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	defaultManager *Manager
	once           sync.Once
)

// Manager hands out named, cached Logger instances sharing one config.
type Manager struct {
	mu       sync.RWMutex
	loggers  map[string]*Logger
	config   *Config
	shutdown chan struct{}
}

// NewManager creates a Manager seeded with a "default" logger.
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Manager{
		loggers:  make(map[string]*Logger),
		config:   config,
		shutdown: make(chan struct{}),
	}

	defaultLogger, err := NewLogger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create default logger: %w", err)
	}
	m.loggers["default"] = defaultLogger

	return m, nil
}

// GetManager returns the process-wide logging manager, lazily created
// with DefaultConfig() on first use.
func GetManager() *Manager {
	once.Do(func() {
		defaultManager, _ = NewManager(DefaultConfig())
	})
	return defaultManager
}

// GetLogger returns the named logger, creating it with "module"=name if
// it doesn't exist yet.
func (m *Manager) GetLogger(name string) (*Logger, error) {
	m.mu.RLock()
	logger, exists := m.loggers[name]
	m.mu.RUnlock()

	if exists {
		return logger, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if logger, exists := m.loggers[name]; exists {
		return logger, nil
	}

	logger, err := NewLogger(m.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger %s: %w", name, err)
	}

	if name != "default" {
		logger = logger.With("module", name)
	}

	m.loggers[name] = logger
	return logger, nil
}

// UpdateConfig reconfigures every logger currently in the registry.
func (m *Manager) UpdateConfig(config *Config) error {
	if config == nil {
		return errors.New("config cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = config

	for name, logger := range m.loggers {
		logger.UpdateLevel(config.Level)
		logger.Info("logger configuration updated", "logger", name)
	}

	return nil
}

// GetLoggerNames returns the names of all registered loggers.
func (m *Manager) GetLoggerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.loggers))
	for name := range m.loggers {
		names = append(names, name)
	}
	return names
}

// RemoveLogger drops a named logger. The "default" logger cannot be removed.
func (m *Manager) RemoveLogger(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "default" {
		return
	}

	delete(m.loggers, name)
}

// Close signals shutdown; file-backed loggers log their own closing.
func (m *Manager) Close() error {
	close(m.shutdown)

	m.mu.Lock()
	defer m.mu.Unlock()

	for name, logger := range m.loggers {
		if logger.config.Output == "file" {
			logger.Info("closing file logger", "logger", name)
		}
	}

	return nil
}

// GetLogger is a package-level convenience wrapping the default Manager.
func GetLogger(name string) *Logger {
	m := GetManager()
	logger, err := m.GetLogger(name)
	if err != nil {
		logger, _ = m.GetLogger("default")
		logger.Error("failed to get logger", "requested_name", name, "error", err)
	}
	return logger
}

// Default returns the "default" named logger.
func Default() *Logger {
	return GetLogger("default")
}

// WithContext returns the default logger bound to ctx.
func WithContext(ctx context.Context) *Logger {
	return Default().WithContext(ctx)
}

func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}
