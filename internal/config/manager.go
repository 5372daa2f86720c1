// Package config provides YAML-based configuration management with
// hot-reload: the robot's joint geometry, tolerance constants, chosen
// transport backend, and logging settings can all be updated at
// runtime without restarting the process.
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"robotdriver/internal/logging"
	"robotdriver/internal/robotcore"
	"robotdriver/internal/transport"
)

// TransportDocument selects and configures the hardware backend.
type TransportDocument struct {
	Backend string                 `yaml:"backend"` // "modbus", "serial", or "mock"
	Modbus  transport.ModbusConfig `yaml:"modbus"`
	Serial  transport.SerialConfig `yaml:"serial"`
}

// Document is the top-level shape of the YAML configuration file.
type Document struct {
	Joints     []string `yaml:"joints"`
	DeviceUUID string   `yaml:"device_uuid"`

	JogJointLimitDeg      float64       `yaml:"jog_joint_limit_deg"`
	JogJointToleranceDeg  float64       `yaml:"jog_joint_tolerance_deg"`
	TrajectoryErrorTolDeg float64       `yaml:"trajectory_error_tolerance_deg"`
	JogJointTimeout       time.Duration `yaml:"jog_joint_timeout"`
	CommunicationTimeout  time.Duration `yaml:"communication_timeout"`
	TickPeriod            time.Duration `yaml:"tick_period"`

	Transport TransportDocument `yaml:"transport"`
	Logging   logging.Config    `yaml:"logging"`
	Listen    string            `yaml:"listen"`
}

// DefaultDocument returns a Document with the spec's default tolerance
// constants and a mock transport backend, for local development.
func DefaultDocument(joints []string) Document {
	return Document{
		Joints:                joints,
		DeviceUUID:            uuid.New().String(),
		JogJointLimitDeg:      15.0,
		JogJointToleranceDeg:  0.1,
		TrajectoryErrorTolDeg: 5.0,
		JogJointTimeout:       5000 * time.Millisecond,
		CommunicationTimeout:  250 * time.Millisecond,
		TickPeriod:            10 * time.Millisecond,
		Transport:             TransportDocument{Backend: "mock"},
		Logging:               *logging.DefaultConfig(),
		Listen:                "127.0.0.1:7890",
	}
}

// ToRobotConfig maps the document onto robotcore's immutable
// RobotConfig, parsing DeviceUUID. The tolerance fields are copied
// unchanged: RobotConfig also holds them in degrees and converts to
// radians where it compares them against joint values.
func (d Document) ToRobotConfig() (robotcore.RobotConfig, error) {
	id, err := uuid.Parse(d.DeviceUUID)
	if err != nil {
		return robotcore.RobotConfig{}, fmt.Errorf("invalid device_uuid: %w", err)
	}
	return robotcore.RobotConfig{
		JointNames:           append([]string(nil), d.Joints...),
		DeviceUUID:           id,
		JogJointLimit:        d.JogJointLimitDeg,
		JogJointTolerance:    d.JogJointToleranceDeg,
		TrajectoryErrorTol:   d.TrajectoryErrorTolDeg,
		JogJointTimeout:      d.JogJointTimeout,
		CommunicationTimeout: d.CommunicationTimeout,
		TickPeriod:           d.TickPeriod,
	}, nil
}

// Manager loads a Document from disk, validates it, and polls for
// on-disk modifications so operators can push tolerance or logging
// changes without a restart.
type Manager struct {
	mu           sync.RWMutex
	doc          Document
	configPath   string
	lastModified time.Time

	watchersMu sync.RWMutex
	watchers   []func(Document)

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	watching bool

	logger *logging.Logger
}

// NewManager returns a Manager bound to configPath. Call Load before
// GetConfig.
func NewManager(configPath string) *Manager {
	return &Manager{
		configPath: configPath,
		logger:     logging.GetLogger("config_manager"),
	}
}

// Load reads and parses the configuration file, validating it before
// it becomes visible to GetConfig.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if err := validate(doc); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	m.doc = doc
	m.lastModified = time.Now()
	m.logger.Info("configuration loaded", "config_path", m.configPath)
	return nil
}

// Reload re-reads the file at the configured path.
func (m *Manager) Reload() error {
	return m.Load()
}

// GetConfig returns a copy of the current document.
func (m *Manager) GetConfig() Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc
}

// WatchChanges registers a callback invoked after every successful
// reload triggered by StartWatching's poller.
func (m *Manager) WatchChanges(callback func(Document)) {
	m.watchersMu.Lock()
	defer m.watchersMu.Unlock()
	m.watchers = append(m.watchers, callback)
}

// StartWatching begins polling the config file's mtime once per
// second, reloading and notifying watchers when it changes.
func (m *Manager) StartWatching(ctx context.Context) error {
	m.mu.Lock()
	if m.watching {
		m.mu.Unlock()
		return fmt.Errorf("config watcher already running")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.watching = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.watchFile()

	m.logger.Info("started watching config file", "config_path", m.configPath)
	return nil
}

// StopWatching stops the poller and waits for it to exit.
func (m *Manager) StopWatching() error {
	m.mu.Lock()
	if !m.watching {
		m.mu.Unlock()
		return fmt.Errorf("config watcher is not running")
	}
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	m.mu.Lock()
	m.watching = false
	m.mu.Unlock()
	return nil
}

func (m *Manager) watchFile() {
	defer m.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkFileChanges()
		}
	}
}

func (m *Manager) checkFileChanges() {
	info, err := os.Stat(m.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Error("error checking config file", "error", err)
		}
		return
	}

	m.mu.RLock()
	stale := info.ModTime().After(m.lastModified)
	m.mu.RUnlock()
	if !stale {
		return
	}

	m.logger.Info("config file modified, reloading")
	if err := m.Reload(); err != nil {
		m.logger.Error("failed to reload config", "error", err)
		return
	}
	m.notifyWatchers()
}

func (m *Manager) notifyWatchers() {
	m.watchersMu.RLock()
	watchers := make([]func(Document), len(m.watchers))
	copy(watchers, m.watchers)
	m.watchersMu.RUnlock()

	doc := m.GetConfig()
	for _, w := range watchers {
		go w(doc)
	}
}

// validate enforces the document-level invariants plus RobotConfig's
// own Validate, so a bad file is rejected before it ever reaches the
// controller.
func validate(doc Document) error {
	if len(doc.Joints) == 0 {
		return fmt.Errorf("at least one joint must be configured")
	}
	switch doc.Transport.Backend {
	case "modbus", "serial", "mock":
	default:
		return fmt.Errorf("unknown transport backend %q", doc.Transport.Backend)
	}

	cfg, err := doc.ToRobotConfig()
	if err != nil {
		return err
	}
	return cfg.Validate()
}
