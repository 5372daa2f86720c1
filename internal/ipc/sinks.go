package ipc

import "robotdriver/internal/robotcore"

// StateWire publishes RobotState as a latest-value wire: only the most
// recent tick's state matters to a client that just connected.
type StateWire struct{ *Wire[robotcore.RobotState] }

// NewStateWire returns a StateWire satisfying robotcore.StateSink.
func NewStateWire() *StateWire { return &StateWire{NewWire[robotcore.RobotState]()} }

// Publish implements robotcore.StateSink.
func (s *StateWire) Publish(v robotcore.RobotState) { s.Set(v) }

// AdvancedStateWire is StateWire's counterpart for the endpoint-pose
// inclusive publish.
type AdvancedStateWire struct{ *Wire[robotcore.AdvancedRobotState] }

// NewAdvancedStateWire returns an AdvancedStateWire satisfying
// robotcore.AdvancedStateSink.
func NewAdvancedStateWire() *AdvancedStateWire {
	return &AdvancedStateWire{NewWire[robotcore.AdvancedRobotState]()}
}

// Publish implements robotcore.AdvancedStateSink.
func (s *AdvancedStateWire) Publish(v robotcore.AdvancedRobotState) { s.Set(v) }

// SensorPipe streams raw feedback to every subscribed client; a slow
// subscriber drops samples instead of stalling the control loop.
type SensorPipe struct{ *Pipe[robotcore.RobotStateSensorData] }

// NewSensorPipe returns a SensorPipe satisfying robotcore.SensorSink.
func NewSensorPipe() *SensorPipe {
	return &SensorPipe{NewPipe[robotcore.RobotStateSensorData]()}
}

// Publish implements robotcore.SensorSink.
func (s *SensorPipe) Publish(v robotcore.RobotStateSensorData) { s.Send(v) }
