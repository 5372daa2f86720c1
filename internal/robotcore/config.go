// Package robotcore implements the control core of the robot driver: the
// fixed-period control loop, the mode/state machine, the command-source
// multiplexer (jog/position/velocity/trajectory), the trajectory task
// lifecycle, and the public API surfaced to remote clients.
package robotcore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RobotConfig is immutable once constructed: joint geometry and the
// tolerance constants that drive every timing and safety check in the
// core.
type RobotConfig struct {
	JointNames []string
	DeviceUUID uuid.UUID

	JogJointLimit        float64       // degrees, max |target-current| accepted by jog_joint
	JogJointTolerance     float64       // degrees, within-tolerance band for jog completion
	TrajectoryErrorTol    float64       // degrees, max deviation before joint_tol_error
	JogJointTimeout       time.Duration
	CommunicationTimeout  time.Duration
	TickPeriod            time.Duration
}

// JointCount returns N, the number of joints this config describes.
func (c RobotConfig) JointCount() int {
	return len(c.JointNames)
}

// DefaultRobotConfig returns the tolerance constants named in the spec,
// leaving JointNames/DeviceUUID for the caller to fill in.
func DefaultRobotConfig(jointNames []string, deviceUUID uuid.UUID) RobotConfig {
	return RobotConfig{
		JointNames:           jointNames,
		DeviceUUID:           deviceUUID,
		JogJointLimit:        15.0,
		JogJointTolerance:    0.1,
		TrajectoryErrorTol:   5.0,
		JogJointTimeout:      5000 * time.Millisecond,
		CommunicationTimeout: 250 * time.Millisecond,
		TickPeriod:           10 * time.Millisecond,
	}
}

// Validate enforces the data-model invariants from §3: at least one
// joint, and every tolerance/timeout must be positive.
func (c RobotConfig) Validate() error {
	if len(c.JointNames) == 0 {
		return fmt.Errorf("robot config: at least one joint is required")
	}
	if c.JogJointLimit <= 0 {
		return fmt.Errorf("robot config: jog joint limit must be positive")
	}
	if c.JogJointTolerance <= 0 {
		return fmt.Errorf("robot config: jog joint tolerance must be positive")
	}
	if c.TrajectoryErrorTol <= 0 {
		return fmt.Errorf("robot config: trajectory error tolerance must be positive")
	}
	if c.JogJointTimeout <= 0 {
		return fmt.Errorf("robot config: jog joint timeout must be positive")
	}
	if c.CommunicationTimeout <= 0 {
		return fmt.Errorf("robot config: communication timeout must be positive")
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("robot config: tick period must be positive")
	}
	return nil
}
