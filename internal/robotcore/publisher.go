package robotcore

// StateFlags is the bitmask form of ControllerState's boolean fields,
// as published on the compact state wire. The exact bit set is the one
// named in §6: communication_failure, error, estop plus its four source
// bits, enabled, ready, homed/homing_required, valid_position_command,
// valid_velocity_command, trajectory_running.
type StateFlags uint32

const (
	FlagCommunicationFailure StateFlags = 1 << iota
	FlagError
	FlagEstop
	FlagEstopButton1
	FlagEstopOther
	FlagEstopFault
	FlagEstopInternal
	FlagEnabled
	FlagReady
	FlagHomed
	FlagHomingRequired
	FlagValidPositionCommand
	FlagValidVelocityCommand
	FlagTrajectoryRunning
)

// fillStateFlags packs the controller's boolean flags into a bitmask
// (§4.4). communication_failure short-circuits: when set, every other
// bit is meaningless (feedback vectors are cleared, command_mode is
// forced to invalid_state) so only that bit is reported.
func fillStateFlags(state ControllerState) StateFlags {
	if state.CommunicationFailure {
		return FlagCommunicationFailure
	}

	var f StateFlags
	if state.Error {
		f |= FlagError
	}
	if state.EstopSource != EstopNone {
		f |= FlagEstop
		switch state.EstopSource {
		case EstopButton1:
			f |= FlagEstopButton1
		case EstopOther:
			f |= FlagEstopOther
		case EstopFault:
			f |= FlagEstopFault
		case EstopInternal:
			f |= FlagEstopInternal
		}
	}
	if state.Enabled {
		f |= FlagEnabled
	}
	if state.Ready {
		f |= FlagReady
	}
	if state.Homed {
		f |= FlagHomed
	} else {
		f |= FlagHomingRequired
	}
	if state.ValidPositionCommand {
		f |= FlagValidPositionCommand
	}
	if state.ValidVelocityCommand {
		f |= FlagValidVelocityCommand
	}
	if state.TrajectoryRunning {
		f |= FlagTrajectoryRunning
	}
	return f
}

// RobotState is the per-tick summary published to clients: mode/status
// flags plus joint feedback and the command last actually sent on each
// channel (§4.4, §6).
//
// The last-sent-command fields mirror the tick's RobotCommand verbatim:
// zero-length when nothing was sent, matching whatever the multiplexer
// produced that tick.
type RobotState struct {
	ControllerState  ControllerStateValue
	OperationalMode  string
	CommandMode      CommandMode
	Flags            StateFlags
	EstopSource      EstopSource
	StateSeqno       uint64
	SpeedRatio       float64

	JointPosition []float64
	JointVelocity []float64
	JointEffort   []float64

	JointPositionCommand []float64
	JointVelocityCommand []float64
}

// AdvancedRobotState extends RobotState with endpoint (Cartesian)
// feedback, published every tick on its own wire (§6).
type AdvancedRobotState struct {
	RobotState
	EndpointPose     []Pose
	EndpointVelocity []SpatialVelocity
}

// RobotStateSensorData is the raw joint/endpoint feedback stream, carried
// independent of controller mode and flags so clients can plot feedback
// even while the controller is in an error state (§6).
type RobotStateSensorData struct {
	JointPosition []float64
	JointVelocity []float64
	JointEffort   []float64

	EndpointPose     []Pose
	EndpointVelocity []SpatialVelocity

	ArrivalMillis int64
}

// fillStates assembles the tick's published RobotState from the
// controller's current state, live feedback, and the command that was
// actually sent this tick.
func fillStates(state ControllerState, feedback FeedbackSnapshot, sent RobotCommand) RobotState {
	return RobotState{
		ControllerState:      state.ControllerState,
		OperationalMode:      state.OperationalMode,
		CommandMode:          state.CommandMode,
		Flags:                fillStateFlags(state),
		EstopSource:          state.EstopSource,
		StateSeqno:           state.StateSeqno,
		SpeedRatio:           state.SpeedRatio,
		JointPosition:        append([]float64(nil), feedback.JointPosition...),
		JointVelocity:        append([]float64(nil), feedback.JointVelocity...),
		JointEffort:          append([]float64(nil), feedback.JointEffort...),
		JointPositionCommand: append([]float64(nil), sent.JointPositionCommand...),
		JointVelocityCommand: append([]float64(nil), sent.JointVelocityCommand...),
	}
}

// fillAdvancedStates extends fillStates with endpoint feedback.
func fillAdvancedStates(state ControllerState, feedback FeedbackSnapshot, sent RobotCommand) AdvancedRobotState {
	return AdvancedRobotState{
		RobotState:       fillStates(state, feedback, sent),
		EndpointPose:     append([]Pose(nil), feedback.EndpointPose...),
		EndpointVelocity: append([]SpatialVelocity(nil), feedback.EndpointVelocity...),
	}
}

// fillSensorData assembles the raw sensor-data stream payload.
func fillSensorData(feedback FeedbackSnapshot) RobotStateSensorData {
	return RobotStateSensorData{
		JointPosition:    append([]float64(nil), feedback.JointPosition...),
		JointVelocity:    append([]float64(nil), feedback.JointVelocity...),
		JointEffort:      append([]float64(nil), feedback.JointEffort...),
		EndpointPose:     append([]Pose(nil), feedback.EndpointPose...),
		EndpointVelocity: append([]SpatialVelocity(nil), feedback.EndpointVelocity...),
		ArrivalMillis:    feedback.oldestArrival(),
	}
}
