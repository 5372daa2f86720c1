package robotcore

// CommandMode is the controller's active command source selector.
type CommandMode int

const (
	ModeInvalidState CommandMode = iota
	ModeHalt
	ModeJog
	ModeHoming
	ModePositionCommand
	ModeVelocityCommand
	ModeTrajectory
)

func (m CommandMode) String() string {
	switch m {
	case ModeInvalidState:
		return "invalid_state"
	case ModeHalt:
		return "halt"
	case ModeJog:
		return "jog"
	case ModeHoming:
		return "homing"
	case ModePositionCommand:
		return "position_command"
	case ModeVelocityCommand:
		return "velocity_command"
	case ModeTrajectory:
		return "trajectory"
	default:
		return "unknown"
	}
}

// ControllerStateValue is the externally reported machine status.
type ControllerStateValue int

const (
	ControllerUndefined ControllerStateValue = iota
	ControllerMotorOff
	ControllerMotorOn
	ControllerEmergencyStop
	ControllerGuardStop
)

func (s ControllerStateValue) String() string {
	switch s {
	case ControllerUndefined:
		return "undefined"
	case ControllerMotorOff:
		return "motor_off"
	case ControllerMotorOn:
		return "motor_on"
	case ControllerEmergencyStop:
		return "emergency_stop"
	case ControllerGuardStop:
		return "guard_stop"
	default:
		return "unknown"
	}
}

// EstopSource identifies where an emergency stop originated.
type EstopSource int

const (
	EstopNone EstopSource = iota
	EstopButton1
	EstopOther
	EstopFault
	EstopInternal
)

// ControllerState is the full set of mutable controller flags and mode
// fields, protected by Controller's single mutex (§5). It is never
// shared outside that lock except as a defensive-copy snapshot.
type ControllerState struct {
	CommandMode      CommandMode
	OperationalMode  string
	ControllerState  ControllerStateValue
	Homed            bool
	Ready            bool
	Enabled          bool
	Stopped          bool
	Error            bool
	CommunicationFailure bool
	EstopSource      EstopSource
	StateSeqno       uint64
	SpeedRatio       float64

	// Set each tick by the command multiplexer (§4.3, §4.4): whether a
	// wire payload was accepted this tick, and whether a trajectory is
	// currently active. Consumed by fillStateFlags.
	ValidPositionCommand bool
	ValidVelocityCommand bool
	TrajectoryRunning    bool
}

// NewControllerState returns the zero-value state with SpeedRatio at
// its unity default of 1.0.
func NewControllerState() ControllerState {
	return ControllerState{
		CommandMode: ModeInvalidState,
		SpeedRatio:  1.0,
	}
}
