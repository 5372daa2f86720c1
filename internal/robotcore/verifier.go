package robotcore

// verifyCommunication checks feedback recency against the configured
// communication timeout (§4.2, §8: "communication_failure ⇔ max arrival
// age > communication_timeout"). The joint and robot-health channels are
// mandatory for every transport; endpoint pose is optional (§1), so its
// arrival timestamp only counts toward the age check once it has fired
// at least once. On failure it forces command_mode=invalid_state, clears
// operational/controller state and joint feedback, and records
// communication_failure; on success it clears the flag. Returns whether
// the link is currently healthy.
func verifyCommunication(cfg RobotConfig, feedback *RobotFeedback, state *ControllerState, snapshot FeedbackSnapshot, transportConnected bool, now int64) bool {
	healthy := transportConnected &&
		snapshot.JointArrival != 0 &&
		snapshot.HealthArrival != 0 &&
		snapshot.Age(now) <= cfg.CommunicationTimeout

	if !healthy {
		state.CommunicationFailure = true
		state.CommandMode = ModeInvalidState
		state.ControllerState = ControllerUndefined
		state.OperationalMode = ""
		feedback.ClearJoint()
		return false
	}

	state.CommunicationFailure = false
	return true
}

// verifyRobotState applies the §4.2 policy table. It reads the
// Ready/Enabled/Stopped/Error fields (set by transport
// feedback ingress, not derived here) and writes ControllerState and
// CommandMode, reporting whether the controller is fit to run a command
// this tick (state_ok, §4.1). Only called when verifyCommunication has
// already reported healthy, so CommunicationFailure is false on entry.
func verifyRobotState(state *ControllerState) bool {
	switch {
	case state.CommandMode == ModeHoming && state.Enabled && !state.Error && !state.CommunicationFailure:
		state.ControllerState = ControllerMotorOff
		return true

	case !state.Ready || state.CommunicationFailure:
		switch {
		case state.Stopped:
			state.ControllerState = ControllerEmergencyStop
		case state.Error:
			state.ControllerState = ControllerGuardStop
		default:
			state.ControllerState = ControllerMotorOff
		}
		state.CommandMode = ModeInvalidState
		return false

	case !state.Enabled:
		state.ControllerState = ControllerMotorOff
		state.CommandMode = ModeInvalidState
		return false

	default:
		if state.CommandMode == ModeInvalidState {
			state.CommandMode = ModeHalt
		}
		state.ControllerState = ControllerMotorOn
		return true
	}
}
