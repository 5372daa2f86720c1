package robotcore

import "math"

// RobotCommand is one tick's worth of outbound joint setpoints. A
// zero-length field means "nothing sent on that channel this tick",
// which fill_states later mirrors back to clients verbatim (§4.4).
type RobotCommand struct {
	JointPositionCommand []float64
	JointVelocityCommand []float64
}

// CommandMultiplexer selects the active command source (jog, position,
// velocity, or trajectory) and turns it into one tick's RobotCommand,
// per the per-mode contracts of §4.3.
type CommandMultiplexer struct {
	cfg RobotConfig

	posWire CommandWire
	velWire CommandWire

	posState WireCmdState
	velState WireCmdState

	trajectories TrajectoryQueue
}

// NewCommandMultiplexer wires the two external command channels; jog
// and trajectory commands arrive through direct API calls instead
// (jog_joint, execute_trajectory) and so need no wire here.
func NewCommandMultiplexer(cfg RobotConfig, posWire, velWire CommandWire) *CommandMultiplexer {
	return &CommandMultiplexer{cfg: cfg, posWire: posWire, velWire: velWire}
}

// stateSeqnoTolerance is the maximum permitted drift between a wire
// payload's state_seqno and the controller's current one before the
// payload is considered stale (§4.3, §8).
const stateSeqnoTolerance = 10

// stateSeqnoDelta returns the absolute difference between two
// state_seqno values without risking uint64 underflow.
func stateSeqnoDelta(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// fillRobotCommand dispatches on mode and returns this tick's command.
// Called once per tick under the controller lock; may mutate jog and
// trajectory state as a side effect (completing a jog, promoting a
// queued trajectory, and so on). At entry it clears the wire sent-flags
// and trajectory-running bit, which the dispatched mode then repopulates
// (§4.3, §4.4).
func (m *CommandMultiplexer) fillRobotCommand(mode CommandMode, state *ControllerState, jog *JogState, feedback FeedbackSnapshot, now int64) RobotCommand {
	m.posState.resetTick()
	m.velState.resetTick()

	var cmd RobotCommand
	switch mode {
	case ModeJog:
		cmd = m.fillJog(jog, feedback, now)
	case ModePositionCommand:
		cmd = m.fillPosition(state)
	case ModeVelocityCommand:
		cmd = m.fillVelocity(state)
	case ModeTrajectory:
		cmd = m.fillTrajectory(feedback, now)
	case ModeHoming, ModeHalt, ModeInvalidState:
		cmd = RobotCommand{}
	default:
		cmd = RobotCommand{}
	}

	state.ValidPositionCommand = m.posState.sentThisTick
	state.ValidVelocityCommand = m.velState.sentThisTick
	state.TrajectoryRunning = m.trajectories.Active() != nil
	return cmd
}

// fillJog drives the latched jog target every tick until the current
// joint position enters tolerance (success) or the jog timeout elapses
// without arriving (failure), per §4.6.
func (m *CommandMultiplexer) fillJog(jog *JogState, feedback FeedbackSnapshot, now int64) RobotCommand {
	if !jog.hasTarget() {
		return RobotCommand{}
	}

	if withinTolerance(jog.target, feedback.JointPosition, m.cfg.JogJointTolerance) {
		jog.succeedPending()
		jog.clear()
		return RobotCommand{}
	}

	if now-jog.lastCommandAt > m.cfg.JogJointTimeout.Milliseconds() {
		jog.failPending(newFailedError("jog did not reach target within %s", m.cfg.JogJointTimeout))
		jog.clear()
		return RobotCommand{}
	}

	return RobotCommand{JointPositionCommand: append([]float64(nil), jog.target...)}
}

// withinTolerance reports whether every joint of current is within
// toleranceDeg degrees of the matching entry in target.
func withinTolerance(target, current []float64, toleranceDeg float64) bool {
	if len(target) == 0 || len(current) < len(target) {
		return false
	}
	toleranceRad := toleranceDeg * math.Pi / 180.0
	for i, t := range target {
		if math.Abs(t-current[i]) > toleranceRad {
			return false
		}
	}
	return true
}

// fillPosition applies the position_command wire's contract: reject
// stale sequence numbers, reject payloads whose state_seqno differs from
// the controller's by more than stateSeqnoTolerance, reject
// unrecognized units, otherwise use
// the converted payload as this tick's position setpoint (§4.3).
func (m *CommandMultiplexer) fillPosition(state *ControllerState) RobotCommand {
	payload, ok := m.posWire.Latest()
	if !ok {
		return RobotCommand{}
	}

	lastSeqno := m.posState.observeEndpoint(payload.EndpointID)
	if payload.Seqno != 0 && payload.Seqno <= lastSeqno {
		return RobotCommand{}
	}
	if stateSeqnoDelta(state.StateSeqno, payload.StateSeqno) > stateSeqnoTolerance {
		return RobotCommand{}
	}

	converted, ok := convertToRadians(payload.Command, payload.Units)
	if !ok || len(converted) != m.cfg.JointCount() {
		return RobotCommand{}
	}

	m.posState.accept(payload.Seqno)
	return RobotCommand{JointPositionCommand: converted}
}

// fillVelocity mirrors fillPosition for the velocity_command wire, and
// additionally scales the converted setpoint by speed_ratio when it is
// not unity (§4.3, §8.3).
func (m *CommandMultiplexer) fillVelocity(state *ControllerState) RobotCommand {
	payload, ok := m.velWire.Latest()
	if !ok {
		return RobotCommand{}
	}

	lastSeqno := m.velState.observeEndpoint(payload.EndpointID)
	if payload.Seqno != 0 && payload.Seqno <= lastSeqno {
		return RobotCommand{}
	}
	if stateSeqnoDelta(state.StateSeqno, payload.StateSeqno) > stateSeqnoTolerance {
		return RobotCommand{}
	}

	converted, ok := convertToRadians(payload.Command, payload.Units)
	if !ok || len(converted) != m.cfg.JointCount() {
		return RobotCommand{}
	}

	if state.SpeedRatio != 1.0 {
		for i := range converted {
			converted[i] *= state.SpeedRatio
		}
	}

	m.velState.accept(payload.Seqno)
	return RobotCommand{JointVelocityCommand: converted}
}

// fillTrajectory advances the active trajectory task (if any), promotes
// the next queued task on completion, drops the active task and cancels
// the queue on failure, and returns the interpolated position setpoint
// (§4.5).
func (m *CommandMultiplexer) fillTrajectory(feedback FeedbackSnapshot, now int64) RobotCommand {
	active := m.trajectories.Active()
	if active == nil {
		return RobotCommand{}
	}

	result, jointPos := active.getSetpoint(now, feedback.JointPosition)
	switch result {
	case SetpointComplete:
		m.trajectories.PromoteNext()
		return RobotCommand{JointPositionCommand: jointPos}
	case SetpointFailed, SetpointJointTolError:
		// §4.3: failed/invalid_state/joint_tol_error drops the active task
		// and cancels every queued task behind it (§3 invariant), rather
		// than promoting the next one.
		m.trajectories.DropActive()
		m.trajectories.FlushQueued(newFailedError("trajectory failed"))
		return RobotCommand{}
	case SetpointReady:
		return RobotCommand{}
	default:
		return RobotCommand{JointPositionCommand: jointPos}
	}
}
