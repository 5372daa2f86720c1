package robotcore

import (
	"context"
	"math"
	"sync"

	"robotdriver/internal/transport"
)

// StateSink receives the per-tick compact state publish.
type StateSink interface {
	Publish(RobotState)
}

// AdvancedStateSink receives the per-tick endpoint-inclusive publish.
type AdvancedStateSink interface {
	Publish(AdvancedRobotState)
}

// SensorSink receives the raw feedback publish.
type SensorSink interface {
	Publish(RobotStateSensorData)
}

// RobotInfo is the static description returned by GetRobotInfo.
type RobotInfo struct {
	JointNames []string
	JointCount int
	DeviceUUID string
}

// Controller is the public API surface of the control core: the single
// owner of controller state, command mode, jog/trajectory lifecycles,
// and the tick that drives them (§5, §7).
//
// A single mutex protects every mutable field. Per §5's concurrency
// discipline, all CPU-only bookkeeping happens while mu is held; any
// blocking I/O (robot transport calls) happens strictly outside it.
type Controller struct {
	mu sync.Mutex

	cfg   RobotConfig
	clock Clock
	robot transport.Robot

	feedback *RobotFeedback
	state    ControllerState
	jog      JogState
	mux      *CommandMultiplexer

	health EndpointHealth

	stateSink    StateSink
	advancedSink AdvancedStateSink
	sensorSink   SensorSink

	lastCommand RobotCommand
}

// NewController wires a Controller ready to be driven by a ControlLoop.
func NewController(cfg RobotConfig, clock Clock, robot transport.Robot, feedback *RobotFeedback, posWire, velWire CommandWire, health EndpointHealth) *Controller {
	return &Controller{
		cfg:      cfg,
		clock:    clock,
		robot:    robot,
		feedback: feedback,
		state:    NewControllerState(),
		mux:      NewCommandMultiplexer(cfg, posWire, velWire),
		health:   health,
	}
}

// SetStateSinks attaches the publish targets for the three state wires.
// Any of them may be nil to skip that publish.
func (c *Controller) SetStateSinks(state StateSink, advanced AdvancedStateSink, sensor SensorSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateSink = state
	c.advancedSink = advanced
	c.sensorSink = sensor
}

// bumpStateSeqno advances the generation counter clients tag their
// position/velocity commands against by one, outside the tick. A
// payload tagged with an earlier value is still accepted while it stays
// within stateSeqnoTolerance of the counter (§3, §4.3).
func (c *Controller) bumpStateSeqno() {
	c.state.StateSeqno++
}

// tick runs one control-loop iteration: verify communication and robot
// state, compute this tick's command via the multiplexer, send it to
// the transport, and publish the resulting state. Called once per
// period by ControlLoop.
func (c *Controller) tick(now int64) {
	c.mu.Lock()

	// state_seqno is the controller's tick generation counter; it
	// advances exactly once per tick regardless of outcome (§3, §8).
	c.state.StateSeqno++

	snapshot := c.feedback.Snapshot()
	commOk := verifyCommunication(c.cfg, c.feedback, &c.state, snapshot, c.robot.Connected(), now)
	stateOk := commOk && verifyRobotState(&c.state)

	var cmd RobotCommand
	if stateOk {
		cmd = c.mux.fillRobotCommand(c.state.CommandMode, &c.state, &c.jog, snapshot, now)
	}
	c.lastCommand = cmd

	state := fillStates(c.state, snapshot, cmd)
	advanced := fillAdvancedStates(c.state, snapshot, cmd)
	sensorData := fillSensorData(snapshot)

	stateSink, advancedSink, sensorSink := c.stateSink, c.advancedSink, c.sensorSink
	robot := c.robot

	c.mu.Unlock()

	// I/O happens strictly outside the lock (§5). cmd_ok gates the send:
	// an unhealthy tick never reaches the transport (§4.1).
	if stateOk {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommunicationTimeout)
		_ = robot.SendCommand(ctx, cmd.JointPositionCommand, cmd.JointVelocityCommand)
		cancel()
	}

	if stateSink != nil {
		stateSink.Publish(state)
	}
	if advancedSink != nil {
		advancedSink.Publish(advanced)
	}
	if sensorSink != nil {
		sensorSink.Publish(sensorData)
	}
}

// SetCommandMode switches the active command source. Halt is always
// reachable; every other mode requires the controller to be Ready.
// Leaving Jog or Trajectory mode fails any in-flight jog/trajectory
// work rather than leaving it silently orphaned (§4.1, §7).
func (c *Controller) SetCommandMode(mode CommandMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode == c.state.CommandMode {
		return nil
	}
	if mode != ModeHalt && !c.state.Ready {
		return newInvalidStateError("controller is not ready")
	}

	if c.state.CommandMode == ModeJog {
		c.jog.failPending(newAbortedError("command mode changed away from jog"))
		c.jog.clear()
	}
	if c.state.CommandMode == ModeTrajectory {
		c.abortTrajectoriesLocked(newAbortedError("command mode changed away from trajectory"))
	}

	c.state.CommandMode = mode
	c.bumpStateSeqno()
	return nil
}

// abortTrajectoriesLocked fails the active task and flushes the queue.
// Caller must hold c.mu.
func (c *Controller) abortTrajectoriesLocked(err error) {
	if active := c.mux.trajectories.Active(); active != nil {
		active.mu.Lock()
		if !active.aborted && !active.cancelled && !active.finished {
			active.aborted = true
			active.notifyLocked()
		}
		active.mu.Unlock()
		active.stop()
	}
	c.mux.trajectories.DropActive()
	c.mux.trajectories.FlushQueued(err)
}

// JogJoint latches a new one-shot jog target, in degrees relative to
// the configured joint order, blocking until the target is reached,
// superseded, or times out (§4.6).
//
// The caller must already be in ModeJog (via SetCommandMode); JogJoint
// does not switch modes itself.
func (c *Controller) JogJoint(ctx context.Context, targetDegrees []float64) error {
	c.mu.Lock()
	if c.state.CommandMode != ModeJog {
		c.mu.Unlock()
		return newInvalidStateError("controller is not in jog mode")
	}
	if len(targetDegrees) != c.cfg.JointCount() {
		c.mu.Unlock()
		return newArgumentError("expected %d joint targets, got %d", c.cfg.JointCount(), len(targetDegrees))
	}

	current := c.feedback.Snapshot().JointPosition
	if len(current) == len(targetDegrees) {
		for i, t := range targetDegrees {
			deltaDeg := math.Abs(t - current[i]*180/math.Pi)
			if deltaDeg > c.cfg.JogJointLimit {
				c.mu.Unlock()
				return newArgumentError("joint %d target exceeds jog limit of %.2f degrees", i, c.cfg.JogJointLimit)
			}
		}
	}

	c.jog.failPending(newAbortedError("superseded by a new jog_joint call"))
	targetRad := make([]float64, len(targetDegrees))
	for i, t := range targetDegrees {
		targetRad[i] = t * math.Pi / 180.0
	}
	c.jog.target = targetRad
	c.jog.lastCommandAt = c.clock.NowMillis()
	done := newSignal()
	c.jog.completion = done
	c.mu.Unlock()

	select {
	case <-done.Done():
		return done.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecuteTrajectory loads a trajectory into the interpolator and
// enqueues it: it becomes active immediately if nothing else is
// running, or joins the FIFO behind the current active task (§4.5).
// The caller must already be in ModeTrajectory.
func (c *Controller) ExecuteTrajectory(interpolator Interpolator, waypoints []Waypoint, speedRatio float64, ownerEndpointID string) (*TrajectoryTask, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.CommandMode != ModeTrajectory {
		return nil, newInvalidStateError("controller is not in trajectory mode")
	}
	if err := interpolator.LoadTrajectory(waypoints, speedRatio); err != nil {
		return nil, newArgumentError("%v", err)
	}

	task := NewTrajectoryTask(interpolator, c.cfg, c.clock, c, c.health, ownerEndpointID)
	c.mux.trajectories.Enqueue(task)
	return task, nil
}

// requestHalt implements trajectoryHooks: an aborted trajectory forces
// the controller into Halt. Leaving trajectory mode this way aborts the
// active task and cancels every queued task behind it (§3 invariant),
// the same as SetCommandMode/Halt leaving trajectory mode.
func (c *Controller) requestHalt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.CommandMode == ModeTrajectory {
		c.abortTrajectoriesLocked(newAbortedError("trajectory aborted"))
	}
	c.state.CommandMode = ModeHalt
	c.bumpStateSeqno()
}

// dropTrajectory implements trajectoryHooks: remove t from the active
// slot or the FIFO, whichever it currently occupies. Removing the
// active task also cancels every queued task behind it (§3 invariant:
// cancelling active cancels all queued), regardless of whether t ended
// via Abort, Close, or a connection-loss detection.
func (c *Controller) dropTrajectory(t *TrajectoryTask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wasActive := c.mux.trajectories.Active() == t
	c.mux.trajectories.Remove(t)
	if wasActive {
		c.mux.trajectories.FlushQueued(newAbortedError("active trajectory cancelled"))
	}
}

// Halt forces ModeHalt regardless of current mode or readiness.
func (c *Controller) Halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.CommandMode == ModeJog {
		c.jog.failPending(newAbortedError("halted"))
		c.jog.clear()
	}
	if c.state.CommandMode == ModeTrajectory {
		c.abortTrajectoriesLocked(newAbortedError("halted"))
	}
	c.state.CommandMode = ModeHalt
	c.bumpStateSeqno()
}

// Disable sends the transport's disable command outside the lock.
func (c *Controller) Disable(ctx context.Context) error {
	return c.robot.SendDisable(ctx)
}

// Enable sends the transport's enable command outside the lock.
func (c *Controller) Enable(ctx context.Context) error {
	return c.robot.SendEnable(ctx)
}

// ResetErrors clears the controller's Error flag and asks the
// transport to reset any latched hardware fault.
func (c *Controller) ResetErrors(ctx context.Context) error {
	if err := c.robot.SendResetErrors(ctx); err != nil {
		return newFailedError("%v", err)
	}
	c.mu.Lock()
	c.state.Error = false
	c.bumpStateSeqno()
	c.mu.Unlock()
	return nil
}

// GetSpeedRatio returns the current speed scale.
func (c *Controller) GetSpeedRatio() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.SpeedRatio
}

// SetSpeedRatio sets the speed scale applied to streamed velocity
// commands; it must be in [0.1, 10.0] (§3, §4.6, §8). It does not affect
// trajectories: ExecuteTrajectory loads each one with the speed ratio
// its caller passes in.
func (c *Controller) SetSpeedRatio(ratio float64) error {
	if ratio < 0.1 || ratio > 10.0 {
		return newArgumentError("speed ratio must be in [0.1, 10.0], got %f", ratio)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.SpeedRatio = ratio
	return nil
}

// GetRobotInfo returns the controller's static configuration.
func (c *Controller) GetRobotInfo() RobotInfo {
	return RobotInfo{
		JointNames: append([]string(nil), c.cfg.JointNames...),
		JointCount: c.cfg.JointCount(),
		DeviceUUID: c.cfg.DeviceUUID.String(),
	}
}

// Snapshot builds a RobotState from the current controller state, the
// current feedback and the last tick's command, for callers that want a
// point-in-time read outside the tick.
func (c *Controller) Snapshot() RobotState {
	c.mu.Lock()
	state, snapshot, cmd := c.state, c.feedback.Snapshot(), c.lastCommand
	c.mu.Unlock()
	return fillStates(state, snapshot, cmd)
}
