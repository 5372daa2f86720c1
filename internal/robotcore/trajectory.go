package robotcore

import (
	"context"
	"math"
	"sync"
	"time"
)

// Waypoint is one control point of a trajectory, expressed in radians
// with an offset from the trajectory's start. Spline evaluation between
// waypoints is the interpolator's job, not the core's (§1 Out of scope).
type Waypoint struct {
	JointPositions []float64
	TimeFromStart  time.Duration
}

// Interpolator evaluates joint setpoints at time t for a loaded
// trajectory (§6 External interfaces). The core treats it purely as a
// named collaborator: waypoint spline math is out of scope here.
type Interpolator interface {
	LoadTrajectory(waypoints []Waypoint, speedRatio float64) error
	Interpolate(t float64) (jointPos []float64, waypointIndex int)
	MaxTime() float64
}

// EndpointHealth reports whether a client endpoint is still reachable.
// Design Note 4: injected explicitly at construction instead of reaching
// into a process-wide RPC singleton.
type EndpointHealth interface {
	IsConnected(endpointID string) bool
}

// GetSetpointResult is the per-tick outcome of evaluating a trajectory's
// interpolator against live feedback (§4.5).
type GetSetpointResult int

const (
	SetpointReady GetSetpointResult = iota
	SetpointFirstValid
	SetpointValid
	SetpointComplete
	SetpointFailed
	SetpointJointTolError
)

// ProgressStatus is what a client polling Next() observes.
type ProgressStatus int

const (
	ProgressQueued ProgressStatus = iota
	ProgressWaiting
	ProgressRunning
	ProgressComplete
	ProgressEndOfStream
)

// TrajectoryProgress is the value returned by Next().
type TrajectoryProgress struct {
	Status        ProgressStatus
	WaypointIndex int
}

// trajectoryHooks lets a TrajectoryTask ask its owning controller to
// change shared state, instead of holding a strong reference back into
// the controller and mutating it directly (Design Note: cyclic
// ownership between controller and task is avoided by message-passing
// the cancellation/abort request).
type trajectoryHooks interface {
	requestHalt()
	dropTrajectory(t *TrajectoryTask)
}

// TrajectoryTask is one execution of a trajectory, exposing a
// generator-style progress stream (Next/Close/Abort) to exactly one
// owning client endpoint (§4.5).
type TrajectoryTask struct {
	mu sync.Mutex

	interpolator Interpolator
	maxTime      float64
	cfg          RobotConfig
	clock        Clock
	hooks        trajectoryHooks
	health       EndpointHealth
	ownerEndpointID string

	nextCalled bool
	started    bool
	finished   bool
	aborted    bool
	cancelled  bool
	jointTolError bool
	connectionLost bool
	terminalDelivered bool
	queued     bool

	firstValidSetpoint bool
	startTime          int64
	lastWaypoint       int

	notifyCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTrajectoryTask wires a loaded interpolator into a fresh task. The
// caller decides queued vs. active via SetQueued before the task is
// handed to a client.
func NewTrajectoryTask(interpolator Interpolator, cfg RobotConfig, clock Clock, hooks trajectoryHooks, health EndpointHealth, ownerEndpointID string) *TrajectoryTask {
	t := &TrajectoryTask{
		interpolator:       interpolator,
		maxTime:            interpolator.MaxTime(),
		cfg:                cfg,
		clock:              clock,
		hooks:              hooks,
		health:             health,
		ownerEndpointID:    ownerEndpointID,
		firstValidSetpoint: true,
		notifyCh:           make(chan struct{}),
		stopCh:             make(chan struct{}),
	}
	go t.watchLiveness()
	return t
}

// SetQueued marks the task as queued behind another active task.
func (t *TrajectoryTask) SetQueued(queued bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queued = queued
}

// notifyLocked wakes any blocked Next() call. Must hold t.mu.
func (t *TrajectoryTask) notifyLocked() {
	close(t.notifyCh)
	t.notifyCh = make(chan struct{})
}

// stop halts the liveness watcher goroutine. Safe to call multiple times.
func (t *TrajectoryTask) stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// watchLiveness cancels the task if its owning client endpoint becomes
// unreachable, polling every 50ms (§4.5, §5).
func (t *TrajectoryTask) watchLiveness() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if t.health == nil || t.health.IsConnected(t.ownerEndpointID) {
				continue
			}

			t.mu.Lock()
			live := !t.aborted && !t.cancelled && !t.finished && !t.connectionLost
			if live {
				t.connectionLost = true
				t.notifyLocked()
			}
			t.mu.Unlock()

			if live && t.hooks != nil {
				t.hooks.dropTrajectory(t)
			}
			return
		}
	}
}

// Abort terminates the task immediately, asks the controller to halt,
// and fails any pending Next() with an aborted error (§4.5, §7).
func (t *TrajectoryTask) Abort() {
	t.mu.Lock()
	if t.aborted || t.cancelled || t.finished || t.connectionLost {
		t.mu.Unlock()
		return
	}
	t.aborted = true
	t.notifyLocked()
	t.mu.Unlock()
	t.stop()

	if t.hooks != nil {
		t.hooks.requestHalt()
		t.hooks.dropTrajectory(t)
	}
}

// Close cooperatively cancels the task: the controller drops it from
// active/queue, and any pending Next() fails with an aborted error.
func (t *TrajectoryTask) Close() {
	t.mu.Lock()
	if t.aborted || t.cancelled || t.finished || t.connectionLost {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	t.notifyLocked()
	t.mu.Unlock()
	t.stop()

	if t.hooks != nil {
		t.hooks.dropTrajectory(t)
	}
}

// finishLocked marks the task as finished and stops its watcher. Called
// from getSetpoint while t.mu is held.
func (t *TrajectoryTask) finishLocked() {
	t.finished = true
	t.notifyLocked()
	go t.stop()
}

// evaluateLocked maps the task's current flags to a client-visible
// progress value. done reports whether Next() should return now rather
// than keep waiting.
func (t *TrajectoryTask) evaluateLocked() (TrajectoryProgress, error, bool) {
	switch {
	case t.terminalDelivered:
		return TrajectoryProgress{Status: ProgressEndOfStream}, nil, true
	case t.connectionLost:
		t.terminalDelivered = true
		return TrajectoryProgress{}, newConnectionLostError("trajectory owner endpoint %s disconnected", t.ownerEndpointID), true
	case t.aborted:
		t.terminalDelivered = true
		return TrajectoryProgress{}, newAbortedError("trajectory aborted"), true
	case t.cancelled:
		t.terminalDelivered = true
		return TrajectoryProgress{}, newAbortedError("trajectory closed"), true
	case t.jointTolError:
		t.terminalDelivered = true
		return TrajectoryProgress{}, newFailedError("trajectory exceeded joint tolerance"), true
	case t.finished:
		t.terminalDelivered = true
		return TrajectoryProgress{Status: ProgressComplete, WaypointIndex: t.lastWaypoint}, nil, true
	case t.queued:
		return TrajectoryProgress{Status: ProgressQueued}, nil, false
	case !t.started:
		return TrajectoryProgress{Status: ProgressWaiting}, nil, false
	default:
		return TrajectoryProgress{Status: ProgressRunning, WaypointIndex: t.lastWaypoint}, nil, false
	}
}

// Next returns the task's next progress update, or an error describing
// why the stream ended. The first call after creation returns
// immediately (queued or waiting-first-setpoint); subsequent calls
// block for progress, promotion out of the queue, or a 5s poll timeout
// (§4.5).
func (t *TrajectoryTask) Next(ctx context.Context) (TrajectoryProgress, error) {
	t.mu.Lock()
	if !t.nextCalled {
		t.nextCalled = true
		prog, err, _ := t.evaluateLocked()
		t.mu.Unlock()
		return prog, err
	}

	for {
		prog, err, done := t.evaluateLocked()
		if done {
			t.mu.Unlock()
			return prog, err
		}
		ch := t.notifyCh
		t.mu.Unlock()

		timer := time.NewTimer(5 * time.Second)
		select {
		case <-ch:
			timer.Stop()
			t.mu.Lock()
		case <-timer.C:
			t.mu.Lock()
			prog, _, _ := t.evaluateLocked()
			t.mu.Unlock()
			return prog, nil
		case <-ctx.Done():
			timer.Stop()
			return TrajectoryProgress{}, ctx.Err()
		}
	}
}

// getSetpoint advances the trajectory by one tick, comparing the
// interpolated setpoint against live joint feedback. Called by the
// command multiplexer while the controller lock is held (§4.3, §4.5).
func (t *TrajectoryTask) getSetpoint(now int64, currentJointPos []float64) (GetSetpointResult, []float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled || t.aborted || t.connectionLost {
		return SetpointFailed, nil
	}

	if !t.started {
		t.startTime = now
		t.started = true
	}

	elapsed := float64(now-t.startTime) / 1000.0
	jointPos, waypointIdx := t.interpolator.Interpolate(elapsed)

	n := len(jointPos)
	if len(currentJointPos) < n {
		n = len(currentJointPos)
	}
	for i := 0; i < n; i++ {
		deviation := math.Abs(jointPos[i]-currentJointPos[i]) * 180 / math.Pi
		if deviation > t.cfg.TrajectoryErrorTol {
			t.jointTolError = true
			t.notifyLocked()
			go t.stop()
			return SetpointJointTolError, nil
		}
	}

	t.lastWaypoint = waypointIdx

	if !t.nextCalled {
		return SetpointReady, nil
	}

	if elapsed > t.maxTime {
		t.finishLocked()
		return SetpointComplete, jointPos
	}

	if t.firstValidSetpoint {
		t.firstValidSetpoint = false
		t.queued = false
		t.notifyLocked()
		return SetpointFirstValid, jointPos
	}

	return SetpointValid, jointPos
}

// TrajectoryQueue holds at most one active task plus a FIFO of tasks
// waiting behind it (§3 invariant: at most one active, queued is FIFO).
type TrajectoryQueue struct {
	active *TrajectoryTask
	queued []*TrajectoryTask
}

// Enqueue installs task as active if none is running, otherwise appends
// it to the FIFO and marks it queued. Returns whether it became active.
func (q *TrajectoryQueue) Enqueue(task *TrajectoryTask) (becameActive bool) {
	if q.active == nil {
		q.active = task
		task.SetQueued(false)
		return true
	}
	task.SetQueued(true)
	q.queued = append(q.queued, task)
	return false
}

// PromoteNext replaces the active task (assumed completed) with the
// head of the queue, if any.
func (q *TrajectoryQueue) PromoteNext() {
	if len(q.queued) == 0 {
		q.active = nil
		return
	}
	q.active = q.queued[0]
	q.queued = q.queued[1:]
}

// DropActive clears the active slot without promoting the queue
// (used when the active task fails or the mode changes away from
// trajectory).
func (q *TrajectoryQueue) DropActive() {
	q.active = nil
}

// FlushQueued cancels and empties every queued (not active) task.
func (q *TrajectoryQueue) FlushQueued(err error) {
	for _, task := range q.queued {
		task.mu.Lock()
		if !task.aborted && !task.cancelled && !task.finished {
			task.aborted = true
			task.notifyLocked()
		}
		task.mu.Unlock()
		task.stop()
	}
	q.queued = nil
}

// Remove drops task from the queue if present, guarding against an
// already-removed task (Design Note 5: guard a -1 "not found" index).
func (q *TrajectoryQueue) Remove(task *TrajectoryTask) {
	if q.active == task {
		q.active = nil
		return
	}
	idx := -1
	for i, qt := range q.queued {
		if qt == task {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	q.queued = append(q.queued[:idx], q.queued[idx+1:]...)
}

// Active returns the currently active task, or nil.
func (q *TrajectoryQueue) Active() *TrajectoryTask {
	return q.active
}
