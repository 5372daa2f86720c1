package robotcore

import (
	"context"
	"testing"
	"time"
)

func newTestTask(t *testing.T, waypoints []Waypoint) (*TrajectoryTask, *linearInterpolatorStub) {
	t.Helper()
	interp := &linearInterpolatorStub{}
	if err := interp.LoadTrajectory(waypoints, 1.0); err != nil {
		t.Fatalf("LoadTrajectory: %v", err)
	}
	task := NewTrajectoryTask(interp, testConfig(), NewFakeClock(0), noopHooks{}, alwaysConnectedHealth{}, "c1")
	t.Cleanup(task.stop)
	return task, interp
}

func TestTrajectoryTaskFirstNextReturnsImmediately(t *testing.T) {
	task, _ := newTestTask(t, []Waypoint{{JointPositions: []float64{0}, TimeFromStart: time.Second}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	prog, err := task.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prog.Status != ProgressWaiting {
		t.Fatalf("expected waiting on first Next before any setpoint, got %v", prog.Status)
	}
}

func TestTrajectoryTaskQueuedReportsQueued(t *testing.T) {
	task, _ := newTestTask(t, []Waypoint{{JointPositions: []float64{0}, TimeFromStart: time.Second}})
	task.SetQueued(true)

	prog, err := task.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prog.Status != ProgressQueued {
		t.Fatalf("expected queued, got %v", prog.Status)
	}
}

func TestTrajectoryTaskGetSetpointCompletesAfterMaxTime(t *testing.T) {
	task, _ := newTestTask(t, []Waypoint{{JointPositions: []float64{0}, TimeFromStart: 0}})

	result, _ := task.getSetpoint(0, []float64{0})
	if result != SetpointReady {
		t.Fatalf("expected ready on first call before Next, got %v", result)
	}

	task.Next(context.Background())

	result, jointPos := task.getSetpoint(1, []float64{0})
	if result != SetpointComplete {
		t.Fatalf("expected complete once elapsed exceeds maxTime, got %v", result)
	}
	if len(jointPos) != 1 {
		t.Fatalf("expected final joint position returned, got %v", jointPos)
	}
}

func TestTrajectoryTaskJointToleranceError(t *testing.T) {
	task, _ := newTestTask(t, []Waypoint{{JointPositions: []float64{0}, TimeFromStart: time.Second}})

	// A huge deviation between the setpoint (0 rad) and current position
	// (way beyond TrajectoryErrorTol degrees) must fail the task.
	result, _ := task.getSetpoint(0, []float64{3.0})
	if result != SetpointJointTolError {
		t.Fatalf("expected joint_tol_error, got %v", result)
	}

	prog, err := task.Next(context.Background())
	if err == nil {
		t.Fatal("expected an error after joint tolerance violation")
	}
	_ = prog
}

func TestTrajectoryTaskAbortFailsPendingNext(t *testing.T) {
	task, _ := newTestTask(t, []Waypoint{{JointPositions: []float64{0}, TimeFromStart: time.Second}})
	task.Next(context.Background()) // first call, immediate

	done := make(chan struct{})
	var progErr error
	go func() {
		_, progErr = task.Next(context.Background())
		close(done)
	}()

	// Give the goroutine time to start blocking on notifyCh.
	time.Sleep(20 * time.Millisecond)
	task.Abort()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after Abort")
	}
	if progErr == nil {
		t.Fatal("expected an aborted error")
	}
}

func TestTrajectoryTaskCloseDropsWithoutHalt(t *testing.T) {
	hooks := &countingHooks{}
	interp := &linearInterpolatorStub{}
	interp.LoadTrajectory([]Waypoint{{JointPositions: []float64{0}, TimeFromStart: time.Second}}, 1.0)
	task := NewTrajectoryTask(interp, testConfig(), NewFakeClock(0), hooks, alwaysConnectedHealth{}, "c1")
	defer task.stop()

	task.Close()

	if hooks.haltCalls != 0 {
		t.Fatalf("Close must not request halt, got %d halt calls", hooks.haltCalls)
	}
	if hooks.dropCalls != 1 {
		t.Fatalf("expected exactly one dropTrajectory call, got %d", hooks.dropCalls)
	}
}

func TestTrajectoryTaskAbortRequestsHalt(t *testing.T) {
	hooks := &countingHooks{}
	interp := &linearInterpolatorStub{}
	interp.LoadTrajectory([]Waypoint{{JointPositions: []float64{0}, TimeFromStart: time.Second}}, 1.0)
	task := NewTrajectoryTask(interp, testConfig(), NewFakeClock(0), hooks, alwaysConnectedHealth{}, "c1")
	defer task.stop()

	task.Abort()

	if hooks.haltCalls != 1 {
		t.Fatalf("expected exactly one requestHalt call, got %d", hooks.haltCalls)
	}
}

type countingHooks struct {
	haltCalls int
	dropCalls int
}

func (h *countingHooks) requestHalt()                     { h.haltCalls++ }
func (h *countingHooks) dropTrajectory(t *TrajectoryTask) { h.dropCalls++ }

func TestTrajectoryQueueEnqueueAndPromote(t *testing.T) {
	var q TrajectoryQueue
	first, _ := newTestTask(t, []Waypoint{{JointPositions: []float64{0}, TimeFromStart: time.Second}})
	second, _ := newTestTask(t, []Waypoint{{JointPositions: []float64{1}, TimeFromStart: time.Second}})

	if became := q.Enqueue(first); !became {
		t.Fatal("first task should become active immediately")
	}
	if became := q.Enqueue(second); became {
		t.Fatal("second task should be queued, not active")
	}
	if q.Active() != first {
		t.Fatal("expected first task active")
	}

	q.PromoteNext()
	if q.Active() != second {
		t.Fatal("expected second task promoted to active")
	}

	q.PromoteNext()
	if q.Active() != nil {
		t.Fatal("expected nil active once queue is drained")
	}
}

func TestTrajectoryQueueRemoveMissingIsNoop(t *testing.T) {
	var q TrajectoryQueue
	task, _ := newTestTask(t, []Waypoint{{JointPositions: []float64{0}, TimeFromStart: time.Second}})

	// Removing a task never enqueued must be a no-op, not a panic.
	q.Remove(task)
}

func TestTrajectoryQueueFlushQueuedCancelsAll(t *testing.T) {
	var q TrajectoryQueue
	active, _ := newTestTask(t, []Waypoint{{JointPositions: []float64{0}, TimeFromStart: time.Second}})
	queued, _ := newTestTask(t, []Waypoint{{JointPositions: []float64{1}, TimeFromStart: time.Second}})

	q.Enqueue(active)
	q.Enqueue(queued)

	q.FlushQueued(newAbortedError("mode changed"))

	queued.mu.Lock()
	aborted := queued.aborted
	queued.mu.Unlock()
	if !aborted {
		t.Fatal("expected queued task marked aborted")
	}
	if len(q.queued) != 0 {
		t.Fatal("expected queue emptied")
	}
}
