package robotcore

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestFillJogWithinTolerance(t *testing.T) {
	mux := NewCommandMultiplexer(testConfig(), &fakeCommandWire{}, &fakeCommandWire{})
	jog := &JogState{target: []float64{0.1, 0.1}, lastCommandAt: 0}
	feedback := FeedbackSnapshot{JointPosition: []float64{0.1, 0.1}}

	cmd := mux.fillJog(jog, feedback, 100)

	if jog.hasTarget() {
		t.Fatal("expected jog to clear once within tolerance")
	}
	if len(cmd.JointPositionCommand) != 0 {
		t.Fatalf("expected empty command on completion, got %v", cmd.JointPositionCommand)
	}
}

func TestFillJogTimesOut(t *testing.T) {
	cfg := testConfig()
	mux := NewCommandMultiplexer(cfg, &fakeCommandWire{}, &fakeCommandWire{})
	jog := &JogState{target: []float64{1.0, 1.0}, lastCommandAt: 0, completion: newSignal()}
	completion := jog.completion
	feedback := FeedbackSnapshot{JointPosition: []float64{0, 0}}

	now := cfg.JogJointTimeout.Milliseconds() + 1
	mux.fillJog(jog, feedback, now)

	if jog.hasTarget() {
		t.Fatal("expected jog cleared after timeout")
	}
	if jog.completion != nil {
		t.Fatal("completion should have been cleared, not left dangling")
	}
	select {
	case <-completion.Done():
		if completion.Err() == nil {
			t.Fatal("expected the pending jog to fail on timeout")
		}
	default:
		t.Fatal("expected the pending jog to be resolved on timeout")
	}
}

func TestFillJogDrivesTowardTarget(t *testing.T) {
	cfg := testConfig()
	mux := NewCommandMultiplexer(cfg, &fakeCommandWire{}, &fakeCommandWire{})
	jog := &JogState{target: []float64{1.0, 1.0}, lastCommandAt: 0}
	feedback := FeedbackSnapshot{JointPosition: []float64{0, 0}}

	cmd := mux.fillJog(jog, feedback, 10)

	if len(cmd.JointPositionCommand) != 2 {
		t.Fatalf("expected a position command while out of tolerance, got %v", cmd.JointPositionCommand)
	}
}

func TestFillPositionRejectsStaleSeqno(t *testing.T) {
	cfg := testConfig()
	wire := &fakeCommandWire{}
	mux := NewCommandMultiplexer(cfg, wire, &fakeCommandWire{})
	state := &ControllerState{StateSeqno: 1}

	wire.set(WireCommandPayload{EndpointID: "c1", Seqno: 5, StateSeqno: 1, Command: []float64{0.1, 0.2}})
	cmd := mux.fillPosition(state)
	if len(cmd.JointPositionCommand) != 2 {
		t.Fatalf("expected accepted command, got %v", cmd.JointPositionCommand)
	}

	wire.set(WireCommandPayload{EndpointID: "c1", Seqno: 5, StateSeqno: 1, Command: []float64{0.3, 0.4}})
	cmd = mux.fillPosition(state)
	if len(cmd.JointPositionCommand) != 0 {
		t.Fatalf("expected stale seqno rejected, got %v", cmd.JointPositionCommand)
	}
}

func TestFillPositionAcceptsWithinStateSeqnoTolerance(t *testing.T) {
	cfg := testConfig()
	wire := &fakeCommandWire{}
	mux := NewCommandMultiplexer(cfg, wire, &fakeCommandWire{})
	// state_seqno drifted by exactly the tolerance window (10); a payload
	// computed a few ticks ago must still be accepted (§4.3, §8).
	state := &ControllerState{StateSeqno: 11}

	wire.set(WireCommandPayload{EndpointID: "c1", Seqno: 1, StateSeqno: 1, Command: []float64{0.1, 0.2}})
	cmd := mux.fillPosition(state)
	if len(cmd.JointPositionCommand) != 2 {
		t.Fatalf("expected acceptance within the ±10 state_seqno tolerance, got %v", cmd.JointPositionCommand)
	}
}

func TestFillPositionRejectsBeyondStateSeqnoTolerance(t *testing.T) {
	cfg := testConfig()
	wire := &fakeCommandWire{}
	mux := NewCommandMultiplexer(cfg, wire, &fakeCommandWire{})
	state := &ControllerState{StateSeqno: 12}

	wire.set(WireCommandPayload{EndpointID: "c1", Seqno: 1, StateSeqno: 1, Command: []float64{0.1, 0.2}})
	cmd := mux.fillPosition(state)
	if len(cmd.JointPositionCommand) != 0 {
		t.Fatalf("expected rejection beyond the ±10 state_seqno tolerance, got %v", cmd.JointPositionCommand)
	}
}

func TestFillPositionRejectsWrongLength(t *testing.T) {
	cfg := testConfig()
	wire := &fakeCommandWire{}
	mux := NewCommandMultiplexer(cfg, wire, &fakeCommandWire{})
	state := &ControllerState{StateSeqno: 1}

	wire.set(WireCommandPayload{EndpointID: "c1", Seqno: 1, StateSeqno: 1, Command: []float64{0.1}})
	cmd := mux.fillPosition(state)
	if len(cmd.JointPositionCommand) != 0 {
		t.Fatalf("expected rejection for wrong joint count, got %v", cmd.JointPositionCommand)
	}
}

func TestFillPositionResetsSeqnoOnEndpointSwitch(t *testing.T) {
	cfg := testConfig()
	wire := &fakeCommandWire{}
	mux := NewCommandMultiplexer(cfg, wire, &fakeCommandWire{})
	state := &ControllerState{StateSeqno: 1}

	wire.set(WireCommandPayload{EndpointID: "c1", Seqno: 10, StateSeqno: 1, Command: []float64{0.1, 0.2}})
	mux.fillPosition(state)

	// A different client endpoint may reuse low sequence numbers.
	wire.set(WireCommandPayload{EndpointID: "c2", Seqno: 1, StateSeqno: 1, Command: []float64{0.3, 0.4}})
	cmd := mux.fillPosition(state)
	if len(cmd.JointPositionCommand) != 2 {
		t.Fatalf("expected new endpoint's seqno accepted, got %v", cmd.JointPositionCommand)
	}
}

func TestFillVelocityScalesBySpeedRatio(t *testing.T) {
	cfg := testConfig()
	wire := &fakeCommandWire{}
	mux := NewCommandMultiplexer(cfg, &fakeCommandWire{}, wire)
	state := &ControllerState{StateSeqno: 1, SpeedRatio: 0.5}

	wire.set(WireCommandPayload{EndpointID: "c1", Seqno: 1, StateSeqno: 1, Command: []float64{1, 1}})
	cmd := mux.fillVelocity(state)

	want := 0.5
	if len(cmd.JointVelocityCommand) != 2 {
		t.Fatalf("expected 2-joint velocity command, got %v", cmd.JointVelocityCommand)
	}
	for i, v := range cmd.JointVelocityCommand {
		if math.Abs(v-want) > 1e-9 {
			t.Fatalf("joint %d: expected %v scaled by speed_ratio 0.5, got %v", i, want, v)
		}
	}
}

func TestFillVelocityLeavesUnityRatioUnscaled(t *testing.T) {
	cfg := testConfig()
	wire := &fakeCommandWire{}
	mux := NewCommandMultiplexer(cfg, &fakeCommandWire{}, wire)
	state := &ControllerState{StateSeqno: 1, SpeedRatio: 1.0}

	wire.set(WireCommandPayload{EndpointID: "c1", Seqno: 1, StateSeqno: 1, Command: []float64{1, 2}})
	cmd := mux.fillVelocity(state)
	if cmd.JointVelocityCommand[0] != 1 || cmd.JointVelocityCommand[1] != 2 {
		t.Fatalf("expected unscaled command at unity speed_ratio, got %v", cmd.JointVelocityCommand)
	}
}

func TestFillTrajectoryFailureFlushesQueue(t *testing.T) {
	cfg := testConfig()
	mux := NewCommandMultiplexer(cfg, &fakeCommandWire{}, &fakeCommandWire{})

	interp := &linearInterpolatorStub{}
	interp.LoadTrajectory([]Waypoint{{JointPositions: []float64{0, 0}, TimeFromStart: time.Second}}, 1.0)
	active := NewTrajectoryTask(interp, cfg, NewFakeClock(0), noopHooks{}, alwaysConnectedHealth{}, "c1")
	defer active.stop()
	mux.trajectories.Enqueue(active)
	active.Next(context.Background())

	queued := NewTrajectoryTask(&linearInterpolatorStub{}, cfg, NewFakeClock(0), noopHooks{}, alwaysConnectedHealth{}, "c2")
	defer queued.stop()
	mux.trajectories.Enqueue(queued)

	// Feedback far outside the active task's trajectory_error_tol triggers
	// joint_tol_error; the whole queue must be cancelled, not promoted.
	mux.fillTrajectory(FeedbackSnapshot{JointPosition: []float64{1000, 1000}}, 1)

	if mux.trajectories.Active() != nil {
		t.Fatal("expected no task promoted after a failed active task")
	}
	_, err := queued.Next(context.Background())
	if err == nil {
		t.Fatal("expected the queued task to be cancelled alongside the failed active task")
	}
}

func TestWithinTolerance(t *testing.T) {
	toleranceRad := 0.1 * math.Pi / 180.0
	if !withinTolerance([]float64{1.0}, []float64{1.0 + toleranceRad/2}, 0.1) {
		t.Fatal("expected within tolerance")
	}
	if withinTolerance([]float64{1.0}, []float64{1.0 + toleranceRad*2}, 0.1) {
		t.Fatal("expected out of tolerance")
	}
}

func TestFillTrajectoryPromotesOnCompletion(t *testing.T) {
	cfg := testConfig()
	mux := NewCommandMultiplexer(cfg, &fakeCommandWire{}, &fakeCommandWire{})

	interp := &linearInterpolatorStub{}
	task := NewTrajectoryTask(interp, cfg, NewFakeClock(0), noopHooks{}, alwaysConnectedHealth{}, "c1")
	interp.LoadTrajectory([]Waypoint{{JointPositions: []float64{0, 0}, TimeFromStart: 0}}, 1.0)
	defer task.stop()

	mux.trajectories.Enqueue(task)

	// First tick latches start time and reports ready.
	cmd := mux.fillTrajectory(FeedbackSnapshot{JointPosition: []float64{0, 0}}, 0)
	if len(cmd.JointPositionCommand) != 0 {
		t.Fatalf("expected empty command on first ready tick, got %v", cmd.JointPositionCommand)
	}

	task.Next(context.Background())

	// maxTime is 0 (single waypoint at t=0), so the next tick completes.
	mux.fillTrajectory(FeedbackSnapshot{JointPosition: []float64{0, 0}}, 1)
	if mux.trajectories.Active() != nil {
		t.Fatal("expected trajectory promoted (to nil, empty queue) after completion")
	}
}

type noopHooks struct{}

func (noopHooks) requestHalt()                       {}
func (noopHooks) dropTrajectory(t *TrajectoryTask) {}
