package robotcore

import "testing"

func testConfig() RobotConfig {
	return DefaultRobotConfig([]string{"j1", "j2"}, testUUID())
}

func TestVerifyCommunicationNeverArrived(t *testing.T) {
	cfg := testConfig()
	fb := NewRobotFeedback()
	state := NewControllerState()
	ok := verifyCommunication(cfg, fb, &state, fb.Snapshot(), true, 1000)
	if ok {
		t.Fatal("expected unhealthy when no feedback has ever arrived")
	}
	if !state.CommunicationFailure {
		t.Fatal("expected communication_failure set")
	}
	if state.CommandMode != ModeInvalidState {
		t.Fatalf("expected command_mode forced to invalid_state, got %v", state.CommandMode)
	}
}

func TestVerifyCommunicationHealthy(t *testing.T) {
	cfg := testConfig()
	fb := NewRobotFeedback()
	fb.UpdateJoint([]float64{0, 0}, []float64{0, 0}, []float64{0, 0}, 1000)
	fb.UpdateHealth(1000)
	state := NewControllerState()

	ok := verifyCommunication(cfg, fb, &state, fb.Snapshot(), true, 1010)
	if !ok {
		t.Fatal("expected healthy within communication timeout")
	}
	if state.CommunicationFailure {
		t.Fatal("expected communication_failure cleared")
	}
}

func TestVerifyCommunicationRequiresHealthArrival(t *testing.T) {
	// Only joint feedback has arrived; health feedback never has. Both the
	// joint and the robot-health arrivals are required, not just joint's.
	cfg := testConfig()
	fb := NewRobotFeedback()
	fb.UpdateJoint([]float64{0, 0}, []float64{0, 0}, []float64{0, 0}, 1000)
	state := NewControllerState()

	ok := verifyCommunication(cfg, fb, &state, fb.Snapshot(), true, 1010)
	if ok {
		t.Fatal("expected unhealthy when robot-health feedback has never arrived")
	}
}

func TestVerifyCommunicationTimesOutAndClearsFeedback(t *testing.T) {
	cfg := testConfig()
	fb := NewRobotFeedback()
	fb.UpdateJoint([]float64{1, 2}, []float64{0, 0}, []float64{0, 0}, 1000)
	fb.UpdateHealth(1000)
	state := NewControllerState()

	now := int64(1000) + cfg.CommunicationTimeout.Milliseconds() + 1
	ok := verifyCommunication(cfg, fb, &state, fb.Snapshot(), true, now)
	if ok {
		t.Fatal("expected unhealthy after communication timeout elapses")
	}
	if snap := fb.Snapshot(); len(snap.JointPosition) != 0 {
		t.Fatalf("expected joint feedback cleared, got %v", snap.JointPosition)
	}
}

func TestVerifyCommunicationIgnoresUnsetEndpointArrival(t *testing.T) {
	// A transport that never reports endpoint pose (e.g. Modbus/serial,
	// which only carry joint feedback) must not be perpetually reported
	// unhealthy just because EndpointArrival stays at its zero value.
	cfg := testConfig()
	fb := NewRobotFeedback()
	fb.UpdateJoint([]float64{0, 0}, []float64{0, 0}, []float64{0, 0}, 1000)
	fb.UpdateHealth(1000)
	state := NewControllerState()

	ok := verifyCommunication(cfg, fb, &state, fb.Snapshot(), true, 1010)
	if !ok {
		t.Fatal("expected healthy even though endpoint feedback was never reported")
	}
}

func TestVerifyCommunicationDisconnectedTransportFails(t *testing.T) {
	cfg := testConfig()
	fb := NewRobotFeedback()
	fb.UpdateJoint([]float64{0, 0}, []float64{0, 0}, []float64{0, 0}, 1000)
	fb.UpdateHealth(1000)
	state := NewControllerState()

	ok := verifyCommunication(cfg, fb, &state, fb.Snapshot(), false, 1010)
	if ok {
		t.Fatal("expected unhealthy when the transport reports disconnected")
	}
}

func TestVerifyRobotStateNotReadyIsInvalidState(t *testing.T) {
	state := NewControllerState()
	state.Ready = false

	ok := verifyRobotState(&state)
	if ok {
		t.Fatal("expected state_ok false while not ready")
	}
	if state.CommandMode != ModeInvalidState {
		t.Fatalf("expected command_mode invalid_state, got %v", state.CommandMode)
	}
	if state.ControllerState != ControllerMotorOff {
		t.Fatalf("expected controller_state motor_off, got %v", state.ControllerState)
	}
}

func TestVerifyRobotStateStoppedReportsEmergencyStop(t *testing.T) {
	state := NewControllerState()
	state.Ready = false
	state.Stopped = true

	verifyRobotState(&state)

	if state.ControllerState != ControllerEmergencyStop {
		t.Fatalf("expected controller_state emergency_stop, got %v", state.ControllerState)
	}
}

func TestVerifyRobotStateErrorReportsGuardStop(t *testing.T) {
	state := NewControllerState()
	state.Ready = false
	state.Error = true

	verifyRobotState(&state)

	if state.ControllerState != ControllerGuardStop {
		t.Fatalf("expected controller_state guard_stop, got %v", state.ControllerState)
	}
}

func TestVerifyRobotStateNotEnabledIsInvalidState(t *testing.T) {
	state := NewControllerState()
	state.Ready = true
	state.Enabled = false

	ok := verifyRobotState(&state)
	if ok {
		t.Fatal("expected state_ok false while not enabled")
	}
	if state.CommandMode != ModeInvalidState {
		t.Fatalf("expected command_mode invalid_state, got %v", state.CommandMode)
	}
}

func TestVerifyRobotStateReadyAndEnabledIsMotorOn(t *testing.T) {
	state := NewControllerState()
	state.Ready = true
	state.Enabled = true
	state.CommandMode = ModeInvalidState

	ok := verifyRobotState(&state)
	if !ok {
		t.Fatal("expected state_ok true when ready and enabled")
	}
	if state.ControllerState != ControllerMotorOn {
		t.Fatalf("expected controller_state motor_on, got %v", state.ControllerState)
	}
	if state.CommandMode != ModeHalt {
		t.Fatalf("expected invalid_state to resolve to halt, got %v", state.CommandMode)
	}
}

func TestVerifyRobotStatePreservesNonInvalidMode(t *testing.T) {
	state := NewControllerState()
	state.Ready = true
	state.Enabled = true
	state.CommandMode = ModeTrajectory

	verifyRobotState(&state)

	if state.CommandMode != ModeTrajectory {
		t.Fatalf("expected command_mode left untouched, got %v", state.CommandMode)
	}
}

func TestVerifyRobotStateHomingAllowsMotorOff(t *testing.T) {
	state := NewControllerState()
	state.CommandMode = ModeHoming
	state.Enabled = true

	ok := verifyRobotState(&state)
	if !ok {
		t.Fatal("expected state_ok true while homing with enabled and no error")
	}
	if state.ControllerState != ControllerMotorOff {
		t.Fatalf("expected controller_state motor_off during homing, got %v", state.ControllerState)
	}
}
