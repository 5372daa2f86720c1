package robotcore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

func testUUID() uuid.UUID {
	return uuid.MustParse("00000000-0000-0000-0000-000000000001")
}

// fakeRobot is an in-memory transport.Robot double for controller tests.
type fakeRobot struct {
	mu           sync.Mutex
	connected    bool
	lastPosition []float64
	lastVelocity []float64
	sendCalls    int
	enableCalls  int
	disableCalls int
	resetCalls   int
	resetErr     error
}

func newFakeRobot() *fakeRobot {
	return &fakeRobot{connected: true}
}

func (r *fakeRobot) SendCommand(ctx context.Context, position, velocity []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendCalls++
	r.lastPosition = append([]float64(nil), position...)
	r.lastVelocity = append([]float64(nil), velocity...)
	return nil
}

func (r *fakeRobot) SendDisable(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disableCalls++
	return nil
}

func (r *fakeRobot) SendEnable(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enableCalls++
	return nil
}

func (r *fakeRobot) SendResetErrors(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetCalls++
	return r.resetErr
}

func (r *fakeRobot) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *fakeRobot) setConnected(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = v
}

// alwaysConnectedHealth reports every endpoint reachable.
type alwaysConnectedHealth struct{}

func (alwaysConnectedHealth) IsConnected(string) bool { return true }

// fakeCommandWire is a test double for CommandWire.
type fakeCommandWire struct {
	mu      sync.Mutex
	payload WireCommandPayload
	ok      bool
}

func (w *fakeCommandWire) Latest() (WireCommandPayload, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.payload, w.ok
}

func (w *fakeCommandWire) set(p WireCommandPayload) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.payload = p
	w.ok = true
}

// linearInterpolatorStub is a minimal Interpolator for controller tests
// that don't need real spline math: constant setpoint until maxTime.
type linearInterpolatorStub struct {
	waypoints []Waypoint
	maxTime   float64
}

func (s *linearInterpolatorStub) LoadTrajectory(waypoints []Waypoint, speedRatio float64) error {
	s.waypoints = waypoints
	if len(waypoints) > 0 {
		s.maxTime = waypoints[len(waypoints)-1].TimeFromStart.Seconds()
	}
	return nil
}

func (s *linearInterpolatorStub) Interpolate(t float64) ([]float64, int) {
	if len(s.waypoints) == 0 {
		return nil, 0
	}
	last := s.waypoints[len(s.waypoints)-1]
	return append([]float64(nil), last.JointPositions...), len(s.waypoints) - 1
}

func (s *linearInterpolatorStub) MaxTime() float64 {
	return s.maxTime
}
