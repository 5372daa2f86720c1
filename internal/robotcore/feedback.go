package robotcore

import (
	"sync"
	"time"
)

// Pose is a single endpoint pose sample (position + orientation), kept
// opaque to the core — geometry/kinematics interpretation is out of
// scope (§1).
type Pose struct {
	X, Y, Z          float64
	QX, QY, QZ, QW   float64
}

// SpatialVelocity is a single endpoint twist sample.
type SpatialVelocity struct {
	VX, VY, VZ float64
	WX, WY, WZ float64
}

// FeedbackSnapshot is a defensive copy of RobotFeedback taken under its
// own lock, safe to read without further synchronization.
type FeedbackSnapshot struct {
	JointPosition []float64
	JointVelocity []float64
	JointEffort   []float64

	EndpointPose     []Pose
	EndpointVelocity []SpatialVelocity

	JointArrival  int64 // ms, monotonic arrival timestamp
	HealthArrival int64
	EndpointArrival int64
}

// RobotFeedback holds the latest values reported by the hardware
// transport. Mutated by the transport's feedback callback (allocate new
// slices, then swap under lock); read by the control loop via Snapshot,
// which returns defensive copies (§5).
type RobotFeedback struct {
	mu sync.RWMutex
	s  FeedbackSnapshot
}

// NewRobotFeedback returns empty feedback with no arrivals recorded.
func NewRobotFeedback() *RobotFeedback {
	return &RobotFeedback{}
}

// UpdateJoint records a new joint position/velocity/effort sample. Each
// slice must have length 0 or N; the transport is responsible for that
// invariant (§3).
func (f *RobotFeedback) UpdateJoint(position, velocity, effort []float64, now int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.JointPosition = append([]float64(nil), position...)
	f.s.JointVelocity = append([]float64(nil), velocity...)
	f.s.JointEffort = append([]float64(nil), effort...)
	f.s.JointArrival = now
}

// UpdateHealth records that a controller-health message arrived, without
// itself carrying joint data (used purely for the communication-timeout
// check).
func (f *RobotFeedback) UpdateHealth(now int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.HealthArrival = now
}

// UpdateEndpoint records a new endpoint pose/velocity sample.
func (f *RobotFeedback) UpdateEndpoint(pose []Pose, velocity []SpatialVelocity, now int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.EndpointPose = append([]Pose(nil), pose...)
	f.s.EndpointVelocity = append([]SpatialVelocity(nil), velocity...)
	f.s.EndpointArrival = now
}

// ClearJoint empties the joint vectors, used when entering
// communication_failure (§4.2).
func (f *RobotFeedback) ClearJoint() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.s.JointPosition = nil
	f.s.JointVelocity = nil
	f.s.JointEffort = nil
}

// Snapshot returns a defensive copy of the current feedback state.
func (f *RobotFeedback) Snapshot() FeedbackSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FeedbackSnapshot{
		JointPosition:    append([]float64(nil), f.s.JointPosition...),
		JointVelocity:    append([]float64(nil), f.s.JointVelocity...),
		JointEffort:      append([]float64(nil), f.s.JointEffort...),
		EndpointPose:     append([]Pose(nil), f.s.EndpointPose...),
		EndpointVelocity: append([]SpatialVelocity(nil), f.s.EndpointVelocity...),
		JointArrival:     f.s.JointArrival,
		HealthArrival:    f.s.HealthArrival,
		EndpointArrival:  f.s.EndpointArrival,
	}
}

// oldestArrival returns the oldest (smallest) of the arrival timestamps
// that have actually been recorded, ignoring feedback channels that have
// never fired (0) — endpoint pose feedback in particular is optional
// (§1), and a transport that never reports it must not make every tick
// look permanently stale.
func (s FeedbackSnapshot) oldestArrival() int64 {
	oldest := int64(0)
	for _, arrival := range []int64{s.JointArrival, s.HealthArrival, s.EndpointArrival} {
		if arrival == 0 {
			continue
		}
		if oldest == 0 || arrival < oldest {
			oldest = arrival
		}
	}
	return oldest
}

// Age returns how long ago (as a duration) the oldest arrival timestamp
// was, relative to nowMillis.
func (s FeedbackSnapshot) Age(nowMillis int64) time.Duration {
	return time.Duration(nowMillis-s.oldestArrival()) * time.Millisecond
}
