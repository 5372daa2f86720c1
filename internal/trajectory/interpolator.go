// Package trajectory provides a reference TrajectoryInterpolator: a
// piecewise-linear evaluator over a waypoint list, scaled by a speed
// ratio. Spline/blend quality is out of scope for the control core
// (§1); this is enough to drive execute_trajectory end to end.
package trajectory

import (
	"fmt"
	"time"

	"robotdriver/internal/robotcore"
)

// LinearInterpolator implements robotcore.Interpolator with piecewise
// linear segments between consecutive waypoints.
type LinearInterpolator struct {
	waypoints []robotcore.Waypoint
	maxTime   float64
}

// NewLinearInterpolator returns an interpolator with nothing loaded;
// call LoadTrajectory before Interpolate.
func NewLinearInterpolator() *LinearInterpolator {
	return &LinearInterpolator{}
}

// LoadTrajectory stores waypoints scaled by 1/speedRatio: a slower
// ratio stretches every waypoint's TimeFromStart proportionally.
func (l *LinearInterpolator) LoadTrajectory(waypoints []robotcore.Waypoint, speedRatio float64) error {
	if len(waypoints) == 0 {
		return fmt.Errorf("trajectory must have at least one waypoint")
	}
	if speedRatio <= 0 || speedRatio > 1 {
		return fmt.Errorf("speed ratio must be in (0, 1], got %f", speedRatio)
	}

	n := len(waypoints[0].JointPositions)
	scaled := make([]robotcore.Waypoint, len(waypoints))
	for i, wp := range waypoints {
		if len(wp.JointPositions) != n {
			return fmt.Errorf("waypoint %d has %d joints, expected %d", i, len(wp.JointPositions), n)
		}
		if i > 0 && wp.TimeFromStart <= waypoints[i-1].TimeFromStart {
			return fmt.Errorf("waypoint %d time_from_start must increase monotonically", i)
		}
		scaled[i] = robotcore.Waypoint{
			JointPositions: append([]float64(nil), wp.JointPositions...),
			TimeFromStart:  time.Duration(float64(wp.TimeFromStart) / speedRatio),
		}
	}

	l.waypoints = scaled
	l.maxTime = scaled[len(scaled)-1].TimeFromStart.Seconds()
	return nil
}

// MaxTime returns the scaled duration of the loaded trajectory, in
// seconds.
func (l *LinearInterpolator) MaxTime() float64 {
	return l.maxTime
}

// Interpolate returns the joint position at time t (seconds since
// trajectory start) by linear interpolation between the bracketing
// waypoints, clamped to the first/last waypoint outside [0, MaxTime].
func (l *LinearInterpolator) Interpolate(t float64) ([]float64, int) {
	if len(l.waypoints) == 0 {
		return nil, 0
	}
	if t <= 0 {
		return append([]float64(nil), l.waypoints[0].JointPositions...), 0
	}

	last := len(l.waypoints) - 1
	if t >= l.waypoints[last].TimeFromStart.Seconds() {
		return append([]float64(nil), l.waypoints[last].JointPositions...), last
	}

	for i := 1; i <= last; i++ {
		segEnd := l.waypoints[i].TimeFromStart.Seconds()
		if t > segEnd {
			continue
		}
		segStart := l.waypoints[i-1].TimeFromStart.Seconds()
		frac := (t - segStart) / (segEnd - segStart)

		n := len(l.waypoints[i].JointPositions)
		out := make([]float64, n)
		for j := 0; j < n; j++ {
			a := l.waypoints[i-1].JointPositions[j]
			b := l.waypoints[i].JointPositions[j]
			out[j] = a + (b-a)*frac
		}
		return out, i
	}

	return append([]float64(nil), l.waypoints[last].JointPositions...), last
}
