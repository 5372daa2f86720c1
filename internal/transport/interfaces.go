// Package transport defines the boundary between the control core and
// the physical robot: the outbound command contract every hardware
// backend implements, and the inbound feedback push path.
package transport

import "context"

// Robot is the external transport contract the control core drives on
// every tick: outbound commands plus the small set of maintenance
// operations reachable from the public API.
type Robot interface {
	// SendCommand writes one tick's joint setpoints. Either slice may be
	// empty if that command channel is idle this tick.
	SendCommand(ctx context.Context, jointPosition, jointVelocity []float64) error
	SendDisable(ctx context.Context) error
	SendEnable(ctx context.Context) error
	SendResetErrors(ctx context.Context) error
	// Connected reports the transport's own link status, independent of
	// how recently feedback has arrived.
	Connected() bool
}

// FeedbackListener receives feedback pushed asynchronously by a Robot
// implementation, decoupling the hardware read loop from the control
// loop that consumes it.
type FeedbackListener interface {
	OnJointFeedback(position, velocity, effort []float64, nowMillis int64)
	OnHealthPing(nowMillis int64)
}
