package robotcore

// WireCommandPayload is the shape carried by the position_command and
// velocity_command wires (§6): per-joint command values with an
// optional per-joint unit code, guarded by a client-scoped sequence
// number and a staleness check against the controller's state_seqno.
type WireCommandPayload struct {
	EndpointID string
	Seqno      uint64
	StateSeqno uint64
	Command    []float64
	Units      []Unit
}

// CommandWire is the external RPC middleware's latest-value channel, as
// consumed by the command multiplexer. Only the narrow Latest() read is
// in scope for the core — wire transport, framing and delivery live in
// the RPC layer (§1 Out of scope).
type CommandWire interface {
	// Latest returns the most recently delivered payload and true, or
	// the zero value and false if nothing has ever been delivered.
	Latest() (WireCommandPayload, bool)
}

// WireCmdState tracks per-direction (position or velocity) acceptance
// state: the last client endpoint seen, the last accepted sequence
// number for that endpoint, and whether a payload was accepted this
// tick (§3, §8).
type WireCmdState struct {
	lastEndpointID string
	lastSeqno      uint64
	sentThisTick   bool
}

// observeEndpoint resets lastSeqno to 0 when the client endpoint id
// changes (§3 invariant), returning the (possibly reset) last seqno.
func (w *WireCmdState) observeEndpoint(endpointID string) uint64 {
	if endpointID != w.lastEndpointID {
		w.lastEndpointID = endpointID
		w.lastSeqno = 0
	}
	return w.lastSeqno
}

// resetTick clears the sent-this-tick flag. Called at the top of
// fill_robot_command (§4.3: "at entry clears ... sent flags").
func (w *WireCmdState) resetTick() {
	w.sentThisTick = false
}

func (w *WireCmdState) accept(seqno uint64) {
	w.lastSeqno = seqno
	w.sentThisTick = true
}
