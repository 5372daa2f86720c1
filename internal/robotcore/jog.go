package robotcore

// JogState is the controller's current manual-jog target, mutated only
// under the controller's lock (§3, §4.6).
type JogState struct {
	target         []float64 // nil when no jog is pending
	lastCommandAt  int64     // ms, timestamp of the last jog_joint call
	completion     *signal   // resolved by the multiplexer or a superseding jog_joint call
}

// hasTarget reports whether a jog target is currently latched.
func (j *JogState) hasTarget() bool {
	return j.target != nil
}

// clear drops the jog target without resolving any pending completion;
// callers that must fail a pending wait should call failPending first.
func (j *JogState) clear() {
	j.target = nil
	j.completion = nil
}

// failPending resolves any outstanding jog-wait promise with err.
func (j *JogState) failPending(err error) {
	if j.completion != nil {
		j.completion.Fire(err)
		j.completion = nil
	}
}

// succeedPending resolves any outstanding jog-wait promise successfully.
func (j *JogState) succeedPending() {
	if j.completion != nil {
		j.completion.Fire(nil)
		j.completion = nil
	}
}
