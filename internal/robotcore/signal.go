package robotcore

import "sync"

// signal is a one-shot, fire-once event used for the promises backing
// jog-wait and trajectory Next() (Design Note 2: "two single-shot
// signals plus a periodic timeout"). It can be fired with either a nil
// error (success) or an *OperationError (failure); Done() closes exactly
// once no matter how many times Fire is called.
type signal struct {
	once sync.Once
	ch   chan struct{}
	err  error
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

// Fire resolves the signal. Only the first call has any effect.
func (s *signal) Fire(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.ch)
	})
}

// Done returns a channel closed once Fire has been called.
func (s *signal) Done() <-chan struct{} {
	return s.ch
}

// Err returns the error Fire was called with; only meaningful after
// Done() has closed.
func (s *signal) Err() error {
	return s.err
}
