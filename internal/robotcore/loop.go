package robotcore

import "time"

// spinWindow is how far ahead of a tick deadline the loop switches from
// sleeping to busy-waiting, trading CPU for tighter jitter on the last
// stretch of the period.
const spinWindow = 1500 * time.Microsecond

// ControlLoop drives Controller.tick at a fixed period using absolute
// deadlines rather than measuring each sleep from "now": the target
// time for tick N is start + N*period, so a slow tick doesn't push
// every subsequent tick later by the same amount (§5).
type ControlLoop struct {
	controller *Controller
	period     time.Duration
	stop       chan struct{}
	done       chan struct{}
}

// NewControlLoop builds a loop that will drive controller at cfg's
// configured tick period.
func NewControlLoop(controller *Controller) *ControlLoop {
	return &ControlLoop{
		controller: controller,
		period:     controller.cfg.TickPeriod,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run executes ticks until Stop is called. Intended to run on its own
// goroutine; Stop blocks until the loop has fully exited.
func (l *ControlLoop) Run() {
	defer close(l.done)

	deadline := time.Now()
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		deadline = deadline.Add(l.period)
		l.controller.tick(l.controller.clock.NowMillis())

		remaining := time.Until(deadline)
		if remaining <= 0 {
			// Missed the deadline outright; skip the missed periods on the
			// same start + N*period grid instead of trying to catch up with
			// a burst of back-to-back ticks.
			for l.period > 0 && !deadline.After(time.Now()) {
				deadline = deadline.Add(l.period)
			}
			remaining = time.Until(deadline)
		}
		if remaining > spinWindow {
			select {
			case <-time.After(remaining - spinWindow):
			case <-l.stop:
				return
			}
		}
		for time.Until(deadline) > 0 {
			// spin
		}
	}
}

// Stop signals Run to exit and waits for it to do so.
func (l *ControlLoop) Stop() {
	close(l.stop)
	<-l.done
}
