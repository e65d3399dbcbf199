package browse

import "time"

// Timer is a one-shot callback scheduled on the daemon loop. All Timer
// methods must be called from the loop goroutine; the loop itself provides
// the exclusion.
type Timer struct {
	cancelled bool
	stop      func() bool
}

// Cancel prevents a pending timer from firing. Safe to call after the
// timer fired or was already cancelled.
func (t *Timer) Cancel() {
	if t == nil {
		return
	}
	t.cancelled = true
	if t.stop != nil {
		t.stop()
	}
}

// schedule arms fn to run on the loop after d. A zero or negative delay
// runs it on the next loop iteration. The returned Timer can be cancelled
// until the callback has started.
func (d *Daemon) schedule(delay time.Duration, fn func()) *Timer {
	t := &Timer{}
	run := func() {
		d.post(func() {
			if t.cancelled {
				return
			}
			fn()
		})
	}
	if delay <= 0 {
		run()
		return t
	}
	at := time.AfterFunc(delay, run)
	t.stop = at.Stop
	return t
}
