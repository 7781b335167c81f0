// Package barrier tracks a group of outstanding asynchronous operations and
// runs a single continuation once all of them have completed.
//
// A Barrier is not safe for concurrent use. dapctl drives every Barrier from
// the session event loop.
package barrier

// Barrier counts outstanding operations. Operations are registered with Add
// and the barrier is closed to new registrations with Arm; the continuation
// runs exactly once, after Arm, when the count reaches zero.
type Barrier struct {
	pending int
	armed   bool
	fired   bool
	done    func()
}

// New returns a barrier that calls done when it completes. done may be nil.
func New(done func()) *Barrier {
	return &Barrier{done: done}
}

// Add registers one outstanding operation and returns its completion
// function. Calling the completion more than once has no further effect.
func (b *Barrier) Add() func() {
	if b.armed {
		panic("barrier: Add after Arm")
	}
	b.pending++
	called := false
	return func() {
		if called {
			return
		}
		called = true
		b.pending--
		b.check()
	}
}

// Arm closes the barrier to new operations. If nothing is outstanding the
// continuation runs immediately.
func (b *Barrier) Arm() {
	if b.armed {
		return
	}
	b.armed = true
	b.check()
}

// Pending returns the number of operations that have not completed.
func (b *Barrier) Pending() int {
	return b.pending
}

// Done reports whether the continuation has run.
func (b *Barrier) Done() bool {
	return b.fired
}

func (b *Barrier) check() {
	if !b.armed || b.fired || b.pending > 0 {
		return
	}
	b.fired = true
	if b.done != nil {
		b.done()
	}
}
