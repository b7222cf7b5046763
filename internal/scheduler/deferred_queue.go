package scheduler

import (
	"hmkcore/internal/deferred"
	"hmkcore/internal/keycode"
)

// deferredQueueCapacity bounds the FIFO of pending register/unregister
// mutations (spec.md §3 "deferred queue capacity 16").
const deferredQueueCapacity = 16

// Registrar is the register/unregister surface deferred actions apply to.
// layout.Layout implements this.
type Registrar interface {
	Register(key int, kc keycode.Code)
	Unregister(key int, kc keycode.Code)
}

// DeferredQueue is a small FIFO of HID mutations scheduled for the start
// of the next scan, so a register/unregister triggered mid-scan never
// mutates a HID report already under construction (spec.md §4.6).
type DeferredQueue struct {
	buf   [deferredQueueCapacity]deferred.Action
	head  int
	tail  int
	count int
	reg   Registrar
}

// NewDeferredQueue creates a DeferredQueue that applies drained actions to
// reg.
func NewDeferredQueue(reg Registrar) *DeferredQueue {
	return &DeferredQueue{reg: reg}
}

// Push enqueues an action, applied on the next Drain. On overflow the
// oldest entry is dropped to make room — queue pressure never blocks new
// input (spec.md §8 "Queue overflow ... never drop user input").
func (q *DeferredQueue) Push(a deferred.Action) bool {
	if q.count >= deferredQueueCapacity {
		q.head = (q.head + 1) % deferredQueueCapacity
		q.count--
	}
	q.buf[q.tail] = a
	q.tail = (q.tail + 1) % deferredQueueCapacity
	q.count++
	return true
}

// Drain applies every action queued before this call. A TAP action
// registers now and re-enqueues its matching RELEASE, so it lands on the
// following Drain instead of this one (spec.md §4.6 "TAP expands to
// PRESS-then-RELEASE across two successive scans").
func (q *DeferredQueue) Drain() {
	n := q.count
	for i := 0; i < n; i++ {
		a := q.pop()
		switch a.Type {
		case deferred.ActionPress:
			q.reg.Register(a.Key, a.Keycode)
		case deferred.ActionRelease:
			q.reg.Unregister(a.Key, a.Keycode)
		case deferred.ActionTap:
			q.reg.Register(a.Key, a.Keycode)
			q.Push(deferred.Action{Type: deferred.ActionRelease, Key: a.Key, Keycode: a.Keycode})
		}
	}
}

func (q *DeferredQueue) pop() deferred.Action {
	a := q.buf[q.head]
	q.head = (q.head + 1) % deferredQueueCapacity
	q.count--
	return a
}
