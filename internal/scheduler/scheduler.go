// Package scheduler drives one firmware scan cycle: it sorts the matrix's
// press/release edges into timestamp order, routes them through the combo
// filter and the Tap-Hold pending buffer, and ticks the advanced-key
// engine; deferred HID mutations queued during one scan are applied at the
// start of the following scan (spec.md §4.5 "Event Scheduler").
//
// Grounded on src/layout.c's layout_task: the event-collection/sort loop,
// the pending_events buffer, and the tick-cadence gate are ported
// directly; gamepad/XInput handling in that function is out of scope
// (spec.md Non-goals).
package scheduler

import (
	"hmkcore/internal/advancedkey"
	"hmkcore/internal/combo"
	"hmkcore/internal/layout"
	"hmkcore/internal/matrix"
	"hmkcore/internal/telemetry"
	"hmkcore/internal/timeutil"
)

// maxPendingEvents bounds the buffer of non-Tap-Hold events held back
// while any Tap-Hold is undecided (spec.md §3 "pending events capacity 8").
const maxPendingEvents = 8

type pendingEvent struct {
	key     int
	pressed bool
}

type timedEdge struct {
	key     int
	pressed bool
	time    timeutil.Millis
}

// Scheduler wires the matrix, combo detector, layout resolver, and
// advanced-key engine into one per-scan task.
type Scheduler struct {
	mat    *matrix.Matrix
	lay    *layout.Layout
	cmb    *combo.Detector
	engine *advancedkey.Engine
	defQ   *DeferredQueue
	clock  timeutil.Clock
	log    *telemetry.Logger

	pending  [maxPendingEvents]pendingEvent
	pendingN int

	// Reused scan-local buffers (spec.md §8 "static arenas ... no
	// allocator on the hot path").
	events  []timedEdge
	hadEdge []bool

	lastTick timeutil.Millis
}

// New creates a Scheduler. All of mat/lay/cmb/engine/defQ must already be
// wired to each other (the advanced-key engine and combo detector push
// into defQ; the combo detector dispatches back through lay).
func New(mat *matrix.Matrix, lay *layout.Layout, cmb *combo.Detector, engine *advancedkey.Engine, defQ *DeferredQueue, clock timeutil.Clock, log *telemetry.Logger) *Scheduler {
	return &Scheduler{
		mat:     mat,
		lay:     lay,
		cmb:     cmb,
		engine:  engine,
		defQ:    defQ,
		clock:   clock,
		log:     log,
		events:  make([]timedEdge, 0, mat.NumKeys()),
		hadEdge: make([]bool, mat.NumKeys()),
	}
}

// Task runs one full scan cycle: apply the deferred actions queued by the
// previous scan, sample the matrix, resolve every edge, tick the
// advanced-key engine, and replay any pending events once decided.
// Returns whether any HID-visible state changed, including changes made by
// the deferred actions applied at its start (spec.md §4.5 steps 1-6).
func (s *Scheduler) Task() bool {
	s.defQ.Drain()

	edges := s.mat.Scan()

	s.events = s.events[:0]
	for i := range s.hadEdge {
		s.hadEdge[i] = false
	}
	for _, e := range edges {
		s.events = append(s.events, timedEdge{key: e.Key, pressed: e.Pressed, time: e.Time})
		s.hadEdge[e.Key] = true
	}
	events := s.events

	// Insertion sort by event time, ascending (N is small).
	for i := 1; i < len(events); i++ {
		j := i
		tmp := events[i]
		for j > 0 && events[j-1].time > tmp.time {
			events[j] = events[j-1]
			j--
		}
		events[j] = tmp
	}

	// Hold events for keys whose pressed state didn't change this scan:
	// order doesn't matter, so process immediately.
	for key := 0; key < s.mat.NumKeys(); key++ {
		if !s.hadEdge[key] && s.mat.State(key).IsPressed {
			s.lay.ProcessHold(key)
		}
	}

	hasNonTapHoldPress := false
	hasNonTapHoldRelease := false

	for _, ev := range events {
		if s.lay.IsKeyDisabled(ev.key) {
			continue
		}
		if s.cmb.Process(ev.key, ev.pressed, ev.time) {
			continue
		}

		if ev.pressed {
			if !s.lay.IsTapHoldKey(ev.key) && s.engine.HasUndecided() {
				s.bufferPending(ev.key, true)
				continue
			}
			if s.lay.ProcessKey(ev.key, true) {
				hasNonTapHoldPress = true
			}
		} else {
			if s.lay.ProcessKey(ev.key, false) {
				hasNonTapHoldRelease = true
			}
		}
	}

	if s.cmb.Task() {
		hasNonTapHoldPress = true
	}

	now := s.clock.Now()
	if hasNonTapHoldPress || timeutil.Elapsed(now, s.lastTick) > 0 {
		s.engine.Tick(hasNonTapHoldPress, hasNonTapHoldRelease)
		s.lastTick = now
	}

	if s.pendingN > 0 && !s.engine.HasUndecided() {
		s.flushPending()
	}

	return s.lay.TakeShouldSendReports()
}

func (s *Scheduler) bufferPending(key int, pressed bool) {
	if s.pendingN >= maxPendingEvents {
		// Overflow: process immediately instead of dropping it.
		s.lay.ProcessKey(key, pressed)
		return
	}
	s.pending[s.pendingN] = pendingEvent{key: key, pressed: pressed}
	s.pendingN++
}

func (s *Scheduler) flushPending() {
	for i := 0; i < s.pendingN; i++ {
		ev := s.pending[i]
		s.lay.ProcessKey(ev.key, ev.pressed)
	}
	s.pendingN = 0
}
