// Package deferred defines the deferred HID action shared between the
// advanced-key engine, the combo detector (producers), and the scheduler
// (the owner of the actual queue and the one that drains it). Keeping the
// type here instead of in either producer or consumer avoids an import
// cycle between them.
//
// A deferred action exists so a register/unregister triggered mid-scan
// doesn't mutate a HID report that is already under construction: it is
// queued and applied at the start of the next scan instead (spec.md §4.6,
// §9 "Deferred actions").
package deferred

import "hmkcore/internal/keycode"

// ActionType is the kind of HID mutation a deferred action performs.
type ActionType uint8

const (
	ActionPress ActionType = iota
	ActionRelease
	// ActionTap expands to a press followed by a release on the
	// subsequent scan, so it occupies two successive deferred slots.
	ActionTap
)

// Action is one queued register/unregister, scheduled for the start of
// the next scan cycle.
type Action struct {
	Type    ActionType
	Key     int
	Keycode keycode.Code
}

// Queue accepts deferred actions. advancedkey and combo depend only on
// this interface, never on the scheduler package that implements it.
type Queue interface {
	Push(a Action) bool
}
