package simtrace

import (
	"testing"

	"hmkcore/internal/keycode"
)

// TestRawSourceSetAndRead tests that Set takes effect on the following Read
// and that out-of-range keys degrade to zero instead of panicking.
func TestRawSourceSetAndRead(t *testing.T) {
	r := NewRawSource(2, 0)
	if got := r.Read(0); got != 0 {
		t.Fatalf("Read(0) = %d, want 0 at rest", got)
	}
	r.Set(0, 255)
	if got := r.Read(0); got != 255 {
		t.Errorf("Read(0) = %d, want 255 after Set", got)
	}
	if got := r.Read(5); got != 0 {
		t.Errorf("Read(5) (out of range) = %d, want 0", got)
	}
	r.Set(5, 100)
	if got := r.Read(1); got != 0 {
		t.Errorf("Set(5, ...) (out of range) corrupted Read(1) = %d, want 0", got)
	}
}

// TestHIDLogAddRemoveTracksActiveSet tests that KeycodeAdd/KeycodeRemove
// maintain Active as a set and Events as a complete ordered log.
func TestHIDLogAddRemoveTracksActiveSet(t *testing.T) {
	h := NewHIDLog()
	h.KeycodeAdd(keycode.Code(0x04))
	h.KeycodeAdd(keycode.Code(0x05))
	if len(h.Active) != 2 {
		t.Fatalf("len(Active) = %d, want 2", len(h.Active))
	}

	h.KeycodeRemove(keycode.Code(0x04))
	if len(h.Active) != 1 || h.Active[0] != keycode.Code(0x05) {
		t.Errorf("Active = %v, want [0x05]", h.Active)
	}

	if len(h.Events) != 3 {
		t.Fatalf("len(Events) = %d, want 3", len(h.Events))
	}
	if !h.Events[0].Added || h.Events[0].Keycode != keycode.Code(0x04) {
		t.Errorf("Events[0] = %+v, unexpected", h.Events[0])
	}
	if h.Events[2].Added || h.Events[2].Keycode != keycode.Code(0x04) {
		t.Errorf("Events[2] = %+v, want a removal of 0x04", h.Events[2])
	}
}

// TestHIDLogRemoveUnknownIsNoop tests that removing a keycode that was
// never added leaves Active untouched but still logs the event.
func TestHIDLogRemoveUnknownIsNoop(t *testing.T) {
	h := NewHIDLog()
	h.KeycodeAdd(keycode.Code(0x04))
	h.KeycodeRemove(keycode.Code(0x99))
	if len(h.Active) != 1 || h.Active[0] != keycode.Code(0x04) {
		t.Errorf("Active = %v, want [0x04] unchanged", h.Active)
	}
	if len(h.Events) != 2 {
		t.Errorf("len(Events) = %d, want 2", len(h.Events))
	}
}
