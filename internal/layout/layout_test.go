package layout

import (
	"testing"

	"hmkcore/internal/advancedkey"
	"hmkcore/internal/akconfig"
	"hmkcore/internal/deferred"
	"hmkcore/internal/keycode"
	"hmkcore/internal/timeutil"
)

type fakeHID struct {
	active map[keycode.Code]bool
}

func newFakeHID() *fakeHID { return &fakeHID{active: map[keycode.Code]bool{}} }

func (h *fakeHID) KeycodeAdd(kc keycode.Code)    { h.active[kc] = true }
func (h *fakeHID) KeycodeRemove(kc keycode.Code) { h.active[kc] = false }

type fakeProfiles struct {
	current int
	last    int
	num     int
}

func (f *fakeProfiles) SetProfile(p int) bool {
	if p < 0 || p >= f.num {
		return false
	}
	if f.current != 0 {
		f.last = f.current
	}
	f.current = p
	return true
}
func (f *fakeProfiles) CurrentProfile() int        { return f.current }
func (f *fakeProfiles) LastNonDefaultProfile() int { return f.last }
func (f *fakeProfiles) NumProfiles() int           { return f.num }

type fakeMatrixReader struct{}

func (fakeMatrixReader) Distance(key int) uint8 { return 0 }

type fakeDeferQueue struct {
	pushed []deferred.Action
}

func (q *fakeDeferQueue) Push(a deferred.Action) bool {
	q.pushed = append(q.pushed, a)
	return true
}

func newLayout(numLayers, numKeys int) (*Layout, *fakeHID, *advancedkey.Engine, *fakeDeferQueue) {
	clock := timeutil.NewFake(0)
	q := &fakeDeferQueue{}
	engine := advancedkey.New(numKeys, nil, fakeMatrixReader{}, nil, q, clock, nil)
	hid := newFakeHID()
	l := New(numLayers, numKeys, engine, hid)
	engine.SetRegistrar(l)
	return l, hid, engine, q
}

// TestGetKeycodeTransparentFallsThrough tests that a Transparent binding on
// the active layer falls through to the default layer's binding.
func TestGetKeycodeTransparentFallsThrough(t *testing.T) {
	l, _, _, _ := newLayout(2, 4)
	l.SetKeymap([][]keycode.Code{
		{keycode.Code(0x04), keycode.Code(0x05), keycode.Code(0x06), keycode.Code(0x07)},
		{keycode.Transparent, keycode.Code(0x10), keycode.Transparent, keycode.Transparent},
	})
	l.layerOn(1)

	if got := l.GetKeycode(l.CurrentLayer(), 0); got != keycode.Code(0x04) {
		t.Errorf("GetKeycode(layer1, key0) = %#x, want fallback to layer0's 0x04", got)
	}
	if got := l.GetKeycode(l.CurrentLayer(), 1); got != keycode.Code(0x10) {
		t.Errorf("GetKeycode(layer1, key1) = %#x, want layer1's own 0x10", got)
	}
}

// TestProcessKeyPlainHID tests that a plain HID keycode is registered on
// press and removed on release.
func TestProcessKeyPlainHID(t *testing.T) {
	l, hid, _, _ := newLayout(1, 4)
	l.SetKeymap([][]keycode.Code{{keycode.Code(0x04), keycode.None, keycode.None, keycode.None}})

	if !l.ProcessKey(0, true) {
		t.Fatalf("ProcessKey(press) should report HID-visible effect")
	}
	if !hid.active[keycode.Code(0x04)] {
		t.Fatalf("expected 0x04 active after press")
	}

	if !l.ProcessKey(0, false) {
		t.Fatalf("ProcessKey(release) should report HID-visible effect")
	}
	if hid.active[keycode.Code(0x04)] {
		t.Errorf("expected 0x04 inactive after release")
	}
}

// TestProcessKeyMomentaryLayer tests that an MO(n) keycode raises and
// lowers the layer mask across press/release, and that its press still
// reports true as a non-Tap-Hold event.
func TestProcessKeyMomentaryLayer(t *testing.T) {
	l, _, _, _ := newLayout(2, 4)
	l.SetKeymap([][]keycode.Code{
		{keycode.MO(1), keycode.None, keycode.None, keycode.None},
		{keycode.Code(0x20), keycode.None, keycode.None, keycode.None},
	})

	if handled := l.ProcessKey(0, true); !handled {
		t.Errorf("a non-None keycode press should report true (non-Tap-Hold event occurred)")
	}
	if l.CurrentLayer() != 1 {
		t.Fatalf("CurrentLayer() = %d, want 1 after MO(1) press", l.CurrentLayer())
	}

	l.ProcessKey(0, false)
	if l.CurrentLayer() != 0 {
		t.Errorf("CurrentLayer() = %d, want 0 after MO(1) release", l.CurrentLayer())
	}
}

// TestProcessKeyProfileSelect tests that a PF(n) keycode switches the
// active profile via the wired ProfileSwitcher.
func TestProcessKeyProfileSelect(t *testing.T) {
	l, _, _, _ := newLayout(1, 4)
	profiles := &fakeProfiles{num: 4}
	l.SetProfileSwitcher(profiles)
	l.SetKeymap([][]keycode.Code{{keycode.PF(2), keycode.None, keycode.None, keycode.None}})

	l.ProcessKey(0, true)
	if profiles.current != 2 {
		t.Errorf("profile = %d, want 2 after PF(2) press", profiles.current)
	}
}

// TestProcessKeyAdvancedKeyDispatch tests that a key bound to an advanced
// key slot is routed to the engine instead of being registered directly,
// and that a Tap-Hold press correctly signals "not a plain HID event".
func TestProcessKeyAdvancedKeyDispatch(t *testing.T) {
	l, _, engine, _ := newLayout(1, 4)
	configs := []akconfig.AdvancedKey{
		{Layer: 0, Key: 0, Type: akconfig.TypeTapHold, TapHold: akconfig.TapHold{
			TapKeycode: keycode.Code(0x04), HoldKeycode: keycode.Code(0xE0), TappingTermMs: 200,
		}},
	}
	l.LoadAdvancedKeys(configs, nil)

	if handled := l.ProcessKey(0, true); handled {
		t.Errorf("Tap-Hold press should report false (exempt from plain-HID signal), got true")
	}
	if !engine.IsTapHold(0) {
		t.Fatalf("expected slot 0 to be a Tap-Hold")
	}
	if !l.IsTapHoldKey(0) {
		t.Errorf("IsTapHoldKey(0) = false, want true")
	}
}
