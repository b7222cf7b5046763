package advancedkey

import (
	"testing"

	"hmkcore/internal/akconfig"
	"hmkcore/internal/deferred"
	"hmkcore/internal/keycode"
	"hmkcore/internal/timeutil"
)

// regCall records one Register/Unregister call.
type regCall struct {
	register bool
	key      int
	kc       keycode.Code
}

type fakeRegistrar struct {
	calls []regCall
}

func (f *fakeRegistrar) Register(key int, kc keycode.Code) {
	f.calls = append(f.calls, regCall{register: true, key: key, kc: kc})
}

func (f *fakeRegistrar) Unregister(key int, kc keycode.Code) {
	f.calls = append(f.calls, regCall{register: false, key: key, kc: kc})
}

func (f *fakeRegistrar) isRegistered(key int, kc keycode.Code) bool {
	held := false
	for _, c := range f.calls {
		if c.key == key && c.kc == kc {
			held = c.register
		}
	}
	return held
}

// fakeDistance is a MatrixReader with directly settable per-key distance.
type fakeDistance struct {
	d map[int]uint8
}

func newFakeDistance() *fakeDistance { return &fakeDistance{d: map[int]uint8{}} }

func (f *fakeDistance) Distance(key int) uint8 { return f.d[key] }

type fakeRT struct {
	disabled map[int]bool
}

func (f *fakeRT) DisableRapidTrigger(key int, disable bool) {
	if f.disabled == nil {
		f.disabled = map[int]bool{}
	}
	f.disabled[key] = disable
}

// fakeQueue records pushed deferred actions and always accepts them.
type fakeQueue struct {
	pushed []deferred.Action
}

func (q *fakeQueue) Push(a deferred.Action) bool {
	q.pushed = append(q.pushed, a)
	return true
}

type fakeMacros struct {
	seqs map[int]akconfig.MacroSequence
}

func (f *fakeMacros) Macro(index int) akconfig.MacroSequence { return f.seqs[index] }

func newEngine(clock timeutil.Clock) (*Engine, *fakeRegistrar, *fakeDistance, *fakeRT, *fakeQueue) {
	reg := &fakeRegistrar{}
	dist := newFakeDistance()
	rt := &fakeRT{}
	q := &fakeQueue{}
	e := New(4, reg, dist, rt, q, clock, nil)
	return e, reg, dist, rt, q
}

// TestNullBindLastBehavior tests that the Last behavior grants the most
// recently pressed key of a simultaneous pair, per spec.md's default.
func TestNullBindLastBehavior(t *testing.T) {
	clock := timeutil.NewFake(0)
	e, reg, _, _, _ := newEngine(clock)
	e.SetConfig([]akconfig.AdvancedKey{
		{Layer: 0, Key: 0, Type: akconfig.TypeNullBind, NullBind: akconfig.NullBind{
			SecondaryKey: 1, Behavior: akconfig.NullBindLast,
		}},
	})

	e.Process(Event{Type: EventPress, Key: 0, Keycode: keycode.Code(0x04), Index: 0})
	if !reg.isRegistered(0, keycode.Code(0x04)) {
		t.Fatalf("primary key should register alone before secondary is pressed")
	}

	e.Process(Event{Type: EventPress, Key: 1, Keycode: keycode.Code(0x05), Index: 0})
	if reg.isRegistered(0, keycode.Code(0x04)) {
		t.Errorf("Last behavior should have unregistered the primary once the secondary pressed")
	}
	if !reg.isRegistered(1, keycode.Code(0x05)) {
		t.Errorf("Last behavior should register the secondary (most recently pressed)")
	}
}

// TestNullBindNeutralResolvesNeither tests that Neutral suppresses both
// keys while simultaneously pressed.
func TestNullBindNeutralResolvesNeither(t *testing.T) {
	clock := timeutil.NewFake(0)
	e, reg, _, _, _ := newEngine(clock)
	e.SetConfig([]akconfig.AdvancedKey{
		{Layer: 0, Key: 0, Type: akconfig.TypeNullBind, NullBind: akconfig.NullBind{
			SecondaryKey: 1, Behavior: akconfig.NullBindNeutral,
		}},
	})

	e.Process(Event{Type: EventPress, Key: 0, Keycode: keycode.Code(0x04), Index: 0})
	e.Process(Event{Type: EventPress, Key: 1, Keycode: keycode.Code(0x05), Index: 0})

	if reg.isRegistered(0, keycode.Code(0x04)) || reg.isRegistered(1, keycode.Code(0x05)) {
		t.Errorf("Neutral behavior should resolve neither key while both are held")
	}
}

// TestDynamicKeystrokeBottomOut tests that crossing the configured
// bottom-out point fires the bottom-out phase's bound action via the
// deferred queue.
func TestDynamicKeystrokeBottomOut(t *testing.T) {
	clock := timeutil.NewFake(0)
	e, _, dist, _, q := newEngine(clock)
	e.SetConfig([]akconfig.AdvancedKey{
		{Layer: 0, Key: 2, Type: akconfig.TypeDynamicKeystroke, DynamicKeystroke: akconfig.DynamicKeystroke{
			Keycodes:       [4]keycode.Code{keycode.Code(0x04), keycode.None, keycode.None, keycode.None},
			Bitmap:         [4]uint8{uint8(akconfig.DKSPress) | uint8(akconfig.DKSTap)<<2},
			BottomOutPoint: 200,
		}},
	})

	dist.d[2] = 100
	e.Process(Event{Type: EventPress, Key: 2, Index: 0})
	if len(q.pushed) != 1 || q.pushed[0].Type != deferred.ActionPress {
		t.Fatalf("press phase should push a press action, got %+v", q.pushed)
	}

	dist.d[2] = 220
	e.Process(Event{Type: EventHold, Key: 2, Index: 0})
	if len(q.pushed) != 2 || q.pushed[1].Type != deferred.ActionTap {
		t.Fatalf("bottom-out phase should push a tap action, got %+v", q.pushed)
	}
}

// TestTapHoldResolvesTapOnQuickRelease tests that releasing a Tap-Hold key
// before its tapping term elapses resolves as a tap.
func TestTapHoldResolvesTapOnQuickRelease(t *testing.T) {
	clock := timeutil.NewFake(0)
	e, reg, _, _, q := newEngine(clock)
	e.SetConfig([]akconfig.AdvancedKey{
		{Layer: 0, Key: 0, Type: akconfig.TypeTapHold, TapHold: akconfig.TapHold{
			TapKeycode: keycode.Code(0x04), HoldKeycode: keycode.Code(0xE0), TappingTermMs: 200,
		}},
	})

	e.Process(Event{Type: EventPress, Key: 0, Index: 0})
	clock.Advance(50)
	e.Process(Event{Type: EventRelease, Key: 0, Index: 0})

	if len(q.pushed) != 1 || q.pushed[0].Keycode != keycode.Code(0x04) {
		t.Fatalf("expected a deferred tap keycode push, got %+v", q.pushed)
	}
	if !reg.isRegistered(0, keycode.Code(0x04)) {
		t.Errorf("tap keycode should be registered on resolution")
	}
}

// TestTapHoldPromotesToHold tests that a Hold-Preferred Tap-Hold key
// promotes to Hold once its tapping term elapses while still pressed.
func TestTapHoldPromotesToHold(t *testing.T) {
	clock := timeutil.NewFake(0)
	e, reg, _, _, _ := newEngine(clock)
	e.SetConfig([]akconfig.AdvancedKey{
		{Layer: 0, Key: 0, Type: akconfig.TypeTapHold, TapHold: akconfig.TapHold{
			TapKeycode: keycode.Code(0x04), HoldKeycode: keycode.Code(0xE0),
			TappingTermMs: 200, Flavor: akconfig.HoldPreferred,
		}},
	})

	e.Process(Event{Type: EventPress, Key: 0, Index: 0})
	clock.Advance(250)
	e.Tick(false, false)

	if !reg.isRegistered(0, keycode.Code(0xE0)) {
		t.Fatalf("expected hold keycode registered after promotion")
	}
	if !e.IsTapHold(0) {
		t.Errorf("IsTapHold(0) = false, want true")
	}
}

// TestToggleHoldToCancel tests that a press while already toggled on
// cancels the toggle instead of starting a new pending window.
func TestToggleHoldToCancel(t *testing.T) {
	clock := timeutil.NewFake(0)
	e, reg, _, _, _ := newEngine(clock)
	e.SetConfig([]akconfig.AdvancedKey{
		{Layer: 0, Key: 0, Type: akconfig.TypeToggle, Toggle: akconfig.Toggle{
			Keycode: keycode.Code(0x04), TappingTermMs: 200,
		}},
	})

	e.Process(Event{Type: EventPress, Key: 0, Index: 0})
	e.Process(Event{Type: EventRelease, Key: 0, Index: 0})
	if !reg.isRegistered(0, keycode.Code(0x04)) {
		t.Fatalf("quick tap should commit the toggle-on state")
	}

	e.Process(Event{Type: EventPress, Key: 0, Index: 0})
	if reg.isRegistered(0, keycode.Code(0x04)) {
		t.Errorf("a press while toggled on should cancel it immediately")
	}
}

// TestMacroPlaybackStepsThroughEvents tests that a Macro advanced key
// plays its event sequence forward one step per Tick.
func TestMacroPlaybackStepsThroughEvents(t *testing.T) {
	clock := timeutil.NewFake(0)
	e, _, _, _, q := newEngine(clock)
	e.SetConfig([]akconfig.AdvancedKey{
		{Layer: 0, Key: 0, Type: akconfig.TypeMacro, Macro: akconfig.Macro{Index: 0}},
	})
	macros := &fakeMacros{seqs: map[int]akconfig.MacroSequence{
		0: {Events: [akconfig.MaxMacroEvents]akconfig.MacroEvent{
			{Action: akconfig.MacroTap, Keycode: keycode.Code(0x04)},
			{Action: akconfig.MacroTap, Keycode: keycode.Code(0x05)},
			{Action: akconfig.MacroEnd},
		}},
	}}
	e.SetMacros(macros)

	e.Process(Event{Type: EventPress, Key: 0, Index: 0})
	e.Tick(false, false)
	e.Tick(false, false)
	e.Tick(false, false)

	if len(q.pushed) != 2 {
		t.Fatalf("expected 2 pushed tap actions before MacroEnd, got %d: %+v", len(q.pushed), q.pushed)
	}
	if q.pushed[0].Keycode != keycode.Code(0x04) || q.pushed[1].Keycode != keycode.Code(0x05) {
		t.Errorf("pushed actions = %+v, want keycodes 0x04 then 0x05 in order", q.pushed)
	}
}

// TestClearUnregistersHeldTapHold tests that Clear releases a registered
// Tap-Hold key's hold keycode.
func TestClearUnregistersHeldTapHold(t *testing.T) {
	clock := timeutil.NewFake(0)
	e, reg, _, _, _ := newEngine(clock)
	e.SetConfig([]akconfig.AdvancedKey{
		{Layer: 0, Key: 0, Type: akconfig.TypeTapHold, TapHold: akconfig.TapHold{
			TapKeycode: keycode.Code(0x04), HoldKeycode: keycode.Code(0xE0), TappingTermMs: 50,
		}},
	})

	e.Process(Event{Type: EventPress, Key: 0, Index: 0})
	clock.Advance(100)
	e.Tick(false, false)
	if !reg.isRegistered(0, keycode.Code(0xE0)) {
		t.Fatalf("setup failed: hold keycode should be registered before Clear")
	}

	e.Clear()
	if reg.isRegistered(0, keycode.Code(0xE0)) {
		t.Errorf("Clear should unregister a held Tap-Hold key's hold keycode")
	}
}
