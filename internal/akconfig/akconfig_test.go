package akconfig

import (
	"testing"

	"hmkcore/internal/keycode"
)

// TestDynamicKeystrokeAction tests that the packed 2-bit-per-phase bitmap
// unpacks to the right action for each phase and slot.
func TestDynamicKeystrokeAction(t *testing.T) {
	d := DynamicKeystroke{
		Bitmap: [4]uint8{
			uint8(DKSPress) | uint8(DKSTap)<<2 | uint8(DKSRelease)<<4 | uint8(DKSHold)<<6,
		},
	}
	cases := []struct {
		phase int
		want  DKSAction
	}{
		{0, DKSPress},
		{1, DKSTap},
		{2, DKSRelease},
		{3, DKSHold},
	}
	for _, tc := range cases {
		if got := d.Action(0, tc.phase); got != tc.want {
			t.Errorf("Action(0, %d) = %v, want %v", tc.phase, got, tc.want)
		}
	}
}

// TestComboRequiredKeys tests the populated-slot counter used to size a
// combo's match requirement.
func TestComboRequiredKeys(t *testing.T) {
	c := Combo{Keys: [4]int{3, 7, ComboKeyNone, ComboKeyNone}}
	if got := c.RequiredKeys(); got != 2 {
		t.Errorf("RequiredKeys() = %d, want 2", got)
	}

	full := Combo{Keys: [4]int{1, 2, 3, 4}}
	if got := full.RequiredKeys(); got != 4 {
		t.Errorf("RequiredKeys() = %d, want 4", got)
	}

	empty := Combo{Keys: [4]int{ComboKeyNone, ComboKeyNone, ComboKeyNone, ComboKeyNone}}
	if got := empty.RequiredKeys(); got != 0 {
		t.Errorf("RequiredKeys() = %d, want 0", got)
	}
}

// TestAdvancedKeyVariantIndependence tests that setting one behavior
// variant leaves the others at their zero value, matching the tagged-union
// discipline dispatch sites rely on.
func TestAdvancedKeyVariantIndependence(t *testing.T) {
	ak := AdvancedKey{
		Layer: 0,
		Key:   5,
		Type:  TypeToggle,
		Toggle: Toggle{
			Keycode:       keycode.Code(0x10),
			TappingTermMs: 200,
		},
	}
	if ak.Type != TypeToggle {
		t.Fatalf("Type = %v, want TypeToggle", ak.Type)
	}
	if ak.NullBind != (NullBind{}) {
		t.Errorf("NullBind variant is non-zero: %+v", ak.NullBind)
	}
	if ak.TapHold != (TapHold{}) {
		t.Errorf("TapHold variant is non-zero: %+v", ak.TapHold)
	}
}
