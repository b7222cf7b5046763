package config

import (
	"testing"

	"hmkcore/internal/akconfig"
	"hmkcore/internal/keycode"
)

// TestResolveKeymapAndActuation tests that plain keymap and actuation
// fields translate byte-for-byte into their runtime types.
func TestResolveKeymapAndActuation(t *testing.T) {
	p := ProfileYAML{
		Name:   "default",
		Keymap: [][]uint8{{0x04, 0x05}},
		Actuation: []ActuationYAML{
			{ActuationPoint: 40, RapidTriggerDown: 10, RapidTriggerUp: 12, Continuous: true},
		},
	}
	r := Resolve(p)

	if r.Name != "default" {
		t.Errorf("Name = %q, want %q", r.Name, "default")
	}
	if len(r.Keymap) != 1 || r.Keymap[0][0] != keycode.Code(0x04) || r.Keymap[0][1] != keycode.Code(0x05) {
		t.Fatalf("Keymap = %v, want [[0x04 0x05]]", r.Keymap)
	}
	if r.Actuation[0].ActuationPoint != 40 || !r.Actuation[0].Continuous {
		t.Errorf("Actuation[0] = %+v, unexpected", r.Actuation[0])
	}
}

// TestResolveAdvancedKeyTapHold tests that a tap_hold YAML entry resolves
// to the corresponding akconfig flavor and fields.
func TestResolveAdvancedKeyTapHold(t *testing.T) {
	p := ProfileYAML{
		AdvancedKeys: []AdvancedKeyYAML{
			{
				Layer: 0, Key: 3, Type: "tap_hold",
				TapHold: &TapHoldYAML{
					TapKeycode: 0x04, HoldKeycode: 0xE0, TappingTermMs: 175,
					Flavor: "balanced",
				},
			},
		},
	}
	r := Resolve(p)
	if len(r.AdvancedKeys) != 1 {
		t.Fatalf("len(AdvancedKeys) = %d, want 1", len(r.AdvancedKeys))
	}
	ak := r.AdvancedKeys[0]
	if ak.Type != akconfig.TypeTapHold {
		t.Fatalf("Type = %v, want TypeTapHold", ak.Type)
	}
	if ak.TapHold.Flavor != akconfig.Balanced {
		t.Errorf("Flavor = %v, want Balanced", ak.TapHold.Flavor)
	}
	if ak.TapHold.TappingTermMs != 175 {
		t.Errorf("TappingTermMs = %d, want 175", ak.TapHold.TappingTermMs)
	}
}

// TestResolveUnknownTypeFallsBackToNone tests that an unrecognized type
// string degrades to TypeNone instead of erroring, per eeconfig's
// tolerant-of-garbage philosophy.
func TestResolveUnknownTypeFallsBackToNone(t *testing.T) {
	p := ProfileYAML{
		AdvancedKeys: []AdvancedKeyYAML{{Layer: 0, Key: 0, Type: "not_a_real_behavior"}},
	}
	r := Resolve(p)
	if r.AdvancedKeys[0].Type != akconfig.TypeNone {
		t.Errorf("Type = %v, want TypeNone for an unrecognized type string", r.AdvancedKeys[0].Type)
	}
}

// TestResolveMacroEvents tests that macro event lists translate in order,
// with actions looked up from their YAML string.
func TestResolveMacroEvents(t *testing.T) {
	p := ProfileYAML{
		Macros: [][]MacroEventYAML{
			{
				{Action: "tap", Keycode: 0x04},
				{Action: "delay", Keycode: 5},
			},
		},
	}
	r := Resolve(p)
	if len(r.Macros) != 1 {
		t.Fatalf("len(Macros) = %d, want 1", len(r.Macros))
	}
	seq := r.Macros[0]
	if seq.Events[0].Action != akconfig.MacroTap || seq.Events[0].Keycode != keycode.Code(0x04) {
		t.Errorf("Events[0] = %+v, unexpected", seq.Events[0])
	}
	if seq.Events[1].Action != akconfig.MacroDelay || seq.Events[1].Keycode != keycode.Code(5) {
		t.Errorf("Events[1] = %+v, unexpected", seq.Events[1])
	}
}
