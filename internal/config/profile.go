// Package config loads human-authored YAML profiles and packs them into
// the binary eeconfig-shaped blob the firmware package consumes, mirroring
// eeconfig's persisted layout (spec.md §6 "Persistent config (eeconfig)").
//
// The YAML source format is grounded on vincent99-velocipi's
// server/config/config.go (gopkg.in/yaml.v3 struct tags, defaults +
// override layering); the packed binary encoding is grounded on the
// teacher's internal/rom/builder.go ROMBuilder (little-endian
// encoding/binary assembly with a fixed header).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hmkcore/internal/akconfig"
	"hmkcore/internal/keycode"
	"hmkcore/internal/matrix"
)

// ActuationYAML is one key's actuation settings as authored in YAML.
type ActuationYAML struct {
	ActuationPoint   uint8 `yaml:"actuationPoint"`
	RapidTriggerDown uint8 `yaml:"rapidTriggerDown"`
	RapidTriggerUp   uint8 `yaml:"rapidTriggerUp"`
	Continuous       bool  `yaml:"continuous"`
}

// NullBindYAML is a Null Bind advanced key's YAML configuration.
type NullBindYAML struct {
	SecondaryKey   int    `yaml:"secondaryKey"`
	Behavior       string `yaml:"behavior"` // last|primary|secondary|neutral|distance
	BottomOutPoint uint8  `yaml:"bottomOutPoint"`
}

// DynamicKeystrokeYAML is a Dynamic Keystroke advanced key's YAML
// configuration.
type DynamicKeystrokeYAML struct {
	Keycodes       [4]uint8 `yaml:"keycodes"`
	Bitmap         [4]uint8 `yaml:"bitmap"`
	BottomOutPoint uint8    `yaml:"bottomOutPoint"`
}

// TapHoldYAML is a Tap-Hold advanced key's YAML configuration.
type TapHoldYAML struct {
	TapKeycode         uint8  `yaml:"tapKeycode"`
	HoldKeycode        uint8  `yaml:"holdKeycode"`
	TappingTermMs      uint16 `yaml:"tappingTermMs"`
	Flavor             string `yaml:"flavor"` // hold_preferred|balanced|tap_preferred|tap_unless_interrupted
	RetroTapping       bool   `yaml:"retroTapping"`
	HoldWhileUndecided bool   `yaml:"holdWhileUndecided"`
	QuickTapMs         uint16 `yaml:"quickTapMs"`
	RequirePriorIdleMs uint16 `yaml:"requirePriorIdleMs"`
	DoubleTapKeycode   uint8  `yaml:"doubleTapKeycode"`
}

// ToggleYAML is a Toggle advanced key's YAML configuration.
type ToggleYAML struct {
	Keycode       uint8  `yaml:"keycode"`
	TappingTermMs uint16 `yaml:"tappingTermMs"`
}

// ComboYAML is a Combo advanced key's YAML configuration.
type ComboYAML struct {
	Keys          [4]int `yaml:"keys"`
	OutputKeycode uint8  `yaml:"outputKeycode"`
	TermMs        uint16 `yaml:"termMs"`
}

// MacroYAML is a Macro advanced key's YAML configuration: a reference to a
// sequence in the profile's macro table.
type MacroYAML struct {
	Index int `yaml:"index"`
}

// AdvancedKeyYAML is one advanced-key slot as authored in YAML: a (layer,
// key) binding plus exactly one populated variant, selected by type.
type AdvancedKeyYAML struct {
	Layer int    `yaml:"layer"`
	Key   int    `yaml:"key"`
	Type  string `yaml:"type"` // null_bind|dynamic_keystroke|tap_hold|toggle|combo|macro

	NullBind         *NullBindYAML         `yaml:"nullBind,omitempty"`
	DynamicKeystroke *DynamicKeystrokeYAML `yaml:"dynamicKeystroke,omitempty"`
	TapHold          *TapHoldYAML          `yaml:"tapHold,omitempty"`
	Toggle           *ToggleYAML           `yaml:"toggle,omitempty"`
	Combo            *ComboYAML            `yaml:"combo,omitempty"`
	Macro            *MacroYAML            `yaml:"macro,omitempty"`
}

// MacroEventYAML is one playback step of a macro sequence.
type MacroEventYAML struct {
	Action  string `yaml:"action"` // tap|press|release|delay
	Keycode uint8  `yaml:"keycode"`
}

// ProfileYAML is one complete human-authored profile.
type ProfileYAML struct {
	Name        string              `yaml:"name"`
	Keymap      [][]uint8           `yaml:"keymap"` // [layer][key]
	Actuation   []ActuationYAML     `yaml:"actuation"`
	AdvancedKeys []AdvancedKeyYAML  `yaml:"advancedKeys"`
	Macros      [][]MacroEventYAML  `yaml:"macros"`
}

// Document is the top-level YAML file shape: up to 8 profiles plus the
// index of the profile active at boot (spec.md §6 "profiles[1..8]").
type Document struct {
	CurrentProfile int           `yaml:"currentProfile"`
	Profiles       []ProfileYAML `yaml:"profiles"`
}

// LoadFile reads and parses a profile document from path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &doc, nil
}

// Save writes doc back out as YAML.
func Save(path string, doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

var nullBindBehaviors = map[string]akconfig.NullBindBehavior{
	"last":      akconfig.NullBindLast,
	"primary":   akconfig.NullBindPrimary,
	"secondary": akconfig.NullBindSecondary,
	"neutral":   akconfig.NullBindNeutral,
	"distance":  akconfig.NullBindDistance,
}

var tapHoldFlavors = map[string]akconfig.TapHoldFlavor{
	"hold_preferred":         akconfig.HoldPreferred,
	"balanced":               akconfig.Balanced,
	"tap_preferred":          akconfig.TapPreferred,
	"tap_unless_interrupted": akconfig.TapUnlessInterrupted,
}

var macroActions = map[string]akconfig.MacroActionType{
	"tap":     akconfig.MacroTap,
	"press":   akconfig.MacroPress,
	"release": akconfig.MacroRelease,
	"delay":   akconfig.MacroDelay,
}

// Resolved is a profile translated from its YAML source into the runtime
// shapes matrix/layout/advancedkey consume.
type Resolved struct {
	Name         string
	Keymap       [][]keycode.Code
	Actuation    []matrix.ActuationConfig
	AdvancedKeys []akconfig.AdvancedKey
	Macros       []akconfig.MacroSequence
}

// Resolve translates one YAML profile into its runtime representation.
// Unknown type/behavior/flavor strings fall back to the zero value rather
// than erroring, matching eeconfig's tolerant-of-garbage persisted-data
// philosophy (spec.md §7 "malformed config: degrade, don't crash").
func Resolve(p ProfileYAML) Resolved {
	r := Resolved{Name: p.Name}

	r.Keymap = make([][]keycode.Code, len(p.Keymap))
	for i, layer := range p.Keymap {
		r.Keymap[i] = make([]keycode.Code, len(layer))
		for k, kc := range layer {
			r.Keymap[i][k] = keycode.Code(kc)
		}
	}

	r.Actuation = make([]matrix.ActuationConfig, len(p.Actuation))
	for i, a := range p.Actuation {
		r.Actuation[i] = matrix.ActuationConfig{
			ActuationPoint:   a.ActuationPoint,
			RapidTriggerDown: a.RapidTriggerDown,
			RapidTriggerUp:   a.RapidTriggerUp,
			Continuous:       a.Continuous,
		}
	}

	r.AdvancedKeys = make([]akconfig.AdvancedKey, len(p.AdvancedKeys))
	for i, ak := range p.AdvancedKeys {
		r.AdvancedKeys[i] = resolveAdvancedKey(ak)
	}

	r.Macros = make([]akconfig.MacroSequence, len(p.Macros))
	for i, seq := range p.Macros {
		for j, ev := range seq {
			if j >= akconfig.MaxMacroEvents {
				break
			}
			r.Macros[i].Events[j] = akconfig.MacroEvent{
				Keycode: keycode.Code(ev.Keycode),
				Action:  macroActions[ev.Action],
			}
		}
	}

	return r
}

func resolveAdvancedKey(ak AdvancedKeyYAML) akconfig.AdvancedKey {
	out := akconfig.AdvancedKey{Layer: ak.Layer, Key: ak.Key}

	switch ak.Type {
	case "null_bind":
		out.Type = akconfig.TypeNullBind
		if ak.NullBind != nil {
			out.NullBind = akconfig.NullBind{
				SecondaryKey:   ak.NullBind.SecondaryKey,
				Behavior:       nullBindBehaviors[ak.NullBind.Behavior],
				BottomOutPoint: ak.NullBind.BottomOutPoint,
			}
		}
	case "dynamic_keystroke":
		out.Type = akconfig.TypeDynamicKeystroke
		if ak.DynamicKeystroke != nil {
			for i, kc := range ak.DynamicKeystroke.Keycodes {
				out.DynamicKeystroke.Keycodes[i] = keycode.Code(kc)
			}
			out.DynamicKeystroke.Bitmap = ak.DynamicKeystroke.Bitmap
			out.DynamicKeystroke.BottomOutPoint = ak.DynamicKeystroke.BottomOutPoint
		}
	case "tap_hold":
		out.Type = akconfig.TypeTapHold
		if ak.TapHold != nil {
			out.TapHold = akconfig.TapHold{
				TapKeycode:         keycode.Code(ak.TapHold.TapKeycode),
				HoldKeycode:        keycode.Code(ak.TapHold.HoldKeycode),
				TappingTermMs:      ak.TapHold.TappingTermMs,
				Flavor:             tapHoldFlavors[ak.TapHold.Flavor],
				RetroTapping:       ak.TapHold.RetroTapping,
				HoldWhileUndecided: ak.TapHold.HoldWhileUndecided,
				QuickTapMs:         ak.TapHold.QuickTapMs,
				RequirePriorIdleMs: ak.TapHold.RequirePriorIdleMs,
				DoubleTapKeycode:   keycode.Code(ak.TapHold.DoubleTapKeycode),
			}
		}
	case "toggle":
		out.Type = akconfig.TypeToggle
		if ak.Toggle != nil {
			out.Toggle = akconfig.Toggle{
				Keycode:       keycode.Code(ak.Toggle.Keycode),
				TappingTermMs: ak.Toggle.TappingTermMs,
			}
		}
	case "combo":
		out.Type = akconfig.TypeCombo
		if ak.Combo != nil {
			out.Combo = akconfig.Combo{
				Keys:          ak.Combo.Keys,
				OutputKeycode: keycode.Code(ak.Combo.OutputKeycode),
				TermMs:        ak.Combo.TermMs,
			}
		}
	case "macro":
		out.Type = akconfig.TypeMacro
		if ak.Macro != nil {
			out.Macro = akconfig.Macro{Index: ak.Macro.Index}
		}
	default:
		out.Type = akconfig.TypeNone
	}

	return out
}
