// Package akconfig holds the static, persisted configuration shapes for the
// six advanced-key behaviors (spec.md §3 "AdvancedKey"). It has no
// behavior of its own — it exists so the advancedkey, layout, and combo
// packages can share one definition of "what an advanced key looks like"
// without importing each other.
package akconfig

import "hmkcore/internal/keycode"

// Type discriminates the six advanced-key behaviors. Go has no sum type,
// so AdvancedKey below plays the role of the source's tagged union: one
// Type field plus one populated variant field, with every dispatch site
// switching exhaustively on Type (spec.md §9 "tagged union").
type Type uint8

const (
	TypeNone Type = iota
	TypeNullBind
	TypeDynamicKeystroke
	TypeTapHold
	TypeToggle
	TypeCombo
	TypeMacro
)

// NullBindBehavior controls how a Null Bind resolves simultaneous presses
// of its primary and secondary key.
type NullBindBehavior uint8

const (
	NullBindLast NullBindBehavior = iota
	NullBindPrimary
	NullBindSecondary
	NullBindNeutral
	NullBindDistance
)

// NullBind is the static configuration of a Null Bind advanced key.
type NullBind struct {
	SecondaryKey   int
	Behavior       NullBindBehavior
	BottomOutPoint uint8 // 0 disables the bottom-out override
}

// DKSAction is the per-phase action bound to one of a Dynamic Keystroke's
// four keycodes.
type DKSAction uint8

const (
	DKSHold DKSAction = iota
	DKSPress
	DKSRelease
	DKSTap
)

// DynamicKeystroke is the static configuration of a Dynamic Keystroke
// advanced key: four keycodes, each with an action for each of the four
// travel phases packed two bits at a time.
type DynamicKeystroke struct {
	Keycodes       [4]keycode.Code
	Bitmap         [4]uint8 // bits 0-1 press, 2-3 bottom-out, 4-5 release-from-bottom-out, 6-7 release
	BottomOutPoint uint8
}

// Action returns the action bound to keycode slot i for the given phase
// index (0=press, 1=bottom-out, 2=release-from-bottom-out, 3=release).
func (d DynamicKeystroke) Action(slot int, phase int) DKSAction {
	return DKSAction((d.Bitmap[slot] >> (uint(phase) * 2)) & 0x3)
}

// TapHoldFlavor selects how a Tap-Hold disambiguates an overlapping press.
type TapHoldFlavor uint8

const (
	HoldPreferred TapHoldFlavor = iota
	Balanced
	TapPreferred
	TapUnlessInterrupted
)

// TapHold is the static configuration of a Tap-Hold advanced key.
type TapHold struct {
	TapKeycode         keycode.Code
	HoldKeycode        keycode.Code
	TappingTermMs      uint16
	Flavor             TapHoldFlavor
	RetroTapping       bool
	HoldWhileUndecided bool
	QuickTapMs         uint16
	RequirePriorIdleMs uint16
	DoubleTapKeycode   keycode.Code // 0 (KC_NO) disables
}

// Toggle is the static configuration of a Toggle advanced key.
type Toggle struct {
	Keycode       keycode.Code
	TappingTermMs uint16
}

// ComboKeyNone marks an unused slot in a Combo's key list.
const ComboKeyNone = 255

// Combo is the static configuration of a Combo advanced key.
type Combo struct {
	Keys          [4]int // ComboKeyNone for unused slots
	OutputKeycode keycode.Code
	TermMs        uint16
}

// RequiredKeys returns the number of populated (non-ComboKeyNone) key
// slots.
func (c Combo) RequiredKeys() int {
	n := 0
	for _, k := range c.Keys {
		if k != ComboKeyNone {
			n++
		}
	}
	return n
}

// Macro is the static configuration of a Macro advanced key: just a
// reference into the macro table (spec.md §3 "Macro { index into macro
// table }").
type Macro struct {
	Index int
}

// MacroActionType is one playback step of a macro sequence.
type MacroActionType uint8

const (
	MacroEnd MacroActionType = iota
	MacroTap
	MacroPress
	MacroRelease
	MacroDelay
)

// MacroEvent is a single step of a macro's event list. For MacroDelay,
// Keycode holds the delay length in 10ms units (spec.md §4.3 "DELAY ->
// set delay_until = now + 10 x keycode_field_ms").
type MacroEvent struct {
	Keycode keycode.Code
	Action  MacroActionType
}

// MaxMacroEvents bounds a single macro's sequence length (spec.md §3
// "macros of <=16 events").
const MaxMacroEvents = 16

// MacroSequence is one entry of the static macro table.
type MacroSequence struct {
	Events [MaxMacroEvents]MacroEvent
}

// AdvancedKey is the static configuration of one advanced-key slot: a
// (layer, key) binding plus exactly one populated variant, selected by
// Type.
type AdvancedKey struct {
	Layer int
	Key   int
	Type  Type

	NullBind         NullBind
	DynamicKeystroke DynamicKeystroke
	TapHold          TapHold
	Toggle           Toggle
	Combo            Combo
	Macro            Macro
}
