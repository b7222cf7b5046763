// Package keycode classifies the firmware's 8-bit range-overloaded keycode
// space: plain HID keycodes plus the momentary-layer, profile-select, and
// special-function ranges layered on top of it (spec.md §6).
package keycode

// Code is an 8-bit keycode. Its meaning depends on which range it falls in.
type Code uint8

// KC_NO and KC_TRANSPARENT are reserved low values, matching the HID
// keycode table's own "no key" slot at 0x00 and a dedicated transparent
// marker at 0x01, below the first HID usage code (0x04).
const (
	None        Code = 0x00
	Transparent Code = 0x01
)

// Range boundaries. HID keycodes occupy the bulk of the low range plus the
// HID modifier block (0xE0-0xE7); the momentary-layer and profile ranges
// are reserved blocks between them, and the special constants sit in the
// top of the byte.
const (
	hidLow  = 0x04
	hidHigh = 0x9F

	hidModifierLow  = 0xE0
	hidModifierHigh = 0xE7

	momentaryLayerLow  = 0xA0 // MO(0)..MO(7)
	momentaryLayerHigh = 0xA7

	profileLow  = 0xA8 // PF(0)..PF(7)
	profileHigh = 0xAF

	KeyLock     Code = 0xF0
	LayerLock   Code = 0xF1
	ProfileSwap Code = 0xF2
	ProfileNext Code = 0xF3
	Boot        Code = 0xFE
)

// IsHID reports whether c is a plain HID usage code.
func IsHID(c Code) bool {
	return (c >= hidLow && c <= hidHigh) || (c >= hidModifierLow && c <= hidModifierHigh)
}

// IsMomentaryLayer reports whether c selects a momentary layer (MO(n)).
func IsMomentaryLayer(c Code) bool { return c >= momentaryLayerLow && c <= momentaryLayerHigh }

// MomentaryLayer extracts the layer index n from an MO(n) keycode. Only
// valid when IsMomentaryLayer(c) is true.
func MomentaryLayer(c Code) uint8 { return uint8(c - momentaryLayerLow) }

// MO encodes a momentary-layer keycode for layer n (0..7).
func MO(layer uint8) Code { return Code(momentaryLayerLow + layer) }

// IsProfileSelect reports whether c directly selects a profile (PF(n)).
func IsProfileSelect(c Code) bool { return c >= profileLow && c <= profileHigh }

// ProfileIndex extracts the profile index from a PF(n) keycode.
func ProfileIndex(c Code) uint8 { return uint8(c - profileLow) }

// PF encodes a profile-select keycode for profile n (0..7).
func PF(profile uint8) Code { return Code(profileLow + profile) }
