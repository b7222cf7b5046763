package config

import (
	"encoding/binary"
	"fmt"

	"hmkcore/internal/akconfig"
	"hmkcore/internal/keycode"
	"hmkcore/internal/matrix"
)

// Packed layout, little-endian throughout, mirroring the teacher's
// ROMBuilder header+payload assembly (internal/rom/builder.go BuildROM):
// a fixed magic/version/size header followed by fixed-width records.
//
//	offset 0:  magic    uint32  "HMKE" = 0x454B4D48
//	offset 4:  version  uint16
//	offset 6:  size     uint32  total blob length in bytes
//	offset 10: profile  uint16  currentProfile
//	offset 12: reserved [4]byte
//	offset 16: numKeys      uint16
//	offset 18: numLayers    uint16
//	offset 20: numAdvanced  uint16
//	offset 22: numMacros    uint16
//	offset 24: ... keymap, actuation, advanced-key, macro records
const (
	eeconfigMagic   uint32 = 0x454B4D48
	eeconfigVersion uint16 = 1
	headerSize             = 24

	actuationRecordSize   = 4  // point, rtDown, rtUp, flags(continuous)
	advancedKeyRecordSize = 32 // layer, key, type + largest variant payload
	macroEventRecordSize  = 2  // keycode, action
)

// Pack serializes one resolved profile into the packed eeconfig-shaped
// blob the device's persistent store holds (spec.md §6 "Persistent config
// (eeconfig)").
func Pack(r Resolved, currentProfile int) []byte {
	numLayers := len(r.Keymap)
	numKeys := 0
	if numLayers > 0 {
		numKeys = len(r.Keymap[0])
	}
	numAdvanced := len(r.AdvancedKeys)
	numMacros := len(r.Macros)

	keymapSize := numLayers * numKeys
	actuationSize := numKeys * actuationRecordSize
	advancedSize := numAdvanced * advancedKeyRecordSize
	macroSize := numMacros * akconfig.MaxMacroEvents * macroEventRecordSize

	total := headerSize + keymapSize + actuationSize + advancedSize + macroSize
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], eeconfigMagic)
	binary.LittleEndian.PutUint16(buf[4:6], eeconfigVersion)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(total))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(currentProfile))
	binary.LittleEndian.PutUint16(buf[16:18], uint16(numKeys))
	binary.LittleEndian.PutUint16(buf[18:20], uint16(numLayers))
	binary.LittleEndian.PutUint16(buf[20:22], uint16(numAdvanced))
	binary.LittleEndian.PutUint16(buf[22:24], uint16(numMacros))

	off := headerSize
	for _, layer := range r.Keymap {
		for _, kc := range layer {
			buf[off] = uint8(kc)
			off++
		}
	}

	for i := 0; i < numKeys; i++ {
		var a matrix.ActuationConfig
		if i < len(r.Actuation) {
			a = r.Actuation[i]
		}
		buf[off] = a.ActuationPoint
		buf[off+1] = a.RapidTriggerDown
		buf[off+2] = a.RapidTriggerUp
		if a.Continuous {
			buf[off+3] = 1
		}
		off += actuationRecordSize
	}

	for _, ak := range r.AdvancedKeys {
		packAdvancedKey(buf[off:off+advancedKeyRecordSize], ak)
		off += advancedKeyRecordSize
	}

	for _, seq := range r.Macros {
		for _, ev := range seq.Events {
			buf[off] = uint8(ev.Keycode)
			buf[off+1] = uint8(ev.Action)
			off += macroEventRecordSize
		}
	}

	return buf
}

func packAdvancedKey(dst []byte, ak akconfig.AdvancedKey) {
	dst[0] = uint8(ak.Layer)
	dst[1] = uint8(ak.Key)
	dst[2] = uint8(ak.Type)

	payload := dst[3:]
	switch ak.Type {
	case akconfig.TypeNullBind:
		payload[0] = uint8(ak.NullBind.SecondaryKey)
		payload[1] = uint8(ak.NullBind.Behavior)
		payload[2] = ak.NullBind.BottomOutPoint
	case akconfig.TypeDynamicKeystroke:
		for i, kc := range ak.DynamicKeystroke.Keycodes {
			payload[i] = uint8(kc)
		}
		copy(payload[4:8], ak.DynamicKeystroke.Bitmap[:])
		payload[8] = ak.DynamicKeystroke.BottomOutPoint
	case akconfig.TypeTapHold:
		payload[0] = uint8(ak.TapHold.TapKeycode)
		payload[1] = uint8(ak.TapHold.HoldKeycode)
		binary.LittleEndian.PutUint16(payload[2:4], ak.TapHold.TappingTermMs)
		payload[4] = uint8(ak.TapHold.Flavor)
		if ak.TapHold.RetroTapping {
			payload[5] |= 1
		}
		if ak.TapHold.HoldWhileUndecided {
			payload[5] |= 2
		}
		binary.LittleEndian.PutUint16(payload[6:8], ak.TapHold.QuickTapMs)
		binary.LittleEndian.PutUint16(payload[8:10], ak.TapHold.RequirePriorIdleMs)
		payload[10] = uint8(ak.TapHold.DoubleTapKeycode)
	case akconfig.TypeToggle:
		payload[0] = uint8(ak.Toggle.Keycode)
		binary.LittleEndian.PutUint16(payload[1:3], ak.Toggle.TappingTermMs)
	case akconfig.TypeCombo:
		for i, k := range ak.Combo.Keys {
			payload[i] = uint8(k)
		}
		payload[4] = uint8(ak.Combo.OutputKeycode)
		binary.LittleEndian.PutUint16(payload[5:7], ak.Combo.TermMs)
	case akconfig.TypeMacro:
		binary.LittleEndian.PutUint16(payload[0:2], uint16(ak.Macro.Index))
	}
}

// Unpack parses a packed eeconfig blob back into a Resolved profile, the
// inverse of Pack. Returns an error if the magic or version don't match —
// eeconfig treats this as "uninitialized storage" and the caller should
// fall back to defaults (spec.md §7 "malformed config: degrade, don't
// crash").
func Unpack(buf []byte) (Resolved, int, error) {
	if len(buf) < headerSize {
		return Resolved{}, 0, fmt.Errorf("config: blob too short for header")
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != eeconfigMagic {
		return Resolved{}, 0, fmt.Errorf("config: bad magic %#x", magic)
	}
	version := binary.LittleEndian.Uint16(buf[4:6])
	if version != eeconfigVersion {
		return Resolved{}, 0, fmt.Errorf("config: unsupported version %d", version)
	}
	size := binary.LittleEndian.Uint32(buf[6:10])
	if int(size) > len(buf) {
		return Resolved{}, 0, fmt.Errorf("config: truncated blob, want %d have %d", size, len(buf))
	}
	currentProfile := int(binary.LittleEndian.Uint16(buf[10:12]))
	numKeys := int(binary.LittleEndian.Uint16(buf[16:18]))
	numLayers := int(binary.LittleEndian.Uint16(buf[18:20]))
	numAdvanced := int(binary.LittleEndian.Uint16(buf[20:22]))
	numMacros := int(binary.LittleEndian.Uint16(buf[22:24]))

	var r Resolved
	off := headerSize

	r.Keymap = make([][]keycode.Code, numLayers)
	for l := 0; l < numLayers; l++ {
		r.Keymap[l] = make([]keycode.Code, numKeys)
		for k := 0; k < numKeys; k++ {
			r.Keymap[l][k] = keycode.Code(buf[off])
			off++
		}
	}

	r.Actuation = make([]matrix.ActuationConfig, numKeys)
	for i := 0; i < numKeys; i++ {
		r.Actuation[i] = matrix.ActuationConfig{
			ActuationPoint:   buf[off],
			RapidTriggerDown: buf[off+1],
			RapidTriggerUp:   buf[off+2],
			Continuous:       buf[off+3] != 0,
		}
		off += actuationRecordSize
	}

	r.AdvancedKeys = make([]akconfig.AdvancedKey, numAdvanced)
	for i := 0; i < numAdvanced; i++ {
		r.AdvancedKeys[i] = unpackAdvancedKey(buf[off : off+advancedKeyRecordSize])
		off += advancedKeyRecordSize
	}

	r.Macros = make([]akconfig.MacroSequence, numMacros)
	for i := 0; i < numMacros; i++ {
		for j := 0; j < akconfig.MaxMacroEvents; j++ {
			r.Macros[i].Events[j] = akconfig.MacroEvent{
				Keycode: keycode.Code(buf[off]),
				Action:  akconfig.MacroActionType(buf[off+1]),
			}
			off += macroEventRecordSize
		}
	}

	return r, currentProfile, nil
}

func unpackAdvancedKey(src []byte) akconfig.AdvancedKey {
	ak := akconfig.AdvancedKey{
		Layer: int(src[0]),
		Key:   int(src[1]),
		Type:  akconfig.Type(src[2]),
	}
	payload := src[3:]
	switch ak.Type {
	case akconfig.TypeNullBind:
		ak.NullBind = akconfig.NullBind{
			SecondaryKey:   int(payload[0]),
			Behavior:       akconfig.NullBindBehavior(payload[1]),
			BottomOutPoint: payload[2],
		}
	case akconfig.TypeDynamicKeystroke:
		for i := range ak.DynamicKeystroke.Keycodes {
			ak.DynamicKeystroke.Keycodes[i] = keycode.Code(payload[i])
		}
		copy(ak.DynamicKeystroke.Bitmap[:], payload[4:8])
		ak.DynamicKeystroke.BottomOutPoint = payload[8]
	case akconfig.TypeTapHold:
		ak.TapHold = akconfig.TapHold{
			TapKeycode:         keycode.Code(payload[0]),
			HoldKeycode:        keycode.Code(payload[1]),
			TappingTermMs:      binary.LittleEndian.Uint16(payload[2:4]),
			Flavor:             akconfig.TapHoldFlavor(payload[4]),
			RetroTapping:       payload[5]&1 != 0,
			HoldWhileUndecided: payload[5]&2 != 0,
			QuickTapMs:         binary.LittleEndian.Uint16(payload[6:8]),
			RequirePriorIdleMs: binary.LittleEndian.Uint16(payload[8:10]),
			DoubleTapKeycode:   keycode.Code(payload[10]),
		}
	case akconfig.TypeToggle:
		ak.Toggle = akconfig.Toggle{
			Keycode:       keycode.Code(payload[0]),
			TappingTermMs: binary.LittleEndian.Uint16(payload[1:3]),
		}
	case akconfig.TypeCombo:
		for i := range ak.Combo.Keys {
			ak.Combo.Keys[i] = int(payload[i])
		}
		ak.Combo.OutputKeycode = keycode.Code(payload[4])
		ak.Combo.TermMs = binary.LittleEndian.Uint16(payload[5:7])
	case akconfig.TypeMacro:
		ak.Macro.Index = int(binary.LittleEndian.Uint16(payload[0:2]))
	}
	return ak
}
