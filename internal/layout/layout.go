// Package layout resolves physical key events into HID/layer/profile
// effects through a layered keymap, and dispatches keys bound to an
// advanced key into the advancedkey engine instead (spec.md §4.2 "Layout
// Resolver").
//
// Grounded on src/layout.c: layout_get_current_layer, layout_get_keycode's
// transparent fall-through search, layout_process_key's active-keycode
// bookkeeping, and layout_register/layout_unregister's keycode-range
// dispatch.
package layout

import (
	"hmkcore/internal/advancedkey"
	"hmkcore/internal/akconfig"
	"hmkcore/internal/keycode"
)

// HIDReporter is the USB HID report surface a plain keycode registration
// mutates. Populating and transmitting the actual report is outside this
// package's scope (spec.md Non-goals).
type HIDReporter interface {
	KeycodeAdd(kc keycode.Code)
	KeycodeRemove(kc keycode.Code)
}

// ProfileSwitcher lets SP_PROFILE_SWAP/SP_PROFILE_NEXT/profile-select PF(n)
// keycodes change the active profile. Implemented by the firmware package.
type ProfileSwitcher interface {
	SetProfile(profile int) bool
	CurrentProfile() int
	LastNonDefaultProfile() int
	NumProfiles() int
}

// Booter enters the bootloader on SP_BOOT. Outside this package's scope
// beyond the call site (spec.md Non-goals "device bring-up").
type Booter interface {
	EnterBootloader()
}

// Layout owns the layer mask, the per-layer keymap, and the bookkeeping
// needed to release exactly what was registered regardless of subsequent
// layer or profile changes.
type Layout struct {
	numLayers int
	numKeys   int

	keymap    [][]keycode.Code // [layer][key]
	layerMask uint16
	defaultLayer uint8

	advancedKeyIndices [][]int // [layer][key], 0 = none, else index+1
	activeKeycodes     []keycode.Code
	activeAdvancedKeys []int

	keyDisabled []bool // SP_KEY_LOCK; only layer 0 is meaningful

	engine   *advancedkey.Engine
	hid      HIDReporter
	profiles ProfileSwitcher
	boot     Booter

	shouldSendReports bool
}

// New creates a Layout for a keymap of numLayers layers over numKeys
// physical keys. profiles and boot may be wired later via
// SetProfileSwitcher/SetBooter once their owner exists, since the
// firmware package's top-level type is itself usually the ProfileSwitcher
// (mirrors the teacher's post-construction `bus.PPUHandler = ppu` wiring).
func New(numLayers, numKeys int, engine *advancedkey.Engine, hid HIDReporter) *Layout {
	keymap := make([][]keycode.Code, numLayers)
	indices := make([][]int, numLayers)
	for i := range keymap {
		keymap[i] = make([]keycode.Code, numKeys)
		indices[i] = make([]int, numKeys)
	}
	return &Layout{
		numLayers:          numLayers,
		numKeys:            numKeys,
		keymap:             keymap,
		advancedKeyIndices: indices,
		activeKeycodes:     make([]keycode.Code, numKeys),
		activeAdvancedKeys: make([]int, numKeys),
		keyDisabled:        make([]bool, numKeys),
		engine:             engine,
		hid:                hid,
	}
}

// SetProfileSwitcher wires the profile-change handler used by SP_PROFILE_*
// keycodes.
func (l *Layout) SetProfileSwitcher(p ProfileSwitcher) { l.profiles = p }

// SetBooter wires the SP_BOOT handler.
func (l *Layout) SetBooter(b Booter) { l.boot = b }

// SetKeymap installs a fully populated [layer][key] keycode table.
func (l *Layout) SetKeymap(keymap [][]keycode.Code) {
	for i := range keymap {
		copy(l.keymap[i], keymap[i])
	}
}

// LoadAdvancedKeys rebuilds the per-layer (layer, key) -> advanced-key-slot
// index table from the given configuration and installs it into the
// advanced-key engine. This is the sole gateway for advanced-key
// configuration changes: profile switch, keymap reload, and live config
// edits must all route through here so the combo detector's bitmap cache
// is correctly invalidated alongside it (spec.md §9 "config reload
// invariant").
func (l *Layout) LoadAdvancedKeys(configs []akconfig.AdvancedKey, onReload func([]akconfig.AdvancedKey)) {
	for layer := range l.advancedKeyIndices {
		for key := range l.advancedKeyIndices[layer] {
			l.advancedKeyIndices[layer][key] = 0
		}
	}
	for i := range configs {
		ak := &configs[i]
		if ak.Type == akconfig.TypeNone || ak.Type == akconfig.TypeCombo {
			continue
		}
		if ak.Layer < 0 || ak.Layer >= l.numLayers || ak.Key < 0 || ak.Key >= l.numKeys {
			continue
		}
		l.advancedKeyIndices[ak.Layer][ak.Key] = i + 1
		if ak.Type == akconfig.TypeNullBind && ak.NullBind.SecondaryKey >= 0 && ak.NullBind.SecondaryKey < l.numKeys {
			l.advancedKeyIndices[ak.Layer][ak.NullBind.SecondaryKey] = i + 1
		}
	}
	l.engine.SetConfig(configs)
	if onReload != nil {
		onReload(configs)
	}
}

// CurrentLayer returns the highest active bit in the layer mask, or the
// default layer if none are active. Satisfies combo.LayerSource.
func (l *Layout) CurrentLayer() int {
	if l.layerMask == 0 {
		return int(l.defaultLayer)
	}
	for i := 15; i >= 0; i-- {
		if l.layerMask&(1<<uint(i)) != 0 {
			return i
		}
	}
	return int(l.defaultLayer)
}

func (l *Layout) layerOn(layer uint8)  { l.layerMask |= 1 << layer }
func (l *Layout) layerOff(layer uint8) { l.layerMask &^= 1 << layer }

func (l *Layout) layerLock() {
	current := uint8(l.CurrentLayer())
	if current == l.defaultLayer {
		l.defaultLayer = 0
	} else {
		l.defaultLayer = current
	}
}

// GetKeycode resolves key's keycode on currentLayer, searching downward
// through active layers for the first non-transparent binding before
// falling back to the default layer.
func (l *Layout) GetKeycode(currentLayer, key int) keycode.Code {
	for i := currentLayer; i >= 0; i-- {
		if l.layerMask&(1<<uint(i)) == 0 {
			continue
		}
		kc := l.keymap[i][key]
		if kc != keycode.Transparent {
			return kc
		}
	}
	return l.keymap[l.defaultLayer][key]
}

// ProcessKey resolves one press/release edge of a physical key, either
// driving the advanced-key engine or registering/unregistering a plain
// keycode directly. It returns whether this was a non-Tap-Hold event: true
// for any non-None plain keycode (HID, layer, profile or special alike) and
// for any advanced key other than a Tap-Hold, whether or not it changed
// the HID report — the signal the scheduler uses to decide Tap-Hold
// promotion and pending-event replay (spec.md §4.3 "Promotion to Hold",
// condition 2 and 3).
func (l *Layout) ProcessKey(key int, pressed bool) bool {
	currentLayer := l.CurrentLayer()

	if pressed {
		kc := l.GetKeycode(currentLayer, key)
		akIndex := l.advancedKeyIndices[currentLayer][key]

		if akIndex != 0 {
			l.activeAdvancedKeys[key] = akIndex
			isTapHold := l.engine.IsTapHold(akIndex - 1)
			l.engine.Process(advancedkey.Event{
				Type:    advancedkey.EventPress,
				Key:     key,
				Keycode: kc,
				Index:   akIndex - 1,
			})
			return !isTapHold
		}

		l.activeKeycodes[key] = kc
		l.Register(key, kc)
		return kc != keycode.None
	}

	kc := l.activeKeycodes[key]
	akIndex := l.activeAdvancedKeys[key]

	if akIndex != 0 {
		l.activeAdvancedKeys[key] = 0
		isTapHold := l.engine.IsTapHold(akIndex - 1)
		l.engine.Process(advancedkey.Event{
			Type:    advancedkey.EventRelease,
			Key:     key,
			Keycode: kc,
			Index:   akIndex - 1,
		})
		return !isTapHold
	}

	l.activeKeycodes[key] = keycode.None
	l.Unregister(key, kc)
	return kc != keycode.None
}

// IsTapHoldKey reports whether the advanced key currently bound to key on
// the active layer is a Tap-Hold. The scheduler uses this to exempt
// Tap-Hold presses from the undecided-Tap-Hold pending buffer — buffering
// a Tap-Hold's own press against itself would deadlock its decision.
func (l *Layout) IsTapHoldKey(key int) bool {
	akIndex := l.advancedKeyIndices[l.CurrentLayer()][key]
	if akIndex == 0 {
		return false
	}
	return l.engine.IsTapHold(akIndex - 1)
}

// ProcessHold delivers a hold tick to the advanced key bound at key, if
// any. Called for keys whose pressed state hasn't changed this scan.
func (l *Layout) ProcessHold(key int) {
	akIndex := l.activeAdvancedKeys[key]
	if akIndex == 0 {
		return
	}
	l.engine.Process(advancedkey.Event{
		Type:    advancedkey.EventHold,
		Key:     key,
		Keycode: l.activeKeycodes[key],
		Index:   akIndex - 1,
	})
}

// Register applies a keycode's press-time effect. Satisfies
// advancedkey.Registrar and combo.Registrar.
func (l *Layout) Register(key int, kc keycode.Code) {
	if kc == keycode.None {
		return
	}
	switch {
	case keycode.IsHID(kc):
		l.hid.KeycodeAdd(kc)
		l.shouldSendReports = true
	case keycode.IsMomentaryLayer(kc):
		l.layerOn(keycode.MomentaryLayer(kc))
	case keycode.IsProfileSelect(kc):
		l.profiles.SetProfile(int(keycode.ProfileIndex(kc)))
	case kc == keycode.KeyLock:
		l.keyDisabled[key] = !l.keyDisabled[key]
	case kc == keycode.LayerLock:
		l.layerLock()
	case kc == keycode.ProfileSwap:
		if l.profiles.CurrentProfile() != 0 {
			l.profiles.SetProfile(0)
		} else {
			l.profiles.SetProfile(l.profiles.LastNonDefaultProfile())
		}
	case kc == keycode.ProfileNext:
		l.profiles.SetProfile((l.profiles.CurrentProfile() + 1) % l.profiles.NumProfiles())
	case kc == keycode.Boot:
		if l.boot != nil {
			l.boot.EnterBootloader()
		}
	}
}

// Unregister releases a keycode's press-time effect. Satisfies
// advancedkey.Registrar and combo.Registrar.
func (l *Layout) Unregister(key int, kc keycode.Code) {
	if kc == keycode.None {
		return
	}
	switch {
	case keycode.IsHID(kc):
		l.hid.KeycodeRemove(kc)
		l.shouldSendReports = true
	case keycode.IsMomentaryLayer(kc):
		l.layerOff(keycode.MomentaryLayer(kc))
	}
}

// TakeShouldSendReports reports and clears whether a HID-visible change
// happened since the last call.
func (l *Layout) TakeShouldSendReports() bool {
	v := l.shouldSendReports
	l.shouldSendReports = false
	return v
}

// IsKeyDisabled reports whether key is locked off via SP_KEY_LOCK. Only
// meaningful on layer 0 (spec.md §4.2 "Key Lock").
func (l *Layout) IsKeyDisabled(key int) bool {
	return l.keyDisabled[key]
}
