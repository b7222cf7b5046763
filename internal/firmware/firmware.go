// Package firmware wires the matrix, layout resolver, advanced-key engine,
// combo detector, and event scheduler into one runnable device, and
// implements the handful of cross-cutting surfaces (profile switching,
// bootloader entry, macro table lookup) those packages call back into.
//
// Grounded on the teacher's internal/emulator package: NewEmulatorWithLogger
// builds every component then wires them together post-construction via
// fields like bus.PPUHandler = ppu; Firmware follows the same shape,
// substituting the input-processing pipeline for the CPU/PPU/APU bus.
package firmware

import (
	"fmt"

	"hmkcore/internal/advancedkey"
	"hmkcore/internal/akconfig"
	"hmkcore/internal/combo"
	"hmkcore/internal/config"
	"hmkcore/internal/keycode"
	"hmkcore/internal/layout"
	"hmkcore/internal/matrix"
	"hmkcore/internal/scheduler"
	"hmkcore/internal/telemetry"
	"hmkcore/internal/timeutil"
)

// maxProfiles bounds the number of stored profiles (spec.md §6 "profiles[1..8]").
const maxProfiles = 8

// HIDReporter is the USB HID surface a plain keycode registration mutates.
// Satisfied by the host-side HID transport; outside this package's scope
// beyond the interface it must implement (spec.md Non-goals "USB stack").
type HIDReporter interface {
	KeycodeAdd(kc keycode.Code)
	KeycodeRemove(kc keycode.Code)
}

// Bootloader is the device-specific bootloader entry hook for SP_BOOT.
type Bootloader interface {
	EnterBootloader()
}

// profileState is one loaded profile's runtime data: its keymap,
// per-key actuation configuration, advanced-key table, and macro table.
type profileState struct {
	keymap       [][]keycode.Code
	actuation    []matrix.ActuationConfig
	advancedKeys []akconfig.AdvancedKey
	macros       []akconfig.MacroSequence
}

// Firmware owns every profile and the live pipeline (matrix -> scheduler)
// operating on whichever one is current. It implements layout.ProfileSwitcher,
// layout.Booter, and advancedkey.MacroTable so those packages can call back
// into profile-switch, bootloader, and macro-table lookups without
// depending on this package directly.
type Firmware struct {
	numKeys   int
	numLayers int

	profiles       [maxProfiles]profileState
	currentProfile int
	lastNonDefault int

	mat    *matrix.Matrix
	lay    *layout.Layout
	cmb    *combo.Detector
	engine *advancedkey.Engine
	defQ   *scheduler.DeferredQueue
	sched  *scheduler.Scheduler

	clock timeutil.Clock
	log   *telemetry.Logger
	boot  Bootloader
}

// New builds a Firmware for a device with numKeys physical keys and
// numLayers keymap layers, sampling analog travel via analog and rendering
// a normalized distance via curve. hid receives HID report mutations; boot
// may be nil if the device has no bootloader-entry hook.
func New(numKeys, numLayers int, analog matrix.AnalogSource, curve matrix.DistanceCurve, hid HIDReporter, boot Bootloader, clock timeutil.Clock, log *telemetry.Logger) *Firmware {
	fw := &Firmware{
		numKeys:   numKeys,
		numLayers: numLayers,
		clock:     clock,
		log:       log,
		boot:      boot,
	}

	fw.mat = matrix.New(numKeys, analog, curve, clock, matrixEMAShift)
	fw.engine = advancedkey.New(maxAdvancedKeySlots(numKeys), nil, fw.mat, fw.mat, nil, clock, log)
	fw.lay = layout.New(numLayers, numKeys, fw.engine, hid)
	fw.defQ = scheduler.NewDeferredQueue(fw.lay)

	fw.engine.SetRegistrar(fw.lay)
	fw.engine.SetQueue(fw.defQ)
	fw.engine.SetMacros(fw)

	fw.cmb = combo.New(numKeys, fw.lay, fw.lay, fw.lay, fw.defQ, clock)
	fw.sched = scheduler.New(fw.mat, fw.lay, fw.cmb, fw.engine, fw.defQ, clock, log)

	fw.lay.SetProfileSwitcher(fw)
	fw.lay.SetBooter(fw)

	return fw
}

// matrixEMAShift is the EMA filter's alpha exponent, matching the
// reference firmware's MATRIX_EMA_ALPHA_EXPONENT (spec.md §4.1).
const matrixEMAShift = 2

// maxAdvancedKeySlots bounds the advanced-key table at the reference
// firmware's 64-slot cap, but never fewer than one per physical key
// (spec.md §3 "AdvancedKey table <= 64 entries").
func maxAdvancedKeySlots(numKeys int) int {
	if numKeys > 64 {
		return numKeys
	}
	return 64
}

// LoadProfile installs a resolved profile's keymap, actuation, advanced-key
// table, and macro table into slot index (0-based, < maxProfiles).
func (fw *Firmware) LoadProfile(index int, r config.Resolved) error {
	if index < 0 || index >= maxProfiles {
		return fmt.Errorf("firmware: profile index %d out of range", index)
	}
	fw.profiles[index] = profileState{
		keymap:       r.Keymap,
		actuation:    r.Actuation,
		advancedKeys: r.AdvancedKeys,
		macros:       r.Macros,
	}
	return nil
}

// activateProfile installs profile index's configuration into the live
// pipeline: keymap, actuation, and advanced keys all change together, and
// every advanced key's runtime state is cleared (spec.md §5 "profile
// switch clears every advanced key").
func (fw *Firmware) activateProfile(index int) {
	p := &fw.profiles[index]

	fw.engine.Clear()

	fw.lay.SetKeymap(p.keymap)
	for i, cfg := range p.actuation {
		fw.mat.SetActuationConfig(i, cfg)
	}
	fw.lay.LoadAdvancedKeys(p.advancedKeys, func(configs []akconfig.AdvancedKey) {
		fw.cmb.SetConfig(configs)
	})

	fw.log.Record(telemetry.ComponentConfig, telemetry.LevelInfo, "activated profile %d", index)
}

// Start activates the given profile index as the one live at boot,
// mirroring eeconfig's persisted currentProfile field. Call once after
// every profile has been loaded via LoadProfile.
func (fw *Firmware) Start(bootProfile int) {
	if bootProfile < 0 || bootProfile >= maxProfiles {
		bootProfile = 0
	}
	fw.currentProfile = bootProfile
	fw.activateProfile(bootProfile)
}

// SetProfile switches to profile, returning whether the switch took effect
// (an out-of-range index is rejected, matching eeconfig's tolerant-of-
// garbage-index behavior). Satisfies layout.ProfileSwitcher.
func (fw *Firmware) SetProfile(profile int) bool {
	if profile < 0 || profile >= maxProfiles {
		return false
	}
	if profile == fw.currentProfile {
		return true
	}
	if fw.currentProfile != 0 {
		fw.lastNonDefault = fw.currentProfile
	}
	fw.currentProfile = profile
	fw.activateProfile(profile)
	return true
}

// CurrentProfile returns the active profile index. Satisfies
// layout.ProfileSwitcher.
func (fw *Firmware) CurrentProfile() int { return fw.currentProfile }

// LastNonDefaultProfile returns the most recent non-zero profile index
// selected, used by SP_PROFILE_SWAP to toggle back. Satisfies
// layout.ProfileSwitcher.
func (fw *Firmware) LastNonDefaultProfile() int {
	if fw.lastNonDefault == 0 && fw.currentProfile != 0 {
		return fw.currentProfile
	}
	return fw.lastNonDefault
}

// NumProfiles returns the number of storable profiles. Satisfies
// layout.ProfileSwitcher.
func (fw *Firmware) NumProfiles() int { return maxProfiles }

// EnterBootloader delegates to the device-specific bootloader hook, if
// one was supplied. Satisfies layout.Booter.
func (fw *Firmware) EnterBootloader() {
	if fw.boot != nil {
		fw.boot.EnterBootloader()
	}
}

// Macro returns the macro sequence at index within the current profile's
// macro table. Satisfies advancedkey.MacroTable.
func (fw *Firmware) Macro(index int) akconfig.MacroSequence {
	p := &fw.profiles[fw.currentProfile]
	if index < 0 || index >= len(p.macros) {
		return akconfig.MacroSequence{}
	}
	return p.macros[index]
}

// Task runs one full scan cycle. Returns whether any HID-visible state
// changed, the signal the caller uses to decide whether to submit a HID
// report this cycle (spec.md §4.5).
func (fw *Firmware) Task() bool {
	return fw.sched.Task()
}

// Save packs the current profile's configuration into the persisted
// eeconfig-shaped blob (spec.md §6).
func (fw *Firmware) Save() []byte {
	p := &fw.profiles[fw.currentProfile]
	r := config.Resolved{
		Keymap:       p.keymap,
		Actuation:    p.actuation,
		AdvancedKeys: p.advancedKeys,
		Macros:       p.macros,
	}
	return config.Pack(r, fw.currentProfile)
}
