// Package advancedkey implements the six advanced-key behaviors — Null
// Bind, Dynamic Keystroke, Tap-Hold, Toggle, Combo (detection lives in
// package combo; this package only holds the Type slot so indices line
// up), and Macro — as one tagged-union state machine per advanced-key
// slot (spec.md §4.3).
//
// Grounded on src/advanced_keys.c of the reference firmware: the Null
// Bind, Dynamic Keystroke, Tap-Hold (simplified), and Toggle state
// machines here port that file's logic key-for-key. Tap-Hold's
// quick_tap_ms/require_prior_idle_ms/double_tap_kc gating and the Macro
// behavior are not present in the reference source and are built from
// spec.md directly, in the same style.
package advancedkey

import (
	"hmkcore/internal/akconfig"
	"hmkcore/internal/deferred"
	"hmkcore/internal/keycode"
	"hmkcore/internal/telemetry"
	"hmkcore/internal/timeutil"
)

// EventType is the kind of key transition being delivered to an advanced
// key. The ordering matches spec.md's DKS phase index convention: phases
// are looked up as (type - Press), so Hold must sort before Press and the
// remaining three must stay in this exact order.
type EventType uint8

const (
	EventHold EventType = iota
	EventPress
	EventBottomOut
	EventReleaseFromBottomOut
	EventRelease
)

// Event is delivered by the layout resolver to the advanced key bound at
// (layer, key) at press/release/hold time.
type Event struct {
	Type    EventType
	Key     int
	Keycode keycode.Code // underlying resolved keycode; only meaningful for Null Bind
	Index   int          // advanced-key slot index
}

// Registrar is the HID/layer mutation surface an advanced key drives.
// layout.Layout implements this.
type Registrar interface {
	Register(key int, kc keycode.Code)
	Unregister(key int, kc keycode.Code)
}

// MatrixReader exposes the one piece of matrix state advanced keys need:
// a key's current normalized travel distance, for Null Bind's Distance
// behavior and Dynamic Keystroke's bottom-out detection.
type MatrixReader interface {
	Distance(key int) uint8
}

// RapidTriggerDisabler lets Dynamic Keystroke force simple-threshold
// actuation on its bound key while the binding is non-released.
type RapidTriggerDisabler interface {
	DisableRapidTrigger(key int, disable bool)
}

// TapHoldStage is a Tap-Hold advanced key's current resolution stage.
type TapHoldStage uint8

const (
	TapHoldNone TapHoldStage = iota
	TapHoldTap
	TapHoldHold
)

type nullBindState struct {
	isPressed [2]bool
	keycodes  [2]keycode.Code
}

type dksState struct {
	isPressed     [4]bool
	isBottomedOut bool
}

type tapHoldState struct {
	since             timeutil.Millis
	stage             TapHoldStage
	interrupted       bool
	otherKeyReleased  bool
	forcedTap         bool // quick_tap_ms/require_prior_idle_ms forced this press to resolve as a tap
	useDoubleTap      bool
	lastReleaseAt     timeutil.Millis
	hasReleasedBefore bool
	lastTapAt         timeutil.Millis
	hasTappedBefore   bool
}

type toggleStage uint8

const (
	toggleNone toggleStage = iota
	toggleToggle
	toggleNormal
)

type toggleState struct {
	since     timeutil.Millis
	stage     toggleStage
	isToggled bool
}

type macroState struct {
	eventIndex int
	delayUntil timeutil.Millis
	isPlaying  bool
}

// akState is the per-slot runtime record: the Go analogue of the
// reference source's advanced_key_state_t union, one field of which is
// live depending on the slot's akconfig.Type.
type akState struct {
	nullBind nullBindState
	dks      dksState
	tapHold  tapHoldState
	toggle   toggleState
	macro    macroState
}

// Engine owns every advanced-key slot's runtime state and dispatches
// events to the matching behavior.
type Engine struct {
	configs []akconfig.AdvancedKey
	states  []akState

	reg    Registrar
	matrix MatrixReader
	rt     RapidTriggerDisabler
	defer_ deferred.Queue
	clock  timeutil.Clock
	log    *telemetry.Logger
	macros MacroTable

	lastNonModifierKeyAt timeutil.Millis
}

// New creates an Engine for numSlots advanced-key slots (spec.md caps this
// at 64). reg and q may be nil at construction and wired later via
// SetRegistrar/SetQueue once their owner (typically the layout resolver
// and the scheduler's deferred queue) exists — those two depend on the
// engine in turn, so something has to break the cycle.
func New(numSlots int, reg Registrar, matrix MatrixReader, rt RapidTriggerDisabler, q deferred.Queue, clock timeutil.Clock, log *telemetry.Logger) *Engine {
	return &Engine{
		configs: make([]akconfig.AdvancedKey, numSlots),
		states:  make([]akState, numSlots),
		reg:     reg,
		matrix:  matrix,
		rt:      rt,
		defer_:  q,
		clock:   clock,
		log:     log,
	}
}

// SetRegistrar wires the HID/layer mutation surface.
func (e *Engine) SetRegistrar(r Registrar) { e.reg = r }

// SetQueue wires the deferred-action queue.
func (e *Engine) SetQueue(q deferred.Queue) { e.defer_ = q }

// SetConfig installs the static configuration for every advanced-key
// slot. Called by the layout loader, which is the sole gateway for
// configuration changes (spec.md §9).
func (e *Engine) SetConfig(configs []akconfig.AdvancedKey) {
	n := copy(e.configs, configs)
	for i := n; i < len(e.configs); i++ {
		e.configs[i] = akconfig.AdvancedKey{}
	}
}

// Config returns the static configuration of slot i.
func (e *Engine) Config(i int) akconfig.AdvancedKey { return e.configs[i] }

// NumSlots returns the number of advanced-key slots the engine was built
// with.
func (e *Engine) NumSlots() int { return len(e.configs) }

// UpdateLastKeyTime records the time of a non-modifier key press, used by
// Tap-Hold's require_prior_idle_ms gating.
func (e *Engine) UpdateLastKeyTime(t timeutil.Millis) {
	e.lastNonModifierKeyAt = t
}

// HasUndecided reports whether any Tap-Hold slot is still in its
// undecided (Tap) stage.
func (e *Engine) HasUndecided() bool {
	for i := range e.configs {
		if e.configs[i].Type == akconfig.TypeTapHold && e.states[i].tapHold.stage == TapHoldTap {
			return true
		}
	}
	return false
}

// IsTapHold reports whether slot i is a Tap-Hold advanced key.
func (e *Engine) IsTapHold(index int) bool {
	return e.configs[index].Type == akconfig.TypeTapHold
}

// Process dispatches one event to the advanced key at event.Index.
func (e *Engine) Process(event Event) {
	if event.Index < 0 || event.Index >= len(e.configs) {
		return
	}
	cfg := &e.configs[event.Index]
	switch cfg.Type {
	case akconfig.TypeNullBind:
		e.processNullBind(cfg, event)
	case akconfig.TypeDynamicKeystroke:
		e.processDynamicKeystroke(cfg, event)
	case akconfig.TypeTapHold:
		e.processTapHold(cfg, event)
	case akconfig.TypeToggle:
		e.processToggle(cfg, event)
	case akconfig.TypeMacro:
		e.processMacro(cfg, event)
	default:
		// Combo and None never reach here: Combo slots are excluded from
		// the layout's advanced-key index table and handled entirely by
		// package combo ahead of the layout resolver.
	}
}

// Tick advances every time-based advanced key (Tap-Hold promotion,
// Toggle's hold-to-cancel, Macro delay/TAP stepping). Called at >= 1kHz
// cadence by the scheduler (spec.md §4.5).
func (e *Engine) Tick(hasNonTapHoldPress, hasNonTapHoldRelease bool) {
	for i := range e.configs {
		cfg := &e.configs[i]
		switch cfg.Type {
		case akconfig.TypeTapHold:
			e.tickTapHold(cfg, &e.states[i].tapHold, hasNonTapHoldPress, hasNonTapHoldRelease)
		case akconfig.TypeToggle:
			e.tickToggle(cfg, &e.states[i].toggle)
		case akconfig.TypeMacro:
			e.tickMacro(cfg, &e.states[i].macro)
		}
	}
}

// Clear releases every currently-held registration across every advanced
// key and zeroes all runtime state. Called on profile switch and keymap
// reload (spec.md §5 "advanced_key_clear() is the universal reset").
func (e *Engine) Clear() {
	for i := range e.configs {
		cfg := &e.configs[i]
		st := &e.states[i]
		switch cfg.Type {
		case akconfig.TypeNullBind:
			keys := [2]int{cfg.Key, cfg.NullBind.SecondaryKey}
			for k := 0; k < 2; k++ {
				if st.nullBind.isPressed[k] {
					e.reg.Unregister(keys[k], st.nullBind.keycodes[k])
				}
			}
		case akconfig.TypeDynamicKeystroke:
			for k := 0; k < 4; k++ {
				if st.dks.isPressed[k] {
					e.reg.Unregister(cfg.Key, cfg.DynamicKeystroke.Keycodes[k])
				}
			}
			if e.rt != nil {
				e.rt.DisableRapidTrigger(cfg.Key, false)
			}
		case akconfig.TypeTapHold:
			if st.tapHold.stage == TapHoldHold {
				e.reg.Unregister(cfg.Key, cfg.TapHold.HoldKeycode)
			}
		case akconfig.TypeToggle:
			if st.toggle.stage != toggleNone || st.toggle.isToggled {
				e.reg.Unregister(cfg.Key, cfg.Toggle.Keycode)
			}
		case akconfig.TypeMacro:
			// Stop playback on clear (spec.md §9 Open Question c). A macro
			// never holds a registration across scans once its last step
			// has been drained, so there is nothing to unregister here.
		}
		*st = akState{}
	}
}
