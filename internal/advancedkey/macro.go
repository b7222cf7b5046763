package advancedkey

import (
	"hmkcore/internal/akconfig"
	"hmkcore/internal/deferred"
	"hmkcore/internal/timeutil"
)

// MacroTable supplies the static event sequence a Macro advanced key plays
// back, indexed by akconfig.Macro.Index. The firmware package owns the
// table; the engine only reads from it.
type MacroTable interface {
	Macro(index int) akconfig.MacroSequence
}

// SetMacros installs the macro table. Not wired through New so it can be
// reloaded independently of advanced-key configuration (spec.md §4.3
// "macro table").
func (e *Engine) SetMacros(table MacroTable) {
	e.macros = table
}

// processMacro starts (or restarts) playback on press. Macro behaves like
// a Toggle in that playback runs to completion independent of how long the
// key is held; releasing the key does not interrupt it (spec.md §4.3
// "Macro").
func (e *Engine) processMacro(cfg *akconfig.AdvancedKey, event Event) {
	if event.Type != EventPress {
		return
	}
	st := &e.states[event.Index].macro
	st.eventIndex = 0
	st.isPlaying = true
	st.delayUntil = 0
}

// tickMacro steps a playing macro forward by at most one event per tick,
// handing TAP to the deferred queue (which expands it into a press and,
// one drain later, a release) and turning DELAY into a pause measured in
// 10ms units (spec.md §4.3 "Macro playback").
func (e *Engine) tickMacro(cfg *akconfig.AdvancedKey, st *macroState) {
	if !st.isPlaying || e.macros == nil {
		return
	}
	now := e.clock.Now()
	if st.delayUntil != 0 && int32(now-st.delayUntil) < 0 {
		return
	}
	st.delayUntil = 0

	seq := e.macros.Macro(cfg.Macro.Index)
	if st.eventIndex < 0 || st.eventIndex >= len(seq.Events) {
		st.isPlaying = false
		return
	}
	ev := seq.Events[st.eventIndex]

	switch ev.Action {
	case akconfig.MacroEnd:
		st.isPlaying = false
		return

	case akconfig.MacroTap:
		e.defer_.Push(deferred.Action{Type: deferred.ActionTap, Key: cfg.Key, Keycode: ev.Keycode})

	case akconfig.MacroPress:
		e.defer_.Push(deferred.Action{Type: deferred.ActionPress, Key: cfg.Key, Keycode: ev.Keycode})

	case akconfig.MacroRelease:
		e.defer_.Push(deferred.Action{Type: deferred.ActionRelease, Key: cfg.Key, Keycode: ev.Keycode})

	case akconfig.MacroDelay:
		st.delayUntil = now + timeutil.Millis(ev.Keycode)*10
	}

	st.eventIndex++
}
