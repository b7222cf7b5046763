package advancedkey

import (
	"hmkcore/internal/akconfig"
	"hmkcore/internal/timeutil"
)

// processToggle implements Toggle's hold-to-cancel behavior (spec.md §4.3
// "Toggle"): a press while already toggled on immediately cancels it; a
// fresh press registers and starts a pending window. Releasing within the
// tapping term commits the key as toggled on (held until the next press);
// tickToggle cancels the window once the term elapses, downgrading the
// key to an ordinary hold that releases normally.
func (e *Engine) processToggle(cfg *akconfig.AdvancedKey, event Event) {
	st := &e.states[event.Index].toggle

	switch event.Type {
	case EventPress:
		if st.isToggled {
			e.reg.Unregister(cfg.Key, cfg.Toggle.Keycode)
			st.isToggled = false
			st.stage = toggleNone
			return
		}
		e.reg.Register(cfg.Key, cfg.Toggle.Keycode)
		st.since = e.clock.Now()
		st.stage = toggleToggle

	case EventRelease:
		switch st.stage {
		case toggleToggle:
			st.isToggled = true
			st.stage = toggleNone
		case toggleNormal:
			e.reg.Unregister(cfg.Key, cfg.Toggle.Keycode)
			st.stage = toggleNone
		}
	}
}

// tickToggle cancels a pending toggle-on once its tapping term elapses
// without a release, downgrading it to an ordinary held key.
func (e *Engine) tickToggle(cfg *akconfig.AdvancedKey, st *toggleState) {
	if st.stage != toggleToggle {
		return
	}
	if timeutil.Elapsed(e.clock.Now(), st.since) < timeutil.Millis(cfg.Toggle.TappingTermMs) {
		return
	}
	st.stage = toggleNormal
}
