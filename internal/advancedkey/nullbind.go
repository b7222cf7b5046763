package advancedkey

import (
	"hmkcore/internal/akconfig"
	"hmkcore/internal/keycode"
)

// processNullBind ports src/advanced_keys.c's advanced_key_null_bind: track
// which of the primary/secondary key is logically held, then resolve which
// one (or both) actually get registered per the configured behavior
// (spec.md §4.3 "Null Bind").
func (e *Engine) processNullBind(cfg *akconfig.AdvancedKey, event Event) {
	st := &e.states[event.Index].nullBind
	keys := [2]int{cfg.Key, cfg.NullBind.SecondaryKey}
	index := 0
	if event.Key == keys[1] {
		index = 1
	}
	other := index ^ 1

	switch event.Type {
	case EventPress:
		st.keycodes[index] = event.Keycode
	case EventRelease:
		if st.isPressed[index] {
			e.reg.Unregister(keys[index], st.keycodes[index])
			st.isPressed[index] = false
		}
		st.keycodes[index] = keycode.None
	}

	isPressed := [2]bool{
		st.keycodes[0] != keycode.None,
		st.keycodes[1] != keycode.None,
	}

	if isPressed[0] && isPressed[1] {
		nb := cfg.NullBind
		switch {
		case nb.BottomOutPoint > 0 &&
			e.matrix.Distance(keys[0]) >= nb.BottomOutPoint &&
			e.matrix.Distance(keys[1]) >= nb.BottomOutPoint:
			// Both keys bottomed out past the override point: register both
			// regardless of behavior.
			isPressed[0], isPressed[1] = true, true

		case nb.Behavior == akconfig.NullBindDistance:
			// Compared on every event, not just press. Ties favor the last
			// pressed key (the == case keeps index's current claim).
			isPressed[index] = e.matrix.Distance(keys[index]) >= e.matrix.Distance(keys[other])
			isPressed[other] = !isPressed[index]

		case event.Type == EventPress:
			isPressed[index] = nb.Behavior != akconfig.NullBindNeutral &&
				(nb.Behavior == akconfig.NullBindLast ||
					(nb.Behavior == akconfig.NullBindPrimary && index == 0) ||
					(nb.Behavior == akconfig.NullBindSecondary && index == 1))
			isPressed[other] = nb.Behavior != akconfig.NullBindNeutral && !isPressed[index]

		default:
			// Non-press events under Last/Primary/Secondary/Neutral carry
			// the previous resolution forward unchanged.
			isPressed[0] = st.isPressed[0]
			isPressed[1] = st.isPressed[1]
		}
	}

	for i := 0; i < 2; i++ {
		if isPressed[i] && !st.isPressed[i] {
			e.reg.Register(keys[i], st.keycodes[i])
			st.isPressed[i] = true
		} else if !isPressed[i] && st.isPressed[i] {
			e.reg.Unregister(keys[i], st.keycodes[i])
			st.isPressed[i] = false
		}
	}
}
