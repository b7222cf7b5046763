package advancedkey

import (
	"hmkcore/internal/akconfig"
	"hmkcore/internal/deferred"
	"hmkcore/internal/keycode"
)

// processDynamicKeystroke ports src/advanced_keys.c's
// advanced_key_dynamic_keystroke: derive the effective travel phase from
// the incoming event plus the key's bottom-out crossing, then fire
// whichever of the four configured keycodes are bound to that phase
// (spec.md §4.3 "Dynamic Keystroke").
func (e *Engine) processDynamicKeystroke(cfg *akconfig.AdvancedKey, event Event) {
	st := &e.states[event.Index].dks
	dks := cfg.DynamicKeystroke

	isBottomedOut := e.matrix.Distance(event.Key) >= dks.BottomOutPoint
	eventType := event.Type

	switch {
	case isBottomedOut && !st.isBottomedOut:
		eventType = EventBottomOut
	case eventType != EventRelease && !isBottomedOut && st.isBottomedOut:
		// Release always outranks release-from-bottom-out: a genuine key
		// release is never downgraded to a mere "came back up" transition.
		eventType = EventReleaseFromBottomOut
	}
	st.isBottomedOut = isBottomedOut

	if eventType == EventHold {
		return
	}

	if e.rt != nil {
		e.rt.DisableRapidTrigger(event.Key, eventType != EventRelease)
	}

	phase := int(eventType) - int(EventPress)
	for i := 0; i < 4; i++ {
		kc := dks.Keycodes[i]
		if kc == keycode.None {
			continue
		}
		action := dks.Action(i, phase)
		if action == akconfig.DKSHold {
			continue
		}

		if st.isPressed[i] {
			e.reg.Unregister(event.Key, kc)
			st.isPressed[i] = false
		}

		if action == akconfig.DKSPress || action == akconfig.DKSTap {
			actionType := deferred.ActionPress
			if action == akconfig.DKSTap {
				actionType = deferred.ActionTap
			}
			pushed := e.defer_.Push(deferred.Action{Type: actionType, Key: event.Key, Keycode: kc})
			st.isPressed[i] = pushed && action == akconfig.DKSPress
		}
	}
}
