package advancedkey

import (
	"hmkcore/internal/akconfig"
	"hmkcore/internal/deferred"
	"hmkcore/internal/keycode"
	"hmkcore/internal/timeutil"
)

// processTapHold handles the press/release edges of a Tap-Hold advanced
// key (spec.md §4.3 "Tap-Hold"). Promotion from the undecided Tap stage to
// Hold happens in tickTapHold; this method only seeds a fresh press's
// gating flags and resolves the output on release.
func (e *Engine) processTapHold(cfg *akconfig.AdvancedKey, event Event) {
	st := &e.states[event.Index].tapHold
	th := cfg.TapHold

	switch event.Type {
	case EventPress:
		now := e.clock.Now()

		forced := false
		if th.QuickTapMs > 0 && st.hasReleasedBefore &&
			timeutil.Elapsed(now, st.lastReleaseAt) < timeutil.Millis(th.QuickTapMs) {
			forced = true
		}
		if th.RequirePriorIdleMs > 0 &&
			timeutil.Elapsed(now, e.lastNonModifierKeyAt) < timeutil.Millis(th.RequirePriorIdleMs) {
			forced = true
		}

		useDoubleTap := false
		if th.DoubleTapKeycode != keycode.None && st.hasTappedBefore {
			window := th.QuickTapMs
			if window == 0 {
				window = th.TappingTermMs
			}
			if timeutil.Elapsed(now, st.lastTapAt) < timeutil.Millis(window) {
				useDoubleTap = true
			}
		}

		st.since = now
		st.stage = TapHoldTap
		st.interrupted = false
		st.otherKeyReleased = false
		st.forcedTap = forced
		st.useDoubleTap = useDoubleTap

	case EventRelease:
		switch st.stage {
		case TapHoldTap:
			e.resolveTapHoldTap(cfg, st)
		case TapHoldHold:
			e.reg.Unregister(cfg.Key, th.HoldKeycode)
		}
		st.stage = TapHoldNone
		st.lastReleaseAt = e.clock.Now()
		st.hasReleasedBefore = true
	}
}

// resolveTapHoldTap emits the tap (or double-tap) keycode for a Tap-Hold
// key released while still undecided, deferred so it lands atomically in
// the next report cycle (spec.md §4.3, §4.6).
func (e *Engine) resolveTapHoldTap(cfg *akconfig.AdvancedKey, st *tapHoldState) {
	th := cfg.TapHold
	now := e.clock.Now()

	pastTerm := timeutil.Elapsed(now, st.since) >= timeutil.Millis(th.TappingTermMs)
	if !th.RetroTapping && !st.forcedTap && pastTerm && !st.interrupted {
		// Held past the tapping term with no interruption and no quick-tap
		// override: without retro tapping, this resolves to neither tap
		// nor hold.
		return
	}

	tapKc := th.TapKeycode
	if st.useDoubleTap {
		tapKc = th.DoubleTapKeycode
	}

	if !e.defer_.Push(deferred.Action{Type: deferred.ActionRelease, Key: cfg.Key, Keycode: tapKc}) {
		return
	}
	e.reg.Register(cfg.Key, tapKc)
	st.lastTapAt = now
	st.hasTappedBefore = true
}

// tickTapHold promotes an undecided Tap-Hold key to Hold per its flavor
// (spec.md §4.3 "Promotion to Hold"). A quick-tap-forced press never
// promotes: it always resolves as a tap on release.
func (e *Engine) tickTapHold(cfg *akconfig.AdvancedKey, st *tapHoldState, hasNonTapHoldPress, hasNonTapHoldRelease bool) {
	if st.stage != TapHoldTap || st.forcedTap {
		return
	}
	th := cfg.TapHold

	if hasNonTapHoldPress {
		st.interrupted = true
	}
	if hasNonTapHoldRelease {
		st.otherKeyReleased = true
	}

	promote := timeutil.Elapsed(e.clock.Now(), st.since) >= timeutil.Millis(th.TappingTermMs)

	if !promote && th.HoldWhileUndecided &&
		(th.Flavor == akconfig.HoldPreferred || th.Flavor == akconfig.Balanced) &&
		hasNonTapHoldPress {
		promote = true
	}

	if !promote && th.Flavor == akconfig.Balanced && st.interrupted && st.otherKeyReleased {
		promote = true
	}

	if !promote {
		return
	}

	st.stage = TapHoldHold
	e.reg.Register(cfg.Key, th.HoldKeycode)
}
