// Package combo implements the Combo advanced-key behavior: a queue-based
// detector that buffers presses of keys participating in any combo,
// deciding among No Match / Candidate / Full Match as events arrive and on
// every scheduler tick (spec.md §4.4 "Combo").
//
// Grounded key-for-key on src/advanced_keys.c's Combo Implementation
// section (queue_push/queue_peek/queue_pop, check_combo_match,
// process_combo_logic, advanced_key_combo_process/_task).
package combo

import (
	"hmkcore/internal/akconfig"
	"hmkcore/internal/deferred"
	"hmkcore/internal/keycode"
	"hmkcore/internal/timeutil"
)

// queueSize bounds the ring buffer of unresolved key events (spec.md §3
// "Combo queue capacity 16").
const queueSize = 16

// defaultTermMs is used when a combo's configured term is zero.
const defaultTermMs = 50

// ComboOutputKey is the virtual matrix key index a matched combo's output
// keycode is registered against, since it is not tied to any single
// physical key (spec.md §4.4 "registers its output against a virtual key").
const ComboOutputKey = 255

type event struct {
	key      int
	pressed  bool
	time     timeutil.Millis
	consumed bool
}

// KeyProcessor is the layout resolver's normal (non-combo) key processing
// entry point, invoked when the detector flushes a buffered event back
// through as an ordinary keypress.
type KeyProcessor interface {
	ProcessKey(key int, pressed bool) bool
}

// LayerSource reports the currently active keymap layer, used to select
// which combos are live.
type LayerSource interface {
	CurrentLayer() int
}

// Registrar registers a combo's output keycode.
type Registrar interface {
	Register(key int, kc keycode.Code)
}

// matchStatus is check_combo_match's three-way result.
type matchStatus int

const (
	matchNone matchStatus = iota
	matchCandidate
	matchFull
)

// Detector owns the event queue and the per-layer combo membership cache.
type Detector struct {
	configs []akconfig.AdvancedKey

	queue [queueSize]event
	head  int
	tail  int
	count int

	bitmap      []uint8
	bitmapLayer int // -1 forces a rebuild

	flushInProgress bool
	pendingActivity bool

	numKeys    int
	dispatcher KeyProcessor
	layers     LayerSource
	reg        Registrar
	defer_     deferred.Queue
	clock      timeutil.Clock
}

// New creates a Detector for a matrix of numKeys physical keys.
func New(numKeys int, dispatcher KeyProcessor, layers LayerSource, reg Registrar, q deferred.Queue, clock timeutil.Clock) *Detector {
	return &Detector{
		bitmap:      make([]uint8, (numKeys+7)/8),
		bitmapLayer: -1,
		numKeys:     numKeys,
		dispatcher:  dispatcher,
		layers:      layers,
		reg:         reg,
		defer_:      q,
		clock:       clock,
	}
}

// SetConfig installs the full advanced-key configuration; only TypeCombo
// entries are consulted. Invalidates the per-layer bitmap cache, since the
// set of keys participating in combos may have changed.
func (d *Detector) SetConfig(configs []akconfig.AdvancedKey) {
	d.configs = configs
	d.InvalidateCache()
}

// InvalidateCache forces the combo-membership bitmap to rebuild on next
// use. SetConfig calls it whenever the configuration is replaced; a layer
// change needs no call, since the bitmap is also rebuilt whenever the
// current layer differs from the one it was built for.
func (d *Detector) InvalidateCache() {
	d.bitmapLayer = -1
}

func (d *Detector) rebuildBitmap(layer int) {
	if d.bitmapLayer == layer {
		return
	}
	for i := range d.bitmap {
		d.bitmap[i] = 0
	}
	for i := range d.configs {
		ak := &d.configs[i]
		if ak.Type != akconfig.TypeCombo || ak.Layer != layer {
			continue
		}
		for _, k := range ak.Combo.Keys {
			if k >= 0 && k < d.numKeys {
				d.bitmap[k/8] |= 1 << uint(k%8)
			}
		}
	}
	d.bitmapLayer = layer
}

func (d *Detector) isKeyInAnyCombo(key int) bool {
	if key < 0 || key >= d.numKeys {
		return false
	}
	return d.bitmap[key/8]&(1<<uint(key%8)) != 0
}

func (d *Detector) queuePush(key int, pressed bool, t timeutil.Millis) {
	if d.count >= queueSize {
		d.flushEvents(1)
	}
	d.queue[d.tail] = event{key: key, pressed: pressed, time: t}
	d.tail = (d.tail + 1) % queueSize
	d.count++
}

func (d *Detector) queuePeek(offset int) *event {
	if offset >= d.count {
		return nil
	}
	return &d.queue[(d.head+offset)%queueSize]
}

func (d *Detector) queuePop() {
	if d.count == 0 {
		return
	}
	d.head = (d.head + 1) % queueSize
	d.count--
}

// flushEvents replays up to n unconsumed buffered events back through the
// normal key-processing path. Guarded against recursion: a flush triggered
// from inside a flush (via queue overflow) is skipped, leaving its events
// in the queue for the next tick or key event — so no input is lost.
func (d *Detector) flushEvents(n int) {
	if d.flushInProgress {
		return
	}
	d.flushInProgress = true
	for i := 0; i < n && d.count > 0; i++ {
		ev := d.queuePeek(0)
		if !ev.consumed {
			if d.dispatcher.ProcessKey(ev.key, ev.pressed) {
				d.pendingActivity = true
			}
		}
		d.queuePop()
	}
	d.flushInProgress = false
}

// checkComboMatch evaluates one combo definition against the buffered
// press events. Only press events participate; a foreign (non-member)
// key anywhere in the queue kills the candidate outright.
func (d *Detector) checkComboMatch(ak *akconfig.AdvancedKey, currentTime timeutil.Millis) matchStatus {
	keysRequired := ak.Combo.RequiredKeys()
	if keysRequired == 0 {
		return matchNone
	}

	var activePart [4]bool
	var keyTimes [4]timeutil.Millis

	for i := 0; i < d.count; i++ {
		ev := d.queuePeek(i)
		if ev == nil || ev.consumed || !ev.pressed {
			continue
		}
		isPart := false
		for k, ck := range ak.Combo.Keys {
			if ck == ev.key {
				isPart = true
				if !activePart[k] {
					activePart[k] = true
					keyTimes[k] = ev.time
				}
				break
			}
		}
		if !isPart {
			return matchNone
		}
	}

	keysFound := 0
	for k, ck := range ak.Combo.Keys {
		if ck >= 0 && ck < d.numKeys && activePart[k] {
			keysFound++
		}
	}

	term := ak.Combo.TermMs
	if term == 0 {
		term = defaultTermMs
	}

	if keysFound == keysRequired {
		var minT, maxT timeutil.Millis
		first := true
		for k := range ak.Combo.Keys {
			if !activePart[k] {
				continue
			}
			if first {
				minT, maxT = keyTimes[k], keyTimes[k]
				first = false
				continue
			}
			if keyTimes[k] < minT {
				minT = keyTimes[k]
			}
			if keyTimes[k] > maxT {
				maxT = keyTimes[k]
			}
		}
		if maxT-minT <= timeutil.Millis(term) {
			return matchFull
		}
		return matchNone
	}

	if keysFound > 0 {
		var minT timeutil.Millis
		first := true
		for k := range ak.Combo.Keys {
			if !activePart[k] {
				continue
			}
			if first {
				minT = keyTimes[k]
				first = false
			} else if keyTimes[k] < minT {
				minT = keyTimes[k]
			}
		}
		if !first && timeutil.Elapsed(currentTime, minT) <= timeutil.Millis(term) {
			return matchCandidate
		}
	}

	return matchNone
}

// processComboLogic re-evaluates every live combo against the buffered
// queue: it executes the longest full match (ties broken by lowest
// advanced-key index), waits out any still-pending longer candidate, or
// flushes the queue when nothing can still match.
func (d *Detector) processComboLogic(currentTime timeutil.Millis) {
	layer := d.layers.CurrentLayer()
	d.rebuildBitmap(layer)

	bestIdx := -1
	bestLen := 0
	pendingCandidates := false
	maxPendingTerm := uint16(defaultTermMs)

	for i := range d.configs {
		ak := &d.configs[i]
		if ak.Type != akconfig.TypeCombo || ak.Layer != layer {
			continue
		}
		switch d.checkComboMatch(ak, currentTime) {
		case matchFull:
			length := ak.Combo.RequiredKeys()
			if length > bestLen || (length == bestLen && (bestIdx == -1 || i < bestIdx)) {
				bestIdx = i
				bestLen = length
			}
		case matchCandidate:
			pendingCandidates = true
			term := ak.Combo.TermMs
			if term == 0 {
				term = defaultTermMs
			}
			if term > maxPendingTerm {
				maxPendingTerm = term
			}
		}
	}

	if bestIdx != -1 {
		if pendingCandidates {
			head := d.queuePeek(0)
			if head != nil && timeutil.Elapsed(currentTime, head.time) > timeutil.Millis(maxPendingTerm) {
				d.executeMatch(bestIdx)
				return
			}
			return // still waiting for a potential longer combo
		}
		d.executeMatch(bestIdx)
		return
	}

	if pendingCandidates {
		head := d.queuePeek(0)
		if head != nil && timeutil.Elapsed(currentTime, head.time) > timeutil.Millis(maxPendingTerm) {
			d.flushEvents(1)
		}
		return
	}

	d.flushEvents(d.count)
}

func (d *Detector) executeMatch(idx int) {
	match := &d.configs[idx]

	for q := 0; q < d.count; q++ {
		ev := d.queuePeek(q)
		if ev == nil || ev.consumed {
			continue
		}
		for _, ck := range match.Combo.Keys {
			if ck == ev.key {
				ev.consumed = true
				break
			}
		}
	}

	d.reg.Register(ComboOutputKey, match.Combo.OutputKeycode)
	d.defer_.Push(deferred.Action{
		Type:    deferred.ActionRelease,
		Key:     ComboOutputKey,
		Keycode: match.Combo.OutputKeycode,
	})
	d.pendingActivity = true

	d.flushEvents(d.count)
}

// Process is the combo detector's main entry point, called for every key
// transition before it reaches the ordinary layout resolver. It returns
// true when it has fully handled the event (the caller must not also
// process it normally).
func (d *Detector) Process(key int, pressed bool, t timeutil.Millis) bool {
	layer := d.layers.CurrentLayer()
	d.rebuildBitmap(layer)

	keyInCombo := d.isKeyInAnyCombo(key)

	if d.count == 0 && !keyInCombo {
		return false
	}

	if !keyInCombo {
		if pressed && d.count > 0 {
			d.flushEvents(d.count)
		}
		return false
	}

	if !pressed {
		// Releases of combo-member keys are never buffered: pass them
		// through immediately so key-up reports are never delayed, then
		// re-evaluate — the release may have killed every candidate.
		if d.dispatcher.ProcessKey(key, false) {
			d.pendingActivity = true
		}
		if d.count > 0 {
			d.processComboLogic(t)
		}
		return true
	}

	d.queuePush(key, pressed, t)
	d.processComboLogic(t)
	return true
}

// Task re-evaluates pending combo candidates against the current time,
// even absent a new key event, so a timed-out candidate resolves
// (spec.md §4.5 "Combo term expiry is time-driven, not just event-driven").
// Returns true if it produced any HID-visible activity this call.
func (d *Detector) Task() bool {
	d.pendingActivity = false
	if d.count > 0 {
		d.processComboLogic(d.clock.Now())
	}
	return d.pendingActivity
}
