// Package matrix turns per-key analog travel samples into press/release
// edges, grounded on src/matrix.c of the reference firmware and spec.md
// §4.1. Each key runs its own Rapid Trigger finite state machine with
// hysteresis; the matrix as a whole auto-calibrates its rest and
// bottom-out endpoints while it scans.
package matrix

import "hmkcore/internal/timeutil"

// Direction is a key's last-known travel direction, used by the Rapid
// Trigger FSM to decide whether a new extremum should arm a press or a
// release.
type Direction uint8

const (
	DirInactive Direction = iota
	DirDown
	DirUp
)

// CalibrationEpsilon is the minimum ADC delta required before the rest or
// bottom-out endpoint is allowed to drift, preventing sensor noise from
// slowly walking the calibration.
const CalibrationEpsilon = 24

// ActuationConfig configures a single key's actuation behavior (spec.md §3).
type ActuationConfig struct {
	ActuationPoint uint8 // travel distance (0-255) that actuates without Rapid Trigger
	RapidTriggerDown uint8 // press sensitivity; 0 disables Rapid Trigger
	RapidTriggerUp   uint8 // release sensitivity; 0 mirrors RapidTriggerDown
	Continuous       bool  // reset point is 0 instead of ActuationPoint
}

// resetPoint returns the distance at or below which the key is forced back
// to Inactive.
func (a ActuationConfig) resetPoint() uint8 {
	if a.Continuous {
		return 0
	}
	return a.ActuationPoint
}

// rapidTriggerUp returns the effective release sensitivity: RapidTriggerUp
// if configured, otherwise RapidTriggerDown mirrored.
func (a ActuationConfig) rapidTriggerUp() uint8 {
	if a.RapidTriggerUp == 0 {
		return a.RapidTriggerDown
	}
	return a.RapidTriggerUp
}

// KeyState is the live per-key runtime state (spec.md §3).
type KeyState struct {
	ADCFiltered  uint16
	ADCRest      uint16
	ADCBottomOut uint16

	Distance  uint8
	Extremum  uint8
	Direction Direction
	IsPressed bool
	EventTime timeutil.Millis
}

// AnalogSource is the consumed collaborator that samples one key's raw ADC
// channel (spec.md §6 analog_read).
type AnalogSource interface {
	Read(key int) uint16
}

// DistanceCurve converts a filtered ADC sample into a normalized 0-255
// travel distance given the key's calibrated endpoints (spec.md §6
// adc_to_distance).
type DistanceCurve interface {
	Distance(adcFiltered, adcRest, adcBottomOut uint16) uint8
}

// LinearCurve is a DistanceCurve that scales linearly between rest and
// bottom-out. It is the curve cmd/simulate and tests use when no
// device-specific calibration table is supplied.
type LinearCurve struct{}

func (LinearCurve) Distance(adcFiltered, adcRest, adcBottomOut uint16) uint8 {
	if adcBottomOut <= adcRest {
		return 0
	}
	if adcFiltered <= adcRest {
		return 0
	}
	span := uint32(adcBottomOut - adcRest)
	travel := uint32(adcFiltered - adcRest)
	d := travel * 255 / span
	if d > 255 {
		d = 255
	}
	return uint8(d)
}

// Edge is a single key's press/release transition, produced during a scan.
type Edge struct {
	Key     int
	Pressed bool
	Time    timeutil.Millis
}

// Matrix owns every key's runtime state and drives the Rapid Trigger FSM.
type Matrix struct {
	keys   []KeyState
	config []ActuationConfig
	rtDisabled []bool

	analog AnalogSource
	curve  DistanceCurve
	clock  timeutil.Clock

	emaShift uint8 // alpha = 2^-emaShift

	lastBottomOutChange timeutil.Millis
}

// New creates a Matrix for numKeys physical keys. emaShift is the EMA
// filter's alpha exponent (alpha = 2^-emaShift); the reference firmware
// calls this MATRIX_EMA_ALPHA_EXPONENT.
func New(numKeys int, analog AnalogSource, curve DistanceCurve, clock timeutil.Clock, emaShift uint8) *Matrix {
	return &Matrix{
		keys:       make([]KeyState, numKeys),
		config:     make([]ActuationConfig, numKeys),
		rtDisabled: make([]bool, numKeys),
		analog:     analog,
		curve:      curve,
		clock:      clock,
		emaShift:   emaShift,
	}
}

// NumKeys returns the number of physical keys the matrix was constructed
// with.
func (m *Matrix) NumKeys() int { return len(m.keys) }

// State returns the current runtime state of key i.
func (m *Matrix) State(i int) KeyState { return m.keys[i] }

// Distance returns key i's current normalized travel distance. Satisfies
// advancedkey.MatrixReader.
func (m *Matrix) Distance(i int) uint8 { return m.keys[i].Distance }

// SetActuationConfig installs the actuation configuration for key i.
func (m *Matrix) SetActuationConfig(i int, cfg ActuationConfig) {
	m.config[i] = cfg
}

// DisableRapidTrigger forces key i into simple-threshold actuation,
// regardless of its configured Rapid Trigger sensitivities. Dynamic
// Keystroke bindings use this while the binding is non-released
// (spec.md §4.3 "matrix_disable_rapid_trigger").
func (m *Matrix) DisableRapidTrigger(i int, disable bool) {
	m.rtDisabled[i] = disable
}

// ema computes the exponential moving average update for a single sample.
func (m *Matrix) ema(raw uint16, prev uint16) uint16 {
	alpha := uint32(1)<<m.emaShift - 1
	return uint16((uint32(raw) + uint32(prev)*alpha) >> m.emaShift)
}

// Recalibrate resets every key's calibration to restValue and its
// bottom-out to restValue (it is re-learned during subsequent scans), per
// spec.md §6 matrix_recalibrate. resetBottomOut is not consulted: the
// bottom-out endpoint is reset on every call, whatever its value.
func (m *Matrix) Recalibrate(restValue uint16, resetBottomOut bool) {
	for i := range m.keys {
		m.keys[i] = KeyState{
			ADCFiltered:  restValue,
			ADCRest:      restValue,
			ADCBottomOut: restValue,
			Direction:    DirInactive,
		}
		_ = resetBottomOut
	}
	m.lastBottomOutChange = m.clock.Now()
}

// Scan samples every key once, updates its filtered value, distance, and
// Rapid Trigger FSM, and returns the set of press/release edges produced
// this tick (spec.md §4.1, §4.5 step 1).
//
// Simultaneous new presses are re-ordered so that only the deepest one
// (the one that crossed its actuation point earliest, by construction) is
// delivered this scan; shallower ones are reverted to Inactive so they
// re-trigger — and get their own Edge — on the next scan (spec.md
// "Simultaneous-press ordering").
func (m *Matrix) Scan() []Edge {
	now := m.clock.Now()

	type candidate struct {
		key   int
		delta uint8
	}
	var newPresses []candidate
	var edges []Edge

	for i := range m.keys {
		k := &m.keys[i]
		cfg := m.config[i]

		raw := m.analog.Read(i)
		k.ADCFiltered = m.ema(raw, k.ADCFiltered)

		if uint32(k.ADCFiltered) >= uint32(k.ADCBottomOut)+CalibrationEpsilon {
			k.ADCBottomOut = k.ADCFiltered
			m.lastBottomOutChange = now
		}

		k.Distance = m.curve.Distance(k.ADCFiltered, k.ADCRest, k.ADCBottomOut)

		wasPressed := k.IsPressed

		if m.rtDisabled[i] || cfg.RapidTriggerDown == 0 {
			k.Direction = DirInactive
			k.IsPressed = k.Distance >= cfg.ActuationPoint
		} else {
			m.stepRapidTrigger(k, cfg)
		}

		if k.IsPressed != wasPressed {
			k.EventTime = now
		}

		if !wasPressed && k.IsPressed {
			delta := uint8(0)
			if k.Distance > cfg.ActuationPoint {
				delta = k.Distance - cfg.ActuationPoint
			}
			newPresses = append(newPresses, candidate{key: i, delta: delta})
		} else if wasPressed != k.IsPressed {
			edges = append(edges, Edge{Key: i, Pressed: k.IsPressed, Time: k.EventTime})
		}
	}

	// Sort new presses by distance delta descending (deepest = pressed
	// earliest), stable on key index for ties (spec.md §8 invariant).
	for i := 1; i < len(newPresses); i++ {
		j := i
		for j > 0 && newPresses[j-1].delta < newPresses[j].delta {
			newPresses[j-1], newPresses[j] = newPresses[j], newPresses[j-1]
			j--
		}
	}

	for idx, c := range newPresses {
		if idx == 0 {
			edges = append(edges, Edge{Key: c.key, Pressed: true, Time: m.keys[c.key].EventTime})
			continue
		}
		// Revert the shallower press so it re-triggers next scan.
		k := &m.keys[c.key]
		k.IsPressed = false
		k.Direction = DirInactive
	}

	return edges
}

func (m *Matrix) stepRapidTrigger(k *KeyState, cfg ActuationConfig) {
	reset := cfg.resetPoint()
	rtUp := cfg.rapidTriggerUp()

	switch k.Direction {
	case DirInactive:
		if k.Distance > cfg.ActuationPoint {
			k.Extremum = k.Distance
			k.Direction = DirDown
			k.IsPressed = true
		}

	case DirDown:
		if k.Distance <= reset {
			k.Extremum = k.Distance
			k.Direction = DirInactive
			k.IsPressed = false
		} else if uint16(k.Distance)+uint16(rtUp) < uint16(k.Extremum) {
			k.Extremum = k.Distance
			k.Direction = DirUp
			k.IsPressed = false
		} else if k.Distance > k.Extremum {
			k.Extremum = k.Distance
		}

	case DirUp:
		if k.Distance <= reset {
			k.Extremum = k.Distance
			k.Direction = DirInactive
			k.IsPressed = false
		} else if uint16(k.Extremum)+uint16(cfg.RapidTriggerDown) < uint16(k.Distance) {
			k.Extremum = k.Distance
			k.Direction = DirDown
			k.IsPressed = true
		} else if k.Distance < k.Extremum {
			k.Extremum = k.Distance
		}
	}
}
