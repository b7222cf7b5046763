// Package simtrace defines the scripted trace format cmd/simulate and
// cmd/keyviz drive a Firmware from: a YAML list of raw-ADC-value changes
// and clock advances, parsed with gopkg.in/yaml.v3 in the same style as
// package config's profile source.
package simtrace

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hmkcore/internal/keycode"
)

// Step is one trace instruction. Exactly one of SetRaw or AdvanceMs should
// be non-zero/non-nil; Label is a free-text annotation shown by
// cmd/simulate.
type Step struct {
	Label     string   `yaml:"label,omitempty"`
	SetRaw    *RawSet  `yaml:"setRaw,omitempty"`
	AdvanceMs uint32   `yaml:"advanceMs,omitempty"`
}

// RawSet commands a simulated key's raw ADC reading to jump to Value,
// standing in for a physical switch's travel change between scans.
type RawSet struct {
	Key   int    `yaml:"key"`
	Value uint16 `yaml:"value"`
}

// Trace is a complete scripted scenario: device dimensions, the profile
// document to load, and the step sequence to play back.
type Trace struct {
	NumKeys    int    `yaml:"numKeys"`
	NumLayers  int    `yaml:"numLayers"`
	ProfileRef string `yaml:"profile"`
	Steps      []Step `yaml:"steps"`
}

// Load reads and parses a trace file.
func Load(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("simtrace: read %s: %w", path, err)
	}
	var t Trace
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("simtrace: parse %s: %w", path, err)
	}
	return &t, nil
}

// RawSource is a matrix.AnalogSource whose per-key reading is set directly
// by trace SetRaw steps rather than sampled from real hardware.
type RawSource struct {
	values []uint16
}

// NewRawSource creates a RawSource for numKeys keys, every reading
// starting at restValue.
func NewRawSource(numKeys int, restValue uint16) *RawSource {
	v := make([]uint16, numKeys)
	for i := range v {
		v[i] = restValue
	}
	return &RawSource{values: v}
}

// Read returns key's current commanded raw value. Satisfies
// matrix.AnalogSource.
func (r *RawSource) Read(key int) uint16 {
	if key < 0 || key >= len(r.values) {
		return 0
	}
	return r.values[key]
}

// Set commands key's raw reading to value, taking effect on the next scan.
func (r *RawSource) Set(key int, value uint16) {
	if key < 0 || key >= len(r.values) {
		return
	}
	r.values[key] = value
}

// HIDLog is a firmware.HIDReporter that records every add/remove instead
// of transmitting a report, for cmd/simulate's console output and
// cmd/keyviz's live dashboard.
type HIDLog struct {
	Active []keycode.Code
	Events []HIDEvent
}

// HIDEvent is one recorded HID report mutation.
type HIDEvent struct {
	Added   bool
	Keycode keycode.Code
}

// NewHIDLog creates an empty HIDLog.
func NewHIDLog() *HIDLog { return &HIDLog{} }

// KeycodeAdd records kc as newly active. Satisfies firmware.HIDReporter.
func (h *HIDLog) KeycodeAdd(kc keycode.Code) {
	h.Active = append(h.Active, kc)
	h.Events = append(h.Events, HIDEvent{Added: true, Keycode: kc})
}

// KeycodeRemove records kc as no longer active.
func (h *HIDLog) KeycodeRemove(kc keycode.Code) {
	for i, a := range h.Active {
		if a == kc {
			h.Active = append(h.Active[:i], h.Active[i+1:]...)
			break
		}
	}
	h.Events = append(h.Events, HIDEvent{Added: false, Keycode: kc})
}
