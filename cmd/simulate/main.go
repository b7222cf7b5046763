// Command simulate runs a scripted trace against the firmware core
// headlessly and prints every HID-visible keycode add/remove to stdout,
// the way the teacher's cmd/testrom runs a ROM headlessly and reports
// what happened.
package main

import (
	"fmt"
	"os"

	"hmkcore/internal/config"
	"hmkcore/internal/firmware"
	"hmkcore/internal/matrix"
	"hmkcore/internal/simtrace"
	"hmkcore/internal/telemetry"
	"hmkcore/internal/timeutil"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: simulate <trace.yaml>")
		os.Exit(1)
	}

	trace, err := simtrace.Load(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading trace: %v\n", err)
		os.Exit(1)
	}

	var doc *config.Document
	if trace.ProfileRef != "" {
		doc, err = config.LoadFile(trace.ProfileRef)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading profile: %v\n", err)
			os.Exit(1)
		}
	}

	clock := timeutil.NewFake(0)
	log := telemetry.NewLogger(1024)
	analog := simtrace.NewRawSource(trace.NumKeys, 200)
	hid := simtrace.NewHIDLog()

	fw := firmware.New(trace.NumKeys, trace.NumLayers, analog, matrix.LinearCurve{}, hid, nil, clock, log)

	if doc != nil {
		for i, p := range doc.Profiles {
			if err := fw.LoadProfile(i, config.Resolve(p)); err != nil {
				fmt.Fprintf(os.Stderr, "error loading profile %d: %v\n", i, err)
				os.Exit(1)
			}
		}
		fw.Start(doc.CurrentProfile)
	} else {
		fw.Start(0)
	}

	fmt.Printf("=== hmkcore simulate ===\n")
	fmt.Printf("keys=%d layers=%d steps=%d\n\n", trace.NumKeys, trace.NumLayers, len(trace.Steps))

	lastEventCount := 0
	for i, step := range trace.Steps {
		switch {
		case step.SetRaw != nil:
			analog.Set(step.SetRaw.Key, step.SetRaw.Value)
		case step.AdvanceMs > 0:
			clock.Advance(timeutil.Millis(step.AdvanceMs))
		}

		fw.Task()

		for _, ev := range hid.Events[lastEventCount:] {
			action := "release"
			if ev.Added {
				action = "press"
			}
			label := step.Label
			if label == "" {
				label = fmt.Sprintf("step %d", i)
			}
			fmt.Printf("[%s] t=%dms keycode=0x%02X %s\n", label, clock.Now(), ev.Keycode, action)
		}
		lastEventCount = len(hid.Events)
	}

	fmt.Printf("\nfinal active keycodes: %v\n", hid.Active)
}
