// Command keyviz is a live terminal dashboard for a scripted trace: it
// steps through the same trace format cmd/simulate consumes, rendering
// every key's current raw ADC reading as a grid (highlighted above 400)
// and the recent HID event log below it, the way the teacher's cmd/debugger
// lets you step an emulator and inspect its state interactively.
package main

import (
	"fmt"
	"os"

	"github.com/gdamore/tcell"

	"hmkcore/internal/config"
	"hmkcore/internal/firmware"
	"hmkcore/internal/matrix"
	"hmkcore/internal/simtrace"
	"hmkcore/internal/telemetry"
	"hmkcore/internal/timeutil"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: keyviz <trace.yaml>")
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
			fw.LoadProfile(i, config.Resolve(p))
		}
		fw.Start(doc.CurrentProfile)
	} else {
		fw.Start(0)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating screen: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "error initializing screen: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	screen.SetStyle(tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack))
	screen.Clear()

	dash := &dashboard{screen: screen, trace: trace, hid: hid, analog: analog, clock: clock, fw: fw}
	dash.run()
}

type dashboard struct {
	screen tcell.Screen
	trace  *simtrace.Trace
	hid    *simtrace.HIDLog
	analog *simtrace.RawSource
	clock  *timeutil.Fake
	fw     *firmware.Firmware

	step          int
	lastEventSeen int
	recent        []string
}

func (d *dashboard) run() {
	d.draw()
	for {
		ev := d.screen.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			switch ev.Key() {
			case tcell.KeyEscape, tcell.KeyCtrlC:
				return
			case tcell.KeyCtrlL:
				d.screen.Sync()
			case tcell.KeyEnter, tcell.KeyRight:
				d.advance()
			}
			if ev.Rune() == 'q' {
				return
			}
			if ev.Rune() == ' ' {
				d.advance()
			}
		case *tcell.EventResize:
			d.screen.Sync()
		}
		d.draw()
	}
}

func (d *dashboard) advance() {
	if d.step >= len(d.trace.Steps) {
		return
	}
	s := d.trace.Steps[d.step]
	switch {
	case s.SetRaw != nil:
		d.analog.Set(s.SetRaw.Key, s.SetRaw.Value)
	case s.AdvanceMs > 0:
		d.clock.Advance(timeutil.Millis(s.AdvanceMs))
	}
	d.fw.Task()

	for _, e := range d.hid.Events[d.lastEventSeen:] {
		action := "up"
		if e.Added {
			action = "down"
		}
		d.recent = append(d.recent, fmt.Sprintf("t=%5dms kc=0x%02X %s", d.clock.Now(), e.Keycode, action))
		if len(d.recent) > 20 {
			d.recent = d.recent[1:]
		}
	}
	d.lastEventSeen = len(d.hid.Events)
	d.step++
}

func (d *dashboard) draw() {
	d.screen.Clear()
	w, _ := d.screen.Size()

	d.puts(0, 0, tcell.StyleDefault.Bold(true), fmt.Sprintf("hmkcore keyviz  step %d/%d  t=%dms", d.step, len(d.trace.Steps), d.clock.Now()))
	d.puts(0, 1, tcell.StyleDefault, "space/enter: step   ctrl-c/q/esc: quit")

	for k := 0; k < d.trace.NumKeys; k++ {
		col := (k % 8) * 9
		row := 3 + k/8
		raw := d.analog.Read(k)
		style := tcell.StyleDefault
		if raw > 400 {
			style = style.Foreground(tcell.ColorBlack).Background(tcell.ColorGreen)
		}
		d.puts(col, row, style, fmt.Sprintf("K%02d:%4d", k, raw))
	}

	logTop := 5 + (d.trace.NumKeys+7)/8
	d.puts(0, logTop, tcell.StyleDefault.Bold(true), "HID events:")
	for i, line := range d.recent {
		d.puts(0, logTop+1+i, tcell.StyleDefault, line)
	}

	active := fmt.Sprintf("active: %v", d.hid.Active)
	if len(active) > w {
		active = active[:w]
	}
	d.puts(0, logTop+2+len(d.recent), tcell.StyleDefault, active)

	d.screen.Show()
}

func (d *dashboard) puts(x, y int, style tcell.Style, s string) {
	for i, r := range s {
		d.screen.SetContent(x+i, y, r, nil, style)
	}
}
