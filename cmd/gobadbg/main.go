// Command gobadbg is a tcell terminal debugger: it drives a Core
// headlessly (no video/audio output, just register/trace/diagnostic
// panes) so a breakpoint, a single-step or a runtime diagnostic can be
// inspected without a graphical frontend.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	gbacore "gbacore"
)

const (
	frameTime      = time.Second / 60
	registerHeight = 3
	traceHeight    = 16
	logHeight      = 8
	minTermWidth   = 80
	minTermHeight  = 24
)

// debugger owns the screen and the Core it is driving; it never
// touches ebiten or any other output surface, matching the terminal
// backend's role as a side channel rather than the primary renderer.
type debugger struct {
	screen  tcell.Screen
	core    *gbacore.Core
	running bool
	paused  bool

	status string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: gobadbg <ROM file> [BIOS file]")
		os.Exit(1)
	}

	rom, err := os.ReadFile(os.Args[1])
	if err != nil {
		slog.Error("reading ROM", "error", err)
		os.Exit(1)
	}

	var bios []byte
	if len(os.Args) > 2 {
		bios, err = os.ReadFile(os.Args[2])
		if err != nil {
			slog.Error("reading BIOS", "error", err)
			os.Exit(1)
		}
	}

	core := gbacore.NewCore(bios)
	if err := core.LoadCart(rom, nil); err != nil {
		slog.Error("loading cart", "error", err)
		os.Exit(1)
	}
	if bios == nil {
		core.SkipBootrom(0x08000000)
	}
	core.SetTraceEnabled(true)

	d := &debugger{core: core, status: "running"}
	if err := d.init(); err != nil {
		slog.Error("terminal init", "error", err)
		os.Exit(1)
	}
	defer d.screen.Fini()

	d.loop()
}

func (d *debugger) init() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("new screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("screen init: %w", err)
	}
	d.screen = screen
	d.running = true
	d.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	d.screen.Clear()
	return nil
}

func (d *debugger) loop() {
	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()

	for d.running {
		d.pollInput()

		if !d.paused {
			d.core.AdvanceDelta(1.0 / 60.0)
			for _, ev := range d.core.DrainEvents() {
				d.status = fmt.Sprintf("hit %s @ 0x%08X", ev.Kind, ev.Addr)
				d.paused = true
			}
		}

		d.render()
		d.screen.Show()
		<-ticker.C
	}
}

func (d *debugger) pollInput() {
	for d.screen.HasPendingEvent() {
		ev := d.screen.PollEvent()
		key, ok := ev.(*tcell.EventKey)
		if !ok {
			continue
		}
		switch key.Key() {
		case tcell.KeyCtrlC, tcell.KeyEscape:
			d.running = false
		case tcell.KeyRune:
			d.handleRune(key.Rune())
		}
	}
}

func (d *debugger) handleRune(r rune) {
	switch r {
	case ' ':
		d.paused = !d.paused
		if d.paused {
			d.status = "paused"
		} else {
			d.status = "running"
		}
	case 'n':
		d.core.AdvanceDelta(0) // zero-length delta: runs one instruction, or nothing once a breakpoint has stopped the core
	case 'b':
		d.promptBreakpoint()
	case 'q':
		d.running = false
	}
}

// promptBreakpoint reads a hex address from a one-line input field at
// the bottom of the screen and installs an exec breakpoint on it.
func (d *debugger) promptBreakpoint() {
	_, h := d.screen.Size()
	prompt := "break addr (hex): "
	var input strings.Builder

	for {
		d.screen.Clear()
		line := prompt + input.String()
		for i, ch := range line {
			d.screen.SetContent(i, h-1, ch, nil, tcell.StyleDefault)
		}
		d.screen.Show()

		ev := d.screen.PollEvent()
		key, ok := ev.(*tcell.EventKey)
		if !ok {
			continue
		}
		switch key.Key() {
		case tcell.KeyEnter:
			addr, err := strconv.ParseUint(strings.TrimSpace(input.String()), 16, 32)
			if err == nil {
				d.core.AddBreakpoint(gbacore.Breakpoint{Addr: uint32(addr), Exec: true})
				d.status = fmt.Sprintf("breakpoint set @ 0x%08X", addr)
			}
			return
		case tcell.KeyEscape:
			return
		case tcell.KeyBackspace, tcell.KeyBackspace2:
			s := input.String()
			if len(s) > 0 {
				input.Reset()
				input.WriteString(s[:len(s)-1])
			}
		case tcell.KeyRune:
			input.WriteRune(key.Rune())
		}
	}
}

func (d *debugger) render() {
	w, h := d.screen.Size()
	if w < minTermWidth || h < minTermHeight {
		d.screen.Clear()
		msg := fmt.Sprintf("terminal too small, need at least %dx%d", minTermWidth, minTermHeight)
		for i, ch := range msg {
			d.screen.SetContent(i, h/2, ch, nil, tcell.StyleDefault.Foreground(tcell.ColorRed))
		}
		return
	}

	d.screen.Clear()
	d.drawHeader(w)
	d.drawRegisters(1)
	d.drawTrace(1, registerHeight+2)
	d.drawDiagnostics(1, registerHeight+traceHeight+3, h)
}

func (d *debugger) drawHeader(w int) {
	style := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	title := fmt.Sprintf(" gobadbg [%s]  SPACE=pause  b=breakpoint  q=quit ", d.status)
	for i, ch := range title {
		if i >= w {
			break
		}
		d.screen.SetContent(i, 0, ch, nil, style)
	}
}

func (d *debugger) drawRegisters(y int) {
	style := tcell.StyleDefault.Foreground(tcell.ColorBlue)
	line := d.core.Registers().String()
	for i, ch := range line {
		d.screen.SetContent(i, y, ch, nil, style)
	}
}

func (d *debugger) drawTrace(x, y int) {
	style := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	trace := d.core.Trace()
	start := 0
	if len(trace) > traceHeight {
		start = len(trace) - traceHeight
	}
	for i, pc := range trace[start:] {
		line := fmt.Sprintf("0x%08X", pc)
		for j, ch := range line {
			d.screen.SetContent(x+j, y+i, ch, nil, style)
		}
	}
}

func (d *debugger) drawDiagnostics(x, y, termHeight int) {
	warnStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	errStyle := tcell.StyleDefault.Foreground(tcell.ColorRed)

	events := d.core.Diagnostics()
	start := 0
	if len(events) > logHeight {
		start = len(events) - logHeight
	}
	for i, ev := range events[start:] {
		row := y + i
		if row >= termHeight-1 {
			break
		}
		style := warnStyle
		if ev.Severity >= 3 {
			style = errStyle
		}
		for j, ch := range ev.Message {
			d.screen.SetContent(x+j, row, ch, nil, style)
		}
	}
}
