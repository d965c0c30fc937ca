// Command gobafrontend is the reference ebiten frontend: a texture/
// input/audio loop around a Core, plus a pause toggle and save-state
// slots, in the shape of a small cartridge-console front end rather
// than a debugger.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	gbacore "gbacore"
)

const (
	sampleRate = 48000
	slotCount  = 4
)

type app struct {
	core     *gbacore.Core
	romPath  string
	savePath string

	tex *ebiten.Image

	paused      bool
	fast        bool
	currentSlot int

	audioCtx    *audio.Context
	audioPlayer *audio.Player
	audioSrc    *coreStream

	lastTime time.Time
	frameAcc float64

	toastMsg   string
	toastUntil time.Time
}

func newApp(rom, bios []byte, romPath string) *app {
	core := gbacore.NewCore(bios)
	if err := core.LoadCart(rom, loadSaveFile(romPath)); err != nil {
		slog.Error("loading cart", "error", err)
		os.Exit(1)
	}
	if bios == nil {
		core.SkipBootrom(0x08000000)
	}

	a := &app{
		core:     core,
		romPath:  romPath,
		savePath: romPath + ".sav",
		lastTime: time.Now(),
	}
	a.audioCtx = audio.NewContext(sampleRate)
	a.audioSrc = &coreStream{core: core}
	if p, err := a.audioCtx.NewPlayer(a.audioSrc); err == nil {
		a.audioPlayer = p
		a.audioPlayer.Play()
	}
	return a
}

func loadSaveFile(romPath string) []byte {
	data, err := os.ReadFile(romPath + ".sav")
	if err != nil {
		return nil
	}
	return data
}

func (a *app) Update() error {
	if !a.paused {
		for b, key := range buttonKeys {
			a.core.SetButton(b, ebiten.IsKeyPressed(key))
		}
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)

	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		a.core.Reset()
	}
	for i, key := range slotKeys {
		if inpututil.IsKeyJustPressed(key) {
			a.currentSlot = i
			a.toast(fmt.Sprintf("slot set to %d", i+1))
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		if err := a.saveSlot(a.currentSlot); err != nil {
			a.toast("save failed: " + err.Error())
		} else {
			a.toast(fmt.Sprintf("saved slot %d", a.currentSlot+1))
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		if err := a.loadSlot(a.currentSlot); err != nil {
			a.toast("load failed: " + err.Error())
		} else {
			a.toast(fmt.Sprintf("loaded slot %d", a.currentSlot+1))
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		ebiten.SetFullscreen(!ebiten.IsFullscreen())
	}

	if !a.paused {
		now := time.Now()
		dt := now.Sub(a.lastTime).Seconds()
		a.lastTime = now
		speed := 1.0
		if a.fast {
			speed = 3.0
		}
		a.frameAcc += dt * speed
		const frameBudget = 1.0 / 60.0
		for a.frameAcc >= frameBudget {
			a.core.AdvanceDelta(frameBudget)
			a.frameAcc -= frameBudget
		}
	}

	if save, ok := a.core.MakeSave(); ok {
		_ = os.WriteFile(a.savePath, save.RAM, 0o644)
	}

	return nil
}

func (a *app) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(gbacore.ScreenWidth, gbacore.ScreenHeight)
	}
	if frame, ok := a.core.LastFrame(); ok {
		pix := make([]byte, 4*gbacore.ScreenPixels)
		for i, px := range frame {
			pix[4*i+0] = px.R
			pix[4*i+1] = px.G
			pix[4*i+2] = px.B
			pix[4*i+3] = px.A
		}
		a.tex.WritePixels(pix)
	}
	screen.DrawImage(a.tex, nil)

	if a.toastMsg != "" && time.Now().Before(a.toastUntil) {
		ebitenutil.DebugPrintAt(screen, a.toastMsg, 4, 4)
	}
	if a.paused {
		ebitenutil.DebugPrintAt(screen, "PAUSED", 4, gbacore.ScreenHeight-14)
	}
}

func (a *app) Layout(outW, outH int) (int, int) {
	return gbacore.ScreenWidth, gbacore.ScreenHeight
}

func (a *app) toast(msg string) {
	a.toastMsg = msg
	a.toastUntil = time.Now().Add(2 * time.Second)
}

func (a *app) slotPath(slot int) string {
	return fmt.Sprintf("%s.slot%d.savestate", a.romPath, slot)
}

func (a *app) saveSlot(slot int) error {
	data, err := a.core.SaveState()
	if err != nil {
		return err
	}
	return os.WriteFile(a.slotPath(slot), data, 0o644)
}

func (a *app) loadSlot(slot int) error {
	data, err := os.ReadFile(a.slotPath(slot))
	if err != nil {
		return err
	}
	return a.core.LoadState(data)
}

// coreStream implements io.Reader, pulling interleaved stereo float32
// samples from the Core and converting them to 16-bit PCM for ebiten's
// audio player.
type coreStream struct {
	core *gbacore.Core
	buf  []float32
}

func (s *coreStream) Read(p []byte) (int, error) {
	if len(p) < 4 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	frames := len(p) / 4
	if cap(s.buf) < frames*2 {
		s.buf = make([]float32, frames*2)
	}
	samples := s.buf[:frames*2]
	s.core.ProduceSamples(samples)

	for i := 0; i < frames; i++ {
		l := int16(samples[2*i] * 32767)
		r := int16(samples[2*i+1] * 32767)
		p[4*i+0] = byte(l)
		p[4*i+1] = byte(l >> 8)
		p[4*i+2] = byte(r)
		p[4*i+3] = byte(r >> 8)
	}
	return frames * 4, nil
}

var slotKeys = []ebiten.Key{ebiten.Key1, ebiten.Key2, ebiten.Key3, ebiten.Key4}

var buttonKeys = map[gbacore.Button]ebiten.Key{
	gbacore.ButtonUp:     ebiten.KeyUp,
	gbacore.ButtonDown:   ebiten.KeyDown,
	gbacore.ButtonLeft:   ebiten.KeyLeft,
	gbacore.ButtonRight:  ebiten.KeyRight,
	gbacore.ButtonA:      ebiten.KeyZ,
	gbacore.ButtonB:      ebiten.KeyX,
	gbacore.ButtonStart:  ebiten.KeyEnter,
	gbacore.ButtonSelect: ebiten.KeyShiftRight,
	gbacore.ButtonL:      ebiten.KeyA,
	gbacore.ButtonR:      ebiten.KeyS,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: gobafrontend <ROM file> [BIOS file]")
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

	a := newApp(rom, bios, os.Args[1])
	ebiten.SetWindowTitle("gobafrontend - " + filepath.Base(os.Args[1]))
	ebiten.SetWindowSize(gbacore.ScreenWidth*3, gbacore.ScreenHeight*3)

	if err := ebiten.RunGame(a); err != nil {
		slog.Error("run game", "error", err)
		os.Exit(1)
	}
}
