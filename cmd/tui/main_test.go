package main

import (
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
	"github.com/df07/go-schwarzschild-raytracer/pkg/observer"
	"github.com/df07/go-schwarzschild-raytracer/pkg/scene"
)

type countingAlarm struct{ plays int }

func (a *countingAlarm) Play() { a.plays++ }

func newTestScreen(t *testing.T, cols, rows int) tcell.SimulationScreen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("Failed to init screen: %v", err)
	}
	screen.SetSize(cols, rows)
	t.Cleanup(screen.Fini)
	return screen
}

func newTestViewer(t *testing.T, id string, a alarm) (*viewer, tcell.SimulationScreen) {
	t.Helper()
	screen := newTestScreen(t, 24, 9)
	s, err := scene.NewScene(id, core.NopLogger{})
	if err != nil {
		t.Fatalf("NewScene(%q) failed: %v", id, err)
	}
	v, err := newViewer(screen, s, a)
	if err != nil {
		t.Fatalf("newViewer failed: %v", err)
	}
	t.Cleanup(v.close)
	return v, screen
}

func TestDrawImage(t *testing.T) {
	screen := newTestScreen(t, 4, 4)
	img := image.NewRGBA(image.Rect(0, 0, 2, 3))
	img.SetRGBA(1, 0, color.RGBA{R: 255, A: 255})
	img.SetRGBA(1, 1, color.RGBA{B: 255, A: 255})

	drawImage(screen, img)

	mainc, _, style, _ := screen.GetContent(1, 0)
	if mainc != '▀' {
		t.Fatalf("Expected a half block, got %q", mainc)
	}
	fg, bg, _ := style.Decompose()
	if fg != tcell.NewRGBColor(255, 0, 0) || bg != tcell.NewRGBColor(0, 0, 255) {
		t.Errorf("Expected red over blue, got %v over %v", fg, bg)
	}

	// The odd last row has no partner and stays empty
	if mainc, _, _, _ := screen.GetContent(0, 1); mainc == '▀' {
		t.Errorf("Expected the unpaired row to be skipped")
	}
}

func TestStatusLine(t *testing.T) {
	o := observer.New(10, 1.5, 64, 32)
	line := statusLine(o)
	if !strings.Contains(line, "r = 25.00") || !strings.Contains(line, "orbit:") {
		t.Errorf("Unexpected status line %q", line)
	}

	o.SetPosition(core.NewVec3(5, 0, 0))
	if line := statusLine(o); !strings.Contains(line, "inside the horizon") {
		t.Errorf("Expected the inside note, got %q", line)
	}
}

func TestViewer_Step(t *testing.T) {
	v, screen := newTestViewer(t, "default", nil)

	if w, h := v.imageSize(); w != 24 || h != 16 {
		t.Fatalf("Expected a 24x16 image, got %dx%d", w, h)
	}
	if err := v.step(time.Now(), time.Second/20); err != nil {
		t.Fatalf("step failed: %v", err)
	}

	if mainc, _, _, _ := screen.GetContent(10, 3); mainc != '▀' {
		t.Errorf("Expected image cells, got %q", mainc)
	}
	var status []rune
	for x := 0; x < 10; x++ {
		mainc, _, _, _ := screen.GetContent(x, 8)
		status = append(status, mainc)
	}
	if !strings.Contains(string(status), "r = 25") {
		t.Errorf("Expected the status line in the last row, got %q", string(status))
	}
}

func TestViewer_Keys(t *testing.T) {
	v, _ := newTestViewer(t, "default", nil)
	now := time.Now()

	if !v.handleEvent(tcell.NewEventKey(tcell.KeyRune, 'w', tcell.ModNone), now) {
		t.Fatal("Expected w to keep running")
	}
	if got := v.controller.Direction(); got != core.NewVec3(1, 0, 0) {
		t.Errorf("Expected forward to be held, got %v", got)
	}

	v.releaseKeys(now.Add(keyHold / 2))
	if got := v.controller.Direction(); got.X != 1 {
		t.Errorf("Expected forward to stay held within the hold time")
	}
	v.releaseKeys(now.Add(2 * keyHold))
	if got := v.controller.Direction(); got != (core.Vec3{}) {
		t.Errorf("Expected all keys released, got %v", got)
	}

	v.handleEvent(tcell.NewEventKey(tcell.KeyRune, '4', tcell.ModNone), now)
	if v.observer.State() != observer.Orbiting {
		t.Errorf("Expected orbiting after 4, got %v", v.observer.State())
	}
	v.handleEvent(tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone), now)
	if v.observer.State() != observer.FrozenFall {
		t.Errorf("Expected frozen fall after reset, got %v", v.observer.State())
	}

	if v.handleEvent(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone), now) {
		t.Errorf("Expected q to quit")
	}
	if v.handleEvent(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone), now) {
		t.Errorf("Expected Esc to quit")
	}
}

func TestViewer_ModeFailureShown(t *testing.T) {
	v, _ := newTestViewer(t, "default", nil)
	v.observer.SetPosition(core.NewVec3(5, 0, 0))

	v.handleRune('4', time.Now())
	if v.message == "" {
		t.Errorf("Expected an orbit inside the horizon to report an error")
	}
	if v.observer.State() == observer.Orbiting {
		t.Errorf("Expected the state to be unchanged")
	}
}

func TestViewer_HorizonAlarm(t *testing.T) {
	a := &countingAlarm{}
	v, _ := newTestViewer(t, "default", a)

	if err := v.step(time.Now(), time.Second/20); err != nil {
		t.Fatal(err)
	}
	if a.plays != 0 {
		t.Fatalf("Expected no alarm outside the horizon")
	}

	v.observer.SetPosition(core.NewVec3(9, 0, 0))
	for i := 0; i < 3; i++ {
		if err := v.step(time.Now(), time.Second/20); err != nil {
			t.Fatal(err)
		}
	}
	if a.plays != 1 {
		t.Errorf("Expected exactly one alarm on crossing, got %d", a.plays)
	}
}

func TestViewer_Resize(t *testing.T) {
	v, screen := newTestViewer(t, "default", nil)

	screen.SetSize(40, 13)
	v.handleEvent(tcell.NewEventResize(40, 13), time.Now())
	if cfg := v.renderer.Config(); cfg.Width != 40 || cfg.Height != 24 {
		t.Errorf("Expected a 40x24 renderer, got %dx%d", cfg.Width, cfg.Height)
	}
	if err := v.step(time.Now(), time.Second/20); err != nil {
		t.Errorf("step after resize failed: %v", err)
	}
}
