// Command tui flies an observer around a black hole inside a terminal.
package main

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
	"github.com/df07/go-schwarzschild-raytracer/pkg/observer"
	"github.com/df07/go-schwarzschild-raytracer/pkg/pointcloud"
	"github.com/df07/go-schwarzschild-raytracer/pkg/renderer"
	"github.com/df07/go-schwarzschild-raytracer/pkg/scene"
)

const (
	// keyHold is how long a key press counts as held, terminals report no releases
	keyHold = 150 * time.Millisecond
	// arrowPixels is the camera movement of one arrow key press
	arrowPixels = 6.0
)

var runeKeys = map[rune]observer.Key{
	'w': observer.KeyForward,
	's': observer.KeyBackward,
	'a': observer.KeyLeft,
	'd': observer.KeyRight,
	' ': observer.KeyUp,
	'x': observer.KeyDown,
}

// alarm plays a sound when the observer crosses the horizon
type alarm interface {
	Play()
}

type beepAlarm struct {
	rate beep.SampleRate
}

func newBeepAlarm() (*beepAlarm, error) {
	rate := beep.SampleRate(44100)
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return nil, err
	}
	return &beepAlarm{rate: rate}, nil
}

// Play sounds a short low tone
func (a *beepAlarm) Play() {
	tone, err := generators.SineTone(a.rate, 110)
	if err != nil {
		return
	}
	speaker.Play(beep.Take(a.rate.N(400*time.Millisecond), tone))
}

// viewer draws two pixels per terminal cell, the last row holds the status line
type viewer struct {
	screen     tcell.Screen
	scene      *scene.Scene
	layers     []renderer.Layer
	observer   *observer.Observer
	controller *observer.Controller
	points     *pointcloud.PointCloud
	renderer   *renderer.SkyRenderer
	alarm      alarm
	logger     core.Logger

	held    map[observer.Key]time.Time // release time of held keys
	outside bool
	message string
}

func newViewer(screen tcell.Screen, s *scene.Scene, a alarm) (*viewer, error) {
	layers, err := s.Layers()
	if err != nil {
		return nil, err
	}
	v := &viewer{
		screen:     screen,
		scene:      s,
		layers:     layers,
		controller: observer.NewController(observer.DefaultSpeed),
		alarm:      a,
		logger:     core.NopLogger{},
		held:       make(map[observer.Key]time.Time),
	}

	w, h := v.imageSize()
	v.observer = s.NewObserver(w, h)
	v.outside = v.observer.RadialPosition() > s.SchwarzR
	if v.points, err = s.NewPointCloud(v.observer.Position()); err != nil {
		return nil, err
	}
	v.resize()
	return v, nil
}

// imageSize returns the pixel resolution of the screen
func (v *viewer) imageSize() (int, int) {
	cols, rows := v.screen.Size()
	return max(cols, 1), max(2*(rows-1), 2)
}

// resize recreates the renderer for the current screen size
func (v *viewer) resize() {
	if v.renderer != nil {
		v.renderer.Close()
	}
	w, h := v.imageSize()
	config := renderer.DefaultConfig()
	config.Width = w
	config.Height = h
	config.BandHeight = 4
	v.renderer = renderer.NewSkyRenderer(config, v.layers, v.logger)
	v.observer.UpdateScreenFormat(float64(w), float64(h))
}

func (v *viewer) close() {
	v.renderer.Close()
}

// handleEvent applies one terminal event, false when the viewer should quit
func (v *viewer) handleEvent(ev tcell.Event, now time.Time) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		v.screen.Sync()
		v.resize()

	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyLeft:
			v.controller.ProcessMouse(-arrowPixels, 0)
		case tcell.KeyRight:
			v.controller.ProcessMouse(arrowPixels, 0)
		case tcell.KeyUp:
			v.controller.ProcessMouse(0, -arrowPixels)
		case tcell.KeyDown:
			v.controller.ProcessMouse(0, arrowPixels)
		case tcell.KeyRune:
			return v.handleRune(ev.Rune(), now)
		}
	}
	return true
}

func (v *viewer) handleRune(r rune, now time.Time) bool {
	if r == 'q' {
		return false
	}
	if key, ok := runeKeys[r]; ok {
		v.controller.ProcessKey(key, true)
		v.held[key] = now.Add(keyHold)
		return true
	}
	if mode, ok := observer.ParseMode(r); ok {
		v.message = ""
		if err := observer.ApplyMode(v.observer, mode); err != nil {
			v.message = err.Error()
		}
	}
	return true
}

// releaseKeys lets go of keys not repeated within keyHold
func (v *viewer) releaseKeys(now time.Time) {
	for key, until := range v.held {
		if now.After(until) {
			v.controller.ProcessKey(key, false)
			delete(v.held, key)
		}
	}
}

// step advances the simulation and draws a frame
func (v *viewer) step(now time.Time, dt time.Duration) error {
	v.releaseKeys(now)
	v.controller.Update(v.observer, dt)

	outside := v.observer.RadialPosition() > v.scene.SchwarzR
	if v.outside && !outside && v.alarm != nil {
		v.alarm.Play()
	}
	v.outside = outside

	frame := renderer.Frame{Pipeline: v.observer.CalcTransformationPipeline()}
	if v.points != nil {
		v.points.Update(v.observer.Position(), dt)
		frame.Points = v.points.Vertices()
		frame.FarsidePoints = v.points.FarsideVertices()
	}

	img, _, err := v.renderer.Render(frame)
	if err != nil {
		return err
	}
	drawImage(v.screen, img)
	v.drawStatus()
	v.screen.Show()
	return nil
}

// drawImage puts two image rows into each cell with a half block
func drawImage(screen tcell.Screen, img *image.RGBA) {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y+1 < bounds.Max.Y; y += 2 {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			top := img.RGBAAt(x, y)
			bottom := img.RGBAAt(x, y+1)
			style := tcell.StyleDefault.
				Foreground(tcell.NewRGBColor(int32(top.R), int32(top.G), int32(top.B))).
				Background(tcell.NewRGBColor(int32(bottom.R), int32(bottom.G), int32(bottom.B)))
			screen.SetContent(x-bounds.Min.X, (y-bounds.Min.Y)/2, '▀', nil, style)
		}
	}
}

// statusLine describes the observer
func statusLine(o *observer.Observer) string {
	r := o.RadialPosition()
	if r <= o.SchwarzR() {
		return fmt.Sprintf(" r = %.2f  %s  inside the horizon", r, o.State())
	}
	return fmt.Sprintf(" r = %.2f  %s  orbit: %s", r, o.State(), o.OrbitStability(observer.OrbitRotation))
}

func (v *viewer) drawStatus() {
	cols, rows := v.screen.Size()
	stability := v.observer.OrbitStability(observer.OrbitRotation)
	c := stability.Color()
	r, g, b := c.RGB255()
	style := tcell.StyleDefault.
		Background(tcell.NewRGBColor(int32(r), int32(g), int32(b))).
		Foreground(tcell.ColorBlack)

	text := statusLine(v.observer)
	if v.message != "" {
		text += "  " + v.message
	}
	line := []rune(text)
	for x := 0; x < cols; x++ {
		ch := ' '
		if x < len(line) {
			ch = line[x]
		}
		v.screen.SetContent(x, rows-1, ch, nil, style)
	}
}

func (v *viewer) run(fps int) {
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	last := time.Now()
	for {
		select {
		case ev := <-events:
			if !v.handleEvent(ev, time.Now()) {
				return
			}
		case now := <-ticker.C:
			if err := v.step(now, min(now.Sub(last), 100*time.Millisecond)); err != nil {
				v.message = err.Error()
			}
			last = now
		}
	}
}

func main() {
	sceneID := flag.String("scene", "default", "Scene to show (see the main command's -list)")
	fps := flag.Int("fps", 20, "Frames per second")
	mute := flag.Bool("mute", false, "No sound when crossing the horizon")
	flag.Parse()

	s, err := scene.NewScene(*sceneID, renderer.NewDefaultLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var a alarm
	if !*mute {
		if ba, err := newBeepAlarm(); err != nil {
			// Non-fatal, the viewer runs without sound
			log.Printf("Audio initialization failed: %v", err)
		} else {
			a = ba
			defer speaker.Close()
		}
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}

	v, err := newViewer(screen, s, a)
	if err != nil {
		screen.Fini()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	v.run(max(*fps, 1))
	v.close()
	screen.Fini()
}
