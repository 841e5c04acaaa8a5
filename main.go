package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/guptarohit/asciigraph"

	"github.com/df07/go-schwarzschild-raytracer/pkg/connector"
	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
	"github.com/df07/go-schwarzschild-raytracer/pkg/observer"
	"github.com/df07/go-schwarzschild-raytracer/pkg/rayfan"
	"github.com/df07/go-schwarzschild-raytracer/pkg/renderer"
	"github.com/df07/go-schwarzschild-raytracer/pkg/scene"
)

const frameTime = time.Second / 60

// snapshotOptions control a single command line render
type snapshotOptions struct {
	Width   int
	Height  int
	Frames  int
	Mode    observer.Mode
	Workers int
	HUD     bool
}

// snapshot is the result of a command line render
type snapshot struct {
	Image    *image.RGBA
	Stats    renderer.RenderStats
	Observer *observer.Observer
	Tables   [][]float32
}

func main() {
	// Parse command line flags
	sceneID := flag.String("scene", "default", "Scene id, see -list")
	modeName := flag.String("mode", "frozen-fall", "Motion mode: unmoving, frozen-fall, central-fall or orbit")
	frames := flag.Int("frames", 0, "Number of 60 Hz frames to simulate before the snapshot")
	width := flag.Int("width", 640, "Image width")
	height := flag.Int("height", 360, "Image height")
	workers := flag.Int("workers", 0, "Number of render workers (0 = number of CPUs)")
	output := flag.String("output", "", "Output PNG file (default output/<scene>/render_<timestamp>.png)")
	hud := flag.Bool("hud", true, "Draw the observer state into the image")
	plot := flag.String("plot", "", "Plot 'fan' (ray fan of the sky sphere) or 'profile' (a connecting ray) to the terminal")
	list := flag.Bool("list", false, "List the available scenes")
	help := flag.Bool("help", false, "Show help information")
	flag.Parse()

	// Show help if requested
	if *help {
		fmt.Println("Schwarzschild Raytracer")
		fmt.Println("Usage: blackhole [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Output will be saved to output/<scene>/render_<timestamp>.png")
		return
	}

	if *list {
		if err := printScenes(); err != nil {
			fmt.Printf("Error listing scenes: %v\n", err)
			os.Exit(1)
		}
		return
	}

	mode, err := parseMode(*modeName)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(2)
	}

	selectedScene, err := createScene(*sceneID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("Using scene %s (R = %g)...\n", selectedScene.Name, selectedScene.SchwarzR)

	startTime := time.Now()
	shot, err := renderSnapshot(selectedScene, snapshotOptions{
		Width:   *width,
		Height:  *height,
		Frames:  *frames,
		Mode:    mode,
		Workers: *workers,
		HUD:     *hud,
	})
	if err != nil {
		fmt.Printf("Error rendering: %v\n", err)
		os.Exit(1)
	}
	renderTime := time.Since(startTime)

	fmt.Printf("Render completed in %v\n", renderTime)
	fmt.Printf("Observer at r = %.3f, %s\n", shot.Observer.RadialPosition(), shot.Observer.State())
	fmt.Printf("Ray fans solved: %d in %v, sky misses: %.1f%%, points drawn: %d\n",
		shot.Stats.FanSolves, shot.Stats.FanSolveTime, 100*shot.Stats.MissRatio(), shot.Stats.PointsDrawn)
	fmt.Printf("Average luminance: %.3f\n", renderer.CalculateAverageLuminance(shot.Image))

	switch *plot {
	case "":
	case "fan":
		fmt.Println(plotRayFan(shot.Tables[0]))
	case "profile":
		fmt.Println(plotRayProfile(selectedScene.SchwarzR, shot.Observer.Position()))
	default:
		fmt.Printf("Unknown plot %q, expected 'fan' or 'profile'\n", *plot)
	}

	filename := *output
	if filename == "" {
		// Create timestamped filename
		outputDir := filepath.Join("output", strings.ReplaceAll(*sceneID, ":", "_"))
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			fmt.Printf("Error creating output directory: %v\n", err)
			os.Exit(1)
		}
		timestamp := time.Now().Format("20060102_150405")
		filename = filepath.Join(outputDir, fmt.Sprintf("render_%s.png", timestamp))
	}

	if err := savePNG(filename, shot.Image); err != nil {
		fmt.Printf("Error saving PNG: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Render saved as %s\n", filename)
}

// createScene looks up a scene with console logging
func createScene(id string) (*scene.Scene, error) {
	return scene.NewScene(id, renderer.NewDefaultLogger())
}

// parseMode maps a mode name to an observer mode
func parseMode(name string) (observer.Mode, error) {
	switch name {
	case "unmoving":
		return observer.ModeUnmoving, nil
	case "frozen-fall":
		return observer.ModeFrozenFall, nil
	case "central-fall":
		return observer.ModeCentralFall, nil
	case "orbit":
		return observer.ModeOrbit, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", name)
	}
}

// renderSnapshot simulates the scene for opts.Frames frames and renders the last one
func renderSnapshot(s *scene.Scene, opts snapshotOptions) (*snapshot, error) {
	layers, err := s.Layers()
	if err != nil {
		return nil, err
	}

	config := renderer.DefaultConfig()
	config.Width = opts.Width
	config.Height = opts.Height
	config.NumWorkers = opts.Workers
	sr := renderer.NewSkyRenderer(config, layers, renderer.NewDefaultLogger())
	defer sr.Close()

	o := s.NewObserver(opts.Width, opts.Height)
	if err := observer.ApplyMode(o, opts.Mode); err != nil {
		return nil, err
	}

	pc, err := s.NewPointCloud(o.Position())
	if err != nil {
		return nil, err
	}

	for i := 0; i < opts.Frames; i++ {
		o.UpdatePosition(core.Vec3{})
		if pc != nil {
			pc.Update(o.Position(), frameTime)
		}
	}

	frame := renderer.Frame{Pipeline: o.CalcTransformationPipeline()}
	if pc != nil {
		frame.Points = pc.Vertices()
		frame.FarsidePoints = pc.FarsideVertices()
	}

	img, stats, err := sr.Render(frame)
	if err != nil {
		return nil, err
	}
	if opts.HUD {
		renderer.DrawHUD(img, hudLines(o))
	}

	tables := make([][]float32, len(sr.Layers()))
	for i := range tables {
		tables[i] = sr.Table(i)
	}

	return &snapshot{Image: img, Stats: stats, Observer: o, Tables: tables}, nil
}

// hudLines describes the observer state
func hudLines(o *observer.Observer) []string {
	lines := []string{
		fmt.Sprintf("r = %.2f (R = %g)", o.RadialPosition(), o.SchwarzR()),
		o.State().String(),
	}
	if o.RadialPosition() > o.SchwarzR() {
		lines = append(lines, "orbit: "+o.OrbitStability(observer.OrbitRotation).String())
	} else {
		lines = append(lines, "inside the horizon")
	}
	return lines
}

// plotRayFan plots the sky sphere hit angle over the emission angle, gaps are
// rays that fall into the black hole
func plotRayFan(table []float32) string {
	if len(table) == 0 {
		return "no ray fan"
	}
	values := make([]float64, len(table))
	for i, v := range table {
		values[i] = float64(v)
		if v == rayfan.NoValue {
			values[i] = math.NaN()
		}
	}
	return asciigraph.Plot(values,
		asciigraph.Height(12),
		asciigraph.Width(72),
		asciigraph.Caption("pi/2 - travelled angle over emission angle (0 = towards the centre)"))
}

// plotRayProfile plots the radius along the light ray connecting the
// observer with a point on the far side of the black hole
func plotRayProfile(schwarzR float64, observerPos core.Vec3) string {
	target := observerPos.Negate().Add(core.NewVec3(0, 0, 4*schwarzR+5))
	rc := connector.New(schwarzR, target, true)
	rc.ResetRay(observerPos)
	for i := 0; i < 10; i++ {
		rc.UpdateRay(observerPos, 1)
	}
	return asciigraph.Plot(rc.Profile(),
		asciigraph.Height(12),
		asciigraph.Width(72),
		asciigraph.Caption(fmt.Sprintf("radius along the ray, %.1f degrees around the centre", rc.LastPhi()*180/math.Pi)))
}

// printScenes lists built-in and model scenes by group
func printScenes() error {
	response, err := scene.ListScenes()
	if err != nil {
		return err
	}
	for _, group := range response.Groups {
		fmt.Printf("%s:\n", group.Name)
		for _, s := range group.Scenes {
			fmt.Printf("  %-20s %s\n", s.ID, s.Description)
		}
	}
	return nil
}

func savePNG(filename string, img image.Image) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
