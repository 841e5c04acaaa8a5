// Package renderer turns the per frame output of the observer into images on
// the CPU. Every pixel follows the same chain of transformations a fragment
// shader would: display direction, movement frame, aberration, central frame,
// ray fan lookup and finally a texture on the hit sphere.
package renderer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
	"time"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
	"github.com/df07/go-schwarzschild-raytracer/pkg/observer"
	"github.com/df07/go-schwarzschild-raytracer/pkg/rayfan"
)

// ErrClosed is returned when rendering with a closed renderer
var ErrClosed = errors.New("renderer: closed")

// DefaultLogger implements core.Logger by writing to stdout
type DefaultLogger struct{}

func (dl *DefaultLogger) Printf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// NewDefaultLogger creates a new default logger
func NewDefaultLogger() core.Logger {
	return &DefaultLogger{}
}

// Config contains configuration for the sky renderer
type Config struct {
	Width        int            // Image width in pixels
	Height       int            // Image height in pixels
	BandHeight   int            // Rows per worker task
	NumWorkers   int            // Number of parallel workers (0 = use CPU count)
	PointColor   colorful.Color // Colour added per near side point
	FarsideColor colorful.Color // Colour added per far side point
}

// DefaultConfig returns sensible default values
func DefaultConfig() Config {
	return Config{
		Width:        640,
		Height:       360,
		BandHeight:   16,
		NumWorkers:   0, // Auto-detect CPU count
		PointColor:   colorful.Color{R: 1, G: 0.85, B: 0.55},
		FarsideColor: colorful.Color{R: 0.45, G: 0.6, B: 1},
	}
}

// Layer is a textured sphere around the black hole
type Layer struct {
	Tracer  *rayfan.SphereRayTracer
	Texture Texture
}

// Frame is everything needed to draw one image
type Frame struct {
	Pipeline      observer.TransformationPipeline
	Points        [][4]float32 // [x, y, z, incoming angle], may be nil
	FarsidePoints [][4]float32 // far side rays, may be nil
}

// SkyRenderer draws frames with a persistent worker pool. It is not safe
// for concurrent use.
type SkyRenderer struct {
	config    Config
	layers    []Layer
	tables    [][]float32
	fanRadius float64
	pool      *WorkerPool
	logger    core.Logger
	closed    bool
}

// NewSkyRenderer creates a renderer for the given spheres. Layers are
// searched from the smallest sphere outwards.
func NewSkyRenderer(config Config, layers []Layer, logger core.Logger) *SkyRenderer {
	if config.BandHeight <= 0 {
		config.BandHeight = DefaultConfig().BandHeight
	}
	if logger == nil {
		logger = core.NopLogger{}
	}

	sorted := append([]Layer(nil), layers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Tracer.SphereR() < sorted[j].Tracer.SphereR()
	})

	pool := NewWorkerPool(config.Height, config.BandHeight, config.NumWorkers)
	pool.Start()

	return &SkyRenderer{
		config:    config,
		layers:    sorted,
		tables:    make([][]float32, len(sorted)),
		fanRadius: math.NaN(),
		pool:      pool,
		logger:    logger,
	}
}

// Close stops the worker pool
func (sr *SkyRenderer) Close() {
	sr.closed = true
	sr.pool.Stop()
}

// Config returns the renderer configuration
func (sr *SkyRenderer) Config() Config {
	return sr.config
}

// Table returns the current ray fan of layer i. The slice is overwritten
// when the observer radius changes.
func (sr *SkyRenderer) Table(i int) []float32 {
	return sr.tables[i]
}

// Layers returns the layers ordered from the smallest sphere outwards
func (sr *SkyRenderer) Layers() []Layer {
	return sr.layers
}

// updateFans solves the ray fans again when the observer radius changed
func (sr *SkyRenderer) updateFans(r float64, stats *RenderStats) {
	if r == sr.fanRadius {
		return
	}
	start := time.Now()
	for i, layer := range sr.layers {
		sr.tables[i] = layer.Tracer.SolveRayFan(r)
	}
	sr.fanRadius = r
	stats.FanSolves = len(sr.layers)
	stats.FanSolveTime = time.Since(start)
}

// Render draws a frame
func (sr *SkyRenderer) Render(f Frame) (*image.RGBA, RenderStats, error) {
	if sr.closed {
		return nil, RenderStats{}, ErrClosed
	}
	start := time.Now()
	stats := RenderStats{LayerHits: make([]int, len(sr.layers))}

	pos := f.Pipeline.Position()
	sr.updateFans(pos.Length(), &stats)

	state := sr.newFrameState(f.Pipeline)

	bands := 0
	for y := 0; y < sr.config.Height; y += sr.config.BandHeight {
		bounds := image.Rect(0, y, sr.config.Width, min(y+sr.config.BandHeight, sr.config.Height))
		sr.pool.SubmitTask(BandTask{Bounds: bounds, TaskID: bands, Frame: state})
		bands++
	}

	for i := 0; i < bands; i++ {
		result, ok := sr.pool.GetResult()
		if !ok {
			return nil, RenderStats{}, fmt.Errorf("worker pool closed unexpectedly")
		}
		stats.merge(result.Stats)
	}

	stats.PointsDrawn = state.splatPoints(f.Points, false, sr.config.PointColor) +
		state.splatPoints(f.FarsidePoints, true, sr.config.FarsideColor)

	stats.RenderTime = time.Since(start)
	return state.img, stats, nil
}

// frameState holds the matrices of one frame in float64
type frameState struct {
	img           *image.RGBA
	width, height int

	displayToMovement core.Mat3
	movementToDisplay core.Mat3
	invertible        bool
	movementToCentral core.Mat3
	centralToUV       core.Mat3
	standardToCentral core.Mat3
	psiFactor         float64
	hasPosition       bool

	layers []Layer
	tables [][]float32
}

func (sr *SkyRenderer) newFrameState(p observer.TransformationPipeline) *frameState {
	fs := &frameState{
		img:               image.NewRGBA(image.Rect(0, 0, sr.config.Width, sr.config.Height)),
		width:             sr.config.Width,
		height:            sr.config.Height,
		displayToMovement: observer.Mat3FromMat4(p.DisplayToMovement),
		movementToCentral: observer.Mat3FromMat4(p.MovementToCentral),
		centralToUV:       observer.Mat3FromMat4(p.CentralToUV),
		psiFactor:         p.PsiFactor(),
		layers:            sr.layers,
		tables:            sr.tables,
	}
	fs.movementToDisplay, fs.invertible = fs.displayToMovement.Inverse()

	pos := p.Position()
	if pos.LengthSquared() > 0 {
		fs.hasPosition = true
		fs.standardToCentral = core.LookToVecMat(pos.Negate()).Transpose()
	}
	return fs
}

// displayVector returns the unnormalised view direction of a pixel centre.
// Display x points down and y to the left.
func (fs *frameState) displayVector(x, y float64) core.Vec3 {
	s := 2*(x+0.5)/float64(fs.width) - 1
	t := 2*(y+0.5)/float64(fs.height) - 1
	return core.NewVec3(t, -s, 1)
}

// aberrate maps a direction seen by an observer moving along z with speed v
// to the direction seen by a static observer. A negative v is the inverse.
func aberrate(d core.Vec3, v float64) core.Vec3 {
	if v == 0 {
		return d
	}
	cosMoving := max(-1, min(1, d.Z))
	cosStatic := (cosMoving - v) / (1 - v*cosMoving)
	sinStatic := math.Sqrt(max(0, 1-cosStatic*cosStatic))

	transverse := math.Hypot(d.X, d.Y)
	if transverse < 1e-12 {
		return core.NewVec3(0, 0, core.Signum(cosStatic))
	}
	scale := sinStatic / transverse
	return core.NewVec3(d.X*scale, d.Y*scale, cosStatic)
}

// trace returns the colour seen in the display direction and the index of
// the layer that was hit, -1 for none
func (fs *frameState) trace(display core.Vec3) (core.Vec3, int) {
	movement := fs.displayToMovement.MulVec(display).Normalize()
	central := fs.movementToCentral.MulVec(aberrate(movement, fs.psiFactor))

	alpha := math.Acos(max(-1, min(1, central.Z)))
	beta := math.Atan2(central.Y, central.X)
	sinBeta, cosBeta := math.Sincos(beta)

	for i, layer := range fs.layers {
		value, ok := rayfan.Lookup(fs.tables[i], alpha)
		if !ok {
			continue
		}
		sinPhi, cosPhi := math.Sincos(math.Pi/2 - value)
		hit := fs.centralToUV.MulVec(core.NewVec3(sinPhi*cosBeta, sinPhi*sinBeta, cosPhi))
		return layer.Texture.ColorAt(hit), i
	}
	return core.Vec3{}, -1
}

// renderBounds renders the pixels within bounds into the frame image
func (fs *frameState) renderBounds(bounds image.Rectangle) RenderStats {
	stats := RenderStats{
		TotalPixels: bounds.Dx() * bounds.Dy(),
		LayerHits:   make([]int, len(fs.layers)),
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			col, layer := fs.trace(fs.displayVector(float64(x), float64(y)))
			if layer < 0 {
				stats.Misses++
			} else {
				stats.LayerHits[layer]++
			}
			fs.img.SetRGBA(x, y, vec3ToColor(col))
		}
	}
	return stats
}

// project maps a point vertex to pixel coordinates. Far side rays arrive
// from the opposite side of the centre.
func (fs *frameState) project(v [4]float32) (float64, float64, bool) {
	if !fs.invertible || !fs.hasPosition {
		return 0, 0, false
	}
	pos := core.NewVec3(float64(v[0]), float64(v[1]), float64(v[2]))
	central := fs.standardToCentral.MulVec(pos)

	alpha := float64(v[3])
	beta := math.Atan2(central.Y, central.X)
	if alpha < 0 {
		alpha = -alpha
		beta += math.Pi
	}
	sinAlpha, cosAlpha := math.Sincos(alpha)
	sinBeta, cosBeta := math.Sincos(beta)
	incoming := core.NewVec3(sinAlpha*cosBeta, sinAlpha*sinBeta, cosAlpha)

	static := fs.movementToCentral.Transpose().MulVec(incoming)
	display := fs.movementToDisplay.MulVec(aberrate(static, -fs.psiFactor))
	if display.Z <= 1e-9 {
		return 0, 0, false
	}

	t := display.X / display.Z
	s := -display.Y / display.Z
	x := (s+1)/2*float64(fs.width) - 0.5
	y := (t+1)/2*float64(fs.height) - 0.5
	return x, y, true
}

// splatPoints adds the colour of every visible point to its nearest pixel
// and returns how many landed on screen
func (fs *frameState) splatPoints(points [][4]float32, farside bool, c colorful.Color) int {
	drawn := 0
	for _, v := range points {
		if math.IsNaN(float64(v[3])) {
			continue
		}
		x, y, ok := fs.project(v)
		if !ok {
			continue
		}
		px, py := int(math.Round(x)), int(math.Round(y))
		if px < 0 || py < 0 || px >= fs.width || py >= fs.height {
			continue
		}
		fs.img.SetRGBA(px, py, addColor(fs.img.RGBAAt(px, py), c))
		drawn++
	}
	return drawn
}

func addColor(dst color.RGBA, c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{
		R: uint8(min(255, int(dst.R)+int(r))),
		G: uint8(min(255, int(dst.G)+int(g))),
		B: uint8(min(255, int(dst.B)+int(b))),
		A: 255,
	}
}

// vec3ToColor converts a Vec3 color to RGBA with clamping
func vec3ToColor(colorVec core.Vec3) color.RGBA {
	colorVec = colorVec.Clamp(0.0, 1.0)

	return color.RGBA{
		R: uint8(255 * colorVec.X),
		G: uint8(255 * colorVec.Y),
		B: uint8(255 * colorVec.Z),
		A: 255,
	}
}
