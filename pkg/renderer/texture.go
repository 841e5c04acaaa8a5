package renderer

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/df07/go-schwarzschild-raytracer/pkg/core"
)

// Texture colours a sphere. dir is the unit vector from the centre to the
// hit point in world coordinates.
type Texture interface {
	ColorAt(dir core.Vec3) core.Vec3
}

// sphereUV maps a unit vector to equirectangular texture coordinates in [0, 1]
func sphereUV(dir core.Vec3) (float64, float64) {
	polar := core.CartesianToPolar(dir)
	u := polar.Y/(2*math.Pi) + 0.5
	v := 0.5 - polar.Z/math.Pi
	return u, v
}

// CheckerTexture paints a checker board in longitude and latitude. The
// longitude bands cycle through hues so the direction of a lensed image
// stays recognisable.
type CheckerTexture struct {
	Columns int // Checker cells around the equator
	Rows    int // Checker cells from pole to pole
	Dark    float64 // Brightness of the dark cells, 0 is black
	colors  []colorful.Color
}

// NewCheckerTexture creates a checker texture with one hue per column
func NewCheckerTexture(columns, rows int, dark float64) *CheckerTexture {
	colors := make([]colorful.Color, columns)
	for i := range colors {
		colors[i] = colorful.Hcl(360*float64(i)/float64(columns), 0.6, 0.75).Clamped()
	}
	return &CheckerTexture{
		Columns: columns,
		Rows:    rows,
		Dark:    dark,
		colors:  colors,
	}
}

// ColorAt implements Texture
func (c *CheckerTexture) ColorAt(dir core.Vec3) core.Vec3 {
	u, v := sphereUV(dir)
	col := min(int(u*float64(c.Columns)), c.Columns-1)
	row := min(int(v*float64(c.Rows)), c.Rows-1)

	hue := c.colors[col]
	if (col+row)%2 == 1 {
		hue = hue.BlendLab(colorful.Color{}, 1-c.Dark).Clamped()
	}
	return core.NewVec3(hue.R, hue.G, hue.B)
}

// SolidTexture has a single colour
type SolidTexture struct {
	Color core.Vec3
}

// ColorAt implements Texture
func (s SolidTexture) ColorAt(dir core.Vec3) core.Vec3 {
	return s.Color
}

// ImageTexture wraps an equirectangular image around a sphere
type ImageTexture struct {
	Width  int
	Height int
	Pixels []core.Vec3 // row major, top row first
}

// NewImageTexture creates a texture from loaded pixel data
func NewImageTexture(width, height int, pixels []core.Vec3) *ImageTexture {
	return &ImageTexture{Width: width, Height: height, Pixels: pixels}
}

// ColorAt implements Texture with nearest neighbour sampling
func (t *ImageTexture) ColorAt(dir core.Vec3) core.Vec3 {
	if t.Width == 0 || t.Height == 0 {
		return core.Vec3{}
	}
	u, v := sphereUV(dir)
	x := max(0, min(int(u*float64(t.Width)), t.Width-1))
	y := max(0, min(int(v*float64(t.Height)), t.Height-1))
	return t.Pixels[y*t.Width+x]
}
