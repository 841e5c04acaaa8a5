package renderer

import (
	"image"
	"time"
)

// RenderStats contains statistics about a rendered frame
type RenderStats struct {
	TotalPixels  int           // Total number of pixels rendered
	LayerHits    []int         // Pixels coloured by each layer, nearest sphere first
	Misses       int           // Pixels whose ray reached no sphere
	PointsDrawn  int           // Points that landed on screen
	FanSolves    int           // Ray fan tables recomputed for this frame
	FanSolveTime time.Duration // Time spent recomputing ray fan tables
	RenderTime   time.Duration // Wall time of the whole frame
}

// merge adds the pixel counts of a band to the frame statistics
func (s *RenderStats) merge(band RenderStats) {
	s.TotalPixels += band.TotalPixels
	s.Misses += band.Misses
	for i, hits := range band.LayerHits {
		s.LayerHits[i] += hits
	}
}

// MissRatio returns the share of pixels that looked into the black hole
func (s RenderStats) MissRatio() float64 {
	if s.TotalPixels == 0 {
		return 0
	}
	return float64(s.Misses) / float64(s.TotalPixels)
}

// CalculateAverageLuminance returns the mean Rec. 709 luminance of an image in [0, 1]
func CalculateAverageLuminance(img *image.RGBA) float64 {
	bounds := img.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	if pixels == 0 {
		return 0
	}

	total := 0.0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			total += (0.2126*float64(c.R) + 0.7152*float64(c.G) + 0.0722*float64(c.B)) / 255
		}
	}
	return total / float64(pixels)
}
