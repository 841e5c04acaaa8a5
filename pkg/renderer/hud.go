package renderer

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	hudMargin     = 6
	hudLineHeight = 15
)

// DrawHUD writes lines of text into the top left corner of img on a
// translucent backdrop
func DrawHUD(img *image.RGBA, lines []string) {
	if len(lines) == 0 {
		return
	}
	face := basicfont.Face7x13

	width := 0
	for _, line := range lines {
		width = max(width, font.MeasureString(face, line).Ceil())
	}
	backdrop := image.Rect(0, 0, width+2*hudMargin, len(lines)*hudLineHeight+2*hudMargin).Intersect(img.Bounds())
	draw.Draw(img, backdrop, image.NewUniform(color.RGBA{A: 160}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 230, G: 230, B: 230, A: 255}),
		Face: face,
	}
	for i, line := range lines {
		d.Dot = fixed.P(hudMargin, hudMargin+(i+1)*hudLineHeight-3)
		d.DrawString(line)
	}
}
