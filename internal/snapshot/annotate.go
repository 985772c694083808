package snapshot

import (
	"image"
	"image/color"
	"image/draw"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	annotatePadding = 5
	lineHeight      = 14 // Face7x13 plus leading
	glyphAdvance    = 7  // Face7x13 fixed advance
)

// Annotate stamps a note and a timestamp onto a copy of img. The source
// image is not modified.
func Annotate(img image.Image, note string) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	lines := []string{note, time.Now().Format("2006-01-02 15:04:05")}

	maxLen := 0
	for _, l := range lines {
		if len(l) > maxLen {
			maxLen = len(l)
		}
	}

	// Dark backdrop so the label stays legible on any capture.
	box := image.Rect(
		annotatePadding,
		annotatePadding,
		annotatePadding+maxLen*glyphAdvance+2*annotatePadding,
		annotatePadding+len(lines)*lineHeight+annotatePadding,
	).Intersect(dst.Bounds())
	draw.Draw(dst, box, image.NewUniform(color.NRGBA{A: 128}), image.Point{}, draw.Over)

	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		d.Dot = fixed.P(2*annotatePadding, 2*annotatePadding+i*lineHeight+basicfont.Face7x13.Ascent)
		d.DrawString(l)
	}
	return dst
}
