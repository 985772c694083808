package compare

import (
	"image"
	"image/color"
)

// highlight is the flat color marking changed pixels in the diff image.
// Binary changed/unchanged marking, no magnitude gradation.
var highlight = color.NRGBA{R: 255, A: 255}

// pixelDiff compares the two planes channel by channel. A pixel counts
// as different when any channel differs at all; there is no fuzz band.
// Returns the differing-pixel ratio and a diff image with every
// differing pixel marked and everything else transparent.
func pixelDiff(a, b plane) (float64, *image.NRGBA) {
	diff := image.NewNRGBA(image.Rect(0, 0, a.width, a.height))
	total := a.width * a.height
	if total == 0 {
		return 0, diff
	}

	changed := 0
	for y := 0; y < a.height; y++ {
		for x := 0; x < a.width; x++ {
			o := (y*a.width + x) * a.stride
			same := true
			for c := 0; c < a.stride; c++ {
				if a.buf[o+c] != b.buf[o+c] {
					same = false
					break
				}
			}
			if !same {
				changed++
				diff.SetNRGBA(x, y, highlight)
			}
		}
	}
	return float64(changed) / float64(total), diff
}
