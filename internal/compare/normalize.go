package compare

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// Mode is an image color mode. Conversion between modes is lossy and
// one-directional: the candidate is always converted to the baseline's
// mode, never the reverse.
type Mode string

const (
	ModeGray Mode = "gray"
	ModeRGB  Mode = "rgb"
	ModeRGBA Mode = "rgba"
)

// modeOf classifies an image by its concrete pixel layout. Alpha-less
// source formats (JPEG YCbCr, CMYK, paletted) report ModeRGB.
func modeOf(img image.Image) Mode {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return ModeGray
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return ModeRGBA
	default:
		return ModeRGB
	}
}

// plane is the canonical in-memory pixel grid a comparison runs on:
// width, height, mode and a flat 8-bit buffer. Gray planes carry one
// byte per pixel; RGB and RGBA planes are backed by NRGBA (four bytes
// per pixel, alpha opaque for RGB sources).
type plane struct {
	width  int
	height int
	mode   Mode
	stride int // bytes per pixel in buf
	buf    []uint8
	img    image.Image
}

// shapeMatches checks the post-normalization invariant: identical
// dimensions, channel layout and buffer length.
func (p plane) shapeMatches(q plane) bool {
	return p.width == q.width &&
		p.height == q.height &&
		p.stride == q.stride &&
		len(p.buf) == len(q.buf)
}

// toPlane renders img into the canonical buffer for mode. The source
// image is never mutated.
func toPlane(img image.Image, mode Mode) plane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if mode == ModeGray {
		dst := image.NewGray(image.Rect(0, 0, w, h))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return plane{width: w, height: h, mode: mode, stride: 1, buf: dst.Pix, img: dst}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return plane{width: w, height: h, mode: mode, stride: 4, buf: dst.Pix, img: dst}
}

// resizeTo scales img to w x h with Lanczos resampling. Dimension
// mismatches are compared at the baseline's canvas size rather than
// failed outright.
func resizeTo(img image.Image, w, h int) image.Image {
	return resize.Resize(uint(w), uint(h), img, resize.Lanczos3)
}
