// Package compare implements the screenshot comparison engine: perceptual
// hash distance, structural similarity and strict pixel diff over a pair
// of normalized images, reconciled into a verdict against a threshold.
//
// Compare is a stateless pure function of its inputs: no I/O, no shared
// state, safe for concurrent use. Inputs are never mutated.
package compare

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder

	"github.com/corona10/goimagehash"

	apperrors "github.com/snapdiff/snapdiff/internal/errors"
)

// Options tunes a Comparator. Zero values select the defaults.
type Options struct {
	// HashSize is the average-hash grid size per side.
	HashSize int
}

func (o Options) withDefaults() Options {
	if o.HashSize <= 0 {
		o.HashSize = DefaultHashSize
	}
	return o
}

// Comparator produces similarity verdicts between screen captures.
type Comparator struct {
	opts Options
}

// New creates a comparator.
func New(opts Options) *Comparator {
	return &Comparator{opts: opts.withDefaults()}
}

// Compare runs the default comparator over a pair of images.
func Compare(a, b image.Image, threshold float64) Result {
	return New(Options{}).Compare(a, b, threshold)
}

// Compare computes three independent similarity signals between the
// baseline a and the candidate b, then gates the verdict on threshold:
//
//	similar = hashSimilarity >= threshold && ssim >= threshold
//
// The pixel-difference ratio is diagnostic only; exact pixel equality is
// too strict for real rendering noise (font hinting, anti-aliasing).
//
// The candidate is normalized to the baseline's color mode and
// dimensions before any signal is computed. All failure paths resolve to
// a well-formed Result; Compare never returns an error or panics.
func (c *Comparator) Compare(a, b image.Image, threshold float64) Result {
	if a == nil || b == nil {
		return failedResult(apperrors.CodeInvalidArgument, "nil image", threshold)
	}
	aw, ah := a.Bounds().Dx(), a.Bounds().Dy()
	bw, bh := b.Bounds().Dx(), b.Bounds().Dy()
	if aw == 0 || ah == 0 || bw == 0 || bh == 0 {
		return failedResult(apperrors.CodeInvalidArgument, "zero-size image", threshold)
	}

	// Normalize: candidate adopts the baseline's mode and canvas size.
	mode := modeOf(a)
	if bw != aw || bh != ah {
		b = resizeTo(b, aw, ah)
	}
	pa := toPlane(a, mode)
	pb := toPlane(b, mode)

	// Should not occur after normalization, but a mismatched shape would
	// corrupt every signal below.
	if !pa.shapeMatches(pb) {
		return failedResult(apperrors.CodeShapeMismatch,
			fmt.Sprintf("post-normalization shape mismatch: %dx%dx%d vs %dx%dx%d",
				pa.width, pa.height, pa.stride, pb.width, pb.height, pb.stride),
			threshold)
	}

	hashSim, err := c.hashSimilarity(pa.img, pb.img)
	if err != nil {
		return failedResult(apperrors.CodeInternal, "perceptual hash: "+err.Error(), threshold)
	}

	lumaA := luminance(pa)
	lumaB := luminance(pb)
	ssimVal, degraded := ssim(lumaA, lumaB, pa.width, pa.height)

	ratio, diff := pixelDiff(pa, pb)

	r := Result{
		Similar:        hashSim >= threshold && ssimVal >= threshold,
		HashSimilarity: hashSim,
		SSIM:           ssimVal,
		PixelDiffRatio: ratio,
		Threshold:      threshold,
		Degraded:       degraded,
		Diff:           diff,
	}
	if degraded {
		r.ErrCode = apperrors.CodeDegraded
		r.ErrReason = "ssim computed over a single global window"
	}
	return r
}

// CompareData decodes two encoded images (PNG or JPEG) and compares
// them. Corrupt buffers yield a decode_failure result, never an error.
func (c *Comparator) CompareData(a, b []byte, threshold float64) Result {
	imgA, _, err := image.Decode(bytes.NewReader(a))
	if err != nil {
		return failedResult(apperrors.CodeDecodeFailure, "decode baseline: "+err.Error(), threshold)
	}
	imgB, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return failedResult(apperrors.CodeDecodeFailure, "decode candidate: "+err.Error(), threshold)
	}
	return c.Compare(imgA, imgB, threshold)
}

// hashSimilarity computes average-hash fingerprints and maps Hamming
// distance into [0,1]: 1 - distance/bits.
func (c *Comparator) hashSimilarity(a, b image.Image) (float64, error) {
	size := c.opts.HashSize
	hashA, err := goimagehash.ExtAverageHash(a, size, size)
	if err != nil {
		return 0, err
	}
	hashB, err := goimagehash.ExtAverageHash(b, size, size)
	if err != nil {
		return 0, err
	}
	dist, err := hashA.Distance(hashB)
	if err != nil {
		return 0, err
	}
	bits := size * size
	return 1 - float64(dist)/float64(bits), nil
}
