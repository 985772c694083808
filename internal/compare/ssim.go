package compare

import "math"

// luminance extracts a float64 luma plane in [0,255]. Gray planes map
// directly; color planes use the Rec. 601 weights.
func luminance(p plane) []float64 {
	out := make([]float64, p.width*p.height)
	if p.stride == 1 {
		for i, v := range p.buf {
			out[i] = float64(v)
		}
		return out
	}
	for i := 0; i < len(out); i++ {
		o := i * 4
		r := float64(p.buf[o])
		g := float64(p.buf[o+1])
		b := float64(p.buf[o+2])
		out[i] = 0.299*r + 0.587*g + 0.114*b
	}
	return out
}

// gaussianKernel builds a normalized 1D Gaussian. The 2D window is the
// outer product, so valid-mode convolution runs as two separable passes.
func gaussianKernel(size int, sigma float64) []float64 {
	k := make([]float64, size)
	sum := 0.0
	mid := size / 2
	for i := range k {
		d := float64(i - mid)
		k[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// convolveValid applies the separable kernel in valid mode: the output
// shrinks by size-1 in each dimension.
func convolveValid(src []float64, w, h int, kernel []float64) ([]float64, int, int) {
	size := len(kernel)
	ow := w - size + 1
	oh := h - size + 1

	// Horizontal pass: ow x h
	tmp := make([]float64, ow*h)
	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < ow; x++ {
			acc := 0.0
			for i := 0; i < size; i++ {
				acc += src[row+x+i] * kernel[i]
			}
			tmp[y*ow+x] = acc
		}
	}

	// Vertical pass: ow x oh
	out := make([]float64, ow*oh)
	for y := 0; y < oh; y++ {
		for x := 0; x < ow; x++ {
			acc := 0.0
			for i := 0; i < size; i++ {
				acc += tmp[(y+i)*ow+x] * kernel[i]
			}
			out[y*ow+x] = acc
		}
	}
	return out, ow, oh
}

// ssim computes the mean structural similarity index between two luma
// planes of identical dimensions. When the image is smaller than the
// Gaussian window the windowed computation cannot run; a single global
// window is used instead and degraded=true flags the lower confidence.
func ssim(x, y []float64, w, h int) (value float64, degraded bool) {
	if w < SSIMWindowSize || h < SSIMWindowSize {
		return clamp01(globalSSIM(x, y)), true
	}

	kernel := gaussianKernel(SSIMWindowSize, SSIMSigma)

	xx := make([]float64, len(x))
	yy := make([]float64, len(y))
	xy := make([]float64, len(x))
	for i := range x {
		xx[i] = x[i] * x[i]
		yy[i] = y[i] * y[i]
		xy[i] = x[i] * y[i]
	}

	mu1, ow, oh := convolveValid(x, w, h, kernel)
	mu2, _, _ := convolveValid(y, w, h, kernel)
	s1, _, _ := convolveValid(xx, w, h, kernel)
	s2, _, _ := convolveValid(yy, w, h, kernel)
	s12, _, _ := convolveValid(xy, w, h, kernel)

	sum := 0.0
	n := ow * oh
	for i := 0; i < n; i++ {
		m1 := mu1[i]
		m2 := mu2[i]
		m1sq := m1 * m1
		m2sq := m2 * m2
		m1m2 := m1 * m2
		sigma1 := s1[i] - m1sq
		sigma2 := s2[i] - m2sq
		sigma12 := s12[i] - m1m2

		sum += ((2*m1m2 + ssimC1) * (2*sigma12 + ssimC2)) /
			((m1sq + m2sq + ssimC1) * (sigma1 + sigma2 + ssimC2))
	}
	return clamp01(sum / float64(n)), false
}

// globalSSIM evaluates the SSIM formula once over the whole plane with
// uniform weights. Coarse, but well-defined for tiny images.
func globalSSIM(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}

	var mu1, mu2 float64
	for i := range x {
		mu1 += x[i]
		mu2 += y[i]
	}
	mu1 /= n
	mu2 /= n

	var sigma1, sigma2, sigma12 float64
	for i := range x {
		dx := x[i] - mu1
		dy := y[i] - mu2
		sigma1 += dx * dx
		sigma2 += dy * dy
		sigma12 += dx * dy
	}
	sigma1 /= n
	sigma2 /= n
	sigma12 /= n

	return ((2*mu1*mu2 + ssimC1) * (2*sigma12 + ssimC2)) /
		((mu1*mu1 + mu2*mu2 + ssimC1) * (sigma1 + sigma2 + ssimC2))
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
