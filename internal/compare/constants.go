package compare

// Comparison defaults and SSIM constants.
const (
	// DefaultThreshold gates the similarity verdict.
	DefaultThreshold = 0.95

	// DefaultHashSize is the average-hash grid size (8x8 = 64 bits).
	DefaultHashSize = 8

	// SSIM windowing per Wang et al.: 11x11 Gaussian, sigma 1.5.
	SSIMWindowSize = 11
	SSIMSigma      = 1.5

	// Stabilization constants for 8-bit dynamic range.
	ssimC1 = (0.01 * 255) * (0.01 * 255)
	ssimC2 = (0.03 * 255) * (0.03 * 255)
)
