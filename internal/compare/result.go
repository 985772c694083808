package compare

import (
	"image"

	apperrors "github.com/snapdiff/snapdiff/internal/errors"
)

// Result is the immutable outcome of a single comparison. Failures are
// carried inside the result: callers never see an error or a panic from
// Compare, so "comparison failed" and "images differ" assert the same way.
type Result struct {
	Similar        bool    `json:"similar"`
	HashSimilarity float64 `json:"hash_similarity"`
	SSIM           float64 `json:"ssim"`
	PixelDiffRatio float64 `json:"pixel_difference_ratio"`
	Threshold      float64 `json:"threshold"`

	// Degraded marks a lower-confidence result where a secondary signal
	// (SSIM windowing) could not run at full fidelity.
	Degraded bool `json:"degraded,omitempty"`

	ErrCode   apperrors.Code `json:"error_code,omitempty"`
	ErrReason string         `json:"error,omitempty"`

	// Diff marks every differing pixel; ownership transfers to the caller.
	// Nil on failed comparisons.
	Diff *image.NRGBA `json:"-"`
}

// Failed reports whether the comparison could not be computed at all.
func (r Result) Failed() bool { return r.ErrCode != "" && r.ErrCode != apperrors.CodeDegraded }

// failedResult builds the uniform failure shape: similar=false, scores
// defaulted to zero, reason populated.
func failedResult(code apperrors.Code, reason string, threshold float64) Result {
	return Result{
		Similar:   false,
		Threshold: threshold,
		ErrCode:   code,
		ErrReason: reason,
	}
}
