//go:build no_cgo

package refine

import "github.com/pkg/errors"

// NewMMA is not supported on no_cgo builds; refinements fall back.
func NewMMA(n int, b Budget) (Optimizer, error) {
	return nil, errors.New("nlopt is not supported on this build")
}
