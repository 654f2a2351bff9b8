//go:build !gocv

package detect

import "errors"

// NewDNN is only available when built with -tags gocv.
func NewDNN(_, _ string) (Detector, error) {
	return nil, errors.New("gocv detector not enabled; build with -tags gocv")
}
