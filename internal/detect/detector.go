// Package detect holds the local detector backends used when frames
// arrive as pixels instead of ready-made detection lists.
package detect

import (
	"context"

	"gridsight-go/internal/types"
)

// Detector turns a frame into a list of detections in the frame's own
// pixel space.
type Detector interface {
	Detect(ctx context.Context, frame types.Frame) ([]types.Detection, error)
}

// Nop always returns no detections. Used when no model is configured
// so the pipeline can still run and map empty lists.
type Nop struct{}

func (Nop) Detect(context.Context, types.Frame) ([]types.Detection, error) {
	return nil, nil
}
