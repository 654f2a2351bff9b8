package detect

import (
	"context"
	"fmt"
	"os"

	pigo "github.com/esimov/pigo/core"

	"gridsight-go/internal/geometry"
	"gridsight-go/internal/types"
)

// Pigo runs the pure-Go pigo cascade classifier over grayscale frames.
// Faces are reported under the "person" category so they flow through
// the shared vocabulary.
type Pigo struct {
	classifier  *pigo.Pigo
	minSize     int
	maxSize     int
	shiftFactor float64
	scaleFactor float64
	minQuality  float32
}

// NewPigo loads and unpacks a binary cascade file.
func NewPigo(cascadePath string) (*Pigo, error) {
	cascade, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("read cascade: %w", err)
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade: %w", err)
	}
	return &Pigo{
		classifier:  classifier,
		minSize:     60,
		maxSize:     1200,
		shiftFactor: 0.1,
		scaleFactor: 1.1,
		minQuality:  5.0,
	}, nil
}

func (p *Pigo) Detect(_ context.Context, frame types.Frame) ([]types.Detection, error) {
	if len(frame.Gray) != frame.Width*frame.Height {
		return nil, fmt.Errorf("frame buffer is %d bytes, want %d", len(frame.Gray), frame.Width*frame.Height)
	}

	params := pigo.CascadeParams{
		MinSize:     p.minSize,
		MaxSize:     p.maxSize,
		ShiftFactor: p.shiftFactor,
		ScaleFactor: p.scaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: frame.Gray,
			Rows:   frame.Height,
			Cols:   frame.Width,
			Dim:    frame.Width,
		},
	}

	dets := p.classifier.RunCascade(params, 0.0)
	dets = p.classifier.ClusterDetections(dets, 0.2)

	out := make([]types.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Q < p.minQuality {
			continue
		}
		half := float64(d.Scale) / 2
		out = append(out, types.Detection{
			Class: "person",
			// Cascade quality is roughly 0..10 for clustered
			// results; squash it into [0,1].
			Score: clampScore(float64(d.Q) / 10),
			Box: geometry.Rect{
				X: float64(d.Col) - half,
				Y: float64(d.Row) - half,
				W: float64(d.Scale),
				H: float64(d.Scale),
			},
		})
	}
	return out, nil
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
