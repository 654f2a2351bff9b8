//go:build gocv

package detect

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"gridsight-go/internal/geometry"
	"gridsight-go/internal/labels"
	"gridsight-go/internal/types"
)

// dnn runs a MobileNet-SSD style network through OpenCV's DNN module.
// The network reports class ids into the shared 80-name vocabulary and
// boxes normalized to [0,1] of the input frame.
type dnn struct {
	net       gocv.Net
	inputSize int
	minScore  float32
}

// NewDNN loads a frozen graph plus its text config.
func NewDNN(modelPath, configPath string) (Detector, error) {
	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("read model %q", modelPath)
	}
	return &dnn{net: net, inputSize: 300, minScore: 0.2}, nil
}

func (d *dnn) Close() error {
	return d.net.Close()
}

func (d *dnn) Detect(_ context.Context, frame types.Frame) ([]types.Detection, error) {
	if len(frame.Gray) != frame.Width*frame.Height {
		return nil, fmt.Errorf("frame buffer is %d bytes, want %d", len(frame.Gray), frame.Width*frame.Height)
	}

	gray, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8U, frame.Gray)
	if err != nil {
		return nil, fmt.Errorf("wrap frame: %w", err)
	}
	defer gray.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)

	blob := gocv.BlobFromImage(bgr, 1.0/127.5, image.Pt(d.inputSize, d.inputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	results := d.net.Forward("")
	defer results.Close()

	w := float64(frame.Width)
	h := float64(frame.Height)
	rows := results.Total() / 7
	out := make([]types.Detection, 0, rows)
	for i := 0; i < rows; i++ {
		score := results.GetFloatAt(0, i*7+2)
		if score < d.minScore {
			continue
		}
		classID := int(results.GetFloatAt(0, i*7+1))
		name := labels.Name(classID - 1)
		if name == "unknown" {
			continue
		}
		left := float64(results.GetFloatAt(0, i*7+3))
		top := float64(results.GetFloatAt(0, i*7+4))
		right := float64(results.GetFloatAt(0, i*7+5))
		bottom := float64(results.GetFloatAt(0, i*7+6))
		out = append(out, types.Detection{
			Class: name,
			Score: float64(score),
			Box: geometry.Rect{
				X: left * w,
				Y: top * h,
				W: (right - left) * w,
				H: (bottom - top) * h,
			},
		})
	}
	return out, nil
}
