package detect

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"gridsight-go/internal/types"
)

// FrameFromJPEG decodes an encoded webcam frame into the grayscale
// pixel buffer the detectors consume.
func FrameFromJPEG(data []byte, timestamp float64) (types.Frame, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return types.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return FrameFromImage(img, timestamp), nil
}

// FrameFromImage flattens an image into a grayscale frame.
func FrameFromImage(img image.Image, timestamp float64) types.Frame {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, w*h)
	// Grayscale output has equal R, G and B; take the red channel.
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w*4]
		for x := 0; x < w; x++ {
			out[y*w+x] = row[x*4]
		}
	}
	return types.Frame{
		Timestamp: timestamp,
		Width:     w,
		Height:    h,
		Gray:      out,
	}
}
