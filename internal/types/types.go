package types

import "gridsight-go/internal/geometry"

// Detection is one object reported by a model for a single frame: a
// class name, a confidence score in [0,1] and a box in the frame's own
// pixel space. Detections are produced fresh every processed frame and
// never mutated.
type Detection struct {
	Class string        `json:"class"`
	Score float64       `json:"score"`
	Box   geometry.Rect `json:"box"`
}

// Center returns the box midpoint.
func (d Detection) Center() (float64, float64) {
	return d.Box.Center()
}

// Frame is a grayscale video frame handed to a local detector.
type Frame struct {
	Seq       uint64
	Timestamp float64
	Width     int
	Height    int
	Gray      []uint8
}

// RawMessage is one decoded message from a detection source. Type is
// "detections" for frame results, "start"/"end" for run metadata.
type RawMessage struct {
	Type       string
	Meta       map[string]any
	FrameID    int
	Timestamp  float64
	Width      int
	Height     int
	Detections []Detection
}
