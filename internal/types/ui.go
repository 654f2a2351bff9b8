package types

import "gridsight-go/internal/geometry"

// CellView is one grid cell as consumed by a renderer.
type CellView struct {
	ID         int           `json:"id"`
	Row        int           `json:"row"`
	Col        int           `json:"col"`
	Rect       geometry.Rect `json:"rect"`
	State      string        `json:"state"`
	Confidence float64       `json:"confidence"`
	Owner      int           `json:"owner"`
}

// DetectionView is one detection as consumed by a results display.
type DetectionView struct {
	Class  string     `json:"class"`
	Score  float64    `json:"score"`
	BBox   [4]float64 `json:"bbox"`
	Center [2]float64 `json:"center"`
}

// UISnapshot is the full visualization state pushed to clients.
type UISnapshot struct {
	Type       string          `json:"type"`
	FrameSeq   uint64          `json:"frame_seq"`
	GridSize   int             `json:"grid_size"`
	CanvasW    float64         `json:"canvas_w"`
	CanvasH    float64         `json:"canvas_h"`
	Cells      []CellView      `json:"cells"`
	Detections []DetectionView `json:"detections"`
}
