// Package grid owns the N×N cell collection and converts
// post-processed detections into per-cell visualization state.
package grid

import (
	"math"

	"gridsight-go/internal/geometry"
	"gridsight-go/internal/types"
)

// CellState is the visualization state of one grid cell.
type CellState int

const (
	StateInactive CellState = iota
	StateActive
	StateDetecting
	StateDetected
	StateConfident
)

func (s CellState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateDetecting:
		return "detecting"
	case StateDetected:
		return "detected"
	case StateConfident:
		return "confident"
	default:
		return "unknown"
	}
}

// State thresholds over adjusted confidence.
const (
	confidentAbove = 0.7
	detectedAbove  = 0.4
	detectingAbove = 0.1
)

// Cell is one rectangular partition of the canvas. Owner indexes the
// detection list of the last UpdateDetections call; -1 means unowned.
type Cell struct {
	ID         int
	Row        int
	Col        int
	Rect       geometry.Rect
	State      CellState
	Confidence float64
	Owner      int
}

// Mapper converts detection boxes into per-cell confidence and state.
// It is not safe for concurrent use; the pipeline goroutine is the
// single writer.
type Mapper struct {
	n       int
	canvasW float64
	canvasH float64
	cells   []Cell
}

// NewMapper builds a mapper with an N×N grid over the given canvas.
func NewMapper(n int, canvasW, canvasH float64) *Mapper {
	m := &Mapper{canvasW: canvasW, canvasH: canvasH}
	m.SetGridSize(n)
	return m
}

// Size returns the grid resolution N.
func (m *Mapper) Size() int { return m.n }

// CanvasSize returns the current canvas pixel dimensions.
func (m *Mapper) CanvasSize() (float64, float64) { return m.canvasW, m.canvasH }

// SetGridSize rebuilds the N² cell array, recomputing geometry from
// the current canvas size. All previous cell state is invalidated.
func (m *Mapper) SetGridSize(n int) {
	if n < 1 {
		n = 1
	}
	m.n = n
	m.cells = make([]Cell, n*n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			id := row*n + col
			m.cells[id] = Cell{ID: id, Row: row, Col: col, Owner: -1}
		}
	}
	m.layout()
}

// Resize recomputes per-cell pixel rectangles from a new canvas size
// without changing cell state.
func (m *Mapper) Resize(canvasW, canvasH float64) {
	m.canvasW = canvasW
	m.canvasH = canvasH
	m.layout()
}

func (m *Mapper) layout() {
	cellW := m.canvasW / float64(m.n)
	cellH := m.canvasH / float64(m.n)
	for i := range m.cells {
		c := &m.cells[i]
		c.Rect = geometry.Rect{
			X: float64(c.Col) * cellW,
			Y: float64(c.Row) * cellH,
			W: cellW,
			H: cellH,
		}
	}
}

// CellRange returns the inclusive row/col range overlapped by a box's
// pixel extent, clamped to [0, N-1].
func (m *Mapper) CellRange(box geometry.Rect) (row0, col0, row1, col1 int) {
	cellW := m.canvasW / float64(m.n)
	cellH := m.canvasH / float64(m.n)
	col0 = clamp(int(math.Floor(box.X/cellW)), 0, m.n-1)
	row0 = clamp(int(math.Floor(box.Y/cellH)), 0, m.n-1)
	col1 = clamp(int(math.Floor(box.Right()/cellW)), 0, m.n-1)
	row1 = clamp(int(math.Floor(box.Bottom()/cellH)), 0, m.n-1)
	return row0, col0, row1, col1
}

// UpdateDetections maps one frame's post-processed detections onto the
// grid. Every non-inactive cell is first reset to active with zero
// confidence and no owner; each cell then adopts the detection with
// the highest adjusted confidence (score × overlap ratio). The
// comparison is strictly greater, so the earlier detection in the list
// wins ties. Inactive cells take no part in either pass. Calling twice
// with the same list leaves the grid unchanged.
func (m *Mapper) UpdateDetections(detections []types.Detection) {
	for i := range m.cells {
		c := &m.cells[i]
		if c.State == StateInactive {
			continue
		}
		c.State = StateActive
		c.Confidence = 0
		c.Owner = -1
	}

	for di, det := range detections {
		if !det.Box.Valid() {
			continue
		}
		row0, col0, row1, col1 := m.CellRange(det.Box)
		for row := row0; row <= row1; row++ {
			for col := col0; col <= col1; col++ {
				c := &m.cells[row*m.n+col]
				if c.State == StateInactive {
					continue
				}
				area := c.Rect.Area()
				if area <= 0 {
					continue
				}
				ratio := geometry.IntersectionArea(c.Rect, det.Box) / area
				adjusted := det.Score * ratio
				if adjusted <= c.Confidence {
					continue
				}
				c.Confidence = adjusted
				c.Owner = di
				c.State = stateFor(adjusted)
			}
		}
	}
}

func stateFor(adjusted float64) CellState {
	switch {
	case adjusted > confidentAbove:
		return StateConfident
	case adjusted > detectedAbove:
		return StateDetected
	case adjusted > detectingAbove:
		return StateDetecting
	default:
		return StateActive
	}
}

// ActivateAll raises every inactive cell to active. The pipeline calls
// this when live frames start arriving so the whole grid participates
// in mapping.
func (m *Mapper) ActivateAll() {
	for i := range m.cells {
		if m.cells[i].State == StateInactive {
			m.cells[i].State = StateActive
		}
	}
}

// DeactivateAll returns every cell to inactive, clearing confidence
// and ownership. Used when the pipeline goes idle.
func (m *Mapper) DeactivateAll() {
	for i := range m.cells {
		c := &m.cells[i]
		c.State = StateInactive
		c.Confidence = 0
		c.Owner = -1
	}
}

// Cells returns a copy of the cell array.
func (m *Mapper) Cells() []Cell {
	out := make([]Cell, len(m.cells))
	copy(out, m.cells)
	return out
}

// Cell returns the cell at (row, col).
func (m *Mapper) Cell(row, col int) Cell {
	return m.cells[row*m.n+col]
}

// Snapshot renders the current cell state plus the detection list that
// produced it.
func (m *Mapper) Snapshot(frameSeq uint64, detections []types.Detection) types.UISnapshot {
	cells := make([]types.CellView, len(m.cells))
	for i, c := range m.cells {
		cells[i] = types.CellView{
			ID:         c.ID,
			Row:        c.Row,
			Col:        c.Col,
			Rect:       c.Rect,
			State:      c.State.String(),
			Confidence: c.Confidence,
			Owner:      c.Owner,
		}
	}
	views := make([]types.DetectionView, len(detections))
	for i, d := range detections {
		cx, cy := d.Center()
		views[i] = types.DetectionView{
			Class:  d.Class,
			Score:  d.Score,
			BBox:   [4]float64{d.Box.X, d.Box.Y, d.Box.W, d.Box.H},
			Center: [2]float64{cx, cy},
		}
	}
	return types.UISnapshot{
		Type:       "snapshot",
		FrameSeq:   frameSeq,
		GridSize:   m.n,
		CanvasW:    m.canvasW,
		CanvasH:    m.canvasH,
		Cells:      cells,
		Detections: views,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
