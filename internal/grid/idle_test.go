package grid

import (
	"testing"

	"gridsight-go/internal/geometry"
	"gridsight-go/internal/types"
)

func countState(m *Mapper, s CellState) int {
	n := 0
	for _, c := range m.Cells() {
		if c.State == s {
			n++
		}
	}
	return n
}

func TestIdleAnimatorDeterministic(t *testing.T) {
	run := func() []Cell {
		m := NewMapper(7, 700, 700)
		a := NewIdleAnimator(m, 1)
		for i := 0; i < 20; i++ {
			a.Tick()
		}
		return m.Cells()
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("seeded animator diverged at cell %d", i)
		}
	}
}

func TestIdleAnimatorActivatesAndRetires(t *testing.T) {
	m := NewMapper(7, 700, 700)
	a := NewIdleAnimator(m, 7)

	activated := false
	for i := 0; i < 50; i++ {
		a.Tick()
		if countState(m, StateActive) > 0 {
			activated = true
		}
	}
	if !activated {
		t.Fatal("animator never activated a cell")
	}

	// With no new activity possible the grid drains to inactive.
	a.Reset()
	if got := countState(m, StateActive); got != 0 {
		t.Fatalf("%d cells still active after reset", got)
	}
	if a.LiveCount() != 0 {
		t.Fatalf("animator still tracks %d cells after reset", a.LiveCount())
	}
}

func TestIdleAnimatorNeverTouchesOwnedCells(t *testing.T) {
	m := NewMapper(3, 300, 300)
	m.ActivateAll()
	m.UpdateDetections([]types.Detection{
		{Class: "person", Score: 0.95, Box: geometry.Rect{X: 0, Y: 0, W: 300, H: 300}},
	})
	owned := m.Cells()

	a := NewIdleAnimator(m, 3)
	for i := 0; i < 100; i++ {
		a.Tick()
	}
	a.Reset()

	after := m.Cells()
	for i := range owned {
		if owned[i].Owner != -1 && owned[i] != after[i] {
			t.Fatalf("animator modified owned cell %d: %+v vs %+v", i, owned[i], after[i])
		}
	}
}

func TestIdleSpreadDecaysWithDistance(t *testing.T) {
	m := NewMapper(7, 700, 700)
	a := NewIdleAnimator(m, 0)
	a.spread(3*7+3, 0.5) // center cell

	near := m.Cell(3, 4).Confidence
	far := m.Cell(3, 5).Confidence
	if near == 0 || far == 0 {
		t.Fatalf("neighbors not lit: near=%v far=%v", near, far)
	}
	if far >= near {
		t.Fatalf("confidence should decay with distance: near=%v far=%v", near, far)
	}
	// Beyond the radius nothing lights up.
	if got := m.Cell(3, 6).Confidence; got != 0 {
		t.Fatalf("cell outside radius lit: %v", got)
	}
}
