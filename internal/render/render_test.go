package render

import (
	"testing"

	colorful "github.com/lucasb-eyer/go-colorful"

	"gridsight-go/internal/types"
)

func TestStateColorsDistinct(t *testing.T) {
	states := []string{"inactive", "active", "detecting", "detected", "confident"}
	seen := map[[3]uint8]string{}
	for _, s := range states {
		r, g, b := StateColor(s, 0).RGB255()
		key := [3]uint8{r, g, b}
		if prev, ok := seen[key]; ok {
			t.Fatalf("states %q and %q share a color", prev, s)
		}
		seen[key] = s
	}
}

func TestStateColorConfidenceShifts(t *testing.T) {
	low := StateColor("detected", 0)
	high := StateColor("detected", 1)
	if low == high {
		t.Fatal("confidence has no effect on color")
	}
}

func TestHeatmapSize(t *testing.T) {
	snap := types.UISnapshot{
		GridSize: 3,
		Cells: []types.CellView{
			{ID: 0, Row: 0, Col: 0, State: "confident", Confidence: 0.9},
			{ID: 4, Row: 1, Col: 1, State: "active"},
			{ID: 8, Row: 2, Col: 2, State: "inactive"},
		},
	}
	img := Heatmap(snap, 300, 300)
	b := img.Bounds()
	if b.Dx() != 300 || b.Dy() != 300 {
		t.Fatalf("heatmap is %dx%d, want 300x300", b.Dx(), b.Dy())
	}
}

func TestAnsi256InCube(t *testing.T) {
	cases := []colorful.Color{
		{R: 0, G: 0, B: 0},
		{R: 1, G: 1, B: 1},
		{R: 0.5, G: 0.2, B: 0.9},
		{R: -1, G: 2, B: 0.5}, // out of range clamps
	}
	for _, c := range cases {
		v := Ansi256(c)
		if v < 16 || v > 231 {
			t.Fatalf("Ansi256(%v) = %d outside the color cube", c, v)
		}
	}
}
