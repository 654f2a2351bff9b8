// Package render maps cell state to display colors, shared by the
// heatmap writer and the terminal viewer.
package render

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"

	"gridsight-go/internal/types"
)

var (
	inactiveColor  = colorful.Color{R: 0.08, G: 0.09, B: 0.11}
	activeColor    = colorful.Color{R: 0.16, G: 0.22, B: 0.32}
	detectingColor = colorful.Color{R: 0.85, G: 0.75, B: 0.20}
	detectedColor  = colorful.Color{R: 0.90, G: 0.45, B: 0.10}
	confidentColor = colorful.Color{R: 0.10, G: 0.80, B: 0.35}
)

// StateColor returns the display color for one cell. Confidence blends
// the base state color toward the confident highlight, so a cell glows
// brighter the more of a detection it holds.
func StateColor(state string, confidence float64) colorful.Color {
	var base colorful.Color
	switch state {
	case "active":
		base = activeColor
	case "detecting":
		base = detectingColor
	case "detected":
		base = detectedColor
	case "confident":
		base = confidentColor
	default:
		return inactiveColor
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return base.BlendLab(confidentColor, confidence*0.5).Clamped()
}

// Heatmap renders per-cell state as an image of the requested pixel
// size, one source pixel per cell scaled up with hard edges so the
// grid stays visible.
func Heatmap(snap types.UISnapshot, outW, outH int) image.Image {
	n := snap.GridSize
	if n < 1 {
		n = 1
	}
	src := image.NewRGBA(image.Rect(0, 0, n, n))
	for _, c := range snap.Cells {
		col := StateColor(c.State, c.Confidence)
		r, g, b := col.RGB255()
		src.SetRGBA(c.Col, c.Row, color.RGBA{R: r, G: g, B: b, A: 255})
	}
	if outW <= n || outH <= n {
		return src
	}
	return imaging.Resize(src, outW, outH, imaging.NearestNeighbor)
}

// Ansi256 maps a color onto the 256-color terminal palette's 6x6x6
// cube.
func Ansi256(c colorful.Color) uint8 {
	r := int(math.Round(clamp01(c.R) * 5))
	g := int(math.Round(clamp01(c.G) * 5))
	b := int(math.Round(clamp01(c.B) * 5))
	return uint8(16 + 36*r + 6*g + b)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
