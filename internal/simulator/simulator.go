// Package simulator produces a synthetic detection stream so the UI
// and pipeline can be exercised without a camera or model runner.
package simulator

import (
	"context"
	"math/rand"
	"time"

	"gridsight-go/internal/geometry"
	"gridsight-go/internal/types"
)

type walker struct {
	class  string
	box    geometry.Rect
	vx, vy float64
	score  float64
}

// Stream emits detection messages for wandering boxes at acqRate
// frames per second until ctx is done.
func Stream(ctx context.Context, width, height int, acqRate float64) <-chan types.RawMessage {
	return StreamSeeded(ctx, width, height, acqRate, time.Now().UnixNano())
}

// StreamSeeded is Stream with a fixed seed for reproducible output.
func StreamSeeded(ctx context.Context, width, height int, acqRate float64, seed int64) <-chan types.RawMessage {
	out := make(chan types.RawMessage)
	go func() {
		defer close(out)

		rng := rand.New(rand.NewSource(seed))
		if acqRate <= 0 {
			acqRate = 30
		}
		ticker := time.NewTicker(time.Duration(float64(time.Second) / acqRate))
		defer ticker.Stop()

		w := float64(width)
		h := float64(height)
		classes := []string{"person", "dog", "car", "bicycle", "cat"}
		walkers := make([]walker, 3)
		for i := range walkers {
			size := (0.15 + 0.2*rng.Float64()) * w
			walkers[i] = walker{
				class: classes[rng.Intn(len(classes))],
				box: geometry.Rect{
					X: rng.Float64() * (w - size),
					Y: rng.Float64() * (h - size),
					W: size,
					H: size * (0.8 + 0.4*rng.Float64()),
				},
				vx:    (rng.Float64() - 0.5) * w / 60,
				vy:    (rng.Float64() - 0.5) * h / 60,
				score: 0.5 + 0.45*rng.Float64(),
			}
		}

		frameID := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dets := make([]types.Detection, len(walkers))
				for i := range walkers {
					wk := &walkers[i]
					wk.box.X += wk.vx
					wk.box.Y += wk.vy
					if wk.box.X < 0 || wk.box.Right() > w {
						wk.vx = -wk.vx
						wk.box.X += 2 * wk.vx
					}
					if wk.box.Y < 0 || wk.box.Bottom() > h {
						wk.vy = -wk.vy
						wk.box.Y += 2 * wk.vy
					}
					wk.score += (rng.Float64() - 0.5) * 0.05
					if wk.score < 0.3 {
						wk.score = 0.3
					}
					if wk.score > 0.99 {
						wk.score = 0.99
					}
					dets[i] = types.Detection{Class: wk.class, Score: wk.score, Box: wk.box}
				}

				msg := types.RawMessage{
					Type:       "detections",
					FrameID:    frameID,
					Timestamp:  float64(time.Now().UnixNano()) / 1e9,
					Width:      width,
					Height:     height,
					Detections: dets,
				}
				select {
				case <-ctx.Done():
					return
				case out <- msg:
				}
				frameID++
			}
		}
	}()

	return out
}
