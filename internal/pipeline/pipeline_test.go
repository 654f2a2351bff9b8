package pipeline

import (
	"context"
	"testing"
	"time"

	"gridsight-go/internal/geometry"
	"gridsight-go/internal/grid"
	"gridsight-go/internal/types"
)

type captureSink struct {
	frames []uint64
	dets   [][]types.Detection
}

func (s *captureSink) Record(seq uint64, _ float64, dets []types.Detection) error {
	s.frames = append(s.frames, seq)
	s.dets = append(s.dets, dets)
	return nil
}

func newTestPipeline() (*Pipeline, *grid.Mapper) {
	m := grid.NewMapper(3, 300, 300)
	p := New(Config{MinScore: 0.4, IoUThreshold: 0.5}, m, nil)
	return p, m
}

func message(w, h int, dets ...types.Detection) types.RawMessage {
	return types.RawMessage{
		Type:       "detections",
		Timestamp:  1,
		Width:      w,
		Height:     h,
		Detections: dets,
	}
}

func TestProcessMessagePublishesSnapshot(t *testing.T) {
	p, _ := newTestPipeline()
	p.processMessage(message(300, 300, types.Detection{
		Class: "person", Score: 0.9,
		Box: geometry.Rect{X: 10, Y: 10, W: 80, H: 80},
	}), nil)

	snap, ok := p.Latest()
	if !ok {
		t.Fatal("no snapshot after processing")
	}
	if snap.FrameSeq != 1 || len(snap.Detections) != 1 {
		t.Fatalf("unexpected snapshot: seq=%d detections=%d", snap.FrameSeq, len(snap.Detections))
	}
	if snap.Cells[0].State != "detected" {
		t.Fatalf("cell (0,0) state = %q, want detected", snap.Cells[0].State)
	}
}

func TestProcessMessageScalesToCanvas(t *testing.T) {
	p, m := newTestPipeline()
	// Source frame is half the canvas size in both axes.
	p.processMessage(message(150, 150, types.Detection{
		Class: "person", Score: 0.9,
		Box: geometry.Rect{X: 5, Y: 5, W: 40, H: 40},
	}), nil)

	c := m.Cell(0, 0)
	// Scaled box (10,10,80,80) inside the 100px cell: 0.9*0.64.
	if diff := c.Confidence - 0.576; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("confidence = %v, want 0.576", c.Confidence)
	}
}

func TestLowScoreFilteredBeforeMapping(t *testing.T) {
	p, m := newTestPipeline()
	p.processMessage(message(300, 300, types.Detection{
		Class: "person", Score: 0.2,
		Box: geometry.Rect{X: 10, Y: 10, W: 80, H: 80},
	}), nil)

	if got := m.Cell(0, 0).Confidence; got != 0 {
		t.Fatalf("filtered detection still mapped: %v", got)
	}
	snap, _ := p.Latest()
	if len(snap.Detections) != 0 {
		t.Fatalf("filtered detection published: %+v", snap.Detections)
	}
}

func TestEmptyMessageResetsGrid(t *testing.T) {
	p, m := newTestPipeline()
	p.processMessage(message(300, 300, types.Detection{
		Class: "person", Score: 0.9,
		Box: geometry.Rect{X: 0, Y: 0, W: 300, H: 300},
	}), nil)
	p.processMessage(message(300, 300), nil)

	for _, c := range m.Cells() {
		if c.State != grid.StateActive || c.Confidence != 0 || c.Owner != -1 {
			t.Fatalf("cell not reset by empty frame: %+v", c)
		}
	}
}

func TestStaleFrameDropped(t *testing.T) {
	p, m := newTestPipeline()
	frame := types.Frame{Seq: 5, Width: 300, Height: 300, Gray: make([]uint8, 300*300)}
	p.processFrame(context.Background(), frame, nil)

	before := m.Cells()
	stale := types.Frame{Seq: 3, Width: 300, Height: 300, Gray: make([]uint8, 300*300)}
	p.processFrame(context.Background(), stale, nil)

	if got := p.staleDropped.Load(); got != 1 {
		t.Fatalf("stale drops = %d, want 1", got)
	}
	after := m.Cells()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("stale frame changed cell %d", i)
		}
	}
}

func TestSinkReceivesFinalDetections(t *testing.T) {
	p, _ := newTestPipeline()
	sink := &captureSink{}
	p.SetSink(sink)

	p.processMessage(message(300, 300,
		types.Detection{Class: "person", Score: 0.9, Box: geometry.Rect{X: 0, Y: 0, W: 100, H: 100}},
		types.Detection{Class: "dog", Score: 0.8, Box: geometry.Rect{X: 2, Y: 2, W: 100, H: 100}},
	), nil)

	if len(sink.frames) != 1 {
		t.Fatalf("sink called %d times, want 1", len(sink.frames))
	}
	// Suppression ran before the sink: the overlapping dog is gone.
	if len(sink.dets[0]) != 1 || sink.dets[0][0].Class != "person" {
		t.Fatalf("unexpected sink payload: %+v", sink.dets[0])
	}
}

func TestIdleTransition(t *testing.T) {
	m := grid.NewMapper(3, 300, 300)
	p := New(Config{MinScore: 0.4, IoUThreshold: 0.5, IdleAfter: time.Millisecond, IdleSeed: 1}, m, nil)

	p.processMessage(message(300, 300, types.Detection{
		Class: "person", Score: 0.9, Box: geometry.Rect{X: 0, Y: 0, W: 300, H: 300},
	}), nil)
	p.lastFrameAt = time.Now().Add(-time.Second)
	p.idleTick(nil)

	inactive := 0
	for _, c := range m.Cells() {
		if c.State == grid.StateInactive {
			inactive++
		}
	}
	if inactive == 0 {
		t.Fatal("grid did not drop to idle")
	}
	snap, _ := p.Latest()
	if len(snap.Detections) != 0 {
		t.Fatalf("idle snapshot still carries detections: %+v", snap.Detections)
	}
}

func TestRunAppliesGridCommands(t *testing.T) {
	p, m := newTestPipeline()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages := make(chan types.RawMessage)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, messages, nil, nil)
	}()

	p.SetGridSize(7)

	deadline := time.After(2 * time.Second)
	for {
		// Keep feeding frames; the command lands between them.
		select {
		case messages <- message(300, 300):
		default:
		}
		snap, ok := p.Latest()
		if ok && snap.GridSize == 7 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("grid size change never applied")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
	if m.Size() != 7 {
		t.Fatalf("mapper size = %d, want 7", m.Size())
	}
}
