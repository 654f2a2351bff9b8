package simulator

import (
	"context"
	"testing"
	"time"
)

func TestStreamSeededProducesValidFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const width, height = 640, 480
	stream := StreamSeeded(ctx, width, height, 200, 1)

	for i := 0; i < 5; i++ {
		select {
		case msg := <-stream:
			if msg.Type != "detections" {
				t.Fatalf("unexpected message type %q", msg.Type)
			}
			if msg.FrameID != i {
				t.Fatalf("frame id = %d, want %d", msg.FrameID, i)
			}
			if msg.Width != width || msg.Height != height {
				t.Fatalf("frame size = %dx%d", msg.Width, msg.Height)
			}
			if len(msg.Detections) == 0 {
				t.Fatal("no detections in simulated frame")
			}
			for _, det := range msg.Detections {
				if !det.Box.Valid() {
					t.Fatalf("invalid box: %+v", det.Box)
				}
				if det.Score < 0 || det.Score > 1 {
					t.Fatalf("score out of range: %v", det.Score)
				}
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for simulated frame")
		}
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := StreamSeeded(ctx, 320, 240, 200, 2)
	<-stream
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-stream:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancel")
		}
	}
}
