// Package ingest receives detection results from an external model
// runner over a ZMQ PULL socket.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"

	"gridsight-go/internal/labels"
	"gridsight-go/internal/types"
)

// RawRecorder receives every raw payload before decoding.
type RawRecorder interface {
	Record(payload []byte) error
}

var (
	decodeFailures atomic.Uint64
	decodeCount    atomic.Uint64
	decodeNanos    atomic.Uint64
)

// DecodeFailures returns the number of messages that failed to decode.
func DecodeFailures() uint64 { return decodeFailures.Load() }

// DecodeTiming returns the decode call count and cumulative nanoseconds.
func DecodeTiming() (uint64, uint64) {
	return decodeCount.Load(), decodeNanos.Load()
}

// Stream returns a channel of decoded messages from a model runner.
// Messages are CBOR maps shaped like:
//
//	{ "type": "detections", "frame_id": <int>, "timestamp": <float>,
//	  "width": <int>, "height": <int>,
//	  "detections": [ {"class": <string|int>, "score": <float>, "box": [x,y,w,h]}, ... ] }
//
// plus "start"/"end" run metadata messages.
func Stream(ctx context.Context, endpoint string) (<-chan types.RawMessage, error) {
	return StreamWithLogEveryAndRecorder(ctx, endpoint, 1, nil)
}

// StreamWithLogEveryAndRecorder is Stream with rate-limited error
// logging and an optional raw payload recorder.
func StreamWithLogEveryAndRecorder(ctx context.Context, endpoint string, logEvery int, recorder RawRecorder) (<-chan types.RawMessage, error) {
	if logEvery < 1 {
		logEvery = 1
	}
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, err
	}

	out := make(chan types.RawMessage, 128)
	go func() {
		defer close(out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			payload, err := socket.RecvBytes(0)
			if err != nil {
				logEveryN(logEvery, "ingest recv error: %v", err)
				continue
			}
			if recorder != nil {
				if err := recorder.Record(payload); err != nil {
					logEveryN(logEvery, "ingest raw record failed: %v", err)
				}
			}

			msg, ok := decodeMessage(payload, logEvery)
			if !ok {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- msg:
			}
		}
	}()

	return out, nil
}

func decodeMessage(payload []byte, logEvery int) (types.RawMessage, bool) {
	start := time.Now()
	var decoded map[string]any
	err := cbor.Unmarshal(payload, &decoded)
	decodeCount.Add(1)
	decodeNanos.Add(uint64(time.Since(start).Nanoseconds()))
	if err != nil {
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest CBOR decode error: %v", err)
		return types.RawMessage{}, false
	}

	msgType, _ := decoded["type"].(string)
	switch msgType {
	case "start", "end":
		return types.RawMessage{Type: msgType, Meta: decoded}, true
	case "detections":
		return decodeDetections(decoded, logEvery)
	default:
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest ignoring message type %q", msgType)
		return types.RawMessage{}, false
	}
}

func decodeDetections(decoded map[string]any, logEvery int) (types.RawMessage, bool) {
	frameID, err := toInt(decoded["frame_id"])
	if err != nil {
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest invalid frame_id: %v", err)
		return types.RawMessage{}, false
	}
	timestamp, err := toFloat(decoded["timestamp"])
	if err != nil {
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest invalid timestamp: %v", err)
		return types.RawMessage{}, false
	}
	width, werr := toInt(decoded["width"])
	height, herr := toInt(decoded["height"])
	if werr != nil || herr != nil || width < 1 || height < 1 {
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest invalid frame size")
		return types.RawMessage{}, false
	}

	msg := types.RawMessage{
		Type:      "detections",
		FrameID:   frameID,
		Timestamp: timestamp,
		Width:     width,
		Height:    height,
	}

	// An absent or empty list is a valid frame with no detections.
	list, _ := decoded["detections"].([]any)
	msg.Detections = make([]types.Detection, 0, len(list))
	for _, item := range list {
		det, ok := decodeDetection(item)
		if !ok {
			// One bad detection never drops the frame.
			logEveryN(logEvery, "ingest skipping malformed detection")
			continue
		}
		msg.Detections = append(msg.Detections, det)
	}
	return msg, true
}

func decodeDetection(item any) (types.Detection, bool) {
	entry, ok := item.(map[string]any)
	if !ok {
		return types.Detection{}, false
	}

	var class string
	switch v := entry["class"].(type) {
	case string:
		class = v
	default:
		id, err := toInt(v)
		if err != nil {
			return types.Detection{}, false
		}
		class = labels.Name(id)
	}

	score, err := toFloat(entry["score"])
	if err != nil {
		return types.Detection{}, false
	}

	boxRaw, ok := entry["box"].([]any)
	if !ok || len(boxRaw) != 4 {
		return types.Detection{}, false
	}
	var box [4]float64
	for i, v := range boxRaw {
		f, err := toFloat(v)
		if err != nil {
			return types.Detection{}, false
		}
		box[i] = f
	}

	det := types.Detection{Class: class, Score: score}
	det.Box.X, det.Box.Y, det.Box.W, det.Box.H = box[0], box[1], box[2], box[3]
	if !det.Box.Valid() {
		return types.Detection{}, false
	}
	return det, true
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, errors.New("unsupported float type")
	}
}

var logCounter int

func logEveryN(n int, format string, args ...any) {
	logCounter++
	if logCounter%n == 0 {
		log.Printf(format, args...)
	}
}
