// Package pipeline drives detection results through post-processing
// and the grid mapper, and publishes visualization snapshots. The Run
// loop is the single writer of grid state.
package pipeline

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"gridsight-go/internal/detect"
	"gridsight-go/internal/grid"
	"gridsight-go/internal/postprocess"
	"gridsight-go/internal/types"
)

// Sink receives each mapped frame's final detections.
type Sink interface {
	Record(frameSeq uint64, timestamp float64, detections []types.Detection) error
}

// Config holds the pipeline tuning knobs.
type Config struct {
	MinScore     float64
	IoUThreshold float64
	// IdleAfter is how long without frames before the grid drops
	// back to the idle animation. Zero disables the animation.
	IdleAfter time.Duration
	IdleSeed  int64
}

// Pipeline owns the mapper and the frame sequence. External callers
// interact through channels and the command queue; only the Run
// goroutine touches grid state.
type Pipeline struct {
	cfg      Config
	mapper   *grid.Mapper
	detector detect.Detector
	idle     *grid.IdleAnimator
	sink     Sink

	commands chan func()

	seq         atomic.Uint64
	lastDone    uint64
	lastFrameAt time.Time
	live        bool
	lastDets    []types.Detection

	latestMu   sync.Mutex
	latest     types.UISnapshot
	hasLatest  bool
	sinkErrLog int

	framesProcessed  atomic.Uint64
	detectionsMapped atomic.Uint64
	staleDropped     atomic.Uint64
	detectErrors     atomic.Uint64
	sinkErrors       atomic.Uint64
}

// New builds a pipeline over a mapper. detector may be nil for the
// ingest-only path.
func New(cfg Config, mapper *grid.Mapper, detector detect.Detector) *Pipeline {
	if detector == nil {
		detector = detect.Nop{}
	}
	p := &Pipeline{
		cfg:      cfg,
		mapper:   mapper,
		detector: detector,
		commands: make(chan func(), 8),
	}
	p.idle = grid.NewIdleAnimator(mapper, cfg.IdleSeed)
	return p
}

// SetSink attaches a detection sink. Call before Run.
func (p *Pipeline) SetSink(sink Sink) { p.sink = sink }

// NextSeq issues a frame sequence number for externally produced
// frames, so stale results can be recognized later.
func (p *Pipeline) NextSeq() uint64 { return p.seq.Add(1) }

// Run consumes detection messages and raw frames until ctx is done.
// Snapshots are sent to out without blocking; a slow consumer just
// misses intermediate frames.
func (p *Pipeline) Run(ctx context.Context, messages <-chan types.RawMessage, frames <-chan types.Frame, out chan<- types.UISnapshot) {
	var idleC <-chan time.Time
	if p.cfg.IdleAfter > 0 {
		ticker := time.NewTicker(p.cfg.IdleAfter / 2)
		defer ticker.Stop()
		idleC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-p.commands:
			cmd()
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			msg = latestMessage(messages, msg)
			p.processMessage(msg, out)
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			frame = latestFrame(frames, frame)
			p.processFrame(ctx, frame, out)
		case <-idleC:
			p.idleTick(out)
		}
	}
}

// latestMessage drains the channel so only the most recent pending
// message is processed: the freshest result wins.
func latestMessage(ch <-chan types.RawMessage, current types.RawMessage) types.RawMessage {
	for {
		select {
		case next, ok := <-ch:
			if !ok {
				return current
			}
			current = next
		default:
			return current
		}
	}
}

func latestFrame(ch <-chan types.Frame, current types.Frame) types.Frame {
	for {
		select {
		case next, ok := <-ch:
			if !ok {
				return current
			}
			current = next
		default:
			return current
		}
	}
}

func (p *Pipeline) processMessage(msg types.RawMessage, out chan<- types.UISnapshot) {
	if msg.Type != "detections" {
		return
	}
	seq := p.seq.Add(1)

	// Scale boxes from the source frame's pixel space onto the
	// display canvas.
	canvasW, canvasH := p.mapper.CanvasSize()
	sx := canvasW / float64(msg.Width)
	sy := canvasH / float64(msg.Height)
	scaled := make([]types.Detection, len(msg.Detections))
	for i, det := range msg.Detections {
		det.Box = det.Box.Scale(sx, sy)
		scaled[i] = det
	}

	p.apply(seq, msg.Timestamp, scaled, out)
}

func (p *Pipeline) processFrame(ctx context.Context, frame types.Frame, out chan<- types.UISnapshot) {
	if frame.Seq == 0 {
		frame.Seq = p.seq.Add(1)
	}
	dets, err := p.detector.Detect(ctx, frame)
	if err != nil {
		p.detectErrors.Add(1)
		// Degraded mode: the frame still resets the grid.
		dets = nil
	}
	// Stale-result guard: a result older than the newest consumed
	// frame is discarded.
	if frame.Seq <= p.lastDone {
		p.staleDropped.Add(1)
		return
	}

	canvasW, canvasH := p.mapper.CanvasSize()
	sx := canvasW / float64(frame.Width)
	sy := canvasH / float64(frame.Height)
	for i := range dets {
		dets[i].Box = dets[i].Box.Scale(sx, sy)
	}

	p.apply(frame.Seq, frame.Timestamp, dets, out)
}

// apply is the one place grid state changes for a live frame.
func (p *Pipeline) apply(seq uint64, timestamp float64, dets []types.Detection, out chan<- types.UISnapshot) {
	p.lastDone = seq
	p.lastFrameAt = time.Now()
	if !p.live {
		p.idle.Reset()
		p.mapper.ActivateAll()
		p.live = true
	}

	final := postprocess.Process(dets, p.cfg.MinScore, p.cfg.IoUThreshold)
	p.mapper.UpdateDetections(final)
	p.lastDets = final

	p.framesProcessed.Add(1)
	p.detectionsMapped.Add(uint64(len(final)))

	if p.sink != nil && len(final) > 0 {
		if err := p.sink.Record(seq, timestamp, final); err != nil {
			p.sinkErrors.Add(1)
			p.sinkErrLog++
			if p.sinkErrLog%100 == 1 {
				log.Printf("detection sink write failed: %v", err)
			}
		}
	}

	p.publish(seq, final, out)
}

func (p *Pipeline) idleTick(out chan<- types.UISnapshot) {
	if time.Since(p.lastFrameAt) < p.cfg.IdleAfter {
		return
	}
	if p.live {
		p.mapper.DeactivateAll()
		p.lastDets = nil
		p.live = false
	}
	p.idle.Tick()
	p.publish(p.lastDone, nil, out)
}

func (p *Pipeline) publish(seq uint64, dets []types.Detection, out chan<- types.UISnapshot) {
	snap := p.mapper.Snapshot(seq, dets)
	p.latestMu.Lock()
	p.latest = snap
	p.hasLatest = true
	p.latestMu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- snap:
	default:
	}
}

// Latest returns the most recent snapshot, if any. Safe to call from
// any goroutine.
func (p *Pipeline) Latest() (types.UISnapshot, bool) {
	p.latestMu.Lock()
	defer p.latestMu.Unlock()
	return p.latest, p.hasLatest
}

// SetGridSize rebuilds the grid on the pipeline goroutine. Blocks
// until the command is queued, not until it runs.
func (p *Pipeline) SetGridSize(n int) {
	p.commands <- func() {
		p.mapper.SetGridSize(n)
		if p.live {
			p.mapper.ActivateAll()
		}
	}
}

// Resize updates the canvas dimensions on the pipeline goroutine.
func (p *Pipeline) Resize(w, h float64) {
	p.commands <- func() {
		p.mapper.Resize(w, h)
	}
}

// Metrics returns a point-in-time snapshot of pipeline counters.
func (p *Pipeline) Metrics() map[string]any {
	return map[string]any{
		"frames_processed_total":  p.framesProcessed.Load(),
		"detections_mapped_total": p.detectionsMapped.Load(),
		"stale_dropped_total":     p.staleDropped.Load(),
		"detect_errors_total":     p.detectErrors.Load(),
		"sink_errors_total":       p.sinkErrors.Load(),
	}
}
