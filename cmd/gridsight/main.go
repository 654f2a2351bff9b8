package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"gridsight-go/internal/config"
	"gridsight-go/internal/detect"
	"gridsight-go/internal/grid"
	"gridsight-go/internal/ingest"
	"gridsight-go/internal/modelapi"
	"gridsight-go/internal/output"
	"gridsight-go/internal/pipeline"
	"gridsight-go/internal/server"
	"gridsight-go/internal/simulator"
	"gridsight-go/internal/store"
	"gridsight-go/internal/types"
)

type metrics struct {
	rawMessages      atomic.Uint64
	metaMessages     atomic.Uint64
	webcamFrames     atomic.Uint64
	webcamDropped    atomic.Uint64
	framesBroadcast  atomic.Uint64
	outputWriteOK    atomic.Uint64
	outputWriteError atomic.Uint64
	metadataWriteErr atomic.Uint64
}

func (m *metrics) snapshot() map[string]any {
	return map[string]any{
		"raw_messages_total":       m.rawMessages.Load(),
		"meta_messages_total":      m.metaMessages.Load(),
		"webcam_frames_total":      m.webcamFrames.Load(),
		"webcam_dropped_total":     m.webcamDropped.Load(),
		"frames_broadcast_total":   m.framesBroadcast.Load(),
		"output_write_ok_total":    m.outputWriteOK.Load(),
		"output_write_err_total":   m.outputWriteError.Load(),
		"metadata_write_err_total": m.metadataWriteErr.Load(),
	}
}

func main() {
	var (
		port           = flag.Int("port", 8888, "HTTP port for the web UI")
		endpoint       = flag.String("endpoint", "tcp://localhost:31001", "ZMQ endpoint of the model runner")
		envFile        = flag.String("env-file", ".env", "Optional .env overrides")
		gridSize       = flag.Int("grid-size", 13, "Grid density (7, 13 or 19)")
		canvasW        = flag.Float64("canvas-w", 600, "Display canvas width in pixels")
		canvasH        = flag.Float64("canvas-h", 600, "Display canvas height in pixels")
		minScore       = flag.Float64("min-score", 0.4, "Minimum detection score")
		iouThreshold   = flag.Float64("iou-threshold", 0.5, "Overlap suppression threshold")
		debug          = flag.Bool("debug", false, "Run with simulated detections")
		debugAcqRate   = flag.Float64("debug-acq-rate", 15.0, "Simulated detection rate (frames/sec)")
		uiRate         = flag.Duration("ui-rate", 100*time.Millisecond, "UI update interval for websocket clients")
		idleAfter      = flag.Duration("idle-after", 5*time.Second, "Idle animation delay after the last frame")
		outputDir      = flag.String("output-dir", "output", "Directory for run artifacts")
		rawLogEnabled  = flag.Bool("raw-log", false, "Write raw CBOR messages to disk")
		rawLogDir      = flag.String("raw-log-dir", "rawlog", "Directory for raw ingest logs")
		storePath      = flag.String("store", "", "SQLite file for detection events (empty disables)")
		cascadeFile    = flag.String("cascade", "", "Pigo cascade file for local face detection")
		modelFile      = flag.String("model", "", "DNN model weights for local detection")
		modelCfg       = flag.String("model-config", "", "DNN model config for local detection")
		modelAPI       = flag.String("model-api", "", "Base URL of the model runner control API")
		modelAPIVer    = flag.String("model-api-version", "1.0", "Model runner API version")
		modelInterval  = flag.Duration("model-api-interval", time.Second, "Polling interval for model runner status")
		ingestLogEvery = flag.Int("ingest-log-every", 100, "Log every Nth ingest error")
		ingestFallback = flag.Bool("ingest-fallback", true, "Fall back to simulator when ingest fails")
	)
	flag.Parse()

	cfg := config.AppConfig{
		Port:           *port,
		Endpoint:       *endpoint,
		GridSize:       *gridSize,
		CanvasW:        *canvasW,
		CanvasH:        *canvasH,
		MinScore:       *minScore,
		IoUThreshold:   *iouThreshold,
		Debug:          *debug,
		DebugAcqRate:   *debugAcqRate,
		UIRate:         uiRate.Seconds(),
		IdleAfter:      idleAfter.Seconds(),
		OutputDir:      *outputDir,
		RawLog:         *rawLogEnabled,
		RawLogDir:      *rawLogDir,
		StorePath:      *storePath,
		CascadeFile:    *cascadeFile,
		ModelFile:      *modelFile,
		ModelCfg:       *modelCfg,
		ModelAPI:       *modelAPI,
		IngestLogEvery: *ingestLogEvery,
		IngestFallback: *ingestFallback,
	}
	if err := config.LoadEnv(*envFile, &cfg); err != nil {
		log.Fatalf("config: %v", err)
	}
	if !config.ValidGridSize(cfg.GridSize) {
		log.Fatalf("unsupported grid size %d (want 7, 13 or 19)", cfg.GridSize)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m metrics
	var statusMu sync.Mutex
	status := map[string]any{
		"source":      "simulator",
		"detector":    "none",
		"model":       "unknown",
		"last_ingest": "",
		"last_frame":  "",
		"last_write":  "",
	}
	setStatus := func(key string, value any) {
		statusMu.Lock()
		status[key] = value
		statusMu.Unlock()
	}

	detector, detectorName := buildDetector(cfg)
	setStatus("detector", detectorName)

	mapper := grid.NewMapper(cfg.GridSize, cfg.CanvasW, cfg.CanvasH)
	pipe := pipeline.New(pipeline.Config{
		MinScore:     cfg.MinScore,
		IoUThreshold: cfg.IoUThreshold,
		IdleAfter:    cfg.IdleAfterDuration(),
	}, mapper, detector)

	if cfg.StorePath != "" {
		eventStore, err := store.Open(cfg.StorePath)
		if err != nil {
			log.Fatalf("open detection store: %v", err)
		}
		defer eventStore.Close()
		pipe.SetSink(eventStore)
	}

	rawMessages := startSource(ctx, cfg, setStatus)

	runTimestamp := ""
	var runMu sync.Mutex
	currentRun := func() string {
		runMu.Lock()
		defer runMu.Unlock()
		if runTimestamp == "" {
			runTimestamp = output.Timestamp()
		}
		return runTimestamp
	}

	// Split the ingest stream: run metadata goes to disk, detection
	// frames go to the pipeline.
	detections := make(chan types.RawMessage, 128)
	go func() {
		defer close(detections)
		for msg := range rawMessages {
			m.rawMessages.Add(1)
			setStatus("last_ingest", time.Now().Format(time.RFC3339))
			if msg.Type != "detections" {
				m.metaMessages.Add(1)
				ts := currentRun()
				if err := output.WriteMetadata(cfg.OutputDir, ts, msg.Type, msg.Meta); err != nil {
					m.metadataWriteErr.Add(1)
					log.Printf("metadata write failed: %v", err)
				}
				if msg.Type == "end" {
					runMu.Lock()
					runTimestamp = ""
					runMu.Unlock()
				}
				continue
			}
			select {
			case <-ctx.Done():
				return
			case detections <- msg:
			}
		}
	}()

	// Webcam JPEG frames pushed by the browser.
	frames := make(chan types.Frame, 8)
	frameFn := func(jpeg []byte) error {
		frame, err := detect.FrameFromJPEG(jpeg, float64(time.Now().UnixNano())/1e9)
		if err != nil {
			return err
		}
		frame.Seq = pipe.NextSeq()
		m.webcamFrames.Add(1)
		select {
		case frames <- frame:
		default:
			m.webcamDropped.Add(1)
		}
		return nil
	}

	snapshots := make(chan types.UISnapshot, 16)
	go pipe.Run(ctx, detections, frames, snapshots)

	// Rate-limit websocket updates: the freshest snapshot goes out at
	// most once per uiRate.
	uiMessages := make(chan any, 16)
	go func() {
		defer close(uiMessages)
		rate := cfg.UIRateDuration()
		if rate <= 0 {
			rate = 100 * time.Millisecond
		}
		ticker := time.NewTicker(rate)
		defer ticker.Stop()
		var pending *types.UISnapshot
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				pending = &snap
				setStatus("last_frame", time.Now().Format(time.RFC3339))
			case <-ticker.C:
				if pending == nil {
					continue
				}
				select {
				case uiMessages <- *pending:
					m.framesBroadcast.Add(1)
				default:
				}
				pending = nil
			}
		}
	}()

	if cfg.ModelAPI != "" {
		go modelapi.Poll(ctx, cfg.ModelAPI, *modelAPIVer, *modelInterval, func(st modelapi.Status) {
			statusMu.Lock()
			if st.Reachable {
				status["model"] = st.State
			} else {
				status["model"] = "unreachable"
			}
			statusMu.Unlock()
		})
	}

	// Persist the final visualization state on shutdown.
	defer func() {
		snap, ok := pipe.Latest()
		if !ok {
			return
		}
		ts := currentRun()
		if err := output.WriteRun(cfg.OutputDir, ts, snap); err != nil {
			m.outputWriteError.Add(1)
			log.Printf("output write failed: %v", err)
			return
		}
		m.outputWriteOK.Add(1)
		setStatus("last_write", time.Now().Format(time.RFC3339))
		log.Printf("wrote run artifacts for %s", ts)
	}()

	callbacks := server.Callbacks{
		Status: func() map[string]any {
			statusMu.Lock()
			copied := make(map[string]any, len(status)+1)
			for k, v := range status {
				copied[k] = v
			}
			statusMu.Unlock()
			payload := m.snapshot()
			for k, v := range pipe.Metrics() {
				payload[k] = v
			}
			payload["ingest_decode_failures_total"] = ingest.DecodeFailures()
			decodeCount, decodeNanos := ingest.DecodeTiming()
			payload["ingest_decode_total"] = decodeCount
			payload["ingest_decode_nanos_total"] = decodeNanos
			copied["metrics"] = payload
			return copied
		},
		Snapshot: func() any {
			snap, ok := pipe.Latest()
			if !ok {
				return nil
			}
			return snap
		},
		Config: func() map[string]any {
			return map[string]any{
				"type":          "config",
				"grid_size":     cfg.GridSize,
				"canvas_w":      cfg.CanvasW,
				"canvas_h":      cfg.CanvasH,
				"min_score":     cfg.MinScore,
				"iou_threshold": cfg.IoUThreshold,
				"endpoint":      cfg.Endpoint,
				"detector":      detectorName,
			}
		},
		SetGrid: func(n int) error {
			if !config.ValidGridSize(n) {
				return fmt.Errorf("unsupported grid size %d (want 7, 13 or 19)", n)
			}
			pipe.SetGridSize(n)
			return nil
		},
		Frame: frameFn,
	}

	log.Printf("Starting web UI at http://localhost:%d\n", cfg.Port)
	if err := server.Run(ctx, cfg, uiMessages, callbacks); err != nil {
		log.Printf("server stopped: %v", err)
	}
}

// startSource returns the detection message stream: the simulator in
// debug mode, otherwise ZMQ ingest with optional simulator fallback
// and automatic restart when the stream closes.
func startSource(ctx context.Context, cfg config.AppConfig, setStatus func(string, any)) <-chan types.RawMessage {
	if cfg.Debug {
		setStatus("source", "simulator")
		return simulator.Stream(ctx, int(cfg.CanvasW), int(cfg.CanvasH), cfg.DebugAcqRate)
	}

	var recorder ingest.RawRecorder
	if cfg.RawLog {
		writer, err := output.NewRawLogWriter(cfg.RawLogDir, "raw_cbor")
		if err != nil {
			log.Fatalf("failed to start raw log: %v", err)
		}
		recorder = writer
		go func() {
			<-ctx.Done()
			if err := writer.Close(); err != nil {
				log.Printf("raw log close failed: %v", err)
			}
		}()
	}

	out := make(chan types.RawMessage, 128)
	go func() {
		defer close(out)
		var ingestCancel context.CancelFunc
		var ingestCh <-chan types.RawMessage
		startIngest := func() {
			if ingestCancel != nil {
				ingestCancel()
			}
			ingestCtx, cancel := context.WithCancel(ctx)
			ingestCancel = cancel
			ch, err := ingest.StreamWithLogEveryAndRecorder(ingestCtx, cfg.Endpoint, cfg.IngestLogEvery, recorder)
			if err != nil {
				if cfg.IngestFallback {
					log.Printf("failed to start ingest: %v; falling back to simulator", err)
					setStatus("source", "simulator")
					ingestCh = simulator.Stream(ingestCtx, int(cfg.CanvasW), int(cfg.CanvasH), cfg.DebugAcqRate)
				} else {
					log.Fatalf("failed to start ingest: %v", err)
				}
			} else {
				setStatus("source", "ingest")
				ingestCh = ch
			}
		}
		startIngest()
		for {
			select {
			case <-ctx.Done():
				if ingestCancel != nil {
					ingestCancel()
				}
				return
			case msg, ok := <-ingestCh:
				if !ok {
					startIngest()
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- msg:
				}
			}
		}
	}()
	return out
}

func buildDetector(cfg config.AppConfig) (detect.Detector, string) {
	if cfg.CascadeFile != "" {
		d, err := detect.NewPigo(cfg.CascadeFile)
		if err != nil {
			log.Printf("pigo detector unavailable: %v; webcam frames will only reset the grid", err)
			return detect.Nop{}, "none"
		}
		return d, "pigo"
	}
	if cfg.ModelFile != "" {
		d, err := detect.NewDNN(cfg.ModelFile, cfg.ModelCfg)
		if err != nil {
			log.Printf("dnn detector unavailable: %v; webcam frames will only reset the grid", err)
			return detect.Nop{}, "none"
		}
		return d, "dnn"
	}
	return detect.Nop{}, "none"
}
