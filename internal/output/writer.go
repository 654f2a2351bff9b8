package output

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"gridsight-go/internal/render"
	"gridsight-go/internal/types"
)

// Timestamp returns the run timestamp format used in output filenames.
func Timestamp() string {
	return time.Now().Format("20060102_150405")
}

// WriteRun persists one run's final visualization state: a CSV of
// per-cell state, a JSON detection list and a PNG confidence heatmap.
func WriteRun(outputDir, runTimestamp string, snap types.UISnapshot) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	cellsPath := filepath.Join(outputDir, fmt.Sprintf("%s_cells.csv", runTimestamp))
	f, err := os.Create(cellsPath)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(f, "cell, row, col, state, confidence, owner")
	for _, c := range snap.Cells {
		_, _ = fmt.Fprintf(f, "%d, %d, %d, %s, %.6f, %d\n",
			c.ID, c.Row, c.Col, c.State, c.Confidence, c.Owner)
	}
	if err := f.Close(); err != nil {
		return err
	}

	detsPath := filepath.Join(outputDir, fmt.Sprintf("%s_detections.json", runTimestamp))
	payload, err := json.MarshalIndent(snap.Detections, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(detsPath, payload, 0o644); err != nil {
		return err
	}

	heatPath := filepath.Join(outputDir, fmt.Sprintf("%s_heatmap.png", runTimestamp))
	img := render.Heatmap(snap, int(snap.CanvasW), int(snap.CanvasH))
	if err := imaging.Save(img, heatPath); err != nil {
		return fmt.Errorf("write heatmap: %w", err)
	}
	return nil
}

// WriteMetadata stores one run metadata message as pretty JSON.
func WriteMetadata(outputDir, runTimestamp, kind string, meta map[string]any) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	normalized := NormalizeJSONValue(meta)
	payload, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(outputDir, fmt.Sprintf("%s_%s_meta.json", runTimestamp, kind))
	return os.WriteFile(path, payload, 0o644)
}

// NormalizeJSONValue rewrites CBOR-decoded values into shapes the JSON
// encoder accepts: map keys become strings and raw bytes become
// base64.
func NormalizeJSONValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, entry := range v {
			out[key] = NormalizeJSONValue(entry)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, entry := range v {
			out[fmt.Sprintf("%v", key)] = NormalizeJSONValue(entry)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, entry := range v {
			out[i] = NormalizeJSONValue(entry)
		}
		return out
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	default:
		return v
	}
}
