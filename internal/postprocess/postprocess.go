// Package postprocess turns raw model output into the final detection
// list: confidence filtering followed by greedy non-maximum
// suppression.
package postprocess

import (
	"math"
	"sort"

	"gridsight-go/internal/geometry"
	"gridsight-go/internal/types"
)

// Process filters rawDetections by minScore and removes duplicate
// boxes by greedy suppression at iouThreshold. The result is sorted
// descending by score; ties keep input order. Suppression is
// class-agnostic: any later box overlapping an earlier kept box at or
// beyond the threshold is dropped, whatever its class. The input slice
// is not modified.
func Process(rawDetections []types.Detection, minScore, iouThreshold float64) []types.Detection {
	kept := make([]types.Detection, 0, len(rawDetections))
	for _, det := range rawDetections {
		// A malformed detection is skipped on its own; the rest
		// of the frame still goes through.
		if !det.Box.Valid() || math.IsNaN(det.Score) {
			continue
		}
		if det.Score < minScore {
			continue
		}
		kept = append(kept, det)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})

	final := make([]types.Detection, 0, len(kept))
	for _, candidate := range kept {
		suppressed := false
		for i := range final {
			if geometry.IoU(candidate.Box, final[i].Box) >= iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			final = append(final, candidate)
		}
	}
	return final
}
