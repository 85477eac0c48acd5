package gesture

import "github.com/ayusman/mudra/internal/detector"

// Filter returns the hands whose confidence score is strictly greater than
// threshold, preserving input order. The input slice is not modified.
func Filter(hands []detector.Hand, threshold float64) []detector.Hand {
	kept := make([]detector.Hand, 0, len(hands))
	for _, h := range hands {
		if h.Score > threshold {
			kept = append(kept, h)
		}
	}
	return kept
}
