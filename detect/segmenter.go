package detect

import (
	"github.com/harplab/stringtrace/dsp/temporal"
)

// Segmenter turns a waveform into a sparse sequence of accepted onset times.
// The raw detector can report bursts of closely spaced candidates around one
// pluck; the segmenter collapses each burst to its first member by requiring
// a minimum hold between accepted onsets.
type Segmenter struct {
	detector *temporal.OnsetDetector
	holdSec  float64
}

// NewSegmenter creates a segmenter with the fixed hold duration
func NewSegmenter() *Segmenter {
	return &Segmenter{
		detector: temporal.NewOnsetDetector(),
		holdSec:  HoldSec,
	}
}

// Segment returns accepted onset times in seconds, strictly increasing and
// separated by at least the hold duration. An onset-less recording yields an
// empty slice without error.
func (s *Segmenter) Segment(samples []float64, sampleRate int) ([]float64, error) {
	raw, err := s.detector.Detect(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	return s.applyHold(raw), nil
}

// applyHold is a single left-to-right pass keeping a candidate only when it
// sits at least holdSec after the previously accepted one.
func (s *Segmenter) applyHold(raw []float64) []float64 {
	accepted := make([]float64, 0, len(raw))
	last := -1e9
	for _, t := range raw {
		if t-last >= s.holdSec {
			accepted = append(accepted, t)
			last = t
		}
	}
	return accepted
}
