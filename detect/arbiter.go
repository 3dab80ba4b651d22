package detect

import (
	"github.com/harplab/stringtrace/dsp/common"
	"github.com/harplab/stringtrace/dsp/tonal"
)

// Source tags where a detection record's active set came from
type Source string

const (
	// SourceModel means the thresholded classifier decision was used
	SourceModel Source = "model"
	// SourcePitch means the pitch fallback supplied the active string
	SourcePitch Source = "pitch"
	// SourceNone means the fallback found no voiced frames
	SourceNone Source = "none"
)

// DetectionRecord is the durable per-onset result
type DetectionRecord struct {
	Time      float64   `json:"time_sec"`
	Active    []int     `json:"active"` // 1-based string indices, may be empty
	Top1      int       `json:"top1"`
	Top1Prob  float64   `json:"top1_prob"`
	Probs     []float64 `json:"probs"`     // NumStrings raw probabilities
	Decisions []int     `json:"decisions"` // NumStrings binary threshold decisions
	Source    Source    `json:"source"`    // meaningful in hybrid mode only
}

// PitchEstimator returns the dominant pitch of a raw waveform segment, or
// ok=false when no voiced frames are found.
type PitchEstimator interface {
	Estimate(segment []float64, sampleRate int) (pitch float64, ok bool)
}

// YinEstimator estimates pitch as the median of a per-frame YIN track
// restricted to the instrument's register.
type YinEstimator struct {
	tracker *tonal.YinTracker
}

// NewYinEstimator creates the default fallback estimator
func NewYinEstimator() *YinEstimator {
	return &YinEstimator{tracker: tonal.NewYinTracker()}
}

// Estimate runs the tracker and takes the median of voiced frames
func (e *YinEstimator) Estimate(segment []float64, sampleRate int) (float64, bool) {
	track := e.tracker.Track(segment, sampleRate)

	voiced := make([]float64, 0, len(track))
	for _, f := range track {
		if f > 0 {
			voiced = append(voiced, f)
		}
	}
	if len(voiced) == 0 {
		return 0, false
	}
	return common.Median(voiced), true
}

// Arbiter decides which strings are active for each onset, from the
// classifier probabilities or the pitch fallback.
type Arbiter struct {
	cfg        Config
	thresholds []float64
	estimator  PitchEstimator
}

// NewArbiter creates an arbiter for the given config
func NewArbiter(cfg Config, estimator PitchEstimator) *Arbiter {
	return &Arbiter{
		cfg:        cfg,
		thresholds: cfg.Thresholds(),
		estimator:  estimator,
	}
}

// Decide produces the DetectionRecord for one onset. rawSegment is the short
// attack window starting at the onset itself, used only by the hybrid
// fallback; default mode ignores it entirely.
func (a *Arbiter) Decide(onsetTime float64, probs []float64, rawSegment []float64, sampleRate int) DetectionRecord {
	record := DetectionRecord{
		Time:      onsetTime,
		Probs:     probs,
		Decisions: make([]int, NumStrings),
		Source:    SourceModel,
	}

	top1 := common.Argmax(probs)
	record.Top1 = top1 + 1
	record.Top1Prob = probs[top1]

	active := make([]int, 0, NumStrings)
	for i, p := range probs {
		if p >= a.thresholds[i] {
			record.Decisions[i] = 1
			active = append(active, i+1)
		}
	}
	record.Active = active

	if a.cfg.Mode == ModeHybrid && (record.Top1Prob < a.cfg.ConfidenceFloor || len(active) == 0) {
		// The classifier decision is discarded; the fallback wants the
		// raw attack, not the settled tone.
		if pitch, ok := a.estimator.Estimate(rawSegment, sampleRate); ok {
			record.Active = []int{NearestString(pitch)}
			record.Source = SourcePitch
		} else {
			record.Active = []int{}
			record.Source = SourceNone
		}
	}

	return record
}
