package tonal

import (
	"math"
)

// YinParams contains parameters for the YIN pitch tracker
type YinParams struct {
	FrameSize int     // Analysis frame length in samples
	HopSize   int     // Hop between frames in samples
	MinFreq   float64 // Lowest admissible pitch (Hz)
	MaxFreq   float64 // Highest admissible pitch (Hz)
	Threshold float64 // CMNDF trough threshold
}

// DefaultYinParams returns the tracker defaults for plucked-string material
func DefaultYinParams() YinParams {
	return YinParams{
		FrameSize: 1024,
		HopSize:   256,
		MinFreq:   90.0,
		MaxFreq:   800.0,
		Threshold: 0.15,
	}
}

// YinTracker implements per-frame YIN fundamental frequency estimation.
//
// Reference: de Cheveigné, A., Kawahara, H. (2002). "YIN, a fundamental
// frequency estimator for speech and music"
type YinTracker struct {
	params YinParams
}

// NewYinTracker creates a tracker with default parameters
func NewYinTracker() *YinTracker {
	return &YinTracker{params: DefaultYinParams()}
}

// NewYinTrackerWithParams creates a tracker with custom parameters
func NewYinTrackerWithParams(params YinParams) *YinTracker {
	return &YinTracker{params: params}
}

// Track estimates one pitch per frame. Unvoiced frames report 0.
// A segment shorter than one frame yields an empty track.
func (y *YinTracker) Track(signal []float64, sampleRate int) []float64 {
	if len(signal) < y.params.FrameSize {
		return []float64{}
	}

	numFrames := (len(signal)-y.params.FrameSize)/y.params.HopSize + 1
	track := make([]float64, numFrames)
	for i := range numFrames {
		start := i * y.params.HopSize
		track[i] = y.pitchForFrame(signal[start:start+y.params.FrameSize], sampleRate)
	}
	return track
}

// pitchForFrame runs YIN on one frame, returning 0 when no periodic
// candidate clears the threshold inside the admissible lag range.
func (y *YinTracker) pitchForFrame(frame []float64, sampleRate int) float64 {
	halfN := len(frame) / 2

	tauMin := int(float64(sampleRate) / y.params.MaxFreq)
	tauMax := int(float64(sampleRate)/y.params.MinFreq) + 1
	if tauMin < 1 {
		tauMin = 1
	}
	if tauMax > halfN {
		tauMax = halfN
	}
	if tauMin >= tauMax {
		return 0.0
	}

	// Difference function
	diff := make([]float64, tauMax)
	for tau := 1; tau < tauMax; tau++ {
		sum := 0.0
		for j := range halfN {
			delta := frame[j] - frame[j+tau]
			sum += delta * delta
		}
		diff[tau] = sum
	}

	// Cumulative mean normalized difference
	cmndf := make([]float64, tauMax)
	cmndf[0] = 1.0
	runningSum := 0.0
	for tau := 1; tau < tauMax; tau++ {
		runningSum += diff[tau]
		if runningSum > 0 {
			cmndf[tau] = diff[tau] / (runningSum / float64(tau))
		} else {
			cmndf[tau] = 1.0
		}
	}

	// First trough below threshold inside the admissible range
	minTau := -1
	for tau := tauMin; tau < tauMax-1; tau++ {
		if cmndf[tau] < y.params.Threshold && cmndf[tau] < cmndf[tau+1] {
			minTau = tau
			break
		}
	}
	if minTau < 0 {
		return 0.0
	}

	period := parabolicInterpolation(cmndf, minTau)
	if period <= 0 {
		return 0.0
	}

	frequency := float64(sampleRate) / period
	if frequency < y.params.MinFreq || frequency > y.params.MaxFreq || math.IsNaN(frequency) || math.IsInf(frequency, 0) {
		return 0.0
	}
	return frequency
}

// parabolicInterpolation refines a trough location using its neighbors
func parabolicInterpolation(data []float64, peakIdx int) float64 {
	if peakIdx <= 0 || peakIdx >= len(data)-1 {
		return float64(peakIdx)
	}

	y1 := data[peakIdx-1]
	y2 := data[peakIdx]
	y3 := data[peakIdx+1]

	a := (y1 - 2*y2 + y3) / 2
	b := (y3 - y1) / 2
	if a == 0 {
		return float64(peakIdx)
	}

	return float64(peakIdx) - b/(2*a)
}
