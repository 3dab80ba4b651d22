package temporal

import (
	"math"

	"github.com/harplab/stringtrace/dsp/common"
	"github.com/harplab/stringtrace/dsp/spectral"
	"github.com/harplab/stringtrace/dsp/window"
)

// OnsetDetector detects note/event onsets in audio signals using spectral
// flux peak picking, backtracking each peak to the preceding energy minimum
// so the reported time sits at the start of the attack rather than its crest.
type OnsetDetector struct {
	stft       *spectral.STFT
	windowSize int
	hopSize    int
}

// NewOnsetDetector creates a new onset detector
func NewOnsetDetector() *OnsetDetector {
	return &OnsetDetector{
		stft:       spectral.NewSTFT(),
		windowSize: 1024,
		hopSize:    512,
	}
}

// Detect returns candidate onset times in seconds, ordered ascending.
// An empty or too-short signal yields an empty slice without error.
func (od *OnsetDetector) Detect(signal []float64, sampleRate int) ([]float64, error) {
	if len(signal) < od.windowSize {
		return []float64{}, nil
	}

	stftResult, err := od.stft.ComputeWithWindow(signal, od.windowSize, od.hopSize, sampleRate, window.NewHann(od.windowSize))
	if err != nil {
		return nil, err
	}

	flux := od.spectralFlux(stftResult.Magnitude)
	if len(flux) == 0 {
		return []float64{}, nil
	}

	envelope := od.energyEnvelope(signal)
	threshold := od.adaptiveThreshold(flux)

	var onsets []float64
	for i := 1; i < len(flux)-1; i++ {
		if flux[i] > flux[i-1] && flux[i] >= flux[i+1] && flux[i] >= threshold {
			// flux[i] compares frame i+1 against frame i
			frame := od.backtrack(envelope, i+1)
			onsets = append(onsets, float64(frame*od.hopSize)/float64(sampleRate))
		}
	}

	if onsets == nil {
		return []float64{}, nil
	}
	return onsets, nil
}

// spectralFlux accumulates positive spectral change between adjacent frames
func (od *OnsetDetector) spectralFlux(spectrogram [][]float64) []float64 {
	if len(spectrogram) < 2 {
		return []float64{}
	}

	flux := make([]float64, len(spectrogram)-1)
	for t := 1; t < len(spectrogram); t++ {
		sum := 0.0
		for f := range spectrogram[t] {
			diff := spectrogram[t][f] - spectrogram[t-1][f]
			if diff > 0 {
				sum += diff * diff
			}
		}
		flux[t-1] = math.Sqrt(sum)
	}
	return flux
}

// energyEnvelope computes per-frame RMS energy on the same hop grid as the STFT
func (od *OnsetDetector) energyEnvelope(signal []float64) []float64 {
	numFrames := (len(signal)-od.windowSize)/od.hopSize + 1
	if numFrames <= 0 {
		return []float64{}
	}

	envelope := make([]float64, numFrames)
	for i := range numFrames {
		start := i * od.hopSize
		sumSquares := 0.0
		for j := start; j < start+od.windowSize; j++ {
			sumSquares += signal[j] * signal[j]
		}
		envelope[i] = math.Sqrt(sumSquares / float64(od.windowSize))
	}
	return envelope
}

// backtrack walks from a peak frame to the nearest preceding energy minimum
func (od *OnsetDetector) backtrack(envelope []float64, frame int) int {
	if len(envelope) == 0 {
		return frame
	}
	if frame >= len(envelope) {
		frame = len(envelope) - 1
	}
	for frame > 0 && envelope[frame-1] < envelope[frame] {
		frame--
	}
	return frame
}

// adaptiveThreshold derives a picking threshold from the flux statistics
func (od *OnsetDetector) adaptiveThreshold(flux []float64) float64 {
	return common.Mean(flux) + common.StandardDeviation(flux)
}
