package detect

import (
	"fmt"
)

// Fixed pipeline constants. These match the training-time feature layout of
// the classifier, so they are not runtime-tunable.
const (
	// SampleRate is the mono analysis rate the decoder resamples to
	SampleRate = 16000

	// ClipSec is the classifier clip length anchored at each onset
	ClipSec = 0.8
	// OffsetSec shifts the clip past the detected edge so the attack
	// transient settles before the clip starts
	OffsetSec = 0.03
	// HoldSec is the minimum spacing between accepted onsets
	HoldSec = 0.18

	// Mel spectrogram path
	NumMels    = 128
	MelFFTSize = 1024
	MelHopSize = 256

	// Harmonic energy path. The larger window buys the frequency
	// resolution harmonic discrimination needs.
	HarmonicFFTSize = 4096
	HarmonicHopSize = 256
	HarmonicCount   = 5
	CentsWidth      = 35.0

	// Pitch fallback window anchored at the raw onset
	FallbackWindowSec = 0.15

	// Subtitle overlay timing
	FlashSec        = 0.25
	SubtitleLeadSec = 0.02
)

// ClipSamples is the exact clip length in samples
const ClipSamples = int(SampleRate * ClipSec)

// Mode selects the arbitration policy
type Mode string

const (
	// ModeDefault applies a single global threshold and never falls back
	ModeDefault Mode = "default"
	// ModeHybrid applies per-string thresholds and a pitch fallback when
	// the classifier is not confident
	ModeHybrid Mode = "hybrid"
)

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDefault, ModeHybrid:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModeDefault, ModeHybrid)
	}
}

// Config holds the tunable arbitration thresholds. The defaults are
// empirically tuned against the shipped classifier.
type Config struct {
	Mode Mode

	// Threshold applies to every string in both modes
	Threshold float64
	// String12Threshold replaces Threshold for string 12 in hybrid mode,
	// compensating a known under-confidence of the classifier there
	String12Threshold float64
	// ConfidenceFloor triggers the pitch fallback in hybrid mode when the
	// top-1 probability sits below it
	ConfidenceFloor float64
}

// DefaultConfig returns the tuned defaults in hybrid mode
func DefaultConfig() Config {
	return Config{
		Mode:              ModeHybrid,
		Threshold:         0.25,
		String12Threshold: 0.03,
		ConfidenceFloor:   0.20,
	}
}

// Thresholds returns the per-string threshold vector for the active mode
func (c Config) Thresholds() []float64 {
	thresholds := make([]float64, NumStrings)
	for i := range thresholds {
		thresholds[i] = c.Threshold
	}
	if c.Mode == ModeHybrid {
		thresholds[11] = c.String12Threshold
	}
	return thresholds
}
