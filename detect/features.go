package detect

import (
	"fmt"
	"math"

	"github.com/harplab/stringtrace/dsp/common"
	"github.com/harplab/stringtrace/dsp/spectral"
	"github.com/harplab/stringtrace/dsp/window"
)

// FeaturePair bundles the two classifier inputs derived from one onset clip:
// a normalized log-power mel spectrogram patch and a per-string harmonic
// energy vector.
type FeaturePair struct {
	Mel    [][]float64 // Time x mel, z-score normalized per clip
	Energy []float64   // NumStrings entries, log1p + z-score normalized
}

// FeatureExtractor derives FeaturePairs from a waveform. Both outputs are
// deterministic pure functions of the clip; the extractor carries no state
// beyond its transforms.
type FeatureExtractor struct {
	stft       *spectral.STFT
	mel        *spectral.MelScale
	melWindow  *window.Hann
	harmWindow *window.Hann
	sampleRate int
}

// NewFeatureExtractor creates an extractor for the given sample rate
func NewFeatureExtractor(sampleRate int) *FeatureExtractor {
	return &FeatureExtractor{
		stft:       spectral.NewSTFT(),
		mel:        spectral.NewMelScale(),
		melWindow:  window.NewHann(MelFFTSize),
		harmWindow: window.NewHann(HarmonicFFTSize),
		sampleRate: sampleRate,
	}
}

// Extract produces the FeaturePair for the clip anchored at onsetTime.
// The clip starts OffsetSec after the onset and is zero-padded on the right
// when it runs past the end of the waveform, so its length is always exactly
// ClipSec times the sample rate.
func (fe *FeatureExtractor) Extract(samples []float64, onsetTime float64) (*FeaturePair, error) {
	clip := fe.clipAt(samples, onsetTime)
	clip = common.PeakNormalize(clip, 1e-9)

	mel, err := fe.melPatch(clip)
	if err != nil {
		return nil, fmt.Errorf("mel patch at %.3fs: %w", onsetTime, err)
	}

	energy, err := fe.harmonicEnergy(clip)
	if err != nil {
		return nil, fmt.Errorf("harmonic energy at %.3fs: %w", onsetTime, err)
	}

	return &FeaturePair{Mel: mel, Energy: energy}, nil
}

// clipAt extracts the fixed-length clip starting OffsetSec after the onset
func (fe *FeatureExtractor) clipAt(samples []float64, onsetTime float64) []float64 {
	clipLen := int(ClipSec * float64(fe.sampleRate))
	start := int((onsetTime + OffsetSec) * float64(fe.sampleRate))
	if start < 0 {
		start = 0
	}

	clip := make([]float64, clipLen)
	if start < len(samples) {
		copy(clip, samples[start:min(start+clipLen, len(samples))])
	}
	return clip
}

// melPatch computes the z-score normalized log-power mel spectrogram
func (fe *FeatureExtractor) melPatch(clip []float64) ([][]float64, error) {
	stftResult, err := fe.stft.ComputeWithWindow(clip, MelFFTSize, MelHopSize, fe.sampleRate, fe.melWindow)
	if err != nil {
		return nil, err
	}

	melPower := fe.mel.ComputeMelSpectrogram(stftResult, NumMels, 0, float64(fe.sampleRate)/2.0)
	melDB := spectral.PowerToDB(melPower)
	zScorePatch(melDB, 1e-6)
	return melDB, nil
}

// harmonicEnergy computes the per-string harmonic energy vector. For each
// string fundamental it sums the mean spectral magnitude inside a ±CentsWidth
// band around each of the first HarmonicCount harmonics, stopping once a
// harmonic crosses the Nyquist bound.
func (fe *FeatureExtractor) harmonicEnergy(clip []float64) ([]float64, error) {
	stftResult, err := fe.stft.ComputeWithWindow(clip, HarmonicFFTSize, HarmonicHopSize, fe.sampleRate, fe.harmWindow)
	if err != nil {
		return nil, err
	}

	nyquist := stftResult.NyquistFrequency()
	vec := make([]float64, NumStrings)

	for s := range NumStrings {
		f0 := StringFrequencies[s]
		energy := 0.0
		for h := 1; h <= HarmonicCount; h++ {
			fh := f0 * float64(h)
			if fh >= nyquist {
				break
			}
			lo := fh * math.Pow(2, -CentsWidth/1200.0)
			hi := fh * math.Pow(2, CentsWidth/1200.0)
			energy += bandMeanMagnitude(stftResult, lo, hi)
		}
		vec[s] = math.Log1p(energy)
	}

	return common.ZScoreNormalize(vec, 1e-6), nil
}

// bandMeanMagnitude averages the STFT magnitude over all frames and the bins
// whose center frequency falls in [lo, hi). The band always spans at least
// one bin.
func bandMeanMagnitude(stftResult *spectral.STFTResult, lo, hi float64) float64 {
	i0 := int(math.Ceil(lo / stftResult.FreqResolution))
	i1 := int(math.Ceil(hi / stftResult.FreqResolution))
	if i0 < 0 {
		i0 = 0
	}
	if i1 <= i0 {
		i1 = i0 + 1
	}
	if i0 >= stftResult.FreqBins {
		return 0.0
	}
	if i1 > stftResult.FreqBins {
		i1 = stftResult.FreqBins
	}

	sum := 0.0
	count := 0
	for _, frame := range stftResult.Magnitude {
		for i := i0; i < i1; i++ {
			sum += frame[i]
			count++
		}
	}
	if count == 0 {
		return 0.0
	}
	return sum / float64(count)
}

// zScorePatch normalizes a 2-D patch in place using the statistics of all
// its values.
func zScorePatch(patch [][]float64, epsilon float64) {
	n := 0
	sum := 0.0
	for _, row := range patch {
		for _, v := range row {
			sum += v
			n++
		}
	}
	if n == 0 {
		return
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, row := range patch {
		for _, v := range row {
			diff := v - mean
			variance += diff * diff
		}
	}
	std := math.Sqrt(variance / float64(n))

	for _, row := range patch {
		for i, v := range row {
			row[i] = (v - mean) / (std + epsilon)
		}
	}
}
