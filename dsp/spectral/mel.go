package spectral

import (
	"math"
)

// MelScale provides mel frequency conversion and mel spectrogram utilities
type MelScale struct{}

// NewMelScale creates a new mel scale converter
func NewMelScale() *MelScale {
	return &MelScale{}
}

// HzToMel converts frequency in Hz to mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// MelToHz converts mel scale to frequency in Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// CreateMelFilterBank creates a triangular mel-scale filter bank
func (ms *MelScale) CreateMelFilterBank(numFilters, fftSize, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	if numFilters <= 0 || fftSize <= 0 {
		return nil
	}

	lowMel := ms.HzToMel(lowFreq)
	highMel := ms.HzToMel(highFreq)

	// Equally spaced mel points, converted back to FFT bin indices
	melPoints := make([]float64, numFilters+2)
	melStep := (highMel - lowMel) / float64(numFilters+1)
	for i := range melPoints {
		melPoints[i] = lowMel + float64(i)*melStep
	}

	binPoints := make([]int, len(melPoints))
	for i, mel := range melPoints {
		hz := ms.MelToHz(mel)
		binPoints[i] = int(math.Floor((float64(fftSize)+1.0)*hz/float64(sampleRate) + 0.5))
		binPoints[i] = min(binPoints[i], fftSize/2)
	}

	filterBank := make([][]float64, numFilters)
	for i := range filterBank {
		filterBank[i] = make([]float64, fftSize/2+1)
	}

	for m := 1; m <= numFilters; m++ {
		leftBin := binPoints[m-1]
		centerBin := binPoints[m]
		rightBin := binPoints[m+1]

		for k := leftBin; k < centerBin && k < len(filterBank[m-1]); k++ {
			if centerBin != leftBin {
				filterBank[m-1][k] = float64(k-leftBin) / float64(centerBin-leftBin)
			}
		}
		for k := centerBin; k < rightBin && k < len(filterBank[m-1]); k++ {
			if rightBin != centerBin {
				filterBank[m-1][k] = float64(rightBin-k) / float64(rightBin-centerBin)
			}
		}
	}

	return filterBank
}

// ApplyFilterBank applies a mel filter bank to a power spectrum
func (ms *MelScale) ApplyFilterBank(powerSpectrum []float64, filterBank [][]float64) []float64 {
	if len(filterBank) == 0 || len(powerSpectrum) == 0 {
		return []float64{}
	}

	melSpectrum := make([]float64, len(filterBank))
	for i, filter := range filterBank {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(powerSpectrum); j++ {
			sum += powerSpectrum[j] * filter[j]
		}
		melSpectrum[i] = sum
	}
	return melSpectrum
}

// ComputeMelSpectrogram converts an STFT magnitude matrix into a mel power
// spectrogram (time x mel).
func (ms *MelScale) ComputeMelSpectrogram(stft *STFTResult, numFilters int, lowFreq, highFreq float64) [][]float64 {
	if stft == nil || stft.TimeFrames == 0 {
		return [][]float64{}
	}

	filterBank := ms.CreateMelFilterBank(numFilters, stft.WindowSize, stft.SampleRate, lowFreq, highFreq)

	mel := make([][]float64, stft.TimeFrames)
	powerSpectrum := make([]float64, stft.FreqBins)
	for t, magnitudes := range stft.Magnitude {
		for i, mag := range magnitudes {
			powerSpectrum[i] = mag * mag
		}
		mel[t] = ms.ApplyFilterBank(powerSpectrum, filterBank)
	}
	return mel
}

// PowerToDB converts a power spectrogram to decibels relative to its peak,
// flooring tiny values to keep the log finite.
func PowerToDB(power [][]float64) [][]float64 {
	const amin = 1e-10

	ref := amin
	for _, frame := range power {
		for _, v := range frame {
			if v > ref {
				ref = v
			}
		}
	}

	db := make([][]float64, len(power))
	for t, frame := range power {
		db[t] = make([]float64, len(frame))
		for i, v := range frame {
			db[t][i] = 10.0 * math.Log10(math.Max(v, amin)/ref)
		}
	}
	return db
}
