package spectral

import (
	"fmt"
	"math/cmplx"
	"runtime"
	"sync"
)

// STFT provides Short-Time Fourier Transform functionality
type STFT struct {
	fft *FFT
}

// STFTResult holds the result of STFT analysis
type STFTResult struct {
	Magnitude      [][]float64 // Time x Frequency magnitude matrix
	TimeFrames     int         // Number of time frames
	FreqBins       int         // Number of frequency bins
	SampleRate     int         // Sample rate
	WindowSize     int         // FFT window size
	HopSize        int         // Hop size between frames
	FreqResolution float64     // Frequency resolution (Hz/bin)
	TimeResolution float64     // Time resolution (seconds/frame)
}

// Window interface for windowing functions
type Window interface {
	ApplyInPlace(signal []float64) error
}

// NewSTFT creates a new STFT calculator
func NewSTFT() *STFT {
	return &STFT{fft: NewFFT()}
}

// BinFrequency returns the center frequency of bin i
func (r *STFTResult) BinFrequency(i int) float64 {
	return float64(i) * r.FreqResolution
}

// NyquistFrequency returns the highest representable frequency
func (r *STFTResult) NyquistFrequency() float64 {
	return float64(r.SampleRate) / 2.0
}

// ComputeWithWindow computes the STFT with a custom window, processing frames
// in parallel. Frames are independent, so worker count never changes results.
func (s *STFT) ComputeWithWindow(signal []float64, windowSize, hopSize, sampleRate int, window Window) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}
	if hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	numFrames := (len(signal)-windowSize)/hopSize + 1
	if numFrames <= 0 {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}

	// Positive frequencies only
	freqBins := windowSize/2 + 1

	magnitude := make([][]float64, numFrames)
	for i := range numFrames {
		magnitude[i] = make([]float64, freqBins)
	}

	numWorkers := min(runtime.NumCPU(), numFrames)
	jobs := make(chan int, numFrames)

	var (
		wg        sync.WaitGroup
		errOnce   sync.Once
		windowErr error
	)
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			// Per-worker frame buffer
			frameBuffer := make([]float64, windowSize)

			for frameIdx := range jobs {
				startIdx := frameIdx * hopSize
				copy(frameBuffer, signal[startIdx:startIdx+windowSize])

				if window != nil {
					if err := window.ApplyInPlace(frameBuffer); err != nil {
						errOnce.Do(func() { windowErr = err })
						continue
					}
				}

				fftResult := s.fft.Compute(frameBuffer)
				for i := range freqBins {
					magnitude[frameIdx][i] = cmplx.Abs(fftResult[i])
				}
			}
		}()
	}

	for frameIdx := range numFrames {
		jobs <- frameIdx
	}
	close(jobs)
	wg.Wait()

	if windowErr != nil {
		return nil, fmt.Errorf("apply window: %w", windowErr)
	}

	return &STFTResult{
		Magnitude:      magnitude,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     sampleRate,
		WindowSize:     windowSize,
		HopSize:        hopSize,
		FreqResolution: float64(sampleRate) / float64(windowSize),
		TimeResolution: float64(hopSize) / float64(sampleRate),
	}, nil
}
