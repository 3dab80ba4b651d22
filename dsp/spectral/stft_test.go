package spectral

import (
	"errors"
	"math"
	"testing"

	"github.com/harplab/stringtrace/dsp/window"
)

func TestComputeWithWindowShape(t *testing.T) {
	sampleRate := 16000
	signal := make([]float64, sampleRate)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * 440 * float64(i) / float64(sampleRate))
	}

	stft := NewSTFT()
	result, err := stft.ComputeWithWindow(signal, 1024, 256, sampleRate, window.NewHann(1024))
	if err != nil {
		t.Fatalf("ComputeWithWindow: %v", err)
	}

	wantFrames := (len(signal)-1024)/256 + 1
	if result.TimeFrames != wantFrames || len(result.Magnitude) != wantFrames {
		t.Errorf("frames = %d, want %d", result.TimeFrames, wantFrames)
	}
	if result.FreqBins != 1024/2+1 {
		t.Errorf("bins = %d, want %d", result.FreqBins, 1024/2+1)
	}
	for i, frame := range result.Magnitude {
		if len(frame) != result.FreqBins {
			t.Fatalf("frame %d has %d bins", i, len(frame))
		}
	}
}

// mismatchedWindow always rejects the frame it is handed
type mismatchedWindow struct{}

func (mismatchedWindow) ApplyInPlace(signal []float64) error {
	return errors.New("signal length does not match window size")
}

func TestComputeWithWindowRejectsBadWindow(t *testing.T) {
	stft := NewSTFT()
	_, err := stft.ComputeWithWindow(make([]float64, 4096), 1024, 256, 16000, mismatchedWindow{})
	if err == nil {
		t.Fatal("expected error from failing window")
	}
}

func TestComputeWithWindowTooShort(t *testing.T) {
	stft := NewSTFT()
	if _, err := stft.ComputeWithWindow(make([]float64, 100), 1024, 256, 16000, window.NewHann(1024)); err == nil {
		t.Fatal("expected error for sub-window signal")
	}
}

func TestSTFTPeakAtSignalFrequency(t *testing.T) {
	sampleRate := 16000
	freq := 1000.0
	signal := make([]float64, sampleRate)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}

	stft := NewSTFT()
	result, err := stft.ComputeWithWindow(signal, 4096, 1024, sampleRate, window.NewHann(4096))
	if err != nil {
		t.Fatalf("ComputeWithWindow: %v", err)
	}

	frame := result.Magnitude[result.TimeFrames/2]
	peak := 0
	for i, v := range frame {
		if v > frame[peak] {
			peak = i
		}
	}
	if got := result.BinFrequency(peak); math.Abs(got-freq) > result.FreqResolution {
		t.Errorf("peak at %.1f Hz, want ~%.1f Hz", got, freq)
	}
}

func TestBinFrequencyEndpoints(t *testing.T) {
	result := &STFTResult{
		FreqBins:       513,
		SampleRate:     16000,
		WindowSize:     1024,
		FreqResolution: 16000.0 / 1024.0,
	}
	if got := result.BinFrequency(0); got != 0 {
		t.Errorf("bin 0 = %v Hz, want 0", got)
	}
	if got := result.NyquistFrequency(); got != 8000 {
		t.Errorf("nyquist = %v Hz, want 8000", got)
	}
}

func TestMelScaleRoundTrip(t *testing.T) {
	ms := NewMelScale()
	for _, hz := range []float64{0, 100, 440, 1000, 4000, 8000} {
		back := ms.MelToHz(ms.HzToMel(hz))
		if math.Abs(back-hz) > 1e-6 {
			t.Errorf("round trip %v Hz -> %v Hz", hz, back)
		}
	}
}

func TestCreateMelFilterBankShape(t *testing.T) {
	ms := NewMelScale()
	bank := ms.CreateMelFilterBank(128, 1024, 16000, 0, 8000)
	if len(bank) != 128 {
		t.Fatalf("got %d filters, want 128", len(bank))
	}
	for i, filter := range bank {
		if len(filter) != 1024/2+1 {
			t.Fatalf("filter %d has %d bins", i, len(filter))
		}
		for j, v := range filter {
			if v < 0 {
				t.Fatalf("filter %d bin %d negative: %v", i, j, v)
			}
		}
	}
}

func TestPowerToDBMaxIsZero(t *testing.T) {
	power := [][]float64{
		{1e-4, 1e-2},
		{1.0, 1e-3},
	}
	db := PowerToDB(power)

	maxDB := math.Inf(-1)
	for _, row := range db {
		for _, v := range row {
			if v > maxDB {
				maxDB = v
			}
		}
	}
	// Reference is the max, so the loudest cell sits at 0 dB
	if math.Abs(maxDB) > 1e-9 {
		t.Errorf("max dB = %v, want 0", maxDB)
	}
	if db[0][0] >= db[0][1] {
		t.Error("ordering not preserved through dB conversion")
	}
}

func TestPowerToDBSilence(t *testing.T) {
	db := PowerToDB([][]float64{{0, 0}})
	for _, row := range db {
		for i, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("db[0][%d] = %v, want finite", i, v)
			}
		}
	}
}
