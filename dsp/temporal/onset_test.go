package temporal

import (
	"math"
	"testing"
)

// pluckSignal builds silence with decaying sine bursts at the given times
func pluckSignal(durationSec float64, sampleRate int, burstTimes []float64) []float64 {
	signal := make([]float64, int(durationSec*float64(sampleRate)))
	for _, t := range burstTimes {
		start := int(t * float64(sampleRate))
		length := sampleRate / 5 // 200 ms burst
		for i := 0; i < length && start+i < len(signal); i++ {
			decay := math.Exp(-8.0 * float64(i) / float64(length))
			signal[start+i] += 0.8 * decay * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
		}
	}
	return signal
}

func TestDetectEmptySignal(t *testing.T) {
	od := NewOnsetDetector()
	onsets, err := od.Detect(nil, 16000)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(onsets) != 0 {
		t.Errorf("got %d onsets from empty signal, want 0", len(onsets))
	}
}

func TestDetectTooShortSignal(t *testing.T) {
	od := NewOnsetDetector()
	onsets, err := od.Detect(make([]float64, 512), 16000)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(onsets) != 0 {
		t.Errorf("got %d onsets from short signal, want 0", len(onsets))
	}
}

func TestDetectSilenceYieldsNoOnsets(t *testing.T) {
	od := NewOnsetDetector()
	onsets, err := od.Detect(make([]float64, 16000), 16000)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(onsets) != 0 {
		t.Errorf("got %d onsets from silence, want 0", len(onsets))
	}
}

func TestDetectFindsBursts(t *testing.T) {
	sampleRate := 16000
	burstTimes := []float64{0.5, 1.5, 2.5}
	signal := pluckSignal(3.5, sampleRate, burstTimes)

	od := NewOnsetDetector()
	onsets, err := od.Detect(signal, sampleRate)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(onsets) == 0 {
		t.Fatal("no onsets detected in burst signal")
	}

	// Every burst should have a detected onset nearby
	for _, want := range burstTimes {
		found := false
		for _, got := range onsets {
			if math.Abs(got-want) < 0.1 {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no onset within 100 ms of burst at %.2f s (got %v)", want, onsets)
		}
	}
}

func TestDetectOnsetsMonotonic(t *testing.T) {
	sampleRate := 16000
	signal := pluckSignal(4.0, sampleRate, []float64{0.4, 1.0, 1.8, 2.6, 3.2})

	od := NewOnsetDetector()
	onsets, err := od.Detect(signal, sampleRate)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	for i := 1; i < len(onsets); i++ {
		if onsets[i] < onsets[i-1] {
			t.Fatalf("onsets not ascending: %v", onsets)
		}
	}
}

func TestBacktrackStopsAtMinimum(t *testing.T) {
	od := NewOnsetDetector()
	envelope := []float64{0.5, 0.1, 0.3, 0.8}
	// Walking back from the crest should stop at the local minimum,
	// not continue to the earlier higher frame.
	if got := od.backtrack(envelope, 3); got != 1 {
		t.Errorf("backtrack = %d, want 1", got)
	}
}

func TestBacktrackClampsFrame(t *testing.T) {
	od := NewOnsetDetector()
	envelope := []float64{0.1, 0.2}
	if got := od.backtrack(envelope, 10); got < 0 || got >= len(envelope) {
		t.Errorf("backtrack = %d, out of range", got)
	}
}
