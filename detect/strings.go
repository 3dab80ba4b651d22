package detect

import (
	"math"
)

// NumStrings is the number of strings on the instrument
const NumStrings = 16

// StringFrequencies maps string index (1-based, highest pitch first) to its
// fundamental frequency in Hz.
var StringFrequencies = [NumStrings]float64{
	783.99, // 1  G5
	659.25, // 2  E5
	587.33, // 3  D5
	523.25, // 4  C5
	440.00, // 5  A4
	392.00, // 6  G4
	329.63, // 7  E4
	293.66, // 8  D4
	261.63, // 9  C4
	220.00, // 10 A3
	196.00, // 11 G3
	164.81, // 12 E3
	146.83, // 13 D3
	130.81, // 14 C3
	110.00, // 15 A2
	98.00,  // 16 G2
}

// StringFrequency returns the fundamental of the given 1-based string index
func StringFrequency(index int) float64 {
	return StringFrequencies[index-1]
}

// NearestString maps a pitch to the 1-based index of the string whose
// fundamental is numerically closest.
func NearestString(pitch float64) int {
	best := 1
	bestDist := math.Abs(StringFrequencies[0] - pitch)
	for i := 1; i < NumStrings; i++ {
		if dist := math.Abs(StringFrequencies[i] - pitch); dist < bestDist {
			bestDist = dist
			best = i + 1
		}
	}
	return best
}
