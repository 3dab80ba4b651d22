package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions shared across the dsp packages, backed by gonum.

// Mean calculates the arithmetic mean of a slice
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// Variance calculates the population variance of a slice
func Variance(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	mean := stat.Mean(data, nil)
	sum := 0.0
	for _, v := range data {
		diff := v - mean
		sum += diff * diff
	}
	return sum / float64(len(data))
}

// StandardDeviation calculates the population standard deviation
func StandardDeviation(data []float64) float64 {
	return math.Sqrt(Variance(data))
}

// ZScoreNormalize normalizes data to zero mean and unit variance.
// The epsilon keeps constant inputs finite instead of dividing by zero.
func ZScoreNormalize(data []float64, epsilon float64) []float64 {
	if len(data) == 0 {
		return data
	}

	mean := Mean(data)
	std := StandardDeviation(data)

	normalized := make([]float64, len(data))
	for i, v := range data {
		normalized[i] = (v - mean) / (std + epsilon)
	}
	return normalized
}

// PeakNormalize scales data by its peak absolute value.
// The epsilon guards silent input.
func PeakNormalize(data []float64, epsilon float64) []float64 {
	peak := 0.0
	for _, v := range data {
		if abs := math.Abs(v); abs > peak {
			peak = abs
		}
	}

	normalized := make([]float64, len(data))
	for i, v := range data {
		normalized[i] = v / (peak + epsilon)
	}
	return normalized
}

// Argmax returns the index of the largest value, or -1 for empty input
func Argmax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	best := 0
	for i, v := range data {
		if v > data[best] {
			best = i
		}
	}
	return best
}

// Median returns the median of the values, ignoring nothing.
// Callers filter unvoiced/non-finite entries before calling.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}
