// Package audio captures microphone input and measures its level.
package audio

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Epsilon keeps the decibel conversion finite for silent input.
const Epsilon = 1e-10

// RMS returns the root mean square of samples, or 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	buf := make([]float64, len(samples))
	for i, s := range samples {
		buf[i] = float64(s)
	}
	return math.Sqrt(floats.Dot(buf, buf) / float64(len(buf)))
}

// Decibels converts an RMS value to dBFS.
func Decibels(rms float64) float64 {
	return 20 * math.Log10(rms+Epsilon)
}

// Level returns the decibel level of samples.
func Level(samples []float32) float64 {
	return Decibels(RMS(samples))
}
