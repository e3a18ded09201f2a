// Package geometry provides the planar math used to turn landmark positions into control values.
package geometry

import "gonum.org/v1/gonum/floats"

// Point is a 2D point. Depending on context the coordinates are either
// normalized image coordinates in [0,1] or pixel positions.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between a and b.
// It is symmetric and returns 0 when a == b.
func Distance(a, b Point) float64 {
	return floats.Distance([]float64{a.X, a.Y}, []float64{b.X, b.Y}, 2)
}

// MapRange remaps value from [inMin, inMax] to [outMin, outMax].
// The fractional position is clamped to [0,1] first, so values outside the
// source range saturate at the output bounds instead of extrapolating.
// A degenerate source range (inMax <= inMin) always yields outMin.
func MapRange(value, inMin, inMax, outMin, outMax float64) float64 {
	if inMax <= inMin {
		return outMin
	}

	t := (value - inMin) / (inMax - inMin)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	return outMin + t*(outMax-outMin)
}
