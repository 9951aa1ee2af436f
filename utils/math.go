// utils/math.go
package utils

import (
	"math"
	"strconv"
)

const Epsilon = 1e-9

// FloatEquals compares two floating-point numbers for near-equality.
func FloatEquals(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// RoundToPrecision rounds a float64 to a specified number of decimal places.
func RoundToPrecision(value float64, precision int) float64 {
	pow := math.Pow(10, float64(precision))
	return math.Round(value*pow) / pow
}

// FloorToStep truncates a quantity down to a multiple of the exchange step size.
func FloorToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	return math.Floor(value/step+Epsilon) * step
}

// StepPrecision returns the number of decimals implied by a step size such as 0.001.
func StepPrecision(step float64) int {
	precision := 0
	for step > 0 && step < 1 && precision < 16 {
		step *= 10
		precision++
	}
	return precision
}

// ParseFloat parses exchange numeric strings, treating malformed input as zero.
func ParseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// PercentChange returns (to-from)/from, or 0 when from is zero.
func PercentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from
}
