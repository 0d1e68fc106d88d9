package kz

import (
	"fmt"
	"math"
)

// Points is a checked score in [0, 10000].
type Points float64

// MaxPoints is the highest value a Points can hold.
const MaxPoints Points = 10_000

// NewPoints validates and constructs a Points value.
func NewPoints(value float64) (Points, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("points: value must be finite, got %v", value)
	}
	if value < 0 || value > float64(MaxPoints) {
		return 0, fmt.Errorf("points: value %v out of range [0, %v]", value, MaxPoints)
	}
	return Points(value), nil
}

// Float64 returns the underlying value.
func (p Points) Float64() float64 { return float64(p) }

// Time is a checked positive, finite duration in seconds.
type Time float64

// NewTime validates and constructs a Time value.
func NewTime(seconds float64) (Time, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, fmt.Errorf("time: value must be finite, got %v", seconds)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("time: value must be positive, got %v", seconds)
	}
	return Time(seconds), nil
}

// Float64 returns the underlying value in seconds.
func (t Time) Float64() float64 { return float64(t) }

// Teleports counts the number of teleports used during a run.
type Teleports uint32

// Rank is a 0-based leaderboard position.
type Rank uint
