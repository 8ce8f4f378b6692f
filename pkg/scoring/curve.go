// Package scoring maps a raw Excitement Index to a 40-100 Rewatchability
// Score through per-sport piecewise-linear calibration curves.
package scoring

import (
	"errors"
	"fmt"
	"math"
)

// Score range and band anchors shared by every curve.
const (
	Floor   = 40
	Ceiling = 100

	medianScore = 70
	p90Score    = 90
	p99Score    = 99

	// snapGrid absorbs float noise before the half-up integer rounding so
	// that interpolated values such as 99.49999999999999 land on 99.5.
	snapGrid = 1e9
)

// ErrInvalidCurve is returned when anchors are not positive and strictly increasing.
var ErrInvalidCurve = errors.New("invalid calibration curve")

// Curve holds the five raw-EI anchors of one league. The score is 40 at Min,
// 70 at Median, 90 at P90, 99 at P99 and 100 at Max, linear in between.
type Curve struct {
	Min    float64 `yaml:"min" json:"min"`
	Median float64 `yaml:"median" json:"median"`
	P90    float64 `yaml:"p90" json:"p90"`
	P99    float64 `yaml:"p99" json:"p99"`
	Max    float64 `yaml:"max" json:"max"`
}

// Anchors returns the anchors in ascending order.
func (c Curve) Anchors() [5]float64 {
	return [5]float64{c.Min, c.Median, c.P90, c.P99, c.Max}
}

// Validate rejects curves whose anchors would divide by zero or invert a band.
func (c Curve) Validate() error {
	a := c.Anchors()
	names := [5]string{"min", "median", "p90", "p99", "max"}
	for i, v := range a {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidCurve, names[i], v)
		}
		if i > 0 && v <= a[i-1] {
			return fmt.Errorf("%w: %s (%v) must exceed %s (%v)", ErrInvalidCurve, names[i], v, names[i-1], a[i-1])
		}
	}
	return nil
}

// Score maps a raw EI onto the curve. The result is always within [Floor, Ceiling].
func (c Curve) Score(ei float64) int {
	if math.IsNaN(ei) || ei <= c.Min {
		return Floor
	}

	var raw float64
	switch {
	case ei <= c.Median:
		raw = Floor + (medianScore-Floor)*(ei-c.Min)/(c.Median-c.Min)
	case ei <= c.P90:
		raw = medianScore + (p90Score-medianScore)*(ei-c.Median)/(c.P90-c.Median)
	case ei <= c.P99:
		raw = p90Score + (p99Score-p90Score)*(ei-c.P90)/(c.P99-c.P90)
	case ei <= c.Max:
		raw = p99Score + (Ceiling-p99Score)*(ei-c.P99)/(c.Max-c.P99)
	default:
		return Ceiling
	}
	return clamp(round(raw))
}

// round snaps to the grid and then rounds half away from zero.
func round(raw float64) int {
	snapped := math.Round(raw*snapGrid) / snapGrid
	return int(math.Round(snapped))
}

func clamp(s int) int {
	if s < Floor {
		return Floor
	}
	if s > Ceiling {
		return Ceiling
	}
	return s
}
