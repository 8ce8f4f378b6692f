// Package excite turns raw win-probability samples into a clean series and
// reduces that series to a single Excitement Index.
package excite

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// MinSamples is the shortest series that can carry any excitement.
const MinSamples = 2

// sampleGrid is the float64 spacing on [0.5, 1]. Every sample is snapped to
// it with ties to even; 1-p on that grid is exact and the grid is symmetric
// about 0.5, so a series and its complement give the same integer steps.
const sampleGrid = 1 << 53

// indexQuantum is the resolution of the returned index.
const indexQuantum = 1e12

// Normalize cleans raw samples into a win-probability series in [0,1].
//
// Values that cannot be read as numbers are skipped. Values above 1.0 are
// treated as percentages and divided by 100. Anything still outside [0,1]
// after that is dropped rather than clamped. Order is preserved. If fewer
// than MinSamples values survive, Normalize returns nil.
func Normalize(raw []any) []float64 {
	out := make([]float64, 0, len(raw))
	for _, r := range raw {
		v, ok := toFloat(r)
		if !ok {
			continue
		}
		if p, ok := Sample(v); ok {
			out = append(out, p)
		}
	}
	if len(out) < MinSamples {
		return nil
	}
	return out
}

// NormalizeFloats is Normalize for callers that already hold float64s.
func NormalizeFloats(raw []float64) []float64 {
	vals := make([]any, len(raw))
	for i, v := range raw {
		vals[i] = v
	}
	return Normalize(vals)
}

// Sample applies the percentage heuristic and range check to one value.
func Sample(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v > 1.0 {
		v /= 100
	}
	if v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

// Index returns the total variation of a series: the sum of absolute
// differences between consecutive samples. Series shorter than MinSamples
// have an index of 0.
func Index(series []float64) float64 {
	if len(series) < MinSamples {
		return 0
	}
	var steps float64
	prev := gridPoint(series[0])
	for _, p := range series[1:] {
		cur := gridPoint(p)
		steps += math.Abs(cur - prev)
		prev = cur
	}
	return math.Round(steps/sampleGrid*indexQuantum) / indexQuantum
}

// gridPoint returns p in units of 1/sampleGrid, as an integral float64.
func gridPoint(p float64) float64 {
	return math.RoundToEven(p * sampleGrid)
}

// Complement returns the series seen from the other side: 1-p for every sample.
func Complement(series []float64) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = 1 - p
	}
	return out
}

func toFloat(r any) (float64, bool) {
	switch v := r.(type) {
	case nil:
		return 0, false
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%"))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
