package calibrate

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/elonfeng/rewatch/pkg/scoring"
	"github.com/elonfeng/rewatch/pkg/sport"
)

// ErrTooFewGames is returned when a dataset cannot yield distinct anchors.
var ErrTooFewGames = errors.New("not enough games to calibrate")

// Percentile returns the nearest-rank p-th percentile of an ascending slice.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

// Anchors derives a curve from raw EI values: min, median, p90, p99, max.
// Non-positive values are ignored. The result must pass Curve.Validate.
func Anchors(values []float64) (scoring.Curve, error) {
	vals := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) < 5 {
		return scoring.Curve{}, fmt.Errorf("%w: have %d", ErrTooFewGames, len(vals))
	}
	sort.Float64s(vals)

	c := scoring.Curve{
		Min:    vals[0],
		Median: Percentile(vals, 50),
		P90:    Percentile(vals, 90),
		P99:    Percentile(vals, 99),
		Max:    vals[len(vals)-1],
	}
	if err := c.Validate(); err != nil {
		return scoring.Curve{}, err
	}
	return c, nil
}

// Result is the calibration of one sport.
type Result struct {
	Sport sport.Sport
	Games int
	Curve scoring.Curve
}

// FromRows calibrates every sport present in rows. Rows without a known
// sport are assigned to fallback when it is set.
func FromRows(rows []Row, fallback sport.Sport) ([]Result, error) {
	bySport := make(map[sport.Sport][]float64)
	for _, r := range rows {
		sp := r.Sport
		if sp == "" {
			sp = fallback
		}
		if sp == "" {
			continue
		}
		bySport[sp] = append(bySport[sp], r.EI)
	}

	var out []Result
	for _, sp := range sport.All() {
		vals, ok := bySport[sp]
		if !ok {
			continue
		}
		c, err := Anchors(vals)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sp, err)
		}
		out = append(out, Result{Sport: sp, Games: len(vals), Curve: c})
	}
	if len(out) == 0 {
		return nil, ErrTooFewGames
	}
	return out, nil
}
