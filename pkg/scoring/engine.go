package scoring

import (
	"fmt"
	"math"

	"github.com/elonfeng/rewatch/pkg/sport"
)

// CurveSetVersion names the anchor set compiled into DefaultCurves.
const CurveSetVersion = "v1"

// DefaultCurves are the v1 anchors, derived from regular-season EI
// distributions of each league (min, median, p90, p99, max).
func DefaultCurves() map[sport.Sport]Curve {
	return map[sport.Sport]Curve{
		sport.NBA:   {Min: 0.00536, Median: 0.16262, P90: 0.2632740, P99: 0.3418272, Max: 0.42322},
		sport.NFL:   {Min: 0.00984, Median: 0.087269, P90: 0.1444728, P99: 0.22292766, Max: 0.297374},
		sport.MLB:   {Min: 0.00326, Median: 0.04436, P90: 0.0755340, P99: 0.1103992, Max: 0.16694},
		sport.NCAAF: {Min: 0.000026, Median: 0.060416, P90: 0.127918, P99: 0.1876307, Max: 0.286786},
		sport.NCAAB: {Min: 0.00002, Median: 0.07897, P90: 0.156834, P99: 0.2132926, Max: 0.33728},
	}
}

// Engine scores games with a fixed, validated curve per sport.
type Engine struct {
	curves map[sport.Sport]Curve
}

// NewEngine validates every curve up front. A broken curve would silently
// mis-score a whole season, so construction fails instead.
func NewEngine(curves map[sport.Sport]Curve) (*Engine, error) {
	copied := make(map[sport.Sport]Curve, len(curves))
	for s, c := range curves {
		if !s.Valid() {
			return nil, fmt.Errorf("curve for %q: %w", s, sport.ErrUnknownSport)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("curve for %s: %w", s, err)
		}
		copied[s] = c
	}
	return &Engine{curves: copied}, nil
}

// DefaultEngine returns an engine over DefaultCurves.
func DefaultEngine() *Engine {
	e, err := NewEngine(DefaultCurves())
	if err != nil {
		panic(err)
	}
	return e
}

// WithOverrides returns the default curves with the given ones replacing them.
func WithOverrides(overrides map[sport.Sport]Curve) map[sport.Sport]Curve {
	curves := DefaultCurves()
	for s, c := range overrides {
		curves[s] = c
	}
	return curves
}

// Option adjusts a single Score call.
type Option func(*scoreOpts)

type scoreOpts struct {
	scale float64
}

// WithScale multiplies the raw EI before it is mapped onto the curve.
func WithScale(f float64) Option {
	return func(o *scoreOpts) {
		if f > 0 && !math.IsInf(f, 0) {
			o.scale = f
		}
	}
}

// Score maps (sport, raw EI) to a display score. Unknown sports score the
// floor rather than failing so one bad key cannot stall the polling loop.
func (e *Engine) Score(s sport.Sport, ei float64, opts ...Option) int {
	o := scoreOpts{scale: 1}
	for _, opt := range opts {
		opt(&o)
	}
	c, ok := e.curves[s]
	if !ok {
		return Floor
	}
	return c.Score(ei * o.scale)
}

// Curve returns the curve configured for s.
func (e *Engine) Curve(s sport.Sport) (Curve, bool) {
	c, ok := e.curves[s]
	return c, ok
}

// Sports lists the sports that have a curve, in sport.All order.
func (e *Engine) Sports() []sport.Sport {
	var out []sport.Sport
	for _, s := range sport.All() {
		if _, ok := e.curves[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
