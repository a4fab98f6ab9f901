// Package scaling measures how a run's wall time changes with the number of
// ranks.
package scaling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/san-kum/gridsim/internal/sim"
)

// RunFunc runs cfg on procs ranks.
type RunFunc func(ctx context.Context, cfg sim.Config, procs int) (*sim.Result, error)

// Point is one measured process count.
type Point struct {
	Procs   int
	Elapsed time.Duration
	// Speedup and Efficiency are relative to the first point of the sweep.
	Speedup    float64
	Efficiency float64
}

type Sweep struct {
	procs   []int
	repeats int
}

// NewSweep measures each entry of procs in order, keeping the fastest of
// repeats runs.
func NewSweep(procs []int, repeats int) (*Sweep, error) {
	if len(procs) == 0 {
		return nil, errors.New("scaling: empty process list")
	}
	for _, p := range procs {
		if p < 1 {
			return nil, fmt.Errorf("scaling: invalid process count %d", p)
		}
	}
	return &Sweep{procs: procs, repeats: max(repeats, 1)}, nil
}

// Run measures every process count. Each result is passed to record, when
// set, as soon as it is measured.
func (s *Sweep) Run(ctx context.Context, cfg sim.Config, run RunFunc, record func(procs int, res *sim.Result) error) ([]Point, error) {
	points := make([]Point, 0, len(s.procs))
	for _, p := range s.procs {
		best := time.Duration(math.MaxInt64)
		for range s.repeats {
			if err := ctx.Err(); err != nil {
				return points, err
			}
			res, err := run(ctx, cfg, p)
			if err != nil {
				return points, fmt.Errorf("procs=%d: %w", p, err)
			}
			if record != nil {
				if err := record(p, res); err != nil {
					return points, err
				}
			}
			best = min(best, res.Elapsed)
		}
		points = append(points, Point{Procs: p, Elapsed: best})
	}

	base := points[0]
	for i := range points {
		pt := &points[i]
		if pt.Elapsed > 0 {
			pt.Speedup = base.Elapsed.Seconds() / pt.Elapsed.Seconds()
			pt.Efficiency = pt.Speedup * float64(base.Procs) / float64(pt.Procs)
		}
	}
	return points, nil
}

// Fastest returns the point with the lowest wall time.
func Fastest(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	best := points[0]
	for _, pt := range points[1:] {
		if pt.Elapsed < best.Elapsed {
			best = pt
		}
	}
	return best, true
}
