package sim

import (
	"context"
	"math/rand"
	"time"

	"github.com/san-kum/gridsim/internal/grid"
	"github.com/san-kum/gridsim/internal/metrics"
	"github.com/san-kum/gridsim/internal/physics"
	"github.com/san-kum/gridsim/internal/store"
)

// RunSerial is the single-process reference: the same grid, force law and
// integrator with no transport. A one-rank distributed run reproduces it bit
// for bit.
func RunSerial(ctx context.Context, cfg Config, opts ...Option) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	size := cfg.DomainSize()
	prm := cfg.Physics

	g := grid.New(size, prm.Cutoff)
	ps := store.New(cfg.Particles)
	for _, p := range physics.Init(cfg.Particles, size, rand.New(rand.NewSource(cfg.Seed))) {
		id := ps.Add(p)
		g.Insert(grid.Entry{ID: id}, p.X, p.Y)
	}

	acc := metrics.NewAccumulator()
	sample := metrics.NewSample()
	cells := make([]grid.Cell, cfg.Particles)
	counts := []int{cfg.Particles}
	start := time.Now()

	for step := 0; step < cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cfg.SaveEvery > 0 && step%cfg.SaveEvery == 0 && o.sink != nil {
			if err := o.sink.WriteFrame(step, size, ps.Snapshot()); err != nil {
				return nil, &StepError{Step: step, Phase: PhaseSnapshot, Err: err}
			}
		}

		sample.Reset()
		for id, p := range ps.All() {
			p.AX, p.AY = 0, 0
			for e := range g.Adjacent(g.CellOf(p.X, p.Y)) {
				if e.ID != id {
					prm.ApplyForce(p, ps.Get(e.ID), &sample)
				}
			}
		}

		diag := metrics.Step{Step: step, Sample: sample}
		if cfg.Diagnostics {
			acc.Observe(diag)
		}

		for id, p := range ps.All() {
			cells[id] = g.CellOf(p.X, p.Y)
			prm.Move(p, size)
		}
		for id, p := range ps.All() {
			to := g.CellOf(p.X, p.Y)
			if to != cells[id] {
				g.Remove(grid.Entry{ID: id}, cells[id])
				g.InsertAt(grid.Entry{ID: id}, to)
			}
		}

		o.emit(StepEvent{
			Step:        step,
			Counts:      counts,
			Diagnostics: diag,
			HasDiag:     cfg.Diagnostics,
			Elapsed:     time.Since(start),
		})
	}

	res := &Result{
		Particles: cfg.Particles,
		Procs:     1,
		Steps:     cfg.Steps,
		Size:      size,
		Elapsed:   time.Since(start),
		Final:     ps.Snapshot(),
	}
	if cfg.Diagnostics {
		res.AbsMin = acc.AbsMin()
		res.AbsAvg = acc.AbsAvg()
		res.Warnings = acc.Warnings(metrics.DefaultThresholds())
		res.History = acc.History()
	}
	o.log.WithField("steps", cfg.Steps).Info("serial run complete")
	return res, nil
}
