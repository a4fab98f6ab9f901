package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/gridsim/internal/grid"
	"github.com/san-kum/gridsim/internal/halo"
	"github.com/san-kum/gridsim/internal/metrics"
	"github.com/san-kum/gridsim/internal/migrate"
	"github.com/san-kum/gridsim/internal/particle"
	"github.com/san-kum/gridsim/internal/physics"
	"github.com/san-kum/gridsim/internal/store"
	"github.com/san-kum/gridsim/internal/transport"
)

// Worker is one rank of a distributed run. It owns the particles whose rows
// fall in its range, plus a read-only copy of its neighbours' boundary rows
// for the duration of each step.
type Worker struct {
	options
	cfg  Config
	comm transport.Comm
	size float64

	grid     *grid.Grid
	owned    *store.Local
	ghosts   *store.Local
	halo     *halo.Exchanger
	migrator *migrate.Migrator
	pool     *particle.BufferPool

	sample metrics.Sample
	acc    *metrics.Accumulator
	moves  []migrate.Move
	counts []int
	start  time.Time
}

func NewWorker(c transport.Comm, cfg Config, opts ...Option) (*Worker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	o.log = o.log.WithFields(logrus.Fields{"rank": c.Rank(), "procs": c.Size()})

	size := cfg.DomainSize()
	expect := cfg.Particles/c.Size() + 1
	w := &Worker{
		options: o,
		cfg:     cfg,
		comm:    c,
		size:    size,
		grid:    grid.New(size, cfg.Physics.Cutoff),
		owned:   store.New(expect),
		ghosts:  store.New(expect / 4),
		pool:    particle.NewBufferPool(expect * particle.Size / 4),
		sample:  metrics.NewSample(),
		acc:     metrics.NewAccumulator(),
	}
	w.halo = halo.NewExchanger(c, w.grid, w.owned, w.ghosts, w.pool, w.log)
	w.migrator = migrate.NewMigrator(c, w.grid, w.owned, w.pool, w.log)
	return w, nil
}

func (w *Worker) Rank() int            { return w.comm.Rank() }
func (w *Worker) Grid() *grid.Grid     { return w.grid }
func (w *Worker) Owned() *store.Local  { return w.owned }
func (w *Worker) Ghosts() *store.Local { return w.ghosts }

// Counts is the per-rank ownership table from the last ownership check.
func (w *Worker) Counts() []int { return w.counts }

func (w *Worker) fail(step int, ph Phase, err error) error {
	return &StepError{Rank: w.comm.Rank(), Step: step, Phase: ph, Err: err}
}

// Init generates the population on the root, broadcasts it and keeps the
// particles this rank owns.
func (w *Worker) Init(ctx context.Context) error {
	var payload []byte
	if w.comm.Rank() == transport.Root {
		ps := physics.Init(w.cfg.Particles, w.size, rand.New(rand.NewSource(w.cfg.Seed)))
		payload = particle.AppendRecords(make([]byte, 0, len(ps)*particle.Size), ps)
	}
	payload, err := transport.Bcast(ctx, w.comm, transport.TagBcast, payload)
	if err != nil {
		return w.fail(0, PhaseInit, err)
	}
	all, err := particle.DecodeRecords(payload)
	if err != nil {
		return w.fail(0, PhaseInit, err)
	}
	if len(all) != w.cfg.Particles {
		return w.fail(0, PhaseInit, fmt.Errorf("%w: expected %d particles, got %d", particle.ErrCountMismatch, w.cfg.Particles, len(all)))
	}
	return w.Seed(ctx, all)
}

// Seed installs the owned subset of ps and checks the ownership invariant.
func (w *Worker) Seed(ctx context.Context, ps []particle.Particle) error {
	w.owned.Reset()
	w.ghosts.Reset()
	w.grid.Clear()
	for _, p := range ps {
		if w.grid.OwnerOf(p.X, p.Y, w.comm.Size()) != w.comm.Rank() {
			continue
		}
		id := w.owned.Add(p)
		w.grid.Insert(grid.Entry{ID: id}, p.X, p.Y)
	}
	if err := w.checkOwnership(ctx); err != nil {
		return w.fail(0, PhaseInit, err)
	}
	w.log.WithField("owned", w.owned.Len()).Debug("initialised")
	return nil
}

// Step advances every owned particle by one time step.
func (w *Worker) Step(ctx context.Context, step int) error {
	if w.cfg.SaveEvery > 0 && step%w.cfg.SaveEvery == 0 {
		if err := w.snapshot(ctx, step); err != nil {
			return w.fail(step, PhaseSnapshot, err)
		}
	}

	w.halo.Clear()
	hs, err := w.halo.Exchange(ctx)
	if err != nil {
		return w.fail(step, PhaseHalo, err)
	}

	if err := w.force(); err != nil {
		return w.fail(step, PhaseForce, err)
	}

	var diag metrics.Step
	if w.cfg.Diagnostics {
		if diag, err = w.reduceDiagnostics(ctx, step); err != nil {
			return w.fail(step, PhaseDiagnostics, err)
		}
	}

	w.moves = w.migrator.Record(w.moves)
	for _, p := range w.owned.All() {
		w.cfg.Physics.Move(p, w.size)
	}

	ms := w.migrator.Detect(w.moves)
	arrived, err := w.migrator.Exchange(ctx)
	if err != nil {
		return w.fail(step, PhaseMigrate, err)
	}

	if err := w.checkOwnership(ctx); err != nil {
		return w.fail(step, PhaseOwnership, err)
	}

	w.log.WithFields(logrus.Fields{
		"step":      step,
		"ghosts":    hs.Received,
		"departing": ms.Departed,
		"arrived":   arrived,
	}).Trace("step done")

	if w.comm.Rank() == transport.Root {
		w.emit(StepEvent{
			Step:        step,
			Counts:      w.counts,
			Diagnostics: diag,
			HasDiag:     w.cfg.Diagnostics,
			Elapsed:     time.Since(w.start),
		})
	}
	return nil
}

func (w *Worker) force() error {
	w.sample.Reset()
	for id, p := range w.owned.All() {
		p.AX, p.AY = 0, 0
		for e := range w.grid.Adjacent(w.grid.CellOf(p.X, p.Y)) {
			if !e.Ghost && e.ID == id {
				continue
			}
			q := w.resolve(e)
			if q == nil {
				return fmt.Errorf("grid entry %+v has no particle", e)
			}
			w.cfg.Physics.ApplyForce(p, q, &w.sample)
		}
	}
	return nil
}

func (w *Worker) resolve(e grid.Entry) *particle.Particle {
	if e.Ghost {
		return w.ghosts.Get(e.ID)
	}
	return w.owned.Get(e.ID)
}

func (w *Worker) reduceDiagnostics(ctx context.Context, step int) (metrics.Step, error) {
	davg, err := transport.ReduceFloat64(ctx, w.comm, w.sample.DAvg, transport.Sum)
	if err != nil {
		return metrics.Step{}, err
	}
	navg, err := transport.ReduceInt(ctx, w.comm, w.sample.NAvg, transport.Sum)
	if err != nil {
		return metrics.Step{}, err
	}
	dmin, err := transport.ReduceFloat64(ctx, w.comm, w.sample.DMin, transport.Min)
	if err != nil {
		return metrics.Step{}, err
	}
	st := metrics.Step{Step: step, Sample: metrics.Sample{DMin: dmin, DAvg: davg, NAvg: navg}}
	if w.comm.Rank() == transport.Root {
		w.acc.Observe(st)
	}
	return st, nil
}

func (w *Worker) checkOwnership(ctx context.Context) error {
	rank, nprocs := w.comm.Rank(), w.comm.Size()
	for id, p := range w.owned.All() {
		if owner := w.grid.OwnerOf(p.X, p.Y, nprocs); owner != rank {
			return fmt.Errorf("%w: particle %d at (%g, %g) belongs to rank %d", ErrOwnership, id, p.X, p.Y, owner)
		}
	}
	counts, err := transport.AllgatherInt(ctx, w.comm, transport.TagCount, w.owned.Len())
	if err != nil {
		return err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total != w.cfg.Particles {
		return fmt.Errorf("%w: ranks own %d particles, expected %d (%v)", ErrOwnership, total, w.cfg.Particles, counts)
	}
	w.counts = counts
	return nil
}

func (w *Worker) snapshot(ctx context.Context, step int) error {
	ps, err := w.Gather(ctx)
	if err != nil {
		return err
	}
	if w.comm.Rank() != transport.Root || w.sink == nil {
		return nil
	}
	return w.sink.WriteFrame(step, w.size, ps)
}

// Gather reassembles the whole population on the root, in rank order. Other
// ranks get nil.
func (w *Worker) Gather(ctx context.Context) ([]particle.Particle, error) {
	buf := w.pool.Get()
	for _, p := range w.owned.All() {
		buf = particle.AppendRecord(buf, *p)
	}
	parts, err := transport.Gather(ctx, w.comm, transport.TagSnapshot, buf)
	if w.comm.Rank() != transport.Root {
		w.pool.Put(buf)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	out := make([]particle.Particle, 0, w.cfg.Particles)
	for r, b := range parts {
		ps, err := particle.DecodeRecords(b)
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w", r, err)
		}
		out = append(out, ps...)
	}
	w.pool.Put(buf)
	return out, nil
}

// Run initialises the rank, runs every step and gathers the final state.
// Only the root returns a Result.
func (w *Worker) Run(ctx context.Context) (*Result, error) {
	if err := w.Init(ctx); err != nil {
		return nil, err
	}
	w.start = time.Now()
	for step := 0; step < w.cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := w.Step(ctx, step); err != nil {
			return nil, err
		}
	}
	elapsed := time.Since(w.start)

	final, err := w.Gather(ctx)
	if err != nil {
		return nil, w.fail(w.cfg.Steps, PhaseGather, err)
	}
	if w.comm.Rank() != transport.Root {
		return nil, nil
	}
	res := &Result{
		Particles: w.cfg.Particles,
		Procs:     w.comm.Size(),
		Steps:     w.cfg.Steps,
		Size:      w.size,
		Elapsed:   elapsed,
		Final:     final,
	}
	if w.cfg.Diagnostics {
		res.AbsMin = w.acc.AbsMin()
		res.AbsAvg = w.acc.AbsAvg()
		res.Warnings = w.acc.Warnings(metrics.DefaultThresholds())
		res.History = w.acc.History()
	}
	w.log.WithFields(logrus.Fields{"steps": w.cfg.Steps, "elapsed": elapsed}).Info("run complete")
	return res, nil
}
