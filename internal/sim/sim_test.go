package sim_test

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/gridsim/internal/particle"
	"github.com/san-kum/gridsim/internal/physics"
	"github.com/san-kum/gridsim/internal/sim"
	"github.com/san-kum/gridsim/internal/transport"
)

func quiet() sim.Option {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return sim.WithLogger(l)
}

func smallConfig() sim.Config {
	return sim.Config{
		Particles:   200,
		Steps:       25,
		Seed:        42,
		Diagnostics: true,
		Physics:     physics.DefaultParams(),
	}
}

type frame struct {
	step int
	n    int
}

type recordingSink struct {
	mu     sync.Mutex
	frames []frame
}

func (s *recordingSink) WriteFrame(step int, size float64, ps []particle.Particle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame{step: step, n: len(ps)})
	return nil
}

func coords(ps []particle.Particle) (xs, ys []float64) {
	for _, p := range ps {
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
	}
	slices.Sort(xs)
	slices.Sort(ys)
	return xs, ys
}

// workers builds one worker per rank over a shared network.
func workers(cfg sim.Config, procs int, opts ...sim.Option) ([]*sim.Worker, *transport.Network) {
	net := transport.NewNetwork(procs)
	ws := make([]*sim.Worker, procs)
	for r := range ws {
		w, err := sim.NewWorker(net.Comm(r), cfg, append(opts, quiet())...)
		Expect(err).NotTo(HaveOccurred())
		ws[r] = w
	}
	return ws, net
}

// each runs fn concurrently on every worker.
func each(ws []*sim.Worker, fn func(ctx context.Context, w *sim.Worker) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range ws {
		g.Go(func() error { return fn(ctx, w) })
	}
	return g.Wait()
}

var _ = Describe("Distributed run", func() {
	var ctx context.Context

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		DeferCleanup(cancel)
	})

	DescribeTable("keeps every particle owned by exactly one rank",
		func(procs int) {
			cfg := smallConfig()
			var events []sim.StepEvent
			res, err := sim.RunLocal(ctx, cfg, procs, quiet(), sim.WithObserver(sim.ObserverFunc(func(ev sim.StepEvent) {
				events = append(events, ev)
			})))
			Expect(err).NotTo(HaveOccurred())

			Expect(events).To(HaveLen(cfg.Steps))
			for _, ev := range events {
				Expect(ev.Counts).To(HaveLen(procs))
				total := 0
				for _, n := range ev.Counts {
					total += n
				}
				Expect(total).To(Equal(cfg.Particles), "step %d counts %v", ev.Step, ev.Counts)
			}
			Expect(res.Final).To(HaveLen(cfg.Particles))
			Expect(res.Procs).To(Equal(procs))
			for _, p := range res.Final {
				Expect(p.X).To(BeNumerically(">=", 0))
				Expect(p.X).To(BeNumerically("<", res.Size))
				Expect(p.Y).To(BeNumerically(">=", 0))
				Expect(p.Y).To(BeNumerically("<", res.Size))
			}
		},
		Entry("one rank", 1),
		Entry("two ranks", 2),
		Entry("three ranks", 3),
		Entry("four ranks", 4),
		Entry("trailing ranks with no rows", 12),
	)

	It("reproduces the serial run bit for bit on one rank", func() {
		cfg := smallConfig()
		serial, err := sim.RunSerial(ctx, cfg, quiet())
		Expect(err).NotTo(HaveOccurred())
		dist, err := sim.RunLocal(ctx, cfg, 1, quiet())
		Expect(err).NotTo(HaveOccurred())

		Expect(dist.Final).To(Equal(serial.Final))
		Expect(dist.History).To(Equal(serial.History))
		Expect(dist.AbsMin).To(Equal(serial.AbsMin))
		Expect(dist.AbsAvg).To(Equal(serial.AbsAvg))
	})

	It("tracks the serial run on several ranks", func() {
		cfg := smallConfig()
		cfg.Steps = 10
		serial, err := sim.RunSerial(ctx, cfg, quiet())
		Expect(err).NotTo(HaveOccurred())
		dist, err := sim.RunLocal(ctx, cfg, 4, quiet())
		Expect(err).NotTo(HaveOccurred())

		sx, sy := coords(serial.Final)
		dx, dy := coords(dist.Final)
		for i := range sx {
			Expect(dx[i]).To(BeNumerically("~", sx[i], 1e-9))
			Expect(dy[i]).To(BeNumerically("~", sy[i], 1e-9))
		}
		Expect(dist.AbsMin).To(BeNumerically("~", serial.AbsMin, 1e-9))
	})

	It("snapshots the whole population on save steps", func() {
		cfg := smallConfig()
		cfg.Steps = 12
		cfg.SaveEvery = 5
		sink := &recordingSink{}
		_, err := sim.RunLocal(ctx, cfg, 3, quiet(), sim.WithSnapshots(sink))
		Expect(err).NotTo(HaveOccurred())
		Expect(sink.frames).To(Equal([]frame{{0, 200}, {5, 200}, {10, 200}}))
	})

	It("rejects an invalid configuration", func() {
		cfg := smallConfig()
		cfg.Particles = 0
		_, err := sim.RunLocal(ctx, cfg, 2)
		Expect(err).To(MatchError(sim.ErrInvalidConfig))

		_, err = sim.RunLocal(ctx, smallConfig(), 0)
		Expect(err).To(MatchError(sim.ErrInvalidConfig))
	})

	It("stops when the context is cancelled", func() {
		cfg := smallConfig()
		cfg.Steps = 1_000_000
		cctx, cancel := context.WithCancel(ctx)
		first := true
		_, err := sim.RunLocal(cctx, cfg, 2, quiet(), sim.WithObserver(sim.ObserverFunc(func(sim.StepEvent) {
			if first {
				first = false
				cancel()
			}
		})))
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
	})
})

var _ = Describe("Worker", func() {
	// 0.1 / 0.01 gives 10 rows; two ranks own [0, 5) and [5, 10).
	cfg := func(n int) sim.Config {
		return sim.Config{Particles: n, Steps: 1, Size: 0.1, Physics: physics.DefaultParams()}
	}

	It("sees interaction partners across the rank boundary", func() {
		ws, net := workers(cfg(2), 2)
		defer net.Close()

		a := particle.Particle{X: 0.05, Y: 0.046}
		b := particle.Particle{X: 0.05, Y: 0.054}
		Expect(each(ws, func(ctx context.Context, w *sim.Worker) error {
			if err := w.Seed(ctx, []particle.Particle{a, b}); err != nil {
				return err
			}
			return w.Step(ctx, 0)
		})).To(Succeed())

		Expect(ws[0].Owned().Len()).To(Equal(1))
		Expect(ws[1].Owned().Len()).To(Equal(1))
		pa := ws[0].Owned().Snapshot()[0]
		pb := ws[1].Owned().Snapshot()[0]
		Expect(pa.AY).To(BeNumerically("<", 0))
		Expect(pb.AY).To(Equal(-pa.AY))
		Expect(pa.AX).To(BeZero())
	})

	It("hands a particle to the next rank when it crosses the boundary", func() {
		var counts [][]int
		obs := sim.WithObserver(sim.ObserverFunc(func(ev sim.StepEvent) {
			counts = append(counts, slices.Clone(ev.Counts))
		}))
		ws, net := workers(cfg(1), 2, obs)
		defer net.Close()

		p := particle.Particle{X: 0.05, Y: 0.048, VY: 10}
		Expect(each(ws, func(ctx context.Context, w *sim.Worker) error {
			if err := w.Seed(ctx, []particle.Particle{p}); err != nil {
				return err
			}
			if err := w.Step(ctx, 0); err != nil {
				return err
			}
			return w.Step(ctx, 1)
		})).To(Succeed())

		Expect(ws[0].Owned().Len()).To(Equal(0))
		Expect(ws[1].Owned().Len()).To(Equal(1))
		Expect(counts).To(Equal([][]int{{0, 1}, {0, 1}}))

		got := ws[1].Owned().Snapshot()[0]
		Expect(got.Y).To(BeNumerically("~", 0.058, 1e-12))
		owned, ghosts := ws[0].Grid().Count()
		Expect(owned).To(Equal(0))
		Expect(ghosts).To(Equal(1))
	})

	It("fails with an ownership error when particles go missing", func() {
		ws, net := workers(cfg(3), 2)
		defer net.Close()

		err := each(ws, func(ctx context.Context, w *sim.Worker) error {
			return w.Seed(ctx, []particle.Particle{{X: 0.01, Y: 0.01}, {X: 0.09, Y: 0.09}})
		})
		Expect(err).To(MatchError(sim.ErrOwnership))

		var se *sim.StepError
		Expect(errors.As(err, &se)).To(BeTrue())
		Expect(se.Phase).To(Equal(sim.PhaseInit))
	})

	It("leaves ranks without rows idle", func() {
		ws, net := workers(cfg(2), 12)
		defer net.Close()

		Expect(each(ws, func(ctx context.Context, w *sim.Worker) error {
			if err := w.Seed(ctx, []particle.Particle{{X: 0.05, Y: 0.005}, {X: 0.05, Y: 0.095}}); err != nil {
				return err
			}
			return w.Step(ctx, 0)
		})).To(Succeed())
		Expect(ws[0].Counts()).To(HaveLen(12))
		Expect(ws[10].Owned().Len()).To(BeZero())
		Expect(ws[11].Owned().Len()).To(BeZero())
	})
})

var _ = Describe("Phase", func() {
	It("has a readable name", func() {
		Expect(sim.PhaseHalo.String()).To(Equal("halo"))
		Expect(sim.PhaseOwnership.String()).To(Equal("ownership"))
		Expect(sim.Phase(99).String()).To(Equal("phase(99)"))
	})

	It("wraps failures with their location", func() {
		err := &sim.StepError{Rank: 2, Step: 7, Phase: sim.PhaseMigrate, Err: transport.ErrTagMismatch}
		Expect(err.Error()).To(Equal("rank 2 step 7 migrate: transport: message tag mismatch"))
		Expect(errors.Is(err, transport.ErrTagMismatch)).To(BeTrue())
	})
})
