package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/gridsim/internal/config"
	"github.com/san-kum/gridsim/internal/particle"
	"github.com/san-kum/gridsim/internal/sim"
	"github.com/san-kum/gridsim/internal/storage"
	"github.com/san-kum/gridsim/internal/transport/wsnet"
	"github.com/san-kum/gridsim/internal/viz"
)

// Frame period used by the live view when no snapshot file is written.
const liveSaveEvery = 10

type frameSinks []sim.SnapshotSink

func (fs frameSinks) WriteFrame(step int, size float64, ps []particle.Particle) error {
	for _, s := range fs {
		if err := s.WriteFrame(step, size, ps); err != nil {
			return err
		}
	}
	return nil
}

// outputs holds what the root rank writes while a run is in progress.
type outputs struct {
	snapshot *storage.SnapshotWriter
	sinks    frameSinks
}

func openOutputs(cfg *config.Config) (*outputs, error) {
	out := &outputs{}
	if cfg.Output.Snapshot != "" {
		w, err := storage.NewSnapshotWriter(cfg.Output.Snapshot, cfg.Output.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot file: %w", err)
		}
		out.snapshot = w
		out.sinks = append(out.sinks, w)
	}
	return out, nil
}

func (o *outputs) Close() error {
	if o == nil || o.snapshot == nil {
		return nil
	}
	w := o.snapshot
	o.snapshot = nil
	return w.Close()
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	out, err := openOutputs(cfg)
	if err != nil {
		return err
	}
	defer out.Close()

	sc := cfg.Sim()
	mode := "local"
	if serial {
		mode = "serial"
	}
	opts := []sim.Option{sim.WithLogger(log)}

	var feed *viz.Feed
	if live {
		feed = viz.NewFeed()
		out.sinks = append(out.sinks, feed)
		opts = append(opts, sim.WithObserver(feed))
		if sc.SaveEvery == 0 {
			sc.SaveEvery = liveSaveEvery
		}
		// The view owns the terminal.
		log.SetLevel(logrus.ErrorLevel)
	}
	if len(out.sinks) > 0 {
		opts = append(opts, sim.WithSnapshots(out.sinks))
	}

	log.WithFields(logrus.Fields{
		"mode":      mode,
		"particles": cfg.Particles,
		"procs":     cfg.Procs,
		"steps":     cfg.Steps,
		"size":      cfg.DomainSize(),
	}).Info("starting run")

	run := func(ctx context.Context) (*sim.Result, error) {
		if serial {
			return sim.RunSerial(ctx, sc, opts...)
		}
		return sim.RunLocal(ctx, sc, cfg.Procs, opts...)
	}

	var res *sim.Result
	if live {
		procsShown := cfg.Procs
		if serial {
			procsShown = 1
		}
		m := viz.NewModel(feed, cfg.Steps, procsShown, viz.Boundaries(procsShown, cfg.Rows(), cfg.Physics.Cutoff))
		res, err = viz.RunLive(ctx, m, run)
	} else {
		res, err = run(ctx)
	}
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	return finish(log, cfg, mode, res)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Cluster.Peers) == 0 {
		return errors.New("worker needs --peers or cluster.peers in the config file")
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	comm, err := wsnet.Dial(ctx, wsnet.Config{
		Rank:        rank,
		Peers:       cfg.Cluster.Peers,
		DialTimeout: cfg.Cluster.DialTimeout,
		Log:         log.WithField("rank", rank),
	})
	if err != nil {
		return fmt.Errorf("failed to join mesh: %w", err)
	}
	defer comm.Close()

	opts := []sim.Option{sim.WithLogger(log)}
	var out *outputs
	if comm.Rank() == 0 {
		if out, err = openOutputs(cfg); err != nil {
			return err
		}
		defer out.Close()
		if len(out.sinks) > 0 {
			opts = append(opts, sim.WithSnapshots(out.sinks))
		}
	}

	res, err := sim.RunComm(ctx, comm, cfg.Sim(), opts...)
	if err != nil {
		return fmt.Errorf("simulation failed: %w", err)
	}
	if res == nil {
		return nil
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	return finish(log, cfg, "mesh", res)
}

// finish records a completed run and prints its report.
func finish(log logrus.FieldLogger, cfg *config.Config, mode string, res *sim.Result) error {
	if cfg.Output.Summary != "" {
		if err := storage.AppendSummary(cfg.Output.Summary, res.Particles, res.Procs, res.Elapsed.Seconds()); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}

	st := storage.New(cfg.Output.DataDir)
	runID, err := st.Save(mode, cfg.Seed, cfg.Physics, res)
	if err != nil {
		log.WithError(err).Warn("failed to archive run")
	} else {
		log.WithField("run", runID).Info("run archived")
	}

	for _, w := range res.Warnings {
		log.Warn(w)
	}
	fmt.Println(viz.Report(mode, res))
	return nil
}
