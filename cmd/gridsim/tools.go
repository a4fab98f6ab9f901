package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/gridsim/internal/export"
	"github.com/san-kum/gridsim/internal/physics"
	"github.com/san-kum/gridsim/internal/scaling"
	"github.com/san-kum/gridsim/internal/sim"
	"github.com/san-kum/gridsim/internal/storage"
	"github.com/san-kum/gridsim/internal/viz"
)

var (
	frameIndex  int
	svgSize     int
	svgPath     string
	renderProcs int
	procsList   []int
	repeats     int
)

func renderSnapshot(cmd *cobra.Command, args []string) error {
	traj, err := storage.ReadSnapshot(args[0], compress)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(traj.Frames) == 0 {
		return fmt.Errorf("%s holds no frames", args[0])
	}

	idx := frameIndex
	if idx < 0 {
		idx += len(traj.Frames)
	}
	if idx < 0 || idx >= len(traj.Frames) {
		return fmt.Errorf("frame %d out of range, file has %d", frameIndex, len(traj.Frames))
	}

	var bounds []float64
	if renderProcs > 1 {
		cutoff := cutoffFor(cmd)
		rows := max(int(math.Ceil(traj.Size/cutoff)), 1)
		bounds = viz.Boundaries(renderProcs, rows, cutoff)
	}

	svg := export.FrameSVG(traj.Frames[idx], traj.Size, bounds, svgSize)
	if svgPath == "" {
		fmt.Println(svg)
		return nil
	}
	if err := os.WriteFile(svgPath, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Printf("frame %d of %d written to %s\n", idx, len(traj.Frames), svgPath)
	return nil
}

func cutoffFor(cmd *cobra.Command) float64 {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return physics.DefaultParams().Cutoff
	}
	return cfg.Physics.Cutoff
}

func runScaling(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	// Per-step logging would dominate the timings.
	log.SetLevel(min(log.GetLevel(), logrus.WarnLevel))

	sweep, err := scaling.NewSweep(procsList, repeats)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	sc := cfg.Sim()
	sc.SaveEvery = 0
	run := func(ctx context.Context, sc sim.Config, procs int) (*sim.Result, error) {
		return sim.RunLocal(ctx, sc, procs, sim.WithLogger(log))
	}
	record := func(procs int, res *sim.Result) error {
		if cfg.Output.Summary == "" {
			return nil
		}
		return storage.AppendSummary(cfg.Output.Summary, res.Particles, procs, res.Elapsed.Seconds())
	}

	points, err := sweep.Run(ctx, sc, run, record)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROCS\tSECONDS\tSPEEDUP\tEFFICIENCY")
	speedups := make([]float64, len(points))
	for i, pt := range points {
		fmt.Fprintf(w, "%d\t%.3f\t%.2f\t%.2f\n", pt.Procs, pt.Elapsed.Seconds(), pt.Speedup, pt.Efficiency)
		speedups[i] = pt.Speedup
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if best, ok := scaling.Fastest(points); ok {
		fmt.Printf("\nfastest: %d procs (%.3fs)\n", best.Procs, best.Elapsed.Seconds())
	}
	if len(points) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(speedups, asciigraph.Height(8), asciigraph.Caption("speedup")))
	}
	return nil
}
