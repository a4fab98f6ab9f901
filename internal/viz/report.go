package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/gridsim/internal/grid"
	"github.com/san-kum/gridsim/internal/metrics"
	"github.com/san-kum/gridsim/internal/sim"
)

// Report renders the end-of-run summary.
func Report(mode string, res *sim.Result) string {
	var s strings.Builder
	s.WriteString(Title.Render(fmt.Sprintf("gridsim %s run", mode)) + "\n\n")
	s.WriteString(metric("Particles", fmt.Sprintf("%d", res.Particles)))
	s.WriteString(metric("Procs", fmt.Sprintf("%d", res.Procs)))
	s.WriteString(metric("Steps", fmt.Sprintf("%d", res.Steps)))
	s.WriteString(metric("Domain", fmt.Sprintf("%.4g x %.4g", res.Size, res.Size)))
	s.WriteString(metric("Time", fmt.Sprintf("%.3fs", res.Elapsed.Seconds())))
	if res.Steps > 0 && res.Elapsed > 0 {
		s.WriteString(metric("Rate", fmt.Sprintf("%.1f steps/s", float64(res.Steps)/res.Elapsed.Seconds())))
	}

	if len(res.History) > 0 {
		s.WriteString(metric("Min distance", fmt.Sprintf("%.4f", res.AbsMin)))
		s.WriteString(metric("Avg distance", fmt.Sprintf("%.4f", res.AbsAvg)))
		s.WriteString(Graph.Render(PlotHistory(res.History, 60, 8)) + "\n")
	}
	for _, w := range res.Warnings {
		s.WriteString(Warning.Render("! "+w) + "\n")
	}
	return Panel.Render(strings.TrimRight(s.String(), "\n"))
}

// PlotHistory draws the per-step minimum and mean pair distance.
func PlotHistory(hist []metrics.Step, width, height int) string {
	if len(hist) == 0 {
		return Subtle.Render("no diagnostics recorded")
	}
	dmin := make([]float64, len(hist))
	mean := make([]float64, len(hist))
	for i, st := range hist {
		dmin[i] = st.DMin
		mean[i] = st.Mean()
	}
	if len(hist) == 1 {
		dmin = append(dmin, dmin[0])
		mean = append(mean, mean[0])
	}
	return asciigraph.PlotMany([][]float64{dmin, mean},
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.SeriesColors(asciigraph.Red, asciigraph.Green),
		asciigraph.Caption("min (red) / mean (green) distance, cutoff units"))
}

// PartitionTable lists every rank's rows and the slab of the domain they
// cover.
func PartitionTable(ranges []grid.Range, cutoff float64) string {
	var s strings.Builder
	s.WriteString(Title.Render(fmt.Sprintf("%d ranks", len(ranges))) + "\n\n")
	for r, rg := range ranges {
		line := fmt.Sprintf("rank %-4d rows %-12v", r, rg)
		if rg.Empty() {
			s.WriteString(Subtle.Render(line+" idle") + "\n")
			continue
		}
		s.WriteString(line + MetricValue.Render(fmt.Sprintf(" y in [%.4g, %.4g)", float64(rg.Start)*cutoff, float64(rg.End)*cutoff)) + "\n")
	}
	return strings.TrimRight(s.String(), "\n")
}

// Boundaries returns the heights at which ownership changes hands.
func Boundaries(procs, rows int, cutoff float64) []float64 {
	var ys []float64
	for r, rg := range grid.Partition(procs, rows) {
		if r > 0 && !rg.Empty() {
			ys = append(ys, float64(rg.Start)*cutoff)
		}
	}
	return ys
}
