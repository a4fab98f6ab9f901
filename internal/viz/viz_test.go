package viz

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/gridsim/internal/grid"
	"github.com/san-kum/gridsim/internal/metrics"
	"github.com/san-kum/gridsim/internal/particle"
	"github.com/san-kum/gridsim/internal/sim"
)

func TestCanvasPlotParticles(t *testing.T) {
	c := NewCanvas(4, 2)
	c.PlotParticles([]particle.Particle{{X: 0, Y: 0}, {X: 0.999, Y: 0.999}}, 1)

	if c.Grid[1][0] == 0x2800 {
		t.Error("expected origin plotted in the bottom-left cell")
	}
	if c.Grid[0][3] == 0x2800 {
		t.Error("expected far corner plotted in the top-right cell")
	}
	if c.Grid[0][0] != 0x2800 || c.Grid[1][3] != 0x2800 {
		t.Error("expected other corners empty")
	}

	c.Clear()
	if strings.Trim(c.String(), "⠀\n") != "" {
		t.Error("expected blank canvas after clear")
	}
}

func TestCanvasBoundaries(t *testing.T) {
	c := NewCanvas(3, 2)
	c.DrawBoundaries([]float64{0.5}, 1)
	for col := 0; col < 3; col++ {
		if c.Grid[0][col] == 0x2800 && c.Grid[1][col] == 0x2800 {
			t.Errorf("expected boundary to cross column %d", col)
		}
	}
}

func TestBoundaries(t *testing.T) {
	got := Boundaries(3, 10, 0.01)
	want := []float64{0.04, 0.08}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
	if b := Boundaries(12, 10, 0.01); len(b) != 9 {
		t.Errorf("expected idle ranks to add no boundaries, got %v", b)
	}
}

func TestPartitionTable(t *testing.T) {
	out := PartitionTable(grid.Partition(4, 5), 0.01)
	for _, want := range []string{"rank 0", "rank 2", "[0, 2)", "idle"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in table:\n%s", want, out)
		}
	}
}

func TestReport(t *testing.T) {
	res := &sim.Result{
		Particles: 100, Procs: 2, Steps: 3, Size: 0.2236, Elapsed: time.Second,
		AbsMin: 0.3, AbsAvg: 0.7,
		Warnings: []string{"minimum distance too small"},
		History: []metrics.Step{
			{Step: 0, Sample: metrics.Sample{DMin: 0.5, DAvg: 2, NAvg: 3}},
			{Step: 1, Sample: metrics.Sample{DMin: 0.3, DAvg: 2.1, NAvg: 3}},
		},
	}
	out := Report("local", res)
	for _, want := range []string{"Particles", "100", "minimum distance too small", "0.3000"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in report", want)
		}
	}
}

func TestPlotHistoryEmpty(t *testing.T) {
	if out := PlotHistory(nil, 10, 3); !strings.Contains(out, "no diagnostics") {
		t.Errorf("expected placeholder, got %q", out)
	}
	if out := PlotHistory([]metrics.Step{{Sample: metrics.NewSample()}}, 10, 3); out == "" {
		t.Error("expected a plot for a single step")
	}
}

func TestFeedNeverBlocks(t *testing.T) {
	f := NewFeed()
	for i := 0; i < 1000; i++ {
		f.OnStep(sim.StepEvent{Step: i})
		if err := f.WriteFrame(i, 1, []particle.Particle{{X: 0.5, Y: 0.5}}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestModelFollowsFeed(t *testing.T) {
	f := NewFeed()
	m := NewModel(f, 10, 2, []float64{0.5})

	f.OnStep(sim.StepEvent{Step: 0, Counts: []int{3, 1}, HasDiag: true, Diagnostics: metrics.Step{Sample: metrics.Sample{DMin: 0.5, DAvg: 1, NAvg: 2}}})
	f.OnStep(sim.StepEvent{Step: 1, Counts: []int{2, 2}, HasDiag: true, Diagnostics: metrics.Step{Step: 1, Sample: metrics.Sample{DMin: 0.4, DAvg: 1, NAvg: 2}}})
	f.WriteFrame(0, 1, []particle.Particle{{X: 0.25, Y: 0.75}})

	next, cmd := m.Update(TickMsg(time.Now()))
	if cmd == nil {
		t.Error("expected another tick while running")
	}
	m = next.(Model)
	if m.last.Step != 1 || len(m.dmin) != 2 {
		t.Errorf("expected two observed steps, got last=%d history=%d", m.last.Step, len(m.dmin))
	}
	if !strings.Contains(m.View(), "2/10") {
		t.Error("expected progress in view")
	}

	next, _ = m.Update(doneMsg{err: errors.New("boom")})
	m = next.(Model)
	if !m.done || m.err == nil {
		t.Error("expected finished model to record the error")
	}
	if !strings.Contains(m.View(), "boom") {
		t.Error("expected error in view")
	}
}
