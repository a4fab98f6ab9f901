package metrics

import "fmt"

// Sample accumulates one rank's contact statistics over one force pass.
// Distances are in units of the cutoff.
type Sample struct {
	DMin float64
	DAvg float64
	NAvg int
}

func NewSample() Sample { return Sample{DMin: 1} }

// Observe records one interacting pair at normalised distance r.
func (s *Sample) Observe(r float64) {
	if r < s.DMin {
		s.DMin = r
	}
	s.DAvg += r
	s.NAvg++
}

func (s *Sample) Reset() { *s = NewSample() }

// Step is a sample reduced over every rank.
type Step struct {
	Step int
	Sample
}

// Mean is the average normalised pair distance, or 0 with no pairs.
func (s Step) Mean() float64 {
	if s.NAvg == 0 {
		return 0
	}
	return s.DAvg / float64(s.NAvg)
}

func (s Step) String() string {
	return fmt.Sprintf("step %d: min %.4f mean %.4f pairs %d", s.Step, s.DMin, s.Mean(), s.NAvg)
}

// Thresholds below which a run is considered to have let particles get too
// close.
type Thresholds struct {
	MinDistance  float64
	MeanDistance float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{MinDistance: 0.4, MeanDistance: 0.8}
}

// Accumulator folds per-step diagnostics into run-level figures.
type Accumulator struct {
	name    string
	absMin  float64
	absAvg  float64
	samples int
	history []Step
}

func NewAccumulator() *Accumulator {
	return &Accumulator{name: "contact", absMin: 1}
}

func (a *Accumulator) Name() string { return a.name }

// Observe adds one step. Steps without interacting pairs do not move the
// average.
func (a *Accumulator) Observe(s Step) {
	if s.NAvg > 0 {
		a.absAvg += s.Mean()
		a.samples++
	}
	if s.DMin < a.absMin {
		a.absMin = s.DMin
	}
	a.history = append(a.history, s)
}

// AbsMin is the smallest normalised distance seen in any step.
func (a *Accumulator) AbsMin() float64 { return a.absMin }

// AbsAvg is the mean of the per-step averages.
func (a *Accumulator) AbsAvg() float64 {
	if a.samples == 0 {
		return 0
	}
	return a.absAvg / float64(a.samples)
}

// History returns every observed step in order. The slice is owned by the
// accumulator.
func (a *Accumulator) History() []Step { return a.history }

func (a *Accumulator) Reset() {
	*a = *NewAccumulator()
}

// Warnings describes each threshold the run fell below.
func (a *Accumulator) Warnings(th Thresholds) []string {
	var out []string
	if a.samples == 0 {
		return out
	}
	if a.AbsMin() < th.MinDistance {
		out = append(out, fmt.Sprintf("minimum distance %.4f is below %.2f: particles are interacting too closely", a.AbsMin(), th.MinDistance))
	}
	if a.AbsAvg() < th.MeanDistance {
		out = append(out, fmt.Sprintf("average distance %.4f is below %.2f: most particles are not interacting", a.AbsAvg(), th.MeanDistance))
	}
	return out
}
