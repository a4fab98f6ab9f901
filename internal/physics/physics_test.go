package physics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/gridsim/internal/grid"
	"github.com/san-kum/gridsim/internal/metrics"
	"github.com/san-kum/gridsim/internal/particle"
)

func TestSize(t *testing.T) {
	p := DefaultParams()
	if got := p.Size(2000); math.Abs(got-1) > 1e-12 {
		t.Errorf("expected size 1 for 2000 particles, got %f", got)
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	bad := DefaultParams()
	bad.MinR = bad.Cutoff * 2
	if err := bad.Validate(); err == nil {
		t.Error("expected error for min_r above cutoff")
	}
	bad = DefaultParams()
	bad.DT = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero dt")
	}
}

func TestApplyForceBeyondCutoff(t *testing.T) {
	prm := DefaultParams()
	p := &particle.Particle{X: 0.5, Y: 0.5}
	q := &particle.Particle{X: 0.5 + 2*prm.Cutoff, Y: 0.5}
	s := metrics.NewSample()

	prm.ApplyForce(p, q, &s)
	if p.AX != 0 || p.AY != 0 {
		t.Errorf("expected no force beyond cutoff, got (%f, %f)", p.AX, p.AY)
	}
	if s.NAvg != 0 {
		t.Errorf("expected no recorded pair, got %d", s.NAvg)
	}
}

func TestApplyForceRepulsive(t *testing.T) {
	prm := DefaultParams()
	p := &particle.Particle{X: 0.5, Y: 0.5}
	q := &particle.Particle{X: 0.5 + prm.Cutoff/2, Y: 0.5}
	s := metrics.NewSample()

	prm.ApplyForce(p, q, &s)
	if p.AX >= 0 {
		t.Errorf("expected p pushed away from q, got ax=%f", p.AX)
	}
	if p.AY != 0 {
		t.Errorf("expected no y force, got %f", p.AY)
	}
	if s.NAvg != 1 || math.Abs(s.DMin-0.5) > 1e-12 {
		t.Errorf("expected one pair at 0.5 cutoffs, got %+v", s)
	}

	// Newton's third law
	s2 := metrics.NewSample()
	prm.ApplyForce(q, p, &s2)
	if math.Abs(p.AX+q.AX) > 1e-9*math.Abs(p.AX) {
		t.Errorf("expected equal and opposite forces, got %f and %f", p.AX, q.AX)
	}
}

func TestApplyForceCoincident(t *testing.T) {
	prm := DefaultParams()
	p := &particle.Particle{X: 0.5, Y: 0.5}
	q := &particle.Particle{X: 0.5, Y: 0.5}
	s := metrics.NewSample()

	prm.ApplyForce(p, q, &s)
	if s.NAvg != 0 {
		t.Errorf("expected coincident pair not recorded, got %d", s.NAvg)
	}
	if math.IsNaN(p.AX) || math.IsInf(p.AX, 0) {
		t.Errorf("expected finite acceleration, got %f", p.AX)
	}
}

func TestMoveReflects(t *testing.T) {
	prm := DefaultParams()
	prm.DT = 1
	tests := []struct {
		name   string
		in     particle.Particle
		wantX  float64
		wantVX float64
	}{
		{"inside", particle.Particle{X: 0.2, VX: 0.1}, 0.30000000000000004, 0.1},
		{"low wall", particle.Particle{X: 0.1, VX: -0.3}, 0.19999999999999998, 0.3},
		{"high wall", particle.Particle{X: 0.9, VX: 0.3}, 0.8, -0.3},
		{"twice", particle.Particle{X: 0.5, VX: 2.2}, 0.7000000000000002, 2.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.in
			p.Y = 0.5
			prm.Move(&p, 1)
			if math.Abs(p.X-tt.wantX) > 1e-12 || p.VX != tt.wantVX {
				t.Errorf("expected x=%v vx=%v, got x=%v vx=%v", tt.wantX, tt.wantVX, p.X, p.VX)
			}
			if p.X < 0 || p.X >= 1 {
				t.Errorf("expected position inside [0, 1), got %v", p.X)
			}
		})
	}
}

func TestMoveNudgesOffFarWall(t *testing.T) {
	prm := DefaultParams()
	prm.DT = 1
	p := particle.Particle{X: 0.5, VX: 0.5, Y: 0.5}
	prm.Move(&p, 1)
	if p.X >= 1 {
		t.Errorf("expected x below size, got %v", p.X)
	}
	if p.X != math.Nextafter(1, 0) {
		t.Errorf("expected x nudged to just below size, got %v", p.X)
	}
}

func TestMoveKeepsFarWallInGrid(t *testing.T) {
	prm := DefaultParams()
	for _, n := range []int{5445, 21780, 25205, 57245} {
		size := prm.Size(n)
		g := grid.New(size, prm.Cutoff)
		p := particle.Particle{X: size / 2, Y: size}
		prm.Move(&p, size)
		if p.Y >= size {
			t.Fatalf("n=%d: expected y below size %v, got %v", n, size, p.Y)
		}
		if row := g.CellOf(p.X, p.Y).Row; row != g.RowCount()-1 {
			t.Errorf("n=%d: expected last row %d, got %d", n, g.RowCount()-1, row)
		}
		if got := g.OwnerOf(p.X, p.Y, 3); got != 2 {
			t.Errorf("n=%d: expected rank 2 to own the far wall, got %d", n, got)
		}
	}
}

func TestInit(t *testing.T) {
	const n = 100
	size := DefaultParams().Size(n)
	ps := Init(n, size, rand.New(rand.NewSource(7)))
	if len(ps) != n {
		t.Fatalf("expected %d particles, got %d", n, len(ps))
	}

	seen := make(map[[2]float64]bool)
	for i, p := range ps {
		if p.X <= 0 || p.X >= size || p.Y <= 0 || p.Y >= size {
			t.Errorf("particle %d outside domain: (%f, %f)", i, p.X, p.Y)
		}
		if p.VX < -1 || p.VX > 1 || p.VY < -1 || p.VY > 1 {
			t.Errorf("particle %d velocity out of range: (%f, %f)", i, p.VX, p.VY)
		}
		key := [2]float64{p.X, p.Y}
		if seen[key] {
			t.Errorf("particle %d shares a lattice site", i)
		}
		seen[key] = true
	}

	again := Init(n, size, rand.New(rand.NewSource(7)))
	for i := range ps {
		if ps[i] != again[i] {
			t.Fatalf("expected identical initialisation for the same seed at %d", i)
		}
	}
}
