package physics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/gridsim/internal/metrics"
	"github.com/san-kum/gridsim/internal/particle"
)

func pos(p *particle.Particle) r2.Vec { return r2.Vec{X: p.X, Y: p.Y} }

// ApplyForce adds the short-range repulsion neighbor exerts on p to p's
// acceleration and records the pair in s. Pairs beyond the cutoff are
// ignored; coincident pairs are not recorded but still interact at MinR.
func (prm Params) ApplyForce(p, neighbor *particle.Particle, s *metrics.Sample) {
	d := r2.Sub(pos(neighbor), pos(p))
	dist2 := r2.Norm2(d)
	if dist2 > prm.Cutoff*prm.Cutoff {
		return
	}
	if dist2 != 0 {
		s.Observe(math.Sqrt(dist2) / prm.Cutoff)
	}

	dist2 = math.Max(dist2, prm.MinR*prm.MinR)
	r := math.Sqrt(dist2)

	coef := (1 - prm.Cutoff/r) / dist2 / prm.Mass
	p.AX += coef * d.X
	p.AY += coef * d.Y
}

// Move advances p by one semi-implicit Euler step and
// reflects it off the walls of [0, size]. A particle left exactly on the far
// wall is nudged inside so it maps to a valid cell.
func (prm Params) Move(p *particle.Particle, size float64) {
	p.VX += p.AX * prm.DT
	p.VY += p.AY * prm.DT
	p.X += p.VX * prm.DT
	p.Y += p.VY * prm.DT

	p.X, p.VX = reflect(p.X, p.VX, size)
	p.Y, p.VY = reflect(p.Y, p.VY, size)
}

func reflect(x, v, size float64) (float64, float64) {
	for x < 0 || x > size {
		if x < 0 {
			x = -x
		} else {
			x = 2*size - x
		}
		v = -v
	}
	if x == size {
		x = math.Nextafter(size, 0)
	}
	return x, v
}
