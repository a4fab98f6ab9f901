package physics

import (
	"math"
	"math/rand"

	"github.com/san-kum/gridsim/internal/particle"
)

// Init places n particles on a shuffled lattice inside [0, size)^2 with
// velocities uniform in [-1, 1]. The result depends only on n, size and the
// state of rng.
func Init(n int, size float64, rng *rand.Rand) []particle.Particle {
	sx := int(math.Ceil(math.Sqrt(float64(n))))
	sy := (n + sx - 1) / sx

	shuffle := make([]int, n)
	for i := range shuffle {
		shuffle[i] = i
	}

	ps := make([]particle.Particle, n)
	for i := range ps {
		j := rng.Intn(n - i)
		k := shuffle[j]
		shuffle[j] = shuffle[n-i-1]

		ps[i].X = size * float64(1+k%sx) / float64(1+sx)
		ps[i].Y = size * float64(1+k/sx) / float64(1+sy)
		ps[i].VX = rng.Float64()*2 - 1
		ps[i].VY = rng.Float64()*2 - 1
	}
	return ps
}
