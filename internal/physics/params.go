package physics

import (
	"fmt"
	"math"
)

// Params are the physical constants of a run.
type Params struct {
	Density float64 `yaml:"density"`
	Mass    float64 `yaml:"mass"`
	Cutoff  float64 `yaml:"cutoff"`
	MinR    float64 `yaml:"min_r"`
	DT      float64 `yaml:"dt"`
}

func DefaultParams() Params {
	return Params{
		Density: 0.0005,
		Mass:    0.01,
		Cutoff:  0.01,
		MinR:    0.01 / 100,
		DT:      0.0005,
	}
}

// Size is the side of the square domain that holds n particles at the
// configured density.
func (p Params) Size(n int) float64 {
	return math.Sqrt(p.Density * float64(n))
}

func (p Params) Validate() error {
	switch {
	case p.Density <= 0:
		return fmt.Errorf("physics: density must be positive, got %g", p.Density)
	case p.Mass <= 0:
		return fmt.Errorf("physics: mass must be positive, got %g", p.Mass)
	case p.Cutoff <= 0:
		return fmt.Errorf("physics: cutoff must be positive, got %g", p.Cutoff)
	case p.MinR <= 0 || p.MinR > p.Cutoff:
		return fmt.Errorf("physics: min_r must be in (0, cutoff], got %g", p.MinR)
	case p.DT <= 0:
		return fmt.Errorf("physics: dt must be positive, got %g", p.DT)
	}
	return nil
}
