package sim

import (
	"fmt"
	"time"

	"github.com/san-kum/gridsim/internal/metrics"
	"github.com/san-kum/gridsim/internal/particle"
	"github.com/san-kum/gridsim/internal/physics"
)

// Phase names a stage of the step pipeline.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseSnapshot
	PhaseClearGhosts
	PhaseHalo
	PhaseForce
	PhaseDiagnostics
	PhaseIntegrate
	PhaseDetect
	PhaseMigrate
	PhaseOwnership
	PhaseGather
)

var phaseNames = [...]string{
	PhaseInit:        "init",
	PhaseSnapshot:    "snapshot",
	PhaseClearGhosts: "clear-ghosts",
	PhaseHalo:        "halo",
	PhaseForce:       "force",
	PhaseDiagnostics: "diagnostics",
	PhaseIntegrate:   "integrate",
	PhaseDetect:      "detect",
	PhaseMigrate:     "migrate",
	PhaseOwnership:   "ownership",
	PhaseGather:      "gather",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

type Config struct {
	Particles int
	Steps     int
	// SaveEvery is the snapshot period in steps; 0 disables snapshots.
	SaveEvery   int
	Seed        int64
	Diagnostics bool
	// Size overrides the domain side; 0 derives it from the density.
	Size    float64
	Physics physics.Params
}

// DomainSize is the side of the square domain.
func (c Config) DomainSize() float64 {
	if c.Size > 0 {
		return c.Size
	}
	return c.Physics.Size(c.Particles)
}

func (c Config) Validate() error {
	if c.Particles < 1 {
		return fmt.Errorf("%w: need at least one particle, got %d", ErrInvalidConfig, c.Particles)
	}
	if c.Steps < 0 {
		return fmt.Errorf("%w: negative step count %d", ErrInvalidConfig, c.Steps)
	}
	if c.SaveEvery < 0 {
		return fmt.Errorf("%w: negative save period %d", ErrInvalidConfig, c.SaveEvery)
	}
	if err := c.Physics.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.DomainSize() < c.Physics.Cutoff {
		return fmt.Errorf("%w: domain %g is smaller than the cutoff %g", ErrInvalidConfig, c.DomainSize(), c.Physics.Cutoff)
	}
	return nil
}

// StepEvent is what the root rank reports after each step.
type StepEvent struct {
	Step int
	// Counts holds the number of particles each rank owns after the step.
	Counts      []int
	Diagnostics metrics.Step
	HasDiag     bool
	Elapsed     time.Duration
}

type Observer interface {
	OnStep(ev StepEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(StepEvent)

func (f ObserverFunc) OnStep(ev StepEvent) { f(ev) }

// SnapshotSink receives the reassembled population on save steps.
type SnapshotSink interface {
	WriteFrame(step int, size float64, ps []particle.Particle) error
}

// Result is produced by the root rank.
type Result struct {
	Particles int
	Procs     int
	Steps     int
	Size      float64
	Elapsed   time.Duration
	AbsMin    float64
	AbsAvg    float64
	Warnings  []string
	History   []metrics.Step
	// Final is the population after the last step, in rank order.
	Final []particle.Particle
}
