// Package physics holds the short-range particle model.
//
// Two particles interact only when closer than [Params.Cutoff]. The pair
// force is repulsive and grows as the separation shrinks, with the distance
// clamped below at [Params.MinR]:
//
//	a = (1 - cutoff/r) / r^2 / mass * (neighbour - p)
//
// [Params.ApplyForce] accumulates one neighbour's contribution into a
// particle's acceleration and [Params.Move] advances it by one time step,
// reflecting it off the walls of the square domain.
//
// # Domain Size
//
// The domain side is derived from the particle count so that density stays
// constant as runs grow:
//
//	size := physics.DefaultParams().Size(n)
package physics
