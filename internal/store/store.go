// Package store holds the particles a rank currently owns.
//
// Particles are kept by value in a dense slot table and addressed by a
// particle.ID that stays valid until the particle is removed. Freed slots are
// reused by later additions. Iteration follows slot order, so every pass over
// an unchanged store visits particles in the same order.
package store

import (
	"iter"

	"github.com/san-kum/gridsim/internal/particle"
)

type slot struct {
	p    particle.Particle
	live bool
}

// Local is a rank's particle store. It is not safe for concurrent use.
type Local struct {
	slots []slot
	free  []particle.ID
	n     int
}

func New(capacity int) *Local {
	return &Local{slots: make([]slot, 0, capacity)}
}

// Add stores a copy of p and returns its ID.
func (s *Local) Add(p particle.Particle) particle.ID {
	s.n++
	if k := len(s.free); k > 0 {
		id := s.free[k-1]
		s.free = s.free[:k-1]
		s.slots[id] = slot{p: p, live: true}
		return id
	}
	s.slots = append(s.slots, slot{p: p, live: true})
	return particle.ID(len(s.slots) - 1)
}

// Remove deletes id and returns the particle it held.
func (s *Local) Remove(id particle.ID) (particle.Particle, bool) {
	if !s.valid(id) {
		return particle.Particle{}, false
	}
	p := s.slots[id].p
	s.slots[id] = slot{}
	s.free = append(s.free, id)
	s.n--
	return p, true
}

// Get returns a pointer for in-place updates, or nil if id is not live. The
// pointer is invalidated by the next Add.
func (s *Local) Get(id particle.ID) *particle.Particle {
	if !s.valid(id) {
		return nil
	}
	return &s.slots[id].p
}

func (s *Local) Len() int { return s.n }

// Reset drops every particle.
func (s *Local) Reset() {
	s.slots = s.slots[:0]
	s.free = s.free[:0]
	s.n = 0
}

// All yields live particles in slot order. Removing the current particle
// during iteration is allowed.
func (s *Local) All() iter.Seq2[particle.ID, *particle.Particle] {
	return func(yield func(particle.ID, *particle.Particle) bool) {
		for i := range s.slots {
			if !s.slots[i].live {
				continue
			}
			if !yield(particle.ID(i), &s.slots[i].p) {
				return
			}
		}
	}
}

// Snapshot copies the live particles in slot order.
func (s *Local) Snapshot() []particle.Particle {
	out := make([]particle.Particle, 0, s.n)
	for _, p := range s.All() {
		out = append(out, *p)
	}
	return out
}

func (s *Local) valid(id particle.ID) bool {
	return id >= 0 && int(id) < len(s.slots) && s.slots[id].live
}
