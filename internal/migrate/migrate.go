// Package migrate hands particles to their new owner after they move.
//
// Migration runs in two phases. Detect walks the owned particles once after
// integration: a particle that now sits in another rank's rows is pulled out
// of the grid and the store, and one that only changed cell is re-filed.
// Exchange then shares every rank's departures with every rank: first the
// per-rank counts, then the records themselves. Each rank keeps the arrivals
// whose position maps to its own rows.
package migrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/san-kum/gridsim/internal/grid"
	"github.com/san-kum/gridsim/internal/particle"
	"github.com/san-kum/gridsim/internal/store"
	"github.com/san-kum/gridsim/internal/transport"
)

// ErrSizeMismatch means the gathered payload does not hold the number of
// particles the ranks announced.
var ErrSizeMismatch = errors.New("migrate: gathered size disagrees with announced counts")

// Move records where an owned particle was filed before it was integrated.
type Move struct {
	ID   particle.ID
	From grid.Cell
}

// Stats counts one migration.
type Stats struct {
	Departed int
	Refiled  int
}

type Migrator struct {
	comm  transport.Comm
	grid  *grid.Grid
	owned *store.Local
	pool  *particle.BufferPool
	log   logrus.FieldLogger

	departing []particle.Particle
}

func NewMigrator(c transport.Comm, g *grid.Grid, owned *store.Local, pool *particle.BufferPool, log logrus.FieldLogger) *Migrator {
	if pool == nil {
		pool = particle.NewBufferPool(1024)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Migrator{comm: c, grid: g, owned: owned, pool: pool, log: log}
}

// Record captures the current cell of every owned particle. Call it before
// the particles move.
func (m *Migrator) Record(moves []Move) []Move {
	moves = moves[:0]
	for id, p := range m.owned.All() {
		moves = append(moves, Move{ID: id, From: m.grid.CellOf(p.X, p.Y)})
	}
	return moves
}

// Detect compares each particle's new position with where it was filed.
// Particles that left the rank's rows are removed and queued for Exchange.
func (m *Migrator) Detect(moves []Move) Stats {
	var st Stats
	m.departing = m.departing[:0]
	rank, nprocs := m.comm.Rank(), m.comm.Size()
	for _, mv := range moves {
		p := m.owned.Get(mv.ID)
		if p == nil {
			continue
		}
		e := grid.Entry{ID: mv.ID}
		to := m.grid.CellOf(p.X, p.Y)
		switch {
		case grid.OwnerOfRow(to.Row, nprocs, m.grid.RowCount()) != rank:
			m.grid.Remove(e, mv.From)
			gone, _ := m.owned.Remove(mv.ID)
			m.departing = append(m.departing, gone)
			st.Departed++
		case to != mv.From:
			m.grid.Remove(e, mv.From)
			m.grid.InsertAt(e, to)
			st.Refiled++
		}
	}
	return st
}

// Departing returns the particles queued by the last Detect.
func (m *Migrator) Departing() []particle.Particle { return m.departing }

// Exchange shares the queued departures with every rank and adopts the ones
// this rank now owns. Every rank must call it, even with nothing to send.
func (m *Migrator) Exchange(ctx context.Context) (int, error) {
	rank, nprocs := m.comm.Rank(), m.comm.Size()
	if nprocs == 1 {
		if len(m.departing) > 0 {
			return 0, fmt.Errorf("migrate: %d particles left a single-rank domain", len(m.departing))
		}
		return 0, nil
	}

	counts, err := transport.AllgatherInt(ctx, m.comm, transport.TagMigrateSizes, len(m.departing))
	if err != nil {
		return 0, fmt.Errorf("migrate: gather sizes: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}

	buf := particle.AppendRecords(m.pool.Get(), m.departing)
	gathered, err := transport.Allgatherv(ctx, m.comm, transport.TagMigrate, buf, counts, particle.Size)
	m.pool.Put(buf)
	if err != nil {
		return 0, fmt.Errorf("migrate: gather particles: %w", err)
	}
	arrivals, err := particle.DecodeRecords(gathered)
	if err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}
	if len(arrivals) != total {
		return 0, fmt.Errorf("%w: announced %d, received %d", ErrSizeMismatch, total, len(arrivals))
	}

	adopted := 0
	for _, p := range arrivals {
		if m.grid.OwnerOf(p.X, p.Y, nprocs) != rank {
			continue
		}
		id := m.owned.Add(p)
		m.grid.Insert(grid.Entry{ID: id}, p.X, p.Y)
		adopted++
	}
	if total > 0 {
		m.log.WithFields(logrus.Fields{"departed": len(m.departing), "adopted": adopted, "in_flight": total}).Trace("migrated")
	}
	m.departing = m.departing[:0]
	return adopted, nil
}
