// Package halo copies boundary particles between neighbouring ranks so that
// every owned particle can see all of its interaction partners.
//
// Each step a rank sends every neighbour a counted payload holding the owned
// particles whose row lies within one row of that neighbour's range. What it
// receives becomes ghost particles: read-only copies that live in a separate
// store and are referenced from the grid as ghost entries until the next
// Clear.
package halo

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

// ErrGhostOutsideFringe means a neighbour sent a particle that does not sit in
// the rows bordering this rank's range.
var ErrGhostOutsideFringe = errors.New("halo: ghost outside fringe rows")

// Stats counts the particles moved by one exchange.
type Stats struct {
	Sent     int
	Received int
}

// Exchanger runs the halo exchange for one rank.
type Exchanger struct {
	comm   transport.Comm
	grid   *grid.Grid
	owned  *store.Local
	ghosts *store.Local
	pool   *particle.BufferPool
	log    logrus.FieldLogger
}

func NewExchanger(c transport.Comm, g *grid.Grid, owned, ghosts *store.Local, pool *particle.BufferPool, log logrus.FieldLogger) *Exchanger {
	if pool == nil {
		pool = particle.NewBufferPool(1024)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Exchanger{comm: c, grid: g, owned: owned, ghosts: ghosts, pool: pool, log: log}
}

// Clear drops the previous step's ghosts from the grid and the ghost store.
func (x *Exchanger) Clear() int {
	n := x.grid.ClearFringe(x.comm.Rank(), x.comm.Size())
	x.ghosts.Reset()
	return n
}

// Exchange sends boundary particles to every neighbour, installs what the
// neighbours send back as ghosts and waits for all ranks to finish.
func (x *Exchanger) Exchange(ctx context.Context) (Stats, error) {
	var st Stats
	rank, nprocs := x.comm.Rank(), x.comm.Size()
	rows := x.grid.RowCount()
	own := grid.RangeOf(rank, nprocs, rows)
	neighbors := x.grid.Neighbors(rank, nprocs)

	encs := make([]*particle.Encoder, len(neighbors))
	ranges := make([]grid.Range, len(neighbors))
	for i, q := range neighbors {
		encs[i] = particle.NewEncoder(x.pool.Get())
		ranges[i] = grid.RangeOf(q, nprocs, rows)
	}
	for _, p := range x.owned.All() {
		row := x.grid.CellOf(p.X, p.Y).Row
		for i := range neighbors {
			if grid.InHalo(row, ranges[i]) {
				encs[i].Add(*p)
			}
		}
	}

	for i, q := range neighbors {
		payload := encs[i].Bytes()
		err := x.comm.Send(ctx, q, transport.TagHalo, payload)
		x.pool.Put(payload)
		if err != nil {
			return st, fmt.Errorf("halo: send to rank %d: %w", q, err)
		}
		st.Sent += encs[i].Len()
	}

	for _, q := range neighbors {
		payload, err := x.comm.Recv(ctx, q, transport.TagHalo)
		if err != nil {
			return st, fmt.Errorf("halo: receive from rank %d: %w", q, err)
		}
		ghosts, err := particle.Decode(payload)
		if err != nil {
			return st, fmt.Errorf("halo: payload from rank %d: %w", q, err)
		}
		for _, p := range ghosts {
			row := x.grid.CellOf(p.X, p.Y).Row
			if own.Contains(row) || !grid.InHalo(row, own) {
				return st, fmt.Errorf("%w: rank %d sent row %d, own rows %v", ErrGhostOutsideFringe, q, row, own)
			}
			id := x.ghosts.Add(p)
			x.grid.Insert(grid.Entry{ID: id, Ghost: true}, p.X, p.Y)
		}
		st.Received += len(ghosts)
	}

	if err := transport.Barrier(ctx, x.comm); err != nil {
		return st, fmt.Errorf("halo: barrier: %w", err)
	}
	x.log.WithFields(logrus.Fields{"sent": st.Sent, "received": st.Received}).Trace("halo exchanged")
	return st, nil
}
