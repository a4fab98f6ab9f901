package grid

import (
	"fmt"
	"iter"
	"math"

	"github.com/san-kum/gridsim/internal/particle"
)

// Cells are cutoff-sized, so a particle only ever interacts with particles in
// the row directly above or below its own.
const haloRows = 1

// Cell is an integer grid coordinate.
type Cell struct {
	Row, Col int
}

// Entry is a reference held by a cell. Ghost entries point into the ghost
// store, the others into the rank's own store.
type Entry struct {
	ID    particle.ID
	Ghost bool
}

// Grid is a uniform 2-D grid of cutoff-sized cells over [0, size)^2. It holds
// references only; particle data lives in the stores.
type Grid struct {
	size   float64
	cutoff float64
	dim    int
	cells  [][]Entry
}

// New returns a grid with ceil(size/cutoff) cells per axis.
func New(size, cutoff float64) *Grid {
	if size <= 0 || cutoff <= 0 {
		panic(fmt.Sprintf("grid: invalid geometry size=%g cutoff=%g", size, cutoff))
	}
	dim := int(math.Ceil(size / cutoff))
	if dim < 1 {
		dim = 1
	}
	return &Grid{
		size:   size,
		cutoff: cutoff,
		dim:    dim,
		cells:  make([][]Entry, dim*dim),
	}
}

func (g *Grid) Size() float64   { return g.size }
func (g *Grid) Cutoff() float64 { return g.cutoff }
func (g *Grid) RowCount() int   { return g.dim }

// CellOf maps a position to its cell. Cells are half-open, so a coordinate on
// a boundary belongs to the higher cell.
func (g *Grid) CellOf(x, y float64) Cell {
	return Cell{Row: g.axis(y), Col: g.axis(x)}
}

// axis maps one coordinate to a cell index. When size/cutoff rounds to a
// whole number, a coordinate just below size divides out to dim; it belongs
// to the last cell.
func (g *Grid) axis(v float64) int {
	i := int(math.Floor(v / g.cutoff))
	if i == g.dim && v < g.size {
		i = g.dim - 1
	}
	return i
}

func (g *Grid) index(c Cell) int {
	if c.Row < 0 || c.Row >= g.dim || c.Col < 0 || c.Col >= g.dim {
		panic(fmt.Sprintf("grid: cell %+v outside %dx%d grid", c, g.dim, g.dim))
	}
	return c.Row*g.dim + c.Col
}

// Insert adds e to the cell holding (x, y) and returns that cell. Positions
// outside the domain are a caller bug and panic.
func (g *Grid) Insert(e Entry, x, y float64) Cell {
	c := g.CellOf(x, y)
	g.InsertAt(e, c)
	return c
}

// InsertAt adds e to c. Membership is a set: inserting an entry twice is a
// no-op.
func (g *Grid) InsertAt(e Entry, c Cell) {
	i := g.index(c)
	for _, have := range g.cells[i] {
		if have == e {
			return
		}
	}
	g.cells[i] = append(g.cells[i], e)
}

// Remove deletes e from c, which must be the cell e was inserted under. It
// reports whether e was found.
func (g *Grid) Remove(e Entry, c Cell) bool {
	i := g.index(c)
	cell := g.cells[i]
	for k, have := range cell {
		if have == e {
			copy(cell[k:], cell[k+1:])
			g.cells[i] = cell[:len(cell)-1]
			return true
		}
	}
	return false
}

// Entries returns the references held by c. The slice is owned by the grid.
func (g *Grid) Entries(c Cell) []Entry {
	return g.cells[g.index(c)]
}

// Count returns the number of owned and ghost references in the grid.
func (g *Grid) Count() (owned, ghosts int) {
	for _, cell := range g.cells {
		for _, e := range cell {
			if e.Ghost {
				ghosts++
			} else {
				owned++
			}
		}
	}
	return owned, ghosts
}

// Clear empties every cell.
func (g *Grid) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// ClearFringe drops the ghost entries in the rows bordering rank's range and
// leaves the rank's own rows untouched. It returns the number removed.
func (g *Grid) ClearFringe(rank, nprocs int) int {
	own := RangeOf(rank, nprocs, g.dim)
	if own.Empty() {
		return 0
	}
	removed := 0
	for _, rows := range []Range{
		{Start: own.Start - haloRows, End: own.Start},
		{Start: own.End, End: own.End + haloRows},
	} {
		for row := max(rows.Start, 0); row < min(rows.End, g.dim); row++ {
			for col := 0; col < g.dim; col++ {
				removed += g.dropGhosts(row*g.dim + col)
			}
		}
	}
	return removed
}

func (g *Grid) dropGhosts(i int) int {
	kept := g.cells[i][:0]
	for _, e := range g.cells[i] {
		if !e.Ghost {
			kept = append(kept, e)
		}
	}
	n := len(g.cells[i]) - len(kept)
	g.cells[i] = kept
	return n
}

// OwnerOf returns the rank that owns the row holding (x, y).
func (g *Grid) OwnerOf(x, y float64, nprocs int) int {
	return OwnerOfRow(g.CellOf(x, y).Row, nprocs, g.dim)
}

func (g *Grid) RowsPerRank(nprocs int) int {
	return RowsPerRank(nprocs, g.dim)
}

// HaloDepth is how many ranks away a boundary exchange must reach. With
// cutoff-sized cells and at least one row per rank this is 1.
func (g *Grid) HaloDepth(nprocs int) int {
	per := g.RowsPerRank(nprocs)
	return (haloRows + per - 1) / per
}

// InHalo reports whether row is close enough to r that particles in it can
// interact with particles r owns.
func InHalo(row int, r Range) bool {
	return !r.Empty() && row >= r.Start-haloRows && row < r.End+haloRows
}

// Neighbors returns, in rank order, the ranks whose rows lie within the halo
// of rank's rows. Ranks with empty ranges have no neighbors and are nobody's
// neighbor, which keeps the relation symmetric.
func (g *Grid) Neighbors(rank, nprocs int) []int {
	own := RangeOf(rank, nprocs, g.dim)
	if own.Empty() {
		return nil
	}
	depth := g.HaloDepth(nprocs)
	var out []int
	for q := rank - depth; q <= rank+depth; q++ {
		if q == rank || q < 0 || q >= nprocs {
			continue
		}
		other := RangeOf(q, nprocs, g.dim)
		if other.Empty() {
			continue
		}
		if other.Start < own.End+haloRows && other.End > own.Start-haloRows {
			out = append(out, q)
		}
	}
	return out
}

// Adjacent yields every reference in c and its eight neighbours, clipped at
// the grid edge. It never looks outside that 3x3 block. The sequence can be
// ranged over more than once.
func (g *Grid) Adjacent(c Cell) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for row := max(c.Row-1, 0); row <= min(c.Row+1, g.dim-1); row++ {
			for col := max(c.Col-1, 0); col <= min(c.Col+1, g.dim-1); col++ {
				for _, e := range g.cells[row*g.dim+col] {
					if !yield(e) {
						return
					}
				}
			}
		}
	}
}
