package grid

import (
	"fmt"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/san-kum/gridsim/internal/particle"
)

func TestCellOf(t *testing.T) {
	g := New(0.1, 0.01)
	if g.RowCount() != 10 {
		t.Fatalf("expected 10 rows, got %d", g.RowCount())
	}

	tests := []struct {
		x, y     float64
		expected Cell
	}{
		{0, 0, Cell{0, 0}},
		{0.005, 0.015, Cell{1, 0}},
		{0.02, 0.0, Cell{0, 2}},
		{0.0999, 0.0999, Cell{9, 9}},
		{0.035, 0.07, Cell{7, 3}},
	}

	for _, tt := range tests {
		if got := g.CellOf(tt.x, tt.y); got != tt.expected {
			t.Errorf("CellOf(%g, %g): expected %+v, got %+v", tt.x, tt.y, tt.expected, got)
		}
	}
}

func TestCellOfJustBelowSize(t *testing.T) {
	// size/cutoff rounds to a whole number of cells for these populations
	for _, n := range []int{5445, 21780, 25205, 57245} {
		size := math.Sqrt(0.0005 * float64(n))
		g := New(size, 0.01)
		edge := math.Nextafter(size, 0)

		c := g.CellOf(edge, edge)
		last := g.RowCount() - 1
		if c.Row != last || c.Col != last {
			t.Errorf("n=%d: expected cell {%d %d} for %v, got %+v", n, last, last, edge, c)
		}
		g.Insert(Entry{ID: 1}, edge, edge)
		if got := g.OwnerOf(edge, edge, 4); got != OwnerOfRow(last, 4, g.RowCount()) {
			t.Errorf("n=%d: expected owner of the last row, got rank %d", n, got)
		}
	}
}

func TestCellOfStaysInGrid(t *testing.T) {
	for _, cutoff := range []float64{0.01, 0.02, 0.05} {
		for n := 500; n < 20000; n += 97 {
			size := math.Sqrt(0.0005 * float64(n))
			if size < cutoff {
				continue
			}
			g := New(size, cutoff)
			edge := math.Nextafter(size, 0)
			c := g.CellOf(edge, edge)
			if c.Row < 0 || c.Row >= g.RowCount() || c.Col < 0 || c.Col >= g.RowCount() {
				t.Fatalf("n=%d cutoff=%g: cell %+v outside %d rows", n, cutoff, c, g.RowCount())
			}
			g.Insert(Entry{ID: 1}, edge, edge)
		}
	}
}

func TestGridDimensionRoundsUp(t *testing.T) {
	g := New(0.7071, 0.01)
	if g.RowCount() != 71 {
		t.Errorf("expected 71 rows, got %d", g.RowCount())
	}
}

func TestInsertRemoveRoundTrip(t *testing.T) {
	g := New(0.05, 0.01)
	a := Entry{ID: 1}
	b := Entry{ID: 2}
	c := g.Insert(a, 0.012, 0.034)
	g.Insert(b, 0.013, 0.035)

	before := slices.Clone(g.Entries(c))

	ghost := Entry{ID: 1, Ghost: true}
	if got := g.Insert(ghost, 0.011, 0.031); got != c {
		t.Fatalf("expected ghost in %+v, got %+v", c, got)
	}
	if !g.Remove(ghost, c) {
		t.Fatal("ghost not found for removal")
	}

	if !slices.Equal(before, g.Entries(c)) {
		t.Errorf("expected %v after round trip, got %v", before, g.Entries(c))
	}
}

func TestInsertIsSet(t *testing.T) {
	g := New(0.05, 0.01)
	e := Entry{ID: 7}
	c := g.Insert(e, 0.02, 0.02)
	g.Insert(e, 0.025, 0.025)

	if n := len(g.Entries(c)); n != 1 {
		t.Fatalf("expected 1 entry, got %d", n)
	}
	if !g.Remove(e, c) {
		t.Fatal("entry not removed")
	}
	if g.Remove(e, c) {
		t.Error("entry removed twice")
	}
}

func TestRemoveNeedsInsertionCell(t *testing.T) {
	g := New(0.05, 0.01)
	e := Entry{ID: 3}
	old := g.Insert(e, 0.005, 0.005)

	moved := g.CellOf(0.015, 0.005)
	if g.Remove(e, moved) {
		t.Error("removal from the post-move cell should miss")
	}
	if !g.Remove(e, old) {
		t.Error("removal from the insertion cell should hit")
	}
}

func TestInsertOutsideDomainPanics(t *testing.T) {
	g := New(0.05, 0.01)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-domain position")
		}
	}()
	g.Insert(Entry{ID: 1}, 0.051, 0.01)
}

func TestAdjacentStaysInBlock(t *testing.T) {
	const size, cutoff = 0.2, 0.01
	g := New(size, cutoff)
	rng := rand.New(rand.NewSource(1))

	pos := make(map[particle.ID][2]float64)
	for i := 0; i < 2000; i++ {
		x, y := rng.Float64()*size, rng.Float64()*size
		id := particle.ID(i)
		pos[id] = [2]float64{x, y}
		g.Insert(Entry{ID: id}, x, y)
	}

	for id, p := range pos {
		c := g.CellOf(p[0], p[1])
		for e := range g.Adjacent(c) {
			q := pos[e.ID]
			nc := g.CellOf(q[0], q[1])
			if abs(nc.Row-c.Row) > 1 || abs(nc.Col-c.Col) > 1 {
				t.Fatalf("particle %d in %+v got neighbour %d in %+v", id, c, e.ID, nc)
			}
			if math.Abs(q[0]-p[0]) >= 2*cutoff || math.Abs(q[1]-p[1]) >= 2*cutoff {
				t.Fatalf("particle %d got neighbour %d beyond the 3x3 block", id, e.ID)
			}
		}
	}
}

func TestAdjacentFindsAllInteracting(t *testing.T) {
	const size, cutoff = 0.1, 0.01
	g := New(size, cutoff)
	rng := rand.New(rand.NewSource(2))

	var pts [][2]float64
	for i := 0; i < 500; i++ {
		x, y := rng.Float64()*size, rng.Float64()*size
		pts = append(pts, [2]float64{x, y})
		g.Insert(Entry{ID: particle.ID(i)}, x, y)
	}

	for i, p := range pts {
		seen := make(map[particle.ID]bool)
		for e := range g.Adjacent(g.CellOf(p[0], p[1])) {
			seen[e.ID] = true
		}
		for j, q := range pts {
			dx, dy := q[0]-p[0], q[1]-p[1]
			if dx*dx+dy*dy <= cutoff*cutoff && !seen[particle.ID(j)] {
				t.Fatalf("particle %d misses interacting particle %d", i, j)
			}
		}
	}
}

func TestAdjacentClipsAtEdges(t *testing.T) {
	g := New(0.03, 0.01)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			g.InsertAt(Entry{ID: particle.ID(row*3 + col)}, Cell{row, col})
		}
	}

	tests := []struct {
		c        Cell
		expected int
	}{
		{Cell{0, 0}, 4},
		{Cell{0, 1}, 6},
		{Cell{1, 1}, 9},
		{Cell{2, 2}, 4},
	}

	for _, tt := range tests {
		n := 0
		for range g.Adjacent(tt.c) {
			n++
		}
		if n != tt.expected {
			t.Errorf("cell %+v: expected %d neighbours, got %d", tt.c, tt.expected, n)
		}
	}
}

func TestAdjacentRestartable(t *testing.T) {
	g := New(0.03, 0.01)
	g.InsertAt(Entry{ID: 1}, Cell{1, 1})
	g.InsertAt(Entry{ID: 2}, Cell{0, 1})

	seq := g.Adjacent(Cell{1, 1})
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !slices.Equal(first, second) || len(first) != 2 {
		t.Errorf("expected two identical passes of 2 entries, got %v and %v", first, second)
	}
}

func TestClearFringe(t *testing.T) {
	g := New(0.06, 0.01) // 6 rows, 2 ranks of 3 rows
	g.InsertAt(Entry{ID: 1}, Cell{2, 0})
	g.InsertAt(Entry{ID: 2}, Cell{0, 4})
	g.InsertAt(Entry{ID: 10, Ghost: true}, Cell{3, 1})
	g.InsertAt(Entry{ID: 11, Ghost: true}, Cell{3, 5})

	if n := g.ClearFringe(0, 2); n != 2 {
		t.Errorf("expected 2 ghosts cleared, got %d", n)
	}
	owned, ghosts := g.Count()
	if owned != 2 || ghosts != 0 {
		t.Errorf("expected 2 owned and 0 ghosts, got %d and %d", owned, ghosts)
	}

	// rank 1's fringe is row 2, which holds rank 0's particle only.
	g.InsertAt(Entry{ID: 12, Ghost: true}, Cell{2, 3})
	if n := g.ClearFringe(1, 2); n != 1 {
		t.Errorf("expected 1 ghost cleared for rank 1, got %d", n)
	}
	if owned, _ := g.Count(); owned != 2 {
		t.Errorf("owned entries touched by ClearFringe: %d left", owned)
	}
}

func TestOwnerOf(t *testing.T) {
	g := New(0.04, 0.01)
	tests := []struct {
		y        float64
		nprocs   int
		expected int
	}{
		{0.005, 2, 0},
		{0.0199, 2, 0},
		{0.02, 2, 1},
		{0.039, 2, 1},
		{0.039, 1, 0},
		{0.025, 4, 2},
	}

	for _, tt := range tests {
		if got := g.OwnerOf(0.01, tt.y, tt.nprocs); got != tt.expected {
			t.Errorf("OwnerOf(y=%g, nprocs=%d): expected %d, got %d", tt.y, tt.nprocs, tt.expected, got)
		}
	}
}

func TestNeighbors(t *testing.T) {
	g := New(0.1, 0.01) // 10 rows

	tests := []struct {
		rank, nprocs int
		expected     []int
	}{
		{0, 1, nil},
		{0, 2, []int{1}},
		{1, 2, []int{0}},
		{1, 3, []int{0, 2}},
		{2, 3, []int{1}},
		// 10 rows over 8 ranks: 2 rows each, ranks 5..7 own nothing.
		{4, 8, []int{3}},
		{5, 8, nil},
		{7, 8, nil},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("rank%d_of_%d", tt.rank, tt.nprocs), func(t *testing.T) {
			if got := g.Neighbors(tt.rank, tt.nprocs); !slices.Equal(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
			if d := g.HaloDepth(tt.nprocs); d != 1 {
				t.Errorf("expected halo depth 1, got %d", d)
			}
		})
	}
}

func TestNeighborsSymmetric(t *testing.T) {
	for _, rows := range []int{3, 7, 10, 71} {
		g := New(float64(rows)*0.01-1e-9, 0.01)
		for nprocs := 1; nprocs <= 9; nprocs++ {
			for r := 0; r < nprocs; r++ {
				for _, q := range g.Neighbors(r, nprocs) {
					if !slices.Contains(g.Neighbors(q, nprocs), r) {
						t.Errorf("rows=%d nprocs=%d: %d lists %d but not the reverse", rows, nprocs, r, q)
					}
				}
			}
		}
	}
}

func TestInHalo(t *testing.T) {
	r := Range{Start: 4, End: 8}
	for row, expected := range map[int]bool{2: false, 3: true, 4: true, 7: true, 8: true, 9: false} {
		if got := InHalo(row, r); got != expected {
			t.Errorf("InHalo(%d, %v): expected %v, got %v", row, r, expected, got)
		}
	}
	if InHalo(0, Range{Start: 3, End: 3}) {
		t.Error("empty range has no halo")
	}
}

func BenchmarkAdjacent(b *testing.B) {
	for _, count := range []int{1000, 10000} {
		b.Run(fmt.Sprintf("Particles-%d", count), func(b *testing.B) {
			size := math.Sqrt(0.0005 * float64(count))
			g := New(size, 0.01)
			rng := rand.New(rand.NewSource(3))
			cells := make([]Cell, count)
			for i := range cells {
				cells[i] = g.Insert(Entry{ID: particle.ID(i)}, rng.Float64()*size, rng.Float64()*size)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				n := 0
				for _, c := range cells {
					for range g.Adjacent(c) {
						n++
					}
				}
			}
		})
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
