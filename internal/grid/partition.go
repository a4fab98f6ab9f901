package grid

import "fmt"

// Range is a half-open span of grid rows [Start, End).
type Range struct {
	Start, End int
}

func (r Range) Len() int { return r.End - r.Start }

func (r Range) Empty() bool { return r.End <= r.Start }

func (r Range) Contains(row int) bool { return row >= r.Start && row < r.End }

func (r Range) String() string { return fmt.Sprintf("[%d, %d)", r.Start, r.End) }

// RowsPerRank is ceil(rows / nprocs).
func RowsPerRank(nprocs, rows int) int {
	if nprocs < 1 {
		panic(fmt.Sprintf("grid: invalid process count %d", nprocs))
	}
	return (rows + nprocs - 1) / nprocs
}

// Partition assigns contiguous row ranges to ranks. It is a pure function of
// its arguments, so every rank derives the same table without communicating.
// Trailing ranks get empty ranges when nprocs exceeds rows.
func Partition(nprocs, rows int) []Range {
	per := RowsPerRank(nprocs, rows)
	out := make([]Range, nprocs)
	for r := range out {
		out[r] = Range{Start: min(r*per, rows), End: min((r+1)*per, rows)}
	}
	return out
}

// RangeOf returns rank's row range.
func RangeOf(rank, nprocs, rows int) Range {
	per := RowsPerRank(nprocs, rows)
	return Range{Start: min(rank*per, rows), End: min((rank+1)*per, rows)}
}

// OwnerOfRow maps a row to the rank whose range holds it.
func OwnerOfRow(row, nprocs, rows int) int {
	if row < 0 || row >= rows {
		panic(fmt.Sprintf("grid: row %d outside [0, %d)", row, rows))
	}
	return row / RowsPerRank(nprocs, rows)
}
