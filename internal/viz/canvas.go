package viz

import (
	"strings"

	"github.com/san-kum/gridsim/internal/particle"
)

// Braille Patterns: 2x4 dots
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

// Set lights the sub-pixel (x, y). The canvas is Width*2 by Height*4
// sub-pixels.
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

func (c *Canvas) Clear() {
	for i := range c.Grid {
		for j := range c.Grid[i] {
			c.Grid[i][j] = 0x2800
		}
	}
}

// rule lights every sub-pixel of row py.
func (c *Canvas) rule(py int) {
	for px := range c.Width * 2 {
		c.Set(px, py)
	}
}

// project maps a domain position to sub-pixels with y pointing up.
func (c *Canvas) project(x, y, size float64) (int, int) {
	w, h := c.Width*2, c.Height*4
	px := int(x / size * float64(w))
	py := h - 1 - int(y/size*float64(h))
	return min(max(px, 0), w-1), min(max(py, 0), h-1)
}

// PlotParticles draws one dot per particle of a square domain of side size.
func (c *Canvas) PlotParticles(ps []particle.Particle, size float64) {
	for _, p := range ps {
		c.Set(c.project(p.X, p.Y, size))
	}
}

// DrawBoundaries draws a horizontal rule at every height in ys.
func (c *Canvas) DrawBoundaries(ys []float64, size float64) {
	for _, y := range ys {
		_, py := c.project(0, y, size)
		c.rule(py)
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}
