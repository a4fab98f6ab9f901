// Package export renders snapshot frames and run diagnostics as SVG.
package export

import (
	"fmt"
	"strings"

	"github.com/san-kum/gridsim/internal/metrics"
	"github.com/san-kum/gridsim/internal/particle"
)

const (
	background   = "#0a0a0a"
	particleFill = "#00ff00"
	boundaryLine = "#555555"
)

// FrameSVG draws one snapshot frame of a square domain of side size on a px
// by px canvas. A dashed rule marks every rank boundary in boundaries.
func FrameSVG(ps []particle.Particle, size float64, boundaries []float64, px int) string {
	if size <= 0 || px <= 0 {
		return ""
	}
	scale := float64(px) / size

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, px, px, px, px, background)

	sb.WriteString(`<g stroke="` + boundaryLine + `" stroke-dasharray="4,4">` + "\n")
	for _, y := range boundaries {
		sy := float64(px) - y*scale
		fmt.Fprintf(&sb, `<line x1="0" y1="%.1f" x2="%d" y2="%.1f"/>`+"\n", sy, px, sy)
	}
	sb.WriteString("</g>\n")

	// y points up in the domain and down in SVG.
	r := max(float64(px)/400, 1)
	sb.WriteString(`<g fill="` + particleFill + `">` + "\n")
	for _, p := range ps {
		fmt.Fprintf(&sb, `<circle cx="%.2f" cy="%.2f" r="%.1f"/>`+"\n", p.X*scale, float64(px)-p.Y*scale, r)
	}
	sb.WriteString("</g>\n</svg>")
	return sb.String()
}

// HistorySVG plots the per-step minimum and mean pair distance as two
// polylines over a width by height canvas.
func HistorySVG(hist []metrics.Step, width, height int) string {
	if len(hist) < 2 {
		return ""
	}

	hi := 0.0
	for _, h := range hist {
		hi = max(hi, h.DMin, h.Mean())
	}
	if hi == 0 {
		hi = 1
	}
	hi *= 1.1
	first, last := hist[0].Step, hist[len(hist)-1].Step
	span := float64(last - first)
	if span == 0 {
		span = 1
	}

	path := func(value func(metrics.Step) float64) string {
		var b strings.Builder
		for i, h := range hist {
			x := float64(h.Step-first) / span * float64(width)
			y := float64(height) - value(h)/hi*float64(height)
			if i == 0 {
				fmt.Fprintf(&b, "M%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&b, " L%.1f,%.1f", x, y)
			}
		}
		return b.String()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="%s"/>
`, width, height, width, height, background)
	fmt.Fprintf(&sb, `<path fill="none" stroke="#00ffff" stroke-width="1.5" d="%s"/>`+"\n", path(func(h metrics.Step) float64 { return h.DMin }))
	fmt.Fprintf(&sb, `<path fill="none" stroke="#ffff00" stroke-width="1.5" d="%s"/>`+"\n", path(metrics.Step.Mean))
	sb.WriteString("</svg>")
	return sb.String()
}
