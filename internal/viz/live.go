package viz

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/gridsim/internal/particle"
	"github.com/san-kum/gridsim/internal/sim"
)

const (
	width           = 60
	height          = 20
	historyCapacity = 600
)

type frame struct {
	step int
	size float64
	ps   []particle.Particle
}

// Feed carries progress from the simulation's root rank to the live view.
// It never blocks the simulation: when the view falls behind, updates are
// dropped and only the latest matter.
type Feed struct {
	events chan sim.StepEvent
	frames chan frame
}

func NewFeed() *Feed {
	return &Feed{
		events: make(chan sim.StepEvent, 256),
		frames: make(chan frame, 4),
	}
}

func (f *Feed) OnStep(ev sim.StepEvent) {
	select {
	case f.events <- ev:
	default:
	}
}

// WriteFrame copies positions for display.
func (f *Feed) WriteFrame(step int, size float64, ps []particle.Particle) error {
	cp := make([]particle.Particle, len(ps))
	copy(cp, ps)
	select {
	case f.frames <- frame{step: step, size: size, ps: cp}:
	default:
	}
	return nil
}

type TickMsg time.Time

type doneMsg struct {
	res *sim.Result
	err error
}

// Model follows a run in progress.
type Model struct {
	feed       *Feed
	steps      int
	procs      int
	boundaries []float64
	canvas     *Canvas

	last    sim.StepEvent
	seen    bool
	dmin    []float64
	mean    []float64
	frame   frame
	paused  bool
	done    bool
	err     error
	started time.Time
}

// NewModel prepares a view of a run of steps steps over procs ranks. The
// boundaries are drawn across the particle plot.
func NewModel(feed *Feed, steps, procs int, boundaries []float64) Model {
	return Model{
		feed:       feed,
		steps:      steps,
		procs:      procs,
		boundaries: boundaries,
		canvas:     NewCanvas(width, height),
		dmin:       make([]float64, 0, historyCapacity),
		mean:       make([]float64, 0, historyCapacity),
		started:    time.Now(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/20, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		}
	case TickMsg:
		if !m.paused {
			m.drain()
		}
		if m.done {
			return m, nil
		}
		return m, tick()
	case doneMsg:
		m.drain()
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) drain() {
	for {
		select {
		case ev := <-m.feed.events:
			m.observe(ev)
		case f := <-m.feed.frames:
			m.frame = f
		default:
			return
		}
	}
}

func (m *Model) observe(ev sim.StepEvent) {
	m.last = ev
	m.seen = true
	if !ev.HasDiag {
		return
	}
	m.dmin = append(m.dmin, ev.Diagnostics.DMin)
	m.mean = append(m.mean, ev.Diagnostics.Mean())
	if len(m.dmin) > historyCapacity {
		m.dmin = m.dmin[1:]
		m.mean = m.mean[1:]
	}
}

func (m Model) View() string {
	m.canvas.Clear()
	if m.frame.size > 0 {
		m.canvas.PlotParticles(m.frame.ps, m.frame.size)
		m.canvas.DrawBoundaries(m.boundaries, m.frame.size)
	}
	plot := Panel.Render(m.canvas.String() + Subtle.Render(fmt.Sprintf("snapshot at step %d", m.frame.step)))

	var s strings.Builder
	status := StatusRunning.Render("RUNNING")
	switch {
	case m.err != nil:
		status = StatusFailed.Render("FAILED")
	case m.done:
		status = StatusRunning.Render("DONE")
	case m.paused:
		status = StatusPaused.Render("FROZEN")
	}
	s.WriteString(Title.Render("gridsim") + "  " + status + "\n\n")

	step := 0
	if m.seen {
		step = m.last.Step + 1
	}
	pct := 0.0
	if m.steps > 0 {
		pct = float64(step) / float64(m.steps)
	}
	s.WriteString(ProgressBar(pct, 30) + fmt.Sprintf(" %d/%d\n\n", step, m.steps))
	s.WriteString(metric("Elapsed", m.last.Elapsed.Round(time.Millisecond).String()))
	if m.seen && m.last.Elapsed > 0 {
		s.WriteString(metric("Rate", fmt.Sprintf("%.1f steps/s", float64(step)/m.last.Elapsed.Seconds())))
	}

	if len(m.last.Counts) > 0 {
		s.WriteString("\n" + Subtle.Render("particles per rank") + "\n")
		busiest := 0
		for _, n := range m.last.Counts {
			busiest = max(busiest, n)
		}
		for r, n := range m.last.Counts {
			s.WriteString(fmt.Sprintf("%3d ", r) + LoadBar(n, busiest, 20) + fmt.Sprintf(" %d\n", n))
		}
	}

	if len(m.dmin) > 1 {
		chart := asciigraph.PlotMany([][]float64{m.dmin, m.mean},
			asciigraph.Height(5), asciigraph.Width(30),
			asciigraph.SeriesColors(asciigraph.Red, asciigraph.Green),
			asciigraph.Caption("min / mean distance"))
		s.WriteString(Graph.Render(chart) + "\n")
	}
	if m.err != nil {
		s.WriteString(StatusFailed.Render(m.err.Error()) + "\n")
	}
	s.WriteString("\n" + KeyHint.Render("SP:Freeze Q:Quit"))

	return lipgloss.JoinHorizontal(lipgloss.Top, plot, Panel.Render(s.String()))
}

// RunLive runs the simulation under a live view. Quitting the view cancels
// the run.
func RunLive(ctx context.Context, m Model, run func(ctx context.Context) (*sim.Result, error)) (*sim.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(m)
	var (
		res    *sim.Result
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, runErr = run(ctx)
		p.Send(doneMsg{res: res, err: runErr})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return nil, err
	}
	cancel()
	<-done
	return res, runErr
}
