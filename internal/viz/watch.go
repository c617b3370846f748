package viz

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/golang/geo/r3"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/opspace/internal/control"
	"github.com/san-kum/opspace/internal/experiment"
	"github.com/san-kum/opspace/internal/refine"
)

const (
	canvasWidth     = 56
	canvasHeight    = 18
	frameRate       = 30
	historyCapacity = 300
	targetStep      = 0.01
)

type TickMsg time.Time

// Watch steps an experiment's closed loop in real time and renders it.
type Watch struct {
	exp      *experiment.Experiment
	dt, t    float64
	perFrame int
	reach    float64

	target  r3.Vector
	running bool
	topView bool

	canvas *Canvas
	trail  []r3.Vector
	errors []float64
	counts map[refine.Status]int
	last   *control.Command
	err    error

	params        map[string]float64
	initialParams map[string]float64
	paramKeys     []string
	selected      int
}

// NewWatch plays exp at speed times real time. The arm is expected to be at
// its initial state, as left by experiment.Build.
func NewWatch(exp *experiment.Experiment, speed float64) Watch {
	dt := exp.Config().Dt
	perFrame := int(math.Round(speed / (frameRate * dt)))
	if perFrame < 1 {
		perFrame = 1
	}

	var reach float64
	for _, l := range exp.Arm().Links {
		reach += l.Length.Norm()
	}

	params := exp.Controller().GetParams()
	initialParams := make(map[string]float64, len(params))
	keys := make([]string, 0, len(params))
	for k, v := range params {
		initialParams[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return Watch{
		exp:           exp,
		dt:            dt,
		perFrame:      perFrame,
		reach:         reach,
		target:        exp.Target(),
		running:       true,
		canvas:        NewCanvas(canvasWidth, canvasHeight),
		trail:         make([]r3.Vector, 0, historyCapacity),
		errors:        make([]float64, 0, historyCapacity),
		counts:        make(map[refine.Status]int),
		params:        params,
		initialParams: initialParams,
		paramKeys:     keys,
	}
}

// Run takes over the terminal until the user quits.
func Run(exp *experiment.Experiment, speed float64) error {
	_, err := tea.NewProgram(NewWatch(exp, speed), tea.WithAltScreen()).Run()
	return err
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Watch) Init() tea.Cmd {
	return tick()
}

func (m Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "tab":
			if len(m.paramKeys) > 0 {
				m.selected = (m.selected + 1) % len(m.paramKeys)
			}
		case "up", "k":
			m.adjustParam(1.05)
		case "down", "j":
			m.adjustParam(0.95)
		case "a":
			m.target.X -= targetStep
		case "d":
			m.target.X += targetStep
		case "w":
			m.target.Z += targetStep
		case "s":
			m.target.Z -= targetStep
		case "v":
			m.topView = !m.topView
		}
	case TickMsg:
		if m.running && m.err == nil {
			for i := 0; i < m.perFrame; i++ {
				if err := m.step(); err != nil {
					m.err = err
					m.running = false
					break
				}
			}
		}
		return m, tick()
	}
	return m, nil
}

// step advances the loop by one control tick.
func (m *Watch) step() error {
	arm := m.exp.Arm()
	cmd, err := m.exp.Controller().Update(m.target)
	if err != nil {
		return err
	}
	x := m.exp.Integrator().Step(arm, arm.State(), cmd.Torque, m.t, m.dt)
	if err := arm.SetState(x); err != nil {
		return err
	}
	m.t += m.dt
	m.last = cmd
	m.counts[cmd.Refine.Status]++

	m.errors = append(m.errors, cmd.PositionError)
	if len(m.errors) > historyCapacity {
		m.errors = m.errors[1:]
	}
	m.trail = append(m.trail, cmd.Position)
	if len(m.trail) > historyCapacity {
		m.trail = m.trail[1:]
	}
	return nil
}

func (m *Watch) adjustParam(factor float64) {
	if len(m.paramKeys) == 0 {
		return
	}
	key := m.paramKeys[m.selected]
	v := m.params[key] * factor
	if err := m.exp.Controller().SetParam(key, v); err != nil {
		m.err = err
		return
	}
	m.params[key] = v
}

// reset restores the initial state, target and gains.
func (m *Watch) reset() {
	ctrl := m.exp.Controller()
	for k, v := range m.initialParams {
		if err := ctrl.SetParam(k, v); err == nil {
			m.params[k] = v
		}
	}
	m.err = m.exp.Reset()
	m.t = 0
	m.target = m.exp.Target()
	m.trail = m.trail[:0]
	m.errors = m.errors[:0]
	m.counts = make(map[refine.Status]int)
	m.last = nil
	m.running = m.err == nil
}

// project maps a world point to canvas sub-pixels, base at the centre.
func (m *Watch) project(p r3.Vector) (int, int) {
	w, h := m.canvas.Pixels()
	scale := 0.9 * float64(min(w, h)) / 2
	if m.reach > 0 {
		scale /= m.reach
	}
	vert := p.Z
	if m.topView {
		vert = p.Y
	}
	return w/2 + int(math.Round(p.X*scale)), h/2 - int(math.Round(vert*scale))
}

func (m *Watch) draw() {
	m.canvas.Clear()
	arm := m.exp.Arm()

	for _, p := range m.trail {
		m.canvas.Set(m.project(p))
	}

	x0, y0 := m.project(arm.Base)
	for i := range arm.Links {
		link, err := arm.Point(i)
		if err != nil {
			break
		}
		x1, y1 := m.project(link.Translation())
		m.canvas.DrawLine(x0, y0, x1, y1)
		x0, y0 = x1, y1
	}

	tx, ty := m.project(m.target)
	m.canvas.Cross(tx, ty, 2)
}

func (m Watch) View() string {
	m.draw()
	canvasView := canvasStyle.Render(m.canvas.String())

	cfg := m.exp.Config()
	var s strings.Builder
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s  %d DOF", strings.ToUpper(cfg.Model), m.exp.Arm().DOF())) + "\n")
	switch {
	case m.err != nil:
		s.WriteString(statusFailed.Render("FAILED") + "\n")
	case m.running:
		s.WriteString(statusRunning.Render("RUNNING") + "\n")
	default:
		s.WriteString(statusPaused.Render("PAUSED") + "\n")
	}

	if len(m.errors) > 1 {
		chart := asciigraph.Plot(m.errors, asciigraph.Height(5), asciigraph.Width(32), asciigraph.Caption("Tracking error [m]"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	view := "side x-z"
	if m.topView {
		view = "top x-y"
	}
	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.3fs", m.t)) + "\n")
	s.WriteString(labelStyle.Render("View") + valueStyle.Render(view) + "\n")
	s.WriteString(labelStyle.Render("Target") + valueStyle.Render(fmt.Sprintf("(%.3f, %.3f, %.3f)", m.target.X, m.target.Y, m.target.Z)) + "\n")
	if m.last != nil {
		s.WriteString(labelStyle.Render("Error") + valueStyle.Render(fmt.Sprintf("%.4f m", m.last.PositionError)) + "\n")
		s.WriteString(labelStyle.Render("Rank") + valueStyle.Render(fmt.Sprintf("%d", m.last.Rank)) + "\n")
	}

	s.WriteString("\nREFINEMENT\n")
	var total int
	for _, n := range m.counts {
		total += n
	}
	for st := refine.Refined; st <= refine.Skipped; st++ {
		n := m.counts[st]
		if n == 0 {
			continue
		}
		s.WriteString(valueStyle.Render(fmt.Sprintf("%-20s %5.1f%%", st, 100*float64(n)/float64(total))) + "\n")
	}

	s.WriteString("\nPARAMETERS\n")
	for i, k := range m.paramKeys {
		line := fmt.Sprintf("%-13s %.4g", k, m.params[k])
		if i == m.selected {
			s.WriteString(activeParamStyle.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + labelStyle.UnsetWidth().Render(line) + "\n")
		}
	}

	if m.err != nil {
		s.WriteString("\n" + statusFailed.Render(m.err.Error()) + "\n")
	}
	s.WriteString(helpStyle.Render("SP:Pause R:Reset Q:Quit V:View\nTab ↑↓:Tune  WASD:Target"))

	return lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsStyle.Render(s.String()))
}
