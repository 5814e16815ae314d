// Package tui provides a live terminal view of a running solve: iteration
// reports stream into a bubbletea program showing the merit history and the
// latest line-search outcome.
package tui

import (
	"fmt"
	"strings"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/YunxiTang/Horizon-opt/internal/ilqr"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type iterMsg struct {
	iter      int
	alpha     float64
	cost      float64
	defect    float64
	violation float64
	merit     float64
	accepted  bool
}

type doneMsg struct {
	converged bool
	err       error
}

type liveModel struct {
	name    string
	last    iterMsg
	merits  []float64
	reports int

	done      bool
	converged bool
	err       error
	stop      *atomic.Bool
}

func (m liveModel) Init() tea.Cmd { return nil }

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.done {
				return m, tea.Quit
			}
			// ask the solver to stop; quit on its done message
			m.stop.Store(true)
		}
	case iterMsg:
		m.last = msg
		m.reports++
		if msg.accepted {
			m.merits = append(m.merits, msg.merit)
		}
	case doneMsg:
		m.done = true
		m.converged = msg.converged
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m liveModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("horizon-opt · "+m.name) + "\n\n")

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", label)))
		b.WriteString(valueStyle.Render(value) + "\n")
	}
	row("iteration", fmt.Sprintf("%d", m.last.iter))
	row("step", fmt.Sprintf("%.4f", m.last.alpha))
	row("cost", fmt.Sprintf("%.6g", m.last.cost))
	row("defect", fmt.Sprintf("%.3g", m.last.defect))
	row("violation", fmt.Sprintf("%.3g", m.last.violation))
	row("merit", fmt.Sprintf("%.6g", m.last.merit))

	if len(m.merits) >= 2 {
		b.WriteString("\n" + asciigraph.Plot(m.merits,
			asciigraph.Height(8),
			asciigraph.Caption("merit")) + "\n")
	}

	b.WriteString("\n")
	if m.done {
		if m.err != nil {
			b.WriteString(warnStyle.Render("error: "+m.err.Error()) + "\n")
		} else if m.converged {
			b.WriteString(okStyle.Render("converged") + "\n")
		} else {
			b.WriteString(warnStyle.Render("stopped before convergence") + "\n")
		}
		b.WriteString(footerStyle.Render("press q to exit"))
	} else {
		b.WriteString(footerStyle.Render("solving · press q to stop"))
	}
	return b.String()
}

// Live drives solve inside a bubbletea program. The solve function receives
// a callback to install as the solver's iteration callback; the view updates
// on every line-search attempt and q requests early termination through the
// callback's return value.
func Live(name string, solve func(cb ilqr.Callback) (bool, error)) (bool, error) {
	stop := &atomic.Bool{}
	p := tea.NewProgram(liveModel{name: name, stop: stop})

	var converged bool
	var solveErr error
	go func() {
		converged, solveErr = solve(func(rep ilqr.Report) bool {
			p.Send(iterMsg{
				iter:      rep.Iter,
				alpha:     rep.Alpha,
				cost:      rep.Cost,
				defect:    rep.DefectNorm,
				violation: rep.ConstraintViolation,
				merit:     rep.Merit,
				accepted:  rep.Accepted,
			})
			return !stop.Load()
		})
		p.Send(doneMsg{converged: converged, err: solveErr})
	}()

	if _, err := p.Run(); err != nil {
		return false, err
	}
	return converged, solveErr
}
