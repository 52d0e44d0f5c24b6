package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"flowbench/internal/compare"
	"flowbench/internal/monitor"
	"flowbench/internal/tui/components"
	"flowbench/internal/tui/styles"
)

type doneMsg struct {
	rep *compare.Report
	err error
}

type Model struct {
	Service  string
	Total    int
	Snapshot compare.RunEvent
	Progress progress.Model

	RpsLine     components.Sparkline
	LatencyLine components.Sparkline

	LastUpdate    time.Time
	LastCompleted uint64

	Width int

	rep *compare.Report
	err error
}

func NewModel() Model {
	slRps := components.NewSparkline(40, "RPS (Active)", styles.Active)
	slLat := components.NewSparkline(40, "Latency P95 (ms)", styles.Warn)

	return Model{
		Progress:    progress.New(progress.WithDefaultGradient()),
		RpsLine:     slRps,
		LatencyLine: slLat,
		LastUpdate:  time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case compare.RunEvent:
		if msg.Service != m.Service {
			// New service run: reset the scrolling graphs.
			m.Service = msg.Service
			m.Total = msg.Total
			m.RpsLine.Data = m.RpsLine.Data[:0]
			m.LatencyLine.Data = m.LatencyLine.Data[:0]
			m.LastCompleted = 0
		}

		now := time.Now()
		dt := now.Sub(m.LastUpdate).Seconds()
		if dt < 0.01 {
			dt = 0.01
		}

		deltaReqs := msg.Snapshot.Completed - m.LastCompleted
		rps := float64(deltaReqs) / dt

		m.RpsLine.Add(uint64(rps))
		m.LatencyLine.Add(uint64(msg.Snapshot.P95Ms))

		m.Snapshot = msg
		m.LastCompleted = msg.Snapshot.Completed
		m.LastUpdate = now

		pct := 0.0
		if m.Total > 0 {
			pct = float64(msg.Snapshot.Completed) / float64(m.Total)
		}
		if pct > 1.0 {
			pct = 1.0
		}
		return m, m.Progress.SetPercent(pct)

	case doneMsg:
		m.rep = msg.rep
		m.err = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.err = errors.New("interrupted")
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Progress.Width = msg.Width - 4

		half := (msg.Width / 2) - 4
		if half < 10 {
			half = 10
		}
		m.RpsLine.Width = half
		m.LatencyLine.Width = half
		return m, nil

	case progress.FrameMsg:
		prog, cmd := m.Progress.Update(msg)
		m.Progress = prog.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m Model) View() string {
	s := strings.Builder{}

	snap := m.Snapshot.Snapshot

	title := "Waiting for preflight..."
	if m.Service != "" {
		title = fmt.Sprintf("Testing %s", m.Service)
	}
	s.WriteString(styles.Title.Render(title))
	s.WriteString("\n\n")

	errRate := 0.0
	if snap.Completed > 0 {
		errRate = (float64(snap.Fail) / float64(snap.Completed)) * 100
	}

	var errColor lipgloss.Style
	if errRate > 5.0 {
		errColor = styles.Error
	} else if errRate > 1.0 {
		errColor = styles.Warn
	} else {
		errColor = styles.Active
	}

	col1 := fmt.Sprintf("REQ: %d/%d\nINF: %d", snap.Completed, m.Total, snap.Inflight)
	col2 := fmt.Sprintf("ERR: %.2f%%\nFAIL: %d", errRate, snap.Fail)
	col3 := fmt.Sprintf("P50: %.0f ms\nP95: %.0f ms", snap.P50Ms, snap.P95Ms)

	grid := lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(col1),
		styles.Box.Render(errColor.Render(col2)),
		styles.Box.Render(col3),
	)
	s.WriteString(grid)
	s.WriteString("\n\n")

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Box.Render(m.RpsLine.View()),
		styles.Box.Render(m.LatencyLine.View()),
	))
	s.WriteString("\n\n")

	s.WriteString(m.Progress.View())
	s.WriteString("\n\n")
	s.WriteString(styles.Subtle.Render("q to abort"))

	return s.String()
}

// Run drives a comparison under the live dashboard and returns its report.
func Run(cfg compare.Config) (*compare.Report, error) {
	comp := compare.NewComparer(cfg, monitor.NewProcessLister())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(NewModel())

	go func() {
		result := make(chan doneMsg, 1)
		go func() {
			rep, err := comp.Run(ctx)
			result <- doneMsg{rep: rep, err: err}
		}()
		for ev := range comp.Events {
			p.Send(ev)
		}
		p.Send(<-result)
	}()

	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}

	m := finalModel.(Model)
	return m.rep, m.err
}
