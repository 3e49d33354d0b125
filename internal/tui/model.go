// Package tui renders a live view of a running sync.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docqa/internal/domain"
	"docqa/internal/report"
	"docqa/internal/service"
)

const recentOutcomes = 6

type phaseMsg struct {
	phase  service.Phase
	detail string
}

type outcomeMsg domain.Outcome

type doneMsg struct {
	report report.Report
	err    error
}

// Model is the Bubble Tea model of the progress view.
type Model struct {
	spinner   spinner.Model
	cancel    context.CancelFunc
	phase     service.Phase
	detail    string
	succeeded int
	failed    int
	recent    []domain.Outcome
	done      bool
	canceled  bool
	report    report.Report
	err       error
}

// New creates a progress model. cancel stops the sync when the user quits.
func New(cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	return Model{spinner: sp, cancel: cancel, phase: "starting"}
}

func (m Model) Init() tea.Cmd { return m.spinner.Tick }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			if !m.done && m.cancel != nil {
				m.cancel()
				m.canceled = true
				m.phase = "canceling"
				return m, nil
			}
			return m, tea.Quit
		}
	case phaseMsg:
		m.phase, m.detail = msg.phase, msg.detail
	case outcomeMsg:
		o := domain.Outcome(msg)
		if o.Failed() {
			m.failed++
		} else {
			m.succeeded++
		}
		m.recent = append(m.recent, o)
		if len(m.recent) > recentOutcomes {
			m.recent = m.recent[len(m.recent)-recentOutcomes:]
		}
	case doneMsg:
		m.done = true
		m.report, m.err = msg.report, msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func (m Model) View() string {
	if m.done {
		if m.err != nil {
			return errStyle.Render("sync failed: "+m.err.Error()) + "\n"
		}
		return m.report.Styled() + "\n"
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("docqa sync") + "\n")
	fmt.Fprintf(&b, "%s %s %s\n", m.spinner.View(), m.phase, mutedStyle.Render(m.detail))
	fmt.Fprintf(&b, "%s  %s\n",
		okStyle.Render(fmt.Sprintf("%d imported", m.succeeded)),
		errStyle.Render(fmt.Sprintf("%d failed", m.failed)))
	for _, o := range m.recent {
		if o.Failed() {
			b.WriteString(errStyle.Render(fmt.Sprintf("  x %s [%s] %s", o.DisplayName, o.Kind, o.Reason)) + "\n")
		} else {
			b.WriteString(okStyle.Render("  ✓ "+o.DisplayName) + "\n")
		}
	}
	b.WriteString(mutedStyle.Render("ctrl+c to cancel"))
	return b.String()
}

// programProgress forwards sync events to a running program.
type programProgress struct {
	p *tea.Program
}

func (pp programProgress) OnPhase(phase service.Phase, detail string) {
	pp.p.Send(phaseMsg{phase: phase, detail: detail})
}

func (pp programProgress) OnOutcome(o domain.Outcome) {
	pp.p.Send(outcomeMsg(o))
}

// SyncFunc runs a sync reporting to progress.
type SyncFunc func(ctx context.Context, progress service.Progress) (report.Report, error)

type result struct {
	report report.Report
	err    error
}

// Run executes sync while showing the progress view and returns its result.
func Run(ctx context.Context, sync SyncFunc, opts ...tea.ProgramOption) (report.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(cancel), opts...)
	results := make(chan result, 1)
	go func() {
		rep, err := sync(ctx, programProgress{p: p})
		results <- result{report: rep, err: err}
		p.Send(doneMsg{report: rep, err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-results
		return report.Report{}, fmt.Errorf("progress view: %w", err)
	}
	res := <-results
	return res.report, res.err
}
