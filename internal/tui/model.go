// Package tui renders live run progress and the latest predictions with
// Bubble Tea. The same model runs locally (cmd/predictor watch) and over SSH.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"market-predictor/internal/domain"
	"market-predictor/internal/pipeline"
	"market-predictor/internal/provider"
	"market-predictor/internal/service"
)

// Service is what the dashboard reads and triggers.
type Service interface {
	Run(ctx context.Context, req service.RunRequest) (*pipeline.RunResult, error)
	Running() bool
	Predictions() []domain.Prediction
	Summary() domain.MarketSummary
	Progress() domain.ProgressState
	SubscribeProgress(buffer int) (<-chan domain.ProgressState, func())
	Usage() []provider.QuotaUsage
}

type keyMap struct {
	Run           key.Binding
	TechnicalOnly key.Binding
	Quit          key.Binding
}

var keys = keyMap{
	Run:           key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "run")),
	TechnicalOnly: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "toggle technical only")),
	Quit:          key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type progressMsg domain.ProgressState

type runDoneMsg struct {
	err error
}

type subscriptionClosedMsg struct{}

type Model struct {
	ctx      context.Context
	svc      Service
	username string

	bar     progress.Model
	spinner spinner.Model

	state         domain.ProgressState
	predictions   []domain.Prediction
	summary       domain.MarketSummary
	usage         []provider.QuotaUsage
	technicalOnly bool
	running       bool
	err           error
	width, height int

	updates     <-chan domain.ProgressState
	unsubscribe func()
}

func NewModel(ctx context.Context, svc Service, username string) *Model {
	if ctx == nil {
		ctx = context.Background()
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		ctx:         ctx,
		svc:         svc,
		username:    username,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:     sp,
		state:       svc.Progress(),
		predictions: svc.Predictions(),
		summary:     svc.Summary(),
		usage:       svc.Usage(),
		running:     svc.Running(),
	}
	m.updates, m.unsubscribe = svc.SubscribeProgress(32)
	return m
}

func (m *Model) SetSize(width, height int) {
	m.width, m.height = width, height
	barWidth := width - 20
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth < 10 {
		barWidth = 10
	}
	m.bar.Width = barWidth
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForProgress(), m.spinner.Tick)
}

func (m *Model) waitForProgress() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		state, ok := <-updates
		if !ok {
			return subscriptionClosedMsg{}
		}
		return progressMsg(state)
	}
}

func (m *Model) startRun() tea.Cmd {
	req := service.RunRequest{TechnicalOnly: m.technicalOnly}
	return func() tea.Msg {
		_, err := m.svc.Run(m.ctx, req)
		return runDoneMsg{err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.close()
			return m, tea.Quit
		case key.Matches(msg, keys.Run):
			if m.running || m.svc.Running() {
				return m, nil
			}
			m.running = true
			m.err = nil
			return m, m.startRun()
		case key.Matches(msg, keys.TechnicalOnly):
			m.technicalOnly = !m.technicalOnly
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case progressMsg:
		m.state = domain.ProgressState(msg)
		if !m.state.Stage.Terminal() && m.state.Stage != domain.StageIdle {
			m.running = true
		}
		return m, m.waitForProgress()

	case subscriptionClosedMsg:
		return m, nil

	case runDoneMsg:
		m.running = false
		m.err = msg.err
		m.predictions = m.svc.Predictions()
		m.summary = m.svc.Summary()
		m.usage = m.svc.Usage()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Model) View() string {
	var b strings.Builder

	title := titleStyle.Render("Market Predictor")
	if m.username != "" {
		title += mutedStyle.Render("  " + m.username)
	}
	b.WriteString(title)
	b.WriteString("\n\n")

	b.WriteString(m.progressView())
	b.WriteString("\n\n")

	b.WriteString(panelStyle.Render(RenderTable(m.predictions, m.width)))
	b.WriteString("\n")
	if line := renderSummary(m.summary); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}
	if usage := m.usageView(); usage != "" {
		b.WriteString(mutedStyle.Render(usage))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render("Last run: " + m.err.Error()))
		b.WriteString("\n")
	}

	mode := "full"
	if m.technicalOnly {
		mode = "technical only"
	}
	help := fmt.Sprintf("%s • %s (%s) • %s",
		keys.Run.Help().Key+" "+keys.Run.Help().Desc,
		keys.TechnicalOnly.Help().Key+" "+keys.TechnicalOnly.Help().Desc,
		mode,
		keys.Quit.Help().Key+" "+keys.Quit.Help().Desc,
	)
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(help))
	return b.String()
}

func (m *Model) progressView() string {
	s := m.state
	label := stageLabel(s.Stage)
	if m.running && !s.Stage.Terminal() {
		label = m.spinner.View() + " " + label
	}
	line := lipgloss.JoinHorizontal(lipgloss.Top,
		m.bar.ViewAs(s.Percent/100),
		fmt.Sprintf("  %s", label),
	)
	details := mutedStyle.Render(fmt.Sprintf("ETA %s  elapsed %.0fs", s.ETAString(), s.ElapsedSeconds))
	if s.CurrentItem != "" {
		if s.Stage == domain.StageError {
			details = errorStyle.Render(s.CurrentItem) + "  " + details
		} else {
			details = s.CurrentItem + "  " + details
		}
	}
	return line + "\n" + details
}

func (m *Model) usageView() string {
	parts := make([]string, 0, len(m.usage))
	for _, u := range m.usage {
		parts = append(parts, fmt.Sprintf("%s %d/%d", u.Provider, u.Calls, u.Limit))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Quota: " + strings.Join(parts, "  ")
}

func stageLabel(s domain.Stage) string {
	switch s {
	case domain.StageIdle:
		return "Idle"
	case domain.StageInitializing:
		return "Initializing"
	case domain.StageFetchingData:
		return "Fetching market data"
	case domain.StageProcessingTechnical:
		return "Technical analysis"
	case domain.StageProcessingSentiment:
		return "Sentiment analysis"
	case domain.StageCalculating:
		return "Calculating"
	case domain.StageComplete:
		return "Complete"
	case domain.StageError:
		return "Error"
	default:
		return string(s)
	}
}
