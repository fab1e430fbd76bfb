package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/franksops/siptransfer/report"
)

// UIState represents the aggregated state for the TUI
type UIState struct {
	Jobs          []JobView
	ActiveWorkers int
	MaxWorkers    int
	Done          bool
}

// JobView is the displayed state of one transfer job
type JobView struct {
	Token   string
	Target  string
	Status  report.Status
	Verbose string
	Percent int
	// Success is nil while the job runs
	Success *bool
}

// StateFromRecords builds the UI state from report snapshots.
func StateFromRecords(records []*report.Record, workers, maxWorkers int) *UIState {
	state := &UIState{ActiveWorkers: workers, MaxWorkers: maxWorkers}
	for _, rec := range records {
		state.Jobs = append(state.Jobs, JobView{
			Token:   rec.Token,
			Target:  rec.Target,
			Status:  rec.Progress.Status,
			Verbose: rec.Progress.Verbose,
			Percent: rec.Progress.Numeric,
			Success: rec.Data.Success,
		})
	}
	return state
}

// Counts returns how many jobs have finished and how many of those failed.
func (s *UIState) Counts() (finished, failed int) {
	for _, j := range s.Jobs {
		if j.Success == nil {
			continue
		}
		finished++
		if !*j.Success {
			failed++
		}
	}
	return finished, failed
}

// Percent is the mean progress over all jobs, 0.0 to 1.0.
func (s *UIState) Percent() float64 {
	if len(s.Jobs) == 0 {
		return 0
	}
	total := 0
	for _, j := range s.Jobs {
		total += j.Percent
	}
	return float64(total) / float64(100*len(s.Jobs))
}

// TUIModel implements the tea.Model interface
type TUIModel struct {
	state    *UIState
	scale    func(delta int)
	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	width  int
	height int

	// Styles
	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	streamStyle  lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

// TUIUpdateMsg is sent periodically to update the UI state
type TUIUpdateMsg struct {
	State *UIState
}

// WorkerCountMsg is sent when modifying the worker count
type WorkerCountMsg int

// NewTUIModel creates the model. scale is called with +1 or -1 when the user
// adjusts the worker count; nil disables the keys.
func NewTUIModel(initialState *UIState, scale func(delta int)) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	prog := progress.New(progress.WithDefaultGradient())

	return TUIModel{
		state:        initialState,
		scale:        scale,
		spinner:      s,
		progress:     prog,
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		streamStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

func (m TUIModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "+", "=":
			if m.scale != nil {
				return m, func() tea.Msg { return WorkerCountMsg(1) }
			}
		case "-":
			if m.scale != nil {
				return m, func() tea.Msg { return WorkerCountMsg(-1) }
			}
		}

	case WorkerCountMsg:
		next := m.state.ActiveWorkers + int(msg)
		if m.scale != nil && next >= 1 && (m.state.MaxWorkers == 0 || next <= m.state.MaxWorkers) {
			m.scale(int(msg))
			m.state.ActiveWorkers = next
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(msg.Width-14, 10)

		headerHeight := 5
		footerHeight := 2
		m.viewport = viewport.New(msg.Width, max(msg.Height-headerHeight-footerHeight, 1))

	case TUIUpdateMsg:
		m.state = msg.State

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sb strings.Builder

	// Header
	header := fmt.Sprintf("%s siptransfer %s", m.spinner.View(), m.titleStyle.Render("SIP Transfer"))
	sb.WriteString(header + "\n")

	finished, failed := m.state.Counts()
	opsInfo := fmt.Sprintf("Jobs: %d/%d finished | Failed: %d | Workers: %d/%d",
		finished, len(m.state.Jobs), failed, m.state.ActiveWorkers, m.state.MaxWorkers)

	sb.WriteString(m.infoStyle.Render(opsInfo) + "\n")
	sb.WriteString(m.progress.ViewAs(m.state.Percent()) + "\n\n")

	sb.WriteString("Jobs:\n")
	var jobContent strings.Builder

	if len(m.state.Jobs) == 0 {
		jobContent.WriteString(m.infoStyle.Render("No jobs submitted..."))
	} else {
		for _, j := range m.state.Jobs {
			bar := m.progress.ViewAs(float64(j.Percent) / 100)
			// Format: [===       ] 30% | running | sips/sip-1 | syncing files, 30% @ 1.00MB/s
			jobContent.WriteString(fmt.Sprintf("%s | %-9s | %s | %s\n",
				bar, m.statusStyle(j).Render(statusLabel(j)), truncatePath(j.Target, 40), j.Verbose))
		}
	}

	m.viewport.SetContent(jobContent.String())
	sb.WriteString(m.viewport.View())

	// Footer
	help := m.helpStyle.Render("q/ctrl+c: quit • +/-: adjust workers")
	if m.state.Done {
		if failed > 0 {
			help = m.errorStyle.Render(fmt.Sprintf("%d transfer(s) failed.", failed)) + " Press 'q' to exit."
		} else {
			help = m.successStyle.Render("All transfers complete!") + " Press 'q' to exit."
		}
	}
	sb.WriteString("\n" + help)

	return sb.String()
}

func (m TUIModel) statusStyle(j JobView) lipgloss.Style {
	switch {
	case j.Success == nil:
		return m.streamStyle
	case *j.Success:
		return m.successStyle
	default:
		return m.errorStyle
	}
}

func statusLabel(j JobView) string {
	switch {
	case j.Success == nil:
		return string(j.Status)
	case *j.Success:
		return "success"
	default:
		return "failed"
	}
}

func truncatePath(p string, n int) string {
	if len(p) <= n {
		return p
	}
	return "..." + p[len(p)-(n-3):]
}
