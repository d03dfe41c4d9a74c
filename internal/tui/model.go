package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"adam-batch/internal/batch"
	"adam-batch/internal/runner"
)

const (
	maxLogLines    = 1000
	maxTableRowPct = 0.4
)

var (
	grayStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle = lipgloss.NewStyle().Bold(true)
	onColor    = lipgloss.Color("10")
	offColor   = lipgloss.Color("9")

	stateStyles = map[batch.CalcState]lipgloss.Style{
		batch.StatePending:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		batch.StateRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		batch.StateCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		batch.StateFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
	stateOrder = []batch.CalcState{batch.StatePending, batch.StateRunning, batch.StateCompleted, batch.StateFailed}
)

func stateStyle(s batch.CalcState) lipgloss.Style {
	if st, ok := stateStyles[s]; ok {
		return st
	}
	return grayStyle
}

type model struct {
	project    string
	snap       runner.Snapshot
	table      table.Model
	vp         viewport.Model
	logs       []string
	admin      bool
	wrap       bool
	autoscroll bool
	showTable  bool
	help       bool
	width      int
	height     int
}

func newModel(project string) model {
	cols := []table.Column{
		{Title: "#", Width: 5},
		{Title: "Batch", Width: 36},
		{Title: "Object", Width: 20},
		{Title: "State", Width: 10},
	}
	return model{
		project:    project,
		table:      table.New(table.WithColumns(cols), table.WithHeight(1)),
		vp:         viewport.New(0, 0),
		autoscroll: true,
		showTable:  true,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.layout()
		m.refreshViewport()
	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
			case "q", "ctrl+c":
				return m, tea.Quit
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
			return m, nil
		case "b":
			m.showTable = !m.showTable
			m.layout()
			return m, nil
		case "h", "?":
			m.help = true
			return m, nil
		}
		if !m.autoscroll {
			switch msg.String() {
			case "j", "down":
				m.vp.LineDown(1)
			case "k", "up":
				m.vp.LineUp(1)
			case "pgdown", "ctrl+n":
				m.vp.LineDown(10)
			case "pgup", "ctrl+p":
				m.vp.LineUp(10)
			default:
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				return m, cmd
			}
		}
		return m, nil
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case snapshotMsg:
		m.snap = msg.Snapshot
		rows := make([]table.Row, 0, len(m.snap.Batches))
		for _, e := range m.snap.Batches {
			state := string(e.CalcState)
			if e.ID == "" {
				state = "-"
			}
			rows = append(rows, table.Row{fmt.Sprintf("%d", e.Index), e.ID, e.ObjectID, state})
		}
		m.table.SetRows(rows)
		m.layout()
	case adminMsg:
		m.admin = msg.active
		m.layout()
	}
	return m, nil
}

// layout sizes the table and gives the remaining height to the log viewport.
func (m *model) layout() {
	tableHeight := 0
	if m.showTable {
		rows := len(m.table.Rows())
		limit := int(float64(m.height) * maxTableRowPct)
		if limit < 1 {
			limit = 1
		}
		if rows > limit {
			rows = limit
		}
		m.table.SetHeight(rows + 1)
		tableHeight = lipgloss.Height(m.table.View()) + 1
	}
	h := m.height - lipgloss.Height(m.renderHeader()) - lipgloss.Height(m.renderBottom()) - tableHeight - 2
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *model) refreshViewport() {
	lines := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		if m.wrap && m.vp.Width > 0 {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m model) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.width)
	sections := []string{m.renderHeader(), divider}
	if m.showTable {
		sections = append(sections, m.table.View(), divider)
	}
	sections = append(sections, m.vp.View(), divider, m.renderBottom())
	return strings.Join(sections, "\n")
}

func (m model) renderHeader() string {
	run := m.snap.RunID
	if run == "" {
		run = "-"
	}
	state := m.snap.State
	if state == "" {
		state = runner.Initialized.String()
	}
	title := titleStyle.Render(fmt.Sprintf("Run %s", run)) +
		grayStyle.Render(fmt.Sprintf("  project=%s  batches=%d  ", m.project, len(m.snap.Batches))) +
		titleStyle.Render(state)

	counts := m.snap.Counts()
	parts := make([]string, 0, len(stateOrder))
	for _, s := range stateOrder {
		parts = append(parts, stateStyle(s).Render(fmt.Sprintf("%s %d", s, counts[string(s)])))
	}
	return title + "\n" + strings.Join(parts, "  ")
}

func indicator(on bool) string {
	c := offColor
	if on {
		c = onColor
	}
	return lipgloss.NewStyle().Foreground(c).Render("●")
}

func (m model) renderBottom() string {
	return fmt.Sprintf("Admin %s | Wrap %s | Scroll %s | Batches %s | Help %s",
		indicator(m.admin), indicator(m.wrap), indicator(m.autoscroll), indicator(m.showTable), indicator(m.help))
}

func (m model) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit and cancel the run",
		" w  toggle wrap for log lines",
		" s  toggle auto-scroll",
		" b  toggle batch table",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}
