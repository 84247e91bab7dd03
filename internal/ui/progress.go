package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"retaincheck/internal/driver"
	"retaincheck/internal/engine"
)

// maxVisible bounds the unit list; older finished units scroll away.
const maxVisible = 10

// EventKind tags which payload of Event is set.
type EventKind uint8

const (
	EventPhase EventKind = iota
	EventUnit
)

// Event is one message on the progress channel.
type Event struct {
	Kind  EventKind
	Phase driver.PhaseEvent
	Unit  engine.ProgressEvent
}

// Observers returns driver and engine observers that forward into events.
// The caller closes events once Check returns.
func Observers(events chan<- Event) (driver.PhaseObserver, engine.ProgressObserver) {
	phases := func(ev driver.PhaseEvent) { events <- Event{Kind: EventPhase, Phase: ev} }
	units := func(ev engine.ProgressEvent) { events <- Event{Kind: EventUnit, Unit: ev} }
	return phases, units
}

type progressModel struct {
	title      string
	events     <-chan Event
	spinner    spinner.Model
	prog       progress.Model
	items      []unitItem
	index      map[string]int
	total      int
	finished   int
	findings   int
	cancelled  int
	stageLabel string
	width      int
	done       bool
}

type unitItem struct {
	name     string
	status   string
	findings int
}

type eventMsg Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders analysis progress.
func NewProgressModel(title string, events <-chan Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		index:   make(map[string]int),
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := m.title
	if m.stageLabel != "" {
		header = fmt.Sprintf("%s (%s)", header, m.stageLabel)
	}
	if m.done {
		header = fmt.Sprintf("done: %s", header)
	} else {
		header = fmt.Sprintf("%s %s", m.spinner.View(), header)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	statusWidth := 12
	nameWidth := max(m.width-statusWidth-12, 20)

	start := max(len(m.items)-maxVisible, 0)
	for _, item := range m.items[start:] {
		status := styleStatus(item.status).Render(fmt.Sprintf("%12s", item.status))
		line := fmt.Sprintf("  %s %s", status, truncate(item.name, nameWidth))
		if item.findings > 0 {
			line += fmt.Sprintf(" (%d)", item.findings)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\n  %d/%d types, %d findings", m.finished, m.total, m.findings)
	if m.cancelled > 0 {
		fmt.Fprintf(&b, ", %d cancelled", m.cancelled)
	}
	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")

	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev Event) tea.Cmd {
	if ev.Kind == EventPhase {
		m.stageLabel = phaseLabel(ev.Phase)
		return nil
	}

	u := ev.Unit
	m.total = max(m.total, u.Total)
	idx, ok := m.index[u.Unit]
	if !ok {
		idx = len(m.items)
		m.items = append(m.items, unitItem{name: u.Unit})
		m.index[u.Unit] = idx
	}
	item := &m.items[idx]
	item.status = u.Status.String()
	switch u.Status {
	case engine.UnitStart:
		item.status = "analyzing"
	case engine.UnitDone:
		item.findings = u.Findings
		m.findings += u.Findings
		m.finished++
	case engine.UnitCancelled:
		m.cancelled++
		m.finished++
	}

	if m.total == 0 {
		return nil
	}
	return m.prog.SetPercent(float64(m.finished) / float64(m.total))
}

func phaseLabel(ev driver.PhaseEvent) string {
	if ev.Status == driver.PhaseEnd {
		return ev.Name + " done"
	}
	switch ev.Name {
	case driver.PhaseLoad:
		return "loading"
	case driver.PhaseCache:
		return "checking cache"
	case driver.PhaseAnalyze:
		return "analyzing"
	case driver.PhaseStore:
		return "storing"
	}
	return ev.Name
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "cancelled":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "analyzing":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
