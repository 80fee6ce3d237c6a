package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/sitesmith/internal/livereload"
	"github.com/dshills/sitesmith/internal/task"
)

const defaultMaxLog = 100

// DashboardConfig configures the dev dashboard.
type DashboardConfig struct {
	// URL is the dev server address shown in the header.
	URL string

	// Tasks lists the task rows in display order.
	Tasks []string

	// Initial seeds rows from the build that ran before the dashboard.
	Initial task.Report

	// Reloads delivers published live-reload events.
	Reloads <-chan livereload.Event

	// OnQuit is called once when the user quits.
	OnQuit func()

	// MaxLog bounds the activity log (default 100).
	MaxLog int
}

type row struct {
	name     string
	status   RowStatus
	inputs   int
	outputs  int
	duration time.Duration
	runs     int
}

type logLine struct {
	time  time.Time
	style int
	text  string
}

const (
	lineInfo = iota
	lineWarn
	lineError
	lineReload
)

// Dashboard is the bubbletea model behind `dev --tui`.
type Dashboard struct {
	config   DashboardConfig
	rows     []row
	index    map[string]int
	log      []logLine
	activity viewport.Model
	errors   int
	width    int
	height   int
	quit     bool
}

// NewDashboard creates a dashboard with one pending row per task.
func NewDashboard(config DashboardConfig) Dashboard {
	if config.MaxLog <= 0 {
		config.MaxLog = defaultMaxLog
	}
	m := Dashboard{
		config:   config,
		index:    make(map[string]int, len(config.Tasks)),
		activity: viewport.New(80, 10),
	}
	for _, name := range config.Tasks {
		m.index[name] = len(m.rows)
		m.rows = append(m.rows, row{name: name})
	}
	for _, res := range config.Initial.Results {
		m.finish(res)
	}
	return m
}

// Init implements tea.Model.
func (m Dashboard) Init() tea.Cmd {
	return WaitForReloadCmd(m.config.Reloads)
}

// Update implements tea.Model.
func (m Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.quit {
				m.quit = true
				if m.config.OnQuit != nil {
					m.config.OnQuit()
				}
			}
			return m, tea.Quit
		case "c":
			m.log = nil
			m.errors = 0
			m.sync()
		default:
			var cmd tea.Cmd
			m.activity, cmd = m.activity.Update(msg)
			return m, cmd
		}

	case TaskStartedMsg:
		r := m.row(msg.Task)
		r.status = RowRunning
		r.duration = 0

	case TaskFinishedMsg:
		m.finish(msg.Result)
		for _, w := range msg.Result.Warnings {
			m.append(lineWarn, fmt.Sprintf("%s: %s", msg.Result.Task, w))
		}

	case WatchRunMsg:
		verdict := "ok"
		if !msg.Report.OK() {
			verdict = "failed"
		}
		m.append(lineInfo, fmt.Sprintf("%s: %s after %s", msg.Binding, verdict, describePaths(msg.Paths)))

	case WatchErrorMsg:
		m.errors++
		prefix := "watcher"
		if msg.Binding != "" {
			prefix = msg.Binding
		}
		m.append(lineError, fmt.Sprintf("%s: %v", prefix, msg.Err))

	case ReloadMsg:
		m.append(lineReload, fmt.Sprintf("%s %s", msg.Event.Kind, describePaths(msg.Event.Paths)))
		return m, WaitForReloadCmd(m.config.Reloads)
	}
	return m, nil
}

// row returns the named row, adding one for tasks not known up front.
func (m *Dashboard) row(name string) *row {
	i, ok := m.index[name]
	if !ok {
		i = len(m.rows)
		m.index[name] = i
		m.rows = append(m.rows, row{name: name})
		if m.height > 0 {
			m.resize()
		}
	}
	return &m.rows[i]
}

func (m *Dashboard) finish(res task.Result) {
	r := m.row(res.Task)
	r.status = statusOf(res)
	r.inputs = len(res.Inputs)
	r.outputs = len(res.Outputs)
	r.duration = res.Duration
	r.runs++
	if res.Err != nil {
		m.append(lineError, res.Err.Error())
	}
}

func (m *Dashboard) append(style int, text string) {
	m.log = append(m.log, logLine{time: time.Now(), style: style, text: text})
	if over := len(m.log) - m.config.MaxLog; over > 0 {
		m.log = m.log[over:]
	}
	m.sync()
}

// resize gives the activity log whatever the header, task panel and help
// line leave free.
func (m *Dashboard) resize() {
	w, h := m.width, m.height-len(m.rows)-5
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	m.activity.Width = w
	m.activity.Height = h
	m.sync()
}

// sync rebuilds the activity log content and scrolls to the newest line.
func (m *Dashboard) sync() {
	lines := make([]string, 0, len(m.log))
	for _, l := range m.log {
		lines = append(lines, DimStyle.Render(l.time.Format("15:04:05"))+" "+styleForLine(l.style).Render(l.text))
	}
	m.activity.SetContent(strings.Join(lines, "\n"))
	m.activity.GotoBottom()
}

func describePaths(paths []string) string {
	switch len(paths) {
	case 0:
		return "no paths"
	case 1:
		return paths[0]
	default:
		return fmt.Sprintf("%s and %d more", paths[0], len(paths)-1)
	}
}

// View implements tea.Model.
func (m Dashboard) View() string {
	if m.quit {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("sitesmith dev"))
	if m.config.URL != "" {
		b.WriteString("  ")
		b.WriteString(URLStyle.Render(m.config.URL))
	}
	b.WriteByte('\n')

	var rows []string
	for _, r := range m.rows {
		line := formatRow(r.status, r.name, r.inputs, r.outputs, r.duration)
		if r.runs > 1 {
			line += DimStyle.Render(fmt.Sprintf(" ×%d", r.runs))
		}
		rows = append(rows, line)
	}
	panelWidth := m.width - 2
	if panelWidth < 20 {
		panelWidth = 20
	}
	b.WriteString(BorderStyle.Width(panelWidth).Render(strings.Join(rows, "\n")))
	b.WriteByte('\n')

	if len(m.log) == 0 {
		b.WriteString(DimStyle.Render("watching for changes"))
	} else {
		b.WriteString(m.activity.View())
	}
	b.WriteByte('\n')

	help := "q quit · c clear · ↑/↓ scroll"
	if m.errors > 0 {
		help = fmt.Sprintf("%d errors · %s", m.errors, help)
	}
	b.WriteString(HelpStyle.Render(help))
	return b.String()
}

func styleForLine(style int) lipgloss.Style {
	switch style {
	case lineWarn:
		return WarnStyle
	case lineError:
		return FailedStyle
	case lineReload:
		return ReloadStyle
	default:
		return PendingStyle
	}
}
