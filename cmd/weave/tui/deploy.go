package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/weave/pkg/weave/logging"
	"github.com/jamesainslie/weave/pkg/weave/upload"
)

// maxVisibleRows bounds the item list; finished rows scroll off first.
const maxVisibleRows = 12

// logLines is the number of recent log records shown under the list.
const logLines = 4

// Item is one record the deploy will upload.
type Item struct {
	Label string
	Size  int64
}

// Options configures the progress view.
type Options struct {
	// Title is shown in the header, usually "weave <version>".
	Title string
	// Source is the deployed path.
	Source string
	Items  []Item

	// Deploy performs the upload, reporting progress through onEvent. It
	// must return once ctx is canceled.
	Deploy func(ctx context.Context, onEvent func(upload.Event)) error
}

// EventMsg carries one upload event into the model.
type EventMsg upload.Event

// DoneMsg is sent when the deploy returns.
type DoneMsg struct {
	Err error
}

// tickMsg refreshes elapsed time and the log panel.
type tickMsg struct{}

type row struct {
	label       string
	size        int64
	id          string
	state       upload.State
	chunksDone  int
	chunksTotal int
	bytes       int64
	err         error
}

// Model is the Bubble Tea model of a running deploy.
type Model struct {
	title  string
	source string
	rows   []row
	index  map[string]int

	spinner   spinner.Model
	startTime time.Time
	width     int
	height    int

	cancel   context.CancelFunc
	canceled bool
	done     bool
	err      error

	// recent returns the latest log records. Nil hides the panel.
	recent func(n int) []logging.Entry
}

// NewModel creates the progress model. cancel is called when the user
// interrupts the deploy.
func NewModel(opts Options, cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = spinnerStyle

	m := Model{
		title:     opts.Title,
		source:    opts.Source,
		index:     make(map[string]int, len(opts.Items)),
		spinner:   s,
		startTime: time.Now(),
		width:     80,
		height:    24,
		cancel:    cancel,
	}
	for i, it := range opts.Items {
		m.rows = append(m.rows, row{label: it.Label, size: it.Size})
		m.index[it.Label] = i
	}
	if buf := logging.Recent(); buf != nil {
		m.recent = buf.Last
	}
	return m
}

// Init starts the spinner and refresh ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.done {
				return m, tea.Quit
			}
			if !m.canceled && m.cancel != nil {
				m.canceled = true
				m.cancel()
			}
		}
		return m, nil

	case EventMsg:
		m.apply(upload.Event(msg))
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		return m, tea.Quit

	case tickMsg:
		if m.done {
			return m, nil
		}
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// apply records an upload event against its row. Unknown labels are
// appended so no progress is lost.
func (m *Model) apply(e upload.Event) {
	i, ok := m.index[e.Label]
	if !ok {
		i = len(m.rows)
		m.rows = append(m.rows, row{label: e.Label})
		m.index[e.Label] = i
	}
	r := &m.rows[i]
	r.id = e.ID
	r.state = e.State
	r.err = e.Err
	if e.ChunksTotal > 0 {
		r.chunksDone = e.ChunksDone
		r.chunksTotal = e.ChunksTotal
		r.bytes = e.Bytes
	}
	if e.State == upload.StateUploaded && r.size > 0 {
		r.bytes = r.size
	}
}

// counts returns how many rows are uploaded and failed.
func (m Model) counts() (uploaded, failed int) {
	for _, r := range m.rows {
		switch r.state {
		case upload.StateUploaded:
			uploaded++
		case upload.StateFailed:
			failed++
		}
	}
	return uploaded, failed
}

// fraction is the share of rows that finished, either way.
func (m Model) fraction() float64 {
	if len(m.rows) == 0 {
		return 0
	}
	uploaded, failed := m.counts()
	return float64(uploaded+failed) / float64(len(m.rows))
}

func (m Model) bytesSent() int64 {
	var total int64
	for _, r := range m.rows {
		total += r.bytes
	}
	return total
}

// View renders the model.
func (m Model) View() string {
	var b strings.Builder

	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	b.WriteString("\n")
	b.WriteString(m.renderHeader(contentWidth))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	b.WriteString(m.renderStatus(contentWidth))
	b.WriteString("\n\n")
	b.WriteString(m.renderProgressBar(contentWidth))
	b.WriteString("\n\n")
	b.WriteString(m.renderStats(contentWidth))
	b.WriteString("\n\n")
	b.WriteString(m.renderRows(contentWidth))

	if logs := m.renderLogs(contentWidth); logs != "" {
		b.WriteString("\n")
		b.WriteString(renderDivider(contentWidth))
		b.WriteString("\n")
		b.WriteString(logs)
	}

	return outerBoxStyle.Width(m.width - 2).Render(b.String())
}

func (m Model) renderHeader(width int) string {
	title := titleStyle.Render("  " + m.title)
	hint := mutedTextStyle.Render("[Ctrl+C to stop]")

	spacing := width - lipgloss.Width(title) - lipgloss.Width(hint)
	if spacing < 1 {
		spacing = 1
	}
	return title + strings.Repeat(" ", spacing) + hint
}

func (m Model) renderStatus(width int) string {
	switch {
	case m.done && m.err != nil:
		return errorTextStyle.Render(fmt.Sprintf("  Error: %v", m.err))
	case m.done:
		if _, failed := m.counts(); failed > 0 {
			return warningTextStyle.Render(fmt.Sprintf("  Deploy finished with %d failed", failed))
		}
		return successTextStyle.Render("  Deploy complete!")
	case m.canceled:
		return warningTextStyle.Render("  Stopping...")
	default:
		return fmt.Sprintf("  %s Uploading: %s", m.spinner.View(), truncatePath(m.source, width-20))
	}
}

// renderProgressBar draws completed records over total.
func (m Model) renderProgressBar(width int) string {
	barWidth := width - 10
	if barWidth < 10 {
		barWidth = 10
	}
	frac := m.fraction()
	filled := int(frac * float64(barWidth))

	var bar strings.Builder
	bar.WriteString("  ")
	bar.WriteString(progressFillStyle.Render(repeatChar('█', filled)))
	bar.WriteString(progressEmptyStyle.Render(repeatChar('░', barWidth-filled)))
	bar.WriteString(fmt.Sprintf(" %3.0f%%", frac*100))
	return bar.String()
}

func (m Model) renderStats(totalWidth int) string {
	boxWidth := (totalWidth - 10) / 4
	if boxWidth < 10 {
		boxWidth = 10
	}

	uploaded, failed := m.counts()
	boxes := []string{
		m.renderStatBox("Records", fmt.Sprintf("%d/%d", uploaded, len(m.rows)), boxWidth),
		m.renderStatBox("Failed", humanize.Comma(int64(failed)), boxWidth),
		m.renderStatBox("Sent", humanize.IBytes(uint64(m.bytesSent())), boxWidth),
		m.renderStatBox("Time", formatDuration(time.Since(m.startTime)), boxWidth),
	}
	parts := []string{"  "}
	for i, box := range boxes {
		if i > 0 {
			parts = append(parts, " ")
		}
		parts = append(parts, box)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) renderStatBox(label, value string, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		center(statsLabelStyle.Render(label), width-4),
		center(statsValueStyle.Render(value), width-4))
	return statsBoxStyle.Width(width).Render(content)
}

// visibleRows keeps active and failed rows ahead of finished ones.
func (m Model) visibleRows() []row {
	if len(m.rows) <= maxVisibleRows {
		return m.rows
	}
	out := make([]row, 0, maxVisibleRows)
	for _, r := range m.rows {
		if r.state != upload.StateUploaded && len(out) < maxVisibleRows {
			out = append(out, r)
		}
	}
	for i := len(m.rows) - 1; i >= 0 && len(out) < maxVisibleRows; i-- {
		if m.rows[i].state == upload.StateUploaded {
			out = append(out, m.rows[i])
		}
	}
	return out
}

func (m Model) renderRows(width int) string {
	var b strings.Builder
	pathWidth := width - 30
	if pathWidth < 10 {
		pathWidth = 10
	}
	for _, r := range m.visibleRows() {
		marker := stateStyle(r.state).Render(fmt.Sprintf("%-9s", r.state))
		detail := ""
		if r.chunksTotal > 0 && r.state == upload.StateUploading {
			detail = mutedTextStyle.Render(fmt.Sprintf(" %d/%d chunks", r.chunksDone, r.chunksTotal))
		}
		if r.err != nil {
			detail = errorTextStyle.Render(" " + r.err.Error())
		}
		fmt.Fprintf(&b, "  %s %s %s%s\n",
			marker,
			sizeStyle.Render(humanize.IBytes(uint64(r.size))),
			truncatePath(r.label, pathWidth),
			detail)
	}
	if hidden := len(m.rows) - maxVisibleRows; hidden > 0 {
		b.WriteString(mutedTextStyle.Render(fmt.Sprintf("  ... and %d more", hidden)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderLogs(width int) string {
	if m.recent == nil {
		return ""
	}
	entries := m.recent(logLines)
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for _, e := range entries {
		line := fmt.Sprintf("%s %s", e.Component, e.Message)
		fmt.Fprintf(&b, "  %s %s\n",
			levelStyle(e.Level).Render(fmt.Sprintf("%-5s", e.Level)),
			truncatePath(line, width-10))
	}
	return b.String()
}

// formatDuration formats a duration as M:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}

// IsDone returns true once the deploy returned.
func (m Model) IsDone() bool {
	return m.done
}

// Error returns the error the deploy returned.
func (m Model) Error() error {
	return m.err
}
