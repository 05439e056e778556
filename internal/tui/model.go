package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"semsearch/internal/domain"
	"semsearch/internal/service"
)

const historySize = 5

// SearchPort is the TUI-facing subset of the search service.
type SearchPort interface {
	Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
	AddDocuments(ctx context.Context, texts []string) (service.AddReport, error)
	Count(ctx context.Context) (int, error)
}

type mode int

const (
	modeSearch mode = iota
	modeAdd
)

type searchDoneMsg struct {
	query   string
	results []domain.SearchResult
	err     error
}

type addDoneMsg struct {
	report service.AddReport
	err    error
}

type countMsg struct {
	n   int
	err error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx     context.Context
	service SearchPort
	topK    int

	mode     mode
	input    textinput.Model
	editor   textarea.Model
	viewport viewport.Model
	bar      progress.Model

	results   []domain.SearchResult
	cursor    int
	lastQuery string
	history   []string
	count     int
	summary   string
	status    string
	busy      bool
	ready     bool
	width     int
	height    int
}

// New creates a new TUI model instance.
func New(ctx context.Context, svc SearchPort, summary string, topK int) Model {
	if topK <= 0 {
		topK = 5
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type your search query and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	ta := textarea.New()
	ta.Placeholder = "Enter your custom document here (ctrl+s to add)"
	ta.ShowLineNumbers = false
	ta.SetHeight(4)

	return Model{
		ctx:      ctx,
		service:  svc,
		topK:     topK,
		input:    ti,
		editor:   ta,
		viewport: viewport.New(0, 0),
		bar:      progress.New(progress.WithSolidFill(barColor), progress.WithoutPercentage(), progress.WithWidth(30)),
		summary:  summary,
		count:    -1,
		status:   "Loaded. Type to search, Tab to add a document.",
	}
}

// Init initializes the model (text input cursor blink, document count).
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.countCmd())
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.resize(msg.Width, msg.Height)
		m.viewport.SetContent(m.renderResults())
		return m, nil

	case searchDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.results = msg.results
			m.cursor = 0
			m.lastQuery = msg.query
			m.status = fmt.Sprintf("%d matches for %q", len(msg.results), msg.query)
		}
		m.viewport.SetContent(m.renderResults())
		m.viewport.GotoTop()
		return m, nil

	case addDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		switch {
		case len(msg.report.IDs) > 0:
			m.status = "Document added successfully!"
			m.editor.Reset()
		case msg.report.Duplicates > 0:
			m.status = "Document already exists; skipped."
		}
		return m, m.countCmd()

	case countMsg:
		if msg.err == nil {
			m.count = msg.n
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyTab {
			m.toggleMode()
			return m, nil
		}
		if m.mode == modeAdd {
			return m.updateAdd(msg)
		}
		return m.updateSearch(msg)
	}

	var cmd tea.Cmd
	if m.mode == modeAdd {
		m.editor, cmd = m.editor.Update(msg)
	} else {
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		q := strings.TrimSpace(m.input.Value())
		if q == "" {
			m.status = "Type a query first."
			return m, nil
		}
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.pushHistory(q)
		m.status = "Searching…"
		return m, m.searchCmd(q)
	case "down":
		if len(m.results) > 0 {
			m.cursor = (m.cursor + 1) % len(m.results)
			m.viewport.SetContent(m.renderResults())
			return m, nil
		}
	case "up":
		if len(m.results) > 0 {
			m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
			m.viewport.SetContent(m.renderResults())
			return m, nil
		}
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateAdd(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.toggleMode()
		return m, nil
	case "ctrl+s":
		doc := m.editor.Value()
		if strings.TrimSpace(doc) == "" {
			m.status = "Document is empty."
			return m, nil
		}
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.status = "Adding document…"
		return m, m.addCmd(doc)
	}
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

// toggleMode switches between the query input and the editor; the editor is
// taller, so the results viewport is resized to match.
func (m *Model) toggleMode() {
	if m.mode == modeSearch {
		m.mode = modeAdd
		m.input.Blur()
		m.editor.Focus()
		m.status = "Add mode: ctrl+s adds the document, Tab or Esc returns to search."
	} else {
		m.mode = modeSearch
		m.editor.Blur()
		m.input.Focus()
		m.status = "Search mode."
	}
	if m.ready {
		m.resize(m.width, m.height)
	}
}

func (m *Model) pushHistory(q string) {
	m.history = append(m.history, q)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
}

// History returns the most recent queries, newest first.
func (m Model) History() []string {
	out := make([]string, len(m.history))
	for i, q := range m.history {
		out[len(m.history)-1-i] = q
	}
	return out
}

func (m Model) searchCmd(q string) tea.Cmd {
	ctx, svc, k := m.ctx, m.service, m.topK
	return func() tea.Msg {
		res, err := svc.Search(ctx, q, k)
		return searchDoneMsg{query: q, results: res, err: err}
	}
}

func (m Model) addCmd(doc string) tea.Cmd {
	ctx, svc := m.ctx, m.service
	return func() tea.Msg {
		report, err := svc.AddDocuments(ctx, []string{doc})
		return addDoneMsg{report: report, err: err}
	}
}

func (m Model) countCmd() tea.Cmd {
	ctx, svc := m.ctx, m.service
	return func() tea.Msg {
		n, err := svc.Count(ctx)
		return countMsg{n: n, err: err}
	}
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	_, rh := resultBoxStyle.GetFrameSize()
	_, qh := queryBoxStyle.GetFrameSize()
	header := 3 // title, summary, tabs
	footer := 2 + historySize
	inputLines := 1
	if m.mode == modeAdd {
		inputLines = m.editor.Height()
	}
	vh := height - header - footer - inputLines - qh
	m.viewport.Width = max(20, width-4)
	m.viewport.Height = max(3, vh-rh)
	m.editor.SetWidth(max(20, width-6))
	m.bar.Width = max(10, min(40, width/3))
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	var b strings.Builder
	title := "🔍 Semantic Search"
	if m.count >= 0 {
		title += fmt.Sprintf("  (%d documents)", m.count)
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(m.summary))
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	b.WriteString(resultBoxStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	if m.mode == modeAdd {
		b.WriteString(queryBoxStyle.Render(m.editor.View()))
	} else {
		b.WriteString(queryBoxStyle.Render(m.input.View()))
	}
	b.WriteString("\n")
	b.WriteString(m.renderHistory())
	b.WriteString(statusStyle.Render(m.status))
	return b.String()
}

func (m Model) renderTabs() string {
	search, add := inactiveTab, inactiveTab
	if m.mode == modeSearch {
		search = activeTab
	} else {
		add = activeTab
	}
	return search.Render("Search") + " " + add.Render("➕ Add Document") + mutedStyle.Render("  tab to switch")
}

func (m Model) renderResults() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	var b strings.Builder
	b.WriteString(sectionStyle.Render("Top Matches"))
	b.WriteString("\n")
	for i, r := range m.results {
		marker := "• "
		text := r.Text
		if i == m.cursor {
			marker = "▸ "
			text = highlightBestSentence(r.Text, m.lastQuery)
		}
		b.WriteString(marker + text + "\n")
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  Similarity: %.4f", r.Score)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Similarity Scores"))
	b.WriteString("\n")
	b.WriteString(m.renderChart())
	return b.String()
}

// renderChart draws one horizontal bar per result on a fixed 0..1 axis.
// Negative scores render as empty bars.
func (m Model) renderChart() string {
	labelWidth := 28
	var b strings.Builder
	for _, r := range m.results {
		label := truncate(r.Text, labelWidth)
		b.WriteString(fmt.Sprintf("%-*s ", labelWidth, label))
		b.WriteString(m.bar.ViewAs(clamp01(r.Score)))
		b.WriteString(fmt.Sprintf(" %.3f\n", r.Score))
	}
	axis := fmt.Sprintf("%*s0%s1", labelWidth+1, "", strings.Repeat(" ", max(0, m.bar.Width-2)))
	b.WriteString(mutedStyle.Render(axis))
	return b.String()
}

func (m Model) renderHistory() string {
	h := m.History()
	if len(h) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(mutedStyle.Render("Query history:"))
	b.WriteString("\n")
	for _, q := range h {
		b.WriteString(mutedStyle.Render("  • " + q))
		b.WriteString("\n")
	}
	return b.String()
}

func clamp01(x float64) float64 {
	return max(0, min(1, x))
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
