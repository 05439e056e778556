package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semsearch/internal/domain"
	"semsearch/internal/service"
)

type fakePort struct {
	results []domain.SearchResult
	err     error
	added   [][]string
	queries []string
	count   int
}

func (f *fakePort) Search(_ context.Context, q string, k int) ([]domain.SearchResult, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[:min(k, len(f.results))], nil
}

func (f *fakePort) AddDocuments(_ context.Context, texts []string) (service.AddReport, error) {
	f.added = append(f.added, texts)
	f.count += len(texts)
	return service.AddReport{IDs: []string{"id"}}, nil
}

func (f *fakePort) Count(context.Context) (int, error) { return f.count, nil }

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func press(t *testing.T, m Model, key tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(key)
	return next.(Model), cmd
}

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func TestModel_SearchFlow(t *testing.T) {
	port := &fakePort{results: []domain.SearchResult{
		{ID: "1", Text: "Who is German and likes bread?", Score: 0.91},
		{ID: "2", Text: "French people love baguettes.", Score: 0.42},
	}}
	m := sized(t, New(context.Background(), port, "summary", 5))

	m = typeText(t, m, "bread")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.busy)

	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.False(t, m.busy)
	assert.Equal(t, []string{"bread"}, port.queries)
	assert.Len(t, m.results, 2)
	assert.Equal(t, `2 matches for "bread"`, m.status)

	view := m.View()
	assert.Contains(t, view, "Who is German and likes bread?")
	assert.Contains(t, view, "Similarity: 0.9100")
	assert.Contains(t, view, "Similarity Scores")
}

func TestModel_BlankQueryDoesNotSearch(t *testing.T) {
	port := &fakePort{}
	m := sized(t, New(context.Background(), port, "", 5))
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Empty(t, port.queries)
	assert.Equal(t, "Type a query first.", m.status)
}

func TestModel_SearchError(t *testing.T) {
	port := &fakePort{err: errors.New("store offline")}
	m := sized(t, New(context.Background(), port, "", 5))
	m = typeText(t, m, "x")
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, "Error: store offline", m.status)
	assert.Empty(t, m.results)
}

func TestModel_HistoryKeepsLastFiveNewestFirst(t *testing.T) {
	port := &fakePort{}
	m := sized(t, New(context.Background(), port, "", 5))
	for _, q := range []string{"q1", "q2", "q3", "q4", "q5", "q6", "q7"} {
		m.input.SetValue(q)
		var cmd tea.Cmd
		m, cmd = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
		next, _ := m.Update(cmd())
		m = next.(Model)
	}
	assert.Equal(t, []string{"q7", "q6", "q5", "q4", "q3"}, m.History())
	assert.Contains(t, m.View(), "Query history:")
}

func TestModel_CursorWraps(t *testing.T) {
	m := sized(t, New(context.Background(), &fakePort{}, "", 5))
	next, _ := m.Update(searchDoneMsg{query: "q", results: []domain.SearchResult{{Text: "a"}, {Text: "b"}, {Text: "c"}}})
	m = next.(Model)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 2, m.cursor)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 0, m.cursor)
}

func TestModel_AddDocumentFlow(t *testing.T) {
	port := &fakePort{count: 4}
	m := sized(t, New(context.Background(), port, "", 5))

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, modeAdd, m.mode)

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	assert.Nil(t, cmd)
	assert.Equal(t, "Document is empty.", m.status)

	m = typeText(t, m, "Dutch people enjoy cheese.")
	m, cmd = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	require.NotNil(t, cmd)

	next, countCmd := m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, [][]string{{"Dutch people enjoy cheese."}}, port.added)
	assert.Equal(t, "Document added successfully!", m.status)
	assert.Empty(t, m.editor.Value())

	require.NotNil(t, countCmd)
	next, _ = m.Update(countCmd())
	m = next.(Model)
	assert.Equal(t, 5, m.count)
	assert.Contains(t, m.View(), "(5 documents)")

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, modeSearch, m.mode)
}

func TestModel_ToggleResizesViewport(t *testing.T) {
	m := sized(t, New(context.Background(), &fakePort{}, "", 5))
	searchHeight := m.viewport.Height

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, searchHeight-(m.editor.Height()-1), m.viewport.Height)

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, searchHeight, m.viewport.Height)
}

func TestRenderChart_ClampsToUnitAxis(t *testing.T) {
	m := sized(t, New(context.Background(), &fakePort{}, "", 5))
	m.results = []domain.SearchResult{
		{Text: "above", Score: 1},
		{Text: "negative", Score: -0.3},
	}
	chart := m.renderChart()
	lines := strings.Split(chart, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "1.000")
	assert.Contains(t, lines[1], "-0.300")
}

func TestHighlightBestSentence(t *testing.T) {
	out := highlightBestSentence("Berlin is big. Bread is baked daily.", "bread")
	assert.Contains(t, out, "Berlin is big.")
	assert.Contains(t, out, "Bread is baked daily.")
	assert.Equal(t, "one", highlightBestSentence("one", ""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "a b", truncate("a\n  b", 10))
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.5))
	assert.Equal(t, 0.25, clamp01(0.25))
	assert.Equal(t, 1.0, clamp01(1.5))
}
