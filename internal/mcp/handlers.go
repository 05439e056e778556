package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"

	"semsearch/internal/domain"
	"semsearch/internal/logging"
	"semsearch/internal/service"
)

// Port is the subset of the search service the tools call.
type Port interface {
	Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
	AddDocuments(ctx context.Context, texts []string) (service.AddReport, error)
	Count(ctx context.Context) (int, error)
}

// Handlers holds the tool handler functions.
type Handlers struct {
	svc      Port
	defaultK int
	log      *log.Logger
}

// NewHandlers builds handlers; defaultK applies when a search omits k.
func NewHandlers(svc Port, defaultK int, logger *log.Logger) *Handlers {
	if defaultK <= 0 {
		defaultK = 5
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handlers{svc: svc, defaultK: defaultK, log: logger}
}

type addResponse struct {
	Added      int      `json:"added"`
	IDs        []string `json:"ids"`
	Blank      int      `json:"blank,omitempty"`
	Duplicates int      `json:"duplicates,omitempty"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []domain.SearchResult `json:"results"`
}

// AddDocuments handles the add_documents tool.
func (h *Handlers) AddDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs := stringArray(request, "documents")
	if text := request.GetString("text", ""); text != "" {
		docs = append(docs, text)
	}
	if len(docs) == 0 {
		return mcp.NewToolResultError("documents (array of strings) or text is required"), nil
	}

	report, err := h.svc.AddDocuments(ctx, docs)
	if err != nil {
		h.log.Error("add_documents failed", "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to add documents: %v", err)), nil
	}
	h.log.Info("add_documents", "added", len(report.IDs), "duplicates", report.Duplicates)

	ids := report.IDs
	if ids == nil {
		ids = []string{}
	}
	return jsonResult(addResponse{
		Added:      len(ids),
		IDs:        ids,
		Blank:      report.Blank,
		Duplicates: report.Duplicates,
	})
}

// Search handles the search tool.
func (h *Handlers) Search(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query argument is required and must be a non-empty string"), nil
	}
	k := request.GetInt("k", h.defaultK)
	if k <= 0 {
		return mcp.NewToolResultError("k must be a positive integer"), nil
	}

	results, err := h.svc.Search(ctx, query, k)
	if err != nil {
		h.log.Error("search failed", "query", query, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(searchResponse{Query: query, Results: results})
}

// CountDocuments handles the count_documents tool.
func (h *Handlers) CountDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := h.svc.Count(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("count failed: %v", err)), nil
	}
	return jsonResult(map[string]int{"count": n})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// stringArray reads an array-of-strings argument, skipping non-string items.
func stringArray(request mcp.CallToolRequest, key string) []string {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
