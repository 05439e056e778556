// Package mcp exposes the search service as Model Context Protocol tools.
package mcp

import (
	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers the search tools with the server.
func RegisterTools(server *mcpserver.MCPServer, svc Port, defaultK int, logger *log.Logger) *Handlers {
	h := NewHandlers(svc, defaultK, logger)

	server.AddTool(mcp.Tool{
		Name:        "add_documents",
		Description: "Embed and store one or more documents in the semantic search collection.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"documents": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Documents to add",
				},
				"text": map[string]any{
					"type":        "string",
					"description": "A single document to add (alternative to documents)",
				},
			},
		},
	}, h.AddDocuments)

	server.AddTool(mcp.Tool{
		Name:        "search",
		Description: "Return the stored documents most similar in meaning to the query, best match first, with cosine similarity scores.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Natural-language search query",
				},
				"k": map[string]any{
					"type":        "number",
					"description": "Maximum number of results",
					"default":     h.defaultK,
				},
			},
			Required: []string{"query"},
		},
	}, h.Search)

	server.AddTool(mcp.Tool{
		Name:        "count_documents",
		Description: "Report how many documents the collection holds.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, h.CountDocuments)

	return h
}
