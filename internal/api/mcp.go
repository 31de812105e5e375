package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/noted/internal/search"
	"github.com/kalambet/noted/internal/storage"
)

// MCPSearcher abstracts semantic search for the MCP layer.
type MCPSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]search.Result, error)
}

// MCPNotes is the slice of the note service the MCP tools need.
type MCPNotes interface {
	Create(ctx context.Context, title, content string) (storage.Note, error)
	Delete(ctx context.Context, id string) error
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Notes    MCPNotes
	Searcher MCPSearcher
	Store    *storage.Store
}

// NewMCPServer creates an MCP server exposing the note collection as tools
// and resources for agent clients.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"noted",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("noted is a personal note store with semantic search over note content."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("add_note",
			mcp.WithDescription("Store a note for later semantic retrieval."),
			mcp.WithString("title", mcp.Description("Title for the note; derived from content when omitted")),
			mcp.WithString("content", mcp.Description("The note text"), mcp.Required()),
		),
		mcpAddNote(deps),
	)

	s.AddTool(
		mcp.NewTool("search_notes",
			mcp.WithDescription("Semantically search stored notes and return the best matches."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchNotes(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_note",
			mcp.WithDescription("Delete a note by ID."),
			mcp.WithString("id", mcp.Description("Note ID"), mcp.Required()),
		),
		mcpDeleteNote(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"notes://recent",
			"Recent Notes",
			mcp.WithResourceDescription("The 10 most recently added notes"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAddNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		title := req.GetString("title", "")

		note, err := deps.Notes.Create(ctx, title, content)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save note: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Stored note %s (%q)", note.ID, note.Title)), nil
	}
}

func mcpSearchNotes(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", search.DefaultTopK)
		if limit <= 0 {
			limit = search.DefaultTopK
		}
		if limit > 50 {
			limit = 50
		}

		results, err := deps.Searcher.Search(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDeleteNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		if err := deps.Notes.Delete(ctx, id); err != nil {
			return mcpError(fmt.Sprintf("failed to delete note: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted note %s", id)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		recent, err := deps.Store.ListRecent(ctx, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to list recent notes: %w", err)
		}

		type noteSummary struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			Content   string `json:"content"`
			CreatedAt string `json:"created_at"`
		}

		summaries := make([]noteSummary, len(recent))
		for i, n := range recent {
			content := n.Content
			if utf8.RuneCountInString(content) > 200 {
				runes := []rune(content)
				content = string(runes[:200]) + "..."
			}
			summaries[i] = noteSummary{
				ID:        n.ID,
				Title:     n.Title,
				Content:   content,
				CreatedAt: n.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notes: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
