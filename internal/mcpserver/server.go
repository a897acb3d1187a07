// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the note tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notelog/internal/apperr"
	"github.com/starford/notelog/internal/index"
	"github.com/starford/notelog/internal/noteservice"
)

// Server wraps the MCP server with the note tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Notelog",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("add_note",
		mcp.WithDescription("Create a new note. The first line becomes the title. "+
			"Tags are lowercase words with digits and dashes, optionally prefixed with '+'. "+
			"Read the format first via the get_note_contract tool or the notelog://note-format resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content of the note; the first non-empty line is the title")),
		mcp.WithArray("tags", mcp.Description("Tags to attach (at most 10)"),
			mcp.Items(map[string]any{"type": "string"})),
	), s.addNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through notes. Bare words match content and titles, "+
			"'+tag' terms filter by tag, AND/OR/NOT and parentheses combine terms, "+
			"quoted strings match exact phrases. A limit of 0 returns only the match count."),
		mcp.WithString("query", mcp.Description("Search query; empty matches all notes")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10, capped at 25, 0 = count only)")),
		mcp.WithString("before", mcp.Description("Only notes created at or before this RFC 3339 timestamp")),
		mcp.WithString("after", mcp.Description("Only notes created at or after this RFC 3339 timestamp")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("fetch_note",
		mcp.WithDescription("Fetch a single note by its id or a unique id prefix (at least 2 characters)."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id or unique prefix")),
	), s.fetchNote)

	s.mcp.AddTool(mcp.NewTool("edit_tags",
		mcp.WithDescription("Add and remove tags on a note identified by id or unique prefix. "+
			"Invalid tags reject the whole edit; adding a present tag or removing an absent one is a no-op."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id or unique prefix")),
		mcp.WithArray("add", mcp.Description("Tags to add"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("remove", mcp.Description("Tags to remove"),
			mcp.Items(map[string]any{"type": "string"})),
	), s.editTags)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List all tags currently in use with their usage counts."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the canonical note format. Call this before creating notes."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource("notelog://note-format", "Note Format",
			mcp.WithResourceDescription("Canonical note file format: preamble fields, tag rules, layout."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) addNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tagList := req.GetStringSlice("tags", nil)

	note, err := s.svc.AddNote(ctx, content, tagList)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created note %s at %s", note.ID, note.Path)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := index.Query{
		Text:  req.GetString("query", ""),
		Limit: req.GetInt("limit", index.DefaultSearchLimit),
	}
	var err error
	if q.Before, err = parseTimeArg(req.GetString("before", "")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if q.After, err = parseTimeArg(req.GetString("after", "")); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.svc.SearchNotes(ctx, q)
	if err != nil {
		return toolError(err), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) fetchNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idPrefix, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.FetchNote(ctx, idPrefix)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) editTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idPrefix, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	add := req.GetStringSlice("add", nil)
	remove := req.GetStringSlice("remove", nil)
	if len(add) == 0 && len(remove) == 0 {
		return mcp.NewToolResultError("nothing to do: neither add nor remove given"), nil
	}

	note, err := s.svc.EditTags(ctx, idPrefix, add, remove)
	if err != nil {
		return toolError(err), nil
	}
	out, _ := json.Marshal(note.Tags)
	return mcp.NewToolResultText(fmt.Sprintf("note %s now tagged %s", note.ID, out)), nil
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	counts, err := s.svc.ListTags(ctx)
	if err != nil {
		return toolError(err), nil
	}
	out, _ := json.MarshalIndent(counts, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "notelog://note-format",
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

// toolError maps domain errors to tool results with readable messages.
func toolError(err error) *mcp.CallToolResult {
	if amb, ok := apperr.IsAmbiguous(err); ok {
		return mcp.NewToolResultError(fmt.Sprintf(
			"id prefix %q is ambiguous: %d notes match, use more characters", amb.Prefix, amb.Count))
	}
	return mcp.NewToolResultError(err.Error())
}

func parseTimeArg(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		// Date-only input is common from LLM callers.
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: use RFC 3339 or YYYY-MM-DD", s)
		}
	}
	return &t, nil
}
