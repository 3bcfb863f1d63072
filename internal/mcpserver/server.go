// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes playpack build tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/playpack/internal/directive"
	"github.com/starford/playpack/internal/history"
	"github.com/starford/playpack/internal/models"
	"github.com/starford/playpack/internal/storage"
)

const grammarURI = "playpack://directive-grammar"

// BuildFunc runs one full build and returns its report.
type BuildFunc func(ctx context.Context) (models.BuildReport, error)

// Server wraps the MCP server with playpack tools.
type Server struct {
	mcp     *server.MCPServer
	store   storage.Provider
	build   BuildFunc
	history history.Recorder
	title   string
}

// New creates a new MCP server with all tools registered. store is the
// bundle directory; hist may be nil when history is disabled.
func New(store storage.Provider, build BuildFunc, hist history.Recorder, title string) *Server {
	s := &Server{store: store, build: build, history: hist, title: title}

	s.mcp = server.NewMCPServer(
		"playpack",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("build_playable",
		mcp.WithDescription("Build the single-file playable ad from the bundle directory "+
			"and return the build report (artifact path, size, per-asset sizes, stage timings)."),
	), s.buildPlayable)

	s.mcp.AddTool(mcp.NewTool("scan_directives",
		mcp.WithDescription("List the embedding directives found in a page of the bundle, "+
			"in resolution order. See the "+grammarURI+" resource for the syntax."),
		mcp.WithString("path", mcp.Description("Page relative to the bundle directory (default index.html)")),
	), s.scanDirectives)

	s.mcp.AddTool(mcp.NewTool("build_history",
		mcp.WithDescription("List recent builds, newest first."),
		mcp.WithString("title", mcp.Description("Project title to filter by (default: current project; \"*\" for all)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of builds (default 10)")),
	), s.buildHistory)

	s.mcp.AddResource(
		mcp.NewResource(grammarURI, "Directive Grammar",
			mcp.WithResourceDescription("Markup recognised in the entry page and how each directive is embedded."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGrammarResource,
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

func (s *Server) buildPlayable(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.build(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) scanDirectives(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "index.html")
	ok, err := s.store.Exists(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	data, err := s.store.Read(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	found := directive.Collect(directive.Scan(string(data)))
	if len(found) == 0 {
		return mcp.NewToolResultText("no directives found"), nil
	}
	out, _ := json.MarshalIndent(found, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) buildHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("build history is disabled"), nil
	}
	title := req.GetString("title", s.title)
	if title == "*" {
		title = ""
	}
	builds, err := s.history.ListBuilds(title, req.GetInt("limit", 10))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(builds) == 0 {
		return mcp.NewToolResultText("no builds recorded"), nil
	}
	out, _ := json.MarshalIndent(builds, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readGrammarResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      grammarURI,
			MIMEType: "text/markdown",
			Text:     DirectiveGrammar,
		},
	}, nil
}
