// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the roamorg commands as tools via stdio transport.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/roamorg/internal/commands"
	"github.com/starford/roamorg/internal/models"
	"github.com/starford/roamorg/internal/storage"
)

const contractURI = "roamorg://org-format"

// Server wraps the MCP server with roamorg tools.
type Server struct {
	mcp    *server.MCPServer
	runner *commands.Runner
	store  storage.Provider
}

// New creates a new MCP server with all roamorg tools registered.
func New(runner *commands.Runner, store storage.Provider, version string) *Server {
	s := &Server{runner: runner, store: store}

	s.mcp = server.NewMCPServer(
		"roamorg",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("validate_configuration",
		mcp.WithDescription("Check every roam setting and report all failures at once."),
	), s.validate)

	s.mcp.AddTool(mcp.NewTool("create_directories",
		mcp.WithDescription("Create the configured roam directories that do not exist yet."),
	), s.makeDirs)

	s.mcp.AddTool(mcp.NewTool("top_index",
		mcp.WithDescription("Return the top index file, creating it with a fresh :ID: when missing."),
	), s.topIndex)

	s.mcp.AddTool(mcp.NewTool("relocate_entry",
		mcp.WithDescription("Move the node linked from the headline at a position into the permanent "+
			"directory, retag it, and move the entry subtree to the configured file. "+
			"Requires roamorg mode to be enabled."),
		mcp.WithString("at", mcp.Required(), mcp.Description("Entry position as file:line, e.g. inbox.org:12")),
	), s.relocate)

	s.mcp.AddTool(mcp.NewTool("delete_entry",
		mcp.WithDescription("Delete the node linked from the headline at a position together with the "+
			"entry subtree. Requires roamorg mode to be enabled."),
		mcp.WithString("at", mcp.Required(), mcp.Description("Entry position as file:line")),
	), s.deleteEntry)

	s.mcp.AddTool(mcp.NewTool("update_mocs",
		mcp.WithDescription("Refresh the node counters and missing backlinks of every MOC anchor."),
	), s.updateMOCs)

	s.mcp.AddTool(mcp.NewTool("complete_ref_backlinks",
		mcp.WithDescription("Link every node citing a key from the literature note of that key."),
	), s.refBacklinks)

	s.mcp.AddTool(mcp.NewTool("set_mode",
		mcp.WithDescription("Show or change the roamorg mode."),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("status", "enable", "disable", "toggle"),
			mcp.Description("What to do with the mode")),
		mcp.WithBoolean("any_dir", mcp.Description("Enable even when the working directory is outside the roam directory")),
	), s.setMode)

	s.mcp.AddTool(mcp.NewTool("sync_index",
		mcp.WithDescription("Bring the node index up to date with the org files."),
	), s.syncIndex)

	s.mcp.AddTool(mcp.NewTool("find_node",
		mcp.WithDescription("Look a node up by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Node id")),
	), s.findNode)

	s.mcp.AddTool(mcp.NewTool("search_nodes",
		mcp.WithDescription("Search node titles and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNodes)

	s.mcp.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read the raw content of an org file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path relative to the roam directory (e.g. permanent/x.org)")),
	), s.readFile)

	s.mcp.AddTool(mcp.NewTool("get_org_contract",
		mcp.WithDescription("Returns the org file conventions the organizing tools rely on. "+
			"Call this before editing files by hand."),
	), s.getOrgContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Org Format Contract",
			mcp.WithResourceDescription("Org file conventions for nodes, entries and MOC anchors."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

// result converts a Status. Failed commands become tool errors; warnings
// stay regular results so the caller sees what did happen.
func result(st commands.Status) *mcp.CallToolResult {
	if st.Failed() {
		return mcp.NewToolResultError(st.String())
	}
	return mcp.NewToolResultText(st.String())
}

func (s *Server) validate(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return result(s.runner.Validate(ctx)), nil
}

func (s *Server) makeDirs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return result(s.runner.MakeDirs(ctx)), nil
}

func (s *Server) topIndex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return result(s.runner.TopIndex(ctx)), nil
}

func position(req mcp.CallToolRequest) (models.Position, error) {
	at, err := req.RequireString("at")
	if err != nil {
		return models.Position{}, err
	}
	return models.ParsePosition(at)
}

func (s *Server) relocate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pos, err := position(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result(s.runner.Relocate(ctx, pos)), nil
}

func (s *Server) deleteEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pos, err := position(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result(s.runner.Delete(ctx, pos)), nil
}

func (s *Server) updateMOCs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return result(s.runner.UpdateMOCs(ctx)), nil
}

func (s *Server) refBacklinks(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return result(s.runner.RefBacklinks(ctx)), nil
}

func (s *Server) setMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	anyDir := req.GetBool("any_dir", false)

	switch action {
	case "status":
		return result(s.runner.ModeStatus(ctx)), nil
	case "enable":
		return result(s.runner.ModeEnable(ctx, anyDir)), nil
	case "disable":
		return result(s.runner.ModeDisable(ctx)), nil
	case "toggle":
		return result(s.runner.ModeToggle(ctx, anyDir)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
}

func (s *Server) syncIndex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return result(s.runner.Sync(ctx)), nil
}

func (s *Server) findNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result(s.runner.Find(ctx, id)), nil
}

func (s *Server) searchNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result(s.runner.Search(ctx, query, 20)), nil
}

func (s *Server) readFile(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rel, err := s.store.Rel(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.store.Read(rel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) getOrgContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(OrgFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     OrgFormatContract,
		},
	}, nil
}
