// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes shelfcheck tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/shelfcheck/internal/messaging"
	"github.com/starford/shelfcheck/internal/registry"
	"github.com/starford/shelfcheck/internal/scan"
)

const contractURI = "shelfcheck://message-format"

var errInvalidYear = errors.New("year must be a number")

// Server wraps the MCP server with shelfcheck tools.
type Server struct {
	mcp     *server.MCPServer
	reg     *registry.Registry
	msgs    *messaging.Handler
	scanner *scan.Scanner
}

// New creates a new MCP server with all shelfcheck tools registered.
// scanner may be nil, which leaves out scan_page.
func New(reg *registry.Registry, msgs *messaging.Handler, scanner *scan.Scanner) *Server {
	s := &Server{reg: reg, msgs: msgs, scanner: scanner}

	s.mcp = server.NewMCPServer(
		"shelfcheck",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("check_movie",
		mcp.WithDescription("Check every enabled media source for a movie or show. "+
			"Returns one result per source; read the contract via get_message_contract "+
			"or the shelfcheck://message-format resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title as shown on the listing")),
		mcp.WithNumber("year", mcp.Description("Optional release year")),
	), s.checkMovie)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List registered media sources with their kind and whether they are enabled."),
	), s.listSources)

	s.mcp.AddTool(mcp.NewTool("test_source",
		mcp.WithDescription("Test the connection of a configured media source."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Source id (e.g. plex, jellyfin, local)")),
	), s.testSource)

	if scanner != nil {
		s.mcp.AddTool(mcp.NewTool("scan_page",
			mcp.WithDescription("Scan a listing page (IMDb, TMDB, Letterboxd, Trakt, JustWatch) "+
				"and report which titles are already in the library."),
			mcp.WithString("url", mcp.Description("Page URL to fetch")),
			mcp.WithString("html", mcp.Description("Page markup, used instead of url")),
			mcp.WithString("host", mcp.Description("Host the markup came from; required with html")),
		), s.scanPage)
	}

	s.mcp.AddTool(mcp.NewTool("get_message_contract",
		mcp.WithDescription("Returns the message channel contract: request fields and how to read results."),
	), s.getMessageContract)

	// Resource: message contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Message Contract",
			mcp.WithResourceDescription("CHECK_MOVIE request and response format."),
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

func (s *Server) checkMovie(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(title) == "" {
		return mcp.NewToolResultError("title is required"), nil
	}
	year, err := optionalYear(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.msgs.Handle(ctx, messaging.CheckMovie(title, year)))
}

func (s *Server) listSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.reg.Sources())
}

func (s *Server) testSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.reg.TestSource(ctx, id, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) scanPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url := stringArg(req, "url")
	markup := stringArg(req, "html")
	host := stringArg(req, "host")

	var (
		rep scan.Report
		err error
	)
	switch {
	case url != "":
		rep, err = s.scanner.URL(ctx, url)
	case markup != "" && host != "":
		rep, err = s.scanner.HTML(ctx, host, markup)
	default:
		return mcp.NewToolResultError("url, or html and host, are required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rep)
}

func (s *Server) getMessageContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MessageContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     MessageContract,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func stringArg(req mcp.CallToolRequest, key string) string {
	v, _ := req.GetArguments()[key].(string)
	return strings.TrimSpace(v)
}

// optionalYear accepts the year as a JSON number or a numeric string.
func optionalYear(req mcp.CallToolRequest) (*int, error) {
	switch v := req.GetArguments()["year"].(type) {
	case nil:
		return nil, nil
	case float64:
		y := int(v)
		return &y, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		y, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, errInvalidYear
		}
		return &y, nil
	default:
		return nil, errInvalidYear
	}
}
