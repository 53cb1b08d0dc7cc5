// Package mcpsrv exposes the asset pipeline to MCP clients (editors,
// agents) as a small set of tools backed by a live pipeline.Pipeline.
package mcpsrv

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/forgekit/assetpipe/pkg/assetdb"
	"github.com/forgekit/assetpipe/pkg/chash"
	"github.com/forgekit/assetpipe/pkg/guid"
	"github.com/forgekit/assetpipe/pkg/pipeline"
)

// Server wraps a pipeline.Pipeline to provide MCP tool access.
type Server struct {
	pipe   *pipeline.Pipeline
	server *server.MCPServer
}

// New creates an MCP server exposing pipe's search and asset-lookup
// operations as tools.
func New(pipe *pipeline.Pipeline) *Server {
	s := &Server{pipe: pipe}

	mcpServer := server.NewMCPServer(
		"assetpipe",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)
	s.server = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("search_assets",
			mcp.WithDescription("Keyword search over indexed asset source paths and friendly names."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Search text, e.g. 'rock diffuse' or 'hit.wav'"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of results (default: 10)"),
			),
		),
		s.handleSearchAssets,
	)

	mcpServer.AddTool(
		mcp.NewTool("get_asset",
			mcp.WithDescription("Fetch an AssetRecord by GUID or by its source path."),
			mcp.WithString("guid",
				mcp.Description("Asset GUID, hex-encoded"),
			),
			mcp.WithString("path",
				mcp.Description("Source URI relative to the project root"),
			),
		),
		s.handleGetAsset,
	)

	mcpServer.AddTool(
		mcp.NewTool("get_artifact",
			mcp.WithDescription("Fetch the byte size and existence of a compiled artifact by its content hash."),
			mcp.WithString("hash",
				mcp.Required(),
				mcp.Description("Artifact content hash, hex-encoded"),
			),
		),
		s.handleGetArtifact,
	)

	mcpServer.AddTool(
		mcp.NewTool("trigger_refresh",
			mcp.WithDescription("Force an immediate recompile check of one source path, bypassing the watcher's debounce."),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Absolute or project-relative source path"),
			),
		),
		s.handleTriggerRefresh,
	)
}

func (s *Server) handleSearchAssets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	limit := request.GetInt("limit", 10)

	results := s.pipe.Search().Search(query, limit)
	if len(results) == 0 {
		return mcp.NewToolResultText("no matching assets"), nil
	}

	out := ""
	for _, e := range results {
		out += fmt.Sprintf("%s  %s  %q\n", e.GUID.String(), e.URI, e.FriendlyName)
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) handleGetAsset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	guidStr := request.GetString("guid", "")
	path := request.GetString("path", "")
	if guidStr == "" && path == "" {
		return mcp.NewToolResultError("either guid or path is required"), nil
	}

	var rec *assetdb.Record
	err := s.pipe.DB().WithRead(func(tx *assetdb.ReadTxn) error {
		if guidStr != "" {
			g, err := guid.Parse(guidStr)
			if err != nil {
				return err
			}
			rec, err = tx.GetAsset(g)
			return err
		}
		var err error
		rec, err = tx.GetAssetByPath(path)
		return err
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("asset lookup failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"guid=%s source=%s artifacts=%d main_hash=%s source_hash=%s",
		rec.GUID.String(), rec.SourceURI, len(rec.Artifacts),
		rec.MainArtifact.ContentHash.String(), rec.SourceHash,
	)), nil
}

func (s *Server) handleGetArtifact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hashStr := request.GetString("hash", "")
	raw, err := hex.DecodeString(hashStr)
	if err != nil || len(raw) != chash.Size {
		return mcp.NewToolResultError("hash must be a hex-encoded content hash"), nil
	}
	var h chash.Hash
	copy(h[:], raw)

	data, err := s.pipe.Artifacts().Get(h)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("artifact not found: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("artifact %s: %d bytes", h.String(), len(data))), nil
}

func (s *Server) handleTriggerRefresh(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := request.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("path parameter is required"), nil
	}
	s.pipe.Refresh(path)
	return mcp.NewToolResultText("refresh scheduled for " + path), nil
}

// ServeStdio starts the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.server)
}
