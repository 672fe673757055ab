package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/uniguide/internal/answer"
	"github.com/kalambet/uniguide/internal/storage"
)

// TopQuerySource reports the most frequent user questions.
type TopQuerySource interface {
	TopQueries(ctx context.Context, limit int) ([]storage.QueryCount, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Router    Answerer
	Indexer   Indexer
	Analytics TopQuerySource
	Version   string
}

const topQueriesURI = "uniguide://analytics/top-queries"

// NewMCPServer creates an MCP server exposing the chatbot as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"uniguide",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("uniguide answers questions about universities, programs, tuition and student visas."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask the university and visa assistant a question."),
			mcp.WithString("message", mcp.Description("The question"), mcp.Required()),
			mcp.WithString("language", mcp.Description("ISO 639-1 code of the question language (default en)")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("reindex",
			mcp.WithDescription("Rebuild the semantic index from the document corpus."),
		),
		mcpReindex(deps),
	)

	s.AddTool(
		mcp.NewTool("top_queries",
			mcp.WithDescription("List the most frequently asked questions."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 10)")),
		),
		mcpTopQueries(deps),
	)

	s.AddResource(
		mcp.NewResource(
			topQueriesURI,
			"Top Queries",
			mcp.WithResourceDescription("The ten most frequent user questions as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTopQueries(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil || message == "" {
			return mcpError("message is required"), nil
		}
		env := deps.Router.Handle(ctx, answer.Request{
			Message:  message,
			Language: req.GetString("language", answer.DefaultLanguage),
		})

		b, err := json.Marshal(env)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		res := mcpText(string(b))
		res.IsError = !env.Success
		return res, nil
	}
}

func mcpReindex(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := deps.Indexer.ReindexCorpus(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("reindex failed: %v", err)), nil
		}
		return mcpText(report.Message()), nil
	}
}

func mcpTopQueries(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		top, err := deps.Analytics.TopQueries(ctx, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("loading analytics failed: %v", err)), nil
		}
		b, err := json.Marshal(top)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal analytics: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceTopQueries(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		top, err := deps.Analytics.TopQueries(ctx, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to load top queries: %w", err)
		}
		b, err := json.Marshal(top)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal top queries: %w", err)
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
