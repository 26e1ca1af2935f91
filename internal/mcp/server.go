// Package mcp exposes the lab report parser as Model Context Protocol tools
// so assistants can transcribe lab text without going through the HTTP API.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/labtranscriber/labtranscriber/internal/domain/labreport"
)

const parametersURI = "labtranscriber://parameters"

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Service *labreport.Service
	Version string
}

// NewServer creates an MCP server with the parse, diagnose and report tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"LabTranscriber",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerParseTool(s, cfg.Service)
	registerDiagnoseTool(s, cfg.Service)
	registerParametersTool(s, cfg.Service)
	registerStoreTool(s, cfg.Service)
	registerGetTool(s, cfg.Service)
	registerListTool(s, cfg.Service)

	registerParametersResource(s, cfg.Service)
	return s
}

// Serve speaks MCP over the given streams until ctx is cancelled or in is
// closed.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// --- Tools ---

func registerParseTool(s *server.MCPServer, svc *labreport.Service) {
	tool := mcp.NewTool("parse_lab_text",
		mcp.WithDescription("Parse the text of a lab report into canonical parameters and return the one-line-per-category summary with the matched values."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Lab report text, one reading per line"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		return jsonResult(svc.Parse(ctx, text))
	})
}

func registerDiagnoseTool(s *server.MCPServer, svc *labreport.Service) {
	tool := mcp.NewTool("diagnose_lab_text",
		mcp.WithDescription("Report which lines of a lab text the parameter configuration does not recognize, with near-miss suggestions."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Lab report text, one reading per line"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Similarity threshold for suggestions between 0 and 1 (default: 0.65)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		var threshold float64
		if v, err := req.RequireFloat("threshold"); err == nil {
			if v < 0 || v > 1 {
				return mcp.NewToolResultError("threshold must be between 0 and 1"), nil
			}
			threshold = v
		}
		return jsonResult(svc.Diagnose(ctx, text, threshold))
	})
}

func registerParametersTool(s *server.MCPServer, svc *labreport.Service) {
	tool := mcp.NewTool("list_parameters",
		mcp.WithDescription("List the categories and canonical parameters of the active configuration together with their expected units."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(svc.Parameters())
	})
}

func registerStoreTool(s *server.MCPServer, svc *labreport.Service) {
	tool := mcp.NewTool("store_lab_report",
		mcp.WithDescription("Parse lab report text and store the result. Returns the stored report with its id."),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Lab report text, one reading per line"),
		),
		mcp.WithString("source_name",
			mcp.Description("Name of the document the text came from"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		source, _ := req.RequireString("source_name")
		lr, err := svc.CreateFromText(ctx, source, text)
		if errors.Is(err, labreport.ErrEmptyText) {
			return mcp.NewToolResultError("text cannot be empty"), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("store error: %v", err)), nil
		}
		return jsonResult(lr)
	})
}

func registerGetTool(s *server.MCPServer, svc *labreport.Service) {
	tool := mcp.NewTool("get_lab_report",
		mcp.WithDescription("Fetch a stored lab report by id."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Report id (UUID)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid id %q", raw)), nil
		}
		lr, err := svc.Get(ctx, id)
		if errors.Is(err, labreport.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("lab report %s not found", id)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get error: %v", err)), nil
		}
		return jsonResult(lr)
	})
}

func registerListTool(s *server.MCPServer, svc *labreport.Service) {
	tool := mcp.NewTool("list_lab_reports",
		mcp.WithDescription("List stored lab reports, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of reports (default: 20, max: 100)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := 20
		if v, err := req.RequireFloat("limit"); err == nil && v > 0 {
			limit = int(v)
		}
		if limit > 100 {
			limit = 100
		}
		items, total, err := svc.List(ctx, limit, 0)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list error: %v", err)), nil
		}
		if items == nil {
			items = []*labreport.LabReport{}
		}
		return jsonResult(map[string]interface{}{
			"total": total,
			"data":  items,
		})
	})
}

// --- Resources ---

func registerParametersResource(s *server.MCPServer, svc *labreport.Service) {
	resource := mcp.NewResource(
		parametersURI,
		"Parameter Catalog",
		mcp.WithResourceDescription("Categories, canonical parameters and expected units of the active configuration."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.MarshalIndent(svc.Parameters(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding catalog: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
