package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/erazemk/oprema/internal/command"
	"github.com/erazemk/oprema/internal/model"
	"github.com/erazemk/oprema/internal/resolver"
	"github.com/erazemk/oprema/internal/store"
	"github.com/erazemk/oprema/internal/workflow"
)

// MCPDeps holds dependencies for the MCP server. An MCP session acts for a
// single user of a single tenant.
type MCPDeps struct {
	DB          *sql.DB
	Interpreter *command.Interpreter
	Executor    *command.Executor
	Resolver    *resolver.Resolver
	TenantID    int64
	Actor       command.Actor
}

// NewMCPServer creates an MCP server exposing the voice command pipeline
// and equipment lookups as tools.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"oprema",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("oprema tracks sports and school equipment. Use voice_command for plain-language requests such as \"check out basketball 1\"."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("voice_command",
			mcp.WithDescription("Interpret and execute a plain-language equipment command (check out, return, find, report damage, list)."),
			mcp.WithString("transcript", mcp.Description("The command as spoken or typed"), mcp.Required()),
		),
		mcpVoiceCommand(deps),
	)

	s.AddTool(
		mcp.NewTool("equipment_status",
			mcp.WithDescription("Look up a piece of equipment by name or code and report its status and allowed next statuses."),
			mcp.WithString("query", mcp.Description("Equipment name or code"), mcp.Required()),
		),
		mcpEquipmentStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("list_equipment",
			mcp.WithDescription("List equipment, optionally only equipment in one status."),
			mcp.WithString("status", mcp.Description("Status filter, e.g. AVAILABLE or CHECKED_OUT")),
		),
		mcpListEquipment(deps),
	)

	return s
}

func mcpVoiceCommand(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		transcript, err := req.RequireString("transcript")
		if err != nil || transcript == "" {
			return mcpError("transcript is required"), nil
		}

		intent := deps.Interpreter.Interpret(ctx, deps.TenantID, transcript)
		res := deps.Executor.Execute(ctx, intent, deps.Actor, deps.TenantID)

		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		out := mcpText(string(b))
		out.IsError = !res.Success
		return out, nil
	}
}

type equipmentStatus struct {
	Equipment   *model.Equipment   `json:"equipment"`
	Score       float64            `json:"score"`
	Allowed     []model.Status     `json:"allowed"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
}

func mcpEquipmentStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || query == "" {
			return mcpError("query is required"), nil
		}

		match, err := deps.Resolver.Resolve(ctx, deps.TenantID, query)
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}
		if !match.Confident() {
			found, err := deps.Resolver.Search(ctx, deps.TenantID, query)
			if err != nil {
				return mcpError(fmt.Sprintf("search failed: %v", err)), nil
			}
			if len(found) == 0 {
				return mcpError(fmt.Sprintf("no equipment matches %q", query)), nil
			}
			b, _ := json.Marshal(map[string]any{"candidates": found})
			return mcpText(string(b)), nil
		}

		open, err := store.FindOpenTransaction(ctx, deps.DB, match.Equipment.ID)
		if err != nil {
			return mcpError(fmt.Sprintf("lookup failed: %v", err)), nil
		}
		b, err := json.Marshal(equipmentStatus{
			Equipment:   match.Equipment,
			Score:       match.Score,
			Allowed:     emptyIfNil(workflow.Allowed(match.Equipment.Status)),
			Transaction: open,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListEquipment(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filter := store.EquipmentFilter{TenantID: deps.TenantID}
		if s := req.GetString("status", ""); s != "" {
			status, ok := model.ParseStatus(s)
			if !ok {
				return mcpError(fmt.Sprintf("unknown status %q", s)), nil
			}
			filter.Status = status
		}

		list, err := store.ListEquipment(ctx, deps.DB, filter)
		if err != nil {
			return mcpError(fmt.Sprintf("listing failed: %v", err)), nil
		}
		b, err := json.Marshal(emptyIfNil(list))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
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
