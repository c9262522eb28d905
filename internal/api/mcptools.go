package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/clarisql/internal/gateway"
	"github.com/kalambet/clarisql/internal/prompt"
	"github.com/kalambet/clarisql/internal/sanitize"
)

// NewMCPServer exposes schema lookup, ambiguity checking, and SQL generation
// as MCP tools.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"clarisql",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("clarisql — natural-language-to-SQL generation with schema lookup, ambiguity checking, and syntax repair."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("lookup_schema",
			mcp.WithDescription("Return the CREATE TABLE statements for a database."),
			mcp.WithString("db_id", mcp.Description("Database identifier"), mcp.Required()),
		),
		mcpLookupSchema(deps),
	)

	s.AddTool(
		mcp.NewTool("check_ambiguity",
			mcp.WithDescription("Classify whether a natural-language question is ambiguous for its database schema."),
			mcp.WithString("question", mcp.Description("Natural-language question"), mcp.Required()),
			mcp.WithString("db_id", mcp.Description("Database identifier"), mcp.Required()),
		),
		mcpCheckAmbiguity(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_sql",
			mcp.WithDescription("Generate a sqlite SQL query for a natural-language question."),
			mcp.WithString("question", mcp.Description("Natural-language question"), mcp.Required()),
			mcp.WithString("db_id", mcp.Description("Database identifier"), mcp.Required()),
			mcp.WithNumber("shots", mcp.Description("Few-shot example count (default from server config)")),
		),
		mcpGenerateSQL(deps),
	)

	s.AddTool(
		mcp.NewTool("fix_sql",
			mcp.WithDescription("Repair a SQL query that failed to execute, given its error message."),
			mcp.WithString("db_id", mcp.Description("Database identifier"), mcp.Required()),
			mcp.WithString("sql", mcp.Description("The failing SQL query"), mcp.Required()),
			mcp.WithString("error", mcp.Description("The execution error message")),
		),
		mcpFixSQL(deps),
	)

	return s
}

func mcpLookupSchema(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbID, err := req.RequireString("db_id")
		if err != nil {
			return mcpError("db_id is required"), nil
		}

		schemaText := deps.Schemas.Schema(ctx, dbID)
		if schemaText == "" {
			return mcpError(fmt.Sprintf("unknown database %q", dbID)), nil
		}
		return mcpText(schemaText), nil
	}
}

func mcpCheckAmbiguity(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		dbID, err := req.RequireString("db_id")
		if err != nil {
			return mcpError("db_id is required"), nil
		}

		schemaText := deps.Schemas.Schema(ctx, dbID)
		if schemaText == "" {
			return mcpError(fmt.Sprintf("unknown database %q", dbID)), nil
		}

		model := deps.AmbiguityModel
		if model == "" {
			model = deps.Model
		}
		text, _ := deps.Generator.Generate(ctx, gateway.GenerateRequest{
			Prompt: prompt.AmbiguityCheck(question, schemaText).Text,
			Model:  model,
		})

		b, err := json.Marshal(map[string]bool{"ambiguous": prompt.ParseYesNo(text)})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal verdict: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGenerateSQL(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		dbID, err := req.RequireString("db_id")
		if err != nil {
			return mcpError("db_id is required"), nil
		}

		schemaText := deps.Schemas.Schema(ctx, dbID)
		if schemaText == "" {
			return mcpError(fmt.Sprintf("unknown database %q", dbID)), nil
		}

		shots := req.GetInt("shots", deps.Shots)
		var examples string
		if deps.Exemplars != nil && shots > 0 {
			examples = deps.Exemplars.FewShot(ctx, question, shots)
		}

		text, _ := deps.Generator.Generate(ctx, gateway.GenerateRequest{
			Prompt: prompt.Initial(question, schemaText, examples).Text,
			Model:  deps.Model,
		})
		return mcpText(sanitize.CleanQuery(text)), nil
	}
}

func mcpFixSQL(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbID, err := req.RequireString("db_id")
		if err != nil {
			return mcpError("db_id is required"), nil
		}
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcpError("sql is required"), nil
		}
		execError := req.GetString("error", "")

		schemaText := deps.Schemas.Schema(ctx, dbID)
		if schemaText == "" {
			return mcpError(fmt.Sprintf("unknown database %q", dbID)), nil
		}

		text, _ := deps.Generator.Generate(ctx, gateway.GenerateRequest{
			Prompt: prompt.FixInvalid(schemaText, sql, execError).Text,
			Model:  deps.Model,
		})
		return mcpText(sanitize.CleanQuery(text)), nil
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
