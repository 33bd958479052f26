package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer registers every toolbox tool on an MCP server without
// starting it.
func NewMCPServer(tb *Toolbox, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"Ready-Mix Coach",
		version,
		server.WithLogging(),
	)
	for _, t := range tb.Tools() {
		s.AddTool(mcpTool(t), handlerFor(tb, t.Name))
	}
	return s
}

func mcpTool(t Tool) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.Description)}
	params := t.Params
	if t.DefaultWindow != "" {
		params = append(append([]Param{}, commonParams...), params...)
	} else {
		params = append(append([]Param{}, commonParams[1:]...), params...)
	}
	for _, p := range params {
		popts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			popts = append(popts, mcp.Required())
		}
		if len(p.Enum) > 0 {
			popts = append(popts, mcp.Enum(p.Enum...))
		}
		switch p.Kind {
		case KindNumber:
			opts = append(opts, mcp.WithNumber(p.Name, popts...))
		default:
			opts = append(opts, mcp.WithString(p.Name, popts...))
		}
	}
	return mcp.NewTool(t.Name, opts...)
}

func handlerFor(tb *Toolbox, name string) server.ToolHandlerFunc {
	return func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := tb.Call(name, request)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", name, err)), nil
		}
		jsonData, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s: encoding result: %v", name, err)), nil
		}
		return mcp.NewToolResultText(string(jsonData)), nil
	}
}

// Serve runs the MCP server over stdio until the client disconnects.
func Serve(_ context.Context, tb *Toolbox, version string) error {
	return server.ServeStdio(NewMCPServer(tb, version))
}
