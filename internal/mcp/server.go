// Package mcp exposes every registered action as a Model Context Protocol
// tool served over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"StoryAgent-Kit/internal/agent"
	"StoryAgent-Kit/pkg/logger"
)

const instructions = "Story Protocol wallet tools. Each tool takes a JSON object matching its " +
	"input schema and returns the action result as JSON; results with status \"error\" " +
	"carry a code and message. Transactions return once broadcast unless " +
	"waitForConfirmation is true."

// Server wraps an MCP server whose tools dispatch through the agent.
type Server struct {
	agent     *agent.Agent
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer registers one tool per action.
func NewServer(ag *agent.Agent, version string) *Server {
	s := &Server{agent: ag, logger: logger.Named("mcp")}
	s.mcpServer = server.NewMCPServer(
		"storyagent",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	s.mcpServer.AddTools(s.tools()...)
	return s
}

// Serve runs the stdio transport until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying server for tests or other transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	actions := s.agent.Registry().List()
	tools := make([]server.ServerTool, 0, len(actions))
	for _, a := range actions {
		name := a.Name()
		tools = append(tools, server.ServerTool{
			Tool:    mcp.NewToolWithRawSchema(a.ToolName(), a.Description(), a.InputSchema()),
			Handler: s.handlerFor(name),
		})
	}
	return tools
}

func (s *Server) handlerFor(actionName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := s.agent.Execute(ctx, agent.TaskRequest{
			Action: actionName,
			Input:  req.GetArguments(),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := json.Marshal(out.Result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		s.logger.Debug("tool call",
			slog.String("tool", req.Params.Name),
			slog.String("action", actionName),
			slog.String("status", out.Result.Status()))

		result := mcp.NewToolResultText(string(data))
		result.IsError = !out.Result.OK()
		return result, nil
	}
}
