package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StoryAgent-Kit/internal/agent"
	"StoryAgent-Kit/internal/apps"
	"StoryAgent-Kit/internal/kit/kittest"
	"StoryAgent-Kit/internal/web3/web3test"
)

func newServer(t *testing.T) (*Server, *web3test.Adapter) {
	t.Helper()
	reg, err := apps.NewRegistry()
	require.NoError(t, err)
	k, adapter := kittest.New(t)
	return NewServer(agent.New(reg, k), "test"), adapter
}

func call(t *testing.T, s *Server, tool string, args map[string]any) (*mcp.CallToolResult, map[string]any) {
	t.Helper()
	var handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
	for _, st := range s.tools() {
		if st.Tool.Name == tool {
			handler = st.Handler
		}
	}
	require.NotNil(t, handler, "tool %s not registered", tool)

	result, err := handler(context.Background(), mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: tool, Arguments: args},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(mcp.GetTextFromContent(result.Content[0])), &body))
	return result, body
}

func TestEveryActionIsATool(t *testing.T) {
	s, _ := newServer(t)
	tools := s.tools()
	assert.Len(t, tools, len(s.agent.Registry().Names()))

	for _, st := range tools {
		a, ok := s.agent.Registry().ByTool(st.Tool.Name)
		require.True(t, ok, "tool %s has no action", st.Tool.Name)
		assert.Equal(t, a.Description(), st.Tool.Description)
		assert.JSONEq(t, string(a.InputSchema()), string(st.Tool.RawInputSchema))
	}
}

func TestToolResultsCarryStatus(t *testing.T) {
	s, adapter := newServer(t)

	result, body := call(t, s, "metapool_stake", map[string]any{"amount": "10"})
	assert.False(t, result.IsError)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "10", body["amount"])
	assert.Equal(t, []string{"simulate:depositIP", "write:depositIP"}, adapter.CallLog())

	result, body = call(t, s, "metapool_unstake", map[string]any{"amount": "0.01"})
	assert.True(t, result.IsError)
	assert.Equal(t, "VALIDATION_FAILED", body["code"])

	result, body = call(t, s, "metapool_stake", map[string]any{})
	assert.True(t, result.IsError)
	assert.Equal(t, "INVALID_INPUT", body["code"])
	assert.Equal(t, "amount", body["field"])
}
