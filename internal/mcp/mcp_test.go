package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/kagami-ai/kagami/internal/service/twin"
	"github.com/kagami-ai/kagami/internal/state"
	"github.com/kagami-ai/kagami/internal/store"
	"github.com/kagami-ai/kagami/internal/testutil"
)

func newTestMCP(t *testing.T) *Server {
	t.Helper()

	m, err := store.NewMemory(context.Background(), nil)
	require.NoError(t, err)
	svc := twin.New(m, state.NewMonitor(), testutil.TestLogger())
	return New(svc, "test", testutil.TestLogger())
}

// toolRequest builds a CallToolRequest for the named tool with the given arguments.
func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestHandleLog(t *testing.T) {
	s := newTestMCP(t)
	ctx := context.Background()

	result, err := s.handleLog(ctx, toolRequest("kagami_log", map[string]any{
		"decision": "rewrite the importer",
		"reason":   "the old one is slow",
		"tags":     "perf, importer",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var logged struct {
		Record struct {
			ID   string   `json:"id"`
			Tags []string `json:"tags"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &logged))
	assert.Equal(t, "dec_0", logged.Record.ID)
	assert.Equal(t, []string{"perf", "importer"}, logged.Record.Tags)
}

func TestHandleLogMissingDecision(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleLog(context.Background(), toolRequest("kagami_log", map[string]any{
		"reason": "no decision text",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "decision is required")
}

func TestHandleCheck(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleCheck(context.Background(), toolRequest("kagami_check", map[string]any{
		"decision":      "commit to another project",
		"stress_level":  90,
		"time_thinking": 600,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var check struct {
		ShouldIntervene bool `json:"should_intervene"`
		AllowOverride   bool `json:"allow_override"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &check))
	assert.True(t, check.ShouldIntervene)
	assert.True(t, check.AllowOverride)
}

func TestHandleRegret(t *testing.T) {
	s := newTestMCP(t)

	result, err := s.handleRegret(context.Background(), toolRequest("kagami_regret", map[string]any{
		"decision":        "buy the expensive chair",
		"stress_level":    90,
		"time_thinking":   10,
		"emotional_state": "angry",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var pred struct {
		Probability float64  `json:"regret_probability"`
		Level       string   `json:"level"`
		Factors     []string `json:"factors"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &pred))
	assert.Greater(t, pred.Probability, 0.5)
	assert.NotEmpty(t, pred.Factors)
}

func TestHandlePatternsAndRecent(t *testing.T) {
	s := newTestMCP(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := s.handleLog(ctx, toolRequest("kagami_log", map[string]any{
			"decision": "keep the design simple",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)
	}

	result, err := s.handlePatterns(ctx, toolRequest("kagami_patterns", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var summary struct {
		Preferences map[string]int `json:"preferences"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &summary))
	assert.Equal(t, 3, summary.Preferences["simplicity"])

	result, err = s.handleRecent(ctx, toolRequest("kagami_recent", map[string]any{"limit": 2}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var recent struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &recent))
	assert.Equal(t, 2, recent.Total)
}

func TestHandleStateResource(t *testing.T) {
	s := newTestMCP(t)

	contents, err := s.handleStateCurrent(context.Background(), mcplib.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "kagami://state/current", text.URI)

	var snap struct {
		State       string  `json:"state"`
		EnergyLevel float64 `json:"energy_level"`
	}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &snap))
	assert.Equal(t, "idle", snap.State)
	assert.Equal(t, 100.0, snap.EnergyLevel)
}

func TestSplitTags(t *testing.T) {
	assert.Nil(t, splitTags(""))
	assert.Equal(t, []string{"a"}, splitTags("a"))
	assert.Equal(t, []string{"a", "b"}, splitTags("a, b"))
	assert.Equal(t, []string{"a", "b"}, splitTags("a,,b,"))
}
