// Package mcp implements the Model Context Protocol server for Kagami.
//
// The MCP server exposes the same capabilities as the HTTP API through
// MCP resources and tools, so an MCP-compatible assistant can log the
// user's decisions, check them before committing, and read the live
// cognitive state.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kagami-ai/kagami/internal/model"
	"github.com/kagami-ai/kagami/internal/service/twin"
)

// Server wraps the MCP server with Kagami's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	svc       *twin.Service
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources and tools.
func New(svc *twin.Service, version string, logger *slog.Logger) *Server {
	s := &Server{
		svc:    svc,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kagami",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerResources() {
	// kagami://state/current — live cognitive state.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"kagami://state/current",
			"Current Cognitive State",
			mcplib.WithResourceDescription("Live cognitive state: energy, stress, flow, decision quality"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleStateCurrent,
	)

	// kagami://decisions/recent — latest decisions from the log.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"kagami://decisions/recent",
			"Recent Decisions",
			mcplib.WithResourceDescription("The most recently logged decisions"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleDecisionsRecent,
	)
}

func (s *Server) registerTools() {
	// kagami_log — record a decision.
	s.mcpServer.AddTool(
		mcplib.NewTool("kagami_log",
			mcplib.WithDescription("Log a decision with its reasoning, alternatives, and tags. Returns the stored record plus any intervention warnings."),
			mcplib.WithString("decision", mcplib.Description("What was decided"), mcplib.Required()),
			mcplib.WithString("reason", mcplib.Description("Why it was decided")),
			mcplib.WithString("tags", mcplib.Description("Comma-separated tags")),
			mcplib.WithString("outcome", mcplib.Description("Outcome if already known")),
		),
		s.handleLog,
	)

	// kagami_check — intervention check without storing.
	s.mcpServer.AddTool(
		mcplib.NewTool("kagami_check",
			mcplib.WithDescription("Check a decision before committing to it. Runs intervention rules (late night, stress, repeated mistakes) and says whether to pause."),
			mcplib.WithString("decision", mcplib.Description("The decision being considered"), mcplib.Required()),
			mcplib.WithNumber("stress_level", mcplib.Description("Current stress 0-100")),
			mcplib.WithNumber("time_thinking", mcplib.Description("Seconds spent deliberating")),
			mcplib.WithString("emotional_state", mcplib.Description("Current emotional state")),
			mcplib.WithNumber("current_commitments", mcplib.Description("Number of active commitments")),
			mcplib.WithString("decision_type", mcplib.Description("Kind of decision, e.g. commitment")),
		),
		s.handleCheck,
	)

	// kagami_regret — regret probability forecast.
	s.mcpServer.AddTool(
		mcplib.NewTool("kagami_regret",
			mcplib.WithDescription("Predict the probability of regretting a decision, with the contributing factors and similar past regrets."),
			mcplib.WithString("decision", mcplib.Description("The decision being considered"), mcplib.Required()),
			mcplib.WithNumber("stress_level", mcplib.Description("Current stress 0-100")),
			mcplib.WithNumber("time_thinking", mcplib.Description("Seconds spent deliberating")),
			mcplib.WithString("emotional_state", mcplib.Description("Current emotional state")),
			mcplib.WithNumber("current_commitments", mcplib.Description("Number of active commitments")),
		),
		s.handleRegret,
	)

	// kagami_patterns — pattern summary.
	s.mcpServer.AddTool(
		mcplib.NewTool("kagami_patterns",
			mcplib.WithDescription("Summarize decision patterns: preferences, recurring themes, outcomes, and how they evolved"),
		),
		s.handlePatterns,
	)

	// kagami_recent — recent decisions.
	s.mcpServer.AddTool(
		mcplib.NewTool("kagami_recent",
			mcplib.WithDescription("List the most recent decisions from the log"),
			mcplib.WithNumber("limit", mcplib.Description("Maximum results to return")),
		),
		s.handleRecent,
	)
}

func (s *Server) handleStateCurrent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	snap, err := s.svc.State()
	if err != nil {
		return nil, fmt.Errorf("mcp: current state: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal state: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "kagami://state/current",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleDecisionsRecent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	records, err := s.svc.Recent(ctx, 20)
	if err != nil {
		return nil, fmt.Errorf("mcp: recent decisions: %w", err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal decisions: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "kagami://decisions/recent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleLog(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	decision := request.GetString("decision", "")
	if decision == "" {
		return errorResult("decision is required"), nil
	}

	in := model.DecisionInput{
		Decision: decision,
		Reason:   request.GetString("reason", ""),
		Outcome:  request.GetString("outcome", ""),
		Tags:     splitTags(request.GetString("tags", "")),
	}

	res, err := s.svc.Log(ctx, in, contextFromRequest(request))
	if err != nil {
		return errorResult(fmt.Sprintf("failed to log decision: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(res, "", "  ")
	return textResult(string(resultData)), nil
}

func (s *Server) handleCheck(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	decision := request.GetString("decision", "")
	if decision == "" {
		return errorResult("decision is required"), nil
	}

	res, err := s.svc.CheckDecision(ctx, decision, contextFromRequest(request))
	if err != nil {
		return errorResult(fmt.Sprintf("check failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(res, "", "  ")
	return textResult(string(resultData)), nil
}

func (s *Server) handleRegret(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	decision := request.GetString("decision", "")
	if decision == "" {
		return errorResult("decision is required"), nil
	}

	p, err := s.svc.PredictRegret(ctx, decision, contextFromRequest(request))
	if err != nil {
		return errorResult(fmt.Sprintf("prediction failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(p, "", "  ")
	return textResult(string(resultData)), nil
}

func (s *Server) handlePatterns(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	summary, err := s.svc.Patterns(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("analysis failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(summary, "", "  ")
	return textResult(string(resultData)), nil
}

func (s *Server) handleRecent(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := request.GetInt("limit", 10)

	records, err := s.svc.Recent(ctx, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("query failed: %v", err)), nil
	}

	resultData, _ := json.MarshalIndent(map[string]any{
		"decisions": records,
		"total":     len(records),
	}, "", "  ")
	return textResult(string(resultData)), nil
}

// contextFromRequest builds a check context from the shared tool arguments.
func contextFromRequest(request mcplib.CallToolRequest) model.CheckContext {
	return model.CheckContext{
		StressLevel:        request.GetFloat("stress_level", 0),
		TimeThinking:       request.GetFloat("time_thinking", 0),
		EmotionalState:     request.GetString("emotional_state", ""),
		CurrentCommitments: request.GetInt("current_commitments", 0),
		DecisionType:       request.GetString("decision_type", ""),
	}
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
