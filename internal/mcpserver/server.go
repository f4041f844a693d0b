// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes tutorcore tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tutorcore/internal/apperr"
	"github.com/starford/tutorcore/internal/models"
	"github.com/starford/tutorcore/internal/tutor"
)

const protocolURI = "tutorcore://tutoring-protocol"

// Server wraps the MCP server with tutorcore tools.
type Server struct {
	mcp *server.MCPServer
	svc *tutor.Service
}

// New creates a new MCP server with all tutorcore tools registered.
func New(svc *tutor.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Tutorcore",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("retrieve_context",
		mcp.WithDescription("Build a concept-graph context pack for a learner question. "+
			"Returns Markdown listing the relevant concepts and their relationships."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The learner's question, verbatim")),
		mcp.WithNumber("k", mcp.Description("Number of semantic matches to add as seeds")),
		mcp.WithNumber("hops", mcp.Description("Graph expansion depth (default 1)")),
		mcp.WithNumber("budget_tokens", mcp.Description("Token budget for the context pack")),
	), s.retrieveContext)

	s.mcp.AddTool(mcp.NewTool("get_mastery",
		mcp.WithDescription("Get the learner's mastery estimate for a skill."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Learner id")),
		mcp.WithString("skill_id", mcp.Required(), mcp.Description("Curriculum skill id")),
	), s.getMastery)

	s.mcp.AddTool(mcp.NewTool("record_practice",
		mcp.WithDescription("Record a graded learner response or a hint and update mastery. "+
			"Read the tutorcore://tutoring-protocol resource for when to call this."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Learner id")),
		mcp.WithString("skill_id", mcp.Required(), mcp.Description("Curriculum skill id")),
		mcp.WithString("source", mcp.Required(),
			mcp.Enum(string(models.SourceAttempt), string(models.SourceHint), string(models.SourceEvaluateWork), string(models.SourceTeachBack)),
			mcp.Description("What produced the event")),
		mcp.WithBoolean("correct", mcp.Description("Whether the response was correct (ignored for hints)")),
		mcp.WithString("event_uid", mcp.Description("Stable id so retries are counted once")),
		mcp.WithNumber("latency_ms", mcp.Description("Response latency in milliseconds")),
	), s.recordPractice)

	s.mcp.AddTool(mcp.NewTool("skill_status",
		mcp.WithDescription("Get whether a skill is locked, unlocked or mastered for a learner."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Learner id")),
		mcp.WithString("skill_id", mcp.Required(), mcp.Description("Curriculum skill id")),
		mcp.WithNumber("threshold", mcp.Description("Mastery threshold from the allowed set")),
	), s.skillStatus)

	s.mcp.AddTool(mcp.NewTool("why_locked",
		mcp.WithDescription("Explain which prerequisites keep a skill locked and the order to remediate them."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Learner id")),
		mcp.WithString("skill_id", mcp.Required(), mcp.Description("Curriculum skill id")),
		mcp.WithNumber("threshold", mcp.Description("Mastery threshold from the allowed set")),
	), s.whyLocked)

	s.mcp.AddTool(mcp.NewTool("get_tutoring_protocol",
		mcp.WithDescription("Returns the tutoring protocol: when to call each tool and how to read context packs."),
	), s.getTutoringProtocol)

	s.mcp.AddResource(
		mcp.NewResource(protocolURI, "Tutoring Protocol",
			mcp.WithResourceDescription("How to use the tutorcore tools during a tutoring session."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readProtocolResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError reports domain errors to the model. Unexpected failures are
// returned as protocol errors.
func toolError(err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidInput),
		errors.Is(err, apperr.ErrInvalidThreshold),
		errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrNotImplemented),
		errors.Is(err, apperr.ErrUnsupportedStrategy):
		return mcp.NewToolResultError(err.Error()), nil
	}
	return nil, err
}

func requireLearner(req mcp.CallToolRequest) (userID, skillID string, res *mcp.CallToolResult) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	skillID, err = req.RequireString("skill_id")
	if err != nil {
		return "", "", mcp.NewToolResultError(err.Error())
	}
	return userID, skillID, nil
}

func (s *Server) retrieveContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Retrieve(ctx, tutor.RetrieveRequest{
		Query:        query,
		K:            req.GetInt("k", 0),
		Hops:         req.GetInt("hops", 0),
		BudgetTokens: req.GetInt("budget_tokens", 0),
	})
	if err != nil {
		return toolError(err)
	}
	if len(res.Nodes) == 0 {
		return mcp.NewToolResultText("no matching concepts found"), nil
	}
	return mcp.NewToolResultText(res.ContextText), nil
}

func (s *Server) getMastery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, skillID, bad := requireLearner(req)
	if bad != nil {
		return bad, nil
	}
	view, err := s.svc.GetMastery(ctx, userID, skillID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(view)
}

func (s *Server) recordPractice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, skillID, bad := requireLearner(req)
	if bad != nil {
		return bad, nil
	}
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ev := models.PracticeEvent{
		EventUID: req.GetString("event_uid", ""),
		UserID:   userID,
		SkillID:  skillID,
		Source:   models.PracticeSource(source),
		Correct:  req.GetBool("correct", false),
	}
	if ms := req.GetInt("latency_ms", -1); ms >= 0 {
		v := int64(ms)
		ev.LatencyMS = &v
	}
	res, err := s.svc.RecordPractice(ctx, ev)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

func (s *Server) skillStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, skillID, bad := requireLearner(req)
	if bad != nil {
		return bad, nil
	}
	st, err := s.svc.ComputeStatus(ctx, userID, skillID, req.GetFloat("threshold", 0))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(st)
}

func (s *Server) whyLocked(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, skillID, bad := requireLearner(req)
	if bad != nil {
		return bad, nil
	}
	rep, err := s.svc.WhyLocked(ctx, userID, skillID, req.GetFloat("threshold", 0))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(rep)
}

func (s *Server) getTutoringProtocol(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(TutoringProtocol), nil
}

func (s *Server) readProtocolResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      protocolURI,
			MIMEType: "text/markdown",
			Text:     TutoringProtocol,
		},
	}, nil
}
