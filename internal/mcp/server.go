package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/nocmatch/internal/logging"
	"github.com/Aman-CERP/nocmatch/internal/matcher"
	"github.com/Aman-CERP/nocmatch/internal/search"
	"github.com/Aman-CERP/nocmatch/pkg/version"
)

// Matcher is the part of *matcher.Service the server calls.
type Matcher interface {
	MatchByTitle(ctx context.Context, title string, topK int) ([]search.MatchResult, error)
	MatchByQuery(ctx context.Context, dutyText string, topK int) ([]search.MatchResult, error)
	RebuildIndex(ctx context.Context, force bool) (int, error)
	Stats() matcher.Stats
	DefaultTopK() int
}

// Server bridges MCP clients to the matcher.
type Server struct {
	mcp     *mcp.Server
	matcher Matcher
	logger  *slog.Logger
}

// NewServer creates an MCP server with all tools and resources registered.
func NewServer(m Matcher) (*Server, error) {
	if m == nil {
		return nil, errors.New("matcher is required")
	}

	s := &Server{
		matcher: m,
		logger:  logging.Component("mcp"),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "nocmatch",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(toolInfos))
	copy(out, toolInfos)
	return out
}

// CallTool invokes a tool by name with loosely typed arguments, as decoded
// from JSON. It backs the SDK handlers and the CLI's direct calls.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolMatchByTitle:
		title, _ := args["title"].(string)
		return s.matchByTitle(ctx, MatchByTitleInput{Title: title, TopK: intArg(args, "top_k")})
	case ToolMatchByQuery:
		duties, _ := args["duties"].(string)
		return s.matchByQuery(ctx, MatchByQueryInput{Duties: duties, TopK: intArg(args, "top_k")})
	case ToolRebuildIndex:
		force, _ := args["force"].(bool)
		return s.rebuild(ctx, RebuildInput{Force: force})
	case ToolMatcherStatus:
		return s.status(), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) matchByTitle(ctx context.Context, in MatchByTitleInput) (MatchOutput, error) {
	if strings.TrimSpace(in.Title) == "" {
		return MatchOutput{}, NewInvalidParamsError("title parameter is required and must be a non-empty string")
	}
	return s.runMatch(ctx, ToolMatchByTitle, in.Title, in.TopK, s.matcher.MatchByTitle)
}

func (s *Server) matchByQuery(ctx context.Context, in MatchByQueryInput) (MatchOutput, error) {
	if strings.TrimSpace(in.Duties) == "" {
		return MatchOutput{}, NewInvalidParamsError("duties parameter is required and must be a non-empty string")
	}
	return s.runMatch(ctx, ToolMatchByQuery, in.Duties, in.TopK, s.matcher.MatchByQuery)
}

func (s *Server) runMatch(
	ctx context.Context,
	tool, query string,
	topK int,
	fn func(context.Context, string, int) ([]search.MatchResult, error),
) (MatchOutput, error) {
	start := time.Now()
	requestID := uuid.NewString()
	topK = s.clampTopK(topK)

	s.logger.Info(tool+" started",
		slog.String("request_id", requestID),
		slog.Int("top_k", topK))

	results, err := fn(ctx, query, topK)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error(tool+" failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return MatchOutput{}, MapError(err)
	}

	s.logger.Info(tool+" completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	return MatchOutput{Query: query, Count: len(results), Results: results}, nil
}

func (s *Server) rebuild(ctx context.Context, in RebuildInput) (RebuildOutput, error) {
	start := time.Now()
	n, err := s.matcher.RebuildIndex(ctx, in.Force)
	if err != nil {
		return RebuildOutput{}, MapError(err)
	}

	out := RebuildOutput{Entries: n, DurationMS: time.Since(start).Milliseconds()}
	st := s.matcher.Stats()
	if st.Snapshot != nil {
		out.Generation = st.Snapshot.Generation
	}
	if st.LastRebuild != nil {
		out.Embedded = st.LastRebuild.Embedded
		out.Reused = st.LastRebuild.Reused
	}
	return out, nil
}

func (s *Server) status() StatusOutput {
	return newStatusOutput(version.Version, s.matcher.Stats())
}

// clampTopK applies the default for an omitted value and caps large ones.
// Negative values pass through; the matcher answers them with no results.
func (s *Server) clampTopK(k int) int {
	switch {
	case k == 0:
		return s.matcher.DefaultTopK()
	case k > MaxTopK:
		return MaxTopK
	default:
		return k
	}
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolMatchByTitle, Description: toolInfos[0].Description}, s.mcpMatchByTitleHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolMatchByQuery, Description: toolInfos[1].Description}, s.mcpMatchByQueryHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolRebuildIndex, Description: toolInfos[2].Description}, s.mcpRebuildHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolMatcherStatus, Description: toolInfos[3].Description}, s.mcpStatusHandler)
	s.logger.Debug("MCP tools registered", slog.Int("count", len(toolInfos)))
}

func (s *Server) mcpMatchByTitleHandler(ctx context.Context, _ *mcp.CallToolRequest, in MatchByTitleInput) (
	*mcp.CallToolResult,
	MatchOutput,
	error,
) {
	out, err := s.matchByTitle(ctx, in)
	if err != nil {
		return nil, MatchOutput{}, err
	}
	return textResult(FormatMatchResults(out)), out, nil
}

func (s *Server) mcpMatchByQueryHandler(ctx context.Context, _ *mcp.CallToolRequest, in MatchByQueryInput) (
	*mcp.CallToolResult,
	MatchOutput,
	error,
) {
	out, err := s.matchByQuery(ctx, in)
	if err != nil {
		return nil, MatchOutput{}, err
	}
	return textResult(FormatMatchResults(out)), out, nil
}

func (s *Server) mcpRebuildHandler(ctx context.Context, _ *mcp.CallToolRequest, in RebuildInput) (
	*mcp.CallToolResult,
	RebuildOutput,
	error,
) {
	out, err := s.rebuild(ctx, in)
	if err != nil {
		return nil, RebuildOutput{}, err
	}
	return textResult(fmt.Sprintf("Index rebuilt: %d entries (generation %d, %d embedded, %d reused) in %dms.",
		out.Entries, out.Generation, out.Embedded, out.Reused, out.DurationMS)), out, nil
}

func (s *Server) mcpStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	return nil, s.status(), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// Serve runs the server over stdio until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}
