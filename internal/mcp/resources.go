package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs.
const (
	StatusURI  = "nocmatch://status"
	MetricsURI = "nocmatch://query_metrics"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "status",
			URI:         StatusURI,
			Description: "Loaded taxonomy, index backend, and cache state",
			MIMEType:    "application/json",
		},
		s.jsonResource(StatusURI, func() any { return s.matcher.Stats() }),
	)
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         MetricsURI,
			Description: "Query counters for this session: paths, latency, zero-result queries, top terms",
			MIMEType:    "application/json",
		},
		s.jsonResource(MetricsURI, func() any { return s.matcher.Stats().Queries }),
	)
}

func (s *Server) jsonResource(uri string, value func() any) mcp.ResourceHandler {
	return func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		content, err := json.MarshalIndent(value(), "", "  ")
		if err != nil {
			return nil, MapError(err)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}
