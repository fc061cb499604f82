package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	uriScheme         = "kbqa://"
	documentURIPrefix = uriScheme + "documents/"
	configURI         = uriScheme + "search-config"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		URI:         configURI,
		Name:        "search-config",
		Description: "Effective retrieval parameters",
		MIMEType:    "application/json",
	}, s.handleConfigResource)

	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: documentURIPrefix + "{documentId}",
		Name:        "document",
		Description: "Full text of an indexed document",
		MIMEType:    "text/plain",
	}, s.handleDocumentResource)
}

func (s *Server) handleConfigResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(s.deps.Settings.Snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling search config: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

func (s *Server) handleDocumentResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	id := extractDocumentID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.deps.Documents.Get(ctx, id)
	if err != nil {
		return nil, MapError(err)
	}
	if doc == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	text := doc.Content
	if doc.Title != "" {
		text = doc.Title + "\n\n" + doc.Content
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     text,
		}},
	}, nil
}

// extractDocumentID returns the id from kbqa://documents/{id}.
func extractDocumentID(uri string) string {
	if !strings.HasPrefix(uri, documentURIPrefix) {
		return ""
	}
	id := strings.TrimPrefix(uri, documentURIPrefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
