package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/actions"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/dispatch"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceMIMEJSON = "application/json"

	aboutURI   = "tabsfinder://about"
	profileURI = "tabsfinder://profile"
	tabsURI    = "tabsfinder://tabs"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			aboutURI,
			"Tabs Finder About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info and the native-messaging protocol description."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			profileURI,
			"Active Profile",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("The profile name the gate currently compares requests against."),
		),
		s.handleProfileResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			tabsURI,
			"Open Tabs",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Every open tab, window order then tab order."),
		),
		s.handleTabsResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":         s.cfg.Server.Name,
		"version":      s.cfg.Server.Version,
		"host_name":    s.cfg.Server.HostName,
		"protocol":     actions.Help(),
		"timestamp_ms": time.Now().UnixMilli(),
	}
	return jsonContents(request.Params.URI, payload)
}

func (s *Server) handleProfileResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonContents(request.Params.URI, map[string]interface{}{
		"profile": s.gate.Current(ctx),
	})
}

func (s *Server) handleTabsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	reply := s.dispatcher.Dispatch(ctx, dispatch.Command{Kind: dispatch.KindGetAllTabs})
	return jsonContents(request.Params.URI, reply)
}

func jsonContents(uri string, payload interface{}) ([]mcp.ResourceContents, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}
