package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/openkb/chatbench/internal/catalog"
	"github.com/openkb/chatbench/internal/server"
)

func registerCatalogTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// list_catalogs
	catalogsTool := mcp.NewTool("list_catalogs",
		mcp.WithDescription("List available benchmark catalogs"),
	)
	s.AddTool(catalogsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListCatalogs(ctx, request, sc)
	})

	// list_versions
	versionsTool := mcp.NewTool("list_versions",
		mcp.WithDescription("List the configuration versions available for benchmarking"),
		mcp.WithString("catalog",
			mcp.Description("Catalog name (default: the catalog the server was started with)"),
		),
	)
	s.AddTool(versionsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListVersions(ctx, request, sc)
	})

	// list_cases
	casesTool := mcp.NewTool("list_cases",
		mcp.WithDescription("List the test cases of a catalog, including inactive ones"),
		mcp.WithString("catalog",
			mcp.Description("Catalog name (default: the catalog the server was started with)"),
		),
	)
	s.AddTool(casesTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListCases(ctx, request, sc)
	})

	return nil
}

// resolveCatalog returns the catalog named in the request arguments, falling
// back to the server's default catalog.
func resolveCatalog(request mcp.CallToolRequest, sc *server.ServerContext) (*catalog.Catalog, error) {
	args := request.GetArguments()
	name, _ := args["catalog"].(string)
	if name == "" {
		if sc.Catalog == nil {
			return nil, fmt.Errorf("no catalog configured")
		}
		return sc.Catalog, nil
	}
	return catalog.Load(name, sc.CatalogDir)
}

func handleListCatalogs(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	names, err := catalog.List(sc.CatalogDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list catalogs: %v", err)), nil
	}

	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal catalogs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func handleListVersions(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	cat, err := resolveCatalog(request, sc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load catalog: %v", err)), nil
	}

	data, err := json.MarshalIndent(cat.Versions, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal versions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func handleListCases(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	cat, err := resolveCatalog(request, sc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load catalog: %v", err)), nil
	}

	data, err := json.MarshalIndent(cat.Cases, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal cases: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
