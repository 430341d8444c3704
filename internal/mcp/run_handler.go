package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/openkb/chatbench/internal/server"
)

func registerBenchmarkTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	runTool := mcp.NewTool("run_benchmark",
		mcp.WithDescription("Run a benchmark batch: every listed configuration version answers the selected test cases and the answers are keyword-scored. By default the batch runs in the background; follow it with get_progress."),
		mcp.WithString("version_ids",
			mcp.Required(),
			mcp.Description("Comma-separated configuration version ids to benchmark"),
		),
		mcp.WithString("case_ids",
			mcp.Description("Comma-separated test case ids (default: all active cases)"),
		),
		mcp.WithString("name",
			mcp.Description("Human-readable batch name"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("Run synchronously and return the full comparison report (default: false)"),
		),
	)
	s.AddTool(runTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleRunBenchmark(ctx, request, sc)
	})

	return nil
}

func handleRunBenchmark(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	rawVersions, _ := args["version_ids"].(string)
	versionIDs := splitIDs(rawVersions)
	if len(versionIDs) == 0 {
		return mcp.NewToolResultError("version_ids is required"), nil
	}

	rawCases, _ := args["case_ids"].(string)
	caseIDs := splitIDs(rawCases)
	batchName, _ := args["name"].(string)

	// Resolve ids up front so invalid requests fail before anything starts,
	// even in background mode.
	for _, id := range versionIDs {
		if _, ok := sc.Catalog.VersionByID(id); !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown version id %q", id)), nil
		}
	}
	for _, id := range caseIDs {
		if _, ok := sc.Catalog.CaseByID(id); !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown case id %q", id)), nil
		}
	}

	if wait, _ := args["wait"].(bool); wait {
		result, err := sc.Orchestrator.RunBatch(ctx, versionIDs, caseIDs, batchName, "")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("benchmark failed: %v", err)), nil
		}
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}

	batchID := uuid.NewString()
	totalCases := len(caseIDs)
	if totalCases == 0 {
		totalCases = len(sc.Catalog.ActiveCases())
	}

	// The request context dies when this call returns; the background batch
	// gets its own.
	go func() {
		if _, err := sc.Orchestrator.RunBatch(context.Background(), versionIDs, caseIDs, batchName, batchID); err != nil {
			slog.Error("background benchmark failed", "batch_id", batchID, "error", err)
		}
	}()

	summary := map[string]interface{}{
		"batch_id":       batchID,
		"status":         "running",
		"total_versions": len(versionIDs),
		"total_cases":    totalCases,
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
