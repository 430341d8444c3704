package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/openkb/chatbench/internal/runner"
	"github.com/openkb/chatbench/internal/server"
	"github.com/openkb/chatbench/internal/store"
)

func registerResultsTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	// get_progress
	progressTool := mcp.NewTool("get_progress",
		mcp.WithDescription("Get a progress snapshot for a running or completed batch"),
		mcp.WithString("batch_id",
			mcp.Required(),
			mcp.Description("Batch id returned by run_benchmark"),
		),
	)
	s.AddTool(progressTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetProgress(ctx, request, sc)
	})

	// get_results
	resultsTool := mcp.NewTool("get_results",
		mcp.WithDescription("Retrieve the persisted runs of a batch, optionally with per-case results"),
		mcp.WithString("batch_id",
			mcp.Required(),
			mcp.Description("Batch id to retrieve"),
		),
		mcp.WithBoolean("include_details",
			mcp.Description("Include per-case results for each run (default: false)"),
		),
	)
	s.AddTool(resultsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetResults(ctx, request, sc)
	})

	// compare_versions
	compareTool := mcp.NewTool("compare_versions",
		mcp.WithDescription("Build a ranked comparison report from a batch's completed runs"),
		mcp.WithString("batch_id",
			mcp.Required(),
			mcp.Description("Batch id to compare"),
		),
	)
	s.AddTool(compareTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleCompareVersions(ctx, request, sc)
	})

	return nil
}

func handleGetProgress(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	batchID, _ := request.GetArguments()["batch_id"].(string)
	if batchID == "" {
		return mcp.NewToolResultError("batch_id is required"), nil
	}

	// One-shot read of the stream: the first event is emitted immediately
	// and already carries the restart-recovery semantics.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ev, ok := <-sc.Streamer.OpenStream(streamCtx, batchID)
	if !ok {
		return mcp.NewToolResultError("progress stream closed unexpectedly"), nil
	}

	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal progress: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func handleGetResults(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	batchID, _ := args["batch_id"].(string)
	if batchID == "" {
		return mcp.NewToolResultError("batch_id is required"), nil
	}

	runs, err := sc.Store.RunsByBatch(ctx, batchID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read runs: %v", err)), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("[]"), nil
	}

	includeDetails, _ := args["include_details"].(bool)

	type runView struct {
		*store.TestRun
		Results []*store.TestResult `json:"results,omitempty"`
	}

	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		view := runView{TestRun: run}
		if includeDetails {
			results, err := sc.Store.ResultsByRun(ctx, run.ID)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to read results for run %s: %v", run.ID, err)), nil
			}
			view.Results = results
		}
		views = append(views, view)
	}

	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal runs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func handleCompareVersions(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	batchID, _ := request.GetArguments()["batch_id"].(string)
	if batchID == "" {
		return mcp.NewToolResultError("batch_id is required"), nil
	}

	runs, err := sc.Store.RunsByBatch(ctx, batchID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read runs: %v", err)), nil
	}

	var standings []runner.VersionStanding
	for _, run := range runs {
		if run.CompletedAt == nil {
			continue
		}
		standings = append(standings, runner.VersionStanding{
			VersionID:    run.VersionID,
			VersionName:  run.VersionName,
			Total:        run.Total,
			Passed:       run.Passed,
			Failed:       run.Failed,
			PassRate:     run.PassRate,
			AverageScore: run.AverageScore,
		})
	}
	if len(standings) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("no completed runs for batch %q", batchID)), nil
	}

	report := runner.BuildComparisonReport(standings)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal report: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
