package server

import (
	"github.com/openkb/chatbench/internal/catalog"
	"github.com/openkb/chatbench/internal/progress"
	"github.com/openkb/chatbench/internal/runner"
	"github.com/openkb/chatbench/internal/store"
)

// ServerContext holds shared dependencies for MCP tool handlers and the
// progress stream endpoint.
type ServerContext struct {
	Catalog      *catalog.Catalog
	Store        store.Store
	Tracker      *progress.Tracker
	Streamer     *progress.Streamer
	Orchestrator *runner.Orchestrator
	CatalogDir   string // external catalogs directory (optional)
}
