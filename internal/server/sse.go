package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// ProgressHandler serves live batch progress as Server-Sent Events on
// GET /progress/{batchID}. Each tracker snapshot is written as one SSE data
// frame; the connection closes after a terminal event or when the client
// disconnects.
func ProgressHandler(sc *ServerContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		batchID := strings.TrimPrefix(r.URL.Path, "/progress/")
		if batchID == "" || strings.Contains(batchID, "/") {
			http.Error(w, "missing batch id", http.StatusBadRequest)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for ev := range sc.Streamer.OpenStream(r.Context(), batchID) {
			payload, err := json.Marshal(ev)
			if err != nil {
				slog.Error("failed to encode progress event", "batch_id", batchID, "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				// Client went away; the stream goroutine exits via r.Context().
				return
			}
			flusher.Flush()
		}
	})
}
