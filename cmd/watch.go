package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openkb/chatbench/internal/progress"
)

func newWatchCmd() *cobra.Command {
	var (
		serverURL string
		token     string
	)

	cmd := &cobra.Command{
		Use:   "watch <batch-id>",
		Short: "Follow the live progress stream of a running batch",
		Long: `Connect to a chatbench server's progress endpoint and print progress events
until the batch reaches a terminal state. If the server restarted while the
batch was running, a recovery event is printed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID := args[0]
			url := strings.TrimRight(serverURL, "/") + "/progress/" + batchID

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("failed to build request: %w", err)
			}
			req.Header.Set("Accept", "text/event-stream")
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", url, err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s for %s", resp.Status, url)
			}

			scanner := bufio.NewScanner(resp.Body)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Text()
				if !strings.HasPrefix(line, "data: ") {
					continue
				}

				var ev progress.Event
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
					return fmt.Errorf("failed to decode progress event: %w", err)
				}
				printEvent(cmd, ev)

				if ev.Status == string(progress.StatusCompleted) || ev.Status == string(progress.StatusError) {
					return nil
				}
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("stream read failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Stream closed by server.")
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "chatbench server base URL")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token (required when the server runs with OAuth)")

	return cmd
}

func printEvent(cmd *cobra.Command, ev progress.Event) {
	out := cmd.OutOrStdout()

	switch ev.Status {
	case string(progress.StatusCompleted):
		fmt.Fprintf(out, "[%s] completed: %d/%d tests, %d failed\n",
			ev.BatchID, ev.CompletedTests, ev.TotalTests, ev.FailedTests)
		for _, v := range ev.Versions {
			if v.PassRate != nil && v.AverageScore != nil {
				fmt.Fprintf(out, "  %s: pass rate %.1f%%, avg score %.1f\n",
					v.VersionName, *v.PassRate, *v.AverageScore)
			}
		}
	case string(progress.StatusError):
		fmt.Fprintf(out, "[%s] error: %s\n", ev.BatchID, ev.Error)
	default:
		fmt.Fprintf(out, "[%s] %s %.0f%% (%d/%d, %d failed)",
			ev.BatchID, ev.Status, ev.Progress, ev.CompletedTests, ev.TotalTests, ev.FailedTests)
		if ev.CurrentVersionName != "" {
			fmt.Fprintf(out, " version=%s", ev.CurrentVersionName)
		}
		if ev.CurrentTestCase != "" {
			fmt.Fprintf(out, " case=%s", ev.CurrentTestCase)
		}
		fmt.Fprintf(out, " eta=%.0fs\n", ev.EstimatedRemainingSeconds)
	}
}
