package cmd

import (
	"context"
	"os"
	"time"

	"github.com/openkb/chatbench/internal/catalog"
	"github.com/openkb/chatbench/internal/chat"
	"github.com/openkb/chatbench/internal/runner"
)

// chatClientFactory builds the per-version chat client factory from common
// CLI flags. A version's own endpoint overrides the flag; the API key falls
// back to the OPENAI_API_KEY environment variable.
func chatClientFactory(endpoint, apiKey string, timeout time.Duration) runner.ClientFunc {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	return func(_ context.Context, version catalog.ConfigVersion) (chat.Client, error) {
		var opts []chat.Option

		base := endpoint
		if version.Params.Endpoint != "" {
			base = version.Params.Endpoint
		}
		if base != "" {
			opts = append(opts, chat.WithBaseURL(base))
		}
		if apiKey != "" {
			opts = append(opts, chat.WithAPIKey(apiKey))
		}
		if version.Params.Model != "" {
			opts = append(opts, chat.WithModel(version.Params.Model))
		}
		opts = append(opts, chat.WithTemperature(version.Params.Temperature))
		if version.Params.SystemMessage != "" {
			opts = append(opts, chat.WithSystemMessage(version.Params.SystemMessage))
		}
		if timeout > 0 {
			opts = append(opts, chat.WithTimeout(timeout))
		}

		return chat.NewOpenAIClient(opts...), nil
	}
}
