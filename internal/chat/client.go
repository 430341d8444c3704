// Package chat talks to the externally hosted conversational AI service.
package chat

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

// Answer is the response to a single question.
type Answer struct {
	Content        string
	ResponseTime   time.Duration
	ConversationID string
	MessageID      string
}

// Client abstracts the conversational service. Each call is an independent
// network operation with no cross-call ordering guarantee; session affinity
// is entirely the caller's responsibility via callerIdentity and
// conversationID.
type Client interface {
	// SendQuestion sends one question on behalf of callerIdentity.
	// An empty conversationID starts a fresh conversation.
	SendQuestion(ctx context.Context, question, callerIdentity, conversationID string) (*Answer, error)
}

// OpenAIClient implements Client against an OpenAI-compatible chat endpoint.
type OpenAIClient struct {
	client        *openai.Client
	model         string
	temperature   float64
	systemMessage string
	timeout       time.Duration
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(opts ...Option) *OpenAIClient {
	cfg := &clientConfig{
		baseURL: "http://localhost:8000/v1",
		apiKey:  "not-needed",
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	config := openai.DefaultConfig(cfg.apiKey)
	config.BaseURL = cfg.baseURL

	return &OpenAIClient{
		client:        openai.NewClientWithConfig(config),
		model:         cfg.model,
		temperature:   cfg.temperature,
		systemMessage: cfg.systemMessage,
		timeout:       cfg.timeout,
	}
}

// SendQuestion sends a single question as a chat completion request.
// The callerIdentity is forwarded as the request user field so the service
// sees each caller as a distinct principal.
func (c *OpenAIClient) SendQuestion(ctx context.Context, question, callerIdentity, conversationID string) (*Answer, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: c.systemMessage},
		{Role: openai.ChatMessageRoleUser, Content: question},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(c.temperature),
		User:        callerIdentity,
	})
	if err != nil {
		return nil, classifyError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &HTTPStatusError{Code: 502, Message: "no choices returned"}
	}

	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	return &Answer{
		Content:        resp.Choices[0].Message.Content,
		ResponseTime:   time.Since(start),
		ConversationID: conversationID,
		MessageID:      resp.ID,
	}, nil
}

// classifyError maps transport and API failures onto the error taxonomy.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &TimeoutError{Err: err}
		}
		return &ConnectionError{Err: err}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &HTTPStatusError{Code: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode > 0 {
			return &HTTPStatusError{Code: reqErr.HTTPStatusCode, Err: err}
		}
		return &ConnectionError{Err: err}
	}
	return &ConnectionError{Err: err}
}
