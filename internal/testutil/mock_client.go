// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/openkb/chatbench/internal/chat"
)

// MockChatClient is a configurable mock for chat.Client used across test
// packages. It is safe for concurrent use.
type MockChatClient struct {
	mu sync.Mutex

	// Responses maps questions to canned answers.
	Responses map[string]string

	// DefaultResponse is returned when no matching key is found in Responses.
	DefaultResponse string

	// Errors maps questions to canned failures, taking precedence over
	// Responses.
	Errors map[string]error

	// Err, when set, fails every call.
	Err error

	// Delay is applied before answering, to exercise concurrency.
	Delay time.Duration

	// Calls tracks the number of SendQuestion invocations.
	Calls int

	// CallerIdentities records the callerIdentity of every call.
	CallerIdentities []string

	// ConversationIDs records the conversationID of every call.
	ConversationIDs []string
}

func (m *MockChatClient) SendQuestion(ctx context.Context, question, callerIdentity, conversationID string) (*chat.Answer, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.CallerIdentities = append(m.CallerIdentities, callerIdentity)
	m.ConversationIDs = append(m.ConversationIDs, conversationID)

	if m.Err != nil {
		return nil, m.Err
	}
	if err, ok := m.Errors[question]; ok {
		return nil, err
	}

	resp, ok := m.Responses[question]
	if !ok {
		resp = m.DefaultResponse
		if resp == "" {
			resp = "mock response"
		}
	}

	return &chat.Answer{
		Content:        resp,
		ResponseTime:   m.Delay,
		ConversationID: "conv-mock",
		MessageID:      "msg-mock",
	}, nil
}
