package chat

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestNewOpenAIClientDefaults(t *testing.T) {
	client := NewOpenAIClient()
	assert.Empty(t, client.model)
	assert.Equal(t, 0.0, client.temperature)
	assert.Equal(t, 60*time.Second, client.timeout)
}

func TestNewOpenAIClientWithAllOptions(t *testing.T) {
	client := NewOpenAIClient(
		WithBaseURL("https://api.example.com/v1"),
		WithAPIKey("sk-test"),
		WithModel("gpt-4"),
		WithTemperature(0.5),
		WithSystemMessage("You are a helpdesk assistant."),
		WithTimeout(10*time.Second),
	)
	assert.Equal(t, "gpt-4", client.model)
	assert.Equal(t, 0.5, client.temperature)
	assert.Equal(t, "You are a helpdesk assistant.", client.systemMessage)
	assert.Equal(t, 10*time.Second, client.timeout)
}

type fakeNetError struct {
	timeout bool
}

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return false }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want any
	}{
		{
			name: "deadline exceeded maps to timeout",
			err:  context.DeadlineExceeded,
			want: &TimeoutError{},
		},
		{
			name: "net timeout maps to timeout",
			err:  &fakeNetError{timeout: true},
			want: &TimeoutError{},
		},
		{
			name: "net failure maps to connection error",
			err:  &fakeNetError{timeout: false},
			want: &ConnectionError{},
		},
		{
			name: "api error maps to http status error",
			err:  &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"},
			want: &HTTPStatusError{},
		},
		{
			name: "unknown error maps to connection error",
			err:  errors.New("boom"),
			want: &ConnectionError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			switch tt.want.(type) {
			case *TimeoutError:
				var te *TimeoutError
				assert.True(t, errors.As(got, &te))
			case *ConnectionError:
				var ce *ConnectionError
				assert.True(t, errors.As(got, &ce))
			case *HTTPStatusError:
				var he *HTTPStatusError
				assert.True(t, errors.As(got, &he))
				assert.Equal(t, 429, he.Code)
			}
		})
	}
}

func TestHTTPStatusErrorMessage(t *testing.T) {
	err := &HTTPStatusError{Code: 503, Message: "unavailable"}
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "unavailable")

	bare := &HTTPStatusError{Code: 500}
	assert.Contains(t, bare.Error(), "500")
}

var _ net.Error = (*fakeNetError)(nil)
