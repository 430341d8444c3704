package chat

import "time"

// clientConfig holds configuration for a chat client.
type clientConfig struct {
	baseURL       string
	apiKey        string
	model         string
	temperature   float64
	systemMessage string
	timeout       time.Duration
}

// Option is a functional option for configuring a chat client.
type Option func(*clientConfig)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) {
		c.apiKey = key
	}
}

// WithModel sets the model name for requests.
func WithModel(model string) Option {
	return func(c *clientConfig) {
		c.model = model
	}
}

// WithTemperature sets the temperature for requests.
func WithTemperature(temp float64) Option {
	return func(c *clientConfig) {
		c.temperature = temp
	}
}

// WithSystemMessage sets the system prompt sent with every question.
func WithSystemMessage(msg string) Option {
	return func(c *clientConfig) {
		c.systemMessage = msg
	}
}

// WithTimeout sets the per-call timeout. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}
