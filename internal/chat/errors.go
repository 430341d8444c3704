package chat

import "fmt"

// TimeoutError indicates the service did not answer within the call timeout.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("chat request timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ConnectionError indicates the service could not be reached.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("chat connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// HTTPStatusError indicates the service answered with a non-success status.
type HTTPStatusError struct {
	Code    int
	Message string
	Err     error
}

func (e *HTTPStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("chat request failed with status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("chat request failed with status %d", e.Code)
}

func (e *HTTPStatusError) Unwrap() error { return e.Err }
