// Package agent holds what the hosted agent adapters share: the upstream
// error types and the request shape of a user message.
package agent

import (
	"errors"
	"fmt"
)

// ErrUpstreamProtocol matches every *UpstreamProtocolError via errors.Is.
var ErrUpstreamProtocol = errors.New("upstream protocol error")

// ErrUnsupported is returned by adapters for operations their backend lacks,
// e.g. run polling on an adapter that always answers inline.
var ErrUnsupported = errors.New("operation not supported by agent adapter")

// UpstreamProtocolError describes a non-success status, an unparsable body or
// a transport failure while talking to the agent service.
type UpstreamProtocolError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamProtocolError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: agent returned status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: agent returned status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": upstream protocol error"
	}
}

func (e *UpstreamProtocolError) Unwrap() error { return e.Err }

func (e *UpstreamProtocolError) Is(target error) bool {
	return target == ErrUpstreamProtocol
}

// MaxErrorBody caps how much of an upstream body is kept in errors and logs.
const MaxErrorBody = 512

// TruncateBody shortens an upstream body for inclusion in an error.
func TruncateBody(body []byte) string {
	if len(body) <= MaxErrorBody {
		return string(body)
	}
	return string(body[:MaxErrorBody]) + "…"
}

// UserMessage is the message payload understood by the agent service.
type UserMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageRequest wraps one or more messages for submission.
type MessageRequest struct {
	Messages []UserMessage `json:"messages"`
}

// NewUserRequest builds a single user-message request.
func NewUserRequest(content string) MessageRequest {
	return MessageRequest{Messages: []UserMessage{{Role: "user", Content: content}}}
}
