package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldIssue names one offending field and why it was rejected.
type FieldIssue struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ValidationError reports every issue found in a candidate. It unwraps to the
// CoercionErrors raised while decoding annotated-text fields.
type ValidationError struct {
	Issues []FieldIssue

	causes []error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		if issue.Path == "" {
			parts = append(parts, issue.Reason)
			continue
		}
		parts = append(parts, issue.Path+": "+issue.Reason)
	}
	return "analysis validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error {
	return e.causes
}

// HasPath reports whether an issue was recorded for path.
func (e *ValidationError) HasPath(path string) bool {
	for _, issue := range e.Issues {
		if issue.Path == path {
			return true
		}
	}
	return false
}

// CoercionError is returned when a value cannot be turned into an AnnotatedText.
type CoercionError struct {
	Path string
	Got  string
}

func (e *CoercionError) Error() string {
	msg := fmt.Sprintf("expected string or {text, source_ids} object, got %s", e.Got)
	if e.Path == "" {
		return msg
	}
	return e.Path + ": " + msg
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
