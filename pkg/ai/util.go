package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON is returned when a text contains nothing that looks like JSON.
var ErrNoJSON = errors.New("no json found in text")

func stripDuplicateLeadingBrace(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		rest := strings.TrimSpace(s[1:])
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}

// StripCodeFence removes a surrounding markdown code fence such as
// ```json ... ``` that models like to wrap structured answers in.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	idx := strings.Index(s, "\n")
	if idx == -1 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[idx+1:]
	if end := strings.LastIndex(s, "```"); end != -1 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// sliceJSONSpan cuts the outermost {...} or [...] span out of surrounding prose.
func sliceJSONSpan(s string) string {
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start != -1 && end > start {
		return s[start : end+1]
	}
	start = strings.IndexByte(s, '[')
	end = strings.LastIndexByte(s, ']')
	if start != -1 && end > start {
		return s[start : end+1]
	}
	return ""
}

// GenerateSchema creates a JSON Schema from the given Go type.
// It uses reflection to inspect the type structure and generates
// a schema suitable for use with AI structured output.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	v := reflect.New(t).Interface()
	return reflector.Reflect(v)
}

// RepairJSON turns model output into a syntactically valid JSON document.
// It strips code fences and surrounding prose, unwraps double-encoded
// strings and finally falls back to jsonrepair for malformed input.
//
// Example:
//
//	RepairJSON("```json\n{\"a\": 1}\n```")   // {"a": 1}
//	RepairJSON(`"{\"a\": 1}"`)                // {"a": 1}
//	RepairJSON(`Result: {a: 1,}`)             // {"a":1}
func RepairJSON(input string) (string, error) {
	input = StripCodeFence(input)
	if input == "" {
		return "", ErrNoJSON
	}

	if json.Valid([]byte(input)) {
		var asString string
		if err := json.Unmarshal([]byte(input), &asString); err != nil {
			return input, nil
		}
		input = StripCodeFence(asString)
		if json.Valid([]byte(input)) {
			return input, nil
		}
	}

	span := sliceJSONSpan(input)
	if span == "" {
		return "", ErrNoJSON
	}
	if json.Valid([]byte(span)) {
		return span, nil
	}

	span = stripDuplicateLeadingBrace(span)
	repaired, err := jsonrepair.JSONRepair(span)
	if err != nil {
		return "", fmt.Errorf("json repair failed: %w", err)
	}
	if !json.Valid([]byte(repaired)) {
		return "", fmt.Errorf("json repair produced invalid output")
	}
	return repaired, nil
}
