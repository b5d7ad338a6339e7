package reconcile

import (
	"strings"

	"github.com/OFFIS-RIT/proteus/backend/pkg/ai"
	"github.com/tidwall/gjson"
)

// Strategy names the extraction path that produced a candidate.
type Strategy string

const (
	StrategyTopLevel      Strategy = "top-level"
	StrategyMessageWalk   Strategy = "message-walk"
	StrategyDeepSearch    Strategy = "deep-search"
	StrategyAssistantText Strategy = "assistant-text"
)

var (
	assistantRoles       = []string{"assistant", "agent", "model"}
	assistantTypeMarkers = []string{"assistant", "final", "output"}
	messageTypeKeys      = []string{"message_type", "messageType", "type"}
	jsonKeys             = []string{"json", "json_object"}
	mimeKeys             = []string{"mime_type", "mimeType", "media_type", "mediaType", "content_type", "contentType", "type"}
	nestedKeys           = []string{"data", "value", "content"}
	runIDKeys            = []string{"run_id", "id", "message_id"}
)

// MatchesAnalysisShape reports whether v looks like an analysis result:
// graph is an object holding nodes and edges lists, analysis_summary is a
// string or an object with non-empty text and edited_protein is an object.
func MatchesAnalysisShape(v gjson.Result) bool {
	if !v.IsObject() {
		return false
	}
	graph := v.Get("graph")
	if !graph.IsObject() || !graph.Get("nodes").IsArray() || !graph.Get("edges").IsArray() {
		return false
	}
	summary := v.Get("analysis_summary")
	switch {
	case summary.Type == gjson.String:
	case summary.IsObject():
		text := summary.Get("text")
		if text.Type != gjson.String || text.String() == "" {
			return false
		}
	default:
		return false
	}
	return v.Get("edited_protein").IsObject()
}

// ExtractInline looks for an analysis in a submission response without
// polling: the document itself or, failing that, its assistant messages.
func ExtractInline(doc gjson.Result) (gjson.Result, Strategy, bool) {
	if MatchesAnalysisShape(doc) {
		return doc, StrategyTopLevel, true
	}
	if found, ok := walkMessages(doc); ok {
		return found, StrategyMessageWalk, true
	}
	return gjson.Result{}, "", false
}

// Extract runs every strategy against a completed run's messages and returns
// the first candidate found. Candidates are taken in document order, so when
// several objects match the first one wins. Parse failures along the way are
// ignored; only exhausting all strategies yields ErrNoAnalysisFound.
func Extract(doc gjson.Result) (gjson.Result, Strategy, error) {
	if found, strategy, ok := ExtractInline(doc); ok {
		return found, strategy, nil
	}
	if found, ok := Find(doc, MatchesAnalysisShape); ok {
		return found, StrategyDeepSearch, nil
	}
	if found, ok := parseAssistantText(doc); ok {
		return found, StrategyAssistantText, nil
	}
	return gjson.Result{}, "", ErrNoAnalysisFound
}

// RunIdentifier returns the run id of a submission envelope, looking at the
// top level first and under data second.
func RunIdentifier(doc gjson.Result) (string, bool) {
	for _, scope := range []gjson.Result{doc, doc.Get("data")} {
		if !scope.IsObject() {
			continue
		}
		for _, key := range runIDKeys {
			v := scope.Get(key)
			if v.Type != gjson.String && v.Type != gjson.Number {
				continue
			}
			if id := strings.TrimSpace(v.String()); id != "" {
				return id, true
			}
		}
	}
	return "", false
}

// Messages returns the message list of an envelope. Lists are accepted at the
// top level, under messages, under data and under data.messages.
func Messages(doc gjson.Result) []gjson.Result {
	for _, candidate := range []gjson.Result{doc, doc.Get("messages"), doc.Get("data"), doc.Get("data.messages")} {
		if candidate.IsArray() {
			return candidate.Array()
		}
	}
	return nil
}

// IsAssistantMessage reports whether msg was written by the agent.
func IsAssistantMessage(msg gjson.Result) bool {
	if !msg.IsObject() {
		return false
	}
	role := strings.ToLower(strings.TrimSpace(msg.Get("role").String()))
	for _, r := range assistantRoles {
		if role == r {
			return true
		}
	}
	for _, key := range messageTypeKeys {
		token := strings.ToLower(msg.Get(key).String())
		if token == "" {
			continue
		}
		for _, marker := range assistantTypeMarkers {
			if strings.Contains(token, marker) {
				return true
			}
		}
	}
	return false
}

func walkMessages(doc gjson.Result) (gjson.Result, bool) {
	msgs := Messages(doc)
	for i := len(msgs) - 1; i >= 0; i-- {
		if !IsAssistantMessage(msgs[i]) {
			continue
		}
		if found, ok := searchContent(msgs[i].Get("content")); ok {
			return found, true
		}
		// Some envelopes carry the payload next to content rather than in it.
		if found, ok := searchContent(msgs[i]); ok {
			return found, true
		}
	}
	return gjson.Result{}, false
}

func searchContent(v gjson.Result) (gjson.Result, bool) {
	switch {
	case v.IsArray():
		for _, elem := range v.Array() {
			if found, ok := searchContent(elem); ok {
				return found, true
			}
		}
	case v.IsObject():
		if MatchesAnalysisShape(v) {
			return v, true
		}
		for _, key := range jsonKeys {
			if c := v.Get(key); c.IsObject() && MatchesAnalysisShape(c) {
				return c, true
			}
		}
		for _, key := range jsonKeys {
			if c := v.Get(key); c.Type == gjson.String {
				if found, ok := parseShaped(c.String()); ok {
					return found, true
				}
			}
		}
		if declaresJSON(v) {
			if found, ok := parseShaped(v.Get("text").String()); ok {
				return found, true
			}
		}
		for _, key := range nestedKeys {
			c := v.Get(key)
			if c.Type == gjson.String {
				if found, ok := parseShaped(c.String()); ok {
					return found, true
				}
				continue
			}
			if found, ok := searchContent(c); ok {
				return found, true
			}
		}
	case v.Type == gjson.String:
		return parseShaped(v.String())
	}
	return gjson.Result{}, false
}

func declaresJSON(block gjson.Result) bool {
	for _, key := range mimeKeys {
		if strings.Contains(strings.ToLower(block.Get(key).String()), "json") {
			return true
		}
	}
	return false
}

// parseEmbedded parses JSON carried inside a string, tolerating code fences,
// surrounding prose and double encoding.
func parseEmbedded(s string) (gjson.Result, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return gjson.Result{}, false
	}
	repaired, err := ai.RepairJSON(s)
	if err != nil {
		return gjson.Result{}, false
	}
	return gjson.Parse(repaired), true
}

func parseShaped(s string) (gjson.Result, bool) {
	parsed, ok := parseEmbedded(s)
	if !ok || (!parsed.IsObject() && !parsed.IsArray()) {
		return gjson.Result{}, false
	}
	if MatchesAnalysisShape(parsed) {
		return parsed, true
	}
	return searchContent(parsed)
}

// parseAssistantText is the last resort: the newest assistant message whose
// text parses to an object is accepted without a shape check.
func parseAssistantText(doc gjson.Result) (gjson.Result, bool) {
	msgs := Messages(doc)
	for i := len(msgs) - 1; i >= 0; i-- {
		if !IsAssistantMessage(msgs[i]) {
			continue
		}
		text, ok := AssistantText(msgs[i])
		if !ok {
			continue
		}
		if parsed, ok := parseEmbedded(text); ok && parsed.IsObject() {
			return parsed, true
		}
	}
	return gjson.Result{}, false
}
