package reconcile

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ContentKind tags the shape a message's content field arrived in.
type ContentKind int

const (
	ContentEmpty ContentKind = iota
	ContentText
	ContentBlocks
	ContentObject
)

func (k ContentKind) String() string {
	switch k {
	case ContentText:
		return "text"
	case ContentBlocks:
		return "blocks"
	case ContentObject:
		return "object"
	default:
		return "empty"
	}
}

// textKeys are tried in order on a block or object to find its text.
var textKeys = []string{"text", "value", "content"}

// Content is message content decoded once at the boundary. Exactly one of
// Text, Blocks or Object is meaningful, selected by Kind.
type Content struct {
	Kind   ContentKind
	Text   string
	Blocks []gjson.Result
	Object gjson.Result
}

// DecodeContent classifies a raw content value.
func DecodeContent(v gjson.Result) Content {
	switch {
	case v.Type == gjson.String:
		return Content{Kind: ContentText, Text: v.String()}
	case v.IsArray():
		return Content{Kind: ContentBlocks, Blocks: v.Array()}
	case v.IsObject():
		return Content{Kind: ContentObject, Object: v}
	default:
		return Content{Kind: ContentEmpty}
	}
}

// PlainText reduces the content to a single trimmed string. It reports false
// when nothing usable was found.
func (c Content) PlainText() (string, bool) {
	var text string
	switch c.Kind {
	case ContentText:
		text = strings.TrimSpace(c.Text)
	case ContentBlocks:
		parts := make([]string, 0, len(c.Blocks))
		for _, block := range c.Blocks {
			var part string
			if block.Type == gjson.String {
				part = strings.TrimSpace(block.String())
			} else if block.IsObject() {
				part, _ = objectText(block)
			}
			if part != "" {
				parts = append(parts, part)
			}
		}
		text = strings.Join(parts, "\n")
	case ContentObject:
		text, _ = objectText(c.Object)
	}
	return text, text != ""
}

func objectText(obj gjson.Result) (string, bool) {
	for _, key := range textKeys {
		v := obj.Get(key)
		if !v.Exists() {
			continue
		}
		if text, ok := DecodeContent(v).PlainText(); ok {
			return text, true
		}
	}
	return "", false
}

// NormalizeContent flattens a string, a list of blocks or a single object
// into plain text.
func NormalizeContent(v gjson.Result) (string, bool) {
	return DecodeContent(v).PlainText()
}

// AssistantText extracts the text of one message. Envelopes of the form
// {"message": {...}} and {"data": {...}} are unwrapped when the message has
// no usable content of its own.
func AssistantText(msg gjson.Result) (string, bool) {
	if !msg.IsObject() {
		return NormalizeContent(msg)
	}
	if text, ok := NormalizeContent(msg.Get("content")); ok {
		return text, true
	}
	for _, key := range []string{"message", "data"} {
		nested := msg.Get(key)
		if !nested.IsObject() {
			continue
		}
		if text, ok := AssistantText(nested); ok {
			return text, true
		}
	}
	return "", false
}
