package analysis

// CoerceAnnotatedText normalizes a value destined for an AnnotatedText field.
// A bare string becomes text without sources; an object with a string "text"
// and an optional "source_ids" string list passes through. Everything else
// fails with a *CoercionError. Applying it to its own output is a no-op.
func CoerceAnnotatedText(v any) (AnnotatedText, error) {
	return coerceAt("", v)
}

func coerceAt(path string, v any) (AnnotatedText, error) {
	switch t := v.(type) {
	case string:
		return AnnotatedText{Text: t}, nil
	case AnnotatedText:
		return t, nil
	case *AnnotatedText:
		if t == nil {
			return AnnotatedText{}, &CoercionError{Path: path, Got: "null"}
		}
		return *t, nil
	case map[string]any:
		text, ok := t["text"].(string)
		if !ok {
			return AnnotatedText{}, &CoercionError{Path: path, Got: "object without string text"}
		}
		ids, ok := stringList(t["source_ids"])
		if !ok {
			return AnnotatedText{}, &CoercionError{Path: path, Got: "object with non-string source_ids"}
		}
		return AnnotatedText{Text: text, SourceIDs: ids}, nil
	default:
		return AnnotatedText{}, &CoercionError{Path: path, Got: kindOf(v)}
	}
}

// stringList accepts nil (no list), []string or a []any of strings.
func stringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
