package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator"
)

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

func getValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// ParseCandidate decodes raw JSON and validates it. Anything that is not a
// JSON object is rejected with a *ValidationError.
func ParseCandidate(raw []byte) (*AnalysisResult, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &ValidationError{Issues: []FieldIssue{{Reason: "invalid JSON: " + err.Error()}}}
	}
	candidate, ok := doc.(map[string]any)
	if !ok {
		return nil, &ValidationError{Issues: []FieldIssue{{Reason: "expected a JSON object, got " + kindOf(doc)}}}
	}
	return Validate(candidate)
}

// Validate coerces every annotated-text field of candidate, checks the graph
// invariants and the confidence bounds, and builds an AnalysisResult. It is
// all-or-nothing: on any issue it returns a *ValidationError listing all of them.
func Validate(candidate map[string]any) (*AnalysisResult, error) {
	if candidate == nil {
		return nil, &ValidationError{Issues: []FieldIssue{{Reason: "expected a JSON object, got null"}}}
	}

	d := &decoder{}
	result := d.root(candidate)
	d.checkStruct(result)
	d.checkGraph(&result.Graph)

	if len(d.issues) > 0 {
		return nil, &ValidationError{Issues: d.issues, causes: d.causes}
	}
	return result, nil
}

type decoder struct {
	issues []FieldIssue
	causes []error
}

func (d *decoder) add(path, reason string) {
	d.issues = append(d.issues, FieldIssue{Path: path, Reason: reason})
}

// addOnce skips paths that already carry an issue.
func (d *decoder) addOnce(path, reason string) {
	for _, issue := range d.issues {
		if issue.Path == path {
			return
		}
	}
	d.add(path, reason)
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func index(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func (d *decoder) object(path string, m map[string]any, key string) map[string]any {
	v, ok := m[key]
	if !ok {
		d.add(join(path, key), "field required")
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		d.add(join(path, key), "expected object, got "+kindOf(v))
		return nil
	}
	return obj
}

func (d *decoder) list(path string, m map[string]any, key string) []any {
	v, ok := m[key]
	if !ok {
		d.add(join(path, key), "field required")
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		d.add(join(path, key), "expected list, got "+kindOf(v))
		return nil
	}
	return items
}

func (d *decoder) requiredString(path string, m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		d.add(join(path, key), "field required")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.add(join(path, key), "expected string, got "+kindOf(v))
		return ""
	}
	return s
}

func (d *decoder) optionalString(path string, m map[string]any, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		d.add(join(path, key), "expected string, got "+kindOf(v))
		return nil
	}
	return &s
}

func (d *decoder) requiredBool(path string, m map[string]any, key string) bool {
	v, ok := m[key]
	if !ok {
		d.add(join(path, key), "field required")
		return false
	}
	b, ok := v.(bool)
	if !ok {
		d.add(join(path, key), "expected boolean, got "+kindOf(v))
	}
	return b
}

func (d *decoder) optionalNumber(path string, m map[string]any, key string) *float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		return &n
	case json.Number:
		f, err := n.Float64()
		if err == nil {
			return &f
		}
	}
	d.add(join(path, key), "expected number, got "+kindOf(v))
	return nil
}

func (d *decoder) sourceIDs(path string, m map[string]any) []string {
	ids, ok := stringList(m["source_ids"])
	if !ok {
		d.add(join(path, "source_ids"), "expected list of strings")
		return nil
	}
	return ids
}

func (d *decoder) coerce(path string, v any) (AnnotatedText, bool) {
	text, err := coerceAt(path, v)
	if err != nil {
		var ce *CoercionError
		if errors.As(err, &ce) {
			d.add(path, strings.TrimPrefix(ce.Error(), path+": "))
		}
		d.causes = append(d.causes, err)
		return AnnotatedText{}, false
	}
	return text, true
}

func (d *decoder) requiredText(path string, m map[string]any, key string) AnnotatedText {
	v, ok := m[key]
	if !ok {
		d.add(join(path, key), "field required")
		return AnnotatedText{}
	}
	text, _ := d.coerce(join(path, key), v)
	return text
}

func (d *decoder) optionalText(path string, m map[string]any, key string) *AnnotatedText {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	text, ok := d.coerce(join(path, key), v)
	if !ok {
		return nil
	}
	return &text
}

func (d *decoder) root(m map[string]any) *AnalysisResult {
	r := &AnalysisResult{}
	r.AnalysisSummary = d.requiredText("", m, "analysis_summary")
	if ep := d.object("", m, "edited_protein"); ep != nil {
		r.EditedProtein = d.editedProtein("edited_protein", ep)
	}
	if g := d.object("", m, "graph"); g != nil {
		r.Graph = d.graph("graph", g)
	}
	return r
}

func (d *decoder) editedProtein(path string, m map[string]any) EditedProteinSummary {
	p := EditedProteinSummary{
		ID:          d.requiredString(path, m, "id"),
		Label:       d.requiredString(path, m, "label"),
		Description: d.optionalText(path, m, "description"),
		Confidence:  d.optionalNumber(path, m, "confidence"),
	}
	mutations := d.list(path, m, "mutations")
	p.Mutations = make([]AnnotatedText, 0, len(mutations))
	for i, raw := range mutations {
		if text, ok := d.coerce(index(join(path, "mutations"), i), raw); ok {
			p.Mutations = append(p.Mutations, text)
		}
	}
	return p
}

func (d *decoder) graph(path string, m map[string]any) InteractionGraph {
	var g InteractionGraph

	nodesPath := join(path, "nodes")
	for i, raw := range d.list(path, m, "nodes") {
		obj, ok := raw.(map[string]any)
		if !ok {
			d.add(index(nodesPath, i), "expected object, got "+kindOf(raw))
			continue
		}
		g.Nodes = append(g.Nodes, d.node(index(nodesPath, i), obj))
	}

	edgesPath := join(path, "edges")
	for i, raw := range d.list(path, m, "edges") {
		obj, ok := raw.(map[string]any)
		if !ok {
			d.add(index(edgesPath, i), "expected object, got "+kindOf(raw))
			continue
		}
		g.Edges = append(g.Edges, d.edge(index(edgesPath, i), obj))
	}

	if g.Nodes == nil {
		g.Nodes = []GraphNode{}
	}
	if g.Edges == nil {
		g.Edges = []GraphEdge{}
	}
	return g
}

func (d *decoder) node(path string, m map[string]any) GraphNode {
	return GraphNode{
		ID:                   d.requiredString(path, m, "id"),
		Label:                d.requiredString(path, m, "label"),
		Type:                 NodeType(d.requiredString(path, m, "type")),
		IsEdited:             d.requiredBool(path, m, "isEdited"),
		Notes:                d.optionalText(path, m, "notes"),
		RelationshipToEdited: d.optionalText(path, m, "relationship_to_edited"),
		RoleSummary:          d.optionalText(path, m, "role_summary"),
		SourceIDs:            d.sourceIDs(path, m),
	}
}

func (d *decoder) edge(path string, m map[string]any) GraphEdge {
	return GraphEdge{
		Source:      d.requiredString(path, m, "source"),
		Target:      d.requiredString(path, m, "target"),
		Interaction: d.requiredString(path, m, "interaction"),
		Mechanism:   d.optionalString(path, m, "mechanism"),
		Explanation: d.optionalString(path, m, "explanation"),
		SourceIDs:   d.sourceIDs(path, m),
	}
}

func (d *decoder) checkStruct(r *AnalysisResult) {
	err := getValidator().Struct(r)
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		d.add("", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		d.addOnce(fieldPath(fe.Namespace()), reasonFor(fe))
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx != -1 {
		return namespace[idx+1:]
	}
	return namespace
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "max", "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("at most %s nodes allowed, got %d", fe.Param(), reflect.ValueOf(fe.Value()).Len())
		}
		return fmt.Sprintf("must be between 0 and 1, got %v", fe.Value())
	default:
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
}

func (d *decoder) checkGraph(g *InteractionGraph) {
	known := make(map[string]bool, len(g.Nodes))
	for i, node := range g.Nodes {
		if node.ID == "" {
			continue
		}
		if known[node.ID] {
			d.add(index("graph.nodes", i)+".id", fmt.Sprintf("duplicate node id %q", node.ID))
			continue
		}
		known[node.ID] = true
	}

	for i, edge := range g.Edges {
		var unknown []string
		for _, end := range []string{edge.Source, edge.Target} {
			if end != "" && !known[end] {
				unknown = append(unknown, end)
			}
		}
		if len(unknown) == 0 {
			continue
		}
		d.add(index("graph.edges", i), fmt.Sprintf(
			"edge %s→%s references unknown node %s",
			edge.Source, edge.Target, strings.Join(unknown, ", "),
		))
	}
}
