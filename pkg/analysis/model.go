// Package analysis holds the protein-edit analysis domain model and the
// validation that turns an untrusted candidate document into an AnalysisResult.
package analysis

// MaxGraphNodes bounds the size of an interaction graph.
const MaxGraphNodes = 10

// AnnotatedText is a piece of text paired with the ids of the sources backing it.
// A nil SourceIDs slice means no sources were given.
type AnnotatedText struct {
	Text      string   `json:"text"`
	SourceIDs []string `json:"source_ids,omitempty"`
}

// NodeType classifies a graph node.
type NodeType string

const (
	NodeProtein NodeType = "protein"
	NodeDrug    NodeType = "drug"
	NodeEntity  NodeType = "entity"
)

type GraphNode struct {
	ID                   string         `json:"id" validate:"required" jsonschema:"minLength=1"`
	Label                string         `json:"label"`
	Type                 NodeType       `json:"type" validate:"oneof=protein drug entity" jsonschema:"enum=protein,enum=drug,enum=entity"`
	IsEdited             bool           `json:"isEdited"`
	Notes                *AnnotatedText `json:"notes,omitempty"`
	RelationshipToEdited *AnnotatedText `json:"relationship_to_edited,omitempty"`
	RoleSummary          *AnnotatedText `json:"role_summary,omitempty"`
	SourceIDs            []string       `json:"source_ids,omitempty"`
}

type GraphEdge struct {
	Source      string   `json:"source" validate:"required"`
	Target      string   `json:"target" validate:"required"`
	Interaction string   `json:"interaction"`
	Mechanism   *string  `json:"mechanism,omitempty"`
	Explanation *string  `json:"explanation,omitempty"`
	SourceIDs   []string `json:"source_ids,omitempty"`
}

// InteractionGraph is the protein interaction neighbourhood of the edited protein.
// Node ids are unique and every edge endpoint names a node of the same graph.
type InteractionGraph struct {
	Nodes []GraphNode `json:"nodes" validate:"max=10,dive" jsonschema:"maxItems=10"`
	Edges []GraphEdge `json:"edges" validate:"dive"`
}

type EditedProteinSummary struct {
	ID          string          `json:"id" validate:"required" jsonschema:"minLength=1"`
	Label       string          `json:"label"`
	Description *AnnotatedText  `json:"description,omitempty"`
	Mutations   []AnnotatedText `json:"mutations"`
	Confidence  *float64        `json:"confidence,omitempty" validate:"omitempty,min=0,max=1" jsonschema:"minimum=0,maximum=1"`
}

// AnalysisResult is the validated answer of an analysis run. Values are only
// produced by Validate and must be treated as read-only afterwards.
type AnalysisResult struct {
	AnalysisSummary AnnotatedText        `json:"analysis_summary"`
	EditedProtein   EditedProteinSummary `json:"edited_protein"`
	Graph           InteractionGraph     `json:"graph"`
}

// Provenance records which path produced a stored result.
type Provenance string

const (
	ProvenanceAgentSync      Provenance = "agent-sync"
	ProvenanceAgentPolled    Provenance = "agent-polled"
	ProvenanceExternalSubmit Provenance = "external-submit"
)

// Clone returns a deep copy of r.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := &AnalysisResult{
		AnalysisSummary: r.AnalysisSummary.clone(),
		EditedProtein: EditedProteinSummary{
			ID:          r.EditedProtein.ID,
			Label:       r.EditedProtein.Label,
			Description: cloneTextPtr(r.EditedProtein.Description),
			Confidence:  clonePtr(r.EditedProtein.Confidence),
		},
		Graph: InteractionGraph{
			Nodes: make([]GraphNode, len(r.Graph.Nodes)),
			Edges: make([]GraphEdge, len(r.Graph.Edges)),
		},
	}
	if r.EditedProtein.Mutations != nil {
		out.EditedProtein.Mutations = make([]AnnotatedText, len(r.EditedProtein.Mutations))
		for i, m := range r.EditedProtein.Mutations {
			out.EditedProtein.Mutations[i] = m.clone()
		}
	}
	for i, n := range r.Graph.Nodes {
		n.Notes = cloneTextPtr(n.Notes)
		n.RelationshipToEdited = cloneTextPtr(n.RelationshipToEdited)
		n.RoleSummary = cloneTextPtr(n.RoleSummary)
		n.SourceIDs = cloneStrings(n.SourceIDs)
		out.Graph.Nodes[i] = n
	}
	for i, e := range r.Graph.Edges {
		e.Mechanism = clonePtr(e.Mechanism)
		e.Explanation = clonePtr(e.Explanation)
		e.SourceIDs = cloneStrings(e.SourceIDs)
		out.Graph.Edges[i] = e
	}
	return out
}

func (t AnnotatedText) clone() AnnotatedText {
	t.SourceIDs = cloneStrings(t.SourceIDs)
	return t
}

func cloneTextPtr(t *AnnotatedText) *AnnotatedText {
	if t == nil {
		return nil
	}
	c := t.clone()
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
