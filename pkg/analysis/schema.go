package analysis

import (
	"sync"

	"github.com/OFFIS-RIT/proteus/backend/pkg/ai"
)

var resultSchema = sync.OnceValue(func() any {
	return ai.GenerateSchema(&AnalysisResult{})
})

// Schema returns the JSON schema of the canonical AnalysisResult shape. Agents
// are told to answer in this shape; the validator additionally accepts bare
// strings wherever an AnnotatedText is expected.
func Schema() any {
	return resultSchema()
}
