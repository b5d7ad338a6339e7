package store

import (
	"errors"
	"time"

	"github.com/OFFIS-RIT/proteus/backend/pkg/analysis"
)

// ErrNotFound is returned by Get before any result was stored.
var ErrNotFound = errors.New("no analysis result available")

// Snapshot is one stored result together with where it came from.
type Snapshot struct {
	Result     *analysis.AnalysisResult
	Provenance analysis.Provenance
	StoredAt   time.Time
}

// Clone returns a copy of s whose result shares no memory with the stored one.
func (s Snapshot) Clone() Snapshot {
	s.Result = s.Result.Clone()
	return s
}

// ResultStorage holds the latest validated analysis result.
// Put replaces the stored snapshot wholesale; readers observe either the
// previous or the new snapshot, never a mixture. No history is kept.
type ResultStorage interface {
	Put(result *analysis.AnalysisResult, provenance analysis.Provenance) Snapshot
	Get() (Snapshot, error)
}
