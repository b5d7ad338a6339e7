package memory

import (
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/proteus/backend/pkg/analysis"
	"github.com/OFFIS-RIT/proteus/backend/pkg/store"
)

// LatestResultSlot is a single-slot, last-writer-wins result store backed by
// one atomic pointer swap.
type LatestResultSlot struct {
	current atomic.Pointer[store.Snapshot]
	now     func() time.Time
}

// NewLatestResultSlot creates an empty slot.
func NewLatestResultSlot() *LatestResultSlot {
	return &LatestResultSlot{now: time.Now}
}

// Put stores result, replacing whatever was there before. A nil result is ignored.
func (s *LatestResultSlot) Put(result *analysis.AnalysisResult, provenance analysis.Provenance) store.Snapshot {
	if result == nil {
		return store.Snapshot{}
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	snap := &store.Snapshot{
		Result:     result,
		Provenance: provenance,
		StoredAt:   now().UTC(),
	}
	s.current.Store(snap)
	return *snap
}

// Get returns the latest snapshot or store.ErrNotFound.
func (s *LatestResultSlot) Get() (store.Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return store.Snapshot{}, store.ErrNotFound
	}
	return *snap, nil
}

var _ store.ResultStorage = (*LatestResultSlot)(nil)
