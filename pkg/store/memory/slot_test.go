package memory

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/proteus/backend/pkg/analysis"
	"github.com/OFFIS-RIT/proteus/backend/pkg/store"
)

func resultNamed(id string) *analysis.AnalysisResult {
	return &analysis.AnalysisResult{
		AnalysisSummary: analysis.AnnotatedText{Text: "summary " + id},
		EditedProtein:   analysis.EditedProteinSummary{ID: id, Label: id},
		Graph:           analysis.InteractionGraph{Nodes: []analysis.GraphNode{}, Edges: []analysis.GraphEdge{}},
	}
}

func TestGetBeforePut(t *testing.T) {
	slot := NewLatestResultSlot()
	if _, err := slot.Get(); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestZeroValueSlotIsUsable(t *testing.T) {
	var slot LatestResultSlot
	if _, err := slot.Get(); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	slot.Put(resultNamed("X"), analysis.ProvenanceAgentSync)
	if _, err := slot.Get(); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestLastWriterWins(t *testing.T) {
	slot := NewLatestResultSlot()
	provenances := []analysis.Provenance{
		analysis.ProvenanceAgentSync,
		analysis.ProvenanceAgentPolled,
		analysis.ProvenanceExternalSubmit,
	}

	const n = 5
	for i := 1; i <= n; i++ {
		slot.Put(resultNamed(fmt.Sprintf("P%d", i)), provenances[i%len(provenances)])
	}

	snap, err := slot.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snap.Result.EditedProtein.ID != "P5" {
		t.Fatalf("Get() returned %q, want P5", snap.Result.EditedProtein.ID)
	}
	if snap.Provenance != provenances[n%len(provenances)] {
		t.Fatalf("Get() provenance = %q", snap.Provenance)
	}
	if snap.StoredAt.IsZero() {
		t.Fatal("StoredAt not set")
	}
}

func TestPutNilIgnored(t *testing.T) {
	slot := NewLatestResultSlot()
	slot.Put(resultNamed("P1"), analysis.ProvenanceAgentSync)
	slot.Put(nil, analysis.ProvenanceAgentPolled)

	snap, err := slot.Get()
	if err != nil || snap.Result.EditedProtein.ID != "P1" {
		t.Fatalf("nil Put should not replace the slot: %+v %v", snap, err)
	}
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	slot := NewLatestResultSlot()
	slot.Put(resultNamed("P0"), analysis.ProvenanceAgentSync)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				slot.Put(resultNamed(fmt.Sprintf("W%d-%d", w, i)), analysis.ProvenanceAgentPolled)
			}
		}(w)
	}

	errs := make(chan error, 4)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				snap, err := slot.Get()
				if err != nil {
					errs <- err
					return
				}
				res := snap.Result
				if res.AnalysisSummary.Text != "summary "+res.EditedProtein.ID {
					errs <- fmt.Errorf("torn read: %q vs %q", res.AnalysisSummary.Text, res.EditedProtein.ID)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
