package resolve

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/biomedkg/biokg/internal/platform/logger"
)

// storeQuerier answers the priming queries from canned rows and counts
// how often each one runs.
type storeQuerier struct {
	geneCalls atomic.Int32
	termCalls atomic.Int32
	altCalls  atomic.Int32
}

func (q *storeQuerier) Collect(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	switch {
	case strings.Contains(cypher, "(g:Gene)"):
		q.geneCalls.Add(1)
		return []map[string]any{
			{"symbol": "TP53", "entrez_id": "7157", "uniprot_id": "P04637"},
			{"symbol": "BRCA1", "entrez_id": "672", "uniprot_id": ""},
		}, nil
	case strings.Contains(cypher, "(t:GOTerm)"):
		q.termCalls.Add(1)
		return []map[string]any{{"go_id": "GO:0008150"}}, nil
	default:
		q.altCalls.Add(1)
		return []map[string]any{
			{"obsolete_id": "GO:0000004", "canonical_id": "GO:0008150"},
		}, nil
	}
}

func TestPrimeGenesLoadsStoreOnce(t *testing.T) {
	r := New(logger.NewNop())
	q := &storeQuerier{}

	if err := r.PrimeGenes(context.Background(), q); err != nil {
		t.Fatalf("PrimeGenes: %v", err)
	}
	if r.GeneCount() != 2 {
		t.Fatalf("GeneCount = %d, want 2", r.GeneCount())
	}
	if key, ok := r.ResolveGene("672"); !ok || key != "BRCA1" {
		t.Fatalf("entrez lookup after priming = %q, %v", key, ok)
	}

	// Already populated: no second store read.
	if err := r.PrimeGenes(context.Background(), q); err != nil {
		t.Fatalf("PrimeGenes again: %v", err)
	}
	if got := q.geneCalls.Load(); got != 1 {
		t.Fatalf("gene query ran %d times, want 1", got)
	}
}

func TestPrimeGenesConcurrentCallersLoadOnce(t *testing.T) {
	// Resumed runs prime from the concurrently running omics stages;
	// exactly one of them may touch the lookup maps.
	r := New(logger.NewNop())
	q := &storeQuerier{}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = r.PrimeGenes(context.Background(), q)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := q.geneCalls.Load(); got != 1 {
		t.Fatalf("gene query ran %d times, want 1", got)
	}
	if r.GeneCount() != 2 {
		t.Fatalf("GeneCount = %d, want 2", r.GeneCount())
	}
	if key, ok := r.ResolveGene("TP53"); !ok || key != "TP53" {
		t.Fatalf("symbol lookup after concurrent priming = %q, %v", key, ok)
	}
}

func TestPrimeGOTermsLoadsTermsAndMappings(t *testing.T) {
	r := New(logger.NewNop())
	q := &storeQuerier{}

	if err := r.PrimeGOTerms(context.Background(), q); err != nil {
		t.Fatalf("PrimeGOTerms: %v", err)
	}
	if id, rewritten, ok := r.ResolveGO("GO:0000004"); !ok || !rewritten || id != "GO:0008150" {
		t.Fatalf("alt lookup after priming = %q rewritten=%v ok=%v", id, rewritten, ok)
	}

	if err := r.PrimeGOTerms(context.Background(), q); err != nil {
		t.Fatalf("PrimeGOTerms again: %v", err)
	}
	if got := q.termCalls.Load(); got != 1 {
		t.Fatalf("term query ran %d times, want 1", got)
	}
	if got := q.altCalls.Load(); got != 1 {
		t.Fatalf("alt mapping query ran %d times, want 1", got)
	}
}
