package resolve

import (
	"errors"
	"testing"

	"github.com/biomedkg/biokg/internal/platform/logger"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	return New(logger.NewNop())
}

func TestResolveGene_OrderSymbolEntrezUniprot(t *testing.T) {
	r := newTestResolver(t)
	if _, err := r.AddGene("TP53", "7157", "P04637"); err != nil {
		t.Fatalf("AddGene: %v", err)
	}

	if key, ok := r.ResolveGene("TP53"); !ok || key != "TP53" {
		t.Fatalf("symbol lookup = %q, %v", key, ok)
	}
	if key, ok := r.ResolveGene("7157"); !ok || key != "TP53" {
		t.Fatalf("entrez lookup = %q, %v", key, ok)
	}
	if key, ok := r.ResolveGene("P04637"); !ok || key != "TP53" {
		t.Fatalf("uniprot lookup = %q, %v", key, ok)
	}
}

func TestResolveGene_NormalizesIncomingSymbol(t *testing.T) {
	r := newTestResolver(t)
	if _, err := r.AddGene("brca1", "", ""); err != nil {
		t.Fatalf("AddGene: %v", err)
	}
	if key, ok := r.ResolveGene("  brca1 "); !ok || key != "BRCA1" {
		t.Fatalf("expected normalized hit, got %q, %v", key, ok)
	}
}

func TestResolveGene_MissReturnsFalse(t *testing.T) {
	r := newTestResolver(t)
	if _, err := r.AddGene("BRCA1", "", ""); err != nil {
		t.Fatalf("AddGene: %v", err)
	}
	if _, ok := r.ResolveGene("BRCA1Q"); ok {
		t.Fatalf("expected miss for unknown symbol")
	}
}

func TestAddGene_ConflictIsFatal(t *testing.T) {
	r := newTestResolver(t)
	if _, err := r.AddGene("TP53", "7157", ""); err != nil {
		t.Fatalf("AddGene: %v", err)
	}
	_, err := r.AddGene("MDM2", "7157", "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestResolveGO_DirectThenAltMapping(t *testing.T) {
	r := newTestResolver(t)
	r.AddGOTerm("GO:0008150")
	if err := r.AddAltGO("GO:0000004", "GO:0008150"); err != nil {
		t.Fatalf("AddAltGO: %v", err)
	}

	id, rewritten, ok := r.ResolveGO("GO:0008150")
	if !ok || rewritten || id != "GO:0008150" {
		t.Fatalf("direct = %q rewritten=%v ok=%v", id, rewritten, ok)
	}
	id, rewritten, ok = r.ResolveGO("GO:0000004")
	if !ok || !rewritten || id != "GO:0008150" {
		t.Fatalf("alt = %q rewritten=%v ok=%v", id, rewritten, ok)
	}
	if _, _, ok = r.ResolveGO("GO:9999999"); ok {
		t.Fatalf("expected miss for unknown GO id")
	}
}

func TestAddAltGO_RejectsChainsAndSelfCycles(t *testing.T) {
	r := newTestResolver(t)
	r.AddGOTerm("GO:0008150")
	if err := r.AddAltGO("GO:0000004", "GO:0000004"); !errors.Is(err, ErrMappingCycle) {
		t.Fatalf("self mapping: expected ErrMappingCycle, got %v", err)
	}
	if err := r.AddAltGO("GO:0000004", "GO:0008150"); err != nil {
		t.Fatalf("AddAltGO: %v", err)
	}
	// GO:0000004 is obsolete; mapping something onto it would need two hops.
	if err := r.AddAltGO("GO:0000003", "GO:0000004"); !errors.Is(err, ErrMappingCycle) {
		t.Fatalf("chained mapping: expected ErrMappingCycle, got %v", err)
	}
}

func TestAddAltGO_ManyToOneAllowed(t *testing.T) {
	r := newTestResolver(t)
	r.AddGOTerm("GO:0008150")
	if err := r.AddAltGO("GO:0000004", "GO:0008150"); err != nil {
		t.Fatalf("AddAltGO: %v", err)
	}
	if err := r.AddAltGO("GO:0000005", "GO:0008150"); err != nil {
		t.Fatalf("AddAltGO many-to-one: %v", err)
	}
	if r.AltGOCount() != 2 {
		t.Fatalf("AltGOCount = %d, want 2", r.AltGOCount())
	}
}
