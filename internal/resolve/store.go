package resolve

import (
	"context"
	"fmt"
)

// Querier is the read slice of the store client the loaders need.
type Querier interface {
	Collect(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// PrimeGenes loads the committed gene inventory unless the resolver is
// already populated. Concurrent stages can call this on a resumed run:
// the first caller loads, the rest block until the maps are ready.
func (r *Resolver) PrimeGenes(ctx context.Context, q Querier) error {
	r.primeMu.Lock()
	defer r.primeMu.Unlock()
	if len(r.bySymbol) > 0 {
		return nil
	}
	return r.LoadGenes(ctx, q)
}

// PrimeGOTerms is PrimeGenes for the GO term and alt-mapping inventory.
func (r *Resolver) PrimeGOTerms(ctx context.Context, q Querier) error {
	r.primeMu.Lock()
	defer r.primeMu.Unlock()
	if len(r.goIDs) > 0 {
		return nil
	}
	return r.LoadGOTerms(ctx, q)
}

// LoadGenes primes the resolver from committed Gene nodes. Used when a
// resumed run skips the base-load stage but later stages still need gene
// resolution. Callers running concurrently go through PrimeGenes.
func (r *Resolver) LoadGenes(ctx context.Context, q Querier) error {
	rows, err := q.Collect(ctx,
		`MATCH (g:Gene) RETURN g.symbol AS symbol, g.entrez_id AS entrez_id, g.uniprot_id AS uniprot_id`, nil)
	if err != nil {
		return fmt.Errorf("resolve: load genes from store: %w", err)
	}
	for _, row := range rows {
		symbol, _ := row["symbol"].(string)
		if symbol == "" {
			continue
		}
		entrez, _ := row["entrez_id"].(string)
		uniprot, _ := row["uniprot_id"].(string)
		if _, err := r.AddGene(symbol, entrez, uniprot); err != nil {
			r.log.Warn("conflicting stored gene identifiers, keeping first",
				"symbol", symbol, "error", err)
		}
	}
	r.log.Info("resolver primed from store", "genes", r.GeneCount())
	return nil
}

// LoadGOTerms primes the resolver from committed GOTerm and AltGOMapping
// nodes.
func (r *Resolver) LoadGOTerms(ctx context.Context, q Querier) error {
	rows, err := q.Collect(ctx, `MATCH (t:GOTerm) RETURN t.go_id AS go_id`, nil)
	if err != nil {
		return fmt.Errorf("resolve: load GO terms from store: %w", err)
	}
	for _, row := range rows {
		if goID, _ := row["go_id"].(string); goID != "" {
			r.AddGOTerm(goID)
		}
	}

	rows, err = q.Collect(ctx,
		`MATCH (a:AltGOMapping) RETURN a.obsolete_id AS obsolete_id, a.canonical_id AS canonical_id`, nil)
	if err != nil {
		return fmt.Errorf("resolve: load alt mappings from store: %w", err)
	}
	for _, row := range rows {
		obs, _ := row["obsolete_id"].(string)
		canon, _ := row["canonical_id"].(string)
		if obs == "" || canon == "" {
			continue
		}
		if err := r.AddAltGO(obs, canon); err != nil {
			r.log.Warn("skipping stored alt mapping", "obsolete_id", obs, "error", err)
		}
	}
	r.log.Info("resolver primed from store",
		"go_terms", r.GOTermCount(), "alt_mappings", r.AltGOCount())
	return nil
}
