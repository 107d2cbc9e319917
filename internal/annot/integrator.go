package annot

import (
	"context"
	"fmt"

	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/platform/logger"
	"github.com/biomedkg/biokg/internal/resolve"
)

const (
	cypherMergeGene = `
UNWIND $rows AS row
MERGE (g:Gene {symbol: row.symbol})
SET g.uniprot_id = coalesce(row.uniprot_id, g.uniprot_id),
    g.name = coalesce(row.name, g.name),
    g.taxon = row.taxon`

	cypherMergeAnnotation = `
UNWIND $rows AS row
MATCH (g:Gene {symbol: row.symbol})
MATCH (t:GOTerm {go_id: row.go_id})
MERGE (g)-[r:ANNOTATED_WITH {evidence_code: row.evidence_code, qualifier: row.qualifier}]->(t)
SET r.aspect = row.aspect,
    r.reference = row.reference,
    r.assigned_by = row.assigned_by,
    r.date = row.date,
    r.with_from = row.with_from,
    r.source_type = coalesce(r.source_type, 'gaf')`
)

// Stats summarizes one namespace's base load.
type Stats struct {
	Genes       int
	Annotations int
	Duplicates  int
	SkippedGO   int
	RewrittenGO int
	Conflicts   int
	Load        graph.Stats
}

// Integrator commits the gene base load for one namespace: Gene nodes
// merged by symbol, ANNOTATED_WITH edges merged on the
// (gene, term, evidence, qualifier) tuple so reruns never duplicate.
type Integrator struct {
	loader *graph.Loader
	res    *resolve.Resolver
	log    *logger.Logger
}

func NewIntegrator(loader *graph.Loader, res *resolve.Resolver, log *logger.Logger) *Integrator {
	return &Integrator{loader: loader, res: res, log: log.With("component", "annot")}
}

// Integrate filters annotations to the aspect matching namespace, registers
// every gene with the resolver, and commits genes then edges. GO IDs
// resolve through the resolver: obsolete IDs rewrite to canonical terms and
// unresolvable IDs skip with a warning.
func (i *Integrator) Integrate(ctx context.Context, anns []Annotation, namespace string) (Stats, error) {
	var stats Stats

	geneRows := make([]map[string]any, 0, 4096)
	seenGene := map[string]struct{}{}
	edgeRows := make([]map[string]any, 0, len(anns))
	seenEdge := map[string]struct{}{}

	for _, a := range anns {
		ns, ok := AspectNamespace(a.Aspect)
		if !ok || ns != namespace {
			continue
		}
		symbol := resolve.NormalizeSymbol(a.Symbol)
		if symbol == "" {
			continue
		}

		goID, rewritten, ok := i.res.ResolveGO(a.GOID)
		if !ok {
			stats.SkippedGO++
			i.log.Warn("skipping annotation, unresolvable GO term",
				"go_id", a.GOID, "symbol", symbol)
			continue
		}
		if rewritten {
			stats.RewrittenGO++
		}

		if _, dup := seenGene[symbol]; !dup {
			seenGene[symbol] = struct{}{}
			if _, err := i.res.AddGene(a.Symbol, "", a.UniprotID); err != nil {
				stats.Conflicts++
				i.log.Warn("gene identifier conflict, keeping first registration",
					"symbol", symbol, "uniprot_id", a.UniprotID, "error", err)
			}
			geneRows = append(geneRows, map[string]any{
				"symbol":     symbol,
				"uniprot_id": nilIfEmpty(a.UniprotID),
				"name":       nilIfEmpty(a.ObjectName),
				"taxon":      a.Taxon,
			})
			stats.Genes++
		}

		edgeKey := symbol + "|" + goID + "|" + a.Evidence + "|" + a.Qualifier
		if _, dup := seenEdge[edgeKey]; dup {
			stats.Duplicates++
			continue
		}
		seenEdge[edgeKey] = struct{}{}
		edgeRows = append(edgeRows, map[string]any{
			"symbol":        symbol,
			"go_id":         goID,
			"evidence_code": a.Evidence,
			"qualifier":     a.Qualifier,
			"aspect":        a.Aspect,
			"reference":     a.Reference,
			"assigned_by":   a.AssignedBy,
			"date":          a.Date,
			"with_from":     a.WithFrom,
		})
		stats.Annotations++
	}

	load, err := i.loader.ApplyAll(ctx,
		graph.Op{Kind: "Gene:" + namespace, Cypher: cypherMergeGene, Rows: geneRows},
		graph.Op{Kind: "ANNOTATED_WITH:" + namespace, Cypher: cypherMergeAnnotation, Rows: edgeRows},
	)
	stats.Load = load
	if err != nil {
		return stats, fmt.Errorf("annot: integrate %s: %w", namespace, err)
	}
	i.log.Info("gene annotations committed",
		"namespace", namespace,
		"genes", stats.Genes,
		"annotations", stats.Annotations,
		"duplicates", stats.Duplicates,
		"skipped_go", stats.SkippedGO,
		"rewritten_go", stats.RewrittenGO)
	return stats, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
