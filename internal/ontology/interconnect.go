package ontology

import (
	"context"
	"fmt"

	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/platform/logger"
)

// Counter is the read slice the interconnector needs from the store client.
type Counter interface {
	CountValue(ctx context.Context, cypher string, params map[string]any) (int64, error)
}

// InterconnectPolicy carries the shared-gene thresholds: pairs below
// MinSharedGenes get no edge, and confidence is tiered at the medium and
// high floors.
type InterconnectPolicy struct {
	MinSharedGenes   int
	MediumConfidence int
	HighConfidence   int
}

// InterconnectStats reports how many cross-namespace edges each pass
// created or refreshed.
type InterconnectStats struct {
	OccursIn      int64
	EnabledBy     int64
	HostsFunction int64
}

// Interconnector derives cross-namespace edges between GO terms from their
// shared annotated genes: OCCURS_IN (process -> component), ENABLED_BY
// (process -> function), HOSTS_FUNCTION (component -> function). It runs
// after the gene base load because shared-gene evidence lives on
// ANNOTATED_WITH edges.
type Interconnector struct {
	run    graph.TxRunner
	count  Counter
	log    *logger.Logger
	policy InterconnectPolicy
}

func NewInterconnector(run graph.TxRunner, count Counter, log *logger.Logger, policy InterconnectPolicy) *Interconnector {
	if policy.MinSharedGenes <= 0 {
		policy.MinSharedGenes = 3
	}
	if policy.MediumConfidence <= 0 {
		policy.MediumConfidence = 5
	}
	if policy.HighConfidence <= 0 {
		policy.HighConfidence = 10
	}
	return &Interconnector{
		run:    run,
		count:  count,
		log:    log.With("component", "interconnect"),
		policy: policy,
	}
}

// cypherInterconnect is one aggregate pass per namespace pair. The edge is
// merged on the term pair so reruns refresh shared_genes and confidence
// instead of duplicating.
const cypherInterconnect = `
MATCH (a:GOTerm {namespace: $left})<-[:ANNOTATED_WITH]-(g:Gene)-[:ANNOTATED_WITH]->(b:GOTerm {namespace: $right})
WITH a, b, count(DISTINCT g) AS shared
WHERE shared >= $min_shared
MERGE (a)-[r:%s]->(b)
SET r.shared_genes = shared,
    r.confidence = CASE
        WHEN shared >= $high THEN 'high'
        WHEN shared >= $medium THEN 'medium'
        ELSE 'low'
    END
RETURN count(r) AS created`

// Connect verifies every namespace has annotated terms, then runs the
// three pair passes. Missing annotations mean the gene base load has not
// run; that is a precondition failure for the caller to surface.
func (ic *Interconnector) Connect(ctx context.Context) (InterconnectStats, error) {
	var stats InterconnectStats

	for _, ns := range []string{"biological_process", "cellular_component", "molecular_function"} {
		n, err := ic.count.CountValue(ctx,
			`MATCH (t:GOTerm {namespace: $ns})<-[:ANNOTATED_WITH]-(:Gene) RETURN count(DISTINCT t) AS n`,
			map[string]any{"ns": ns})
		if err != nil {
			return stats, fmt.Errorf("interconnect: count annotated %s terms: %w", ns, err)
		}
		if n == 0 {
			return stats, fmt.Errorf("interconnect: namespace %s has no annotated terms", ns)
		}
		ic.log.Debug("annotated terms present", "namespace", ns, "terms", n)
	}

	passes := []struct {
		left, right, relType string
		out                  *int64
	}{
		{"biological_process", "cellular_component", "OCCURS_IN", &stats.OccursIn},
		{"biological_process", "molecular_function", "ENABLED_BY", &stats.EnabledBy},
		{"cellular_component", "molecular_function", "HOSTS_FUNCTION", &stats.HostsFunction},
	}
	for _, p := range passes {
		n, err := ic.connectPair(ctx, p.left, p.right, p.relType)
		if err != nil {
			return stats, err
		}
		*p.out = n
		ic.log.Info("cross-namespace edges merged",
			"type", p.relType, "left", p.left, "right", p.right, "edges", n)
	}
	return stats, nil
}

func (ic *Interconnector) connectPair(ctx context.Context, left, right, relType string) (int64, error) {
	if !relTypePattern.MatchString(relType) {
		return 0, fmt.Errorf("interconnect: malformed relationship type %q", relType)
	}
	params := map[string]any{
		"left":       left,
		"right":      right,
		"min_shared": ic.policy.MinSharedGenes,
		"medium":     ic.policy.MediumConfidence,
		"high":       ic.policy.HighConfidence,
	}
	err := ic.run.ExecuteWrite(ctx, func(ctx context.Context, tx graph.Tx) error {
		return tx.Run(ctx, fmt.Sprintf(cypherInterconnect, relType), params)
	})
	if err != nil {
		return 0, fmt.Errorf("interconnect: %s pass: %w", relType, err)
	}
	n, err := ic.count.CountValue(ctx,
		fmt.Sprintf(`MATCH (:GOTerm {namespace: $left})-[r:%s]->(:GOTerm {namespace: $right}) RETURN count(r) AS n`, relType),
		map[string]any{"left": left, "right": right})
	if err != nil {
		return 0, fmt.Errorf("interconnect: count %s edges: %w", relType, err)
	}
	return n, nil
}
