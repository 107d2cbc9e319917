// Package metrics is the read-only validation pass over a finished build:
// inventory counts, integrity checks, and connectivity signals. It never
// writes; duplicate-key hits are hard failures, everything else degrades
// to a warning.
package metrics

import (
	"context"
	"fmt"

	"github.com/biomedkg/biokg/internal/platform/logger"
)

// Querier is the read slice of the store client the collector needs.
type Querier interface {
	Collect(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	CountValue(ctx context.Context, cypher string, params map[string]any) (int64, error)
}

// nodeLabels inventories every node type the build commits.
var nodeLabels = []string{
	"Gene", "GOTerm", "AltGOMapping",
	"Disease", "Virus", "Drug", "Study",
	"FunctionalModule", "PathwayModule",
	"CuratedGeneset", "GenesetCollection",
}

var relTypes = []string{
	"IS_A", "PART_OF", "REGULATES", "POSITIVELY_REGULATES", "NEGATIVELY_REGULATES",
	"OCCURS_IN", "ENABLED_BY", "HOSTS_FUNCTION", "COLLAPSED_HIERARCHY",
	"ANNOTATED_WITH", "ASSOCIATED_WITH_DISEASE", "INFECTED_BY", "PERTURBED_BY",
	"BELONGS_TO_MODULE", "MEMBER_OF_PATHWAY", "CONTAINS",
	"CURATED_MEMBER_OF", "PART_OF_COLLECTION", "ENRICHES_MODULE",
	"MAPS_TO", "REPORTED_IN",
}

// uniqueKeys are the natural keys under uniqueness constraints; any
// duplicate here means an invariant was violated.
var uniqueKeys = []struct{ label, property string }{
	{"GOTerm", "go_id"},
	{"Disease", "name"},
	{"Virus", "name"},
	{"Drug", "name"},
	{"Study", "geo_id"},
	{"FunctionalModule", "cluster_id"},
	{"PathwayModule", "nest_id"},
	{"CuratedGeneset", "geneset_id"},
	{"GenesetCollection", "collection_id"},
}

// Report is the final validation output.
type Report struct {
	NodeCounts map[string]int64
	RelCounts  map[string]int64

	GONamespaces   map[string]int64
	Orphans        map[string]int64
	Duplicates     map[string]int64 // "Label.property" -> duplicated keys
	MultiModal     int64            // genes carrying all major data types
	CrossNamespace map[string]int64

	HardFailures []string
	Warnings     []string
}

// Healthy reports whether the build passed every integrity check.
func (r *Report) Healthy() bool {
	return len(r.HardFailures) == 0
}

// Collector runs the validation queries.
type Collector struct {
	q   Querier
	log *logger.Logger
}

func NewCollector(q Querier, log *logger.Logger) *Collector {
	return &Collector{q: q, log: log.With("component", "metrics")}
}

func (c *Collector) Collect(ctx context.Context) (*Report, error) {
	r := &Report{
		NodeCounts:     map[string]int64{},
		RelCounts:      map[string]int64{},
		GONamespaces:   map[string]int64{},
		Orphans:        map[string]int64{},
		Duplicates:     map[string]int64{},
		CrossNamespace: map[string]int64{},
	}

	for _, label := range nodeLabels {
		n, err := c.q.CountValue(ctx,
			fmt.Sprintf(`MATCH (n:%s) RETURN count(n) AS n`, label), nil)
		if err != nil {
			return nil, fmt.Errorf("metrics: count %s nodes: %w", label, err)
		}
		r.NodeCounts[label] = n
	}

	for _, rel := range relTypes {
		n, err := c.q.CountValue(ctx,
			fmt.Sprintf(`MATCH ()-[r:%s]->() RETURN count(r) AS n`, rel), nil)
		if err != nil {
			return nil, fmt.Errorf("metrics: count %s relationships: %w", rel, err)
		}
		r.RelCounts[rel] = n
	}

	rows, err := c.q.Collect(ctx,
		`MATCH (t:GOTerm) RETURN t.namespace AS namespace, count(t) AS n`, nil)
	if err != nil {
		return nil, fmt.Errorf("metrics: namespace breakdown: %w", err)
	}
	for _, row := range rows {
		ns, _ := row["namespace"].(string)
		if n, ok := row["n"].(int64); ok && ns != "" {
			r.GONamespaces[ns] = n
		}
	}

	for _, label := range nodeLabels {
		n, err := c.q.CountValue(ctx,
			fmt.Sprintf(`MATCH (n:%s) WHERE NOT (n)--() RETURN count(n) AS n`, label), nil)
		if err != nil {
			return nil, fmt.Errorf("metrics: count orphan %s nodes: %w", label, err)
		}
		if n > 0 {
			r.Orphans[label] = n
			r.Warnings = append(r.Warnings,
				fmt.Sprintf("%d orphan %s node(s)", n, label))
		}
	}

	for _, key := range uniqueKeys {
		n, err := c.q.CountValue(ctx, fmt.Sprintf(
			`MATCH (n:%s) WITH n.%s AS k, count(*) AS c WHERE k IS NOT NULL AND c > 1 RETURN count(k) AS n`,
			key.label, key.property), nil)
		if err != nil {
			return nil, fmt.Errorf("metrics: duplicate check %s.%s: %w", key.label, key.property, err)
		}
		if n > 0 {
			name := key.label + "." + key.property
			r.Duplicates[name] = n
			r.HardFailures = append(r.HardFailures,
				fmt.Sprintf("%d duplicated %s value(s)", n, name))
		}
	}

	for _, rel := range []string{"OCCURS_IN", "ENABLED_BY", "HOSTS_FUNCTION"} {
		r.CrossNamespace[rel] = r.RelCounts[rel]
		if r.RelCounts[rel] == 0 {
			r.Warnings = append(r.Warnings,
				fmt.Sprintf("no %s cross-namespace edges", rel))
		}
	}

	multiModal, err := c.q.CountValue(ctx, `
MATCH (g:Gene)
WHERE (g)-[:ANNOTATED_WITH]->()
  AND (g)-[:ASSOCIATED_WITH_DISEASE]->()
  AND (g)-[:PERTURBED_BY]->()
  AND (g)-[:INFECTED_BY]->()
  AND (g)-[:BELONGS_TO_MODULE]->()
  AND (g)-[:MEMBER_OF_PATHWAY]->()
RETURN count(g) AS n`, nil)
	if err != nil {
		return nil, fmt.Errorf("metrics: multi-modal gene count: %w", err)
	}
	r.MultiModal = multiModal

	if r.NodeCounts["Gene"] == 0 {
		r.HardFailures = append(r.HardFailures, "no Gene nodes committed")
	}
	if r.NodeCounts["GOTerm"] == 0 {
		r.HardFailures = append(r.HardFailures, "no GOTerm nodes committed")
	}

	c.log.Info("validation pass complete",
		"genes", r.NodeCounts["Gene"],
		"go_terms", r.NodeCounts["GOTerm"],
		"annotations", r.RelCounts["ANNOTATED_WITH"],
		"multi_modal_genes", r.MultiModal,
		"hard_failures", len(r.HardFailures),
		"warnings", len(r.Warnings))
	return r, nil
}
