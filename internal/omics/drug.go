package omics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/platform/logger"
	"github.com/biomedkg/biokg/internal/resolve"
)

const (
	cypherMergeDrug = `
UNWIND $rows AS row
MERGE (d:Drug {name: row.name})
SET d.condition_count = row.condition_count,
    d.organism_count = row.organism_count,
    d.platform_count = row.platform_count,
    d.study_count = row.study_count,
    d.conditions = row.conditions,
    d.organisms = row.organisms,
    d.source = 'omics_drug'`

	cypherMergePerturbation = `
UNWIND $rows AS row
MATCH (g:Gene {symbol: row.symbol})
MATCH (d:Drug {name: row.drug})
MERGE (g)-[r:PERTURBED_BY]->(d)
SET g.entrez_id = coalesce(g.entrez_id, row.gene_id),
    r.weight = row.weight,
    r.condition_full = row.condition_full,
    r.organism = row.organism,
    r.platform = row.platform,
    r.study = row.study,
    r.source = 'omics'`
)

// ExperimentContext is the organism/platform/study triple parsed from a
// drug condition string such as "fluoxetine_mus musculus_gpl1261_gds2803".
type ExperimentContext struct {
	Organism string
	Platform string
	Study    string
}

// ExtractContext parses the experimental context out of a drug condition
// string. Unrecognized parts leave the field as "unknown".
func ExtractContext(conditionFull string) ExperimentContext {
	ctx := ExperimentContext{Organism: "unknown", Platform: "unknown", Study: "unknown"}
	parts := strings.Split(conditionFull, "_")
	if len(parts) < 3 {
		return ctx
	}
	for _, part := range parts {
		p := strings.ToLower(strings.TrimSpace(part))
		switch {
		case strings.Contains(p, "musculus") || strings.Contains(p, "mus"):
			ctx.Organism = "Mus musculus"
		case strings.Contains(p, "sapiens") || strings.Contains(p, "homo") || strings.Contains(p, "human"):
			ctx.Organism = "Homo sapiens"
		case strings.Contains(p, "rattus"):
			ctx.Organism = "Rattus norvegicus"
		}
		if strings.HasPrefix(p, "gpl") {
			ctx.Platform = strings.TrimSpace(part)
		} else if strings.HasPrefix(p, "gds") || strings.HasPrefix(p, "gse") {
			ctx.Study = strings.TrimSpace(part)
		}
	}
	return ctx
}

// DrugIntegrator commits Drug nodes with aggregated experiment metadata
// and PERTURBED_BY edges carrying the perturbation weight and its
// experimental context.
type DrugIntegrator struct {
	loader *graph.Loader
	res    *resolve.Resolver
	log    *logger.Logger
}

func NewDrugIntegrator(loader *graph.Loader, res *resolve.Resolver, log *logger.Logger) *DrugIntegrator {
	return &DrugIntegrator{loader: loader, res: res, log: log.With("component", "omics.drug")}
}

func (d *DrugIntegrator) Integrate(ctx context.Context, records []EdgeRecord) (Outcome, error) {
	var out Outcome
	out.Records = len(records)

	type drugMeta struct {
		conditions map[string]struct{}
		organisms  map[string]struct{}
		platforms  map[string]struct{}
		studies    map[string]struct{}
	}
	meta := map[string]*drugMeta{}

	edgeRows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		symbol, ok := d.res.ResolveGene(rec.Symbol)
		if !ok {
			symbol, ok = d.res.ResolveGene(rec.GeneID)
		}
		if !ok {
			out.Unresolved++
			d.log.Warn("skipping drug perturbation, unresolved gene",
				"identifier", rec.Symbol, "gene_id", rec.GeneID, "drug", rec.ConditionName)
			continue
		}
		out.Resolved++

		ec := ExtractContext(rec.ConditionFull)
		drug := rec.ConditionName
		m := meta[drug]
		if m == nil {
			m = &drugMeta{
				conditions: map[string]struct{}{},
				organisms:  map[string]struct{}{},
				platforms:  map[string]struct{}{},
				studies:    map[string]struct{}{},
			}
			meta[drug] = m
		}
		m.conditions[rec.ConditionFull] = struct{}{}
		m.organisms[ec.Organism] = struct{}{}
		m.platforms[ec.Platform] = struct{}{}
		m.studies[ec.Study] = struct{}{}

		edgeRows = append(edgeRows, map[string]any{
			"symbol":         symbol,
			"gene_id":        nullable(rec.GeneID),
			"drug":           drug,
			"condition_full": rec.ConditionFull,
			"weight":         rec.Weight,
			"organism":       ec.Organism,
			"platform":       ec.Platform,
			"study":          ec.Study,
		})
	}

	drugRows := make([]map[string]any, 0, len(meta))
	for name, m := range meta {
		drugRows = append(drugRows, map[string]any{
			"name":            name,
			"condition_count": len(m.conditions),
			"organism_count":  len(m.organisms),
			"platform_count":  len(m.platforms),
			"study_count":     len(m.studies),
			"conditions":      sortedKeys(m.conditions),
			"organisms":       sortedKeys(m.organisms),
		})
	}
	sort.Slice(drugRows, func(i, j int) bool {
		return drugRows[i]["name"].(string) < drugRows[j]["name"].(string)
	})

	load, err := d.loader.ApplyAll(ctx,
		graph.Op{Kind: "Drug", Cypher: cypherMergeDrug, Rows: drugRows},
		graph.Op{Kind: "PERTURBED_BY", Cypher: cypherMergePerturbation, Rows: edgeRows},
	)
	out.Load = load
	if err != nil {
		return out, fmt.Errorf("omics: drug integration: %w", err)
	}
	d.log.Info("drug perturbations committed",
		"records", out.Records,
		"resolved", out.Resolved,
		"unresolved", out.Unresolved,
		"drugs", len(drugRows))
	return out, nil
}
