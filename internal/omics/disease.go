package omics

import (
	"context"
	"fmt"
	"strings"

	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/platform/logger"
	"github.com/biomedkg/biokg/internal/resolve"
)

const (
	cypherMergeDisease = `
UNWIND $rows AS row
MATCH (g:Gene {symbol: row.symbol})
MERGE (d:Disease {name: row.disease})
ON CREATE SET d.full_condition = row.condition_full,
              d.tissue_context = row.tissue,
              d.study_id = row.study_id,
              d.source = 'omics'
MERGE (g)-[r:ASSOCIATED_WITH_DISEASE]->(d)
SET g.entrez_id = coalesce(g.entrez_id, row.gene_id),
    r.weight = row.weight,
    r.source = 'omics',
    r.study_geo_id = row.study_id,
    r.expression_zscore = coalesce(row.zscore, r.expression_zscore),
    r.regulation = coalesce(row.regulation, r.regulation)`

	cypherMergeStudy = `
UNWIND $rows AS row
MATCH (d:Disease {name: row.disease})
MERGE (s:Study {geo_id: row.geo_id})
ON CREATE SET s.source = 'omics'
MERGE (d)-[:REPORTED_IN]->(s)`
)

// DiseaseIntegrator commits disease-gene associations with optional
// expression enrichment from the standardized matrix. Diseases merge by
// name; the tissue context is the second underscore token of the full
// condition string. Study nodes are merged per GEO accession.
type DiseaseIntegrator struct {
	loader *graph.Loader
	res    *resolve.Resolver
	log    *logger.Logger
}

func NewDiseaseIntegrator(loader *graph.Loader, res *resolve.Resolver, log *logger.Logger) *DiseaseIntegrator {
	return &DiseaseIntegrator{loader: loader, res: res, log: log.With("component", "omics.disease")}
}

func (d *DiseaseIntegrator) Integrate(ctx context.Context, records []EdgeRecord, matrix *ExpressionMatrix) (Outcome, error) {
	var out Outcome
	out.Records = len(records)

	rows := make([]map[string]any, 0, len(records))
	studyRows := make([]map[string]any, 0, 256)
	seenStudy := map[string]struct{}{}
	withExpression := 0

	for _, rec := range records {
		symbol, ok := d.res.ResolveGene(rec.Symbol)
		if !ok {
			symbol, ok = d.res.ResolveGene(rec.GeneID)
		}
		if !ok {
			out.Unresolved++
			d.log.Warn("skipping disease association, unresolved gene",
				"identifier", rec.Symbol, "gene_id", rec.GeneID, "disease", rec.ConditionName)
			continue
		}
		out.Resolved++

		row := map[string]any{
			"symbol":         symbol,
			"gene_id":        nullable(rec.GeneID),
			"disease":        rec.ConditionName,
			"condition_full": rec.ConditionFull,
			"tissue":         tissueContext(rec.ConditionFull),
			"study_id":       rec.StudyID,
			"weight":         rec.Weight,
			"zscore":         nil,
			"regulation":     nil,
		}
		if z, ok := matrix.Lookup(symbol, rec.ConditionFull); ok {
			row["zscore"] = z
			if z > 0 {
				row["regulation"] = "upregulated"
			} else {
				row["regulation"] = "downregulated"
			}
			withExpression++
		}
		rows = append(rows, row)

		if rec.StudyID != "" {
			key := rec.ConditionName + "|" + rec.StudyID
			if _, dup := seenStudy[key]; !dup {
				seenStudy[key] = struct{}{}
				studyRows = append(studyRows, map[string]any{
					"disease": rec.ConditionName,
					"geo_id":  rec.StudyID,
				})
			}
		}
	}

	load, err := d.loader.ApplyAll(ctx,
		graph.Op{Kind: "ASSOCIATED_WITH_DISEASE", Cypher: cypherMergeDisease, Rows: rows},
		graph.Op{Kind: "Study:disease", Cypher: cypherMergeStudy, Rows: studyRows},
	)
	out.Load = load
	if err != nil {
		return out, fmt.Errorf("omics: disease integration: %w", err)
	}
	d.log.Info("disease associations committed",
		"records", out.Records,
		"resolved", out.Resolved,
		"unresolved", out.Unresolved,
		"with_expression", withExpression,
		"studies", len(studyRows))
	return out, nil
}

// tissueContext extracts the tissue token from a Disease_Tissue_GEO
// condition string.
func tissueContext(conditionFull string) string {
	parts := strings.Split(conditionFull, "_")
	if len(parts) > 1 {
		return parts[1]
	}
	return ""
}
