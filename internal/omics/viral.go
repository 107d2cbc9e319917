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
	cypherMergeVirus = `
UNWIND $rows AS row
MERGE (v:Virus {name: row.name})
SET v.condition_count = row.condition_count,
    v.study_count = row.study_count,
    v.conditions = row.conditions,
    v.studies = row.studies,
    v.source = 'omics_viral'`

	cypherMergeInfection = `
UNWIND $rows AS row
MATCH (g:Gene {symbol: row.symbol})
MATCH (v:Virus {name: row.virus})
MERGE (g)-[r:INFECTED_BY]->(v)
SET g.entrez_id = coalesce(g.entrez_id, row.gene_id),
    r.edge_weight = row.edge_weight,
    r.expression_weight = coalesce(row.expression_weight, r.expression_weight),
    r.has_expression = row.has_expression,
    r.viral_condition = row.condition,
    r.viral_condition_full = row.condition_full,
    r.study_id = row.study_id,
    r.source = 'omics'`
)

// virusNames maps substrings of raw viral condition strings to canonical
// virus names. Checked in order; the first hit wins. Conditions matching
// nothing fall back to their leading underscore token.
var virusNames = []struct {
	substr string
	name   string
}{
	{"HCMV", "Human Cytomegalovirus (HCMV)"},
	{"SARS-BatSRBD", "SARS-CoV Bat SRBD"},
	{"MA15", "SARS-CoV MA15"},
	{"NSP16", "SARS-CoV NSP16"},
	{"icSARS", "icSARS-CoV"},
	{"cSARS", "cSARS Bat SRBD"},
	{"SARS-CoV", "SARS-CoV"},
	{"A-CA-04-2009", "Influenza A H1N1 (CA/04/2009)"},
	{"A_CA_04_2009", "Influenza A H1N1 (CA/04/2009)"},
	{"A-Vietnam-1203", "Influenza A H5N1 (Vietnam/1203/2004)"},
	{"A-Netherlands-602", "Influenza A H1N1 (Netherlands/602/2009)"},
	{"PR8(H1N1)", "Influenza A H1N1 (PR8)"},
	{"VN(H5N1)", "Influenza A H5N1 (VN)"},
	{"X31(H3N2)", "Influenza A H3N2 (X31)"},
	{"RSV", "Respiratory Syncytial Virus (RSV)"},
	{"Rabies", "Rabies Virus (CVS-11)"},
	{"Ebolavirus", "Ebola Virus"},
	{"EBOV", "Ebola Virus"},
	{"ZEBOV", "Ebola Virus"},
	{"HCV", "Hepatitis C Virus (HCV)"},
	{"HCoV-EMC2012", "MERS Coronavirus (HCoV-EMC)"},
	{"HIV", "Human Immunodeficiency Virus (HIV)"},
	{"HHV", "Human Herpesvirus 8 (HHV-8)"},
	{"CVB3", "Coxsackievirus B3 (CVB3)"},
	{"Enterovirus 71", "Enterovirus 71"},
	{"Lassa", "Lassa Fever Virus"},
	{"LASV", "Lassa Fever Virus"},
	{"Dhori", "Dhori Virus"},
	{"hMPV", "Human Metapneumovirus (hMPV)"},
	{"HEV", "Hepatitis E Virus (HEV)"},
	{"Measles", "Measles Virus"},
	{"Epstein-Barr", "Epstein-Barr Virus (EBV)"},
	{"Norwalk", "Norwalk Virus"},
	{"RV16", "Human Rhinovirus 16 (RV16)"},
}

// StandardizeVirusName maps a raw viral condition string to a canonical
// virus name.
func StandardizeVirusName(condition string) string {
	for _, v := range virusNames {
		if strings.Contains(condition, v.substr) {
			return v.name
		}
	}
	name, _, _ := strings.Cut(condition, "_")
	return name
}

// ViralIntegrator commits virus nodes with per-virus condition and study
// metadata, then INFECTED_BY edges carrying the association weight and the
// expression weight when the matrix has the gene under that condition.
type ViralIntegrator struct {
	loader *graph.Loader
	res    *resolve.Resolver
	log    *logger.Logger
}

func NewViralIntegrator(loader *graph.Loader, res *resolve.Resolver, log *logger.Logger) *ViralIntegrator {
	return &ViralIntegrator{loader: loader, res: res, log: log.With("component", "omics.viral")}
}

func (v *ViralIntegrator) Integrate(ctx context.Context, records []EdgeRecord, matrix *ExpressionMatrix) (Outcome, error) {
	var out Outcome
	out.Records = len(records)

	type virusMeta struct {
		conditions map[string]struct{}
		studies    map[string]struct{}
	}
	meta := map[string]*virusMeta{}

	edgeRows := make([]map[string]any, 0, len(records))
	withExpression := 0

	for _, rec := range records {
		symbol, ok := v.res.ResolveGene(rec.Symbol)
		if !ok {
			symbol, ok = v.res.ResolveGene(rec.GeneID)
		}
		if !ok {
			out.Unresolved++
			v.log.Warn("skipping viral association, unresolved gene",
				"identifier", rec.Symbol, "gene_id", rec.GeneID, "condition", rec.ConditionFull)
			continue
		}
		out.Resolved++

		virusName := StandardizeVirusName(rec.ConditionFull)
		m := meta[virusName]
		if m == nil {
			m = &virusMeta{conditions: map[string]struct{}{}, studies: map[string]struct{}{}}
			meta[virusName] = m
		}
		m.conditions[rec.ConditionFull] = struct{}{}
		m.studies[rec.StudyID] = struct{}{}

		row := map[string]any{
			"symbol":            symbol,
			"gene_id":           nullable(rec.GeneID),
			"virus":             virusName,
			"condition":         rec.ConditionName,
			"condition_full":    rec.ConditionFull,
			"study_id":          rec.StudyID,
			"edge_weight":       rec.Weight,
			"expression_weight": nil,
			"has_expression":    false,
		}
		if w, ok := matrix.Lookup(symbol, rec.ConditionFull); ok {
			row["expression_weight"] = w
			row["has_expression"] = true
			withExpression++
		}
		edgeRows = append(edgeRows, row)
	}

	virusRows := make([]map[string]any, 0, len(meta))
	for name, m := range meta {
		virusRows = append(virusRows, map[string]any{
			"name":            name,
			"condition_count": len(m.conditions),
			"study_count":     len(m.studies),
			"conditions":      sortedKeys(m.conditions),
			"studies":         sortedKeys(m.studies),
		})
	}
	sort.Slice(virusRows, func(i, j int) bool {
		return virusRows[i]["name"].(string) < virusRows[j]["name"].(string)
	})

	load, err := v.loader.ApplyAll(ctx,
		graph.Op{Kind: "Virus", Cypher: cypherMergeVirus, Rows: virusRows},
		graph.Op{Kind: "INFECTED_BY", Cypher: cypherMergeInfection, Rows: edgeRows},
	)
	out.Load = load
	if err != nil {
		return out, fmt.Errorf("omics: viral integration: %w", err)
	}
	v.log.Info("viral associations committed",
		"records", out.Records,
		"resolved", out.Resolved,
		"unresolved", out.Unresolved,
		"viruses", len(virusRows),
		"with_expression", withExpression)
	return out, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
