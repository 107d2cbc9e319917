package omics

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/platform/logger"
	"github.com/biomedkg/biokg/internal/resolve"
)

const (
	cypherMergePathway = `
UNWIND $rows AS row
MERGE (pm:PathwayModule {nest_id: row.nest_id})
SET pm.pathway_name = row.pathway_name,
    pm.pathway_description = row.description,
    pm.gene_count = row.gene_count,
    pm.size_all = row.size_all,
    pm.camptothecin_sensitivity = row.camptothecin,
    pm.cd437_sensitivity = row.cd437,
    pm.cisplatin_sensitivity = row.cisplatin,
    pm.etoposide_sensitivity = row.etoposide,
    pm.gemcitabine_sensitivity = row.gemcitabine,
    pm.olaparib_sensitivity = row.olaparib,
    pm.is_selected = row.is_selected,
    pm.display_priority = row.display_priority,
    pm.aggregate_score = row.aggregate_score,
    pm.source = 'nest_table'`

	cypherMergePathwayMember = `
UNWIND $rows AS row
MATCH (g:Gene {symbol: row.symbol})
MATCH (pm:PathwayModule {nest_id: row.nest_id})
MERGE (g)-[r:MEMBER_OF_PATHWAY]->(pm)
SET r.source = 'nest_table'`
)

// drugSensitivityColumns maps NeST table column names to the row keys the
// upsert template expects.
var drugSensitivityColumns = map[string]string{
	"Camptothecin": "camptothecin",
	"CD437":        "cd437",
	"Cisplatin":    "cisplatin",
	"Etoposide":    "etoposide",
	"Gemcitabine":  "gemcitabine",
	"Olaparib":     "olaparib",
}

// Pathway is one curated NeST table row: the assembly plus its member
// gene symbols and drug-sensitivity scores.
type Pathway struct {
	NestID      string
	Name        string
	Description string
	Genes       []string
	SizeAll     int

	Sensitivities map[string]float64
	IsSelected    *bool
	DisplayOrder  *int
	Aggregate     *int
}

// ParsePathways reads NeST_table_All.csv. Rows missing a NEST ID, name, or
// gene list are dropped.
func ParsePathways(r io.Reader) ([]Pathway, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("omics: read pathway header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []Pathway
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("omics: read pathway row: %w", err)
		}
		nestID := field(rec, "NEST ID")
		name := field(rec, "name")
		rawGenes := field(rec, "All_Genes")
		if nestID == "" || name == "" || rawGenes == "" {
			continue
		}
		var genes []string
		for _, g := range strings.Split(rawGenes, ",") {
			if g = strings.TrimSpace(g); g != "" {
				genes = append(genes, g)
			}
		}
		if len(genes) == 0 {
			continue
		}

		p := Pathway{
			NestID:        nestID,
			Name:          name,
			Description:   name,
			Genes:         genes,
			SizeAll:       len(genes),
			Sensitivities: map[string]float64{},
		}
		if d := field(rec, "name_new"); d != "" {
			p.Description = d
		}
		if s := field(rec, "Size_All"); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				p.SizeAll = n
			}
		}
		for colName, key := range drugSensitivityColumns {
			if s := field(rec, colName); s != "" {
				if v, err := strconv.ParseFloat(s, 64); err == nil {
					p.Sensitivities[key] = v
				}
			}
		}
		if s := field(rec, "selected"); s != "" {
			sel := s == "1" || strings.EqualFold(s, "true")
			p.IsSelected = &sel
		}
		if s := field(rec, "name_show"); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				p.DisplayOrder = &n
			}
		}
		if s := field(rec, "sum"); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				p.Aggregate = &n
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// PathwayIntegrator commits PathwayModule nodes keyed by NEST ID with
// their drug-sensitivity profile, and MEMBER_OF_PATHWAY edges for every
// resolvable member gene.
type PathwayIntegrator struct {
	loader *graph.Loader
	res    *resolve.Resolver
	log    *logger.Logger
}

func NewPathwayIntegrator(loader *graph.Loader, res *resolve.Resolver, log *logger.Logger) *PathwayIntegrator {
	return &PathwayIntegrator{loader: loader, res: res, log: log.With("component", "omics.pathway")}
}

func (p *PathwayIntegrator) Integrate(ctx context.Context, pathways []Pathway) (Outcome, error) {
	var out Outcome

	moduleRows := make([]map[string]any, 0, len(pathways))
	memberRows := make([]map[string]any, 0, 4096)

	for _, pw := range pathways {
		row := map[string]any{
			"nest_id":          pw.NestID,
			"pathway_name":     pw.Name,
			"description":      pw.Description,
			"gene_count":       len(pw.Genes),
			"size_all":         pw.SizeAll,
			"is_selected":      nil,
			"display_priority": nil,
			"aggregate_score":  nil,
		}
		for _, key := range drugSensitivityColumns {
			row[key] = nil
			if v, ok := pw.Sensitivities[key]; ok {
				row[key] = v
			}
		}
		if pw.IsSelected != nil {
			row["is_selected"] = *pw.IsSelected
		}
		if pw.DisplayOrder != nil {
			row["display_priority"] = *pw.DisplayOrder
		}
		if pw.Aggregate != nil {
			row["aggregate_score"] = *pw.Aggregate
		}
		moduleRows = append(moduleRows, row)

		for _, g := range pw.Genes {
			out.Records++
			symbol, ok := p.res.ResolveGene(g)
			if !ok {
				out.Unresolved++
				p.log.Warn("skipping pathway membership, unresolved gene",
					"identifier", g, "nest_id", pw.NestID)
				continue
			}
			out.Resolved++
			memberRows = append(memberRows, map[string]any{
				"symbol":  symbol,
				"nest_id": pw.NestID,
			})
		}
	}

	load, err := p.loader.ApplyAll(ctx,
		graph.Op{Kind: "PathwayModule", Cypher: cypherMergePathway, Rows: moduleRows},
		graph.Op{Kind: "MEMBER_OF_PATHWAY", Cypher: cypherMergePathwayMember, Rows: memberRows},
	)
	out.Load = load
	if err != nil {
		return out, fmt.Errorf("omics: pathway integration: %w", err)
	}
	p.log.Info("pathway modules committed",
		"pathways", len(moduleRows),
		"memberships", len(memberRows),
		"unresolved_genes", out.Unresolved)
	return out, nil
}
