package talisman

import (
	"context"
	"fmt"

	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/platform/logger"
	"github.com/biomedkg/biokg/internal/resolve"
)

const (
	cypherMergeCollection = `
UNWIND $rows AS row
MERGE (gc:GenesetCollection {collection_id: row.collection_id})
SET gc.collection_name = row.collection_name,
    gc.description = row.description,
    gc.source_authority = row.source_authority,
    gc.total_genesets = row.total_genesets`

	cypherMergeGeneset = `
UNWIND $rows AS row
MERGE (cg:CuratedGeneset {geneset_id: row.geneset_id})
SET cg.name = row.name,
    cg.description = row.description,
    cg.source_collection = row.collection,
    cg.source_file = row.source_file,
    cg.taxon = row.taxon,
    cg.gene_count = row.gene_count,
    cg.validated_gene_count = row.validated_gene_count,
    cg.validation_ratio = row.validation_ratio,
    cg.low_quality = row.low_quality,
    cg.pmid = row.pmid,
    cg.systematic_name = row.systematic_name,
    cg.msigdb_url = row.msigdb_url`

	cypherMergeCollectionLink = `
UNWIND $rows AS row
MATCH (cg:CuratedGeneset {geneset_id: row.geneset_id})
MATCH (gc:GenesetCollection {collection_id: row.collection_id})
MERGE (cg)-[:PART_OF_COLLECTION]->(gc)`

	cypherMergeMembership = `
UNWIND $rows AS row
MATCH (cg:CuratedGeneset {geneset_id: row.geneset_id})
MATCH (g:Gene {symbol: row.symbol})
MERGE (g)-[r:CURATED_MEMBER_OF]->(cg)
SET r.validation_status = 'VALIDATED',
    r.source_file = row.source_file`

	// Enrichment is one aggregate pass over the passing genesets: overlap
	// with pathway module membership at the configured threshold on either
	// coverage direction. MERGE on the pair keeps reruns idempotent.
	cypherEnrich = `
MATCH (cg:CuratedGeneset)<-[:CURATED_MEMBER_OF]-(g:Gene)-[:MEMBER_OF_PATHWAY]->(pm:PathwayModule)
WHERE cg.low_quality = false
WITH cg, pm, count(DISTINCT g) AS overlap,
     size([(cg)<-[:CURATED_MEMBER_OF]-(cur:Gene) | cur]) AS curated_size,
     size([(pm)<-[:MEMBER_OF_PATHWAY]-(mem:Gene) | mem]) AS module_size
WITH cg, pm, overlap,
     overlap * 1.0 / curated_size AS curated_coverage,
     overlap * 1.0 / module_size AS module_coverage
WHERE curated_coverage >= $threshold OR module_coverage >= $threshold
MERGE (cg)-[r:ENRICHES_MODULE]->(pm)
SET r.overlap_count = overlap,
    r.curated_coverage = curated_coverage,
    r.module_coverage = module_coverage,
    r.enrichment_score = (curated_coverage + module_coverage) / 2`
)

// collectionDefs are the three fixed collections; total_genesets is filled
// from what was actually parsed.
var collectionDefs = []struct {
	id, name, description, authority string
}{
	{CollectionHallmark, "MSigDB Hallmark Collection",
		"Hallmark gene sets summarize and represent specific well-defined biological states or processes", "MSigDB"},
	{CollectionBicluster, "RNAseqDB Bicluster Collection",
		"Co-expressed gene clusters from RNAseq database analysis", "RNAseqDB"},
	{CollectionCustom, "Literature-Curated Research Sets",
		"Manually curated gene sets from research literature", "Literature"},
}

// Policy carries the quality thresholds for the stage.
type Policy struct {
	MinValidationRatio float64
	OverlapThreshold   float64
}

// Result summarizes one integration run.
type Result struct {
	Genesets    int
	Passing     int
	LowQuality  int
	Members     int
	Enrichments int64
	Load        graph.Stats
}

// Counter is the read slice used to report enrichment counts.
type Counter interface {
	CountValue(ctx context.Context, cypher string, params map[string]any) (int64, error)
}

// Integrator commits curated genesets: collection nodes, CuratedGeneset
// nodes (including low-quality ones, for audit), PART_OF_COLLECTION links,
// CURATED_MEMBER_OF edges for passing genesets only, and ENRICHES_MODULE
// edges against pathway modules.
type Integrator struct {
	loader *graph.Loader
	run    graph.TxRunner
	count  Counter
	res    *resolve.Resolver
	log    *logger.Logger
	policy Policy
}

func NewIntegrator(loader *graph.Loader, run graph.TxRunner, count Counter, res *resolve.Resolver, log *logger.Logger, policy Policy) *Integrator {
	if policy.MinValidationRatio <= 0 {
		policy.MinValidationRatio = 0.5
	}
	if policy.OverlapThreshold <= 0 {
		policy.OverlapThreshold = 0.3
	}
	return &Integrator{
		loader: loader,
		run:    run,
		count:  count,
		res:    res,
		log:    log.With("component", "talisman"),
		policy: policy,
	}
}

func (i *Integrator) Integrate(ctx context.Context, genesets []Geneset) (Result, error) {
	var result Result
	result.Genesets = len(genesets)

	perCollection := map[string]int{}
	genesetRows := make([]map[string]any, 0, len(genesets))
	linkRows := make([]map[string]any, 0, len(genesets))
	memberRows := make([]map[string]any, 0, 4096)

	for _, gs := range genesets {
		v := Validate(i.res, gs)
		passed := v.Passed(i.policy.MinValidationRatio)
		if passed {
			result.Passing++
		} else {
			result.LowQuality++
			i.log.Warn("geneset below validation threshold, recording without memberships",
				"geneset_id", gs.ID,
				"ratio", v.Ratio,
				"quality", v.Quality(),
				"invalid", len(v.Invalid))
		}

		perCollection[gs.Collection]++
		genesetRows = append(genesetRows, map[string]any{
			"geneset_id":           gs.ID,
			"name":                 gs.Name,
			"description":          gs.Description,
			"collection":           gs.Collection,
			"source_file":          gs.SourceFile,
			"taxon":                gs.Taxon,
			"gene_count":           gs.MemberCount(),
			"validated_gene_count": len(v.Valid),
			"validation_ratio":     v.Ratio,
			"low_quality":          !passed,
			"pmid":                 nilIfEmpty(gs.PMID),
			"systematic_name":      nilIfEmpty(gs.SystematicName),
			"msigdb_url":           nilIfEmpty(gs.MSigDBURL),
		})
		linkRows = append(linkRows, map[string]any{
			"geneset_id":    gs.ID,
			"collection_id": gs.Collection,
		})

		if !passed {
			continue
		}
		for _, symbol := range v.Valid {
			memberRows = append(memberRows, map[string]any{
				"geneset_id":  gs.ID,
				"symbol":      symbol,
				"source_file": gs.SourceFile,
			})
		}
	}
	result.Members = len(memberRows)

	collectionRows := make([]map[string]any, 0, len(collectionDefs))
	for _, c := range collectionDefs {
		collectionRows = append(collectionRows, map[string]any{
			"collection_id":    c.id,
			"collection_name":  c.name,
			"description":      c.description,
			"source_authority": c.authority,
			"total_genesets":   perCollection[c.id],
		})
	}

	load, err := i.loader.ApplyAll(ctx,
		graph.Op{Kind: "GenesetCollection", Cypher: cypherMergeCollection, Rows: collectionRows},
		graph.Op{Kind: "CuratedGeneset", Cypher: cypherMergeGeneset, Rows: genesetRows},
		graph.Op{Kind: "PART_OF_COLLECTION", Cypher: cypherMergeCollectionLink, Rows: linkRows},
		graph.Op{Kind: "CURATED_MEMBER_OF", Cypher: cypherMergeMembership, Rows: memberRows},
	)
	result.Load = load
	if err != nil {
		return result, fmt.Errorf("talisman: integrate genesets: %w", err)
	}

	if err := i.run.ExecuteWrite(ctx, func(ctx context.Context, tx graph.Tx) error {
		return tx.Run(ctx, cypherEnrich, map[string]any{"threshold": i.policy.OverlapThreshold})
	}); err != nil {
		return result, fmt.Errorf("talisman: enrichment pass: %w", err)
	}
	if i.count != nil {
		n, err := i.count.CountValue(ctx, `MATCH ()-[r:ENRICHES_MODULE]->() RETURN count(r) AS n`, nil)
		if err != nil {
			return result, fmt.Errorf("talisman: count enrichments: %w", err)
		}
		result.Enrichments = n
	}

	i.log.Info("curated genesets committed",
		"genesets", result.Genesets,
		"passing", result.Passing,
		"low_quality", result.LowQuality,
		"memberships", result.Members,
		"enrichments", result.Enrichments)
	return result, nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
