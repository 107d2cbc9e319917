package talisman

import (
	"context"
	"strings"
	"testing"

	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/platform/logger"
	"github.com/biomedkg/biokg/internal/resolve"
)

const sampleYAML = `
name: HALLMARK APOPTOSIS
description: Genes mediating programmed cell death
taxon: human
gene_symbols:
  - CASP3
  - CASP8
  - BAX
`

const sampleYAMLGeneIDs = `
name: ig receptors
gene_ids:
  - HGNC:672
  - HGNC:7157
`

const sampleJSON = `{
  "HALLMARK_APOPTOSIS": {
    "systematicName": "M5902",
    "pmid": "26771021",
    "geneSymbols": ["CASP3", "CASP8", "BAX", "BCL2"],
    "msigdbURL": "https://www.gsea-msigdb.org/gsea/msigdb/cards/HALLMARK_APOPTOSIS",
    "collection": "H"
  }
}`

func TestGenesetID(t *testing.T) {
	cases := map[string]string{
		"HALLMARK APOPTOSIS":  "HALLMARK_APOPTOSIS",
		"ig receptors":        "IG_RECEPTORS",
		"  odd--name  (v2)  ": "ODD_NAME_V2",
		"":                    "UNKNOWN_GENESET",
	}
	for in, want := range cases {
		if got := GenesetID(in); got != want {
			t.Fatalf("GenesetID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClassifyCollection(t *testing.T) {
	if got := ClassifyCollection("hallmark_apoptosis.yaml"); got != CollectionHallmark {
		t.Fatalf("expected HALLMARK, got %q", got)
	}
	if got := ClassifyCollection("bicluster_RNAseqDB_1002.yaml"); got != CollectionBicluster {
		t.Fatalf("expected BICLUSTER, got %q", got)
	}
	if got := ClassifyCollection("ig-receptors.yaml"); got != CollectionCustom {
		t.Fatalf("expected CUSTOM, got %q", got)
	}
}

func TestParserPrefersJSONOverYAML(t *testing.T) {
	p := NewParser(logger.NewNop())
	if err := p.AddYAML("hallmark_apoptosis.yaml", []byte(sampleYAML)); err != nil {
		t.Fatalf("AddYAML: %v", err)
	}
	if err := p.AddJSON("hallmark_apoptosis.json", []byte(sampleJSON)); err != nil {
		t.Fatalf("AddJSON: %v", err)
	}

	genesets := p.Genesets()
	if len(genesets) != 1 {
		t.Fatalf("expected 1 deduplicated geneset, got %d", len(genesets))
	}
	gs := genesets[0]
	if gs.ID != "HALLMARK_APOPTOSIS" {
		t.Fatalf("unexpected geneset id %q", gs.ID)
	}
	if gs.PMID != "26771021" || gs.MSigDBURL == "" {
		t.Fatalf("JSON metadata should win: %+v", gs)
	}
	if len(gs.Symbols) != 4 {
		t.Fatalf("expected the JSON gene list, got %v", gs.Symbols)
	}
	if p.Duplicates != 1 {
		t.Fatalf("expected 1 duplicate resolved, got %d", p.Duplicates)
	}

	// Adding the YAML again after JSON must not clobber the JSON version.
	if err := p.AddYAML("hallmark_apoptosis.yaml", []byte(sampleYAML)); err != nil {
		t.Fatalf("AddYAML: %v", err)
	}
	gs = p.Genesets()[0]
	if gs.PMID != "26771021" {
		t.Fatalf("YAML re-add clobbered the JSON version")
	}
}

func TestParserYAMLGeneIDs(t *testing.T) {
	p := NewParser(logger.NewNop())
	if err := p.AddYAML("ig-receptors.yaml", []byte(sampleYAMLGeneIDs)); err != nil {
		t.Fatalf("AddYAML: %v", err)
	}
	gs := p.Genesets()[0]
	if gs.ID != "IG_RECEPTORS" || len(gs.GeneIDs) != 2 || len(gs.Symbols) != 0 {
		t.Fatalf("unexpected geneset %+v", gs)
	}
	if gs.Taxon != "human" {
		t.Fatalf("expected default taxon human, got %q", gs.Taxon)
	}
}

func TestValidateQualityBuckets(t *testing.T) {
	log := logger.NewNop()
	res := resolve.New(log)
	res.AddGene("CASP3", "", "")
	res.AddGene("CASP8", "", "")

	v := Validate(res, Geneset{ID: "X", Symbols: []string{"CASP3", "CASP8"}})
	if v.Ratio != 1 || v.Quality() != "perfect" {
		t.Fatalf("expected perfect resolution, got %+v", v)
	}

	v = Validate(res, Geneset{ID: "Y", Symbols: []string{"CASP3", "NOPE1", "NOPE2", "NOPE3"}})
	if v.Ratio != 0.25 || v.Quality() != "poor" {
		t.Fatalf("expected poor quality at 0.25, got %+v", v)
	}
	if v.Passed(0.5) {
		t.Fatalf("0.25 must not pass a 0.5 floor")
	}
}

func TestValidateDedupesBothRatioSides(t *testing.T) {
	log := logger.NewNop()
	res := resolve.New(log)
	res.AddGene("BRCA1", "", "")

	// Repeated members, resolvable or not, count once in the ratio.
	v := Validate(res, Geneset{ID: "D", Symbols: []string{"BRCA1", "brca1", "FAKE1", "FAKE1", " fake1 "}})
	if len(v.Valid) != 1 || len(v.Invalid) != 1 {
		t.Fatalf("expected 1 valid / 1 invalid after dedup, got %+v", v)
	}
	if v.Ratio != 0.5 {
		t.Fatalf("expected ratio 0.5, got %v", v.Ratio)
	}
}

func TestValidateResolvesHGNCPrefix(t *testing.T) {
	log := logger.NewNop()
	res := resolve.New(log)
	res.AddGene("BRCA1", "672", "")

	v := Validate(res, Geneset{ID: "Z", GeneIDs: []string{"HGNC:672"}})
	if len(v.Valid) != 1 || v.Valid[0] != "BRCA1" {
		t.Fatalf("expected HGNC id resolved through entrez, got %+v", v)
	}
}

type stubRunner struct {
	calls []struct {
		cypher string
		rows   []map[string]any
	}
}

func (s *stubRunner) ExecuteWrite(ctx context.Context, work func(ctx context.Context, tx graph.Tx) error) error {
	return work(ctx, stubTx{runner: s})
}

type stubTx struct{ runner *stubRunner }

func (t stubTx) Run(ctx context.Context, cypher string, params map[string]any) error {
	rows, _ := params["rows"].([]map[string]any)
	t.runner.calls = append(t.runner.calls, struct {
		cypher string
		rows   []map[string]any
	}{cypher, rows})
	return nil
}

func (s *stubRunner) rowsFor(substr string) []map[string]any {
	var out []map[string]any
	for _, c := range s.calls {
		if strings.Contains(c.cypher, substr) {
			out = append(out, c.rows...)
		}
	}
	return out
}

type stubCounter struct{ n int64 }

func (s stubCounter) CountValue(ctx context.Context, cypher string, params map[string]any) (int64, error) {
	return s.n, nil
}

func TestIntegrateLowQualityGenesetGetsNoMemberships(t *testing.T) {
	log := logger.NewNop()
	runner := &stubRunner{}
	loader := graph.NewLoader(runner, log, graph.Options{BatchSize: 100})
	res := resolve.New(log)
	res.AddGene("CASP3", "", "")
	res.AddGene("CASP8", "", "")

	genesets := []Geneset{
		{ID: "GOOD_SET", Name: "good", Symbols: []string{"CASP3", "CASP8"}, Collection: CollectionHallmark},
		{ID: "BAD_SET", Name: "bad", Symbols: []string{"CASP3", "ZZZ1", "ZZZ2", "ZZZ3"}, Collection: CollectionCustom},
	}

	it := NewIntegrator(loader, runner, stubCounter{n: 7}, res, log,
		Policy{MinValidationRatio: 0.5, OverlapThreshold: 0.3})
	result, err := it.Integrate(context.Background(), genesets)
	if err != nil {
		t.Fatalf("Integrate: %v", err)
	}

	if result.Passing != 1 || result.LowQuality != 1 {
		t.Fatalf("expected 1 passing / 1 low quality, got %d/%d", result.Passing, result.LowQuality)
	}
	if result.Members != 2 {
		t.Fatalf("expected memberships only for the passing geneset, got %d", result.Members)
	}
	if result.Enrichments != 7 {
		t.Fatalf("expected enrichment count from store, got %d", result.Enrichments)
	}

	// The failing geneset is still recorded with its true member count.
	nodeRows := runner.rowsFor("MERGE (cg:CuratedGeneset")
	if len(nodeRows) != 2 {
		t.Fatalf("expected both genesets recorded, got %d", len(nodeRows))
	}
	for _, row := range nodeRows {
		switch row["geneset_id"] {
		case "BAD_SET":
			if row["low_quality"] != true || row["gene_count"] != 4 {
				t.Fatalf("low-quality geneset misrecorded: %v", row)
			}
		case "GOOD_SET":
			if row["low_quality"] != false {
				t.Fatalf("passing geneset flagged low quality: %v", row)
			}
		}
	}

	memberRows := runner.rowsFor("MERGE (g)-[r:CURATED_MEMBER_OF]")
	for _, row := range memberRows {
		if row["geneset_id"] == "BAD_SET" {
			t.Fatalf("low-quality geneset must not get membership edges")
		}
	}
	if len(memberRows) != 2 {
		t.Fatalf("expected 2 membership rows, got %d", len(memberRows))
	}

	// Collection totals reflect parsed counts.
	for _, row := range runner.rowsFor("MERGE (gc:GenesetCollection") {
		if row["collection_id"] == CollectionHallmark && row["total_genesets"] != 1 {
			t.Fatalf("unexpected hallmark total %v", row["total_genesets"])
		}
	}
}
