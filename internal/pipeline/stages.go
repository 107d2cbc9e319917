package pipeline

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/biomedkg/biokg/internal/annot"
	"github.com/biomedkg/biokg/internal/config"
	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/metrics"
	"github.com/biomedkg/biokg/internal/obo"
	"github.com/biomedkg/biokg/internal/omics"
	"github.com/biomedkg/biokg/internal/ontology"
	"github.com/biomedkg/biokg/internal/platform/logger"
	"github.com/biomedkg/biokg/internal/platform/neo4jdb"
	"github.com/biomedkg/biokg/internal/resolve"
	"github.com/biomedkg/biokg/internal/talisman"
)

// Stage names; the checkpoint keys off these, so they are stable.
const (
	StageSchema       = "schema"
	StageOntologyBP   = "ontology:biological_process"
	StageOntologyCC   = "ontology:cellular_component"
	StageOntologyMF   = "ontology:molecular_function"
	StageAnnotations  = "annotations"
	StageInterconnect = "interconnect"
	StageDisease      = "omics:disease"
	StageViral        = "omics:viral"
	StageDrug         = "omics:drug"
	StageNest         = "omics:nest"
	StagePathway      = "omics:pathway"
	StageTalisman     = "talisman"
	StageValidate     = "validate"
)

// namespace source directories under the data dir.
var namespaceDirs = map[string]string{
	obo.BiologicalProcess: "GO_BP",
	obo.CellularComponent: "GO_CC",
	obo.MolecularFunction: "GO_MF",
}

// Deps wires the stages to the shared infrastructure.
type Deps struct {
	Client   *neo4jdb.Client
	Loader   *graph.Loader
	Resolver *resolve.Resolver
	Config   *config.Config
	Log      *logger.Logger

	// Report receives the validation outcome; set by the build command.
	Report **metrics.Report
}

// BuildStages assembles the full build in dependency order. The disease,
// viral, and drug integrators write disjoint relationship families, so
// they share a group and run concurrently.
func BuildStages(d Deps) []Stage {
	ontologyRequires := []string{StageSchema}
	omicsRequires := []string{StageAnnotations}

	return []Stage{
		{Name: StageSchema, Run: d.runSchema},
		{Name: StageOntologyBP, Requires: ontologyRequires, Run: d.ontologyStage(obo.BiologicalProcess)},
		{Name: StageOntologyCC, Requires: ontologyRequires, Run: d.ontologyStage(obo.CellularComponent)},
		{Name: StageOntologyMF, Requires: ontologyRequires, Run: d.ontologyStage(obo.MolecularFunction)},
		{Name: StageAnnotations, Requires: []string{StageOntologyBP, StageOntologyCC, StageOntologyMF}, Run: d.runAnnotations},
		{Name: StageInterconnect, Requires: []string{StageAnnotations}, Run: d.runInterconnect},
		{Name: StageDisease, Requires: omicsRequires, Group: "omics", Run: d.runDisease},
		{Name: StageViral, Requires: omicsRequires, Group: "omics", Run: d.runViral},
		{Name: StageDrug, Requires: omicsRequires, Group: "omics", Run: d.runDrug},
		{Name: StageNest, Requires: omicsRequires, Run: d.runNest},
		{Name: StagePathway, Requires: omicsRequires, Run: d.runPathway},
		{Name: StageTalisman, Requires: []string{StageAnnotations, StagePathway}, Run: d.runTalisman},
		{Name: StageValidate, Requires: []string{
			StageInterconnect, StageDisease, StageViral, StageDrug, StageNest, StageTalisman,
		}, Run: d.runValidate},
	}
}

func (d Deps) runSchema(ctx context.Context) error {
	return graph.InitSchema(ctx, d.Client, d.Log)
}

func (d Deps) ontologyStage(namespace string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		dir := filepath.Join(d.Config.DataDir, namespaceDirs[namespace])

		ref := ontology.NewReference()
		if err := loadReferenceFile(ref.LoadNames, filepath.Join(dir, "goID_2_name.tab")); err != nil {
			return err
		}
		if err := loadReferenceFile(func(r io.Reader) error {
			return ref.LoadNamespaces(r, namespace)
		}, filepath.Join(dir, "goID_2_namespace.tab")); err != nil {
			return err
		}
		if err := loadReferenceFile(ref.LoadAltIDs, filepath.Join(dir, "goID_2_alt_id.tab")); err != nil {
			return err
		}

		f, err := os.Open(filepath.Join(dir, "go-basic.obo"))
		if err != nil {
			return fmt.Errorf("open obo source: %w", err)
		}
		defer f.Close()
		doc, err := obo.Parse(f)
		if err != nil {
			return err
		}
		terms := obo.FilterNamespace(doc.Terms, namespace)

		builder := ontology.NewBuilder(d.Loader, d.Resolver, d.Log)
		if _, err := builder.ImportTerms(ctx, terms, namespace, ref); err != nil {
			return err
		}
		_, err = builder.ImportHierarchy(ctx, terms)
		return err
	}
}

func (d Deps) runAnnotations(ctx context.Context) error {
	if err := d.primeGOTerms(ctx); err != nil {
		return err
	}
	it := annot.NewIntegrator(d.Loader, d.Resolver, d.Log)
	for _, namespace := range []string{obo.BiologicalProcess, obo.CellularComponent, obo.MolecularFunction} {
		anns, err := readGAF(filepath.Join(d.Config.DataDir, namespaceDirs[namespace], "goa_human.gaf.gz"))
		if err != nil {
			return err
		}
		if _, err := it.Integrate(ctx, anns, namespace); err != nil {
			return err
		}
	}
	return nil
}

func (d Deps) runInterconnect(ctx context.Context) error {
	ic := ontology.NewInterconnector(d.Client, d.Client, d.Log, ontology.InterconnectPolicy{
		MinSharedGenes:   d.Config.Interconnect.MinSharedGenes,
		MediumConfidence: d.Config.Interconnect.MediumConfidence,
		HighConfidence:   d.Config.Interconnect.HighConfidence,
	})
	_, err := ic.Connect(ctx)
	return err
}

func (d Deps) runDisease(ctx context.Context) error {
	if err := d.primeGenes(ctx); err != nil {
		return err
	}
	records, err := readEdges(d.omicsPath("Disease__gene_attribute_edges.txt"))
	if err != nil {
		return err
	}
	matrix, err := readMatrix(d.omicsPath("Disease_gene_attribute_matrix_standardized.txt"))
	if err != nil {
		return err
	}
	_, err = omics.NewDiseaseIntegrator(d.Loader, d.Resolver, d.Log).Integrate(ctx, records, matrix)
	return err
}

func (d Deps) runViral(ctx context.Context) error {
	if err := d.primeGenes(ctx); err != nil {
		return err
	}
	records, err := readEdges(d.omicsPath("Viral_Infections__gene_attribute_edges.txt"))
	if err != nil {
		return err
	}
	matrix, err := readMatrix(d.omicsPath("Viral_Infections_gene_attribute_matrix_standardized.txt"))
	if err != nil {
		return err
	}
	_, err = omics.NewViralIntegrator(d.Loader, d.Resolver, d.Log).Integrate(ctx, records, matrix)
	return err
}

func (d Deps) runDrug(ctx context.Context) error {
	if err := d.primeGenes(ctx); err != nil {
		return err
	}
	records, err := readEdges(d.omicsPath("Small_molecule__gene_attribute_edges.txt"))
	if err != nil {
		return err
	}
	_, err = omics.NewDrugIntegrator(d.Loader, d.Resolver, d.Log).Integrate(ctx, records)
	return err
}

func (d Deps) runNest(ctx context.Context) error {
	if err := d.primeGenes(ctx); err != nil {
		return err
	}
	f, err := os.Open(d.omicsPath("NeST__IAS_clixo_hidef_Nov17.edges"))
	if err != nil {
		return fmt.Errorf("open nest edges: %w", err)
	}
	defer f.Close()
	edges, err := omics.ParseNestEdges(f)
	if err != nil {
		return err
	}
	_, err = omics.NewNestIntegrator(d.Loader, d.Resolver, d.Log).Integrate(ctx, edges)
	return err
}

func (d Deps) runPathway(ctx context.Context) error {
	if err := d.primeGenes(ctx); err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(d.Config.DataDir, "NeST_table_All.csv"))
	if err != nil {
		return fmt.Errorf("open pathway table: %w", err)
	}
	defer f.Close()
	pathways, err := omics.ParsePathways(f)
	if err != nil {
		return err
	}
	_, err = omics.NewPathwayIntegrator(d.Loader, d.Resolver, d.Log).Integrate(ctx, pathways)
	return err
}

func (d Deps) runTalisman(ctx context.Context) error {
	if err := d.primeGenes(ctx); err != nil {
		return err
	}
	parser := talisman.NewParser(d.Log)
	dir := filepath.Join(d.Config.DataDir, "talisman", "genesets", "human")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read geneset directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read geneset %s: %w", name, err)
		}
		// Duplicate geneset ids resolve JSON-over-YAML regardless of
		// directory order.
		if ext == ".yaml" {
			if err := parser.AddYAML(name, data); err != nil {
				d.Log.Warn("skipping unparsable geneset file", "file", name, "error", err)
			}
		} else {
			if err := parser.AddJSON(name, data); err != nil {
				d.Log.Warn("skipping unparsable geneset file", "file", name, "error", err)
			}
		}
	}

	it := talisman.NewIntegrator(d.Loader, d.Client, d.Client, d.Resolver, d.Log, talisman.Policy{
		MinValidationRatio: d.Config.Talisman.MinValidationRatio,
		OverlapThreshold:   d.Config.Talisman.OverlapThreshold,
	})
	_, err = it.Integrate(ctx, parser.Genesets())
	return err
}

func (d Deps) runValidate(ctx context.Context) error {
	report, err := metrics.NewCollector(d.Client, d.Log).Collect(ctx)
	if err != nil {
		return err
	}
	if d.Report != nil {
		*d.Report = report
	}
	if !report.Healthy() {
		return fmt.Errorf("validation failed: %s", strings.Join(report.HardFailures, "; "))
	}
	return nil
}

// primeGenes loads the committed gene inventory into the resolver when a
// resumed run skipped the base load. The omics stages run concurrently,
// so priming is serialized inside the resolver.
func (d Deps) primeGenes(ctx context.Context) error {
	return d.Resolver.PrimeGenes(ctx, d.Client)
}

func (d Deps) primeGOTerms(ctx context.Context) error {
	return d.Resolver.PrimeGOTerms(ctx, d.Client)
}

func (d Deps) omicsPath(name string) string {
	return filepath.Join(d.Config.DataDir, "Omics_data", name)
}

func loadReferenceFile(load func(io.Reader) error, path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		// Reference tables are optional cross-validation input.
		return nil
	}
	if err != nil {
		return fmt.Errorf("open reference table %s: %w", path, err)
	}
	defer f.Close()
	return load(f)
}

func readGAF(path string) ([]annot.Annotation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gaf source: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open gaf gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return annot.ParseGAF(r)
}

func readEdges(path string) ([]omics.EdgeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open edges source: %w", err)
	}
	defer f.Close()
	return omics.ParseEdgeRecords(f)
}

func readMatrix(path string) (*omics.ExpressionMatrix, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		// Expression enrichment is optional; associations still load.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open matrix source: %w", err)
	}
	defer f.Close()
	return omics.ParseExpressionMatrix(f)
}
