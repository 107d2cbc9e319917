package graph

import (
	"context"
	"fmt"

	"github.com/biomedkg/biokg/internal/platform/logger"
)

// DDLRunner executes a single schema statement in auto-commit mode.
// Constraint and index DDL cannot run inside managed transactions.
type DDLRunner interface {
	RunDDL(ctx context.Context, stmt string) error
}

// Uniqueness constraints back the natural-key upsert invariant: these are
// fatal when they cannot be created.
var schemaConstraints = []string{
	"CREATE CONSTRAINT go_term_id_unique IF NOT EXISTS FOR (go:GOTerm) REQUIRE go.go_id IS UNIQUE",
	"CREATE CONSTRAINT disease_name_unique IF NOT EXISTS FOR (d:Disease) REQUIRE d.name IS UNIQUE",
	"CREATE CONSTRAINT virus_name_unique IF NOT EXISTS FOR (v:Virus) REQUIRE v.name IS UNIQUE",
	"CREATE CONSTRAINT drug_name_unique IF NOT EXISTS FOR (d:Drug) REQUIRE d.name IS UNIQUE",
	"CREATE CONSTRAINT study_geo_unique IF NOT EXISTS FOR (s:Study) REQUIRE s.geo_id IS UNIQUE",
	"CREATE CONSTRAINT module_id_unique IF NOT EXISTS FOR (m:FunctionalModule) REQUIRE m.cluster_id IS UNIQUE",
	"CREATE CONSTRAINT pathway_nest_unique IF NOT EXISTS FOR (pm:PathwayModule) REQUIRE pm.nest_id IS UNIQUE",
	"CREATE CONSTRAINT geneset_id_unique IF NOT EXISTS FOR (cg:CuratedGeneset) REQUIRE cg.geneset_id IS UNIQUE",
	"CREATE CONSTRAINT collection_id_unique IF NOT EXISTS FOR (gc:GenesetCollection) REQUIRE gc.collection_id IS UNIQUE",
}

// Secondary indexes are performance-only; failures degrade to warnings.
var schemaIndexes = []string{
	"CREATE INDEX go_term_name_idx IF NOT EXISTS FOR (go:GOTerm) ON (go.name)",
	"CREATE INDEX go_term_namespace_idx IF NOT EXISTS FOR (go:GOTerm) ON (go.namespace)",
	"CREATE INDEX gene_symbol_idx IF NOT EXISTS FOR (g:Gene) ON (g.symbol)",
	"CREATE INDEX gene_entrez_idx IF NOT EXISTS FOR (g:Gene) ON (g.entrez_id)",
	"CREATE INDEX gene_uniprot_idx IF NOT EXISTS FOR (g:Gene) ON (g.uniprot_id)",
	"CREATE INDEX alt_mapping_obsolete_idx IF NOT EXISTS FOR (alt:AltGOMapping) ON (alt.obsolete_id)",
	"CREATE INDEX module_level_idx IF NOT EXISTS FOR (m:FunctionalModule) ON (m.level)",
	"CREATE INDEX disease_name_idx IF NOT EXISTS FOR (d:Disease) ON (d.name)",
	"CREATE INDEX virus_strain_idx IF NOT EXISTS FOR (v:Virus) ON (v.strain)",
}

// InitSchema declares uniqueness constraints and indexes before any data
// loads. Must complete before the first integrator runs.
func InitSchema(ctx context.Context, ddl DDLRunner, log *logger.Logger) error {
	for _, stmt := range schemaConstraints {
		if err := ddl.RunDDL(ctx, stmt); err != nil {
			return fmt.Errorf("schema: constraint failed: %s: %w", stmt, err)
		}
	}
	log.Info("uniqueness constraints declared", "count", len(schemaConstraints))

	for _, stmt := range schemaIndexes {
		if err := ddl.RunDDL(ctx, stmt); err != nil {
			log.Warn("index creation failed (continuing)", "stmt", stmt, "error", err)
		}
	}
	log.Info("indexes declared", "count", len(schemaIndexes))
	return nil
}
