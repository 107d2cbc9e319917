package ontology

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/obo"
	"github.com/biomedkg/biokg/internal/platform/logger"
	"github.com/biomedkg/biokg/internal/resolve"
)

const (
	cypherMergeTerm = `
UNWIND $rows AS row
MERGE (t:GOTerm {go_id: row.go_id})
SET t.name = row.name,
    t.namespace = row.namespace,
    t.definition = row.definition,
    t.is_obsolete = row.is_obsolete,
    t.synonyms = row.synonyms,
    t.updated_at = row.updated_at`

	cypherMergeAltMapping = `
UNWIND $rows AS row
MATCH (t:GOTerm {go_id: row.canonical_id})
MERGE (a:AltGOMapping {obsolete_id: row.obsolete_id})
SET a.canonical_id = row.canonical_id,
    a.namespace = row.namespace
MERGE (a)-[:MAPS_TO]->(t)`

	cypherMergeHierarchy = `
UNWIND $rows AS row
MATCH (c:GOTerm {go_id: row.child})
MATCH (p:GOTerm {go_id: row.parent})
MERGE (c)-[r:%s]->(p)
SET r.source = row.source`

	cypherMergeCollapsed = `
UNWIND $rows AS row
MATCH (c:GOTerm {go_id: row.child})
MATCH (p:GOTerm {go_id: row.parent})
MERGE (c)-[r:COLLAPSED_HIERARCHY]->(p)
SET r.via = row.via,
    r.rel_type = row.rel_type`
)

var relTypePattern = regexp.MustCompile(`^[A-Z][A-Z_]*$`)

// TermStats summarizes one namespace's term import.
type TermStats struct {
	Terms           int
	Obsolete        int
	AltMappings     int
	NameCorrections int
	AltIDAdditions  int
	MappingsSkipped int
	Load            graph.Stats
}

// HierarchyStats summarizes the hierarchy edge commit.
type HierarchyStats struct {
	ByType    map[string]int
	Rewritten int
	Skipped   int
	Collapsed int
	Load      graph.Stats
}

// Builder stages GO terms, alternate-ID mappings, and hierarchy edges, and
// registers every committed identifier with the resolver so downstream
// stages can resolve against it.
type Builder struct {
	loader *graph.Loader
	res    *resolve.Resolver
	log    *logger.Logger
}

func NewBuilder(loader *graph.Loader, res *resolve.Resolver, log *logger.Logger) *Builder {
	return &Builder{loader: loader, res: res, log: log.With("component", "ontology")}
}

// ImportTerms commits one namespace's GOTerm nodes plus the AltGOMapping
// nodes and MAPS_TO edges derived from alt_id and replaced_by. Obsolete
// terms do not become GOTerm nodes; they contribute mappings only. The
// optional reference tables correct names and supply alt IDs the OBO file
// is missing.
func (b *Builder) ImportTerms(ctx context.Context, terms []obo.Term, namespace string, ref *Reference) (TermStats, error) {
	var stats TermStats
	now := time.Now().UTC().Format(time.RFC3339Nano)

	termRows := make([]map[string]any, 0, len(terms))
	type mapping struct{ obsolete, canonical string }
	var mappings []mapping

	for _, t := range terms {
		if t.Namespace != namespace || t.ID == "" {
			continue
		}
		if t.IsObsolete {
			stats.Obsolete++
			for _, repl := range t.ReplacedBy {
				mappings = append(mappings, mapping{obsolete: t.ID, canonical: repl})
			}
			continue
		}

		name := t.Name
		if ref != nil {
			if refName, ok := ref.Names[t.ID]; ok && refName != name {
				b.log.Debug("term name corrected from reference",
					"go_id", t.ID, "obo_name", name, "reference_name", refName)
				name = refName
				stats.NameCorrections++
			}
		}

		altIDs := append([]string(nil), t.AltIDs...)
		if ref != nil {
			known := map[string]struct{}{}
			for _, a := range altIDs {
				known[a] = struct{}{}
			}
			for _, a := range ref.AltIDs[t.ID] {
				if _, ok := known[a]; !ok {
					altIDs = append(altIDs, a)
					stats.AltIDAdditions++
				}
			}
		}

		b.res.AddGOTerm(t.ID)
		for _, alt := range altIDs {
			mappings = append(mappings, mapping{obsolete: alt, canonical: t.ID})
		}

		synonyms := make([]string, 0, len(t.Synonyms))
		for _, s := range t.Synonyms {
			synonyms = append(synonyms, s.Text)
		}

		termRows = append(termRows, map[string]any{
			"go_id":       t.ID,
			"name":        name,
			"namespace":   namespace,
			"definition":  t.Definition,
			"is_obsolete": false,
			"synonyms":    synonyms,
			"updated_at":  now,
		})
		stats.Terms++
	}

	mappingRows := make([]map[string]any, 0, len(mappings))
	for _, m := range mappings {
		if err := b.res.AddAltGO(m.obsolete, m.canonical); err != nil {
			stats.MappingsSkipped++
			b.log.Warn("skipping alternate-ID mapping",
				"obsolete_id", m.obsolete, "canonical_id", m.canonical, "error", err)
			continue
		}
		mappingRows = append(mappingRows, map[string]any{
			"obsolete_id":  m.obsolete,
			"canonical_id": m.canonical,
			"namespace":    namespace,
		})
		stats.AltMappings++
	}

	load, err := b.loader.ApplyAll(ctx,
		graph.Op{Kind: "GOTerm:" + namespace, Cypher: cypherMergeTerm, Rows: termRows},
		graph.Op{Kind: "AltGOMapping:" + namespace, Cypher: cypherMergeAltMapping, Rows: mappingRows},
	)
	stats.Load = load
	if err != nil {
		return stats, fmt.Errorf("ontology: import %s terms: %w", namespace, err)
	}
	b.log.Info("namespace terms committed",
		"namespace", namespace,
		"terms", stats.Terms,
		"obsolete", stats.Obsolete,
		"alt_mappings", stats.AltMappings,
		"name_corrections", stats.NameCorrections)
	return stats, nil
}

// ImportHierarchy resolves every relationship endpoint through the resolver
// (rewriting obsolete targets), verifies the IS_A/PART_OF subgraph is
// acyclic, and commits the clean edges grouped per relationship type. When
// cycles are found the clean branches still commit, the offending chains
// are reported, and the call fails so the stage does not checkpoint.
func (b *Builder) ImportHierarchy(ctx context.Context, terms []obo.Term) (HierarchyStats, error) {
	stats := HierarchyStats{ByType: map[string]int{}}

	var edges []edge
	for _, t := range terms {
		if t.ID == "" || t.IsObsolete {
			continue
		}
		child, _, ok := b.res.ResolveGO(t.ID)
		if !ok {
			continue
		}
		for _, rel := range t.Relationships {
			if !relTypePattern.MatchString(rel.Type) {
				stats.Skipped++
				b.log.Warn("skipping hierarchy edge with malformed type",
					"child", child, "type", rel.Type, "target", rel.TargetID)
				continue
			}
			parent, rewritten, ok := b.res.ResolveGO(rel.TargetID)
			if !ok {
				stats.Skipped++
				b.log.Debug("skipping hierarchy edge, unresolved parent",
					"child", child, "type", rel.Type, "target", rel.TargetID)
				continue
			}
			if rewritten {
				stats.Rewritten++
			}
			if parent == child {
				stats.Skipped++
				continue
			}
			edges = append(edges, edge{Child: child, Parent: parent, Type: rel.Type})
		}
	}

	cycleErr := detectCycles(edges)
	committable := edges
	if cycleErr != nil {
		tainted := cycleErr.Nodes()
		committable = committable[:0:0]
		for _, e := range edges {
			if _, bad := tainted[e.Child]; bad {
				continue
			}
			if _, bad := tainted[e.Parent]; bad {
				continue
			}
			committable = append(committable, e)
		}
		b.log.Error("hierarchy cycles detected, affected branches withheld",
			"cycles", len(cycleErr.Chains), "withheld_edges", len(edges)-len(committable))
	}

	byType := map[string][]map[string]any{}
	for _, e := range committable {
		byType[e.Type] = append(byType[e.Type], map[string]any{
			"child":  e.Child,
			"parent": e.Parent,
			"source": "obo",
		})
		stats.ByType[e.Type]++
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	ops := make([]graph.Op, 0, len(types)+1)
	for _, t := range types {
		ops = append(ops, graph.Op{
			Kind:   "hierarchy:" + t,
			Cypher: fmt.Sprintf(cypherMergeHierarchy, t),
			Rows:   byType[t],
		})
	}

	collapsed := collapseShortcuts(committable)
	stats.Collapsed = len(collapsed)
	if len(collapsed) > 0 {
		ops = append(ops, graph.Op{Kind: "hierarchy:COLLAPSED_HIERARCHY", Cypher: cypherMergeCollapsed, Rows: collapsed})
	}

	load, err := b.loader.ApplyAll(ctx, ops...)
	stats.Load = load
	if err != nil {
		return stats, fmt.Errorf("ontology: import hierarchy: %w", err)
	}
	b.log.Info("hierarchy committed",
		"edges", len(committable), "rewritten", stats.Rewritten,
		"skipped", stats.Skipped, "collapsed", stats.Collapsed)
	if cycleErr != nil {
		return stats, cycleErr
	}
	return stats, nil
}

// collapseShortcuts synthesizes COLLAPSED_HIERARCHY rows across structural
// chain intermediates: a term with exactly one structural child and one
// structural parent is bridged so traversals can skip it.
func collapseShortcuts(edges []edge) []map[string]any {
	childOf := map[string][]edge{}  // parent -> incoming edges
	parentOf := map[string][]edge{} // child -> outgoing edges
	for _, e := range edges {
		if !structural(e.Type) {
			continue
		}
		childOf[e.Parent] = append(childOf[e.Parent], e)
		parentOf[e.Child] = append(parentOf[e.Child], e)
	}

	var rows []map[string]any
	mids := make([]string, 0, len(childOf))
	for mid := range childOf {
		mids = append(mids, mid)
	}
	sort.Strings(mids)
	for _, mid := range mids {
		in := childOf[mid]
		out := parentOf[mid]
		if len(in) != 1 || len(out) != 1 {
			continue
		}
		lower, upper := in[0], out[0]
		if lower.Child == upper.Parent {
			continue
		}
		rows = append(rows, map[string]any{
			"child":    lower.Child,
			"parent":   upper.Parent,
			"via":      mid,
			"rel_type": upper.Type,
		})
	}
	return rows
}
