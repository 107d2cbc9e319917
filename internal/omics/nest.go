package omics

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/platform/logger"
	"github.com/biomedkg/biokg/internal/resolve"
)

const (
	cypherMergeModule = `
UNWIND $rows AS row
MERGE (fm:FunctionalModule {cluster_id: row.cluster_id})
SET fm.level = row.level,
    fm.ordinal = row.ordinal,
    fm.gene_count = row.gene_count,
    fm.child_cluster_count = row.child_count,
    fm.parent_cluster_count = row.parent_count,
    fm.is_leaf = row.is_leaf,
    fm.is_root = row.is_root,
    fm.source = 'nest_network'`

	cypherMergeMembership = `
UNWIND $rows AS row
MATCH (g:Gene {symbol: row.symbol})
MATCH (fm:FunctionalModule {cluster_id: row.cluster_id})
MERGE (g)-[r:BELONGS_TO_MODULE]->(fm)
SET r.source = 'nest_network'`

	cypherMergeContainment = `
UNWIND $rows AS row
MATCH (parent:FunctionalModule {cluster_id: row.parent})
MATCH (child:FunctionalModule {cluster_id: row.child})
MERGE (parent)-[:CONTAINS]->(child)
MERGE (child)-[:PART_OF]->(parent)`
)

// NestEdge is one row of the NeST hierarchical network file: a cluster
// paired with either a member gene (edge type "gene") or a child cluster
// (edge type "default").
type NestEdge struct {
	Source string
	Target string
	Type   string
}

// ParseNestEdges reads the headerless three-column NeST edges file.
func ParseNestEdges(r io.Reader) ([]NestEdge, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)

	var out []NestEdge
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			continue
		}
		out = append(out, NestEdge{
			Source: strings.TrimSpace(fields[0]),
			Target: strings.TrimSpace(fields[1]),
			Type:   strings.TrimSpace(fields[2]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("omics: scan nest edges: %w", err)
	}
	return out, nil
}

var clusterPattern = regexp.MustCompile(`^Cluster(\d+)-(\d+)$`)

// ParseClusterID extracts the hierarchy level and ordinal from a cluster
// name like "Cluster2-41". Names off the pattern report ok=false and keep
// level -1.
func ParseClusterID(name string) (level, ordinal int, ok bool) {
	m := clusterPattern.FindStringSubmatch(name)
	if m == nil {
		return -1, -1, false
	}
	level, _ = strconv.Atoi(m[1])
	ordinal, _ = strconv.Atoi(m[2])
	return level, ordinal, true
}

// NestIntegrator commits the NeST multi-resolution module hierarchy:
// FunctionalModule nodes keyed by cluster id with level and leaf/root
// flags, gene membership edges, and the CONTAINS / PART_OF containment
// pairs between modules.
type NestIntegrator struct {
	loader *graph.Loader
	res    *resolve.Resolver
	log    *logger.Logger
}

func NewNestIntegrator(loader *graph.Loader, res *resolve.Resolver, log *logger.Logger) *NestIntegrator {
	return &NestIntegrator{loader: loader, res: res, log: log.With("component", "omics.nest")}
}

func (n *NestIntegrator) Integrate(ctx context.Context, edges []NestEdge) (Outcome, error) {
	var out Outcome

	type moduleMeta struct {
		genes    int
		children int
		parents  int
	}
	meta := map[string]*moduleMeta{}
	module := func(name string) *moduleMeta {
		m := meta[name]
		if m == nil {
			m = &moduleMeta{}
			meta[name] = m
		}
		return m
	}

	memberRows := make([]map[string]any, 0, len(edges))
	containRows := make([]map[string]any, 0, 1024)

	for _, e := range edges {
		switch e.Type {
		case "gene":
			out.Records++
			m := module(e.Source)
			symbol, ok := n.res.ResolveGene(e.Target)
			if !ok {
				out.Unresolved++
				n.log.Warn("skipping module membership, unresolved gene",
					"identifier", e.Target, "cluster_id", e.Source)
				continue
			}
			out.Resolved++
			m.genes++
			memberRows = append(memberRows, map[string]any{
				"symbol":     symbol,
				"cluster_id": e.Source,
			})
		case "default":
			module(e.Source).children++
			module(e.Target).parents++
			containRows = append(containRows, map[string]any{
				"parent": e.Source,
				"child":  e.Target,
			})
		default:
			n.log.Debug("skipping nest edge with unknown type",
				"type", e.Type, "source", e.Source, "target", e.Target)
		}
	}

	moduleRows := make([]map[string]any, 0, len(meta))
	for name, m := range meta {
		level, ordinal, ok := ParseClusterID(name)
		if !ok {
			n.log.Warn("cluster name off pattern, keeping with level -1", "cluster_id", name)
		}
		moduleRows = append(moduleRows, map[string]any{
			"cluster_id":   name,
			"level":        level,
			"ordinal":      ordinal,
			"gene_count":   m.genes,
			"child_count":  m.children,
			"parent_count": m.parents,
			"is_leaf":      m.children == 0,
			"is_root":      m.parents == 0,
		})
	}
	sort.Slice(moduleRows, func(i, j int) bool {
		return moduleRows[i]["cluster_id"].(string) < moduleRows[j]["cluster_id"].(string)
	})

	load, err := n.loader.ApplyAll(ctx,
		graph.Op{Kind: "FunctionalModule", Cypher: cypherMergeModule, Rows: moduleRows},
		graph.Op{Kind: "BELONGS_TO_MODULE", Cypher: cypherMergeMembership, Rows: memberRows},
		graph.Op{Kind: "CONTAINS", Cypher: cypherMergeContainment, Rows: containRows},
	)
	out.Load = load
	if err != nil {
		return out, fmt.Errorf("omics: nest integration: %w", err)
	}
	n.log.Info("functional modules committed",
		"modules", len(moduleRows),
		"memberships", len(memberRows),
		"containments", len(containRows),
		"unresolved_genes", out.Unresolved)
	return out, nil
}
