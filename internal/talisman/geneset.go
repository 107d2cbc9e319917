// Package talisman integrates curated literature genesets: YAML documents
// with gene symbols or HGNC gene IDs, and MSigDB-style JSON with richer
// metadata. Genesets are validated against the resolver before any
// membership edges are created.
package talisman

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/biomedkg/biokg/internal/platform/logger"
)

// Collections the curated genesets fold into, classified by filename.
const (
	CollectionHallmark  = "HALLMARK"
	CollectionBicluster = "BICLUSTER"
	CollectionCustom    = "CUSTOM"
)

// Geneset is one parsed curated geneset, format-independent.
type Geneset struct {
	ID          string
	Name        string
	Symbols     []string
	GeneIDs     []string
	Description string
	Taxon       string
	SourceFile  string
	Collection  string

	// MSigDB metadata; empty for YAML sources.
	PMID           string
	SystematicName string
	MSigDBURL      string
}

// MemberCount is the true unfiltered member count, recorded on the node
// even when the geneset fails validation.
func (g Geneset) MemberCount() int {
	return len(g.Symbols) + len(g.GeneIDs)
}

type yamlGeneset struct {
	Name         string   `yaml:"name"`
	GeneSymbols  []string `yaml:"gene_symbols"`
	GeneIDs      []string `yaml:"gene_ids"`
	Description  string   `yaml:"description"`
	Descriptions string   `yaml:"descriptions"`
	Taxon        string   `yaml:"taxon"`
}

type msigdbGeneset struct {
	SystematicName string   `json:"systematicName"`
	PMID           string   `json:"pmid"`
	GeneSymbols    []string `json:"geneSymbols"`
	MSigDBURL      string   `json:"msigdbURL"`
	Collection     string   `json:"collection"`
}

var nonWordPattern = regexp.MustCompile(`[^A-Z0-9_]+`)
var repeatUnderscore = regexp.MustCompile(`_+`)

// GenesetID normalizes a geneset name into a stable identifier: uppercase,
// non-word runs collapsed to single underscores.
func GenesetID(name string) string {
	if strings.TrimSpace(name) == "" {
		return "UNKNOWN_GENESET"
	}
	id := nonWordPattern.ReplaceAllString(strings.ToUpper(name), "_")
	id = repeatUnderscore.ReplaceAllString(id, "_")
	return strings.Trim(id, "_")
}

// ClassifyCollection buckets a geneset file into its collection by
// filename prefix.
func ClassifyCollection(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasPrefix(lower, "hallmark_"):
		return CollectionHallmark
	case strings.HasPrefix(lower, "bicluster_"):
		return CollectionBicluster
	default:
		return CollectionCustom
	}
}

// Parser accumulates genesets from YAML and JSON sources. JSON wins over
// YAML on duplicate geneset IDs because it carries richer metadata.
type Parser struct {
	log      *logger.Logger
	byID     map[string]Geneset
	fromJSON map[string]struct{}

	YAMLFiles  int
	JSONFiles  int
	Duplicates int
}

func NewParser(log *logger.Logger) *Parser {
	return &Parser{
		log:      log.With("component", "talisman.parser"),
		byID:     map[string]Geneset{},
		fromJSON: map[string]struct{}{},
	}
}

// AddYAML parses one YAML geneset document. The filename supplies the
// fallback name and the collection classification.
func (p *Parser) AddYAML(filename string, data []byte) error {
	var doc yamlGeneset
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("talisman: parse yaml %s: %w", filename, err)
	}
	name := doc.Name
	if name == "" {
		name = strings.TrimSuffix(filename, ".yaml")
	}
	desc := doc.Description
	if desc == "" {
		desc = doc.Descriptions
	}
	taxon := doc.Taxon
	if taxon == "" {
		taxon = "human"
	}
	gs := Geneset{
		ID:          GenesetID(name),
		Name:        name,
		Symbols:     cleanList(doc.GeneSymbols),
		GeneIDs:     cleanList(doc.GeneIDs),
		Description: desc,
		Taxon:       taxon,
		SourceFile:  filename,
		Collection:  ClassifyCollection(filename),
	}
	p.put(gs, false)
	p.YAMLFiles++
	return nil
}

// AddJSON parses an MSigDB-style JSON document, which may hold several
// genesets keyed by their already-standardized IDs.
func (p *Parser) AddJSON(filename string, data []byte) error {
	var doc map[string]msigdbGeneset
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("talisman: parse json %s: %w", filename, err)
	}
	for name, entry := range doc {
		desc := ""
		if entry.PMID != "" {
			desc = fmt.Sprintf("MSigDB geneset (PMID: %s)", entry.PMID)
		} else if entry.SystematicName != "" {
			desc = fmt.Sprintf("MSigDB geneset (%s)", entry.SystematicName)
		}
		gs := Geneset{
			ID:             name,
			Name:           name,
			Symbols:        cleanList(entry.GeneSymbols),
			Description:    desc,
			Taxon:          "human",
			SourceFile:     filename,
			Collection:     ClassifyCollection(filename),
			PMID:           entry.PMID,
			SystematicName: entry.SystematicName,
			MSigDBURL:      entry.MSigDBURL,
		}
		p.put(gs, true)
	}
	p.JSONFiles++
	return nil
}

func (p *Parser) put(gs Geneset, fromJSON bool) {
	if _, exists := p.byID[gs.ID]; exists {
		if !fromJSON {
			if _, jsonWon := p.fromJSON[gs.ID]; jsonWon {
				p.Duplicates++
				p.log.Info("keeping JSON version of duplicate geneset", "geneset_id", gs.ID)
				return
			}
		} else {
			p.Duplicates++
			p.log.Info("preferring JSON over YAML for duplicate geneset", "geneset_id", gs.ID)
		}
	}
	p.byID[gs.ID] = gs
	if fromJSON {
		p.fromJSON[gs.ID] = struct{}{}
	}
}

// Genesets returns every parsed geneset, ordered by ID.
func (p *Parser) Genesets() []Geneset {
	out := make([]Geneset, 0, len(p.byID))
	for _, gs := range p.byID {
		out = append(out, gs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cleanList(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
