// Package obo parses Gene Ontology flat files (go-basic.obo) into term
// records the ontology builder consumes.
package obo

// Namespaces recognized in GO source files.
const (
	BiologicalProcess = "biological_process"
	CellularComponent = "cellular_component"
	MolecularFunction = "molecular_function"
)

type Document struct {
	FormatVersion string
	DataVersion   string
	Terms         []Term
}

type Term struct {
	ID           string
	Name         string
	Namespace    string
	Definition   string
	Comment      string
	IsObsolete   bool
	CreatedBy    string
	CreationDate string

	AltIDs     []string
	Xrefs      []string
	Subsets    []string
	Consider   []string
	ReplacedBy []string

	Synonyms      []Synonym
	Relationships []Relationship
}

type Synonym struct {
	Text  string
	Scope string
	Refs  []string
}

// Relationship is one outgoing hierarchy edge. Type is normalized to the
// graph relationship name (IS_A, PART_OF, REGULATES, ...).
type Relationship struct {
	Type       string
	TargetID   string
	TargetName string
}

// FilterNamespace returns the terms belonging to one GO namespace.
// Obsolete terms keep their namespace and are retained; the builder
// decides how to treat them.
func FilterNamespace(terms []Term, namespace string) []Term {
	out := make([]Term, 0, len(terms))
	for _, t := range terms {
		if t.Namespace == namespace {
			out = append(out, t)
		}
	}
	return out
}
