// Package annot performs the gene base load: GAF 2.2 annotation records
// become Gene nodes and ANNOTATED_WITH edges. Every downstream omics and
// geneset stage resolves genes against what this package commits.
package annot

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// GAF 2.2 column positions. A record has 17 tab-separated columns; the
// last two are optional in older exports, so 15 is the floor.
const (
	colDB = iota
	colObjectID
	colSymbol
	colQualifier
	colGOID
	colReference
	colEvidence
	colWithFrom
	colAspect
	colObjectName
	colSynonym
	colObjectType
	colTaxon
	colDate
	colAssignedBy
	colExtension
	colFormID

	minColumns = 15
)

// Annotation is one GAF record, trimmed to what the graph carries.
type Annotation struct {
	UniprotID  string
	Symbol     string
	Qualifier  string
	GOID       string
	Reference  string
	Evidence   string
	WithFrom   string
	Aspect     string
	ObjectName string
	Taxon      string
	Date       string
	AssignedBy string
}

// AspectNamespace maps a GAF aspect letter to the GO namespace it
// annotates: P, C, F.
func AspectNamespace(aspect string) (string, bool) {
	switch aspect {
	case "P":
		return "biological_process", true
	case "C":
		return "cellular_component", true
	case "F":
		return "molecular_function", true
	}
	return "", false
}

// DefaultQualifier is the GAF 2.2 relation implied when the qualifier
// column is empty, per aspect.
func DefaultQualifier(aspect string) string {
	switch aspect {
	case "P":
		return "involved_in"
	case "C":
		return "located_in"
	case "F":
		return "enables"
	}
	return ""
}

// ParseGAF reads GAF 2.2 records, skipping comment lines ('!') and rows
// with too few columns. NOT-qualified annotations are excluded: they
// assert the absence of a function.
func ParseGAF(r io.Reader) ([]Annotation, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)

	var out []Annotation
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < minColumns {
			continue
		}
		qualifier := strings.TrimSpace(fields[colQualifier])
		if strings.HasPrefix(qualifier, "NOT") {
			continue
		}
		aspect := strings.TrimSpace(fields[colAspect])
		if qualifier == "" {
			qualifier = DefaultQualifier(aspect)
		}
		out = append(out, Annotation{
			UniprotID:  strings.TrimSpace(fields[colObjectID]),
			Symbol:     strings.TrimSpace(fields[colSymbol]),
			Qualifier:  qualifier,
			GOID:       strings.TrimSpace(fields[colGOID]),
			Reference:  strings.TrimSpace(fields[colReference]),
			Evidence:   strings.TrimSpace(fields[colEvidence]),
			WithFrom:   strings.TrimSpace(fields[colWithFrom]),
			Aspect:     aspect,
			ObjectName: strings.TrimSpace(fields[colObjectName]),
			Taxon:      strings.TrimSpace(fields[colTaxon]),
			Date:       strings.TrimSpace(fields[colDate]),
			AssignedBy: strings.TrimSpace(fields[colAssignedBy]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("annot: scan gaf at line %d: %w", lineNo, err)
	}
	return out, nil
}
