// Package omics integrates the quantitative omics datasets: disease and
// viral expression associations, small-molecule perturbations, NeST
// functional modules, and curated pathway modules. Every integrator shares
// one contract: resolve the gene through the resolver, skip the record with
// a warning on a miss, upsert the counterpart node by its natural key, and
// merge an idempotent typed edge carrying the quantitative properties.
package omics

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/biomedkg/biokg/internal/graph"
)

// EdgeRecord is one row of a gene_attribute_edges file. The files share a
// seven-column layout behind two header lines: gene symbol, description,
// gene id, full condition string, condition name, study id, weight.
type EdgeRecord struct {
	Symbol        string
	GeneID        string
	ConditionFull string
	ConditionName string
	StudyID       string
	Weight        float64
}

const edgeColumns = 7

// ParseEdgeRecords reads a gene_attribute_edges file, skipping its two
// header lines. Rows with too few columns or an unparsable weight are
// dropped.
func ParseEdgeRecords(r io.Reader) ([]EdgeRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)

	var out []EdgeRecord
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo <= 2 {
			continue
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < edgeColumns {
			continue
		}
		weight, err := strconv.ParseFloat(strings.TrimSpace(fields[6]), 64)
		if err != nil {
			continue
		}
		out = append(out, EdgeRecord{
			Symbol:        strings.TrimSpace(fields[0]),
			GeneID:        strings.TrimSpace(fields[2]),
			ConditionFull: strings.TrimSpace(fields[3]),
			ConditionName: strings.TrimSpace(fields[4]),
			StudyID:       strings.TrimSpace(fields[5]),
			Weight:        weight,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("omics: scan edges at line %d: %w", lineNo, err)
	}
	return out, nil
}

// Outcome reports one integrator run. The unresolved rate is the stage's
// quality signal; it never fails the stage.
type Outcome struct {
	Records    int
	Resolved   int
	Unresolved int
	Load       graph.Stats
}

func (o Outcome) UnresolvedRate() float64 {
	if o.Records == 0 {
		return 0
	}
	return float64(o.Unresolved) / float64(o.Records)
}

// nullable turns an empty string into NULL so coalesce keeps the stored
// property instead of blanking it.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
