package omics

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/biomedkg/biokg/internal/resolve"
)

// ExpressionMatrix holds standardized expression values indexed by gene
// symbol and condition string. The source files carry two metadata columns
// between the gene symbol and the condition columns, and a second header
// line that is skipped.
type ExpressionMatrix struct {
	values map[string]map[string]float64
}

const matrixMetaColumns = 2

// ParseExpressionMatrix reads a gene_attribute_matrix_standardized file.
// Zero and non-numeric cells are dropped; only meaningful z-scores are
// kept.
func ParseExpressionMatrix(r io.Reader) (*ExpressionMatrix, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<22), 1<<22)

	m := &ExpressionMatrix{values: map[string]map[string]float64{}}
	var conditions []string
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if lineNo == 1 {
			if len(fields) <= matrixMetaColumns+1 {
				return nil, fmt.Errorf("omics: matrix header has %d columns", len(fields))
			}
			conditions = fields[matrixMetaColumns+1:]
			for i := range conditions {
				conditions[i] = strings.TrimSpace(conditions[i])
			}
			continue
		}
		if lineNo == 2 {
			// Second header line (condition descriptions).
			continue
		}
		symbol := resolve.NormalizeSymbol(fields[0])
		if symbol == "" || symbol == "GENESYM" {
			continue
		}
		if len(fields) <= matrixMetaColumns+1 {
			continue
		}
		cells := fields[matrixMetaColumns+1:]
		for i, cell := range cells {
			if i >= len(conditions) {
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil || v == 0 || math.IsNaN(v) {
				continue
			}
			row := m.values[symbol]
			if row == nil {
				row = map[string]float64{}
				m.values[symbol] = row
			}
			row[conditions[i]] = v
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("omics: scan matrix at line %d: %w", lineNo, err)
	}
	return m, nil
}

// Lookup returns the z-score for a gene under a condition.
func (m *ExpressionMatrix) Lookup(symbol, condition string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	row, ok := m.values[resolve.NormalizeSymbol(symbol)]
	if !ok {
		return 0, false
	}
	v, ok := row[condition]
	return v, ok
}

// Genes reports how many genes carry at least one value.
func (m *ExpressionMatrix) Genes() int {
	if m == nil {
		return 0
	}
	return len(m.values)
}
