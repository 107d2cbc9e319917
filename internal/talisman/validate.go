package talisman

import (
	"strings"

	"github.com/biomedkg/biokg/internal/resolve"
)

// Validation is the quality outcome for one geneset: which members
// resolved against the graph's gene inventory and at what rate.
type Validation struct {
	GenesetID string
	Valid     []string // resolved canonical symbols
	Invalid   []string // raw identifiers that missed
	Ratio     float64
}

// Passed reports whether the geneset clears the minimum validation ratio.
func (v Validation) Passed(minRatio float64) bool {
	return len(v.Valid) > 0 && v.Ratio >= minRatio
}

// Quality buckets the resolution rate the way curation reports read:
// perfect, excellent, good, moderate, poor.
func (v Validation) Quality() string {
	switch rate := v.Ratio * 100; {
	case rate == 100:
		return "perfect"
	case rate >= 95:
		return "excellent"
	case rate >= 80:
		return "good"
	case rate >= 60:
		return "moderate"
	default:
		return "poor"
	}
}

// Validate resolves every member of a geneset through the resolver.
// Symbols resolve directly; HGNC-prefixed gene IDs are tried with and
// without the prefix. Duplicate members count once on both sides of the
// ratio: valid members dedupe on the canonical symbol, invalid members
// on the normalized raw identifier.
func Validate(res *resolve.Resolver, gs Geneset) Validation {
	v := Validation{GenesetID: gs.ID}
	seen := map[string]struct{}{}
	seenInvalid := map[string]struct{}{}

	resolveOne := func(raw string) {
		key, ok := res.ResolveGene(raw)
		if !ok {
			if stripped, had := strings.CutPrefix(raw, "HGNC:"); had {
				key, ok = res.ResolveGene(stripped)
			}
		}
		if !ok {
			norm := resolve.NormalizeSymbol(raw)
			if _, dup := seenInvalid[norm]; dup {
				return
			}
			seenInvalid[norm] = struct{}{}
			v.Invalid = append(v.Invalid, raw)
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		v.Valid = append(v.Valid, key)
	}

	for _, s := range gs.Symbols {
		resolveOne(s)
	}
	for _, id := range gs.GeneIDs {
		resolveOne(id)
	}

	total := len(v.Valid) + len(v.Invalid)
	if total > 0 {
		v.Ratio = float64(len(v.Valid)) / float64(total)
	}
	return v
}
