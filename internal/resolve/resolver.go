package resolve

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/biomedkg/biokg/internal/platform/logger"
)

var (
	// ErrConflict means the same identifier was registered for two
	// different genes; that is resolver misconfiguration and fatal.
	ErrConflict = errors.New("resolve: identifier conflict")
	// ErrMappingCycle means an obsolete GO mapping does not terminate
	// at a canonical term in one hop.
	ErrMappingCycle = errors.New("resolve: alt mapping cycle")
)

// Resolver canonicalizes raw gene and GO identifiers into stable keys.
// It is read-only at resolution time; all lookup state is registered up
// front by the base-load stages.
type Resolver struct {
	log *logger.Logger

	// primeMu serializes store priming; concurrent stages on a resumed
	// run must not repopulate the maps in parallel.
	primeMu sync.Mutex

	bySymbol  map[string]string
	byEntrez  map[string]string
	byUniprot map[string]string

	goIDs map[string]struct{}
	altGO map[string]string // obsolete_id -> canonical go_id
}

func New(log *logger.Logger) *Resolver {
	return &Resolver{
		log:       log.With("component", "resolver"),
		bySymbol:  map[string]string{},
		byEntrez:  map[string]string{},
		byUniprot: map[string]string{},
		goIDs:     map[string]struct{}{},
		altGO:     map[string]string{},
	}
}

// NormalizeSymbol trims and uppercases a raw gene symbol. Stored
// identifiers are matched case-sensitively after this normalization.
func NormalizeSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// NormalizeID trims a raw non-symbol identifier.
func NormalizeID(raw string) string {
	return strings.TrimSpace(raw)
}

// AddGene registers a gene under its known identifiers. The canonical key
// is the normalized symbol. Registering an identifier that already points
// at a different gene is a fatal misconfiguration.
func (r *Resolver) AddGene(symbol, entrezID, uniprotID string) (string, error) {
	key := NormalizeSymbol(symbol)
	if key == "" {
		return "", fmt.Errorf("resolve: gene with empty symbol")
	}
	if err := register(r.bySymbol, key, key); err != nil {
		return "", err
	}
	if id := NormalizeID(entrezID); id != "" {
		if err := register(r.byEntrez, id, key); err != nil {
			return "", err
		}
	}
	if id := NormalizeID(uniprotID); id != "" {
		if err := register(r.byUniprot, id, key); err != nil {
			return "", err
		}
	}
	return key, nil
}

func register(m map[string]string, id, key string) error {
	if existing, ok := m[id]; ok && existing != key {
		return fmt.Errorf("%w: %q maps to both %q and %q", ErrConflict, id, existing, key)
	}
	m[id] = key
	return nil
}

// ResolveGene resolves a raw gene identifier: exact symbol match, then
// Entrez ID, then UniProt ID. First match wins.
func (r *Resolver) ResolveGene(raw string) (string, bool) {
	if key, ok := r.bySymbol[NormalizeSymbol(raw)]; ok {
		return key, true
	}
	id := NormalizeID(raw)
	if key, ok := r.byEntrez[id]; ok {
		return key, true
	}
	if key, ok := r.byUniprot[id]; ok {
		return key, true
	}
	return "", false
}

// GeneCount reports how many canonical genes are registered.
func (r *Resolver) GeneCount() int {
	return len(r.bySymbol)
}

// AddGOTerm registers a canonical GO identifier.
func (r *Resolver) AddGOTerm(goID string) {
	id := NormalizeID(goID)
	if id == "" {
		return
	}
	r.goIDs[id] = struct{}{}
}

// AddAltGO registers an obsolete-to-canonical GO mapping. The mapping
// table must resolve in exactly one hop: a canonical side that is itself
// obsolete, or a self-mapping, is rejected.
func (r *Resolver) AddAltGO(obsoleteID, canonicalID string) error {
	obs := NormalizeID(obsoleteID)
	canon := NormalizeID(canonicalID)
	if obs == "" || canon == "" {
		return fmt.Errorf("resolve: empty alt mapping %q -> %q", obsoleteID, canonicalID)
	}
	if obs == canon {
		return fmt.Errorf("%w: %q maps to itself", ErrMappingCycle, obs)
	}
	if _, chained := r.altGO[canon]; chained {
		return fmt.Errorf("%w: %q -> %q, but %q is itself obsolete", ErrMappingCycle, obs, canon, canon)
	}
	if existing, ok := r.altGO[obs]; ok && existing != canon {
		return fmt.Errorf("%w: %q maps to both %q and %q", ErrConflict, obs, existing, canon)
	}
	r.altGO[obs] = canon
	return nil
}

// ResolveGO resolves a GO identifier: direct lookup first, then through
// the alternate-ID mapping. A hit through the mapping reports rewritten.
func (r *Resolver) ResolveGO(raw string) (goID string, rewritten, ok bool) {
	id := NormalizeID(raw)
	if _, found := r.goIDs[id]; found {
		return id, false, true
	}
	if canon, found := r.altGO[id]; found {
		if _, present := r.goIDs[canon]; present {
			return canon, true, true
		}
	}
	return "", false, false
}

// GOTermCount reports how many canonical GO terms are registered.
func (r *Resolver) GOTermCount() int {
	return len(r.goIDs)
}

// AltGOCount reports how many obsolete mappings are registered.
func (r *Resolver) AltGOCount() int {
	return len(r.altGO)
}
