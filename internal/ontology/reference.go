package ontology

import (
	"bufio"
	"io"
	"strings"
)

// Reference holds the cross-validation tables shipped alongside the OBO
// source (goID_2_name.tab, goID_2_namespace.tab, goID_2_alt_id.tab). Term
// import prefers the reference name over the OBO name and merges reference
// alt IDs into the OBO alt IDs, counting every correction applied.
type Reference struct {
	Names      map[string]string
	Namespaces map[string]string
	AltIDs     map[string][]string // canonical go_id -> obsolete ids
}

func NewReference() *Reference {
	return &Reference{
		Names:      map[string]string{},
		Namespaces: map[string]string{},
		AltIDs:     map[string][]string{},
	}
}

// LoadNames reads a goID_2_name.tab file: header line, then
// "GO:NNNNNNN<TAB>name" rows. The name may itself contain tabs, so only the
// first tab splits.
func (r *Reference) LoadNames(src io.Reader) error {
	return scanTab(src, func(fields []string) {
		if len(fields) == 2 {
			r.Names[fields[0]] = fields[1]
		}
	}, 1)
}

// LoadNamespaces reads goID_2_namespace.tab and drops name entries whose
// namespace does not match, keeping the two tables consistent per build.
func (r *Reference) LoadNamespaces(src io.Reader, namespace string) error {
	return scanTab(src, func(fields []string) {
		if len(fields) != 2 {
			return
		}
		goID, ns := fields[0], fields[1]
		if ns == namespace {
			r.Namespaces[goID] = ns
		} else {
			delete(r.Names, goID)
		}
	}, -1)
}

// LoadAltIDs reads goID_2_alt_id.tab rows of "current<TAB>obsolete",
// keeping only mappings whose canonical term is in the loaded namespace.
func (r *Reference) LoadAltIDs(src io.Reader) error {
	return scanTab(src, func(fields []string) {
		if len(fields) != 2 {
			return
		}
		current, obsolete := fields[0], fields[1]
		if len(r.Namespaces) > 0 {
			if _, ok := r.Namespaces[current]; !ok {
				return
			}
		}
		r.AltIDs[current] = append(r.AltIDs[current], obsolete)
	}, -1)
}

// scanTab reads tab-separated rows, skipping the header line.
// maxSplit limits the split so values containing tabs survive; -1 is
// unlimited.
func scanTab(src io.Reader, fn func(fields []string), maxSplit int) error {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if first {
			first = false
			continue
		}
		if line == "" {
			continue
		}
		var fields []string
		if maxSplit > 0 {
			fields = strings.SplitN(line, "\t", maxSplit+1)
		} else {
			fields = strings.Split(line, "\t")
		}
		fn(fields)
	}
	return scanner.Err()
}
