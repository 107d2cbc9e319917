package obo

import (
	"bufio"
	"io"
	"strings"
)

const scannerBufferSize = 1 << 20

// Parse reads an OBO-format ontology. Only [Term] stanzas are materialized;
// other stanza types are skipped.
func Parse(r io.Reader) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, scannerBufferSize), scannerBufferSize)

	doc := &Document{Terms: make([]Term, 0, 65536)}

	skipStanza := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "[Term]":
			skipStanza = false
			if term, ok := parseTerm(scanner); ok {
				doc.Terms = append(doc.Terms, term)
			}
		case strings.HasPrefix(line, "["):
			// Typedef or other stanza; skip its body.
			skipStanza = true
		case line == "" || skipStanza:
			continue
		default:
			parseHeaderLine(doc, line)
		}
	}
	return doc, scanner.Err()
}

func parseHeaderLine(doc *Document, line string) {
	key, val, ok := strings.Cut(line, ": ")
	if !ok {
		return
	}
	switch key {
	case "format-version":
		doc.FormatVersion = val
	case "data-version":
		doc.DataVersion = val
	}
}

func parseTerm(scanner *bufio.Scanner) (Term, bool) {
	var t Term
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}
		key, val, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch key {
		case "id":
			t.ID = val
		case "name":
			t.Name = val
		case "namespace":
			t.Namespace = val
		case "def":
			t.Definition = parseQuoted(val)
		case "comment":
			t.Comment = val
		case "synonym":
			t.Synonyms = append(t.Synonyms, parseSynonym(val))
		case "alt_id":
			t.AltIDs = append(t.AltIDs, val)
		case "xref":
			t.Xrefs = append(t.Xrefs, val)
		case "subset":
			t.Subsets = append(t.Subsets, val)
		case "consider":
			t.Consider = append(t.Consider, val)
		case "replaced_by":
			t.ReplacedBy = append(t.ReplacedBy, val)
		case "is_obsolete":
			t.IsObsolete = val == "true"
		case "created_by":
			t.CreatedBy = val
		case "creation_date":
			t.CreationDate = val
		case "is_a":
			id, name, _ := strings.Cut(val, " ! ")
			t.Relationships = append(t.Relationships, Relationship{
				Type:       "IS_A",
				TargetID:   strings.TrimSpace(id),
				TargetName: strings.TrimSpace(name),
			})
		case "relationship":
			if rel, ok := parseRelationship(val); ok {
				t.Relationships = append(t.Relationships, rel)
			}
		}
	}
	return t, t.ID != ""
}

// parseQuoted extracts the text between the first pair of double quotes;
// definitions look like: "text" [refs].
func parseQuoted(s string) string {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return s
	}
	start++
	end := strings.IndexByte(s[start:], '"')
	if end < 0 {
		return s[start:]
	}
	return s[start : start+end]
}

// parseSynonym parses: "text" SCOPE [refs]
func parseSynonym(s string) Synonym {
	syn := Synonym{Text: parseQuoted(s), Scope: "RELATED"}
	closing := strings.IndexByte(s[1:], '"')
	if closing < 0 {
		return syn
	}
	rest := s[closing+2:]
	for _, scope := range []string{"EXACT", "BROAD", "NARROW", "RELATED"} {
		if strings.Contains(rest, scope) {
			syn.Scope = scope
			break
		}
	}
	if open := strings.IndexByte(rest, '['); open >= 0 {
		if close := strings.LastIndexByte(rest, ']'); close > open+1 {
			for _, ref := range strings.Split(rest[open+1:close], ",") {
				if ref = strings.TrimSpace(ref); ref != "" {
					syn.Refs = append(syn.Refs, ref)
				}
			}
		}
	}
	return syn
}

// parseRelationship parses: "part_of GO:0000785 ! chromatin"
func parseRelationship(val string) (Relationship, bool) {
	fields := strings.Fields(val)
	if len(fields) < 2 {
		return Relationship{}, false
	}
	rel := Relationship{
		Type:     NormalizeRelType(fields[0]),
		TargetID: fields[1],
	}
	if _, name, found := strings.Cut(val, " ! "); found {
		rel.TargetName = strings.TrimSpace(name)
	}
	return rel, true
}

// NormalizeRelType maps an OBO relationship keyword to the graph
// relationship name: part_of -> PART_OF.
func NormalizeRelType(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}
