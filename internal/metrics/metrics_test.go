package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/biomedkg/biokg/internal/platform/logger"
)

// canned answers by cypher substring, first match wins.
type fakeQuerier struct {
	counts []struct {
		substr string
		n      int64
	}
	namespaceRows []map[string]any
}

func (f *fakeQuerier) CountValue(ctx context.Context, cypher string, params map[string]any) (int64, error) {
	for _, c := range f.counts {
		if strings.Contains(cypher, c.substr) {
			return c.n, nil
		}
	}
	return 0, nil
}

func (f *fakeQuerier) Collect(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return f.namespaceRows, nil
}

func TestCollectFlagsDuplicatesAsHardFailure(t *testing.T) {
	q := &fakeQuerier{
		namespaceRows: []map[string]any{
			{"namespace": "biological_process", "n": int64(100)},
		},
	}
	q.counts = []struct {
		substr string
		n      int64
	}{
		{"n.go_id AS k", 2}, // duplicated go_id values
		{"(n:Gene) WHERE NOT", 0},
		{"(n:Gene)", 500},
		{"(n:GOTerm) WHERE NOT", 0},
		{"(n:GOTerm)", 100},
		{"ANNOTATED_WITH]->()", 1000},
	}

	report, err := NewCollector(q, logger.NewNop()).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Healthy() {
		t.Fatalf("duplicated natural keys must fail the build")
	}
	if report.Duplicates["GOTerm.go_id"] != 2 {
		t.Fatalf("expected duplicate count recorded, got %v", report.Duplicates)
	}
	if report.GONamespaces["biological_process"] != 100 {
		t.Fatalf("unexpected namespace breakdown %v", report.GONamespaces)
	}
}

func TestCollectWarnsOnOrphansButStaysHealthy(t *testing.T) {
	q := &fakeQuerier{}
	q.counts = []struct {
		substr string
		n      int64
	}{
		{"n.go_id AS k", 0},
		{"(n:Study) WHERE NOT", 3}, // orphan studies
		{"(n:Gene) WHERE NOT", 0},
		{"(n:Gene)", 500},
		{"(n:GOTerm) WHERE NOT", 0},
		{"(n:GOTerm)", 100},
		{"OCCURS_IN", 10},
		{"ENABLED_BY", 10},
		{"HOSTS_FUNCTION", 10},
	}

	report, err := NewCollector(q, logger.NewNop()).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if !report.Healthy() {
		t.Fatalf("orphans are warnings, not failures: %v", report.HardFailures)
	}
	if report.Orphans["Study"] != 3 {
		t.Fatalf("expected orphan studies recorded, got %v", report.Orphans)
	}
	found := false
	for _, w := range report.Warnings {
		if strings.Contains(w, "orphan Study") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an orphan warning, got %v", report.Warnings)
	}
}

func TestCollectFailsEmptyBuild(t *testing.T) {
	report, err := NewCollector(&fakeQuerier{}, logger.NewNop()).Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Healthy() {
		t.Fatalf("an empty graph must not validate")
	}
}
