package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/platform/logger"
)

func testStore(t *testing.T) *graph.CheckpointStore {
	t.Helper()
	return &graph.CheckpointStore{Path: filepath.Join(t.TempDir(), "checkpoint.json")}
}

func noop(ctx context.Context) error { return nil }

func statusOf(t *testing.T, report *Report, name string) StageStatus {
	t.Helper()
	for _, r := range report.Stages {
		if r.Name == name {
			return r.Status
		}
	}
	t.Fatalf("stage %q missing from report %+v", name, report.Stages)
	return ""
}

func TestRunExecutesStagesInOrder(t *testing.T) {
	var order []string
	stage := func(name string) Stage {
		return Stage{Name: name, Run: func(ctx context.Context) error {
			order = append(order, name)
			return nil
		}}
	}

	p := New([]Stage{stage("a"), stage("b"), stage("c")}, testStore(t), logger.NewNop())
	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("unexpected execution order %v", order)
	}
	for _, name := range []string{"a", "b", "c"} {
		if got := statusOf(t, report, name); got != StatusCompleted {
			t.Fatalf("stage %s: got status %s", name, got)
		}
	}
}

func TestRunSkipsCheckpointedStages(t *testing.T) {
	store := testStore(t)
	ran := 0
	stages := []Stage{
		{Name: "first", Run: func(ctx context.Context) error { ran++; return nil }},
		{Name: "second", Requires: []string{"first"}, Run: func(ctx context.Context) error {
			ran++
			return errors.New("boom")
		}},
	}

	p := New(stages, store, logger.NewNop())
	if _, err := p.Run(context.Background()); err == nil {
		t.Fatalf("expected first run to fail")
	}
	if ran != 2 {
		t.Fatalf("expected both stages to run once, ran %d", ran)
	}

	// Rerun: the first stage was checkpointed despite the later failure.
	stages[1].Run = func(ctx context.Context) error { ran++; return nil }
	report, err := New(stages, store, logger.NewNop()).Run(context.Background())
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if ran != 3 {
		t.Fatalf("expected only the failed stage to rerun, ran %d", ran)
	}
	if got := statusOf(t, report, "first"); got != StatusSkipped {
		t.Fatalf("first stage on rerun: got status %s", got)
	}
	if got := statusOf(t, report, "second"); got != StatusCompleted {
		t.Fatalf("second stage on rerun: got status %s", got)
	}
}

func TestRunFailsOnPreconditionViolation(t *testing.T) {
	stages := []Stage{
		{Name: "dependent", Requires: []string{"missing"}, Run: noop},
		{Name: "after", Run: noop},
	}
	report, err := New(stages, testStore(t), logger.NewNop()).Run(context.Background())
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected ErrPrecondition, got %v", err)
	}
	if got := statusOf(t, report, "dependent"); got != StatusFailed {
		t.Fatalf("dependent: got status %s", got)
	}
	if got := statusOf(t, report, "after"); got != StatusNotRun {
		t.Fatalf("after: got status %s", got)
	}
}

func TestRunGroupedStagesRunConcurrently(t *testing.T) {
	release := make(chan struct{})
	var waiting atomic.Int32

	member := func(name string) Stage {
		return Stage{Name: name, Group: "parallel", Run: func(ctx context.Context) error {
			waiting.Add(1)
			// Every group member must be in flight before any returns.
			if int(waiting.Load()) == 3 {
				close(release)
			}
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}}
	}

	stages := []Stage{member("g1"), member("g2"), member("g3")}
	report, err := New(stages, testStore(t), logger.NewNop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, name := range []string{"g1", "g2", "g3"} {
		if got := statusOf(t, report, name); got != StatusCompleted {
			t.Fatalf("stage %s: got status %s", name, got)
		}
	}
}

func TestRunCheckpointsSiblingsWhenOneFails(t *testing.T) {
	store := testStore(t)
	stages := []Stage{
		{Name: "ok", Group: "g", Run: noop},
		{Name: "bad", Group: "g", Run: func(ctx context.Context) error {
			return errors.New("boom")
		}},
	}

	report, err := New(stages, store, logger.NewNop()).Run(context.Background())
	if err == nil {
		t.Fatalf("expected failure from the bad sibling")
	}
	if got := statusOf(t, report, "ok"); got != StatusCompleted {
		t.Fatalf("ok sibling: got status %s", got)
	}
	if failed := report.Failed(); failed == nil || failed.Name != "bad" {
		t.Fatalf("expected bad stage in Failed(), got %+v", failed)
	}

	cp, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cp.Done("ok") {
		t.Fatalf("completed sibling must be checkpointed")
	}
	if cp.Done("bad") {
		t.Fatalf("failed stage must not be checkpointed")
	}
}

func TestBuildStagesDependencyClosure(t *testing.T) {
	stages := BuildStages(Deps{})
	byName := map[string]Stage{}
	for _, st := range stages {
		byName[st.Name] = st
	}

	// Every requirement must name an earlier stage.
	seen := map[string]bool{}
	for _, st := range stages {
		for _, req := range st.Requires {
			if _, ok := byName[req]; !ok {
				t.Fatalf("stage %s requires unknown stage %s", st.Name, req)
			}
			if !seen[req] {
				t.Fatalf("stage %s requires %s which is not ordered before it", st.Name, req)
			}
		}
		seen[st.Name] = true
	}

	if byName[StageTalisman].Requires[1] != StagePathway {
		t.Fatalf("curated genesets must load after pathway modules")
	}
	for _, name := range []string{StageDisease, StageViral, StageDrug} {
		if byName[name].Group != "omics" {
			t.Fatalf("stage %s should share the omics group", name)
		}
	}
}
