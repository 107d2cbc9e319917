package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/biomedkg/biokg/internal/platform/logger"
)

var (
	errTransient  = errors.New("transient store error")
	errConstraint = errors.New("constraint violation")
	errFatal      = errors.New("syntax error")
)

// scriptedRunner answers each ExecuteWrite from a script of errors (nil
// means commit) and records the row counts it saw.
type scriptedRunner struct {
	script    []error
	call      int
	rowCounts []int
}

func (s *scriptedRunner) ExecuteWrite(ctx context.Context, work func(ctx context.Context, tx Tx) error) error {
	var err error
	if s.call < len(s.script) {
		err = s.script[s.call]
	}
	s.call++
	if err != nil {
		return err
	}
	return work(ctx, countingTx{runner: s})
}

type countingTx struct {
	runner *scriptedRunner
}

func (c countingTx) Run(ctx context.Context, cypher string, params map[string]any) error {
	rows, _ := params["rows"].([]map[string]any)
	c.runner.rowCounts = append(c.runner.rowCounts, len(rows))
	return nil
}

func rows(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{"id": fmt.Sprintf("row-%d", i)}
	}
	return out
}

func testOptions() Options {
	return Options{
		BatchSize: 2,
		Retry: RetryPolicy{
			MaxAttempts: 3,
			Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
			MinBackoff:  time.Millisecond,
			MaxBackoff:  2 * time.Millisecond,
		},
		IsConstraintViolation: func(err error) bool { return errors.Is(err, errConstraint) },
	}
}

func TestApplySplitsIntoBatches(t *testing.T) {
	run := &scriptedRunner{}
	l := NewLoader(run, logger.NewNop(), testOptions())

	stats, err := l.Apply(context.Background(), Op{Kind: "gene", Cypher: "UNWIND $rows AS row", Rows: rows(5)})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if stats.Batches != 3 || stats.RowsCommitted != 5 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	want := []int{2, 2, 1}
	if len(run.rowCounts) != len(want) {
		t.Fatalf("unexpected batch sizes %v", run.rowCounts)
	}
	for i, n := range want {
		if run.rowCounts[i] != n {
			t.Fatalf("batch %d: got %d rows, want %d", i, run.rowCounts[i], n)
		}
	}
}

func TestApplyRetriesTransientErrors(t *testing.T) {
	run := &scriptedRunner{script: []error{errTransient, errTransient, nil}}
	l := NewLoader(run, logger.NewNop(), testOptions())

	stats, err := l.Apply(context.Background(), Op{Kind: "gene", Cypher: "UNWIND $rows AS row", Rows: rows(2)})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if stats.Retries != 2 || stats.RowsCommitted != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestApplyFailsWhenRetriesExhausted(t *testing.T) {
	run := &scriptedRunner{script: []error{errTransient, errTransient, errTransient}}
	l := NewLoader(run, logger.NewNop(), testOptions())

	_, err := l.Apply(context.Background(), Op{Kind: "gene", Cypher: "UNWIND $rows AS row", Rows: rows(2)})
	if !errors.Is(err, ErrStageFailed) {
		t.Fatalf("expected ErrStageFailed, got %v", err)
	}
}

func TestApplyDoesNotRetryFatalErrors(t *testing.T) {
	run := &scriptedRunner{script: []error{errFatal}}
	l := NewLoader(run, logger.NewNop(), testOptions())

	stats, err := l.Apply(context.Background(), Op{Kind: "gene", Cypher: "UNWIND $rows AS row", Rows: rows(2)})
	if !errors.Is(err, ErrStageFailed) {
		t.Fatalf("expected ErrStageFailed, got %v", err)
	}
	if stats.Retries != 0 {
		t.Fatalf("fatal errors must not be retried, stats %+v", stats)
	}
}

func TestApplyIsolatesConstraintViolations(t *testing.T) {
	// Batch fails on a constraint, then row-by-row: first row violates,
	// second row commits.
	run := &scriptedRunner{script: []error{errConstraint, errConstraint, nil}}
	l := NewLoader(run, logger.NewNop(), testOptions())

	stats, err := l.Apply(context.Background(), Op{Kind: "gene", Cypher: "UNWIND $rows AS row", Rows: rows(2)})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if stats.RowsSkipped != 1 || stats.RowsCommitted != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestApplyRowByRowRetriesTransientErrors(t *testing.T) {
	// Batch demotes on a constraint; the first row violates and is
	// skipped, the second hits a transient error and is retried.
	run := &scriptedRunner{script: []error{errConstraint, errConstraint, errTransient, nil}}
	l := NewLoader(run, logger.NewNop(), testOptions())

	stats, err := l.Apply(context.Background(), Op{Kind: "gene", Cypher: "UNWIND $rows AS row", Rows: rows(2)})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if stats.RowsSkipped != 1 || stats.RowsCommitted != 1 || stats.Retries != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestApplyRowByRowFailsWhenRetriesExhausted(t *testing.T) {
	run := &scriptedRunner{script: []error{errConstraint, errTransient, errTransient, errTransient}}
	l := NewLoader(run, logger.NewNop(), testOptions())

	_, err := l.Apply(context.Background(), Op{Kind: "gene", Cypher: "UNWIND $rows AS row", Rows: rows(2)})
	if !errors.Is(err, ErrStageFailed) {
		t.Fatalf("expected ErrStageFailed, got %v", err)
	}
}

func TestApplyAllStopsAtFirstFailure(t *testing.T) {
	run := &scriptedRunner{script: []error{nil, errFatal}}
	l := NewLoader(run, logger.NewNop(), testOptions())

	stats, err := l.ApplyAll(context.Background(),
		Op{Kind: "first", Cypher: "UNWIND $rows AS row", Rows: rows(1)},
		Op{Kind: "second", Cypher: "UNWIND $rows AS row", Rows: rows(1)},
		Op{Kind: "third", Cypher: "UNWIND $rows AS row", Rows: rows(1)},
	)
	if !errors.Is(err, ErrStageFailed) {
		t.Fatalf("expected ErrStageFailed, got %v", err)
	}
	if stats.RowsCommitted != 1 {
		t.Fatalf("only the first op should have committed, stats %+v", stats)
	}
	if run.call != 2 {
		t.Fatalf("third op must not run, saw %d calls", run.call)
	}
}

func TestNewLoaderClampsBatchSizeToMax(t *testing.T) {
	run := &scriptedRunner{}
	opts := testOptions()
	opts.BatchSize = 10
	opts.MaxBatchSize = 2
	l := NewLoader(run, logger.NewNop(), opts)

	stats, err := l.Apply(context.Background(), Op{Kind: "gene", Cypher: "UNWIND $rows AS row", Rows: rows(5)})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if stats.Batches != 3 {
		t.Fatalf("expected 3 clamped batches, got %+v", stats)
	}
	want := []int{2, 2, 1}
	for i, n := range want {
		if run.rowCounts[i] != n {
			t.Fatalf("batch %d: got %d rows, want %d", i, run.rowCounts[i], n)
		}
	}
}

func TestApplyRejectsEmptyCypher(t *testing.T) {
	l := NewLoader(&scriptedRunner{}, logger.NewNop(), testOptions())
	if _, err := l.Apply(context.Background(), Op{Kind: "gene", Rows: rows(1)}); err == nil {
		t.Fatalf("expected an error for a template-less op")
	}
}
