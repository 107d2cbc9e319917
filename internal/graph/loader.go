package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/biomedkg/biokg/internal/platform/logger"
)

var (
	// ErrStageFailed marks a batch whose retries were exhausted; the
	// owning pipeline stage must halt at its boundary.
	ErrStageFailed = errors.New("graph: stage failed")
)

// Tx is the slice of a managed write transaction the loader needs.
type Tx interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
}

// TxRunner commits a unit of work as one atomic transaction.
type TxRunner interface {
	ExecuteWrite(ctx context.Context, work func(ctx context.Context, tx Tx) error) error
}

// Op is one staged upsert: a parameterized cypher template applied to a
// set of rows via UNWIND. Kind tags the entity or relationship family for
// logging and stats.
type Op struct {
	Kind   string
	Cypher string
	Rows   []map[string]any

	// Param is the UNWIND parameter name the template expects.
	// Defaults to "rows".
	Param string
}

// Stats accumulates what a single Apply call committed.
type Stats struct {
	Batches       int
	RowsCommitted int
	RowsSkipped   int
	Retries       int
}

func (s *Stats) add(o Stats) {
	s.Batches += o.Batches
	s.RowsCommitted += o.RowsCommitted
	s.RowsSkipped += o.RowsSkipped
	s.Retries += o.Retries
}

// Options configures a Loader.
type Options struct {
	BatchSize int
	// MaxBatchSize caps BatchSize when set; oversized configs are
	// clamped rather than rejected.
	MaxBatchSize int
	Retry        RetryPolicy

	// IsConstraintViolation classifies duplicate-unique-key errors so a
	// single bad row can be skipped without losing the batch.
	IsConstraintViolation func(err error) bool
}

// Loader translates staged upserts into bounded, atomic, retried
// transactions against the graph store.
type Loader struct {
	run  TxRunner
	log  *logger.Logger
	opts Options
}

func NewLoader(run TxRunner, log *logger.Logger, opts Options) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.MaxBatchSize > 0 && opts.BatchSize > opts.MaxBatchSize {
		log.Warn("batch size exceeds maximum, clamping",
			"batch_size", opts.BatchSize, "max", opts.MaxBatchSize)
		opts.BatchSize = opts.MaxBatchSize
	}
	return &Loader{run: run, log: log.With("component", "loader"), opts: opts}
}

// Apply commits op's rows in batches. Each batch either fully applies or
// fully rolls back. Transient errors are retried with backoff; a
// constraint violation demotes the batch to row-at-a-time so only the
// offending rows are skipped.
func (l *Loader) Apply(ctx context.Context, op Op) (Stats, error) {
	var stats Stats
	if op.Cypher == "" {
		return stats, fmt.Errorf("graph: op %q has no cypher", op.Kind)
	}
	param := op.Param
	if param == "" {
		param = "rows"
	}
	for start := 0; start < len(op.Rows); start += l.opts.BatchSize {
		end := start + l.opts.BatchSize
		if end > len(op.Rows) {
			end = len(op.Rows)
		}
		batch := op.Rows[start:end]
		bs, err := l.applyBatch(ctx, op.Kind, op.Cypher, param, batch)
		stats.add(bs)
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// ApplyAll commits a sequence of ops in order, stopping at the first
// failed op.
func (l *Loader) ApplyAll(ctx context.Context, ops ...Op) (Stats, error) {
	var stats Stats
	for _, op := range ops {
		s, err := l.Apply(ctx, op)
		stats.add(s)
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (l *Loader) applyBatch(ctx context.Context, kind, cypher, param string, rows []map[string]any) (Stats, error) {
	var stats Stats
	attempts := 0
	for {
		err := l.run.ExecuteWrite(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Run(ctx, cypher, map[string]any{param: rows})
		})
		if err == nil {
			stats.Batches++
			stats.RowsCommitted += len(rows)
			return stats, nil
		}
		if l.isConstraint(err) {
			l.log.Warn("constraint violation in batch, isolating rows",
				"kind", kind, "rows", len(rows), "error", err)
			return l.applyRowByRow(ctx, kind, cypher, param, rows)
		}
		attempts++
		if !l.opts.Retry.shouldRetry(attempts, err) {
			l.log.Error("batch failed, retries exhausted",
				"kind", kind, "attempts", attempts, "error", err)
			return stats, fmt.Errorf("%w: %s batch after %d attempts: %v",
				ErrStageFailed, kind, attempts, err)
		}
		stats.Retries++
		delay := l.opts.Retry.backoff(attempts)
		l.log.Warn("transient store error, backing off",
			"kind", kind, "attempt", attempts, "delay", delay, "error", err)
		if serr := sleep(ctx, delay); serr != nil {
			return stats, serr
		}
	}
}

// applyRowByRow lands each row in its own transaction so constraint
// violations from malformed input are skipped and logged while the rest
// of the batch commits. Rows get the same transient-retry treatment as
// whole batches.
func (l *Loader) applyRowByRow(ctx context.Context, kind, cypher, param string, rows []map[string]any) (Stats, error) {
	var stats Stats
	for _, row := range rows {
		attempts := 0
		for {
			err := l.run.ExecuteWrite(ctx, func(ctx context.Context, tx Tx) error {
				return tx.Run(ctx, cypher, map[string]any{param: []map[string]any{row}})
			})
			if err == nil {
				stats.Batches++
				stats.RowsCommitted++
				break
			}
			if l.isConstraint(err) {
				stats.RowsSkipped++
				l.log.Warn("skipping row on constraint violation",
					"kind", kind, "row", row, "error", err)
				break
			}
			attempts++
			if !l.opts.Retry.shouldRetry(attempts, err) {
				l.log.Error("row commit failed, retries exhausted",
					"kind", kind, "attempts", attempts, "error", err)
				return stats, fmt.Errorf("%w: %s row commit after %d attempts: %v",
					ErrStageFailed, kind, attempts, err)
			}
			stats.Retries++
			delay := l.opts.Retry.backoff(attempts)
			l.log.Warn("transient store error on row, backing off",
				"kind", kind, "attempt", attempts, "delay", delay, "error", err)
			if serr := sleep(ctx, delay); serr != nil {
				return stats, serr
			}
		}
	}
	return stats, nil
}

func (l *Loader) isConstraint(err error) bool {
	return l.opts.IsConstraintViolation != nil && l.opts.IsConstraintViolation(err)
}
