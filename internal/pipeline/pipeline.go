// Package pipeline sequences the build stages: schema, ontology per
// namespace, the gene base load, cross-namespace interconnection, the
// omics integrators, curated genesets, and the final validation pass.
// Stage completion is checkpointed so a rerun resumes where the last run
// stopped; stages declare preconditions and refuse to run out of order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/platform/logger"
)

// ErrPrecondition means a stage was asked to run before the stages it
// depends on completed. That is an ordering bug, never retried.
var ErrPrecondition = errors.New("pipeline: precondition violation")

// Stage is one resumable unit of the build. Stages sharing a non-empty
// Group and adjacent positions run concurrently; their relationship
// families are disjoint so they cannot contend on the same keys.
type Stage struct {
	Name     string
	Requires []string
	Group    string
	Run      func(ctx context.Context) error
}

// StageStatus is the per-stage outcome in the final report.
type StageStatus string

const (
	StatusCompleted StageStatus = "completed"
	StatusSkipped   StageStatus = "skipped"
	StatusFailed    StageStatus = "failed"
	StatusNotRun    StageStatus = "not_run"
)

type StageResult struct {
	Name     string
	Status   StageStatus
	Err      error
	Duration time.Duration
}

// Report is produced on every run, success or failure.
type Report struct {
	RunID  string
	Stages []StageResult
}

// Failed returns the first hard-failed stage, if any.
func (r *Report) Failed() *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Status == StatusFailed {
			return &r.Stages[i]
		}
	}
	return nil
}

// Pipeline runs stages in order against a persisted checkpoint.
type Pipeline struct {
	stages []Stage
	store  *graph.CheckpointStore
	log    *logger.Logger
}

func New(stages []Stage, store *graph.CheckpointStore, log *logger.Logger) *Pipeline {
	return &Pipeline{stages: stages, store: store, log: log.With("component", "pipeline")}
}

// Run executes the stage list. Completed stages (from this run or a prior
// checkpoint) are skipped. A stage whose requirements are not completed
// fails with ErrPrecondition and halts the run. The report is always
// returned, also on failure.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	cp, err := p.store.Load()
	if err != nil {
		return nil, err
	}
	report := &Report{RunID: cp.RunID}
	p.log.Info("pipeline starting", "run_id", cp.RunID, "stages", len(p.stages),
		"already_completed", len(cp.Completed))

	i := 0
	for i < len(p.stages) {
		group := p.stageGroup(i)
		results, err := p.runGroup(ctx, cp, group)
		report.Stages = append(report.Stages, results...)
		if err != nil {
			p.markNotRun(report, i+len(group))
			return report, err
		}
		i += len(group)
	}

	p.log.Info("pipeline complete", "run_id", cp.RunID)
	return report, nil
}

// stageGroup returns the run of stages starting at i that execute
// together: a single stage, or the adjacent stages sharing its non-empty
// Group.
func (p *Pipeline) stageGroup(i int) []Stage {
	first := p.stages[i]
	if first.Group == "" {
		return p.stages[i : i+1]
	}
	j := i + 1
	for j < len(p.stages) && p.stages[j].Group == first.Group {
		j++
	}
	return p.stages[i:j]
}

func (p *Pipeline) runGroup(ctx context.Context, cp *graph.Checkpoint, group []Stage) ([]StageResult, error) {
	results := make([]StageResult, len(group))
	type job struct {
		idx   int
		stage Stage
	}
	var jobs []job

	for i, st := range group {
		results[i] = StageResult{Name: st.Name, Status: StatusNotRun}
		if cp.Done(st.Name) {
			results[i].Status = StatusSkipped
			p.log.Info("stage already completed, skipping", "stage", st.Name)
			continue
		}
		for _, req := range st.Requires {
			if !cp.Done(req) {
				err := fmt.Errorf("%w: stage %q requires %q", ErrPrecondition, st.Name, req)
				results[i].Status = StatusFailed
				results[i].Err = err
				return results, err
			}
		}
		jobs = append(jobs, job{idx: i, stage: st})
	}

	if len(jobs) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			p.log.Info("stage starting", "stage", j.stage.Name)
			start := time.Now()
			err := j.stage.Run(gctx)
			results[j.idx].Duration = time.Since(start)
			if err != nil {
				results[j.idx].Status = StatusFailed
				results[j.idx].Err = err
				p.log.Error("stage failed", "stage", j.stage.Name, "error", err)
				return fmt.Errorf("stage %s: %w", j.stage.Name, err)
			}
			results[j.idx].Status = StatusCompleted
			p.log.Info("stage completed", "stage", j.stage.Name,
				"duration", results[j.idx].Duration)
			return nil
		})
	}
	groupErr := g.Wait()

	// Checkpoint every stage that completed, even when a sibling failed;
	// the rerun then skips the finished work.
	marked := false
	for _, j := range jobs {
		if results[j.idx].Status == StatusCompleted {
			cp.Mark(j.stage.Name)
			marked = true
		}
	}
	if marked {
		if err := p.store.Save(cp); err != nil {
			return results, fmt.Errorf("pipeline: persist checkpoint: %w", err)
		}
	}
	return results, groupErr
}

func (p *Pipeline) markNotRun(report *Report, from int) {
	for _, st := range p.stages[from:] {
		report.Stages = append(report.Stages, StageResult{Name: st.Name, Status: StatusNotRun})
	}
}
