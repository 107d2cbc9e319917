package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Checkpoint records which pipeline stages have fully committed so a
// rerun can skip them. One file per build database.
type Checkpoint struct {
	RunID     string               `json:"run_id"`
	StartedAt time.Time            `json:"started_at"`
	Completed map[string]time.Time `json:"completed"`
}

func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Completed: map[string]time.Time{},
	}
}

func (c *Checkpoint) Done(stage string) bool {
	_, ok := c.Completed[stage]
	return ok
}

func (c *Checkpoint) Mark(stage string) {
	if c.Completed == nil {
		c.Completed = map[string]time.Time{}
	}
	c.Completed[stage] = time.Now().UTC()
}

// CheckpointStore persists the checkpoint as JSON on disk.
type CheckpointStore struct {
	Path string
}

func (s *CheckpointStore) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return NewCheckpoint(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read %s: %w", s.Path, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint: parse %s: %w", s.Path, err)
	}
	if cp.Completed == nil {
		cp.Completed = map[string]time.Time{}
	}
	if cp.RunID == "" {
		cp.RunID = uuid.NewString()
	}
	return &cp, nil
}

func (s *CheckpointStore) Save(cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("checkpoint: mkdir %s: %w", dir, err)
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("checkpoint: rename: %w", err)
	}
	return nil
}

// Reset removes the persisted checkpoint; the next build starts fresh.
func (s *CheckpointStore) Reset() error {
	err := os.Remove(s.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
