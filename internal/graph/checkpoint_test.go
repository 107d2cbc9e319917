package graph

import (
	"path/filepath"
	"testing"
)

func TestCheckpointRoundTrip(t *testing.T) {
	store := &CheckpointStore{Path: filepath.Join(t.TempDir(), "checkpoint.json")}

	cp, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp.RunID == "" {
		t.Fatalf("fresh checkpoint must carry a run id")
	}
	if cp.Done("ontology:biological_process") {
		t.Fatalf("fresh checkpoint has no completed stages")
	}

	cp.Mark("ontology:biological_process")
	cp.Mark("annotations")
	if err := store.Save(cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loaded.RunID != cp.RunID {
		t.Fatalf("run id changed across save/load: %s vs %s", loaded.RunID, cp.RunID)
	}
	if !loaded.Done("ontology:biological_process") || !loaded.Done("annotations") {
		t.Fatalf("completed stages lost: %+v", loaded.Completed)
	}
	if loaded.Done("omics:disease") {
		t.Fatalf("unmarked stage reported done")
	}
}

func TestCheckpointReset(t *testing.T) {
	store := &CheckpointStore{Path: filepath.Join(t.TempDir(), "checkpoint.json")}

	cp, _ := store.Load()
	cp.Mark("schema")
	if err := store.Save(cp); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	fresh, err := store.Load()
	if err != nil {
		t.Fatalf("Load after reset: %v", err)
	}
	if fresh.Done("schema") {
		t.Fatalf("reset must discard completed stages")
	}
	if fresh.RunID == cp.RunID {
		t.Fatalf("reset must start a new run")
	}

	// Resetting a missing file is not an error.
	if err := store.Reset(); err != nil {
		t.Fatalf("Reset on missing file: %v", err)
	}
}
