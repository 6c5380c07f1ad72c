package json

import (
	"context"
	"encoding/json"
	"testing"
)

type sample struct {
	Name string `json:"name"`
}

func TestManager_CommitAndLoad(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	ctx := context.Background()
	sess, err := m.Begin(ctx, "run-1")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	defer sess.Close()

	if err := sess.Save(ctx, "input", sample{Name: "widget"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := sess.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	records, err := Load(dir, "run-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	raw, ok := records["input"]
	if !ok {
		t.Fatal("expected \"input\" key in loaded records")
	}

	var got sample
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("failed to unmarshal item: %v", err)
	}
	if got.Name != "widget" {
		t.Errorf("Name = %q, want %q", got.Name, "widget")
	}
}

func TestManager_RollbackDoesNotWriteFile(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir)
	ctx := context.Background()

	sess, _ := m.Begin(ctx, "run-2")
	_ = sess.Save(ctx, "input", sample{Name: "discarded"})
	if err := sess.Rollback(ctx); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	sess.Close()

	if _, err := Load(dir, "run-2"); err == nil {
		t.Fatal("expected Load() to fail for a rolled-back run")
	}
}

func TestManager_SaveValidation(t *testing.T) {
	dir := t.TempDir()
	m, _ := NewManager(dir)
	ctx := context.Background()
	sess, _ := m.Begin(ctx, "run-3")
	defer sess.Close()

	if err := sess.Save(ctx, "", sample{}); err == nil {
		t.Error("expected error for empty key")
	}
	if err := sess.Save(ctx, "key", nil); err == nil {
		t.Error("expected error for nil item")
	}
}
