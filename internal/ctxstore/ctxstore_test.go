package ctxstore

import (
	"context"
	"testing"

	"github.com/vborodin/procflow/internal/domain"
	"github.com/vborodin/procflow/internal/store/memory"
)

func TestMerge_LaterWins(t *testing.T) {
	entries := []domain.ContextEntry{
		{ID: 1, StepName: "a", Payload: map[string]any{"x": 1, "y": "keep"}},
		{ID: 2, StepName: "b", Payload: map[string]any{"x": 2}},
	}

	merged := Merge(entries)
	if merged["x"] != 2 {
		t.Errorf("expected later write to win, got x=%v", merged["x"])
	}
	if merged["y"] != "keep" {
		t.Errorf("expected y preserved, got %v", merged["y"])
	}
}

func TestMerge_Empty(t *testing.T) {
	merged := Merge(nil)
	if len(merged) != 0 {
		t.Errorf("expected empty map, got %v", merged)
	}
}

func TestAppendLoad(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())

	if err := s.Append(ctx, 1, "prepare", map[string]any{"preparedAt": "now"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Append(ctx, 1, "call_api_a", map[string]any{"apiA": "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Чужой процесс не виден
	if err := s.Append(ctx, 2, "prepare", map[string]any{"other": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	merged, err := s.Load(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged["preparedAt"] != "now" || merged["apiA"] != "ok" {
		t.Errorf("unexpected merged context: %v", merged)
	}
	if _, ok := merged["other"]; ok {
		t.Error("context leaked across processes")
	}
}

func TestAppend_EmptyPayloadSkipped(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	s := New(db)

	if err := s.Append(ctx, 1, "noop", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := db.ListContext(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestLoadUntilStep_KeyOverwrite(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())

	s.Append(ctx, 1, "a", map[string]any{"x": 1})
	s.Append(ctx, 1, "b", map[string]any{"x": 2})

	merged, err := s.Load(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged["x"] != 2 {
		t.Errorf("expected x=2, got %v", merged["x"])
	}

	until, err := s.LoadUntilStep(ctx, 1, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if until["x"] != 1 {
		t.Errorf("expected x=1 as seen by step a, got %v", until["x"])
	}
}

func TestLoadUntilStep(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())

	s.Append(ctx, 1, "prepare", map[string]any{"stage": "prepare"})
	s.Append(ctx, 1, "call_api_a", map[string]any{"stage": "dispatch", "apiA": "ok"})
	s.Append(ctx, 1, "finalize", map[string]any{"stage": "final"})

	merged, err := s.LoadUntilStep(ctx, 1, "call_api_a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged["stage"] != "dispatch" {
		t.Errorf("expected stage dispatch, got %v", merged["stage"])
	}
}

// Параллельные ветви, пишущие один ключ: порядок записи определяет
// победителя, обе записи сохраняются в журнале.
func TestParallelBranches_CollisionKeepsJournal(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	s := New(db)

	s.Append(ctx, 1, "archive_db", map[string]any{"archived": "db"})
	s.Append(ctx, 1, "archive_files", map[string]any{"archived": "files"})

	merged, err := s.Load(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged["archived"] != "files" {
		t.Errorf("expected last writer to win, got %v", merged["archived"])
	}

	entries, err := db.ListContext(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected both journal entries preserved, got %d", len(entries))
	}
}
