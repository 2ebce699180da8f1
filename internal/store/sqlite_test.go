package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/nudge/internal/constants"
	"github.com/nvandessel/nudge/internal/models"
	"github.com/nvandessel/nudge/internal/session"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), ".nudge", DBFile), session.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func activation(id, contextType string, kws ...string) models.ConstraintActivation {
	return models.ConstraintActivation{
		ConstraintID:    models.ConstraintID(id),
		ConfidenceScore: 0.9,
		Reason:          models.ReasonKeywordMatch,
		TriggerContext:  models.TriggerContext{Keywords: kws, ContextType: contextType, FilePath: "a_test.go", ToolName: "Edit"},
		Timestamp:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestSQLiteStore_LoadMissing(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if sess.ID() != "nobody" || sess.ToolCallCount() != 0 || len(sess.History()) != 0 {
		t.Errorf("Load() of unknown id should return an empty session")
	}
}

func TestSQLiteStore_SaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := session.New("s1", session.DefaultConfig())
	sess.RecordToolCall()
	sess.RecordToolCall()
	for i := 0; i < 3; i++ {
		sess.RecordActivation(activation("tdd.test-first", "testing", "unit", "tests"))
	}
	sess.SetWorkflowState("tdd.cycle", []byte(`{"current":"green"}`))

	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.ToolCallCount() != 2 {
		t.Errorf("ToolCallCount() = %d, want 2", got.ToolCallCount())
	}
	history := got.History()
	if len(history) != 3 {
		t.Fatalf("History() has %d entries, want 3", len(history))
	}
	first := history[0]
	if first.ConstraintID != "tdd.test-first" || first.Reason != models.ReasonKeywordMatch {
		t.Errorf("activation = %+v", first)
	}
	if len(first.TriggerContext.Keywords) != 2 || first.TriggerContext.Keywords[1] != "tests" {
		t.Errorf("keywords = %v", first.TriggerContext.Keywords)
	}
	if first.TriggerContext.SessionID != "s1" || first.TriggerContext.ToolName != "Edit" {
		t.Errorf("trigger context = %+v", first.TriggerContext)
	}
	if !first.Timestamp.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("timestamp = %v", first.Timestamp)
	}
	if got.DetectedActivityPattern() != constants.PatternTestDriven {
		t.Errorf("DetectedActivityPattern() = %q, want test-driven", got.DetectedActivityPattern())
	}
	if got.GetSessionRelevanceAdjustment("tdd.test-first") != constants.DefaultSessionBoost {
		t.Error("restored session lost its activation counts")
	}
	if data, ok := got.WorkflowState("tdd.cycle"); !ok || string(data) != `{"current":"green"}` {
		t.Errorf("WorkflowState() = %s, %v", data, ok)
	}
}

func TestSQLiteStore_SaveAppendsOnlyNewHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := session.New("s1", session.DefaultConfig())
	sess.RecordActivation(activation("a", "testing"))
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	sess.RecordActivation(activation("b", "refactoring"))
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	history, err := s.History(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].ConstraintID != "a" || history[1].ConstraintID != "b" {
		t.Errorf("History() = %v, want [a b]", history)
	}

	sess.Reset()
	sess.RecordActivation(activation("c", "testing"))
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	history, _ = s.History(ctx, "s1", 0)
	if len(history) != 1 || history[0].ConstraintID != "c" {
		t.Errorf("History() after in-memory reset = %v, want [c]", history)
	}
}

func TestSQLiteStore_HistoryLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := session.New("s1", session.DefaultConfig())
	for _, id := range []string{"a", "b", "c", "d"} {
		sess.RecordActivation(activation(id, "testing"))
	}
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	history, err := s.History(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].ConstraintID != "c" || history[1].ConstraintID != "d" {
		t.Errorf("History(limit 2) = %v, want [c d]", history)
	}
}

func TestSQLiteStore_ResetAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2"} {
		sess := session.New(id, session.DefaultConfig())
		sess.RecordToolCall()
		sess.RecordActivation(activation("a", "testing"))
		if err := s.Save(ctx, sess); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() = %v, want 2 sessions", list)
	}
	for _, sum := range list {
		if sum.Activations != 1 || sum.ToolCalls != 1 {
			t.Errorf("summary = %+v", sum)
		}
	}

	if err := s.Reset(ctx, "s1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	history, err := s.History(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Errorf("History() after Reset = %v, want empty", history)
	}
	list, _ = s.List(ctx)
	if len(list) != 1 || list[0].ID != "s2" {
		t.Errorf("List() after Reset = %v, want [s2]", list)
	}
}

func TestSQLiteStore_WithRegistry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	reg := session.NewRegistry(session.DefaultConfig(), s)
	for i := 0; i < 3; i++ {
		if err := reg.Do(ctx, "s1", func(sess *session.Context) error {
			sess.RecordToolCall()
			return nil
		}); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}

	loaded, err := s.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.ToolCallCount() != 3 {
		t.Errorf("ToolCallCount() = %d, want 3", loaded.ToolCallCount())
	}
}

func TestInitSchema_MigratesV1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		t.Fatalf("creating v1 schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version, applied_at) VALUES (1, datetime('now'))`); err != nil {
		t.Fatalf("recording v1: %v", err)
	}

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}
	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("getSchemaVersion() error = %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("schema version = %d, want %d", version, SchemaVersion)
	}
	var name string
	if err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name='workflow_state'`).Scan(&name); err != nil {
		t.Errorf("workflow_state table missing after migration: %v", err)
	}
	db.Close()

	// reopening through the store is a no-op migration
	s, err := NewSQLiteStore(path, session.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	s.Close()
}
