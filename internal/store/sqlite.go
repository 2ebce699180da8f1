package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/nudge/internal/models"
	"github.com/nvandessel/nudge/internal/session"

	_ "modernc.org/sqlite" // SQLite driver
)

const timeLayout = time.RFC3339Nano

// SQLiteStore implements session.Store on SQLite.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	config session.Config
}

// Summary is one row of List.
type Summary struct {
	ID                  string    `json:"id"`
	ToolCalls           int       `json:"tool_calls"`
	Activations         int       `json:"activations"`
	ActivityPattern     string    `json:"activity_pattern"`
	DominantContextType string    `json:"dominant_context_type"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string, config session.Config) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath, config: config}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load implements session.Store.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*session.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := session.Snapshot{ID: id}
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT tool_calls, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&snap.ToolCalls, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.New(id, s.config), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	snap.CreatedAt = parseTime(createdAt)

	history, err := s.activations(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	snap.History = history

	snap.Workflows, err = s.workflows(ctx, id)
	if err != nil {
		return nil, err
	}

	return session.Restore(snap, s.config), nil
}

// Save implements session.Store. History rows already stored are kept and
// only the new tail is inserted; a history shorter than what is stored
// (the session was reset in memory) replaces it.
func (s *SQLiteStore) Save(ctx context.Context, sess *session.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := sess.Snapshot()
	now := time.Now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, tool_calls, activity_pattern, dominant_context_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tool_calls = excluded.tool_calls,
			activity_pattern = excluded.activity_pattern,
			dominant_context_type = excluded.dominant_context_type,
			updated_at = excluded.updated_at`,
		snap.ID, snap.ToolCalls, snap.ActivityPattern, snap.DominantContextType,
		snap.CreatedAt.UTC().Format(timeLayout), now)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	var stored int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activations WHERE session_id = ?`, snap.ID).Scan(&stored); err != nil {
		return fmt.Errorf("failed to count activations: %w", err)
	}
	if stored > len(snap.History) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM activations WHERE session_id = ?`, snap.ID); err != nil {
			return fmt.Errorf("failed to clear activations: %w", err)
		}
		stored = 0
	}

	for seq := stored; seq < len(snap.History); seq++ {
		if err := insertActivation(ctx, tx, snap.ID, seq, snap.History[seq]); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_state WHERE session_id = ?`, snap.ID); err != nil {
		return fmt.Errorf("failed to clear workflow state: %w", err)
	}
	for wf, state := range snap.Workflows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workflow_state (session_id, workflow_id, state, updated_at) VALUES (?, ?, ?, ?)`,
			snap.ID, string(wf), string(state), now); err != nil {
			return fmt.Errorf("failed to save workflow state: %w", err)
		}
	}

	return tx.Commit()
}

func insertActivation(ctx context.Context, tx *sql.Tx, sessionID string, seq int, a models.ConstraintActivation) error {
	kws, err := json.Marshal(a.TriggerContext.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO activations (session_id, seq, constraint_id, confidence, reason, context_type, file_path, tool_name, keywords, activated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, seq, string(a.ConstraintID), a.ConfidenceScore, string(a.Reason),
		a.TriggerContext.ContextType, a.TriggerContext.FilePath, a.TriggerContext.ToolName,
		string(kws), a.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert activation: %w", err)
	}
	return nil
}

// Reset implements session.Store: it deletes the session and its history.
func (s *SQLiteStore) Reset(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to reset session: %w", err)
	}
	return nil
}

// History returns the last limit activations of a session, oldest first.
// A limit of zero or less returns the whole history.
func (s *SQLiteStore) History(ctx context.Context, id string, limit int) ([]models.ConstraintActivation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.activations(ctx, id, limit)
}

// List summarizes every stored session, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.tool_calls, COALESCE(s.activity_pattern, ''), COALESCE(s.dominant_context_type, ''),
		       s.updated_at, (SELECT COUNT(*) FROM activations a WHERE a.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var updated string
		if err := rows.Scan(&sum.ID, &sum.ToolCalls, &sum.ActivityPattern, &sum.DominantContextType, &updated, &sum.Activations); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.UpdatedAt = parseTime(updated)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) activations(ctx context.Context, id string, limit int) ([]models.ConstraintActivation, error) {
	query := `SELECT constraint_id, confidence, reason, COALESCE(context_type, ''), COALESCE(file_path, ''),
	                 COALESCE(tool_name, ''), COALESCE(keywords, '[]'), activated_at
	          FROM activations WHERE session_id = ? ORDER BY seq`
	args := []interface{}{id}
	if limit > 0 {
		query = `SELECT * FROM (
			SELECT constraint_id, confidence, reason, COALESCE(context_type, ''), COALESCE(file_path, ''),
			       COALESCE(tool_name, ''), COALESCE(keywords, '[]'), activated_at, seq
			FROM activations WHERE session_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activations: %w", err)
	}
	defer rows.Close()

	var out []models.ConstraintActivation
	for rows.Next() {
		var a models.ConstraintActivation
		var cid, reason, kws, at string
		var seq int
		dest := []interface{}{&cid, &a.ConfidenceScore, &reason, &a.TriggerContext.ContextType,
			&a.TriggerContext.FilePath, &a.TriggerContext.ToolName, &kws, &at}
		if limit > 0 {
			dest = append(dest, &seq)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan activation: %w", err)
		}
		a.ConstraintID = models.ConstraintID(cid)
		a.TriggerContext.SessionID = id
		a.Reason = models.ActivationReason(reason)
		if err := json.Unmarshal([]byte(kws), &a.TriggerContext.Keywords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
		}
		a.Timestamp = parseTime(at)
		a.TriggerContext.Timestamp = a.Timestamp
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) workflows(ctx context.Context, id string) (map[models.ConstraintID][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow_id, state FROM workflow_state WHERE session_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow state: %w", err)
	}
	defer rows.Close()

	out := make(map[models.ConstraintID][]byte)
	for rows.Next() {
		var wf, state string
		if err := rows.Scan(&wf, &state); err != nil {
			return nil, fmt.Errorf("failed to scan workflow state: %w", err)
		}
		out[models.ConstraintID(wf)] = []byte(state)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
