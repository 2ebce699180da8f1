package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 2

// schemaV1 holds sessions and their activation history.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    tool_calls INTEGER NOT NULL DEFAULT 0,
    activity_pattern TEXT,
    dominant_context_type TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Append-only; seq is the position in the session's history.
CREATE TABLE IF NOT EXISTS activations (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    constraint_id TEXT NOT NULL,
    confidence REAL NOT NULL,
    reason TEXT NOT NULL,
    context_type TEXT,
    file_path TEXT,
    tool_name TEXT,
    keywords TEXT,  -- JSON array
    activated_at TEXT NOT NULL,
    PRIMARY KEY (session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_activations_constraint ON activations(constraint_id);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// schemaV2 adds per-session composition workflow state.
const schemaV2 = `
CREATE TABLE IF NOT EXISTS workflow_state (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    workflow_id TEXT NOT NULL,
    state TEXT NOT NULL,  -- JSON
    updated_at TEXT NOT NULL,
    PRIMARY KEY (session_id, workflow_id)
);
`

// InitSchema creates or migrates the schema.
func InitSchema(ctx context.Context, db *sql.DB) error {
	currentVersion, err := getSchemaVersion(ctx, db)
	if err != nil {
		// schema_version does not exist yet, create fresh schema
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if currentVersion < SchemaVersion {
		if err := migrateSchema(ctx, db, currentVersion); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// getSchemaVersion returns the current schema version from the database.
// Returns 0 and an error if the schema_version table doesn't exist.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, ddl := range []string{schemaV1, schemaV2} {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// migrateSchema applies every migration above currentVersion in order.
func migrateSchema(ctx context.Context, db *sql.DB, currentVersion int) error {
	migrations := map[int]string{
		2: schemaV2,
	}

	for v := currentVersion + 1; v <= SchemaVersion; v++ {
		ddl, ok := migrations[v]
		if !ok {
			return fmt.Errorf("no migration to schema version %d", v)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration to v%d: %w", v, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, v); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording schema version %d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration to v%d: %w", v, err)
		}
	}
	return nil
}
