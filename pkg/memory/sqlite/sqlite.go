// Package sqlite provides a memory.Driver backed by a local SQLite file,
// for capture without a hosted memory service. Search is a LIKE scan over
// record content; semantic recall stays a remote-service concern.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/coilworks/mnemo/pkg/memory"
)

// Driver implements memory.Driver using SQLite as the storage backend.
type Driver struct {
	db *sql.DB
}

// NewDriver creates a new SQLite-backed memory driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &Driver{db: db}

	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return d, nil
}

// migrate creates the necessary tables if they don't exist.
func (d *Driver) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		agent_id TEXT,
		run_id TEXT,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_memories_user_id ON memories(user_id);
	CREATE INDEX IF NOT EXISTS idx_memories_run_id ON memories(run_id);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Add stores the joined messages as one record.
func (d *Driver) Add(ctx context.Context, messages []memory.Message, opts memory.AddOptions) (*memory.AddResult, error) {
	var parts []string
	for _, msg := range messages {
		parts = append(parts, msg.Role+": "+msg.Content)
	}
	content := strings.Join(parts, "\n")

	var metadataJSON []byte
	if opts.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(opts.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	id := uuid.NewString()

	query := `INSERT INTO memories (id, user_id, agent_id, run_id, content, metadata) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := d.db.ExecContext(ctx, query, id, opts.UserID, opts.AgentID, opts.RunID, content, string(metadataJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to insert memory: %w", err)
	}

	return &memory.AddResult{ID: id}, nil
}

// Search scans the user's records for the query text.
func (d *Driver) Search(ctx context.Context, query string, opts memory.SearchOptions) ([]memory.Memory, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, content, metadata, created_at FROM memories
		 WHERE user_id = ? AND content LIKE ?
		 ORDER BY created_at DESC LIMIT ?`,
		opts.UserID, "%"+query+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// GetAll lists every memory stored for the user, newest first.
func (d *Driver) GetAll(ctx context.Context, userID string) ([]memory.Memory, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, content, metadata, created_at FROM memories
		 WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// Delete removes one memory by ID.
func (d *Driver) Delete(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// DeleteAll removes every memory stored for the user.
func (d *Driver) DeleteAll(ctx context.Context, userID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM memories WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete memories: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.db.Close()
}

func scanMemories(rows *sql.Rows) ([]memory.Memory, error) {
	var out []memory.Memory
	for rows.Next() {
		var m memory.Memory
		var metadataJSON sql.NullString
		var createdAt time.Time

		if err := rows.Scan(&m.ID, &m.Content, &metadataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		m.CreatedAt = createdAt

		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &m.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		out = append(out, m)
	}
	return out, rows.Err()
}
