// Package storage persists playbook snapshots to SQLite so a learning loop
// survives process restarts.
package storage

import (
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// SQLiteStore persists full playbook snapshots in a single bullets table.
// Save replaces the previous snapshot atomically; Load returns the bullets
// of the latest snapshot.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string

	initialized sync.Once
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" keeps
// the snapshot in-process.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "failed to open SQLite database"),
			errors.Fields{"path": path},
		)
	}

	store := &SQLiteStore{
		db:   db,
		path: path,
	}
	if err := store.ensureInitialized(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) ensureInitialized() error {
	var initErr error
	s.initialized.Do(func() {
		// WAL mode for concurrent readers during Save.
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.Unknown, "failed to enable WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS bullets (
            id TEXT PRIMARY KEY,
            section TEXT NOT NULL,
            content TEXT NOT NULL,
            created DATETIME NOT NULL,
            helpful_count INTEGER NOT NULL DEFAULT 0,
            harmful_count INTEGER NOT NULL DEFAULT 0,
            last_used DATETIME,
            embedding TEXT
        );

        CREATE INDEX IF NOT EXISTS idx_bullets_section
        ON bullets(section);
        `

		if _, err := s.db.Exec(query); err != nil {
			initErr = errors.Wrap(err, errors.Unknown, "failed to initialize database")
			return
		}
	})
	return initErr
}

// Save replaces the stored snapshot with the given bullets in one
// transaction. A failed save leaves the previous snapshot intact.
func (s *SQLiteStore) Save(bullets []playbook.Bullet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.Exec("DELETE FROM bullets"); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to clear previous snapshot")
	}

	stmt, err := tx.Prepare(`
    INSERT INTO bullets (id, section, content, created, helpful_count, harmful_count, last_used, embedding)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to prepare insert")
	}
	defer stmt.Close()

	for _, b := range bullets {
		var lastUsed any
		if b.Metadata.LastUsed != nil {
			lastUsed = b.Metadata.LastUsed.UTC()
		}

		var embedding any
		if len(b.Metadata.Embedding) > 0 {
			data, err := json.Marshal(b.Metadata.Embedding)
			if err != nil {
				return errors.WithFields(
					errors.Wrap(err, errors.InvalidInput, "failed to marshal embedding"),
					errors.Fields{"bullet_id": b.ID},
				)
			}
			embedding = string(data)
		}

		if _, err := stmt.Exec(b.ID, b.Section, b.Content, b.Metadata.Created.UTC(),
			b.Metadata.HelpfulCount, b.Metadata.HarmfulCount, lastUsed, embedding); err != nil {
			return errors.WithFields(
				errors.Wrap(err, errors.Unknown, "failed to insert bullet"),
				errors.Fields{"bullet_id": b.ID},
			)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to commit snapshot")
	}
	return nil
}

// Load returns the stored snapshot in insertion order.
func (s *SQLiteStore) Load() ([]playbook.Bullet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
    SELECT id, section, content, created, helpful_count, harmful_count, last_used, embedding
    FROM bullets ORDER BY rowid
    `)
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to query snapshot")
	}
	defer rows.Close()

	var bullets []playbook.Bullet
	for rows.Next() {
		var (
			b         playbook.Bullet
			created   time.Time
			lastUsed  sql.NullTime
			embedding sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.Section, &b.Content, &created,
			&b.Metadata.HelpfulCount, &b.Metadata.HarmfulCount, &lastUsed, &embedding); err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to scan bullet row")
		}

		b.Metadata.Created = created
		if lastUsed.Valid {
			t := lastUsed.Time
			b.Metadata.LastUsed = &t
		}
		if embedding.Valid && embedding.String != "" {
			// A corrupt embedding loses the vector, not the bullet.
			_ = json.Unmarshal([]byte(embedding.String), &b.Metadata.Embedding)
		}

		bullets = append(bullets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to read snapshot rows")
	}
	return bullets, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
