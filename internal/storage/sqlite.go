package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ruiji/internal/models"
)

// SQLiteStorage implements Storage using SQLite. Optimistic checks are
// conditional UPDATEs on the version column; creates rely on the primary key.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers inside the process and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		uuid TEXT NOT NULL,
		schema TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id INTEGER NOT NULL,
		version INTEGER NOT NULL,
		text_vector BLOB,
		image_vector BLOB,
		metadata TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateCollection inserts c unless a collection with that name exists.
func (s *SQLiteStorage) CreateCollection(ctx context.Context, c *Collection) (*Collection, bool, error) {
	schemaJSON, err := json.Marshal(c.Schema)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal schema: %w", err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, uuid, schema, created_at) VALUES (?, ?, ?, ?)`,
		c.Name, c.UUID, string(schemaJSON), c.CreatedAt,
	)
	if err != nil {
		return nil, false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return c, true, nil
	}
	existing, err := s.GetCollection(ctx, c.Name)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetCollection returns a collection by name.
func (s *SQLiteStorage) GetCollection(ctx context.Context, name string) (*Collection, error) {
	var c Collection
	var schemaJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, uuid, schema, created_at FROM collections WHERE name = ?`, name,
	).Scan(&c.Name, &c.UUID, &schemaJSON, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrIndexMissing, name)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(schemaJSON), &c.Schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return &c, nil
}

// DropCollection removes a collection and its documents.
func (s *SQLiteStorage) DropCollection(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

// GetDocument returns a document by collection and ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, collection string, id int64) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, version, text_vector, image_vector, metadata
		 FROM documents WHERE collection = ? AND id = ?`, collection, id,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: document %d", models.ErrNotFound, id)
	}
	return doc, err
}

// PutDocument writes doc under an optimistic version check.
func (s *SQLiteStorage) PutDocument(ctx context.Context, collection string, doc *models.Document, expectedVersion int64) (int64, error) {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE name = ?`, collection).Scan(&one)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", models.ErrIndexMissing, collection)
	}
	if err != nil {
		return 0, err
	}

	newVersion := expectedVersion + 1
	now := time.Now()
	if expectedVersion == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, version, text_vector, image_vector, metadata, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			collection, doc.ID, newVersion, float32SliceToBytes(doc.TextVector),
			float32SliceToBytes(doc.ImageVector), string(metadataJSON), now,
		)
		if isConstraintViolation(err) {
			return 0, fmt.Errorf("%w: document %d was created concurrently", models.ErrWriteConflict, doc.ID)
		}
		if err != nil {
			return 0, err
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET version = ?, text_vector = ?, image_vector = ?, metadata = ?, updated_at = ?
			 WHERE collection = ? AND id = ? AND version = ?`,
			newVersion, float32SliceToBytes(doc.TextVector), float32SliceToBytes(doc.ImageVector),
			string(metadataJSON), now, collection, doc.ID, expectedVersion,
		)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return 0, fmt.Errorf("%w: document %d is no longer at version %d", models.ErrWriteConflict, doc.ID, expectedVersion)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	doc.Version = newVersion
	return newVersion, nil
}

// ForEachDocument streams all documents of a collection ordered by ID.
func (s *SQLiteStorage) ForEachDocument(ctx context.Context, collection string, fn func(*models.Document) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, text_vector, image_vector, metadata
		 FROM documents WHERE collection = ? ORDER BY id`, collection,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountDocuments returns the number of documents in a collection.
func (s *SQLiteStorage) CountDocuments(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var textBlob, imageBlob []byte
	var metadataJSON sql.NullString
	if err := row.Scan(&doc.ID, &doc.Version, &textBlob, &imageBlob, &metadataJSON); err != nil {
		return nil, err
	}
	doc.TextVector = bytesToFloat32Slice(textBlob)
	doc.ImageVector = bytesToFloat32Slice(imageBlob)
	doc.Metadata = models.Metadata{}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

func isConstraintViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
