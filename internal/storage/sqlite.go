package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	// upload_date is RFC3339 text so MIN() orders chronologically.
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		filename TEXT,
		file_type TEXT,
		file_size INTEGER,
		page_number INTEGER,
		chunk_index INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		upload_date TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_seq ON chunks(seq);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordChunks inserts chunk rows in a transaction. Chunk metadata supplies
// filename, file size, upload date, and the seq insertion counter.
func (s *SQLiteCatalog) RecordChunks(ctx context.Context, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO chunks (id, document_id, filename, file_type, file_size, page_number, chunk_index, seq, upload_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ch := range chunks {
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID,
			ch.Metadata["filename"], ch.Metadata["file_type"], metaInt64(ch.Metadata, "file_size"),
			ch.PageNumber, ch.ChunkIndex, metaInt64(ch.Metadata, "seq"), metaUploadDate(ch.Metadata),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteDocument removes all rows of a document and returns how many there were.
func (s *SQLiteCatalog) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Documents lists documents grouped from chunk rows, oldest ingestion first.
func (s *SQLiteCatalog) Documents(ctx context.Context) ([]*models.DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, MIN(filename), MIN(file_type), MIN(file_size), MIN(upload_date), COUNT(*)
		 FROM chunks GROUP BY document_id ORDER BY MIN(seq)`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.DocumentInfo
	for rows.Next() {
		var doc models.DocumentInfo
		var uploadDate string
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.FileSize, &uploadDate, &doc.ChunkCount); err != nil {
			return nil, err
		}
		doc.UploadDate, _ = time.Parse(time.RFC3339, uploadDate)
		doc.Status = "processed"
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// CountChunks returns the total number of chunk rows.
func (s *SQLiteCatalog) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

func metaInt64(m map[string]string, key string) int64 {
	if m == nil {
		return 0
	}
	v, _ := strconv.ParseInt(m[key], 10, 64)
	return v
}

func metaUploadDate(m map[string]string) string {
	if m != nil && m["upload_date"] != "" {
		return m["upload_date"]
	}
	return time.Now().UTC().Format(time.RFC3339)
}
