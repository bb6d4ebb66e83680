package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Fields an entry is embedded from. Each field has its own vector per
// entry and model.
const (
	FieldDuties = "duties"
	FieldTitle  = "title"
)

// StoredEmbedding is one persisted entry vector.
type StoredEmbedding struct {
	Code     string
	TextHash string
	Vector   []float32
}

// EmbeddingStore persists entry embeddings in SQLite so a rebuild only
// re-embeds entries whose text or model changed.
type EmbeddingStore struct {
	db   *sql.DB
	path string
}

// OpenEmbeddingStore opens or creates the database at path. An empty path
// opens an in-memory store.
func OpenEmbeddingStore(path string) (*EmbeddingStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path
	}

	// modernc.org/sqlite registers as "sqlite" (pure Go, no CGO)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	// Tables from before per-field vectors lack the field column. Their
	// rows are dropped and re-embedded on the next build.
	var hasField int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('embeddings') WHERE name = 'field'").Scan(&hasField); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to inspect schema: %w", err)
	}
	if hasField == 0 {
		if _, err := db.Exec("DROP TABLE IF EXISTS embeddings"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to drop legacy table: %w", err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS embeddings (
	code       TEXT NOT NULL,
	model      TEXT NOT NULL,
	field      TEXT NOT NULL,
	text_hash  TEXT NOT NULL,
	dims       INTEGER NOT NULL,
	vector     BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (code, model, field)
)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &EmbeddingStore{db: db, path: path}, nil
}

// Get returns stored embeddings of field for model, keyed by code. Codes
// with no row are absent from the map.
func (s *EmbeddingStore) Get(ctx context.Context, model, field string, codes []string) (map[string]StoredEmbedding, error) {
	out := make(map[string]StoredEmbedding, len(codes))
	if len(codes) == 0 {
		return out, nil
	}

	// SQLite caps bound parameters; query in chunks.
	const chunk = 500
	for start := 0; start < len(codes); start += chunk {
		end := min(start+chunk, len(codes))
		part := codes[start:end]

		args := make([]any, 0, len(part)+2)
		args = append(args, model, field)
		for _, c := range part {
			args = append(args, c)
		}
		query := "SELECT code, text_hash, dims, vector FROM embeddings WHERE model = ? AND field = ? AND code IN (?" +
			strings.Repeat(",?", len(part)-1) + ")"

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query embeddings: %w", err)
		}
		for rows.Next() {
			var (
				e    StoredEmbedding
				dims int
				blob []byte
			)
			if err := rows.Scan(&e.Code, &e.TextHash, &dims, &blob); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan embedding: %w", err)
			}
			vec, err := decodeVector(blob, dims)
			if err != nil {
				// A damaged row is treated as missing and gets re-embedded.
				continue
			}
			e.Vector = vec
			out[e.Code] = e
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// Put upserts embeddings of field for model in one transaction.
func (s *EmbeddingStore) Put(ctx context.Context, model, field string, items []StoredEmbedding) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO embeddings (code, model, field, text_hash, dims, vector, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (code, model, field) DO UPDATE SET
	text_hash = excluded.text_hash,
	dims = excluded.dims,
	vector = excluded.vector,
	updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.Code, model, field, it.TextHash, len(it.Vector), encodeVector(it.Vector), now); err != nil {
			return fmt.Errorf("upsert %s: %w", it.Code, err)
		}
	}
	return tx.Commit()
}

// Prune deletes rows for model whose code is not in keep, whatever their
// field, and all rows stored under any other model.
func (s *EmbeddingStore) Prune(ctx context.Context, model string, keep []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "CREATE TEMP TABLE IF NOT EXISTS keep_codes (code TEXT PRIMARY KEY)"); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM keep_codes"); err != nil {
		return 0, err
	}
	for _, c := range keep {
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO keep_codes (code) VALUES (?)", c); err != nil {
			return 0, err
		}
	}
	res, err := tx.ExecContext(ctx,
		"DELETE FROM embeddings WHERE model != ? OR code NOT IN (SELECT code FROM keep_codes)", model)
	if err != nil {
		return 0, fmt.Errorf("prune embeddings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

// Count returns the number of stored rows for model across all fields.
func (s *EmbeddingStore) Count(ctx context.Context, model string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings WHERE model = ?", model).Scan(&n)
	return n, err
}

// Close checkpoints the WAL and closes the database.
func (s *EmbeddingStore) Close() error {
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

// TextHash fingerprints the text an embedding was computed from.
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}

// TextDigest folds per-entry text hashes, in order, into one fingerprint.
// Editing any entry's text changes the digest.
func TextDigest(hashes []string) string {
	h := sha256.New()
	for _, th := range hashes {
		h.Write([]byte(th))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte, dims int) ([]float32, error) {
	if dims <= 0 || len(buf) != 4*dims {
		return nil, fmt.Errorf("vector blob is %d bytes, want %d", len(buf), 4*dims)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
