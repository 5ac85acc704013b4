package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	file_name   TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	text        TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (file_name, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_chunks_file_name ON chunks (file_name);
`

// SQLiteStore persists the index in a single SQLite file. Similarity is
// computed in Go over the stored vectors.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}

	// WAL lets searches run while a document is being written. Immediate
	// transactions make concurrent writers wait on the busy timeout instead
	// of failing when they upgrade from a read.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Insert(ctx context.Context, fileName string, chunks []Chunk) (int, error) {
	prepared, err := prepare(fileName, chunks)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("insert", fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	var existing int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE file_name = ? OR id = ?`,
		fileName, prepared[0].ID,
	).Scan(&existing); err != nil {
		return 0, unavailable("insert", fmt.Errorf("checking for document: %w", err))
	}
	if existing > 0 {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateDocument, fileName)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, file_name, chunk_index, text, embedding, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, unavailable("insert", fmt.Errorf("preparing statement: %w", err))
	}
	defer stmt.Close()

	for _, c := range prepared {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return 0, fmt.Errorf("marshalling chunk metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.FileName, c.Index, c.Text,
			float32SliceToBytes(c.Embedding), string(meta)); err != nil {
			return 0, unavailable("insert", fmt.Errorf("saving chunk %s: %w", c.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable("insert", fmt.Errorf("committing transaction: %w", err))
	}
	return len(prepared), nil
}

func (s *SQLiteStore) Search(ctx context.Context, query []float32, topK int, filter FileSet) ([]Result, error) {
	if topK <= 0 || (filter.Scoped() && len(filter) == 0) {
		return []Result{}, nil
	}

	q := `SELECT id, file_name, chunk_index, text, embedding, metadata FROM chunks`
	var args []any
	if filter.Scoped() {
		names := filter.Names()
		q += ` WHERE file_name IN (?` + strings.Repeat(", ?", len(names)-1) + `)`
		for _, n := range names {
			args = append(args, n)
		}
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable("search", fmt.Errorf("querying chunks: %w", err))
	}
	defer rows.Close()

	best := newTopK(topK)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, unavailable("search", err)
		}
		best.offer(query, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("search", fmt.Errorf("iterating chunks: %w", err))
	}
	return best.results(), nil
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, fileName string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE file_name = ?`, fileName)
	if err != nil {
		return 0, unavailable("delete", fmt.Errorf("deleting document: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("delete", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Clear(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks`)
	if err != nil {
		return 0, unavailable("clear", fmt.Errorf("deleting chunks: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("clear", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, unavailable("count", fmt.Errorf("counting chunks: %w", err))
	}
	return n, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_name, COUNT(*) FROM chunks GROUP BY file_name`)
	if err != nil {
		return nil, unavailable("list", fmt.Errorf("listing documents: %w", err))
	}
	defer rows.Close()

	out := []DocumentInfo{}
	for rows.Next() {
		var d DocumentInfo
		if err := rows.Scan(&d.FileName, &d.Chunks); err != nil {
			return nil, unavailable("list", fmt.Errorf("scanning document: %w", err))
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	sortDocuments(out)
	return out, nil
}

func (s *SQLiteStore) HasDocument(ctx context.Context, fileName string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM chunks WHERE file_name = ?)`, fileName,
	).Scan(&exists); err != nil {
		return false, unavailable("lookup", fmt.Errorf("checking document: %w", err))
	}
	return exists, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func scanChunk(rows *sql.Rows) (Chunk, error) {
	var c Chunk
	var blob []byte
	var meta string
	if err := rows.Scan(&c.ID, &c.FileName, &c.Index, &c.Text, &blob, &meta); err != nil {
		return Chunk{}, fmt.Errorf("scanning chunk: %w", err)
	}
	c.Embedding = bytesToFloat32Slice(blob)
	if meta != "" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return Chunk{}, fmt.Errorf("unmarshaling chunk metadata: %w", err)
		}
	}
	return c, nil
}

// float32SliceToBytes converts a []float32 to a little-endian byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
