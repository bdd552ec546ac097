package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// ChunkRecord is one persisted chunk. DocumentModTime is filled on reads.
type ChunkRecord struct {
	DocumentPath    string
	Ordinal         int
	TokenStart      int
	TokenEnd        int
	StartLine       int
	EndLine         int
	Text            string
	Fingerprint     string
	Vector          []float32
	EmbeddingModel  string
	DocumentModTime time.Time
}

// usable reports whether the chunk vector can take part in similarity search.
func (c ChunkRecord) usable() bool {
	return len(c.Vector) > 0 && !IsDegenerate(c.Vector)
}

// Store persists documents, chunks, cached embeddings and index metadata in
// SQLite. Every per-document write is a single transaction.
type Store struct {
	db         *sql.DB
	vecVersion string
}

const chunkColumns = `document_path, ordinal, token_start, token_end, start_line, end_line, text, fingerprint, vector, embedding_model, vector_usable`

// schemaVersion is part of the index signature; bumping it forces a full
// reindex that rebuilds derived tables.
const schemaVersion = 2

func documentsTable(name string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			path TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			mtime INTEGER NOT NULL,
			size_bytes INTEGER NOT NULL,
			indexed_at INTEGER NOT NULL
		);`, name)
}

func chunksTable(name string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			document_path TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			token_start INTEGER NOT NULL,
			token_end INTEGER NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			text TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			vector BLOB,
			embedding_model TEXT,
			vector_usable INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (document_path, ordinal)
		);`, name)
}

// OpenStore opens (creating if needed) the index database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := db.QueryRow(`SELECT vec_version()`).Scan(&s.vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec extension not available: %w", err)
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		if strings.Contains(err.Error(), "no such module: fts5") {
			return nil, fmt.Errorf("failed to initialize schema: sqlite3 built without FTS5 (build with -tags sqlite_fts5): %w", err)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		documentsTable("documents"),
		chunksTable("chunks"),
		documentsTable("staged_documents"),
		chunksTable("staged_chunks"),
		`CREATE TABLE IF NOT EXISTS embedding_cache (
			model TEXT NOT NULL,
			hash TEXT NOT NULL,
			vector BLOB NOT NULL,
			dims INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (model, hash)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_embedding_cache_updated ON embedding_cache(updated_at);`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			document_path UNINDEXED,
			ordinal UNINDEXED,
			text,
			tokenize='porter unicode61'
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}

	// Indexes written before vector_usable existed get the column here; the
	// schema version in the signature then forces a reindex that fills it.
	for _, table := range []string{"chunks", "staged_chunks"} {
		if err := s.addColumnIfMissing(table, "vector_usable", "INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) addColumnIfMissing(table, column, decl string) error {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err = s.db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl))
	return err
}

// VectorVersion returns the loaded sqlite-vec version.
func (s *Store) VectorVersion() string { return s.vecVersion }

func (s *Store) Close() error {
	return s.db.Close()
}

// LoadDocuments returns the index metadata keyed by document path.
func (s *Store) LoadDocuments(ctx context.Context) (map[string]DocumentMeta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, fingerprint, mtime, size_bytes, indexed_at FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string]DocumentMeta)
	for rows.Next() {
		var meta DocumentMeta
		var mtime, indexedAt int64
		if err := rows.Scan(&meta.Path, &meta.Fingerprint, &mtime, &meta.Size, &indexedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		meta.ModTime = time.UnixMilli(mtime)
		meta.IndexedAt = time.UnixMilli(indexedAt)
		out[meta.Path] = meta
	}
	return out, rows.Err()
}

// ReplaceDocument swaps the chunk set of one document and upserts its
// metadata in a single transaction. indexed_at is kept while the
// fingerprint does not change.
func (s *Store) ReplaceDocument(ctx context.Context, meta DocumentMeta, chunks []ChunkRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteChunks(ctx, tx, meta.Path); err != nil {
			return err
		}
		if err := insertChunks(ctx, tx, "chunks", chunks); err != nil {
			return err
		}
		if err := indexChunkText(ctx, tx, chunks); err != nil {
			return err
		}
		return upsertDocument(ctx, tx, "documents", meta)
	})
}

// DeleteDocument removes a document and its chunks.
func (s *Store) DeleteDocument(ctx context.Context, path string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteChunks(ctx, tx, path); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		return nil
	})
}

// ResetStaging clears the staging tables.
func (s *Store) ResetStaging(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{`DELETE FROM staged_chunks`, `DELETE FROM staged_documents`} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("reset staging: %w", err)
			}
		}
		return nil
	})
}

// StageDocument writes a document into the staging tables.
func (s *Store) StageDocument(ctx context.Context, meta DocumentMeta, chunks []ChunkRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM staged_chunks WHERE document_path = ?`, meta.Path); err != nil {
			return fmt.Errorf("delete staged chunks: %w", err)
		}
		if err := insertChunks(ctx, tx, "staged_chunks", chunks); err != nil {
			return err
		}
		return upsertDocument(ctx, tx, "staged_documents", meta)
	})
}

// CarryOverToStaging copies the live rows of paths into staging unchanged.
func (s *Store) CarryOverToStaging(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, path := range paths {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO staged_documents (path, fingerprint, mtime, size_bytes, indexed_at)
				SELECT path, fingerprint, mtime, size_bytes, indexed_at FROM documents WHERE path = ?`, path); err != nil {
				return fmt.Errorf("carry over document %s: %w", path, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO staged_chunks (`+chunkColumns+`)
				SELECT `+chunkColumns+` FROM chunks WHERE document_path = ?`, path); err != nil {
				return fmt.Errorf("carry over chunks %s: %w", path, err)
			}
		}
		return nil
	})
}

// PromoteStaging replaces the whole live index with the staged one in a
// single transaction.
func (s *Store) PromoteStaging(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`UPDATE staged_documents SET indexed_at = (
				SELECT d.indexed_at FROM documents d
				WHERE d.path = staged_documents.path AND d.fingerprint = staged_documents.fingerprint
			) WHERE EXISTS (
				SELECT 1 FROM documents d
				WHERE d.path = staged_documents.path AND d.fingerprint = staged_documents.fingerprint
			)`,
			`DELETE FROM chunks`,
			`DELETE FROM documents`,
			`INSERT INTO documents (path, fingerprint, mtime, size_bytes, indexed_at)
				SELECT path, fingerprint, mtime, size_bytes, indexed_at FROM staged_documents`,
			`INSERT INTO chunks (` + chunkColumns + `) SELECT ` + chunkColumns + ` FROM staged_chunks`,
			`DELETE FROM chunks_fts`,
			`INSERT INTO chunks_fts (document_path, ordinal, text) SELECT document_path, ordinal, text FROM chunks`,
			`DELETE FROM staged_chunks`,
			`DELETE FROM staged_documents`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("promote staging: %w", err)
			}
		}
		return nil
	})
}

// ChunkQuery selects search candidates. Match is an FTS5 expression; when
// empty no keyword candidates are produced. Vector is compared by cosine
// distance against chunks embedded by Model with the same dimensions; when
// nil no vector candidates are produced. Limit caps each candidate list,
// zero or negative means unbounded.
type ChunkQuery struct {
	Match  string
	Vector []float32
	Model  string
	Limit  int
}

// ChunkCandidate is a chunk matched by keyword, by vector, or both.
// BM25 is the negated bm25() rank, so higher is better. Distance is the
// cosine distance, set whenever the chunk vector is comparable with the
// query vector.
type ChunkCandidate struct {
	DocumentPath string
	Ordinal      int
	StartLine    int
	EndLine      int
	Text         string
	ModTime      time.Time
	BM25         *float64
	Distance     *float64
}

// SearchChunks returns the union of the top keyword and top vector
// candidates with both scores, read in one statement so every document is
// seen in a single state.
func (s *Store) SearchChunks(ctx context.Context, q ChunkQuery) ([]ChunkCandidate, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}

	var queryBlob []byte
	var vecArg any
	if len(q.Vector) > 0 {
		var err error
		if queryBlob, err = encodeVector(q.Vector); err != nil {
			return nil, err
		}
		vecArg = queryBlob
	}

	keyword := `SELECT NULL AS document_path, NULL AS ordinal, NULL AS score WHERE 0`
	if q.Match != "" {
		keyword = `SELECT document_path, CAST(ordinal AS INTEGER) AS ordinal, bm25(chunks_fts) AS score
			FROM chunks_fts WHERE chunks_fts MATCH ?1
			ORDER BY score LIMIT ?2`
	}
	vector := `SELECT NULL AS document_path, NULL AS ordinal WHERE 0`
	if queryBlob != nil {
		vector = `SELECT document_path, ordinal FROM chunks
			WHERE vector_usable = 1 AND embedding_model = ?3 AND length(vector) = ?4
			ORDER BY vec_distance_cosine(vector, ?5) LIMIT ?2`
	}

	query := `
		WITH kw AS MATERIALIZED (` + keyword + `),
		vec AS MATERIALIZED (` + vector + `),
		cand AS (SELECT document_path, ordinal FROM kw UNION SELECT document_path, ordinal FROM vec)
		SELECT c.document_path, c.ordinal, c.start_line, c.end_line, c.text, d.mtime, -kw.score,
			CASE WHEN ?5 IS NOT NULL AND c.vector_usable = 1 AND c.embedding_model = ?3 AND length(c.vector) = ?4
				THEN vec_distance_cosine(c.vector, ?5) END
		FROM cand
		JOIN chunks c ON c.document_path = cand.document_path AND c.ordinal = cand.ordinal
		JOIN documents d ON d.path = c.document_path
		LEFT JOIN kw ON kw.document_path = c.document_path AND kw.ordinal = c.ordinal
		ORDER BY c.document_path, c.ordinal`

	rows, err := s.db.QueryContext(ctx, query, q.Match, limit, q.Model, len(queryBlob), vecArg)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var out []ChunkCandidate
	for rows.Next() {
		var c ChunkCandidate
		var mtime int64
		var bm25, distance sql.NullFloat64
		if err := rows.Scan(&c.DocumentPath, &c.Ordinal, &c.StartLine, &c.EndLine, &c.Text, &mtime, &bm25, &distance); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.ModTime = time.UnixMilli(mtime)
		if bm25.Valid {
			v := bm25.Float64
			c.BM25 = &v
		}
		if distance.Valid && !math.IsNaN(distance.Float64) {
			v := distance.Float64
			c.Distance = &v
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChunksForDocument returns the live chunks of one document in order.
func (s *Store) ChunksForDocument(ctx context.Context, path string) ([]ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE document_path = ? ORDER BY ordinal`, path)
	if err != nil {
		return nil, fmt.Errorf("load chunks for %s: %w", path, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]ChunkRecord, error) {
	var out []ChunkRecord
	for rows.Next() {
		var c ChunkRecord
		var blob []byte
		var model sql.NullString
		var usable bool
		if err := rows.Scan(
			&c.DocumentPath, &c.Ordinal, &c.TokenStart, &c.TokenEnd, &c.StartLine, &c.EndLine,
			&c.Text, &c.Fingerprint, &blob, &model, &usable,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s#%d: %w", c.DocumentPath, c.Ordinal, err)
		}
		c.Vector = vec
		c.EmbeddingModel = model.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// CachedEmbeddings looks up previously computed vectors by content hash.
func (s *Store) CachedEmbeddings(ctx context.Context, model string, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	const page = 400
	for start := 0; start < len(hashes); start += page {
		batch := hashes[start:min(start+page, len(hashes))]
		args := make([]any, 0, len(batch)+1)
		args = append(args, model)
		for _, h := range batch {
			args = append(args, h)
		}
		query := `SELECT hash, vector FROM embedding_cache WHERE model = ? AND hash IN (?` +
			strings.Repeat(",?", len(batch)-1) + `)`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("load embedding cache: %w", err)
		}
		for rows.Next() {
			var hash string
			var blob []byte
			if err := rows.Scan(&hash, &blob); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan embedding cache: %w", err)
			}
			vec, err := decodeVector(blob)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[hash] = vec
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// PutEmbeddings upserts vectors into the embedding cache.
func (s *Store) PutEmbeddings(ctx context.Context, model string, vectors map[string][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO embedding_cache (model, hash, vector, dims, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(model, hash) DO UPDATE SET vector = excluded.vector, dims = excluded.dims, updated_at = excluded.updated_at`)
		if err != nil {
			return fmt.Errorf("prepare embedding cache insert: %w", err)
		}
		defer stmt.Close()

		for hash, vec := range vectors {
			blob, err := encodeVector(vec)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, model, hash, blob, len(vec), now); err != nil {
				return fmt.Errorf("insert embedding cache: %w", err)
			}
		}
		return nil
	})
}

// PruneEmbeddingCache keeps the newest max entries and returns how many were removed.
func (s *Store) PruneEmbeddingCache(ctx context.Context, max int) (int64, error) {
	if max <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM embedding_cache WHERE rowid IN (
			SELECT rowid FROM embedding_cache ORDER BY updated_at DESC LIMIT -1 OFFSET ?
		)`, max)
	if err != nil {
		return 0, fmt.Errorf("prune embedding cache: %w", err)
	}
	return res.RowsAffected()
}

// GetMeta returns the value for key, or "" when unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read meta %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}

// StoreCounts summarises the index size.
type StoreCounts struct {
	Documents      int
	Chunks         int
	EmbeddingCache int
	TextOnlyChunks int
}

func (s *Store) Counts(ctx context.Context) (StoreCounts, error) {
	var c StoreCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM embedding_cache),
			(SELECT COUNT(*) FROM chunks WHERE vector IS NULL)`).
		Scan(&c.Documents, &c.Chunks, &c.EmbeddingCache, &c.TextOnlyChunks)
	if err != nil {
		return StoreCounts{}, fmt.Errorf("count index: %w", err)
	}
	return c, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, table string, chunks []ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+table+` (`+chunkColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		var blob []byte
		var model sql.NullString
		if len(c.Vector) > 0 {
			blob, err = encodeVector(c.Vector)
			if err != nil {
				return err
			}
			model = sql.NullString{String: c.EmbeddingModel, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			c.DocumentPath, c.Ordinal, c.TokenStart, c.TokenEnd, c.StartLine, c.EndLine,
			c.Text, c.Fingerprint, blob, model, c.usable(),
		); err != nil {
			return fmt.Errorf("insert chunk %s#%d: %w", c.DocumentPath, c.Ordinal, err)
		}
	}
	return nil
}

func deleteChunks(ctx context.Context, tx *sql.Tx, path string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_path = ?`, path); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE document_path = ?`, path); err != nil {
		return fmt.Errorf("delete chunk text index: %w", err)
	}
	return nil
}

func indexChunkText(ctx context.Context, tx *sql.Tx, chunks []ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks_fts (document_path, ordinal, text) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk text insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.DocumentPath, c.Ordinal, c.Text); err != nil {
			return fmt.Errorf("index chunk text %s#%d: %w", c.DocumentPath, c.Ordinal, err)
		}
	}
	return nil
}

func upsertDocument(ctx context.Context, tx *sql.Tx, table string, meta DocumentMeta) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO `+table+` (path, fingerprint, mtime, size_bytes, indexed_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			indexed_at = CASE WHEN `+table+`.fingerprint = excluded.fingerprint
				THEN `+table+`.indexed_at ELSE excluded.indexed_at END,
			fingerprint = excluded.fingerprint,
			mtime = excluded.mtime,
			size_bytes = excluded.size_bytes`,
		meta.Path, meta.Fingerprint, meta.ModTime.UnixMilli(), meta.Size, meta.IndexedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", meta.Path, err)
	}
	return nil
}

func encodeVector(vec []float32) ([]byte, error) {
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("serialize vector: %w", err)
	}
	return blob, nil
}

// decodeVector reads the little-endian float32 layout written by
// SerializeFloat32. A NULL blob decodes to nil.
func decodeVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(blob))
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out, nil
}
