// Package memory indexes workspace markdown notes and provides hybrid search.
//
// The document set is MEMORY.md (or memory.md) at the workspace root, every
// markdown file under memory/, and any configured extra paths. Documents are
// split into overlapping token windows, embedded, and stored in SQLite.
// Keyword candidates come from an FTS5 table ranked with bm25, vector
// candidates from sqlite-vec cosine distance; both are combined with the
// configured weights.
//
// The sqlite3 driver must be built with FTS5 enabled:
//
//	go build -tags sqlite_fts5 ./...
//
// Invariants:
//   - A document's chunk set is replaced in one transaction; readers see the
//     old set or the new one, never a mix.
//   - Only one sync runs at a time per Manager; concurrent callers share it.
//   - Vectors from different models are never compared.
//   - A degenerate query vector falls back to keyword scores alone.
//
// Usage:
//
//	cfg := memory.DefaultConfig("/workspace", "/data/memory.db")
//	mgr, _ := memory.NewManager(cfg)
//	defer mgr.Close()
//	_, _ = mgr.Sync(ctx, memory.SyncRequest{Reason: memory.ReasonManual})
//	results, _ := mgr.Search(ctx, "query", nil)
//	_ = results
package memory
