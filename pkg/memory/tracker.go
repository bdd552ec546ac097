package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Document is one memory note read from disk.
type Document struct {
	Path        string
	AbsPath     string
	Text        string
	Fingerprint string
	ModTime     time.Time
	Size        int64
}

// Meta returns the index metadata describing d.
func (d Document) Meta(indexedAt time.Time) DocumentMeta {
	return DocumentMeta{
		Path:        d.Path,
		Fingerprint: d.Fingerprint,
		ModTime:     d.ModTime,
		Size:        d.Size,
		IndexedAt:   indexedAt,
	}
}

// DocumentMeta is the persisted record of an indexed document.
type DocumentMeta struct {
	Path        string    `json:"path"`
	Fingerprint string    `json:"fingerprint"`
	ModTime     time.Time `json:"modified_at"`
	Size        int64     `json:"size_bytes"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// SkippedDocument records a document, or a whole directory, left out of a
// sync.
type SkippedDocument struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Covers reports whether path is the skipped entry itself or lies under it.
func (s SkippedDocument) Covers(path string) bool {
	return path == s.Path || strings.HasPrefix(path, strings.TrimSuffix(s.Path, "/")+"/")
}

// ChangeSet partitions the workspace against stored metadata.
type ChangeSet struct {
	Added     []Document
	Modified  []Document
	Unchanged []Document
	Removed   []string
	Skipped   []SkippedDocument
	// Retained lists stored paths under a skipped entry. Their indexed
	// state is kept as is.
	Retained []string
}

// Pending returns the documents that need (re)indexing, added first.
func (c ChangeSet) Pending() []Document {
	out := make([]Document, 0, len(c.Added)+len(c.Modified))
	out = append(out, c.Added...)
	return append(out, c.Modified...)
}

// Fingerprint hashes document content.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// ChangeTracker detects added, modified and removed memory documents.
type ChangeTracker struct {
	workspace  string
	extraPaths []string
	logger     zerolog.Logger
}

// NewChangeTracker creates a tracker for one workspace.
func NewChangeTracker(workspace string, extraPaths []string, logger zerolog.Logger) *ChangeTracker {
	return &ChangeTracker{workspace: workspace, extraPaths: extraPaths, logger: logger}
}

// Scan reads every memory document. Unreadable files are returned as
// skipped and logged; they never fail the scan.
func (t *ChangeTracker) Scan(ctx context.Context) ([]Document, []SkippedDocument, error) {
	files, skipped := listMemoryFiles(t.workspace, t.extraPaths)
	for _, s := range skipped {
		t.logger.Warn().Str("path", s.Path).Str("reason", s.Reason).Msg("Skipping unreadable memory directory")
	}

	docs := make([]Document, 0, len(files))
	for _, abs := range files {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		rel := relativeDocPath(t.workspace, abs)

		content, err := os.ReadFile(abs)
		if err != nil {
			t.logger.Warn().Err(err).Str("path", rel).Msg("Skipping unreadable memory document")
			skipped = append(skipped, SkippedDocument{Path: rel, Reason: err.Error()})
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			t.logger.Warn().Err(err).Str("path", rel).Msg("Skipping unreadable memory document")
			skipped = append(skipped, SkippedDocument{Path: rel, Reason: err.Error()})
			continue
		}

		docs = append(docs, Document{
			Path:        rel,
			AbsPath:     abs,
			Text:        string(content),
			Fingerprint: Fingerprint(content),
			ModTime:     info.ModTime().Truncate(time.Millisecond),
			Size:        int64(len(content)),
		})
	}
	return docs, skipped, nil
}

// Changes scans the workspace and diffs it against stored metadata.
func (t *ChangeTracker) Changes(ctx context.Context, stored map[string]DocumentMeta, force bool) (ChangeSet, error) {
	docs, skipped, err := t.Scan(ctx)
	if err != nil {
		return ChangeSet{}, err
	}
	return DiffDocuments(docs, skipped, stored, force), nil
}

// DiffDocuments classifies docs against stored. With force every present
// document is reported modified. Stored documents covered by a skipped file
// or directory are retained, never reported removed.
func DiffDocuments(docs []Document, skipped []SkippedDocument, stored map[string]DocumentMeta, force bool) ChangeSet {
	var cs ChangeSet
	cs.Skipped = skipped

	present := make(map[string]bool, len(docs))

	for _, doc := range docs {
		present[doc.Path] = true
		prev, ok := stored[doc.Path]
		switch {
		case !ok:
			cs.Added = append(cs.Added, doc)
		case force || prev.Fingerprint != doc.Fingerprint:
			cs.Modified = append(cs.Modified, doc)
		default:
			cs.Unchanged = append(cs.Unchanged, doc)
		}
	}

	for path := range stored {
		switch {
		case present[path]:
		case skippedCovers(skipped, path):
			cs.Retained = append(cs.Retained, path)
		default:
			cs.Removed = append(cs.Removed, path)
		}
	}
	sort.Strings(cs.Removed)
	sort.Strings(cs.Retained)
	return cs
}

func skippedCovers(skipped []SkippedDocument, path string) bool {
	for _, s := range skipped {
		if s.Covers(path) {
			return true
		}
	}
	return false
}
