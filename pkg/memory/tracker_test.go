package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFor(path, content string) Document {
	return Document{
		Path:        path,
		Text:        content,
		Fingerprint: Fingerprint([]byte(content)),
		Size:        int64(len(content)),
	}
}

func pathsOf(docs []Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Path)
	}
	return out
}

func TestDiffDocuments(t *testing.T) {
	now := time.Now()
	stored := map[string]DocumentMeta{
		"MEMORY.md":       docFor("MEMORY.md", "same").Meta(now),
		"memory/a.md":     docFor("memory/a.md", "old").Meta(now),
		"memory/gone.md":  docFor("memory/gone.md", "bye").Meta(now),
		"memory/flaky.md": docFor("memory/flaky.md", "x").Meta(now),
	}
	docs := []Document{
		docFor("MEMORY.md", "same"),
		docFor("memory/a.md", "new"),
		docFor("memory/b.md", "fresh"),
	}
	skipped := []SkippedDocument{{Path: "memory/flaky.md", Reason: "permission denied"}}

	t.Run("incremental", func(t *testing.T) {
		cs := DiffDocuments(docs, skipped, stored, false)
		assert.Equal(t, []string{"memory/b.md"}, pathsOf(cs.Added))
		assert.Equal(t, []string{"memory/a.md"}, pathsOf(cs.Modified))
		assert.Equal(t, []string{"MEMORY.md"}, pathsOf(cs.Unchanged))
		assert.Equal(t, []string{"memory/gone.md"}, cs.Removed, "skipped documents are not removed")
		assert.Equal(t, skipped, cs.Skipped)
		assert.Equal(t, []string{"memory/flaky.md"}, cs.Retained)
		assert.Equal(t, []string{"memory/b.md", "memory/a.md"}, pathsOf(cs.Pending()))
	})

	t.Run("skipped directory retains everything under it", func(t *testing.T) {
		stored := map[string]DocumentMeta{
			"memory/sub/a.md":      docFor("memory/sub/a.md", "a").Meta(now),
			"memory/sub/deep/b.md": docFor("memory/sub/deep/b.md", "b").Meta(now),
			"memory/subway.md":     docFor("memory/subway.md", "c").Meta(now),
		}
		cs := DiffDocuments(nil, []SkippedDocument{{Path: "memory/sub", Reason: "permission denied"}}, stored, false)
		assert.Equal(t, []string{"memory/subway.md"}, cs.Removed, "siblings sharing the prefix are still removed")
		assert.Equal(t, []string{"memory/sub/a.md", "memory/sub/deep/b.md"}, cs.Retained)
	})

	t.Run("force marks every stored document modified", func(t *testing.T) {
		cs := DiffDocuments(docs, nil, stored, true)
		assert.Equal(t, []string{"memory/b.md"}, pathsOf(cs.Added))
		assert.ElementsMatch(t, []string{"MEMORY.md", "memory/a.md"}, pathsOf(cs.Modified))
		assert.Empty(t, cs.Unchanged)
		assert.Equal(t, []string{"memory/flaky.md", "memory/gone.md"}, cs.Removed)
	})

	t.Run("empty store", func(t *testing.T) {
		cs := DiffDocuments(docs, nil, nil, false)
		assert.Len(t, cs.Added, 3)
		assert.Empty(t, cs.Removed)
	})
}

func TestSkippedDocumentCovers(t *testing.T) {
	dir := SkippedDocument{Path: "memory/sub"}
	assert.True(t, dir.Covers("memory/sub"))
	assert.True(t, dir.Covers("memory/sub/a.md"))
	assert.False(t, dir.Covers("memory/subway.md"))
	assert.False(t, dir.Covers("memory/a.md"))
}

func TestChangeTrackerScan(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, filepath.Join(ws, "MEMORY.md"), "# Memory\n")
	writeFile(t, filepath.Join(ws, "memory", "2026-02-27.md"), "- canary: qzv91-lime-orbit\n")

	tracker := NewChangeTracker(ws, nil, zerolog.Nop())
	docs, skipped, err := tracker.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, docs, 2)

	assert.Equal(t, "MEMORY.md", docs[0].Path)
	assert.Equal(t, "memory/2026-02-27.md", docs[1].Path)
	assert.Equal(t, "- canary: qzv91-lime-orbit\n", docs[1].Text)
	assert.Equal(t, Fingerprint([]byte(docs[1].Text)), docs[1].Fingerprint)
	assert.Len(t, docs[1].Fingerprint, 64)
	assert.False(t, docs[1].ModTime.IsZero())

	t.Run("edit is detected", func(t *testing.T) {
		stored := map[string]DocumentMeta{}
		for _, d := range docs {
			stored[d.Path] = d.Meta(time.Now())
		}
		require.NoError(t, os.WriteFile(filepath.Join(ws, "MEMORY.md"), []byte("# Memory\nchanged\n"), 0644))
		require.NoError(t, os.Remove(filepath.Join(ws, "memory", "2026-02-27.md")))

		cs, err := tracker.Changes(context.Background(), stored, false)
		require.NoError(t, err)
		assert.Equal(t, []string{"MEMORY.md"}, pathsOf(cs.Modified))
		assert.Equal(t, []string{"memory/2026-02-27.md"}, cs.Removed)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := tracker.Scan(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
