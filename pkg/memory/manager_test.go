package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, workspace string, provider EmbeddingProvider) Config {
	t.Helper()
	cfg := DefaultConfig(workspace, filepath.Join(t.TempDir(), "index.db"))
	cfg.Logger = zerolog.New(os.Stdout).Level(zerolog.Disabled)
	cfg.EmbeddingProvider = provider
	cfg.Sync.Watch = false
	return cfg
}

func createTestManager(t *testing.T) (*Manager, *MockEmbeddingProvider, string) {
	t.Helper()
	workspace := t.TempDir()
	provider := NewMockEmbeddingProvider(256)
	m, err := NewManager(testConfig(t, workspace, provider))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, provider, workspace
}

func TestNewManager(t *testing.T) {
	m, _, _ := createTestManager(t)

	assert.NotNil(t, m.store)
	assert.Nil(t, m.watcher, "watching disabled")
	assert.Nil(t, m.cache, "result cache is off by default")

	status := m.Status()
	assert.True(t, status.IsDirty)
	assert.Equal(t, StateIdle, status.State)
	assert.Equal(t, "mock", status.Provider)
	assert.Equal(t, "mock-embed", status.Model)
}

func TestNewManager_InvalidConfig(t *testing.T) {
	base := testConfig(t, t.TempDir(), NewMockEmbeddingProvider(4))

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty workspace", func(c *Config) { c.WorkspacePath = "" }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"overlap not below tokens", func(c *Config) { c.Chunking.Tokens = 10; c.Chunking.Overlap = 10 }},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }},
		{"both weights zero", func(c *Config) { c.Query.VectorWeight = 0; c.Query.TextWeight = 0 }},
		{"min score above one", func(c *Config) { c.Query.MinScore = 1.5 }},
		{"unknown tokenizer", func(c *Config) { c.Chunking.Tokenizer = "bytes" }},
		{"unknown fallback", func(c *Config) { c.Fallback = "cohere" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			m, err := NewManager(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Nil(t, m)
		})
	}
}

func TestClampWindow(t *testing.T) {
	tokens, overlap := clampWindow(400, 80, 0)
	assert.Equal(t, 400, tokens)
	assert.Equal(t, 80, overlap)

	tokens, overlap = clampWindow(400, 80, 256)
	assert.Equal(t, 256, tokens)
	assert.Equal(t, 80, overlap)

	tokens, overlap = clampWindow(400, 300, 256)
	assert.Equal(t, 256, tokens)
	assert.Equal(t, 51, overlap)
}

func TestSync_EmptyWorkspace(t *testing.T) {
	m, _, _ := createTestManager(t)

	out, err := m.Sync(context.Background(), SyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, out.Status)
	assert.Equal(t, ReasonManual, out.Reason)
	assert.NotEmpty(t, out.RunID)
	assert.Zero(t, out.ChunksWritten)

	status := m.Status()
	assert.Equal(t, 0, status.TotalFiles)
	assert.False(t, status.IsDirty)
	assert.Equal(t, StateCommitted, status.LastState)
	assert.NotNil(t, status.LastSyncTime)
}

func TestSync_MultipleFiles(t *testing.T) {
	m, provider, workspace := createTestManager(t)

	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "# Long-term\n\nUser prefers dark mode.\n")
	writeFile(t, filepath.Join(workspace, "memory", "2026-02-26.md"), "Met with the infra team about backups.\n")
	writeFile(t, filepath.Join(workspace, "memory", "2026-02-27.md"), "Deployed the search service.\n")
	writeFile(t, filepath.Join(workspace, "memory", "notes.txt"), "not markdown")
	writeFile(t, filepath.Join(workspace, "README.md"), "not memory")

	out, err := m.Sync(context.Background(), SyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Added)
	assert.Equal(t, 3, out.ChunksWritten)
	assert.Equal(t, 3, out.EmbeddedChunks)
	assert.EqualValues(t, 3, provider.embedded.Load())

	status := m.Status()
	assert.Equal(t, 3, status.TotalFiles)
	assert.Equal(t, 3, status.TotalChunks)
	assert.Equal(t, 0, status.TextOnlyChunks)

	t.Run("unchanged files are not re-embedded", func(t *testing.T) {
		before := provider.batchCalls.Load()
		out, err := m.Sync(context.Background(), SyncRequest{})
		require.NoError(t, err)
		assert.Equal(t, 3, out.Unchanged)
		assert.Zero(t, out.ChunksWritten)
		assert.Equal(t, before, provider.batchCalls.Load())
	})

	t.Run("embedding cache serves identical chunks", func(t *testing.T) {
		writeFile(t, filepath.Join(workspace, "memory", "copy.md"), "Deployed the search service.\n")
		before := provider.embedded.Load()

		out, err := m.Sync(context.Background(), SyncRequest{})
		require.NoError(t, err)
		assert.Equal(t, 1, out.Added)
		assert.Equal(t, 1, out.CachedEmbeddings)
		assert.Zero(t, out.EmbeddedChunks)
		assert.Equal(t, before, provider.embedded.Load())
	})
}

func TestSync_CanaryWithZeroVectors(t *testing.T) {
	workspace := t.TempDir()
	writeFile(t, filepath.Join(workspace, "memory", "2026-02-27.md"), "- canary: qzv91-lime-orbit")

	provider := NewMockEmbeddingProvider(16)
	provider.zero = true
	m, err := NewManager(testConfig(t, workspace, provider))
	require.NoError(t, err)
	defer m.Close()

	out, err := m.Sync(context.Background(), SyncRequest{Force: true})
	require.NoError(t, err)
	assert.True(t, out.FullReindex)

	results, err := m.Search(context.Background(), "qzv91-lime-orbit", nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, "memory/2026-02-27.md", top.Path)
	assert.GreaterOrEqual(t, top.Score, 0.35)
	assert.Nil(t, top.VectorScore)
	require.NotNil(t, top.KeywordScore)
	assert.Equal(t, *top.KeywordScore, top.Score)
	assert.Equal(t, 1, top.StartLine)
	assert.EqualValues(t, 1, provider.queryCalls.Load())
}

func TestSync_DeletedFiles(t *testing.T) {
	m, _, workspace := createTestManager(t)
	ctx := context.Background()

	doomed := filepath.Join(workspace, "memory", "doomed.md")
	writeFile(t, doomed, "zebra migration notes")
	writeFile(t, filepath.Join(workspace, "memory", "kept.md"), "kept content")

	_, err := m.Sync(ctx, SyncRequest{})
	require.NoError(t, err)

	results, err := m.Search(ctx, "zebra", &SearchOptions{MinScore: floatPtr(0.01)})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	require.NoError(t, os.Remove(doomed))
	out, err := m.Sync(ctx, SyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Removed)

	docs, err := m.store.LoadDocuments(ctx)
	require.NoError(t, err)
	assert.NotContains(t, docs, "memory/doomed.md")
	chunks, err := m.store.ChunksForDocument(ctx, "memory/doomed.md")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	results, err = m.Search(ctx, "zebra", &SearchOptions{MinScore: floatPtr(0.01)})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "memory/doomed.md", r.Path)
	}
}

func TestSync_UnreadableDirectoryKeepsIndexedDocs(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	m, _, workspace := createTestManager(t)
	ctx := context.Background()

	sub := filepath.Join(workspace, "memory", "sub")
	writeFile(t, filepath.Join(sub, "a.md"), "walrus feeding schedule")
	writeFile(t, filepath.Join(workspace, "memory", "top.md"), "top level notes")

	_, err := m.Sync(ctx, SyncRequest{})
	require.NoError(t, err)

	require.NoError(t, os.Chmod(sub, 0o000))
	t.Cleanup(func() { _ = os.Chmod(sub, 0o755) })

	for _, force := range []bool{false, true} {
		out, err := m.Sync(ctx, SyncRequest{Force: force})
		require.NoError(t, err)
		assert.Zero(t, out.Removed)
		require.NotEmpty(t, out.Skipped)
		assert.Equal(t, "memory/sub", out.Skipped[0].Path)

		docs, err := m.store.LoadDocuments(ctx)
		require.NoError(t, err)
		assert.Contains(t, docs, "memory/sub/a.md", "force=%t", force)
		chunks, err := m.store.ChunksForDocument(ctx, "memory/sub/a.md")
		require.NoError(t, err)
		assert.NotEmpty(t, chunks, "force=%t", force)
	}
}

func TestSync_ForceTwiceIsStable(t *testing.T) {
	m, _, workspace := createTestManager(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "Project recall uses sqlite for storage.\n")
	writeFile(t, filepath.Join(workspace, "memory", "2026-02-27.md"), "Discussed sqlite WAL mode and backups.\n")

	_, err := m.Sync(ctx, SyncRequest{Force: true})
	require.NoError(t, err)
	first, err := m.Search(ctx, "sqlite backups", &SearchOptions{MinScore: floatPtr(0.01)})
	require.NoError(t, err)
	docs1, err := m.store.LoadDocuments(ctx)
	require.NoError(t, err)
	rows1 := rawChunkRows(t, m.store)

	_, err = m.Sync(ctx, SyncRequest{Force: true})
	require.NoError(t, err)
	second, err := m.Search(ctx, "sqlite backups", &SearchOptions{MinScore: floatPtr(0.01)})
	require.NoError(t, err)
	docs2, err := m.store.LoadDocuments(ctx)
	require.NoError(t, err)
	rows2 := rawChunkRows(t, m.store)

	assert.Equal(t, first, second)
	assert.Equal(t, docs1, docs2)
	require.Len(t, rows1, 2)
	assert.Equal(t, rows1, rows2, "chunk rows, vector blobs included, are byte-identical")
}

// rawChunkRows returns every live chunk row with its vector blob undecoded.
func rawChunkRows(t *testing.T, s *Store) [][]any {
	t.Helper()
	rows, err := s.db.Query(`SELECT ` + chunkColumns + ` FROM chunks ORDER BY document_path, ordinal`)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		out = append(out, vals)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestSync_ConcurrentCallsCoalesce(t *testing.T) {
	workspace := t.TempDir()
	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "one document")

	provider := NewMockEmbeddingProvider(8)
	provider.block = make(chan struct{})
	m, err := NewManager(testConfig(t, workspace, provider))
	require.NoError(t, err)
	defer m.Close()

	var wg sync.WaitGroup
	outcomes := make([]*SyncOutcome, 3)
	start := func(i int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := m.Sync(context.Background(), SyncRequest{Reason: ReasonManual})
			assert.NoError(t, err)
			outcomes[i] = out
		}()
	}

	start(0)
	require.Eventually(t, func() bool { return provider.batchCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, m.Status().IsSyncing)

	start(1)
	start(2)
	time.Sleep(100 * time.Millisecond)
	close(provider.block)
	wg.Wait()

	require.NotNil(t, outcomes[0])
	for _, out := range outcomes {
		require.NotNil(t, out)
		assert.Equal(t, outcomes[0].RunID, out.RunID)
	}
	assert.EqualValues(t, 1, provider.batchCalls.Load())
}

func TestSync_ForceJoiningPlainRunFollowsUp(t *testing.T) {
	workspace := t.TempDir()
	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "one document")

	provider := NewMockEmbeddingProvider(8)
	provider.block = make(chan struct{})
	m, err := NewManager(testConfig(t, workspace, provider))
	require.NoError(t, err)
	defer m.Close()

	plain := make(chan *SyncOutcome, 1)
	go func() {
		out, err := m.Sync(context.Background(), SyncRequest{})
		assert.NoError(t, err)
		plain <- out
	}()
	require.Eventually(t, func() bool { return provider.batchCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	forced := make(chan *SyncOutcome, 1)
	go func() {
		out, err := m.Sync(context.Background(), SyncRequest{Force: true})
		assert.NoError(t, err)
		forced <- out
	}()
	time.Sleep(50 * time.Millisecond)
	close(provider.block)

	first := <-plain
	second := <-forced
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.False(t, first.Force)
	assert.True(t, second.Force, "forced caller gets a forced run")
	assert.True(t, second.FullReindex)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestSync_CallerContextOnlyBoundsWait(t *testing.T) {
	workspace := t.TempDir()
	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "slow document")

	provider := NewMockEmbeddingProvider(8)
	provider.block = make(chan struct{})
	m, err := NewManager(testConfig(t, workspace, provider))
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = m.Sync(ctx, SyncRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(provider.block)
	require.Eventually(t, func() bool { return m.Status().TotalFiles == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestSync_UnsafeReindexRefused(t *testing.T) {
	workspace := t.TempDir()
	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "document")

	provider := NewMockEmbeddingProvider(8)
	cfg := testConfig(t, workspace, provider)
	cfg.Sync.OnSearch = false
	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()
	ctx := context.Background()

	_, err = m.Sync(ctx, SyncRequest{})
	require.NoError(t, err)

	provider.failWith = &ProviderError{Provider: "mock", Op: "embed_query", Retryable: true, Err: assert.AnError}
	_, err = m.Search(ctx, "document", nil)
	require.Error(t, err)
	assert.True(t, m.Status().ProviderDegraded)

	out, err := m.Sync(ctx, SyncRequest{Force: true})
	assert.ErrorIs(t, err, ErrUnsafeReindex)
	require.NotNil(t, out)
	assert.Equal(t, OutcomeFailed, out.Status)

	// The previous index is untouched.
	assert.Equal(t, 1, m.Status().TotalChunks)
}

func TestSync_ProviderFailureKeepsIndex(t *testing.T) {
	m, provider, workspace := createTestManager(t)
	ctx := context.Background()

	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "first version")
	_, err := m.Sync(ctx, SyncRequest{})
	require.NoError(t, err)

	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "second version")
	provider.failWith = &ProviderError{Provider: "mock", Op: "embed_batch", Retryable: true, Err: assert.AnError}
	out, err := m.Sync(ctx, SyncRequest{})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, OutcomeFailed, out.Status)
	assert.True(t, m.Status().IsDirty)

	chunks, err := m.store.ChunksForDocument(ctx, "MEMORY.md")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "first version", chunks[0].Text)
}

func TestSync_SignatureChangeReindexes(t *testing.T) {
	workspace := t.TempDir()
	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "signature test")
	ctx := context.Background()

	cfg := testConfig(t, workspace, NewMockEmbeddingProvider(8))
	m, err := NewManager(cfg)
	require.NoError(t, err)
	out, err := m.Sync(ctx, SyncRequest{})
	require.NoError(t, err)
	assert.False(t, out.FullReindex)
	require.NoError(t, m.Close())

	cfg.Chunking.Tokens = 200
	cfg.Chunking.Overlap = 20
	m, err = NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	out, err = m.Sync(ctx, SyncRequest{})
	require.NoError(t, err)
	assert.True(t, out.FullReindex)
	assert.Equal(t, 1, out.Modified)

	out, err = m.Sync(ctx, SyncRequest{})
	require.NoError(t, err)
	assert.False(t, out.FullReindex)
}

func TestSync_VectorsDisabled(t *testing.T) {
	workspace := t.TempDir()
	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "plain keyword index")

	provider := NewMockEmbeddingProvider(8)
	cfg := testConfig(t, workspace, provider)
	cfg.Store.VectorEnabled = false
	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Sync(context.Background(), SyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Status().TextOnlyChunks)

	results, err := m.Search(context.Background(), "keyword", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].VectorScore)
	assert.Zero(t, provider.batchCalls.Load())
	assert.Zero(t, provider.queryCalls.Load())
}

func TestSearch_EmptyQuery(t *testing.T) {
	m, provider, _ := createTestManager(t)

	results, err := m.Search(context.Background(), "  \n\t ", nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Zero(t, provider.queryCalls.Load())
}

func TestSearch_SyncsOnFirstSearch(t *testing.T) {
	m, _, workspace := createTestManager(t)
	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "The espresso machine needs descaling.")

	results, err := m.Search(context.Background(), "espresso descaling", nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "MEMORY.md", results[0].Path)
	assert.Equal(t, ReasonSearch, m.Status().LastOutcome.Reason)
}

func TestSearch_Idempotent(t *testing.T) {
	m, _, workspace := createTestManager(t)
	ctx := context.Background()
	writeFile(t, filepath.Join(workspace, "memory", "a.md"), "kubernetes cluster upgrade plan")
	writeFile(t, filepath.Join(workspace, "memory", "b.md"), "cluster autoscaler tuning")

	_, err := m.Sync(ctx, SyncRequest{})
	require.NoError(t, err)

	first, err := m.Search(ctx, "cluster upgrade", &SearchOptions{MinScore: floatPtr(0.01)})
	require.NoError(t, err)
	second, err := m.Search(ctx, "cluster upgrade", &SearchOptions{MinScore: floatPtr(0.01)})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.NotEmpty(t, first)

	var paths []string
	for _, r := range first {
		paths = append(paths, r.Path)
	}
	assert.Contains(t, paths, "memory/a.md")
}

func TestSearch_Limit(t *testing.T) {
	m, _, workspace := createTestManager(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		writeFile(t, filepath.Join(workspace, "memory", name+".md"), "shared topic "+name)
	}
	_, err := m.Sync(ctx, SyncRequest{})
	require.NoError(t, err)

	results, err := m.Search(ctx, "shared topic", &SearchOptions{MaxResults: 2, MinScore: floatPtr(0.01)})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	_, err = m.Search(ctx, "shared topic", &SearchOptions{MinScore: floatPtr(2)})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSearch_ResultCachePurgedOnCommit(t *testing.T) {
	workspace := t.TempDir()
	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "orchid watering schedule")

	provider := NewMockEmbeddingProvider(8)
	cfg := testConfig(t, workspace, provider)
	cfg.Cache.Enabled = true
	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()
	ctx := context.Background()

	_, err = m.Sync(ctx, SyncRequest{})
	require.NoError(t, err)

	first, err := m.Search(ctx, "orchid", &SearchOptions{MinScore: floatPtr(0.01)})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, m.Status().ResultCacheEntries)

	cached, err := m.Search(ctx, "  orchid ", &SearchOptions{MinScore: floatPtr(0.01)})
	require.NoError(t, err)
	assert.Equal(t, first, cached)
	assert.EqualValues(t, 1, provider.queryCalls.Load(), "second search is served from cache")

	writeFile(t, filepath.Join(workspace, "memory", "orchids.md"), "orchid repotting notes")
	_, err = m.Sync(ctx, SyncRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Status().ResultCacheEntries)

	fresh, err := m.Search(ctx, "orchid", &SearchOptions{MinScore: floatPtr(0.01)})
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestReadFile(t *testing.T) {
	m, _, workspace := createTestManager(t)
	writeFile(t, filepath.Join(workspace, "memory", "day.md"), "line1\nline2\nline3\nline4\n")
	writeFile(t, filepath.Join(workspace, "README.md"), "secret")

	slice, err := m.ReadFile("memory/day.md", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, "line2\nline3", slice.Text)
	assert.Equal(t, 2, slice.From)
	assert.Equal(t, 3, slice.To)
	assert.True(t, slice.Truncated)

	slice, err = m.ReadFile("memory/day.md", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\nline3\nline4", slice.Text)
	assert.False(t, slice.Truncated)

	_, err = m.ReadFile("README.md", 1, 0)
	assert.ErrorIs(t, err, ErrPathNotAllowed)

	_, err = m.ReadFile("../outside.md", 1, 0)
	assert.ErrorIs(t, err, ErrPathNotAllowed)

	_, err = m.ReadFile("memory/missing.md", 1, 0)
	assert.Error(t, err)
}

func TestWarmSession(t *testing.T) {
	m, _, workspace := createTestManager(t)
	writeFile(t, filepath.Join(workspace, "MEMORY.md"), "warm me up")

	m.WarmSession(context.Background(), "agent:main")
	require.Eventually(t, func() bool { return m.Status().TotalFiles == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, ReasonSessionStart, m.Status().LastOutcome.Reason)
}

func TestFileWatcher_AutoSync(t *testing.T) {
	workspace := t.TempDir()
	_, err := EnsureMemoryDirectory(workspace)
	require.NoError(t, err)

	cfg := testConfig(t, workspace, NewMockEmbeddingProvider(8))
	cfg.Sync.Watch = true
	cfg.Sync.WatchDebounce = 50 * time.Millisecond
	m, err := NewManager(cfg)
	require.NoError(t, err)
	defer m.Close()

	writeFile(t, filepath.Join(workspace, "memory", "watched.md"), "picked up by the watcher")

	require.Eventually(t, func() bool { return m.Status().TotalFiles == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, ReasonWatch, m.Status().LastOutcome.Reason)
}

func TestClose(t *testing.T) {
	m, _, _ := createTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Search(ctx, "anything", nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Sync(ctx, SyncRequest{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.ReadFile("MEMORY.md", 1, 0)
	assert.ErrorIs(t, err, ErrClosed)

	status := m.Status()
	assert.Zero(t, status.TotalFiles)
}
