package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harun/recall/internal/observability"
	"github.com/harun/recall/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

// MemoryStatus represents the current state of the memory manager
type MemoryStatus struct {
	WorkspacePath         string       `json:"workspace_path"`
	DBPath                string       `json:"db_path"`
	TotalFiles            int          `json:"total_files"`
	TotalChunks           int          `json:"total_chunks"`
	TextOnlyChunks        int          `json:"text_only_chunks"`
	IsDirty               bool         `json:"is_dirty"`
	IsSyncing             bool         `json:"is_syncing"`
	State                 SyncState    `json:"state"`
	LastState             SyncState    `json:"last_state,omitempty"`
	LastOutcome           *SyncOutcome `json:"last_outcome,omitempty"`
	LastSyncTime          *time.Time   `json:"last_sync_time,omitempty"`
	Provider              string       `json:"provider"`
	Model                 string       `json:"model"`
	ProviderDegraded      bool         `json:"provider_degraded"`
	VectorEnabled         bool         `json:"vector_enabled"`
	VectorExtension       string       `json:"vector_extension,omitempty"`
	EmbeddingCacheEntries int          `json:"embedding_cache_entries"`
	ResultCacheEntries    int          `json:"result_cache_entries"`
}

// Manager handles memory indexing and search for one workspace.
type Manager struct {
	cfg       Config
	logger    zerolog.Logger
	store     *Store
	tracker   *ChangeTracker
	chunker   *Chunker
	provider  EmbeddingProvider
	cache     *resultCache
	watcher   *FileWatcher
	scheduler *intervalScheduler

	flight  singleflight.Group
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu          sync.RWMutex
	closed      bool
	dirty       bool
	running     bool
	synced      bool
	lastState   SyncState
	lastOutcome *SyncOutcome
	lastSyncAt  time.Time
	warmed      map[string]bool
}

// NewManager validates cfg, opens the index and starts the configured triggers.
func NewManager(cfg Config) (*Manager, error) {
	observability.EnsureRegistered()

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger.With().Str("component", "memory").Logger()

	provider, err := NewEmbeddingProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	tokenizer, err := NewTokenizer(cfg.Chunking.Tokenizer)
	if err != nil {
		return nil, err
	}
	tokens, overlap := clampWindow(cfg.Chunking.Tokens, cfg.Chunking.Overlap, provider.MaxInputTokens())
	if tokens != cfg.Chunking.Tokens {
		logger.Info().
			Int("configured", cfg.Chunking.Tokens).
			Int("tokens", tokens).
			Int("overlap", overlap).
			Msg("Chunk size clamped to provider input limit")
	}
	chunker, err := NewChunker(tokenizer, tokens, overlap)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		tracker:   NewChangeTracker(cfg.WorkspacePath, cfg.ExtraPaths, logger),
		chunker:   chunker,
		provider:  provider,
		baseCtx:   baseCtx,
		cancel:    cancel,
		dirty:     true, // Start dirty to trigger initial sync
		lastState: StateIdle,
		warmed:    make(map[string]bool),
	}
	if cfg.Cache.Enabled {
		m.cache = newResultCache(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	}
	// Last sync time survives restarts; the index is still treated as dirty.
	if v, err := store.GetMeta(baseCtx, metaLastSyncKey); err == nil && v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			m.lastSyncAt = t
		}
	}

	if cfg.Sync.Watch {
		watcher, err := NewFileWatcher(logger, cfg.WorkspacePath, cfg.ExtraPaths, cfg.Sync.WatchDebounce, func() {
			m.MarkDirty()
			m.syncInBackground(ReasonWatch)
		})
		if err == nil {
			err = watcher.Start()
			if err != nil {
				watcher.Stop()
			}
		}
		if err != nil {
			cancel()
			store.Close()
			return nil, fmt.Errorf("failed to watch workspace: %w", err)
		}
		m.watcher = watcher
	}

	if cfg.Sync.IntervalMinutes > 0 {
		scheduler, err := newIntervalScheduler(cfg.Sync.IntervalMinutes, logger, func() {
			if _, err := m.Sync(m.baseCtx, SyncRequest{Reason: ReasonInterval}); err != nil && !isShutdown(err) {
				m.logger.Warn().Err(err).Msg("Interval memory sync failed")
			}
		})
		if err != nil {
			m.Close()
			return nil, err
		}
		m.scheduler = scheduler
	}

	m.logger.Info().
		Str("workspace", cfg.WorkspacePath).
		Str("provider", provider.ID()).
		Str("model", provider.Model()).
		Bool("vectors", cfg.Store.VectorEnabled).
		Msg("Memory manager initialized")
	return m, nil
}

// clampWindow shrinks the chunk window to fit limit, keeping overlap valid.
func clampWindow(tokens, overlap, limit int) (int, int) {
	if limit <= 0 || tokens <= limit {
		return tokens, overlap
	}
	tokens = limit
	if overlap >= tokens {
		overlap = tokens / 5
	}
	return tokens, overlap
}

func (m *Manager) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.wg.Add(1)
	return nil
}

func (m *Manager) end() {
	m.wg.Done()
}

func isShutdown(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled)
}

// syncInBackground starts a sync that outlives the caller. Errors are logged.
func (m *Manager) syncInBackground(reason string) {
	if err := m.begin(); err != nil {
		return
	}
	go func() {
		defer m.end()
		if _, err := m.Sync(m.baseCtx, SyncRequest{Reason: reason}); err != nil && !isShutdown(err) {
			m.logger.Warn().Err(err).Str("reason", reason).Msg("Background memory sync failed")
		}
	}()
}

// onCommit runs after any sync that changed the index.
func (m *Manager) onCommit() {
	m.cache.Purge()
}

// Search performs hybrid search (vector + keyword).
func (m *Manager) Search(ctx context.Context, query string, opts *SearchOptions) ([]SearchResult, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	defer m.end()

	if ctx == nil {
		ctx = context.Background()
	}
	if m.cfg.Query.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Query.Timeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"recall.memory",
		"memory.search",
		attribute.Int("query_length", len(query)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	start := time.Now()
	results, err := m.search(ctx, query, opts, logger)
	observability.RecordMemorySearch(time.Since(start), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	logger.Debug().
		Int("results", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Memory search completed")
	return results, nil
}

func (m *Manager) search(ctx context.Context, query string, opts *SearchOptions, logger zerolog.Logger) ([]SearchResult, error) {
	params, err := resolveSearch(m.cfg.Query, opts)
	if err != nil {
		return nil, err
	}
	normalized := normalizeQuery(query)
	if normalized == "" {
		return []SearchResult{}, nil
	}

	if m.cfg.Sync.OnSearch {
		m.mu.RLock()
		synced, dirty := m.synced, m.dirty
		m.mu.RUnlock()
		switch {
		case !synced:
			if _, err := m.Sync(ctx, SyncRequest{Reason: ReasonSearch}); err != nil {
				if isShutdown(err) || ctx.Err() != nil {
					return nil, err
				}
				logger.Warn().Err(err).Msg("Sync before search failed, searching current index")
			}
		case dirty:
			m.syncInBackground(ReasonSearch)
		}
	}

	key := resultCacheKey(normalized, params)
	if cached, ok := m.cache.Get(key); ok {
		return cached, nil
	}
	generation := m.cache.Generation()

	var queryVec Vector
	if m.cfg.Store.VectorEnabled {
		queryVec, err = m.provider.EmbedQuery(ctx, normalized)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		if IsDegenerate(queryVec.Values) {
			logger.Debug().Str("model", queryVec.Model).Msg("Query embedding carries no signal, using keyword scores only")
		}
	}

	q := ChunkQuery{Match: ftsMatch(normalized), Limit: params.candidateLimit()}
	if !IsDegenerate(queryVec.Values) {
		q.Vector, q.Model = queryVec.Values, queryVec.Model
	}
	cands, err := m.store.SearchChunks(ctx, q)
	if err != nil {
		return nil, err
	}
	results := rankCandidates(cands, params)
	m.cache.Put(generation, key, results)
	return results, nil
}

// WarmSession triggers a background sync the first time a session key is
// seen, when session-start syncing is enabled.
func (m *Manager) WarmSession(ctx context.Context, sessionKey string) {
	if !m.cfg.Sync.OnSessionStart {
		return
	}
	key := strings.TrimSpace(sessionKey)
	m.mu.Lock()
	if m.closed || m.warmed[key] {
		m.mu.Unlock()
		return
	}
	m.warmed[key] = true
	m.mu.Unlock()

	logger := tracing.LoggerFromContext(tracing.WithSessionKey(ctx, key), m.logger)
	logger.Debug().Msg("Warming memory index for session")
	m.syncInBackground(ReasonSessionStart)
}

// MarkDirty flags the index as out of date.
func (m *Manager) MarkDirty() {
	m.mu.Lock()
	m.dirty = true
	m.mu.Unlock()
	observability.SetMemoryDirty(true)
}

// Status reports index counters and sync state. Counters are zero once closed.
func (m *Manager) Status() MemoryStatus {
	m.mu.RLock()
	status := MemoryStatus{
		WorkspacePath:    m.cfg.WorkspacePath,
		DBPath:           m.cfg.DBPath,
		IsDirty:          m.dirty,
		IsSyncing:        m.running,
		State:            StateIdle,
		LastState:        m.lastState,
		Provider:         m.provider.ID(),
		Model:            m.provider.Model(),
		ProviderDegraded: providerDegraded(m.provider),
		VectorEnabled:    m.cfg.Store.VectorEnabled,
		VectorExtension:  m.store.VectorVersion(),
	}
	if m.running {
		status.State = StateRunning
	}
	if m.lastOutcome != nil {
		out := *m.lastOutcome
		status.LastOutcome = &out
	}
	if !m.lastSyncAt.IsZero() {
		t := m.lastSyncAt
		status.LastSyncTime = &t
	}
	m.mu.RUnlock()

	status.ResultCacheEntries = m.cache.Len()
	if err := m.begin(); err != nil {
		return status
	}
	defer m.end()
	if counts, err := m.store.Counts(context.Background()); err == nil {
		status.TotalFiles = counts.Documents
		status.TotalChunks = counts.Chunks
		status.TextOnlyChunks = counts.TextOnlyChunks
		status.EmbeddingCacheEntries = counts.EmbeddingCache
	} else {
		m.logger.Warn().Err(err).Msg("Failed to read index counts")
	}
	return status
}

// FileSlice is a window of lines read from a memory document.
type FileSlice struct {
	Path      string `json:"path"`
	From      int    `json:"from"`
	To        int    `json:"to"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
}

// ReadFile returns lines [from, from+lines) of a memory document, 1-based.
// lines <= 0 reads to the end. Only paths in the memory document set are
// readable.
func (m *Manager) ReadFile(relPath string, from, lines int) (*FileSlice, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	defer m.end()

	if err := ValidateMemoryPath(relPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPathNotAllowed, err)
	}
	relPath = filepath.ToSlash(relPath)
	if !isMemoryDocumentPath(m.cfg.WorkspacePath, relPath, m.cfg.ExtraPaths) {
		return nil, fmt.Errorf("%w: %s", ErrPathNotAllowed, relPath)
	}
	if from < 1 {
		from = 1
	}

	f, err := os.Open(filepath.Join(m.cfg.WorkspacePath, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, fmt.Errorf("failed to open memory file: %w", err)
	}
	defer f.Close()

	slice := &FileSlice{Path: relPath, From: from, To: from - 1}
	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		if n < from {
			continue
		}
		if lines > 0 && n >= from+lines {
			slice.Truncated = true
			break
		}
		if n > from {
			b.WriteByte('\n')
		}
		b.WriteString(scanner.Text())
		slice.To = n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memory file: %w", err)
	}
	slice.Text = b.String()
	return slice, nil
}

// Close stops the triggers, waits for in-flight work and releases the store.
// Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.logger.Info().Msg("Closing memory manager")
	m.cancel()

	if m.watcher != nil {
		m.watcher.Stop()
	}
	if m.scheduler != nil {
		m.scheduler.Stop()
	}

	m.wg.Wait()
	return m.store.Close()
}
