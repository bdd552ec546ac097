package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/recall/internal/observability"
	"github.com/harun/recall/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// Sync trigger reasons.
const (
	ReasonManual       = "manual"
	ReasonSessionStart = "session-start"
	ReasonSearch       = "search"
	ReasonWatch        = "watch"
	ReasonInterval     = "interval"
)

// SyncState is the sync engine state.
type SyncState string

const (
	StateIdle      SyncState = "idle"
	StateRunning   SyncState = "running"
	StateCommitted SyncState = "committed"
	StateFailed    SyncState = "failed"
)

// OutcomeStatus summarises a finished sync run.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomePartial   OutcomeStatus = "partial"
	OutcomeFailed    OutcomeStatus = "failed"
)

const (
	metaSignatureKey = "index_signature"
	metaLastSyncKey  = "last_sync_at"
)

// SyncRequest asks for one sync run.
type SyncRequest struct {
	Reason string
	// Force re-chunks and re-embeds every document regardless of fingerprints.
	Force bool
}

// DocumentFailure is a document whose commit failed during a run.
type DocumentFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// SyncOutcome describes one sync run. Callers that joined an in-flight run
// receive that run's outcome.
type SyncOutcome struct {
	RunID            string            `json:"run_id"`
	Reason           string            `json:"reason"`
	Force            bool              `json:"force"`
	FullReindex      bool              `json:"full_reindex"`
	Status           OutcomeStatus     `json:"status"`
	Added            int               `json:"added"`
	Modified         int               `json:"modified"`
	Removed          int               `json:"removed"`
	Unchanged        int               `json:"unchanged"`
	ChunksWritten    int               `json:"chunks_written"`
	EmbeddedChunks   int               `json:"embedded_chunks"`
	CachedEmbeddings int               `json:"cached_embeddings"`
	Skipped          []SkippedDocument `json:"skipped,omitempty"`
	Failed           []DocumentFailure `json:"failed,omitempty"`
	StartedAt        time.Time         `json:"started_at"`
	Duration         time.Duration     `json:"duration"`
	Err              error             `json:"-"`
	Error            string            `json:"error,omitempty"`

	committed bool
}

// Sync runs the indexing pipeline. Concurrent calls while a run is in
// flight join that run instead of starting another. A forced call that
// joins a non-forced run waits for it and then starts its own forced run.
// The run itself is bound to the manager's lifetime; ctx only bounds how
// long the caller waits.
func (m *Manager) Sync(ctx context.Context, req SyncRequest) (*SyncOutcome, error) {
	if err := m.begin(); err != nil {
		return nil, err
	}
	defer m.end()

	if ctx == nil {
		ctx = context.Background()
	}
	if req.Reason == "" {
		req.Reason = ReasonManual
	}

	for {
		out, err := m.join(ctx, req)
		if out == nil || out.Force || !req.Force {
			return out, err
		}
		m.logger.Debug().Str("joined_run", out.RunID).Msg("Joined a non-forced sync, running a forced one next")
	}
}

// join attaches to the in-flight run or starts a new one with req.
func (m *Manager) join(ctx context.Context, req SyncRequest) (*SyncOutcome, error) {
	runCtx := tracing.MergeContext(m.baseCtx, ctx)

	ch := m.flight.DoChan("sync", func() (any, error) {
		if err := m.begin(); err != nil {
			return nil, err
		}
		defer m.end()
		out := m.runSync(runCtx, req)
		return out, out.Err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		out, _ := res.Val.(*SyncOutcome)
		if out == nil {
			return nil, res.Err
		}
		copied := *out
		return &copied, res.Err
	}
}

func (m *Manager) runSync(ctx context.Context, req SyncRequest) *SyncOutcome {
	runID := tracing.NewRunID()
	ctx = tracing.WithReason(tracing.WithRunID(ctx, runID), req.Reason)
	ctx, span := tracing.StartSpan(ctx, "recall.memory", "memory.sync",
		attribute.String("reason", req.Reason),
		attribute.Bool("force", req.Force),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, m.logger)

	out := &SyncOutcome{
		RunID:     runID,
		Reason:    req.Reason,
		Force:     req.Force,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.running = true
	m.dirty = false
	m.mu.Unlock()
	observability.SetMemoryDirty(false)

	logger.Debug().Bool("force", req.Force).Msg("Memory sync started")

	err := m.pipeline(ctx, req, out, logger)
	out.Duration = time.Since(out.StartedAt)

	switch {
	case err != nil:
		out.Status = OutcomeFailed
		out.Err = err
		out.Error = err.Error()
	case len(out.Failed) > 0 || len(out.Skipped) > 0:
		out.Status = OutcomePartial
	default:
		out.Status = OutcomeSucceeded
	}

	if out.committed {
		m.onCommit()
	}

	m.mu.Lock()
	m.running = false
	m.lastOutcome = out
	if out.Status == OutcomeFailed {
		m.lastState = StateFailed
		m.dirty = true
	} else {
		m.lastState = StateCommitted
		m.synced = true
		m.lastSyncAt = time.Now()
	}
	dirty := m.dirty
	m.mu.Unlock()
	observability.SetMemoryDirty(dirty)
	observability.RecordMemorySync(req.Reason, string(out.Status), out.Duration)
	if out.FullReindex {
		observability.RecordIndexAudit(ctx, "reindex", string(out.Status), map[string]interface{}{
			"reason":    req.Reason,
			"run_id":    runID,
			"documents": out.Added + out.Modified,
			"chunks":    out.ChunksWritten,
		})
	}

	span.SetAttributes(
		attribute.String("status", string(out.Status)),
		attribute.Int("chunks_written", out.ChunksWritten),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).
			Dur("duration", out.Duration).
			Msg("Memory sync failed")
		return out
	}

	logger.Info().
		Str("status", string(out.Status)).
		Bool("full_reindex", out.FullReindex).
		Int("added", out.Added).
		Int("modified", out.Modified).
		Int("removed", out.Removed).
		Int("skipped", len(out.Skipped)).
		Int("failed", len(out.Failed)).
		Int("chunks", out.ChunksWritten).
		Dur("duration", out.Duration).
		Msg("Memory sync completed")
	return out
}

func (m *Manager) pipeline(ctx context.Context, req SyncRequest, out *SyncOutcome, logger zerolog.Logger) error {
	stored, err := m.store.LoadDocuments(ctx)
	if err != nil {
		return err
	}

	signature := m.signature()
	previous, err := m.store.GetMeta(ctx, metaSignatureKey)
	if err != nil {
		return err
	}
	full := req.Force || (previous != signature && (previous != "" || len(stored) > 0))
	if full && !req.Force {
		logger.Info().Str("previous", previous).Str("current", signature).Msg("Index signature changed, reindexing everything")
	}

	// A forced reindex while the provider chain is failing over would
	// replace good vectors with fallback ones.
	if req.Force && !m.cfg.AllowUnsafeReindex && providerDegraded(m.provider) {
		return ErrUnsafeReindex
	}

	cs, err := m.tracker.Changes(ctx, stored, full)
	if err != nil {
		return err
	}
	out.FullReindex = full
	out.Added = len(cs.Added)
	out.Modified = len(cs.Modified)
	out.Removed = len(cs.Removed)
	out.Unchanged = len(cs.Unchanged)
	out.Skipped = cs.Skipped

	if full && !m.cfg.AllowUnsafeReindex {
		err = m.reindexStaged(ctx, cs, out)
	} else {
		err = m.applyInPlace(ctx, cs, out, logger)
	}
	if err != nil {
		return err
	}

	if len(out.Failed) == 0 {
		if err := m.store.SetMeta(ctx, metaSignatureKey, signature); err != nil {
			return err
		}
	}
	if err := m.store.SetMeta(ctx, metaLastSyncKey, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		logger.Warn().Err(err).Msg("Failed to record sync time")
	}

	if m.cfg.Store.EmbeddingCache {
		if pruned, err := m.store.PruneEmbeddingCache(ctx, m.cfg.Store.EmbeddingCacheMax); err != nil {
			logger.Warn().Err(err).Msg("Failed to prune embedding cache")
		} else if pruned > 0 {
			logger.Debug().Int64("pruned", pruned).Msg("Pruned embedding cache")
		}
	}

	if counts, err := m.store.Counts(ctx); err == nil {
		observability.SetIndexSize(counts.Documents, counts.Chunks)
	}
	return nil
}

// applyInPlace commits each document on its own. A storage failure only
// fails that document; provider failures and cancellation end the run.
func (m *Manager) applyInPlace(ctx context.Context, cs ChangeSet, out *SyncOutcome, logger zerolog.Logger) error {
	for _, path := range cs.Removed {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.store.DeleteDocument(ctx, path); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error().Err(err).Str("path", path).Msg("Failed to remove document from index")
			out.Failed = append(out.Failed, DocumentFailure{Path: path, Error: err.Error()})
			continue
		}
		out.committed = true
	}

	for _, doc := range cs.Pending() {
		if err := ctx.Err(); err != nil {
			return err
		}
		records, stats, err := m.prepareDocument(ctx, doc)
		if err != nil {
			return err
		}
		if err := m.store.ReplaceDocument(ctx, doc.Meta(time.Now()), records); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error().Err(err).Str("path", doc.Path).Msg("Failed to commit document")
			out.Failed = append(out.Failed, DocumentFailure{Path: doc.Path, Error: err.Error()})
			continue
		}
		out.committed = true
		out.ChunksWritten += len(records)
		out.EmbeddedChunks += stats.embedded
		out.CachedEmbeddings += stats.cached
	}
	return nil
}

// reindexStaged rebuilds the whole index in the staging tables and swaps it
// in with one transaction. Any failure leaves the previous index in place.
func (m *Manager) reindexStaged(ctx context.Context, cs ChangeSet, out *SyncOutcome) (err error) {
	if err := m.store.ResetStaging(ctx); err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if rerr := m.store.ResetStaging(context.WithoutCancel(ctx)); rerr != nil {
			m.logger.Warn().Err(rerr).Msg("Failed to clear staging tables")
		}
	}()

	if err := m.store.CarryOverToStaging(ctx, cs.Retained); err != nil {
		return err
	}

	var written, embedded, cached int
	for _, doc := range append(cs.Pending(), cs.Unchanged...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		records, stats, err := m.prepareDocument(ctx, doc)
		if err != nil {
			return err
		}
		if err := m.store.StageDocument(ctx, doc.Meta(time.Now()), records); err != nil {
			return fmt.Errorf("stage %s: %w", doc.Path, err)
		}
		written += len(records)
		embedded += stats.embedded
		cached += stats.cached
	}

	if err := m.store.PromoteStaging(ctx); err != nil {
		return err
	}
	out.committed = true
	out.ChunksWritten = written
	out.EmbeddedChunks = embedded
	out.CachedEmbeddings = cached
	return nil
}

type embedStats struct {
	embedded int
	cached   int
}

// prepareDocument chunks doc and, when vectors are enabled, embeds every chunk.
func (m *Manager) prepareDocument(ctx context.Context, doc Document) ([]ChunkRecord, embedStats, error) {
	spans, err := m.chunker.Split(doc.Text)
	if err != nil {
		return nil, embedStats{}, err
	}

	records := make([]ChunkRecord, len(spans))
	texts := make([]string, len(spans))
	for i, s := range spans {
		records[i] = ChunkRecord{
			DocumentPath: doc.Path,
			Ordinal:      s.Ordinal,
			TokenStart:   s.TokenStart,
			TokenEnd:     s.TokenEnd,
			StartLine:    s.StartLine,
			EndLine:      s.EndLine,
			Text:         s.Text,
			Fingerprint:  doc.Fingerprint,
		}
		texts[i] = s.Text
	}
	if !m.cfg.Store.VectorEnabled || len(records) == 0 {
		return records, embedStats{}, nil
	}

	vecs, stats, err := m.embedTexts(ctx, texts)
	if err != nil {
		return nil, embedStats{}, err
	}
	for i := range records {
		records[i].Vector = vecs[i].Values
		records[i].EmbeddingModel = vecs[i].Model
	}
	return records, stats, nil
}

// embedTexts serves texts from the embedding cache where possible and embeds
// the rest in batches, several batches in flight at once.
func (m *Manager) embedTexts(ctx context.Context, texts []string) ([]Vector, embedStats, error) {
	var stats embedStats
	vecs := make([]Vector, len(texts))
	model := ModelKey(m.provider)

	hashes := make([]string, len(texts))
	for i, text := range texts {
		hashes[i] = Fingerprint([]byte(text))
	}

	var hits map[string][]float32
	if m.cfg.Store.EmbeddingCache {
		var err error
		hits, err = m.store.CachedEmbeddings(ctx, model, uniqueStrings(hashes))
		if err != nil {
			if ctx.Err() != nil {
				return nil, stats, ctx.Err()
			}
			m.logger.Warn().Err(err).Msg("Embedding cache lookup failed")
			hits = nil
		}
	}

	var missing []int
	for i, h := range hashes {
		if v, ok := hits[h]; ok {
			vecs[i] = Vector{Values: v, Model: model}
			stats.cached++
			continue
		}
		missing = append(missing, i)
	}
	observability.RecordEmbeddingCache(stats.cached, len(missing))

	if len(missing) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(1, m.cfg.EmbedConcurrency))
		size := max(1, m.cfg.EmbedBatchSize)
		for start := 0; start < len(missing); start += size {
			idx := missing[start:min(start+size, len(missing))]
			g.Go(func() error {
				batch := make([]string, len(idx))
				for j, i := range idx {
					batch[j] = texts[i]
				}
				out, err := m.provider.EmbedBatch(gctx, batch)
				if err != nil {
					return err
				}
				if len(out) != len(batch) {
					return &ProviderError{
						Provider: m.provider.ID(),
						Op:       "embed_batch",
						Err:      fmt.Errorf("got %d vectors for %d texts", len(out), len(batch)),
					}
				}
				for j, i := range idx {
					vecs[i] = out[j]
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil, stats, ctx.Err()
			}
			return nil, stats, err
		}
		stats.embedded = len(missing)
	}

	if m.cfg.Store.EmbeddingCache && len(missing) > 0 {
		fresh := make(map[string][]float32, len(missing))
		for _, i := range missing {
			if vecs[i].Model == model {
				fresh[hashes[i]] = vecs[i].Values
			}
		}
		if err := m.store.PutEmbeddings(ctx, model, fresh); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to write embedding cache")
		}
	}
	return vecs, stats, nil
}

// signature identifies everything that makes stored chunks incompatible
// with a new run.
func (m *Manager) signature() string {
	return fmt.Sprintf("v%d|%s|%s|%d|%d|vectors=%t",
		schemaVersion,
		ModelKey(m.provider),
		m.cfg.Chunking.Tokenizer,
		m.chunker.MaxTokens(),
		m.chunker.Overlap(),
		m.cfg.Store.VectorEnabled,
	)
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
