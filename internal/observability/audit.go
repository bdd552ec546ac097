package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent is one entry in the audit trail of changes made to the
// memory workspace and its index.
type AuditEvent struct {
	Type      string                 `json:"event_type"` // document, index
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor,omitempty"` // session key or "cli"
	Action    string                 `json:"action"`          // e.g. "write", "delete", "reindex"
	Target    string                 `json:"target,omitempty"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	closer io.Closer
}

var (
	auditMu   sync.RWMutex
	auditInst = &AuditLogger{logger: zerolog.Nop()}
)

// GetAuditLogger returns the process audit logger. It discards events until
// InitAuditLogger or SetAuditWriter is called.
func GetAuditLogger() *AuditLogger {
	auditMu.RLock()
	defer auditMu.RUnlock()
	return auditInst
}

// InitAuditLogger appends audit events to path.
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	setAudit(&AuditLogger{
		logger: zerolog.New(file).With().Timestamp().Logger(),
		closer: file,
	})
	return nil
}

// SetAuditWriter sends audit events to w.
func SetAuditWriter(w io.Writer) {
	setAudit(&AuditLogger{logger: zerolog.New(w).With().Timestamp().Logger()})
}

func setAudit(a *AuditLogger) {
	auditMu.Lock()
	prev := auditInst
	auditInst = a
	auditMu.Unlock()
	prev.Close()
}

// Record emits an audit event and mirrors it onto the active span.
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()
		span.AddEvent("audit."+event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.target", event.Target),
			attribute.String("audit.status", event.Status),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("type", event.Type).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("target", event.Target).
		Str("status", event.Status)
	if event.TraceID != "" {
		entry.Str("trace_id", event.TraceID)
	}
	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}
	entry.Msg("")
}

// Close closes the audit file, if any.
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closer != nil {
		err := a.closer.Close()
		a.closer = nil
		return err
	}
	return nil
}

// RecordDocumentAudit records a change to a memory document.
func RecordDocumentAudit(ctx context.Context, action, path, actor string, err error, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "document",
		Actor:    actor,
		Action:   action,
		Target:   path,
		Status:   statusLabel(err == nil),
		Metadata: metadata,
	})
}

// RecordIndexAudit records an index-wide operation such as a forced reindex.
func RecordIndexAudit(ctx context.Context, action, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "index",
		Action:   action,
		Status:   status,
		Metadata: metadata,
	})
}
