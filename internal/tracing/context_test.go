package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewIDs(t *testing.T) {
	if a, b := NewTraceID(), NewTraceID(); a == "" || a == b {
		t.Errorf("NewTraceID returned %q and %q", a, b)
	}
	if a, b := NewRunID(), NewRunID(); a == "" || a == b {
		t.Errorf("NewRunID returned %q and %q", a, b)
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" || GetRunID(ctx) != "" || GetSessionKey(ctx) != "" || GetReason(ctx) != "" {
		t.Fatal("expected empty values on a bare context")
	}

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithSessionKey(ctx, "agent:main")
	ctx = WithReason(ctx, "watch")

	tc := FromContext(ctx)
	if tc.TraceID != "trace-1" || tc.RunID != "run-1" || tc.SessionKey != "agent:main" || tc.Reason != "watch" {
		t.Errorf("unexpected trace context: %+v", tc)
	}
}

func TestNewContextPartial(t *testing.T) {
	ctx := NewContext(context.Background(), &TraceContext{TraceID: "t", Reason: "manual"})

	if GetTraceID(ctx) != "t" {
		t.Errorf("expected trace id t, got %q", GetTraceID(ctx))
	}
	if GetRunID(ctx) != "" {
		t.Errorf("expected no run id, got %q", GetRunID(ctx))
	}
	if GetReason(ctx) != "manual" {
		t.Errorf("expected reason manual, got %q", GetReason(ctx))
	}
}

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background())
	if GetTraceID(ctx) == "" {
		t.Error("expected a trace id")
	}
}

func TestMergeContext(t *testing.T) {
	source, cancel := context.WithTimeout(WithTraceID(context.Background(), "caller-trace"), time.Millisecond)
	defer cancel()
	source = WithSessionKey(source, "s1")

	target := WithSessionKey(context.Background(), "own-session")
	merged := MergeContext(target, source)

	if GetTraceID(merged) != "caller-trace" {
		t.Errorf("expected trace id to be merged, got %q", GetTraceID(merged))
	}
	if GetSessionKey(merged) != "own-session" {
		t.Errorf("expected target session key to win, got %q", GetSessionKey(merged))
	}

	<-source.Done()
	if merged.Err() != nil {
		t.Errorf("merged context must not inherit cancellation: %v", merged.Err())
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithRunID(WithTraceID(context.Background(), "trace-xyz"), "run-abc")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("sync")

	out := buf.String()
	for _, want := range []string{`"trace_id":"trace-xyz"`, `"run_id":"run-abc"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
	if strings.Contains(out, "session_key") {
		t.Errorf("unexpected session_key in %s", out)
	}
}
