package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docsage/internal/logger"
)

func TestInit_EmptyDSNIsNoop(t *testing.T) {
	shutdown, err := Init(Config{}, logger.Nop())

	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NotPanics(t, shutdown)
}

func TestSpans_SafeWithoutClient(t *testing.T) {
	ctx, tx := StartTransaction(context.Background(), "cli ask", OpCLI)
	require.NotNil(t, ctx)

	childCtx, span := StartSpan(ctx, "Retriever.Retrieve", SpanAttributes{
		RequestID:  "req-1",
		Collection: "admin",
		Model:      "gpt-4o-mini",
		Operation:  "retrieve",
	})
	require.NotNil(t, childCtx)

	assert.NotPanics(t, func() {
		AddBreadcrumb(childCtx, "dedup", "replayed cached answer")
		CaptureError(childCtx, errors.New("boom"))
		span.SetError(errors.New("boom"))
		span.End()
		tx.End()
	})
}

func TestSpan_NilInner(t *testing.T) {
	s := &Span{}
	assert.NotPanics(t, func() {
		s.SetError(errors.New("boom"))
		s.End()
	})
}

func TestTracesSampler(t *testing.T) {
	sample := tracesSampler(0.1)

	tests := []struct {
		name string
		span *sentry.Span
		want float64
	}{
		{name: "health check", span: &sentry.Span{Name: "GET /health"}, want: 0},
		{name: "api request", span: &sentry.Span{Name: "POST /ask", Op: "http.server"}, want: 0.1},
		{name: "cli run", span: &sentry.Span{Name: "cli ingest", Op: OpCLI}, want: 1},
		{name: "sampled child", span: &sentry.Span{ParentSpanID: sentry.SpanID{1}, Sampled: sentry.SampledTrue}, want: 1},
		{name: "dropped child", span: &sentry.Span{ParentSpanID: sentry.SpanID{1}, Sampled: sentry.SampledFalse}, want: 0},
		{name: "no span", want: 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sample(sentry.SamplingContext{Span: tt.span}))
		})
	}
}
