// Package telemetry traces the answer and ingestion pipelines with Sentry.
// Every helper is safe to call when Sentry was never initialised.
package telemetry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/cloo-solutions/docsage/internal/logger"
)

const (
	serverName   = "docsaged"
	flushTimeout = 5 * time.Second

	// OpCLI marks transactions opened by CLI commands.
	OpCLI = "cli"
)

// Config holds the Sentry settings read from DOCSAGE_SENTRY_*.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init configures the global Sentry client and returns a flush function.
// An empty DSN disables Sentry, and a client that fails to start is logged
// and ignored so the service still runs without tracing.
func Init(cfg Config, log *logger.Logger) (func(), error) {
	if log == nil {
		log = logger.Nop()
	}
	noop := func() {}
	if cfg.DSN == "" {
		return noop, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate <= 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Debug:            cfg.Debug,
		ServerName:       serverName,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		TracesSampler:    tracesSampler(cfg.TracesSampleRate),
	})
	if err != nil {
		log.Warn("sentry failed to initialize, continuing without tracing", "error", err)
		return noop, nil
	}

	log.Info("sentry tracing initialized", "environment", cfg.Environment, "sample_rate", cfg.TracesSampleRate)
	return func() { sentry.Flush(flushTimeout) }, nil
}

// tracesSampler drops health checks, follows the parent decision for child
// spans, always keeps CLI runs and samples everything else at rate.
func tracesSampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		span := ctx.Span
		switch {
		case span == nil:
			return rate
		case span.Name == "GET /health":
			return 0
		case span.ParentSpanID != (sentry.SpanID{}):
			if span.Sampled.Bool() {
				return 1
			}
			return 0
		case span.Op == OpCLI:
			return 1
		default:
			return rate
		}
	}
}

// SpanAttributes tag a pipeline span. Empty fields are skipped.
type SpanAttributes struct {
	RequestID  string
	Collection string
	Model      string
	Operation  string
}

func (a SpanAttributes) apply(span *sentry.Span) {
	if a.RequestID != "" {
		span.SetTag("request_id", a.RequestID)
	}
	if a.Collection != "" {
		span.SetTag("collection", a.Collection)
	}
	if a.Model != "" {
		span.SetData("model", a.Model)
	}
	if a.Operation != "" {
		span.SetData("operation", a.Operation)
	}
}

// Span is a started Sentry span. A zero Span ignores every call.
type Span struct {
	inner *sentry.Span
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetError marks the span failed and reports err on the span's hub.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.Status = sentry.SpanStatusInternalError
	CaptureError(s.inner.Context(), err)
}

// StartSpan opens a child of the span already on ctx, or a new transaction
// named name when there is none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}
	attrs.apply(span)
	return span.Context(), &Span{inner: span}
}

// StartTransaction opens a root transaction for work that does not arrive
// over HTTP. op is the Sentry operation, e.g. OpCLI.
func StartTransaction(ctx context.Context, name, op string) (context.Context, *Span) {
	span := sentry.StartSpan(ctx, op,
		sentry.WithTransactionName(name),
		sentry.WithTransactionSource(sentry.SourceTask),
	)
	return span.Context(), &Span{inner: span}
}

// CaptureError reports err on the hub bound to ctx, or the global hub.
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
		return
	}
	sentry.CaptureException(err)
}

// AddBreadcrumb records a pipeline decision, such as a dedup replay or a
// mock-embedding fallback, on the current scope.
func AddBreadcrumb(ctx context.Context, category, message string) {
	crumb := &sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.AddBreadcrumb(crumb, nil)
		return
	}
	sentry.AddBreadcrumb(crumb)
}
