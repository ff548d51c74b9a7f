package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cloo-solutions/docsage/internal/dedup"
	"github.com/cloo-solutions/docsage/internal/logger"
	"github.com/cloo-solutions/docsage/internal/telemetry"
)

// DefaultDedupWindow is how long a completed answer suppresses identical repeats.
const DefaultDedupWindow = 5 * time.Second

// AnswerFunc produces an answer for a deduplicated request.
type AnswerFunc func(ctx context.Context) (*AnswerResponse, error)

// Deduplicator collapses identical (actor, query) requests. Concurrent
// callers share one in-flight call and a completed answer is replayed for
// the window. Failures are never cached.
type Deduplicator struct {
	group  singleflight.Group
	store  dedup.Store
	window time.Duration
	log    *logger.Logger
}

// NewDeduplicator creates a Deduplicator backed by store.
func NewDeduplicator(store dedup.Store, window time.Duration, log *logger.Logger) *Deduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Deduplicator{
		store:  store,
		window: window,
		log:    log.With("component", "Deduplicator"),
	}
}

// DedupKey hashes the actor and the normalised query text.
func DedupKey(actor, query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(strings.TrimSpace(actor) + "\x00" + normalized))
	return hex.EncodeToString(sum[:])
}

// Do returns the answer for (actor, query), calling fn at most once per
// window. Replayed and shared answers are marked Duplicate.
func (d *Deduplicator) Do(ctx context.Context, actor, query string, fn AnswerFunc) (*AnswerResponse, error) {
	key := DedupKey(actor, query)

	if cached, ok := d.lookup(ctx, key); ok {
		d.log.Info("duplicate request replayed from cache", "actor", actor)
		telemetry.AddBreadcrumb(ctx, "dedup", "duplicate request replayed from cache")
		return cached, nil
	}

	leader := false
	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		leader = true
		// a previous leader may have finished between the lookup above and here
		if cached, ok := d.lookup(ctx, key); ok {
			return cached, nil
		}
		resp, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		d.remember(ctx, key, resp)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}

	resp := v.(*AnswerResponse)
	if leader {
		if resp.Duplicate {
			d.log.Info("duplicate request replayed from cache", "actor", actor)
		}
		return resp, nil
	}

	d.log.Info("duplicate request joined in-flight answer", "actor", actor)
	telemetry.AddBreadcrumb(ctx, "dedup", "duplicate request joined in-flight answer")
	return markDuplicate(resp), nil
}

func (d *Deduplicator) lookup(ctx context.Context, key string) (*AnswerResponse, bool) {
	raw, ok, err := d.store.Get(ctx, key)
	if err != nil {
		d.log.Warn("dedup store lookup failed", "error", err)
		telemetry.CaptureError(ctx, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var resp AnswerResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		d.log.Warn("dedup store returned unreadable entry", "error", err)
		return nil, false
	}
	resp.Duplicate = true
	return &resp, true
}

func (d *Deduplicator) remember(ctx context.Context, key string, resp *AnswerResponse) {
	raw, err := json.Marshal(resp)
	if err != nil {
		d.log.Warn("failed to encode answer for dedup store", "error", err)
		return
	}
	if _, err := d.store.SetNX(ctx, key, raw, d.window); err != nil {
		d.log.Warn("dedup store write failed", "error", err)
	}
}

func markDuplicate(resp *AnswerResponse) *AnswerResponse {
	dup := *resp
	dup.Duplicate = true
	return &dup
}
