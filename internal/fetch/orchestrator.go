// Package fetch retrieves per-item auxiliary data (comments, custom fields) in
// batches through a rate-limited GraphQL API. Each batch is one request with an
// aliased sub-query per item; throttling halves the batch size and restarts.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/h0rv/rollup/internal/domain"
	"github.com/h0rv/rollup/internal/logger"
)

// DefaultBatchSize is the initial number of items per request.
const DefaultBatchSize = 50

// DefaultPageSize is how many comments or field values are requested per item.
const DefaultPageSize = 20

// Kind selects which auxiliary data to fetch.
type Kind int

const (
	Comments     Kind = iota // Latest comments
	CustomFields             // Project (board) field values
	IssueFields              // Native tracker fields: issue type, milestone, parent
)

func (k Kind) String() string {
	switch k {
	case Comments:
		return "comments"
	case CustomFields:
		return "custom fields"
	case IssueFields:
		return "issue fields"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Request describes one auxiliary fetch.
type Request struct {
	Kind     Kind
	Subject  domain.ItemKind // Issues and discussions use different sub-queries
	PageSize int
}

// Result is the auxiliary data for one item. Only the part matching the
// requested Kind is set.
type Result struct {
	Comments []*domain.Comment
	Fields   map[string]domain.FieldValue
}

// Executor runs a GraphQL query and returns the top-level data object keyed by
// field or alias. Throttling must be reported as a *ThrottledError.
type Executor interface {
	Execute(ctx context.Context, query string, variables map[string]interface{}) (map[string]json.RawMessage, error)
}

// Orchestrator batches auxiliary fetches. Its batch size is shared by every
// call and only ever shrinks.
type Orchestrator struct {
	exec  Executor
	stats *Stats
	log   logger.Logger
	clock func() time.Time

	mu        sync.Mutex
	batchSize int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatchSize sets the initial batch size.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithStats shares a Stats accumulator, typically one per report run.
func WithStats(s *Stats) Option {
	return func(o *Orchestrator) {
		o.stats = s
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithClock overrides the clock used for request timing.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.clock = now
	}
}

// New creates an Orchestrator around exec.
func New(exec Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		exec:      exec,
		batchSize: DefaultBatchSize,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.stats == nil {
		o.stats = NewStats()
	}
	if o.log == nil {
		o.log = logger.NewNop()
	}
	return o
}

// BatchSize returns the current batch size.
func (o *Orchestrator) BatchSize() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.batchSize
}

// Stats returns the shared accumulator.
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// Fetch retrieves req.Kind data for every key. Keys missing from the responses
// are absent from the returned map. A throttled batch halves the batch size and
// restarts the whole fetch; once the size cannot shrink, Fetch fails with
// ErrThrottleExhausted.
func (o *Orchestrator) Fetch(ctx context.Context, keys []domain.ItemKey, req Request) (map[domain.ItemKey]Result, error) {
	if req.PageSize <= 0 {
		req.PageSize = DefaultPageSize
	}
	if _, err := selectionFor(req); err != nil {
		return nil, err
	}
	keys = dedupe(keys)
	if len(keys) == 0 {
		return map[domain.ItemKey]Result{}, nil
	}

	for {
		size := o.BatchSize()
		results, err := o.fetchAll(ctx, keys, req, size)
		if err == nil {
			return results, nil
		}

		var throttled *ThrottledError
		if !errors.As(err, &throttled) {
			return nil, err
		}
		o.stats.RecordThrottle()

		next, ok := o.shrink(size)
		if !ok {
			return nil, fmt.Errorf("fetching %s for %d items: %w: %v", req.Kind, len(keys), ErrThrottleExhausted, err)
		}
		o.log.Warn("Throttled, retrying with smaller batches",
			"kind", req.Kind.String(),
			"items", len(keys),
			"batchSize", next,
			"retryAfter", throttled.RetryAfter.String(),
			"error", throttled.Error(),
		)
		if err := waitRetryAfter(ctx, throttled.RetryAfter); err != nil {
			return nil, err
		}
	}
}

// waitRetryAfter blocks for the server's retry hint, or until ctx is done.
func waitRetryAfter(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchAll walks the keys in stable batches of size.
func (o *Orchestrator) fetchAll(ctx context.Context, keys []domain.ItemKey, req Request, size int) (map[domain.ItemKey]Result, error) {
	results := make(map[domain.ItemKey]Result, len(keys))
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		got, err := o.fetchBatch(ctx, batch, req)
		if err != nil {
			return nil, err
		}
		for k, v := range got {
			results[k] = v
		}
		o.log.Debug("Fetched batch",
			"kind", req.Kind.String(),
			"from", start,
			"to", end,
			"total", len(keys),
			"returned", len(got),
		)
	}
	return results, nil
}

func (o *Orchestrator) fetchBatch(ctx context.Context, batch []domain.ItemKey, req Request) (map[domain.ItemKey]Result, error) {
	query, vars, err := buildBatchQuery(batch, req)
	if err != nil {
		return nil, err
	}

	started := o.clock()
	data, err := o.exec.Execute(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s batch of %d: %w", req.Kind, len(batch), err)
	}
	elapsed := o.clock().Sub(started)

	var rl rateLimitPayload
	if raw, ok := data["rateLimit"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &rl); err != nil {
			return nil, fmt.Errorf("failed to decode rate limit: %w", err)
		}
	}
	o.stats.Record(rl.Cost, rl.Remaining, rl.ResetAt, elapsed)

	return decodeBatch(batch, req, data)
}

// shrink halves the shared batch size if it still equals from. It reports
// false when the size would drop below one.
func (o *Orchestrator) shrink(from int) (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.batchSize < from {
		// Another call already shrank it
		return o.batchSize, true
	}
	next := o.batchSize / 2
	if next < 1 {
		return o.batchSize, false
	}
	o.batchSize = next
	return next, true
}

func dedupe(keys []domain.ItemKey) []domain.ItemKey {
	seen := make(map[domain.ItemKey]bool, len(keys))
	out := make([]domain.ItemKey, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
