package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
	"github.com/couchcryptid/tsunami-alert-service/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// ErrUnavailable marks evaluation failures caused by a collaborator that is
// temporarily unreachable. The pipeline retries these instead of skipping the
// message.
var ErrUnavailable = errors.New("dependency unavailable")

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Evaluator turns one raw earthquake message into an event report.
type Evaluator interface {
	Evaluate(ctx context.Context, raw domain.RawEvent) (domain.EventReport, error)
}

// BatchLoader writes multiple event reports to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, reports []domain.EventReport) error
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for backoff sleeps and batch timing.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// Pipeline orchestrates the extract-evaluate-load loop.
type Pipeline struct {
	extractor BatchExtractor
	evaluator Evaluator
	loader    BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, ev Evaluator, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor: e,
		evaluator: ev,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
		batchSize: batchSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil if the pipeline has published at least one
// report, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any messages yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-evaluate-load cycle. Returns false if the
// pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := p.clock.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = initialBackoff

	loaded, ok := p.evaluateAndLoad(ctx, rawBatch, backoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(p.clock.Since(start).Seconds())
		p.ready.Store(true)
	}
	return true
}

// evaluateAndLoad evaluates each message in the batch, loads the reports,
// and commits offsets. Messages that fail evaluation for good are committed
// and skipped. Returns the number of loaded reports and false if the
// pipeline should stop.
func (p *Pipeline) evaluateAndLoad(ctx context.Context, rawBatch []domain.RawEvent, backoff *time.Duration) (int, bool) {
	reports := make([]domain.EventReport, 0, len(rawBatch))
	evaluated := make([]domain.RawEvent, 0, len(rawBatch))

	for _, raw := range rawBatch {
		report, err := p.evaluate(ctx, raw, backoff)
		if err != nil {
			if ctx.Err() != nil {
				return 0, false
			}
			p.logger.Warn("evaluation failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.commitOffset(ctx, raw)
			continue
		}
		reports = append(reports, report)
		evaluated = append(evaluated, raw)
	}

	if len(reports) == 0 {
		return 0, true
	}

	for {
		err := p.loader.LoadBatch(ctx, reports)
		if err == nil {
			break
		}
		p.logger.Error("load batch failed", "error", err, "batch_size", len(reports))
		if !p.backoffOrStop(ctx, backoff) {
			return 0, false
		}
	}

	p.metrics.ReportsProduced.Add(float64(len(reports)))

	for _, raw := range evaluated {
		p.commitOffset(ctx, raw)
	}
	*backoff = initialBackoff

	return len(reports), true
}

// evaluate runs the evaluator, retrying with backoff while it reports
// ErrUnavailable. It gives up only when ctx is cancelled.
func (p *Pipeline) evaluate(ctx context.Context, raw domain.RawEvent, backoff *time.Duration) (domain.EventReport, error) {
	for {
		report, err := p.evaluator.Evaluate(ctx, raw)
		if err == nil || !errors.Is(err, ErrUnavailable) {
			return report, err
		}
		p.logger.Error("evaluation blocked on unavailable dependency, retrying",
			"error", err, "offset", raw.Offset)
		if !p.backoffOrStop(ctx, backoff) {
			return domain.EventReport{}, err
		}
	}
}

// backoffOrStop checks for context cancellation, sleeps with the current
// backoff, and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !p.sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

func (p *Pipeline) sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
