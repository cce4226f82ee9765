// Package orchestrator schedules (variant x engine) jobs for a tracking run
// under global and per-engine concurrency bounds, with differentiated retry
// and honest per-job outcome accounting.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/omnifunnel/visibility-cli/internal/citations"
	"github.com/omnifunnel/visibility-cli/internal/cost"
	"github.com/omnifunnel/visibility-cli/internal/engine"
	"github.com/omnifunnel/visibility-cli/internal/model"
	"github.com/omnifunnel/visibility-cli/internal/resilience"
	"github.com/omnifunnel/visibility-cli/internal/store"
)

// Recorder is the subset of persistence the orchestrator writes through.
// All writes are append-only answer/citation creation plus run status
// updates, so job workers need no cross-job locking.
type Recorder interface {
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, counts model.JobCounts, errMsg string) error
	InsertAnswer(ctx context.Context, answer model.Answer) error
	InsertCitations(ctx context.Context, cs []model.Citation) error
}

// Options bounds a run's execution.
type Options struct {
	// GlobalConcurrency caps in-flight jobs across all engines.
	GlobalConcurrency int

	// PerEngineConcurrency caps in-flight jobs per engine. Excess jobs for a
	// saturated engine queue on its semaphore instead of spawning workers.
	PerEngineConcurrency int

	// Retry bounds per-job retries. Only rate-limit and timeout failures
	// are retried.
	Retry resilience.RetryConfig

	// Circuit trips an engine's breaker after consecutive failures so a
	// struggling provider stops absorbing the run's budget.
	Circuit resilience.CircuitBreakerConfig

	// RunTimeout finalizes the run after this duration; pending jobs are
	// cancelled and in-flight jobs are abandoned at the deadline.
	RunTimeout time.Duration
}

// DefaultOptions returns the orchestration bounds used when config leaves
// them unset.
func DefaultOptions() Options {
	return Options{
		GlobalConcurrency:    8,
		PerEngineConcurrency: 2,
		Retry:                resilience.DefaultRetryConfig(),
		Circuit:              resilience.DefaultCircuitBreakerConfig(),
		RunTimeout:           15 * time.Minute,
	}
}

// Orchestrator executes tracking runs.
type Orchestrator struct {
	rec       Recorder
	extractor *citations.Extractor
	health    *engine.HealthRegistry
	pricing   *cost.Calculator
	opts      Options
}

// New creates an orchestrator. A nil health registry disables the
// pre-dispatch health check.
func New(rec Recorder, extractor *citations.Extractor, health *engine.HealthRegistry, opts Options) *Orchestrator {
	if opts.GlobalConcurrency <= 0 {
		opts.GlobalConcurrency = 8
	}
	if opts.PerEngineConcurrency <= 0 {
		opts.PerEngineConcurrency = 2
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 15 * time.Minute
	}
	return &Orchestrator{
		rec:       rec,
		extractor: extractor,
		health:    health,
		pricing:   cost.NewCalculator(cost.DefaultRates()),
		opts:      opts,
	}
}

// counters accumulates job outcomes. Mutex-guarded: outcomes arrive from
// many workers but are only read after the group drains.
type counters struct {
	mu        sync.Mutex
	succeeded int
	failed    int
	cancelled int
	retried   int
}

func (c *counters) add(fn func(*counters)) {
	c.mu.Lock()
	fn(c)
	c.mu.Unlock()
}

// Execute expands the job set as the Cartesian product of variants and
// engines and drives every job to a terminal outcome. The run reaches
// completed only if every job succeeded, partial on a mix, failed when no
// job succeeded. Per-job failures never abort sibling jobs.
func (o *Orchestrator) Execute(ctx context.Context, run *model.Run, selected []model.Variant, engines []engine.Engine) error {
	total := len(selected) * len(engines)
	log := zap.L().With(
		zap.String("component", "orchestrator"),
		zap.String("run_id", run.ID),
	)

	run.Status = model.RunStatusRunning
	run.Counts = model.JobCounts{Total: total}
	if err := o.rec.UpdateRunStatus(ctx, run.ID, run.Status, run.Counts, ""); err != nil {
		return err
	}

	log.Info("run started",
		zap.Int("variants", len(selected)),
		zap.Int("engines", len(engines)),
		zap.Int("jobs", total),
	)

	runCtx, cancel := context.WithTimeout(ctx, o.opts.RunTimeout)
	defer cancel()

	// Per-engine dispatch bounds, shared across this run's workers.
	sems := make(map[string]chan struct{}, len(engines))
	for _, e := range engines {
		sems[e.Name()] = make(chan struct{}, o.opts.PerEngineConcurrency)
	}
	breakers := resilience.NewServiceBreakers(o.opts.Circuit)

	var tally counters

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(o.opts.GlobalConcurrency)

	for _, v := range selected {
		for _, e := range engines {
			variant, eng := v, e
			g.Go(func() error {
				o.runJob(gctx, log, run.ID, variant, eng, sems[eng.Name()], breakers.Get(eng.Name()), &tally)
				return nil
			})
		}
	}

	_ = g.Wait()

	tally.mu.Lock()
	counts := model.JobCounts{
		Total:     total,
		Succeeded: tally.succeeded,
		Failed:    tally.failed,
		Retried:   tally.retried,
		Cancelled: tally.cancelled,
	}
	tally.mu.Unlock()

	status := terminalStatus(counts)
	now := time.Now().UTC()
	run.Status = status
	run.Counts = counts
	run.FinishedAt = &now

	log.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("succeeded", counts.Succeeded),
		zap.Int("failed", counts.Failed),
		zap.Int("cancelled", counts.Cancelled),
		zap.Int("retried", counts.Retried),
	)

	// Use the parent ctx: the run ctx may already be past its deadline.
	return o.rec.UpdateRunStatus(ctx, run.ID, status, counts, "")
}

// runJob drives one (variant, engine) job to success, exhausted failure, or
// cancellation.
func (o *Orchestrator) runJob(ctx context.Context, log *zap.Logger, runID string, variant model.Variant, eng engine.Engine, sem chan struct{}, breaker *resilience.CircuitBreaker, tally *counters) {
	// Cancelled before starting: the job never ran, count it honestly.
	select {
	case <-ctx.Done():
		tally.add(func(c *counters) { c.cancelled++ })
		return
	case sem <- struct{}{}:
	}
	defer func() { <-sem }()

	if o.health != nil && !o.health.Dispatchable(eng.Name()) {
		tally.add(func(c *counters) { c.failed++ })
		log.Warn("job skipped: engine unhealthy",
			zap.String("engine", eng.Name()),
			zap.String("variant_id", variant.ID),
		)
		return
	}

	retryCfg := o.opts.Retry
	retryCfg.ShouldRetry = engine.Retryable
	retryCfg.OnRetry = func(attempt int, err error) {
		tally.add(func(c *counters) { c.retried++ })
		log.Warn("retrying job",
			zap.String("engine", eng.Name()),
			zap.String("variant_id", variant.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*engine.RawResponse, error) {
		var r *engine.RawResponse
		execErr := breaker.Execute(ctx, func(ctx context.Context) error {
			var submitErr error
			r, submitErr = eng.Submit(ctx, variant.Text)
			return submitErr
		})
		return r, execErr
	})
	if err != nil {
		if ctx.Err() != nil {
			// Abandoned at the run deadline: failed, not silently missing.
			tally.add(func(c *counters) { c.failed++ })
			log.Warn("job abandoned at run deadline",
				zap.String("engine", eng.Name()),
				zap.String("variant_id", variant.ID),
			)
			return
		}
		tally.add(func(c *counters) { c.failed++ })
		kind, _ := engine.KindOf(err)
		log.Warn("job failed",
			zap.String("engine", eng.Name()),
			zap.String("variant_id", variant.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return
	}

	if err := o.persist(ctx, runID, variant, eng.Name(), resp); err != nil {
		tally.add(func(c *counters) { c.failed++ })
		if errors.Is(err, store.ErrDuplicateAnswer) {
			log.Warn("duplicate answer rejected",
				zap.String("engine", eng.Name()),
				zap.String("variant_id", variant.ID),
			)
			return
		}
		log.Error("persist answer failed",
			zap.String("engine", eng.Name()),
			zap.String("variant_id", variant.ID),
			zap.Error(err),
		)
		return
	}

	tally.add(func(c *counters) { c.succeeded++ })
}

func (o *Orchestrator) persist(ctx context.Context, runID string, variant model.Variant, engineName string, resp *engine.RawResponse) error {
	answer := model.Answer{
		ID:        uuid.New().String(),
		RunID:     runID,
		Engine:    engineName,
		VariantID: variant.ID,
		RawText:   resp.Text,
		Hash:      model.HashText(resp.Text),
		Usage: model.TokenUsage{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		},
		CostUSD:   o.pricing.Answer(engineName, resp.Model, resp.InputTokens, resp.OutputTokens),
		CreatedAt: time.Now().UTC(),
	}
	if err := o.rec.InsertAnswer(ctx, answer); err != nil {
		return err
	}

	cs := o.extractor.Combine(answer.ID, resp.Citations, resp.Text)
	for i := range cs {
		cs[i].ID = uuid.New().String()
	}
	if len(cs) == 0 {
		return nil
	}
	return o.rec.InsertCitations(ctx, cs)
}

// terminalStatus maps final job counts to the run's terminal state.
// Cancelled and abandoned jobs count against completion.
func terminalStatus(c model.JobCounts) model.RunStatus {
	switch {
	case c.Succeeded == c.Total:
		return model.RunStatusCompleted
	case c.Succeeded > 0:
		return model.RunStatusPartial
	default:
		return model.RunStatusFailed
	}
}
