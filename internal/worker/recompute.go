// Package worker re-attributes the journey backlog in bulk. Per-journey
// computation is an embarrassingly parallel map over immutable snapshots;
// aggregation commits per batch, all-or-nothing, so a cancelled or timed-out
// run never corrupts a previously committed aggregate.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/attribution-engine/internal/analytics"
	"github.com/ignite/attribution-engine/internal/attribution"
	"github.com/ignite/attribution-engine/internal/cache"
	"github.com/ignite/attribution-engine/internal/domain"
	"github.com/ignite/attribution-engine/internal/journey"
	"github.com/ignite/attribution-engine/internal/pkg/distlock"
	"github.com/ignite/attribution-engine/internal/registry"
)

// Repository is the persistence surface the recomputer needs. All methods
// are optional at runtime: a nil repository means in-memory operation.
type Repository interface {
	ListTouchpoints(ctx context.Context, from, to time.Time) ([]domain.Touchpoint, error)
	ListConversionSignals(ctx context.Context, from, to time.Time) ([]journey.ConversionSignal, error)
	SaveAttribution(ctx context.Context, j *domain.Journey) error
}

// Options tune a recompute run.
type Options struct {
	Concurrency int           // worker goroutines per batch; default 4
	BatchSize   int           // journeys per committed batch; default 500
	Deadline    time.Duration // per-run deadline; zero disables
	BacklogDays int           // how far back to fetch touchpoints; default 90
	Segment     string        // snapshot segment key; default "all"
}

func (o *Options) applyDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.BacklogDays <= 0 {
		o.BacklogDays = 90
	}
	if o.Segment == "" {
		o.Segment = "all"
	}
}

// RunResult summarizes one completed recompute run.
type RunResult struct {
	RunID      string                    `json:"run_id"`
	ModelID    string                    `json:"model_id"`
	Journeys   int64                     `json:"journeys"`
	Attributed int64                     `json:"attributed"`
	Skipped    int64                     `json:"skipped"` // data-quality exclusions
	Metrics    []analytics.ChannelMetric `json:"metrics"`
	StartedAt  time.Time                 `json:"started_at"`
	Duration   time.Duration             `json:"duration"`
}

// Recomputer runs bulk re-attribution, either on demand or on a schedule.
type Recomputer struct {
	registry  *registry.Registry
	repo      Repository
	snapshots *cache.SnapshotStore
	lookback  int
	opts      Options
	lock      distlock.Lock // optional; single-flights scheduled runs

	// Stats
	totalRuns   int64
	totalErrors int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewRecomputer creates a recomputer. repo and snapshots may be nil for
// in-memory use.
func NewRecomputer(reg *registry.Registry, repo Repository, snapshots *cache.SnapshotStore, lookbackDays int, opts Options) *Recomputer {
	opts.applyDefaults()
	return &Recomputer{
		registry:  reg,
		repo:      repo,
		snapshots: snapshots,
		lookback:  lookbackDays,
		opts:      opts,
	}
}

// UseLock installs a distributed lock so that only one worker instance runs
// each scheduled recompute. Call before Start.
func (r *Recomputer) UseLock(l distlock.Lock) {
	r.lock = l
}

// Start begins a nightly recompute loop.
func (r *Recomputer) Start(interval time.Duration) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.mu.Unlock()

	log.Printf("Recomputer: starting, interval %s", interval)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.runScheduled()
			}
		}
	}()
}

// runScheduled runs one backlog recompute, deferring to whichever instance
// holds the lock when one is configured.
func (r *Recomputer) runScheduled() {
	if r.lock != nil {
		held, err := r.lock.TryAcquire(r.ctx)
		if err != nil {
			atomic.AddInt64(&r.totalErrors, 1)
			log.Printf("Recomputer: lock acquire failed: %v", err)
			return
		}
		if !held {
			log.Println("Recomputer: another instance holds the recompute lock, skipping")
			return
		}
		defer func() {
			if err := r.lock.Release(context.Background()); err != nil {
				log.Printf("Recomputer: lock release failed: %v", err)
			}
		}()
	}

	if _, err := r.RunBacklog(r.ctx, ""); err != nil && !errors.Is(err, context.Canceled) {
		atomic.AddInt64(&r.totalErrors, 1)
		log.Printf("Recomputer: scheduled run failed: %v", err)
	}
}

// Stop cancels any in-flight run and waits for the loop to exit.
func (r *Recomputer) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("Recomputer: stopped cleanly")
	case <-time.After(30 * time.Second):
		log.Println("Recomputer: shutdown timeout, forcing stop")
	}
	log.Printf("Recomputer: runs=%d errors=%d",
		atomic.LoadInt64(&r.totalRuns), atomic.LoadInt64(&r.totalErrors))
}

// RunBacklog fetches the touchpoint backlog from the repository, rebuilds
// journeys, and recomputes attribution under the given model (default model
// when modelID is empty).
func (r *Recomputer) RunBacklog(ctx context.Context, modelID string) (*RunResult, error) {
	if r.repo == nil {
		return nil, errors.New("recompute backlog requires a repository")
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -r.opts.BacklogDays)

	touchpoints, err := r.repo.ListTouchpoints(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch backlog: %w", err)
	}
	signals, err := r.repo.ListConversionSignals(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch conversion signals: %w", err)
	}

	builder := journey.NewBuilder(r.lookback)
	journeys, err := builder.Build(touchpoints, signals)
	if err != nil {
		return nil, fmt.Errorf("build journeys: %w", err)
	}

	return r.Run(ctx, journeys, modelID)
}

// Run recomputes attribution for the given journey set. Batches commit
// all-or-nothing: the run aggregate only absorbs a batch's partial
// aggregate after every journey in the batch has been processed, so
// cancellation mid-batch discards that batch's partial state.
func (r *Recomputer) Run(ctx context.Context, journeys []domain.Journey, modelID string) (*RunResult, error) {
	started := time.Now()
	atomic.AddInt64(&r.totalRuns, 1)

	if r.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Deadline)
		defer cancel()
	}

	model, err := r.registry.Resolve(modelID)
	if err != nil {
		return nil, fmt.Errorf("resolve model: %w", err)
	}

	result := &RunResult{
		RunID:     uuid.New().String(),
		ModelID:   model.ID,
		StartedAt: started,
	}
	committed := analytics.NewAggregate()

	for start := 0; start < len(journeys); start += r.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			// Committed batches stand; the in-flight batch is discarded.
			log.Printf("Recomputer: run %s stopped after %d journeys: %v",
				result.RunID, result.Journeys, err)
			return nil, err
		}

		end := start + r.opts.BatchSize
		if end > len(journeys) {
			end = len(journeys)
		}

		partial, attributed, skipped, err := r.processBatch(ctx, journeys[start:end], model)
		if err != nil {
			return nil, err
		}

		committed.Merge(partial)
		result.Journeys += int64(end - start)
		result.Attributed += attributed
		result.Skipped += skipped
	}

	result.Metrics = committed.Report(nil)
	result.Duration = time.Since(started)

	if r.snapshots != nil {
		snap := &cache.ReportSnapshot{
			Segment:      r.opts.Segment,
			ModelID:      model.ID,
			Metrics:      result.Metrics,
			JourneyCount: committed.JourneyCount(),
			SkippedCount: committed.SkippedCount(),
			ComputedAt:   time.Now().UTC(),
		}
		if err := r.snapshots.Put(ctx, snap); err != nil {
			log.Printf("Recomputer: snapshot write failed: %v", err)
		}
	}

	log.Printf("Recomputer: run %s done: %d journeys, %d attributed, %d skipped in %s",
		result.RunID, result.Journeys, result.Attributed, result.Skipped, result.Duration)
	return result, nil
}

// processBatch computes attribution for one batch with a fixed-size worker
// pool and returns the batch's partial aggregate. The partial is isolated
// until the batch completes.
func (r *Recomputer) processBatch(ctx context.Context, batch []domain.Journey, model *domain.AttributionModel) (*analytics.Aggregate, int64, int64, error) {
	type outcome struct {
		journey domain.Journey
		skipped bool
		err     error
	}

	jobs := make(chan domain.Journey)
	results := make(chan outcome, len(batch))

	var wg sync.WaitGroup
	for w := 0; w < r.opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := journey.Validate(&j); err != nil {
					// Window-truncated before any model ran; same skip
					// accounting as a calculator exclusion.
					log.Printf("Recomputer: excluding journey %s: %v", j.ID, err)
					results <- outcome{skipped: true}
					continue
				}
				attributed, err := attribution.Compute(j, model)
				if err != nil {
					if errors.Is(err, attribution.ErrEmptyJourney) {
						// Data-quality exclusion: logged and counted,
						// never fatal to the batch.
						log.Printf("Recomputer: excluding journey %s: %v", j.ID, err)
						results <- outcome{skipped: true}
						continue
					}
					results <- outcome{err: err}
					continue
				}
				if r.repo != nil && attributed.Converted() {
					if err := r.repo.SaveAttribution(ctx, &attributed); err != nil {
						results <- outcome{err: err}
						continue
					}
				}
				results <- outcome{journey: attributed}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, j := range batch {
			select {
			case jobs <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	partial := analytics.NewAggregate()
	var attributed, skipped int64
	var firstErr error
	for out := range results {
		switch {
		case out.err != nil:
			if firstErr == nil {
				firstErr = out.err
			}
		case out.skipped:
			partial.AddSkipped()
			skipped++
		default:
			partial.AddJourney(out.journey)
			attributed++
		}
	}
	if firstErr != nil {
		return nil, 0, 0, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, 0, err
	}
	return partial, attributed, skipped, nil
}
