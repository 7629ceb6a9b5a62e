// Package dispatcher runs the lead pipeline: it fans (source, term) pairs out to
// workers, owns the run-wide ledger, and guarantees one terminal checkpoint save.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/remote-lead-crawler/internal/checkpoint"
	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/logging"
	"github.com/JakeFAU/remote-lead-crawler/internal/metrics"
	"github.com/JakeFAU/remote-lead-crawler/internal/queue/memory"
	storemem "github.com/JakeFAU/remote-lead-crawler/internal/storage/memory"
	"github.com/JakeFAU/remote-lead-crawler/internal/worker"
)

const (
	finalSaveTimeout = 30 * time.Second
	noEmailWarnEvery = 20
)

// Checkpointer persists and restores run snapshots.
type Checkpointer interface {
	MaybeSave(ctx context.Context, cp crawler.RunCheckpoint) (bool, error)
	Save(ctx context.Context, cp crawler.RunCheckpoint, kind checkpoint.Kind) (string, error)
	Load(ctx context.Context) (*crawler.RunCheckpoint, error)
}

// RunRecorder keeps a durable record of runs.
type RunRecorder interface {
	StartRun(ctx context.Context, runID string, target int, startedAt time.Time) error
	FinishRun(ctx context.Context, summary crawler.RunSummary) error
}

// Config controls a run.
type Config struct {
	Target      int
	Concurrency int
	Resume      bool
	Topic       string
	Worker      worker.Config
}

// Deps are the collaborators of a Driver. Sink, Runs and Publisher are optional.
type Deps struct {
	Sources     []crawler.Source
	Terms       []crawler.SearchTerm
	Resolver    worker.Resolver
	Store       *storemem.LeadStore
	Checkpoints Checkpointer
	Sink        crawler.LeadSink
	Runs        RunRecorder
	Publisher   crawler.Publisher
	Clock       crawler.Clock
	IDs         crawler.IDGenerator
}

// Driver is the pipeline state machine: Idle, Running, then one of Completed,
// Interrupted or Failed.
type Driver struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	// mu is the single exclusion domain around dedup, stats, cursor and periodic saves.
	mu         sync.Mutex
	state      crawler.RunState
	runID      string
	stats      crawler.Stats
	startIndex int
	nextPage   map[int]int
	finished   map[int]bool
	byLocation map[string]int
	byTerm     map[string]int
	startedAt  time.Time
	artifact   string
	stopWork   context.CancelFunc
}

// New validates deps and returns an idle Driver.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Driver, error) {
	switch {
	case len(deps.Sources) == 0:
		return nil, fmt.Errorf("%w: no sources", crawler.ErrFatalConfig)
	case len(deps.Terms) == 0:
		return nil, fmt.Errorf("%w: no search terms", crawler.ErrFatalConfig)
	case deps.Resolver == nil:
		return nil, fmt.Errorf("%w: no resolver", crawler.ErrFatalConfig)
	case deps.Checkpoints == nil:
		return nil, fmt.Errorf("%w: no checkpoint manager", crawler.ErrFatalConfig)
	case cfg.Target <= 0:
		return nil, fmt.Errorf("%w: target must be positive", crawler.ErrFatalConfig)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if deps.Store == nil {
		deps.Store = storemem.NewLeadStore(deps.Clock)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		cfg:        cfg,
		deps:       deps,
		logger:     logger.Named("driver"),
		state:      crawler.RunStateIdle,
		nextPage:   map[int]int{},
		finished:   map[int]bool{},
		byLocation: map[string]int{},
		byTerm:     map[string]int{},
	}, nil
}

// Run executes the pipeline until the target is reached, every pair is exhausted,
// ctx is canceled, or a fatal error occurs. Whatever the outcome, exactly one
// terminal checkpoint save is attempted before Run returns.
func (d *Driver) Run(ctx context.Context) (state crawler.RunState, err error) {
	if err := d.begin(ctx); err != nil {
		return crawler.RunStateFailed, err
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.stopWork = cancel
	d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("driver panic: %v", r)
			state = crawler.RunStateFailed
		}
		state = d.finish(ctx, state, err)
	}()

	err = d.fanOut(workCtx)
	state = d.classify(ctx, err)
	if state != crawler.RunStateFailed {
		err = nil
	}
	return state, err
}

func (d *Driver) begin(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != crawler.RunStateIdle {
		return fmt.Errorf("driver already ran (state %s)", d.state)
	}

	runID, err := d.newRunID()
	if err != nil {
		return err
	}
	d.runID = runID
	d.startedAt = d.now()
	d.logger = logging.ForRun(d.logger, runID, d.cfg.Target)

	if d.cfg.Resume {
		if err := d.restore(ctx); err != nil {
			return err
		}
	}

	if d.deps.Runs != nil {
		if err := d.deps.Runs.StartRun(ctx, d.runID, d.cfg.Target, d.startedAt); err != nil {
			d.logger.Warn("record run start failed", zap.Error(err))
		}
	}
	d.state = crawler.RunStateRunning
	d.logger.Info("run started",
		zap.Int("sources", len(d.deps.Sources)),
		zap.Int("terms", len(d.deps.Terms)),
		zap.Int("concurrency", d.cfg.Concurrency),
		zap.Int("restored_leads", d.deps.Store.Len()))
	return nil
}

func (d *Driver) newRunID() (string, error) {
	if d.deps.IDs == nil {
		return fmt.Sprintf("run-%d", d.now().UnixNano()), nil
	}
	id, err := d.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

// restore loads the latest checkpoint. A checkpoint that cannot be read is logged and
// the run starts fresh.
func (d *Driver) restore(ctx context.Context) error {
	cp, err := d.deps.Checkpoints.Load(ctx)
	if err != nil {
		if crawler.Fatal(err) {
			return err
		}
		d.logger.Warn("checkpoint load failed, starting fresh", zap.Error(err))
		return nil
	}
	if cp == nil {
		d.logger.Info("no checkpoint to resume from")
		return nil
	}
	restored := d.deps.Store.Restore(cp.Leads)
	d.stats = cp.Stats
	d.stats.LeadsAccepted = d.deps.Store.Len()
	d.stats.ConsecutiveNoEmail = 0
	for _, lead := range d.deps.Store.Leads() {
		d.tally(lead)
	}

	index := d.pairIndex(cp.Cursor.Source, cp.Cursor.Term)
	d.startIndex = min(max(index, 0), d.pairCount())
	if d.startIndex < d.pairCount() {
		d.nextPage[d.startIndex] = max(cp.Cursor.Page, 0)
	}
	d.logger.Info("resumed from checkpoint",
		zap.String("previous_run_id", cp.RunID),
		zap.Int("leads", restored),
		zap.Int("source", cp.Cursor.Source),
		zap.Int("term", cp.Cursor.Term),
		zap.Int("page", cp.Cursor.Page))
	return nil
}

func (d *Driver) fanOut(ctx context.Context) error {
	queue := memory.NewQueue(d.pairCount())
	for i := d.startIndex; i < d.pairCount(); i++ {
		pair := d.pairAt(i)
		pair.StartPage = d.nextPage[i]
		if err := queue.Enqueue(ctx, pair); err != nil {
			return err
		}
	}
	queue.Close()

	led := &ledger{d: d}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Concurrency; i++ {
		w := worker.New(d.deps.Sources, d.deps.Terms, d.deps.Resolver, led, d.cfg.Worker,
			d.logger.With(zap.Int("worker", i)))
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker %d panic: %v", i, r)
				}
			}()
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			for {
				if led.Done() {
					return nil
				}
				pair, err := queue.Dequeue(gctx)
				if err != nil {
					if errors.Is(err, memory.ErrClosed) || gctx.Err() != nil {
						return nil
					}
					return err
				}
				if err := w.Drain(gctx, pair); err != nil {
					if crawler.Fatal(err) {
						return err
					}
					if gctx.Err() != nil {
						return nil
					}
					return err
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}

// classify maps how the fan-out ended to a terminal state.
func (d *Driver) classify(ctx context.Context, err error) crawler.RunState {
	d.mu.Lock()
	reached := d.targetReachedLocked()
	d.mu.Unlock()
	switch {
	case err != nil:
		return crawler.RunStateFailed
	case reached:
		return crawler.RunStateCompleted
	case ctx.Err() != nil:
		return crawler.RunStateInterrupted
	default:
		return crawler.RunStateCompleted
	}
}

// finish performs the terminal save, records and publishes the summary, and moves the
// driver to its terminal state. It runs on a context detached from ctx's cancellation.
func (d *Driver) finish(ctx context.Context, state crawler.RunState, runErr error) crawler.RunState {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSaveTimeout)
	defer cancel()

	d.mu.Lock()
	cp := d.snapshotLocked()
	d.mu.Unlock()

	kind := checkpoint.KindForState(state)
	uri, err := d.deps.Checkpoints.Save(saveCtx, cp, kind)
	if err != nil {
		d.logger.Error("final checkpoint save failed", zap.String("kind", string(kind)), zap.Error(err))
	}

	d.mu.Lock()
	d.state = state
	d.artifact = uri
	summary := d.summaryLocked()
	d.mu.Unlock()

	fields := []zap.Field{
		zap.String("state", string(state)),
		zap.String("artifact", uri),
		zap.Int("leads", summary.Stats.LeadsAccepted),
		zap.Int("postings_seen", summary.Stats.PostingsSeen),
		zap.Int("rejected_not_remote", summary.Stats.RejectedNotRemote),
		zap.Int("rejected_no_email", summary.Stats.RejectedNoEmail),
		zap.Int("rejected_duplicate", summary.Stats.RejectedDuplicate),
		zap.Int("skipped", summary.Stats.PostingsSkipped),
		zap.Int("terms_exhausted", summary.Stats.TermsExhausted),
		zap.Any("by_location", summary.ByLocation),
		zap.Any("by_term", summary.ByTerm),
	}
	if runErr != nil {
		d.logger.Error("run failed", append(fields, zap.Error(runErr))...)
	} else {
		d.logger.Info("run finished", fields...)
	}

	if d.deps.Runs != nil {
		if err := d.deps.Runs.FinishRun(saveCtx, summary); err != nil {
			d.logger.Warn("record run finish failed", zap.Error(err))
		}
	}
	if d.deps.Publisher != nil && d.cfg.Topic != "" {
		if _, err := d.deps.Publisher.Publish(saveCtx, d.cfg.Topic, summary); err != nil {
			d.logger.Warn("publish run summary failed", zap.String("topic", d.cfg.Topic), zap.Error(err))
		}
	}
	return state
}

// GetLeads returns the accepted leads in discovery order.
func (d *Driver) GetLeads() []crawler.Lead {
	return d.deps.Store.Leads()
}

// GetStats returns a copy of the run counters.
func (d *Driver) GetStats() crawler.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// State returns the current run state.
func (d *Driver) State() crawler.RunState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Summary returns the run summary as of now.
func (d *Driver) Summary() crawler.RunSummary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.summaryLocked()
}

func (d *Driver) snapshotLocked() crawler.RunCheckpoint {
	return crawler.RunCheckpoint{
		RunID:   d.runID,
		Leads:   d.deps.Store.Leads(),
		Cursor:  d.cursorLocked(),
		Stats:   d.stats,
		SavedAt: d.now(),
	}
}

func (d *Driver) summaryLocked() crawler.RunSummary {
	return crawler.RunSummary{
		RunID:      d.runID,
		State:      d.state,
		Stats:      d.stats,
		Artifact:   d.artifact,
		ByLocation: maps.Clone(d.byLocation),
		ByTerm:     maps.Clone(d.byTerm),
		StartedAt:  d.startedAt,
		FinishedAt: d.now(),
	}
}

// cursorLocked is the lowest pair not yet finished and the first page of it that has
// not been fully processed. Pairs after it may have been partly worked; resuming
// repeats them and dedup absorbs the overlap.
func (d *Driver) cursorLocked() crawler.Cursor {
	for i := d.startIndex; i < d.pairCount(); i++ {
		if !d.finished[i] {
			pair := d.pairAt(i)
			return crawler.Cursor{Source: pair.Source, Term: pair.Term, Page: d.nextPage[i]}
		}
	}
	return crawler.Cursor{Source: len(d.deps.Sources)}
}

func (d *Driver) targetReachedLocked() bool {
	return d.deps.Store.Len() >= d.cfg.Target
}

func (d *Driver) tally(lead crawler.Lead) {
	location := lead.Posting.Location
	if location == "" {
		location = "unknown"
	}
	d.byLocation[location]++
	label := lead.Posting.SearchLabel
	if label == "" {
		label = "unknown"
	}
	d.byTerm[label]++
}

func (d *Driver) pairCount() int {
	return len(d.deps.Sources) * len(d.deps.Terms)
}

func (d *Driver) pairIndex(source, term int) int {
	return source*len(d.deps.Terms) + term
}

func (d *Driver) pairAt(index int) crawler.Pair {
	return crawler.Pair{Source: index / len(d.deps.Terms), Term: index % len(d.deps.Terms)}
}

func (d *Driver) now() time.Time {
	if d.deps.Clock == nil {
		return time.Now().UTC()
	}
	return d.deps.Clock.Now()
}
