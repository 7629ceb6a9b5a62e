package dispatcher

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/metrics"
)

// ledger is the worker-facing view of the driver's shared state. Every method takes
// the driver lock, so dedup, counters, cursor and periodic saves never interleave.
type ledger struct {
	d *Driver
}

func (l *ledger) Done() bool {
	l.d.mu.Lock()
	defer l.d.mu.Unlock()
	return l.d.targetReachedLocked()
}

func (l *ledger) Observe(source string, outcome crawler.Outcome) {
	metrics.ObservePosting(source, string(outcome))

	d := l.d
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Record(outcome)
	if outcome == crawler.OutcomeNoEmail && d.stats.ConsecutiveNoEmail%noEmailWarnEvery == 0 {
		d.logger.Warn("many postings in a row without an email",
			zap.Int("consecutive", d.stats.ConsecutiveNoEmail))
	}
}

func (l *ledger) Known(p crawler.Posting) bool {
	return l.d.deps.Store.Contains(p)
}

// Offer accepts the lead unless the target is already met (recorded as skipped) or it
// is a duplicate, then checks whether a periodic checkpoint is due. Reaching the target
// stops the workers.
func (l *ledger) Offer(ctx context.Context, p crawler.Posting, emails []string) bool {
	d := l.d
	d.mu.Lock()
	if d.targetReachedLocked() {
		d.stats.Record(crawler.OutcomeSkipped)
		d.mu.Unlock()
		metrics.ObservePosting(p.SourceID, string(crawler.OutcomeSkipped))
		return false
	}
	lead, ok := d.deps.Store.Offer(p, emails)
	if !ok {
		d.stats.Record(crawler.OutcomeDuplicate)
		d.mu.Unlock()
		metrics.ObservePosting(p.SourceID, string(crawler.OutcomeDuplicate))
		return false
	}
	d.stats.Record(crawler.OutcomeAccepted)
	d.tally(lead)
	reached := d.targetReachedLocked()

	if _, err := d.deps.Checkpoints.MaybeSave(ctx, d.snapshotLocked()); err != nil {
		d.logger.Error("periodic checkpoint failed, continuing in memory", zap.Error(err))
	}
	runID, stop := d.runID, d.stopWork
	d.mu.Unlock()

	metrics.ObservePosting(p.SourceID, string(crawler.OutcomeAccepted))
	metrics.ObserveLead(p.SourceID)
	if reached && stop != nil {
		d.logger.Info("target reached", zap.Int("target", d.cfg.Target))
		stop()
	}

	if d.deps.Sink != nil {
		if err := d.deps.Sink.StoreLead(context.WithoutCancel(ctx), runID, lead); err != nil {
			d.logger.Warn("lead sink failed", zap.String("ref", lead.Posting.ExternalRef), zap.Error(err))
		}
	}
	return true
}

func (l *ledger) Progress(pair crawler.Pair, nextPage int, finished bool) {
	d := l.d
	d.mu.Lock()
	defer d.mu.Unlock()
	index := d.pairIndex(pair.Source, pair.Term)
	if nextPage > d.nextPage[index] {
		d.nextPage[index] = nextPage
	}
	if finished {
		d.finished[index] = true
	}
}

func (l *ledger) TermExhausted(_ crawler.Pair) {
	d := l.d
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.TermsExhausted++
}
