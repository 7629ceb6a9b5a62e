// Package worker drains one (source, term) pair: it pages through results and runs
// every posting through extraction, classification, email discovery and dedup.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/remote-lead-crawler/internal/classifier"
	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/extract"
)

// Resolver finds contact emails for a posting.
type Resolver interface {
	Resolve(ctx context.Context, p crawler.Posting) ([]string, error)
}

// Ledger is the run-wide shared state a worker reports into. Implementations
// serialize access themselves.
type Ledger interface {
	// Done reports whether the run has what it needs and workers should stop.
	Done() bool
	// Observe records a posting outcome other than acceptance.
	Observe(source string, outcome crawler.Outcome)
	// Known reports whether a lead with p's identity was already accepted.
	Known(p crawler.Posting) bool
	// Offer hands a resolved posting to the dedup store and reports acceptance.
	Offer(ctx context.Context, p crawler.Posting, emails []string) bool
	// Progress records that pages before nextPage of pair are fully processed.
	Progress(pair crawler.Pair, nextPage int, finished bool)
	// TermExhausted records a pair abandoned because its origin gave out.
	TermExhausted(pair crawler.Pair)
}

// Config controls Worker behavior.
type Config struct {
	MaxPagesPerTerm    int
	MaxPostingsPerPage int
	DescriptionLimit   int
}

// Worker drains pairs against a fixed set of sources and terms.
type Worker struct {
	sources  []crawler.Source
	terms    []crawler.SearchTerm
	resolver Resolver
	ledger   Ledger
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	sources []crawler.Source,
	terms []crawler.SearchTerm,
	resolver Resolver,
	ledger Ledger,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MaxPagesPerTerm <= 0 {
		cfg.MaxPagesPerTerm = 10
	}
	if cfg.DescriptionLimit <= 0 {
		cfg.DescriptionLimit = extract.DescriptionLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		sources:  sources,
		terms:    terms,
		resolver: resolver,
		ledger:   ledger,
		cfg:      cfg,
		logger:   logger,
	}
}

// Drain processes pair until its pages run out, the ledger is done, or ctx ends.
// Only cancellation and run-fatal errors are returned; everything else is contained
// to the posting, page or term it happened in.
func (w *Worker) Drain(ctx context.Context, pair crawler.Pair) error {
	if pair.Source < 0 || pair.Source >= len(w.sources) || pair.Term < 0 || pair.Term >= len(w.terms) {
		return fmt.Errorf("pair %+v out of range: %w", pair, crawler.ErrFatalConfig)
	}
	src := w.sources[pair.Source]
	term := w.terms[pair.Term]
	logger := w.logger.With(zap.String("source", src.ID()), zap.String("term", term.Label()))
	ctx = crawler.WithScope(ctx, pair.Scope())

	for page := pair.StartPage; page < w.cfg.MaxPagesPerTerm; page++ {
		if w.ledger.Done() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		postings, hasNext, err := listPage(ctx, src, term, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if crawler.Fatal(err) {
				return err
			}
			if crawler.EndsTerm(err) {
				logger.Info("term exhausted", zap.Int("page", page), zap.Error(err))
				w.ledger.TermExhausted(pair)
			} else {
				logger.Warn("skip term: listing failed", zap.Int("page", page), zap.Error(err))
			}
			w.ledger.Progress(pair, page, true)
			return nil
		}
		logger.Debug("listed page", zap.Int("page", page), zap.Int("postings", len(postings)), zap.Bool("has_next", hasNext))

		if w.cfg.MaxPostingsPerPage > 0 && len(postings) > w.cfg.MaxPostingsPerPage {
			postings = postings[:w.cfg.MaxPostingsPerPage]
		}
		for _, p := range postings {
			if w.ledger.Done() {
				return nil
			}
			if err := w.process(ctx, src, p, logger); err != nil {
				return err
			}
		}

		if !hasNext {
			w.ledger.Progress(pair, page+1, true)
			return nil
		}
		w.ledger.Progress(pair, page+1, false)
	}
	w.ledger.Progress(pair, w.cfg.MaxPagesPerTerm, true)
	return nil
}

// listPage calls ListPostings, turning a panic (typically a changed page layout) into an
// ordinary listing error so only the term is abandoned.
func listPage(ctx context.Context, src crawler.Source, term crawler.SearchTerm, page int) (postings []crawler.Posting, hasNext bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			postings, hasNext = nil, false
			err = fmt.Errorf("list %s page %d: panic: %v", src.ID(), page, r)
		}
	}()
	return src.ListPostings(ctx, term, page)
}

// process runs one posting through the pipeline. Panics and non-fatal errors become a
// one-line skip notice.
func (w *Worker) process(ctx context.Context, src crawler.Source, listed crawler.Posting, logger *zap.Logger) (err error) {
	sourceID := src.ID()
	w.ledger.Observe(sourceID, crawler.OutcomeSeen)
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("skip posting: panic", zap.String("ref", listed.ExternalRef), zap.Any("panic", r))
			w.ledger.Observe(sourceID, crawler.OutcomeSkipped)
			err = nil
		}
	}()

	detail, err := src.FetchDetail(ctx, listed)
	if err != nil {
		if stop := w.stopError(ctx, err); stop != nil {
			w.ledger.Observe(sourceID, crawler.OutcomeSkipped)
			return stop
		}
		logger.Warn("skip posting: detail failed", zap.String("ref", listed.ExternalRef), zap.Error(err))
		w.ledger.Observe(sourceID, crawler.OutcomeSkipped)
		return nil
	}
	if detail.SourceID == "" {
		detail.SourceID = sourceID
	}
	posting := extract.Normalize(detail, w.cfg.DescriptionLimit)

	if w.ledger.Known(posting) {
		w.ledger.Observe(sourceID, crawler.OutcomeDuplicate)
		return nil
	}
	if !classifier.IsRemote(posting) {
		w.ledger.Observe(sourceID, crawler.OutcomeNotRemote)
		return nil
	}

	emails, err := w.resolver.Resolve(ctx, posting)
	if err != nil {
		if stop := w.stopError(ctx, err); stop != nil {
			w.ledger.Observe(sourceID, crawler.OutcomeSkipped)
			return stop
		}
		logger.Warn("skip posting: resolve failed", zap.String("ref", posting.ExternalRef), zap.Error(err))
		w.ledger.Observe(sourceID, crawler.OutcomeSkipped)
		return nil
	}
	if len(emails) == 0 {
		w.ledger.Observe(sourceID, crawler.OutcomeNoEmail)
		return nil
	}

	if w.ledger.Offer(ctx, posting, emails) {
		logger.Info("lead accepted",
			zap.String("title", posting.Title),
			zap.String("company", posting.Company),
			zap.Strings("emails", emails))
	}
	return nil
}

// stopError returns the error that should unwind the worker, or nil when err is contained.
func (w *Worker) stopError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if crawler.Fatal(err) {
		return err
	}
	return nil
}
