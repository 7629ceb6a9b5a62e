// Package resolver discovers contact emails for a posting through an ordered chain of
// increasingly indirect lookups. The chain short-circuits on the first stage that finds
// an address. All stages of one posting share a Session that caps the number of pages
// fetched and never fetches the same URL twice.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/metrics"
)

// MaxPagesPerPosting is the hard cap on pages fetched for one posting.
const MaxPagesPerPosting = 6

// Stage is one step of the fallback chain. Run returns the addresses it found, or nil.
type Stage struct {
	Name string
	Run  func(ctx context.Context, s *Session) []string
}

// Config bounds a Resolver.
type Config struct {
	// MaxPages is clamped to MaxPagesPerPosting.
	MaxPages        int
	MaxContactLinks int
	FetchTimeout    time.Duration
}

// Resolver runs a list of stages for each posting.
type Resolver struct {
	cfg            Config
	stages         []Stage
	fetcher        crawler.Fetcher
	profileFetcher crawler.Fetcher
	logger         *zap.Logger
}

// New builds a Resolver over stages. profileFetcher serves origin profile pages and may
// be nil, in which case fetcher is used.
func New(cfg Config, stages []Stage, fetcher, profileFetcher crawler.Fetcher, logger *zap.Logger) (*Resolver, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: resolver requires a fetcher", crawler.ErrFatalConfig)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: resolver requires at least one stage", crawler.ErrFatalConfig)
	}
	if cfg.MaxPages <= 0 || cfg.MaxPages > MaxPagesPerPosting {
		cfg.MaxPages = MaxPagesPerPosting
	}
	if cfg.MaxContactLinks <= 0 {
		cfg.MaxContactLinks = 3
	}
	if profileFetcher == nil {
		profileFetcher = fetcher
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		cfg:            cfg,
		stages:         stages,
		fetcher:        fetcher,
		profileFetcher: profileFetcher,
		logger:         logger.Named("resolver"),
	}, nil
}

// Resolve returns the first non-empty address list produced by the stages, or nil.
// Fetch failures inside a stage count as "found nothing". An error is returned only when
// ctx ends or a fetch capability is lost.
func (r *Resolver) Resolve(ctx context.Context, p crawler.Posting) ([]string, error) {
	s := r.newSession(p)
	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p.ExternalRef, err)
		}
		emails := r.runStage(ctx, stage, s)
		metrics.ObserveResolverStage(stage.Name, len(emails) > 0)
		if s.fatal != nil {
			return nil, s.fatal
		}
		if len(emails) > 0 {
			r.logger.Debug("email found",
				zap.String("ref", p.ExternalRef),
				zap.String("stage", stage.Name),
				zap.Int("pages", s.pages))
			return emails, nil
		}
	}
	return nil, nil
}

func (r *Resolver) runStage(ctx context.Context, stage Stage, s *Session) (emails []string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("skip",
				zap.String("ref", s.Posting.ExternalRef),
				zap.String("stage", stage.Name),
				zap.String("reason", fmt.Sprint(rec)))
			emails = nil
		}
	}()
	return stage.Run(ctx, s)
}

func (r *Resolver) newSession(p crawler.Posting) *Session {
	return &Session{
		Posting:         p,
		maxPages:        r.cfg.MaxPages,
		maxContactLinks: r.cfg.MaxContactLinks,
		fetchTimeout:    r.cfg.FetchTimeout,
		fetcher:         r.fetcher,
		profileFetcher:  r.profileFetcher,
		visited:         make(map[string]struct{}),
		logger:          r.logger,
	}
}

func isCapabilityLoss(err error) bool {
	return errors.Is(err, crawler.ErrCapabilityLost)
}
