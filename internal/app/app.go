// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/remote-lead-crawler/internal/api"
	"github.com/JakeFAU/remote-lead-crawler/internal/checkpoint"
	"github.com/JakeFAU/remote-lead-crawler/internal/clock/system"
	"github.com/JakeFAU/remote-lead-crawler/internal/config"
	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/remote-lead-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/remote-lead-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/remote-lead-crawler/internal/id/uuid"
	"github.com/JakeFAU/remote-lead-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/remote-lead-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/remote-lead-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/remote-lead-crawler/internal/resolver"
	"github.com/JakeFAU/remote-lead-crawler/internal/source/linkedin"
	"github.com/JakeFAU/remote-lead-crawler/internal/source/remoteok"
	"github.com/JakeFAU/remote-lead-crawler/internal/storage/gcs"
	"github.com/JakeFAU/remote-lead-crawler/internal/storage/local"
	storemem "github.com/JakeFAU/remote-lead-crawler/internal/storage/memory"
	"github.com/JakeFAU/remote-lead-crawler/internal/storage/postgres"
	"github.com/JakeFAU/remote-lead-crawler/internal/worker"
)

// Options carries the per-invocation overrides of the run command.
type Options struct {
	// Target overrides run.target when positive.
	Target int
	Resume bool
}

// App holds the services of one pipeline run. It is built once at startup and
// closed when the command finishes.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	driver  *dispatcher.Driver
	server  *api.Server
	closers []func()
}

// New wires every component named by cfg. Optional integrations (headless profile
// fetching, GCS mirroring, Postgres, Pub/Sub, the HTTP API) are only built when
// configured. A failure part-way through releases what was already opened.
func New(ctx context.Context, cfg config.Config, opts Options, logger *zap.Logger) (_ *App, err error) {
	if opts.Target > 0 {
		cfg.Run.Target = opts.Target
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	clock := system.New()
	throttle := ratelimit.New(ratelimit.Config{
		MinInterval:      time.Duration(cfg.Throttle.MinIntervalMs) * time.Millisecond,
		Jitter:           time.Duration(cfg.Throttle.JitterMs) * time.Millisecond,
		FailureThreshold: cfg.Throttle.FailureThreshold,
	})
	fetcher := ratelimit.NewFetcher(collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: !cfg.HTTP.IgnoreRobots,
		Timeout:       cfg.FetchTimeout(),
	}), throttle)

	profileFetcher, err := a.buildProfileFetcher(throttle)
	if err != nil {
		return nil, err
	}

	sources, err := buildSources(cfg, fetcher)
	if err != nil {
		return nil, err
	}

	res, err := resolver.New(resolver.Config{
		MaxPages:        cfg.Resolver.MaxPages,
		MaxContactLinks: cfg.Resolver.MaxContactLinks,
		FetchTimeout:    cfg.FetchTimeout(),
	}, resolver.DefaultStages(), fetcher, profileFetcher, logger)
	if err != nil {
		return nil, fmt.Errorf("init resolver: %w", err)
	}

	checkpoints, err := a.buildCheckpoints(ctx, clock)
	if err != nil {
		return nil, err
	}

	deps := dispatcher.Deps{
		Sources:     sources,
		Terms:       cfg.SearchTerms(),
		Resolver:    res,
		Store:       storemem.NewLeadStore(clock),
		Checkpoints: checkpoints,
		Clock:       clock,
		IDs:         uuid.New(),
	}
	if err := a.attachPostgres(ctx, &deps); err != nil {
		return nil, err
	}
	if err := a.attachPublisher(ctx, &deps); err != nil {
		return nil, err
	}

	a.driver, err = dispatcher.New(dispatcher.Config{
		Target:      cfg.Run.Target,
		Concurrency: cfg.Run.Concurrency,
		Resume:      opts.Resume,
		Topic:       cfg.PubSub.TopicName,
		Worker: worker.Config{
			MaxPagesPerTerm:    cfg.Run.MaxPagesPerTerm,
			MaxPostingsPerPage: cfg.Run.MaxPostingsPerPage,
			DescriptionLimit:   cfg.Resolver.DescriptionLimit,
		},
	}, deps, logger)
	if err != nil {
		return nil, fmt.Errorf("init driver: %w", err)
	}

	if cfg.Server.Port > 0 {
		a.server = api.NewServer(a.driver, logger)
	}

	logger.Info("application services initialized",
		zap.Int("target", cfg.Run.Target),
		zap.Int("concurrency", cfg.Run.Concurrency),
		zap.Strings("sources", cfg.Run.Sources),
		zap.Int("search_terms", len(deps.Terms)),
		zap.Bool("resume", opts.Resume),
	)
	return a, nil
}

func (a *App) buildProfileFetcher(throttle *ratelimit.Controller) (crawler.Fetcher, error) {
	if !a.cfg.Headless.Enabled {
		return nil, nil
	}
	browser, err := headless.NewChromedp(headless.Config{
		UserDataDir:       a.cfg.Headless.UserDataDir,
		UserAgent:         a.cfg.HTTP.UserAgent,
		NavigationTimeout: a.cfg.NavTimeout(),
		MaxParallel:       a.cfg.Run.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("init headless fetcher: %w", err)
	}
	a.closers = append(a.closers, browser.Close)
	a.logger.Info("headless profile fetcher enabled", zap.String("user_data_dir", a.cfg.Headless.UserDataDir))
	return ratelimit.NewFetcher(browser, throttle), nil
}

func buildSources(cfg config.Config, fetcher crawler.Fetcher) ([]crawler.Source, error) {
	sources := make([]crawler.Source, 0, len(cfg.Run.Sources))
	for _, name := range cfg.Run.Sources {
		switch name {
		case config.SourceLinkedIn:
			sources = append(sources, linkedin.New(cfg.LinkedIn.BaseURL, fetcher))
		case config.SourceRemoteOK:
			sources = append(sources, remoteok.New(cfg.RemoteOK.APIURL, fetcher))
		default:
			return nil, fmt.Errorf("%w: unknown source %q", crawler.ErrFatalConfig, name)
		}
	}
	return sources, nil
}

func (a *App) buildCheckpoints(ctx context.Context, clock crawler.Clock) (*checkpoint.Manager, error) {
	store, err := local.New(local.Config{BaseDir: a.cfg.Checkpoint.Dir})
	if err != nil {
		return nil, fmt.Errorf("%w: checkpoint dir: %w", crawler.ErrFatalConfig, err)
	}

	var mirrors []crawler.BlobStore
	if a.cfg.Checkpoint.GCSBucket != "" {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close gcs client failed", zap.Error(err))
			}
		})
		mirror, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Checkpoint.GCSBucket, Prefix: a.cfg.Checkpoint.GCSPrefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs mirror: %w", err)
		}
		mirrors = append(mirrors, mirror)
		a.logger.Info("mirroring checkpoints to gcs", zap.String("bucket", a.cfg.Checkpoint.GCSBucket))
	}

	mgr, err := checkpoint.NewManager(store, mirrors, checkpoint.Config{
		Every:            a.cfg.Checkpoint.Every,
		FinalName:        a.cfg.Checkpoint.FinalName,
		DescriptionLimit: a.cfg.Resolver.DescriptionLimit,
	}, a.logger, clock)
	if err != nil {
		return nil, fmt.Errorf("init checkpoint manager: %w", err)
	}
	return mgr, nil
}

func (a *App) attachPostgres(ctx context.Context, deps *dispatcher.Deps) error {
	if a.cfg.DB.DSN == "" {
		return nil
	}
	pool, err := postgres.Connect(ctx, postgres.Config{DSN: a.cfg.DB.DSN, Table: a.cfg.DB.Table})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pool.Close)

	leads, err := postgres.NewLeadStoreWithPool(pool, a.cfg.DB.Table)
	if err != nil {
		return fmt.Errorf("init lead sink: %w", err)
	}
	if err := leads.EnsureSchema(ctx); err != nil {
		return err
	}
	runs, err := postgres.NewRunStoreWithPool(pool, a.cfg.DB.Table+"_runs")
	if err != nil {
		return fmt.Errorf("init run store: %w", err)
	}
	if err := runs.EnsureSchema(ctx); err != nil {
		return err
	}
	deps.Sink = leads
	deps.Runs = runs
	a.logger.Info("persisting leads to postgres", zap.String("table", a.cfg.DB.Table))
	return nil
}

func (a *App) attachPublisher(ctx context.Context, deps *dispatcher.Deps) error {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		deps.Publisher = memory.New()
		return nil
	}
	client, err := pubsubpublisher.Connect(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return err
	}
	pub := pubsubpublisher.New(client)
	a.closers = append(a.closers, func() {
		pub.Close()
		if err := client.Close(); err != nil {
			a.logger.Warn("close pubsub client failed", zap.Error(err))
		}
	})
	deps.Publisher = pub
	a.logger.Info("publishing run summaries", zap.String("topic", a.cfg.PubSub.TopicName))
	return nil
}

// Driver exposes the run state machine.
func (a *App) Driver() *dispatcher.Driver {
	return a.driver
}

// Run executes the pipeline. When the HTTP API is enabled it serves for the lifetime
// of the run and is shut down once the run reaches a terminal state.
func (a *App) Run(ctx context.Context) (crawler.RunState, error) {
	if a.server == nil {
		return a.driver.Run(ctx)
	}

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()

	var (
		state  crawler.RunState
		runErr error
	)
	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
		if err := a.server.Serve(gctx, addr); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer stopServe()
		state, runErr = a.driver.Run(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		a.logger.Warn("api server stopped with error", zap.Error(err))
	}
	return state, runErr
}

// Close releases every opened integration in reverse order of construction.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}
