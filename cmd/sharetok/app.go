package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
	"sharetok/internal/downloader"
	"sharetok/pkg/auth"
	"sharetok/pkg/config"
	"sharetok/pkg/eviction"
	"sharetok/pkg/logger"
	"sharetok/pkg/metrics"
	"sharetok/pkg/pipeline"
	"sharetok/pkg/ratelimit"
	"sharetok/pkg/storage"
	"sharetok/pkg/store"
	"sharetok/pkg/tiktok"
)

// app is the fully wired pipeline and the resources behind it
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	storage  *storage.Manager
	service  *pipeline.Service
	evictor  *eviction.Evictor
	registry *prometheus.Registry
	account  *auth.Account
	logger   logger.Logger
}

// newApp opens the database and storage root and builds every pipeline stage
// from cfg
func newApp(cfg *config.Config) (*app, error) {
	log := logger.GetLogger()

	db, err := store.Connect(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	fs, err := storage.NewManager(cfg.Storage.Root)
	if err != nil {
		return nil, err
	}

	account, err := loadAccount(cfg)
	if err != nil {
		return nil, err
	}
	userAgent := cfg.Platform.UserAgent
	var cookies []*http.Cookie
	if account != nil {
		cookies = account.HTTPCookies()
		if account.UserAgent != "" {
			userAgent = account.UserAgent
		}
		log.WithField("account", account.Name).Info("Using stored platform account")
	} else {
		log.Warn("No platform account configured, requests are anonymous")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	items := store.New(db)

	resolver := tiktok.NewResolver(nil, cfg.Platform.ResolveTimeout,
		tiktok.WithResolverUserAgent(userAgent),
		tiktok.WithResolverCookies(cookies),
		tiktok.WithResolverLogger(log.WithField("component", "resolver")),
	)

	client := tiktok.NewClient(&http.Client{Timeout: cfg.Platform.APITimeout},
		tiktok.NewHTTPSigner(cfg.Signer.Endpoint, cfg.Signer.Timeout),
		tiktok.WithBaseURL(cfg.Platform.BaseURL),
		tiktok.WithUserAgent(userAgent),
		tiktok.WithCookies(cookies),
		tiktok.WithLimiter(ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)),
		tiktok.WithLogger(log.WithField("component", "api")),
	)

	fetcher := downloader.NewFetcher(fs,
		downloader.WithHostLimits(ratelimit.NewPerHost(cfg.RateLimit.RequestsPerMinute*4, cfg.RateLimit.BurstSize)),
		downloader.WithInactivityTimeout(cfg.Download.InactivityTimeout),
		downloader.WithFetcherLogger(log.WithField("component", "fetcher")),
	)
	pool := downloader.NewPool(cfg.Download.ConcurrentDownloads, fetcher, m, log.WithField("component", "downloads"))

	evictor := eviction.New(items, fs, cfg.Storage.MaxBytes, m, log.WithField("component", "evictor"))

	service := pipeline.New(pipeline.Deps{
		Store:      items,
		Storage:    fs,
		Resolver:   resolver,
		API:        client,
		Downloader: pool,
		Evictor:    evictor,
		Metrics:    m,
		Logger:     log.WithField("component", "pipeline"),
	}, pipeline.WithResolutionCache(cfg.Cache.ResolutionTTL, cfg.Cache.CleanupInterval))

	return &app{
		cfg:      cfg,
		db:       db,
		storage:  fs,
		service:  service,
		evictor:  evictor,
		registry: registry,
		account:  account,
		logger:   log,
	}, nil
}

func (a *app) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// loadAccount picks the platform account: --cookies first, then the named
// account, then whatever the credential stores hold by default. No account at
// all is not an error.
func loadAccount(cfg *config.Config) (*auth.Account, error) {
	if cookieFlag != "" {
		mem := auth.NewMemoryStore()
		account := &auth.Account{Name: "cli", Cookies: auth.ParseCookieHeader(cookieFlag)}
		if err := auth.NewManagerWithStores(mem).Store(account); err != nil {
			return nil, fmt.Errorf("invalid --cookies: %w", err)
		}
		return account, nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	if cfg.Platform.Account != "" {
		return manager.Retrieve(cfg.Platform.Account)
	}
	account, err := manager.RetrieveDefault()
	if errors.Is(err, auth.ErrCredentialsNotFound) {
		return nil, nil
	}
	return account, err
}
