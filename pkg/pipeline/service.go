// Package pipeline ties resolution, signed API calls, normalization, asset
// download, metadata persistence and eviction into one lookup entry point.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"sharetok/internal/downloader"
	errs "sharetok/pkg/errors"
	"sharetok/pkg/eviction"
	"sharetok/pkg/logger"
	"sharetok/pkg/metrics"
	"sharetok/pkg/storage"
	"sharetok/pkg/store"
	"sharetok/pkg/tiktok"
)

// Resolver follows a content URL to its canonical page
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (*tiktok.Resolution, error)
}

// APIClient performs one signed platform call
type APIClient interface {
	Fetch(ctx context.Context, call tiktok.Call) (json.RawMessage, error)
}

// Downloader fetches the assets of one item
type Downloader interface {
	Run(ctx context.Context, jobs []downloader.Job) ([]downloader.Result, error)
}

// Sweeper enforces the storage budget
type Sweeper interface {
	Sweep(ctx context.Context) (eviction.Report, error)
}

// Outcome says how a lookup was satisfied
type Outcome string

const (
	OutcomeHit      Outcome = "hit"
	OutcomeFetched  Outcome = "fetched"
	OutcomeRestored Outcome = "restored"
)

// Request is one lookup. ItemID takes precedence over URL.
type Request struct {
	URL          string
	ItemID       uint
	Mode         tiktok.Mode
	SessionToken string
}

// Result is a served item
type Result struct {
	Item    *store.Item
	Outcome Outcome
	// SessionToken is the session the item was recorded against, if any
	SessionToken string
}

// View renders the result for callers
func (r *Result) View() ItemView {
	return NewItemView(r.Item)
}

// Service is the retrieval-and-cache pipeline
type Service struct {
	store       store.Store
	storage     *storage.Manager
	resolver    Resolver
	api         APIClient
	downloads   Downloader
	evictor     Sweeper
	resolutions *cache.Cache
	inflight    singleflight.Group
	newToken    func() string
	metrics     *metrics.Metrics
	logger      logger.Logger
}

// Deps are the collaborators of a Service
type Deps struct {
	Store      store.Store
	Storage    *storage.Manager
	Resolver   Resolver
	API        APIClient
	Downloader Downloader
	Evictor    Sweeper
	Metrics    *metrics.Metrics
	Logger     logger.Logger
}

// Option customises a Service
type Option func(*Service)

// WithResolutionCache sets how long a URL to content ID mapping is remembered
func WithResolutionCache(ttl, cleanup time.Duration) Option {
	return func(s *Service) { s.resolutions = cache.New(ttl, cleanup) }
}

// WithTokenGenerator overrides how new session tokens are minted
func WithTokenGenerator(fn func() string) Option {
	return func(s *Service) { s.newToken = fn }
}

func New(deps Deps, opts ...Option) *Service {
	s := &Service{
		store:       deps.Store,
		storage:     deps.Storage,
		resolver:    deps.Resolver,
		api:         deps.API,
		downloads:   deps.Downloader,
		evictor:     deps.Evictor,
		resolutions: cache.New(10*time.Minute, 15*time.Minute),
		newToken:    newSessionToken,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop()
	}
	if s.logger == nil {
		s.logger = logger.GetLogger()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup runs one pipeline invocation. On success the evictor runs before
// returning; its failures are logged and never reach the caller.
func (s *Service) Lookup(ctx context.Context, req Request) (res *Result, err error) {
	start := time.Now()
	mode := req.Mode.String()
	if req.ItemID != 0 {
		mode = "id"
	}

	defer func() {
		outcome := string(errs.TypeOf(err))
		if err == nil {
			outcome = string(res.Outcome)
			s.sweep(ctx)
		}
		s.metrics.RecordLookup(mode, outcome, time.Since(start).Seconds())
	}()

	token, watched, err := s.session(ctx, req)
	if err != nil {
		return nil, err
	}

	var item *store.Item
	var outcome Outcome
	switch {
	case req.ItemID != 0:
		item, outcome, err = s.byID(ctx, req.ItemID)
	case req.Mode == tiktok.ModeRelated:
		item, outcome, err = s.related(ctx, req.URL, watched)
	default:
		item, outcome, err = s.byURL(ctx, req.URL)
	}
	if err != nil {
		s.logger.WarnWithFields("Lookup failed", map[string]interface{}{
			"mode":       mode,
			"url":        req.URL,
			"item_id":    req.ItemID,
			"error_type": string(errs.TypeOf(err)),
			"error":      err.Error(),
		})
		return nil, err
	}

	if token != "" {
		if err := s.remember(ctx, token, item.ContentID); err != nil {
			s.logger.WithError(err).WithField("session", token).Warn("Failed to record watched item")
		}
	}

	s.logger.DebugWithFields("Lookup served", map[string]interface{}{
		"mode":       mode,
		"content_id": item.ContentID,
		"outcome":    string(outcome),
	})
	return &Result{Item: item, Outcome: outcome, SessionToken: token}, nil
}

// Latest returns the most recently created or restored active item
func (s *Service) Latest(ctx context.Context) (*store.Item, error) {
	item, err := s.store.Newest(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NotFound("no items yet")
	}
	return item, err
}

// Sweep runs the evictor once
func (s *Service) Sweep(ctx context.Context) (eviction.Report, error) {
	if s.evictor == nil {
		return eviction.Report{}, nil
	}
	return s.evictor.Sweep(ctx)
}

func (s *Service) sweep(ctx context.Context) {
	report, err := s.Sweep(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.WithError(err).Error("Eviction sweep failed")
		return
	}
	if len(report.Evicted) > 0 {
		s.logger.InfoWithFields("Eviction sweep completed", map[string]interface{}{
			"evicted":     len(report.Evicted),
			"freed_bytes": report.FreedBytes,
			"size_bytes":  report.FinalBytes,
		})
	}
}

func (s *Service) byID(ctx context.Context, id uint) (*store.Item, Outcome, error) {
	item, err := s.store.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", errs.NotFound("no item with that id")
	}
	if err != nil {
		return nil, "", err
	}
	if !item.Deleted {
		return item, OutcomeHit, nil
	}
	return s.ensure(ctx, item.ContentID, "", nil)
}

func (s *Service) byURL(ctx context.Context, rawURL string) (*store.Item, Outcome, error) {
	if contentID, ok := s.knownContentID(rawURL); ok {
		item, err := s.store.FindByContentID(ctx, contentID)
		switch {
		case err == nil && !item.Deleted:
			return item, OutcomeHit, nil
		case err == nil:
			return s.ensure(ctx, contentID, rawURL, nil)
		case !errors.Is(err, store.ErrNotFound):
			return nil, "", err
		}
	}

	res, err := s.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	s.resolutions.SetDefault(rawURL, res.ContentID)

	return s.ensure(ctx, res.ContentID, rawURL, func(ctx context.Context) (*store.Item, error) {
		rec, err := s.retrieve(ctx, res, tiktok.ModeDetail, nil)
		if err != nil {
			return nil, err
		}
		return s.persist(ctx, rec, rawURL)
	})
}

func (s *Service) related(ctx context.Context, rawURL string, watched map[string]struct{}) (*store.Item, Outcome, error) {
	res, err := s.resolver.Resolve(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	s.resolutions.SetDefault(rawURL, res.ContentID)

	rec, err := s.retrieve(ctx, res, tiktok.ModeRelated, watched)
	if err != nil {
		return nil, "", err
	}

	canonical := tiktok.CanonicalURL(rec.Author.Handle, rec.ContentID, !rec.IsVideo())
	return s.ensure(ctx, rec.ContentID, canonical, func(ctx context.Context) (*store.Item, error) {
		return s.persist(ctx, rec, canonical)
	})
}

// knownContentID maps a URL to a content ID without network access when possible
func (s *Service) knownContentID(rawURL string) (string, bool) {
	if id, ok := s.resolutions.Get(rawURL); ok {
		return id.(string), true
	}
	return tiktok.CanonicalContentID(rawURL)
}

type ensured struct {
	item    *store.Item
	outcome Outcome
}

// ensure converges concurrent callers for one content ID on a single
// fetch or restore. The store is re-checked inside the guard, so a caller
// arriving after the work finished sees the persisted item.
func (s *Service) ensure(ctx context.Context, contentID, callerURL string, fetch func(context.Context) (*store.Item, error)) (*store.Item, Outcome, error) {
	v, err, shared := s.inflight.Do(contentID, func() (interface{}, error) {
		work := context.WithoutCancel(ctx)

		item, err := s.store.FindByContentID(work, contentID)
		switch {
		case err == nil && !item.Deleted:
			return ensured{item, OutcomeHit}, nil
		case err == nil:
			restored, err := s.restore(work, item, callerURL)
			if err != nil {
				return nil, err
			}
			return ensured{restored, OutcomeRestored}, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}

		if fetch == nil {
			return nil, errs.NotFound("item " + contentID + " is not cached")
		}
		created, err := fetch(work)
		if err != nil {
			return nil, err
		}
		return ensured{created, OutcomeFetched}, nil
	})
	if err != nil {
		return nil, "", err
	}
	if shared {
		s.logger.DebugWithFields("Joined in-flight lookup", map[string]interface{}{"content_id": contentID})
	}
	e := v.(ensured)
	return e.item, e.outcome, nil
}
