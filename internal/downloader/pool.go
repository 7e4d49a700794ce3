package downloader

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"sharetok/pkg/logger"
	"sharetok/pkg/metrics"
)

// Job is a single asset download task
type Job struct {
	// OwnerID is the content or author ID the asset belongs to
	OwnerID string
	URL     string
	Public  string
	Role    Role
}

// Result is the outcome of one job
type Result struct {
	Job      Job
	Bytes    int64
	Duration time.Duration
	Err      error
}

// OK reports whether the asset landed on disk
func (r Result) OK() bool {
	return r.Err == nil
}

// AssetFetcher downloads a single asset
type AssetFetcher interface {
	Fetch(ctx context.Context, job Job) (int64, error)
}

// Pool downloads the assets of one item concurrently, at most limit at a time
type Pool struct {
	limit   int
	fetcher AssetFetcher
	metrics *metrics.Metrics
	logger  logger.Logger
}

// NewPool creates a download pool
func NewPool(limit int, fetcher AssetFetcher, m *metrics.Metrics, log logger.Logger) *Pool {
	if limit < 1 {
		limit = 1
	}
	if m == nil {
		m = metrics.Nop()
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{limit: limit, fetcher: fetcher, metrics: m, logger: log}
}

// Run downloads every job and returns one result per job, in job order.
// The first primary failure cancels the remaining downloads and is returned;
// secondary failures are only recorded in their result.
func (p *Pool) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)

	p.logger.DebugWithFields("Starting asset downloads", map[string]interface{}{
		"jobs":  len(jobs),
		"limit": p.limit,
	})

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			start := time.Now()
			n, err := p.fetcher.Fetch(gctx, job)
			results[i] = Result{Job: job, Bytes: n, Duration: time.Since(start), Err: err}

			logger.LogDownload(p.logger, job.OwnerID, string(job.Role), n, err)
			p.metrics.RecordDownload(string(job.Role), n, err)

			if err != nil && job.Role.Primary() {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	return results, err
}
