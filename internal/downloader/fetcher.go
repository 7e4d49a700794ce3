package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	errs "sharetok/pkg/errors"
	"sharetok/pkg/logger"
	"sharetok/pkg/ratelimit"
	"sharetok/pkg/storage"
)

// Role tells what an asset is for and so which media family it must be
type Role string

const (
	RoleVideo  Role = "video"
	RoleCover  Role = "cover"
	RoleImage  Role = "image"
	RoleAudio  Role = "audio"
	RoleAvatar Role = "avatar"
)

// Family is the content-type prefix the response must carry
func (r Role) Family() string {
	switch r {
	case RoleVideo:
		return "video"
	case RoleAudio:
		return "audio"
	default:
		return "image"
	}
}

// Primary reports whether a failure of this role invalidates the item
func (r Role) Primary() bool {
	return r == RoleVideo || r == RoleImage
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"

var errInactive = errors.New("transfer stalled")

// Fetcher streams single assets into the storage tree
type Fetcher struct {
	httpClient *http.Client
	storage    *storage.Manager
	limiters   *ratelimit.PerHost
	inactivity time.Duration
	userAgent  string
	logger     logger.Logger
}

// FetcherOption customises a Fetcher
type FetcherOption func(*Fetcher)

func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.httpClient = c }
}

func WithHostLimits(l *ratelimit.PerHost) FetcherOption {
	return func(f *Fetcher) { f.limiters = l }
}

// WithInactivityTimeout aborts a transfer when no bytes arrive for d
func WithInactivityTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.inactivity = d }
}

func WithFetcherLogger(log logger.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = log }
}

// NewFetcher creates a fetcher writing under store
func NewFetcher(store *storage.Manager, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{},
		storage:    store,
		inactivity: 30 * time.Second,
		userAgent:  defaultUserAgent,
		logger:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}

	c := *f.httpClient
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	f.httpClient = &c
	return f
}

// Fetch downloads job.URL to job.Public. Any stale file at the target is
// removed first. On failure nothing is left on disk.
func (f *Fetcher) Fetch(ctx context.Context, job Job) (int64, error) {
	local, part, err := f.storage.Prepare(job.Public)
	if err != nil {
		return 0, errs.AssetDownload(err, job.Public)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var stall *time.Timer
	if f.inactivity > 0 {
		stall = time.AfterFunc(f.inactivity, func() { cancel(errInactive) })
		defer stall.Stop()
	}

	resp, err := f.get(ctx, job.URL)
	if err != nil {
		return 0, f.fail(ctx, job, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp, job.Role); err != nil {
		return 0, f.fail(ctx, job, err)
	}

	n, err := f.stream(part, &activityReader{r: resp.Body, timer: stall, d: f.inactivity})
	if err != nil {
		os.Remove(part)
		return n, f.fail(ctx, job, err)
	}
	if n != resp.ContentLength {
		os.Remove(part)
		return n, f.fail(ctx, job, fmt.Errorf("wrote %d bytes, server declared %d", n, resp.ContentLength))
	}
	if err := f.storage.Commit(part, local); err != nil {
		return n, f.fail(ctx, job, err)
	}
	return n, nil
}

// fail prefers the inactivity cause over the generic cancellation error
func (f *Fetcher) fail(ctx context.Context, job Job, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, errInactive) {
		err = cause
	}
	return errs.AssetDownload(err, job.Public)
}

// get issues the request, re-issuing it once against a redirect target
func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		return nil, fmt.Errorf("invalid asset URL %q", rawURL)
	}

	resp, err := f.do(ctx, target)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc, err := resp.Location()
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("redirect without location: %w", err)
		}
		return f.do(ctx, loc)
	}
	return resp, nil
}

func (f *Fetcher) do(ctx context.Context, target *url.URL) (*http.Response, error) {
	if f.limiters != nil {
		if err := f.limiters.For(target.Host).Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "identity;q=1, *;q=0")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Range", "bytes=0-")
	req.Header.Set("Referer", "https://www.tiktok.com/")
	return f.httpClient.Do(req)
}

func checkResponse(resp *http.Response, role Role) error {
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, role.Family()+"/") {
		return fmt.Errorf("content type %q is not %s", resp.Header.Get("Content-Type"), role.Family())
	}
	if resp.ContentLength <= 0 {
		return fmt.Errorf("missing or zero content length")
	}
	return nil
}

func (f *Fetcher) stream(part string, r io.Reader) (int64, error) {
	file, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	n, err := io.Copy(file, r)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// activityReader pushes the stall deadline forward whenever bytes arrive
type activityReader struct {
	r     io.Reader
	timer *time.Timer
	d     time.Duration
}

func (a *activityReader) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if n > 0 && a.timer != nil {
		a.timer.Reset(a.d)
	}
	return n, err
}
