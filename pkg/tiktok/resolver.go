package tiktok

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	errs "sharetok/pkg/errors"
	"sharetok/pkg/logger"
)

// maxPageBytes bounds how much of a resolved page is read into memory
const maxPageBytes = 8 << 20

var contentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Resolution is the outcome of following a caller-supplied link
type Resolution struct {
	FinalURL  *url.URL
	ContentID string
	// Cookies are the Set-Cookie values of the final response
	Cookies []*http.Cookie
	// Body is the final page, kept for bootstrap extraction
	Body []byte
}

// Resolver follows share links to their canonical page
type Resolver struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	cookies    []*http.Cookie
	logger     logger.Logger
}

// ResolverOption customises a Resolver
type ResolverOption func(*Resolver)

func WithResolverUserAgent(ua string) ResolverOption {
	return func(r *Resolver) { r.userAgent = ua }
}

// WithResolverCookies attaches account cookies to every page request
func WithResolverCookies(cookies []*http.Cookie) ResolverOption {
	return func(r *Resolver) { r.cookies = cookies }
}

func WithResolverLogger(log logger.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = log }
}

// NewResolver creates a resolver. Redirects are never followed by the
// transport: the resolver sees every status and Location itself.
func NewResolver(httpClient *http.Client, timeout time.Duration, opts ...ResolverOption) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := *httpClient
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	r := &Resolver{
		httpClient: &c,
		userAgent:  DefaultUserAgent,
		timeout:    timeout,
		logger:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches rawURL, following at most one redirect hop, and derives the
// content ID from the final URL's last path segment.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Resolution, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || target.Host == "" {
		return nil, errs.Resolution(err, fmt.Sprintf("invalid content URL %q", rawURL))
	}
	if target.Scheme == "" {
		target.Scheme = "https"
	}

	resp, err := r.get(ctx, target)
	if err != nil {
		return nil, err
	}

	next := hopTarget(resp, target)
	if next != nil {
		resp.Body.Close()
		r.logger.DebugWithFields("following redirect", map[string]interface{}{
			"from": target.String(),
			"to":   next.String(),
		})
		target = next
		if resp, err = r.get(ctx, target); err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeResolution,
			Message: fmt.Sprintf("page %s returned status %d", target, resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, errs.Resolution(err, "failed to read page")
	}

	contentID, err := ContentIDFromURL(target)
	if err != nil {
		return nil, err
	}

	return &Resolution{
		FinalURL:  target,
		ContentID: contentID,
		Cookies:   resp.Cookies(),
		Body:      body,
	}, nil
}

// hopTarget returns where to re-issue the request, or nil when resp is final
func hopTarget(resp *http.Response, requested *url.URL) *url.URL {
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc, err := resp.Location()
		if err == nil {
			return loc
		}
		return nil
	}
	if resp.Request != nil && resp.Request.URL != nil && resp.Request.URL.String() != requested.String() {
		return resp.Request.URL
	}
	return nil
}

func (r *Resolver) get(ctx context.Context, target *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errs.Resolution(err, "failed to create request")
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for _, c := range r.cookies {
		req.AddCookie(c)
	}

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.WarnWithFields("page request failed", map[string]interface{}{
			"url":      target.String(),
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return nil, errs.Resolution(err, "request to "+target.String()+" failed")
	}
	r.logger.DebugWithFields("page request completed", map[string]interface{}{
		"url":      target.String(),
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})
	return resp, nil
}

// ContentIDFromURL returns the last path segment of u, which must be a
// non-empty identifier
func ContentIDFromURL(u *url.URL) (string, error) {
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return "", errs.Resolution(nil, fmt.Sprintf("no content id in %s", u))
	}
	id := path.Base(p)
	if !contentIDPattern.MatchString(id) {
		return "", errs.Resolution(nil, fmt.Sprintf("ambiguous content id %q in %s", id, u))
	}
	return id, nil
}

var canonicalPath = regexp.MustCompile(`^/@[^/]+/(?:video|photo)/([0-9]+)$`)

// CanonicalContentID extracts the content ID from an already canonical item
// URL without any network access. Short links report false.
func CanonicalContentID(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host != "tiktok.com" && !strings.HasSuffix(host, ".tiktok.com") {
		return "", false
	}
	m := canonicalPath.FindStringSubmatch(u.Path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// CanonicalURL builds the item page URL for a handle and content ID
func CanonicalURL(handle, contentID string, carousel bool) string {
	kind := "video"
	if carousel {
		kind = "photo"
	}
	return fmt.Sprintf("%s/@%s/%s/%s", BaseURL, handle, kind, contentID)
}
