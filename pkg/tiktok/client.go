package tiktok

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	errs "sharetok/pkg/errors"
	"sharetok/pkg/logger"
	"sharetok/pkg/ratelimit"
)

const maxAPIBytes = 16 << 20

// Client issues signed calls against the platform's item endpoints
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	headers    map[string]string
	signer     Signer
	limiter    ratelimit.Limiter
	cookies    []*http.Cookie
	logger     logger.Logger
}

// ClientOption customises a Client
type ClientOption func(*Client)

func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = base }
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

func WithLimiter(l ratelimit.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithCookies sends account cookies on every call. A cookie of the same name
// carried by the call itself wins.
func WithCookies(cookies []*http.Cookie) ClientOption {
	return func(c *Client) { c.cookies = cookies }
}

func WithLogger(log logger.Logger) ClientOption {
	return func(c *Client) { c.logger = log }
}

// NewClient creates an API client that signs every request with signer
func NewClient(httpClient *http.Client, signer Signer, opts ...ClientOption) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		httpClient: httpClient,
		baseURL:    BaseURL,
		userAgent:  DefaultUserAgent,
		headers: map[string]string{
			"Accept":             "*/*",
			"Accept-Language":    "en-US,en;q=0.9,es;q=0.8",
			"Cache-Control":      "no-cache",
			"Pragma":             "no-cache",
			"Priority":           "u=1, i",
			"Sec-Ch-Ua":          `"Chromium";v="127", "Not)A;Brand";v="99"`,
			"Sec-Ch-Ua-Mobile":   "?0",
			"Sec-Ch-Ua-Platform": `"macOS"`,
			"Sec-Fetch-Dest":     "empty",
			"Sec-Fetch-Mode":     "cors",
			"Sec-Fetch-Site":     "same-origin",
			"Referrer-Policy":    "strict-origin-when-cross-origin",
		},
		signer:  signer,
		limiter: ratelimit.Unlimited{},
		logger:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserAgent returns the identity the client signs and sends requests with
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Call is the input of one signed API call
type Call struct {
	Mode      Mode
	ContentID string
	Bootstrap *Bootstrap
	Cookies   []*http.Cookie
	// Referer is the resolved page the call originates from
	Referer string
}

// SignedURL builds the query for call, obtains its signature and returns the full request URL
func (c *Client) SignedURL(ctx context.Context, call Call) (string, error) {
	query := BuildQuery(call.Mode, call.Bootstrap, call.ContentID, c.userAgent).Encode()
	sig, err := c.signer.Sign(ctx, query, Identity{UserAgent: c.userAgent})
	if err != nil {
		if errs.Is(err, errs.ErrorTypeSignatureUpstream) {
			return "", err
		}
		return "", errs.SignatureUpstream(err, "signing failed")
	}
	return fmt.Sprintf("%s%s?%s&X-Bogus=%s", c.baseURL, call.Mode.Endpoint(), query, escape(sig)), nil
}

// Fetch performs the signed call and returns the raw JSON body
func (c *Client) Fetch(ctx context.Context, call Call) (json.RawMessage, error) {
	signed, err := c.SignedURL(ctx, call)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errs.Wrap(errs.ErrorTypeAPI, err, "rate limiter wait aborted")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeAPI, err, "failed to create request")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if call.Referer != "" {
		req.Header.Set("Referer", call.Referer)
	}
	for _, cookie := range mergeCookies(c.cookies, call.Cookies) {
		req.AddCookie(cookie)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorWithFields("API request failed", map[string]interface{}{
			"mode":       call.Mode.String(),
			"content_id": call.ContentID,
			"error":      err.Error(),
			"duration":   time.Since(start),
		})
		return nil, errs.Wrap(errs.ErrorTypeAPI, err, "network error")
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("API request completed", map[string]interface{}{
		"mode":       call.Mode.String(),
		"content_id": call.ContentID,
		"status":     resp.StatusCode,
		"duration":   time.Since(start),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.API(resp.StatusCode, fmt.Sprintf("%s endpoint returned status %d", call.Mode, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAPIBytes))
	if err != nil {
		return nil, &errs.Error{Type: errs.ErrorTypeAPI, Message: "failed to read response body", Code: resp.StatusCode, Err: err}
	}
	if len(body) == 0 {
		// the platform answers 200 with an empty body when the signature is rejected
		return nil, errs.API(resp.StatusCode, "empty response body")
	}
	if !gjson.ValidBytes(body) {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("API returned non-JSON body", map[string]interface{}{
			"content_id":   call.ContentID,
			"body_preview": preview,
		})
		return nil, errs.API(resp.StatusCode, "response is not JSON")
	}
	if status := gjson.GetBytes(body, "statusCode"); status.Exists() && status.Int() != 0 {
		return nil, errs.API(resp.StatusCode, fmt.Sprintf("platform status %d: %s",
			status.Int(), gjson.GetBytes(body, "statusMsg").String()))
	}

	return json.RawMessage(body), nil
}

func mergeCookies(base, override []*http.Cookie) []*http.Cookie {
	if len(base) == 0 {
		return override
	}
	seen := make(map[string]bool, len(override))
	for _, c := range override {
		seen[c.Name] = true
	}
	out := make([]*http.Cookie, 0, len(base)+len(override))
	for _, c := range base {
		if !seen[c.Name] {
			out = append(out, c)
		}
	}
	return append(out, override...)
}
