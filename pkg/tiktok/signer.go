package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	errs "sharetok/pkg/errors"
)

// Identity is the client identity a signature is bound to
type Identity struct {
	UserAgent string
}

// Signer produces the opaque signature token for a canonical query string.
// Implementations must be safe for concurrent use.
type Signer interface {
	Sign(ctx context.Context, query string, id Identity) (string, error)
}

// SignerFunc adapts a function to the Signer interface
type SignerFunc func(ctx context.Context, query string, id Identity) (string, error)

func (f SignerFunc) Sign(ctx context.Context, query string, id Identity) (string, error) {
	return f(ctx, query, id)
}

type signRequest struct {
	Query     string `json:"query"`
	UserAgent string `json:"userAgent"`
}

type signResponse struct {
	Signature string `json:"signature"`
}

// HTTPSigner delegates signing to an external sidecar over HTTP
type HTTPSigner struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPSigner(endpoint string, timeout time.Duration) *HTTPSigner {
	return &HTTPSigner{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Sign posts the query and identity to the sidecar and returns its signature
func (s *HTTPSigner) Sign(ctx context.Context, query string, id Identity) (string, error) {
	payload, err := json.Marshal(signRequest{Query: query, UserAgent: id.UserAgent})
	if err != nil {
		return "", errs.SignatureUpstream(err, "failed to encode sign request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", errs.SignatureUpstream(err, "failed to create sign request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", errs.SignatureUpstream(err, "signer unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", errs.SignatureUpstream(err, "failed to read signer response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &errs.Error{
			Type:    errs.ErrorTypeSignatureUpstream,
			Message: fmt.Sprintf("signer returned status %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}

	var out signResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errs.SignatureUpstream(err, "malformed signer response")
	}
	if out.Signature == "" {
		return "", errs.SignatureUpstream(nil, "signer returned an empty signature")
	}
	return out.Signature, nil
}
