// Package tiktok talks to the content platform's web endpoints.
//
// A lookup runs through four steps, each in its own file:
//
//   - resolver.go follows a share link (one redirect hop) to the canonical page
//     and derives the content ID from the last path segment.
//   - bootstrap.go pulls the device/session identifiers out of the page's
//     embedded JSON blob.
//   - endpoints.go builds the ordered query string for the detail or
//     related-items endpoint; signer.go obtains its signature from an
//     external signing service; client.go issues the signed call.
//   - normalize.go turns the raw response into a canonical Record.
//
// Nothing in this package retries. Failures surface as typed errors from
// sharetok/pkg/errors so callers can decide on their own retry policy.
package tiktok
