package downloader

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "sharetok/pkg/errors"
	"sharetok/pkg/logger"
	"sharetok/pkg/ratelimit"
	"sharetok/pkg/storage"
)

func newTestFetcher(t *testing.T, opts ...FetcherOption) (*Fetcher, *storage.Manager) {
	t.Helper()
	store, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	opts = append([]FetcherOption{WithFetcherLogger(logger.NewNopLogger())}, opts...)
	return NewFetcher(store, opts...), store
}

func serveBytes(contentType string, body []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(body)
	}
}

func assertNoFile(t *testing.T, store *storage.Manager, public string) {
	t.Helper()
	local, err := store.Local(public)
	require.NoError(t, err)
	assert.NoFileExists(t, local)
	assert.NoFileExists(t, local+".part")
}

func TestFetchWritesAsset(t *testing.T) {
	body := bytes.Repeat([]byte("v"), 1000)
	var seen http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		serveBytes("video/mp4", body)(w, r)
	}))
	defer server.Close()

	fetcher, store := newTestFetcher(t, WithHostLimits(ratelimit.NewPerHost(600, 10)))
	n, err := fetcher.Fetch(context.Background(), Job{OwnerID: "1", URL: server.URL + "/v.mp4", Public: storage.VideoPath("1"), Role: RoleVideo})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)

	local, _ := store.Local(storage.VideoPath("1"))
	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, body, data)
	assert.NoFileExists(t, local+".part")

	assert.Equal(t, "bytes=0-", seen.Get("Range"))
	assert.Equal(t, "https://www.tiktok.com/", seen.Get("Referer"))
	assert.Contains(t, seen.Get("Accept-Encoding"), "identity")
}

func TestFetchFollowsOneRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/short", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/real.jpg", http.StatusFound)
	})
	mux.HandleFunc("/real.jpg", serveBytes("image/jpeg", []byte("jpegdata")))
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher, store := newTestFetcher(t)
	_, err := fetcher.Fetch(context.Background(), Job{URL: server.URL + "/short", Public: storage.ImagePath("2", 0), Role: RoleImage})
	require.NoError(t, err)
	assert.True(t, store.Exists(storage.ImagePath("2", 0)))
}

func TestFetchRejects(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		handler http.HandlerFunc
	}{
		{"wrong family", RoleVideo, serveBytes("text/html; charset=utf-8", []byte("<html>"))},
		{"image as audio", RoleAudio, serveBytes("image/jpeg", []byte("jpeg"))},
		{"zero length", RoleImage, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Header().Set("Content-Length", "0")
		}},
		{"unknown length", RoleImage, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("chunk"))
			w.(http.Flusher).Flush()
			_, _ = w.Write([]byte("chunk"))
		}},
		{"not found", RoleImage, func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}},
		{"two hops", RoleImage, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/again", http.StatusFound)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			fetcher, store := newTestFetcher(t)
			public := storage.ImagePath("3", 0)
			_, err := fetcher.Fetch(context.Background(), Job{URL: server.URL + "/asset", Public: public, Role: tt.role})
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.ErrorTypeAssetDownload))
			assertNoFile(t, store, public)
		})
	}
}

func TestFetchTruncatedTransfer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, buf, err := w.(http.Hijacker).Hijack()
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprintf(buf, "HTTP/1.1 200 OK\r\nContent-Type: video/mp4\r\nContent-Length: 1000\r\n\r\n")
		buf.Write(bytes.Repeat([]byte("x"), 400))
		buf.Flush()
	}))
	defer server.Close()

	fetcher, store := newTestFetcher(t)
	public := storage.VideoPath("4")
	_, err := fetcher.Fetch(context.Background(), Job{URL: server.URL, Public: public, Role: RoleVideo})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAssetDownload))
	assertNoFile(t, store, public)
}

func TestFetchInactivityTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("first bytes"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	fetcher, store := newTestFetcher(t, WithInactivityTimeout(100*time.Millisecond))
	public := storage.VideoPath("5")

	start := time.Now()
	_, err := fetcher.Fetch(context.Background(), Job{URL: server.URL, Public: public, Role: RoleVideo})
	require.Error(t, err)
	assert.ErrorIs(t, err, errInactive)
	assert.Less(t, time.Since(start), 2*time.Second)
	assertNoFile(t, store, public)
}

func TestFetchRemovesStaleFile(t *testing.T) {
	server := httptest.NewServer(serveBytes("text/plain", []byte("nope")))
	defer server.Close()

	fetcher, store := newTestFetcher(t)
	public := storage.ThumbnailPath("6")
	local, err := store.Local(public)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(local), 0755))
	require.NoError(t, os.WriteFile(local, []byte("old"), 0644))

	_, err = fetcher.Fetch(context.Background(), Job{URL: server.URL, Public: public, Role: RoleCover})
	require.Error(t, err)
	assertNoFile(t, store, public)
}

func TestRoleFamilies(t *testing.T) {
	assert.Equal(t, "video", RoleVideo.Family())
	assert.Equal(t, "audio", RoleAudio.Family())
	assert.Equal(t, "image", RoleCover.Family())
	assert.Equal(t, "image", RoleAvatar.Family())
	assert.True(t, RoleVideo.Primary())
	assert.True(t, RoleImage.Primary())
	assert.False(t, RoleCover.Primary())
	assert.False(t, RoleAudio.Primary())
	assert.False(t, RoleAvatar.Primary())
}
