package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sharetok/internal/server"
	"sharetok/pkg/config"
	errs "sharetok/pkg/errors"
	"sharetok/pkg/pipeline"
	"sharetok/pkg/storage"
	"sharetok/pkg/store"
	"sharetok/pkg/tiktok"
)

func testConfig(t *testing.T, platform *mockPlatform) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Platform.BaseURL = platform.URL()
	cfg.Platform.ResolveTimeout = 5 * time.Second
	cfg.Platform.APITimeout = 5 * time.Second
	cfg.Signer.Endpoint = platform.URL() + "/sign"
	cfg.Storage.Root = t.TempDir()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "sharetok.db")
	cfg.Download.InactivityTimeout = 5 * time.Second
	cfg.RateLimit.RequestsPerMinute = 6000
	cfg.RateLimit.BurstSize = 100
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	prev := cookieFlag
	cookieFlag = "sessionid=acct-session; ttwid=acct-ttwid"
	t.Cleanup(func() { cookieFlag = prev })

	a, err := newApp(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAppFetchesThroughPlatform(t *testing.T) {
	platform := newMockPlatform()
	defer platform.Close()
	a := newTestApp(t, testConfig(t, platform))
	short := platform.addShortLink("abc", "7301")
	ctx := context.Background()

	res, err := a.service.Lookup(ctx, pipeline.Request{URL: short, Mode: tiktok.ModeDetail})
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeFetched, res.Outcome)

	view := res.View()
	assert.Equal(t, "7301", view.ContentID)
	assert.Equal(t, "clip 7301", view.Description)
	assert.Equal(t, "someone", view.Author.Handle)
	require.NotNil(t, view.Video)

	for public, size := range map[string]int64{
		view.Video.MP4:       1000,
		view.Video.Thumbnail: 200,
		view.Author.Image:    200,
	} {
		local, err := a.storage.Local(public)
		require.NoError(t, err)
		info, err := os.Stat(local)
		require.NoError(t, err, public)
		assert.Equal(t, size, info.Size(), public)
	}

	// Account cookies reach both the page and the API, the page's msToken the API
	platform.mu.RLock()
	page, api := platform.lastPage, platform.lastAPI
	platform.mu.RUnlock()
	c, err := page.Cookie("sessionid")
	require.NoError(t, err)
	assert.Equal(t, "acct-session", c.Value)
	c, err = api.Cookie("msToken")
	require.NoError(t, err)
	assert.Equal(t, "page-token", c.Value)
	c, err = api.Cookie("ttwid")
	require.NoError(t, err)
	assert.Equal(t, "acct-ttwid", c.Value)
	assert.Equal(t, "page-token", api.URL.Query().Get("msToken"))
	assert.NotEmpty(t, api.URL.Query().Get("X-Bogus"))

	// Repeat lookups are served from the store without touching the platform
	pages, calls := platform.hits(&platform.pageHits), platform.hits(&platform.apiHits)
	again, err := a.service.Lookup(ctx, pipeline.Request{URL: short, Mode: tiktok.ModeDetail})
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeHit, again.Outcome)
	assert.Equal(t, res.Item.ID, again.Item.ID)
	assert.Equal(t, pages, platform.hits(&platform.pageHits))
	assert.Equal(t, calls, platform.hits(&platform.apiHits))
}

func TestAppEvictsAndRestores(t *testing.T) {
	platform := newMockPlatform()
	defer platform.Close()
	cfg := testConfig(t, platform)
	// one item with its avatar fits, a second one does not
	cfg.Storage.MaxBytes = 2000
	a := newTestApp(t, cfg)
	ctx := context.Background()

	first, err := a.service.Lookup(ctx, pipeline.Request{URL: platform.canonical("1")})
	require.NoError(t, err)
	_, err = a.service.Lookup(ctx, pipeline.Request{URL: platform.canonical("2")})
	require.NoError(t, err)

	items := store.New(a.db)
	evicted, err := items.FindByContentID(ctx, "1")
	require.NoError(t, err)
	assert.True(t, evicted.Deleted)
	assert.False(t, a.storage.Exists(first.View().Video.MP4))

	calls := platform.hits(&platform.apiHits)
	restored, err := a.service.Lookup(ctx, pipeline.Request{ItemID: first.Item.ID})
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeRestored, restored.Outcome)
	assert.Equal(t, first.Item.ID, restored.Item.ID)
	assert.Equal(t, calls+1, platform.hits(&platform.apiHits))
	assert.True(t, a.storage.Exists(restored.View().Video.MP4))

	// Restoring pushed the other item out
	other, err := items.FindByContentID(ctx, "2")
	require.NoError(t, err)
	assert.True(t, other.Deleted)

	size, err := a.storage.DirSize()
	require.NoError(t, err)
	assert.LessOrEqual(t, size, cfg.Storage.MaxBytes)
}

func TestAppSignerFailurePersistsNothing(t *testing.T) {
	platform := newMockPlatform()
	defer platform.Close()
	platform.failPath("/sign", http.StatusBadGateway)
	a := newTestApp(t, testConfig(t, platform))

	_, err := a.service.Lookup(context.Background(), pipeline.Request{URL: platform.canonical("9")})
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeSignatureUpstream, errs.TypeOf(err))
	assert.Equal(t, 0, platform.hits(&platform.apiHits))

	_, err = store.New(a.db).FindByContentID(context.Background(), "9")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppPrimaryAssetFailure(t *testing.T) {
	platform := newMockPlatform()
	defer platform.Close()
	platform.failPath("/cdn/5.mp4", http.StatusForbidden)
	a := newTestApp(t, testConfig(t, platform))

	_, err := a.service.Lookup(context.Background(), pipeline.Request{URL: platform.canonical("5")})
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeAssetDownload, errs.TypeOf(err))

	assert.False(t, a.storage.Exists(storage.VideoPath("5")))
	assert.False(t, a.storage.Exists(storage.ThumbnailPath("5")))
	_, err = store.New(a.db).FindByContentID(context.Background(), "5")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAppServesOverHTTP(t *testing.T) {
	platform := newMockPlatform()
	defer platform.Close()
	a := newTestApp(t, testConfig(t, platform))

	srv := httptest.NewServer(server.New(a.cfg.Server, a.service, a.storage.Root(), a.registry, a.logger).Handler())
	defer srv.Close()

	target := platform.canonical("42")
	resp, err := http.Get(srv.URL + "/by_url/" + target)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view pipeline.ItemView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "42", view.ContentID)
	require.NotNil(t, view.Video)

	asset, err := http.Get(srv.URL + view.Video.MP4)
	require.NoError(t, err)
	defer asset.Body.Close()
	assert.Equal(t, http.StatusOK, asset.StatusCode)
	assert.Equal(t, int64(1000), asset.ContentLength)

	metrics, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)

	missing, err := http.Get(srv.URL + "/by_id/999")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}
