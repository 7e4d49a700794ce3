package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sharetok/internal/downloader"
	errs "sharetok/pkg/errors"
	"sharetok/pkg/eviction"
	"sharetok/pkg/logger"
	"sharetok/pkg/storage"
	"sharetok/pkg/store"
	"sharetok/pkg/tiktok"
)

const bootstrapPage = `<html><script id="__UNIVERSAL_DATA_FOR_REHYDRATION__">
{"__DEFAULT_SCOPE__":{"webapp.app-context":{"wid":"1","odinId":"2","webIdCreatedTime":"3",
"abTestVersion":{"versionName":"4,5"}}}}</script></html>`

// fakeResolver maps short links to canonical pages; canonical URLs resolve to themselves
type fakeResolver struct {
	calls int32
	short map[string]string
}

func (r *fakeResolver) Resolve(_ context.Context, rawURL string) (*tiktok.Resolution, error) {
	atomic.AddInt32(&r.calls, 1)
	if target, ok := r.short[rawURL]; ok {
		rawURL = target
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errs.Resolution(err, rawURL)
	}
	id, err := tiktok.ContentIDFromURL(u)
	if err != nil {
		return nil, err
	}
	return &tiktok.Resolution{
		FinalURL:  u,
		ContentID: id,
		Cookies:   []*http.Cookie{{Name: "msToken", Value: "tok"}},
		Body:      []byte(bootstrapPage),
	}, nil
}

// fakeAPI serves canned payloads per mode and content ID
type fakeAPI struct {
	mu       sync.Mutex
	calls    int32
	delay    time.Duration
	err      error
	payloads map[string]string
	lastCall tiktok.Call
}

func (a *fakeAPI) Fetch(_ context.Context, call tiktok.Call) (json.RawMessage, error) {
	atomic.AddInt32(&a.calls, 1)
	time.Sleep(a.delay)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastCall = call
	if a.err != nil {
		return nil, a.err
	}
	body, ok := a.payloads[call.Mode.String()+":"+call.ContentID]
	if !ok {
		return nil, errs.API(404, "no payload for "+call.ContentID)
	}
	return json.RawMessage(body), nil
}

// diskFetcher writes fixed-size files instead of downloading
type diskFetcher struct {
	fs    *storage.Manager
	fail  map[string]bool
	mu    sync.Mutex
	count map[downloader.Role]int
}

func (f *diskFetcher) Fetch(_ context.Context, job downloader.Job) (int64, error) {
	f.mu.Lock()
	f.count[job.Role]++
	f.mu.Unlock()
	if f.fail[job.URL] {
		return 0, errs.AssetDownload(errors.New("connection reset"), job.Public)
	}
	local, err := f.fs.Local(job.Public)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return 0, err
	}
	return 100, os.WriteFile(local, make([]byte, 100), 0644)
}

func (f *diskFetcher) downloads(role downloader.Role) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count[role]
}

type countingSweeper struct{ calls int32 }

func (c *countingSweeper) Sweep(context.Context) (eviction.Report, error) {
	atomic.AddInt32(&c.calls, 1)
	return eviction.Report{}, errors.New("disk on fire")
}

func videoPayload(id string) string {
	return fmt.Sprintf(`{"statusCode":0,"itemInfo":{"itemStruct":{"id":%q,"desc":"clip %s",
		"video":{"playAddr":"https://cdn.example.com/%s.mp4","cover":"https://cdn.example.com/%s.jpg"},
		"author":{"id":"a1","uniqueId":"someone","nickname":"Some One","avatarLarger":"https://cdn.example.com/a1.jpg"}}}}`,
		id, id, id, id)
}

func relatedPayload(ids ...string) string {
	body := `{"statusCode":0,"itemList":[`
	for i, id := range ids {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"id":%q,"imagePost":{"title":"t","images":[{"imageURL":{"urlList":["https://cdn.example.com/%s/0.jpg"]}},{"imageURL":{"urlList":[null,"https://cdn.example.com/%s/1.jpg"]}}]},
			"music":{"playUrl":"https://cdn.example.com/%s.mp3"},"author":{"id":"a2","uniqueId":"other"}}`, id, id, id, id)
	}
	return body + `]}`
}

type harness struct {
	svc      *Service
	store    *store.GormStore
	fs       *storage.Manager
	resolver *fakeResolver
	api      *fakeAPI
	fetcher  *diskFetcher
	sweeper  *countingSweeper
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := store.Connect(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	st := store.New(db)

	fs, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		store:    st,
		fs:       fs,
		resolver: &fakeResolver{short: map[string]string{}},
		api:      &fakeAPI{payloads: map[string]string{}},
		fetcher:  &diskFetcher{fs: fs, fail: map[string]bool{}, count: map[downloader.Role]int{}},
		sweeper:  &countingSweeper{},
	}
	log := logger.NewNopLogger()
	h.svc = New(Deps{
		Store:      st,
		Storage:    fs,
		Resolver:   h.resolver,
		API:        h.api,
		Downloader: downloader.NewPool(4, h.fetcher, nil, log),
		Evictor:    h.sweeper,
		Logger:     log,
	}, WithTokenGenerator(func() string { return "generated" }))
	return h
}

const canonical = "https://www.tiktok.com/@someone/video/100"

func TestLookupFetchesAndPersists(t *testing.T) {
	h := newHarness(t)
	h.api.payloads["detail:100"] = videoPayload("100")

	res, err := h.svc.Lookup(context.Background(), Request{URL: canonical})
	require.NoError(t, err)
	assert.Equal(t, OutcomeFetched, res.Outcome)
	assert.Empty(t, res.SessionToken)

	view := res.View()
	assert.Equal(t, "100", view.ContentID)
	assert.Equal(t, store.KindVideo, view.Kind)
	assert.Equal(t, canonical, view.OriginalURL)
	require.NotNil(t, view.Video)
	assert.Equal(t, "/videos/100.mp4", view.Video.MP4)
	assert.Equal(t, "/thumbnails/100.jpg", view.Video.Thumbnail)
	assert.Nil(t, view.Carousel)
	assert.Equal(t, AuthorView{ID: "a1", Name: "Some One", Handle: "someone", Image: "/authors/a1.jpg"}, view.Author)

	assert.True(t, h.fs.Exists(storage.VideoPath("100")))
	assert.True(t, h.fs.Exists(storage.AvatarPath("a1")))
	assert.Equal(t, "tok", h.api.lastCall.Bootstrap.MsToken)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.sweeper.calls))
}

func TestCachedItemNeedsNoNetwork(t *testing.T) {
	h := newHarness(t)
	h.api.payloads["detail:100"] = videoPayload("100")
	h.resolver.short["https://vm.tiktok.com/ZMshort/"] = canonical

	first, err := h.svc.Lookup(context.Background(), Request{URL: "https://vm.tiktok.com/ZMshort/"})
	require.NoError(t, err)
	resolves, apiCalls := atomic.LoadInt32(&h.resolver.calls), atomic.LoadInt32(&h.api.calls)

	for _, u := range []string{canonical, "https://vm.tiktok.com/ZMshort/"} {
		res, err := h.svc.Lookup(context.Background(), Request{URL: u})
		require.NoError(t, err)
		assert.Equal(t, OutcomeHit, res.Outcome)
		assert.Equal(t, first.Item.ID, res.Item.ID)
		assert.Equal(t, first.Item.Description, res.Item.Description)
	}

	assert.Equal(t, resolves, atomic.LoadInt32(&h.resolver.calls))
	assert.Equal(t, apiCalls, atomic.LoadInt32(&h.api.calls))
	assert.Equal(t, 1, h.fetcher.downloads(downloader.RoleVideo))
}

func TestTombstonedItemIsRestored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.payloads["detail:100"] = videoPayload("100")

	first, err := h.svc.Lookup(ctx, Request{URL: canonical})
	require.NoError(t, err)
	_, err = h.fs.RemoveVideo("100")
	require.NoError(t, err)
	require.NoError(t, h.store.Tombstone(ctx, first.Item.ID))
	before := atomic.LoadInt32(&h.api.calls)

	res, err := h.svc.Lookup(ctx, Request{ItemID: first.Item.ID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRestored, res.Outcome)
	assert.False(t, res.Item.Deleted)
	assert.True(t, res.Item.CreatedAt.After(first.Item.CreatedAt))
	assert.Equal(t, before+1, atomic.LoadInt32(&h.api.calls))
	assert.True(t, h.fs.Exists(storage.VideoPath("100")))
	assert.Equal(t, 1, h.fetcher.downloads(downloader.RoleAvatar), "avatar still on disk")
}

func TestRestoreRecordsFreshAssetPaths(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.payloads["detail:100"] = videoPayload("100")

	first, err := h.svc.Lookup(ctx, Request{URL: canonical})
	require.NoError(t, err)
	require.Equal(t, storage.ThumbnailPath("100"), first.Item.Video.ThumbnailPath)
	_, err = h.fs.RemoveVideo("100")
	require.NoError(t, err)
	require.NoError(t, h.store.Tombstone(ctx, first.Item.ID))

	h.fetcher.fail["https://cdn.example.com/100.jpg"] = true
	res, err := h.svc.Lookup(ctx, Request{ItemID: first.Item.ID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRestored, res.Outcome)
	assert.Empty(t, res.Item.Video.ThumbnailPath)
	assert.False(t, h.fs.Exists(storage.ThumbnailPath("100")))

	stored, err := h.store.FindByContentID(ctx, "100")
	require.NoError(t, err)
	assert.Empty(t, stored.Video.ThumbnailPath)
	assert.Equal(t, storage.VideoPath("100"), stored.Video.MP4Path)
}

func TestRestoreBackfillsMissingAssets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.payloads["detail:100"] = videoPayload("100")
	h.fetcher.fail["https://cdn.example.com/100.jpg"] = true
	h.fetcher.fail["https://cdn.example.com/a1.jpg"] = true

	first, err := h.svc.Lookup(ctx, Request{URL: canonical})
	require.NoError(t, err)
	require.Empty(t, first.Item.Video.ThumbnailPath)
	require.Empty(t, first.Item.Author.AvatarPath)
	_, err = h.fs.RemoveVideo("100")
	require.NoError(t, err)
	require.NoError(t, h.store.Tombstone(ctx, first.Item.ID))

	h.fetcher.fail = map[string]bool{}
	res, err := h.svc.Lookup(ctx, Request{ItemID: first.Item.ID})
	require.NoError(t, err)
	assert.Equal(t, storage.ThumbnailPath("100"), res.Item.Video.ThumbnailPath)
	assert.Equal(t, storage.AvatarPath("a1"), res.Item.Author.AvatarPath)
	assert.True(t, h.fs.Exists(storage.ThumbnailPath("100")))
	assert.Equal(t, 2, h.fetcher.downloads(downloader.RoleAvatar))
}

func TestFailedRestoreKeepsTombstone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.payloads["detail:100"] = videoPayload("100")

	first, err := h.svc.Lookup(ctx, Request{URL: canonical})
	require.NoError(t, err)
	require.NoError(t, h.store.Tombstone(ctx, first.Item.ID))

	h.api.err = errs.API(403, "blocked")
	_, err = h.svc.Lookup(ctx, Request{URL: canonical})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAPI))

	item, err := h.store.FindByContentID(ctx, "100")
	require.NoError(t, err)
	assert.True(t, item.Deleted)
	assert.Equal(t, first.Item.CreatedAt.Unix(), item.CreatedAt.Unix())
}

func TestSecondaryAssetFailureIsTolerated(t *testing.T) {
	h := newHarness(t)
	h.api.payloads["detail:100"] = videoPayload("100")
	h.fetcher.fail["https://cdn.example.com/100.jpg"] = true
	h.fetcher.fail["https://cdn.example.com/a1.jpg"] = true

	res, err := h.svc.Lookup(context.Background(), Request{URL: canonical})
	require.NoError(t, err)
	assert.Empty(t, res.Item.Video.ThumbnailPath)
	assert.Empty(t, res.Item.Author.AvatarPath)
	assert.Equal(t, "/videos/100.mp4", res.Item.Video.MP4Path)
}

func TestPrimaryAssetFailurePersistsNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.payloads["detail:100"] = videoPayload("100")
	h.fetcher.fail["https://cdn.example.com/100.mp4"] = true

	_, err := h.svc.Lookup(ctx, Request{URL: canonical})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAssetDownload))

	_, err = h.store.FindByContentID(ctx, "100")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = h.store.FindAuthor(ctx, "a1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, h.fs.Exists(storage.ThumbnailPath("100")))
	assert.Equal(t, int32(0), atomic.LoadInt32(&h.sweeper.calls), "failed lookups do not sweep")
}

func TestConcurrentLookupsConverge(t *testing.T) {
	h := newHarness(t)
	h.api.payloads["detail:100"] = videoPayload("100")
	h.api.delay = 50 * time.Millisecond

	const n = 8
	var wg sync.WaitGroup
	ids := make([]uint, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.svc.Lookup(context.Background(), Request{URL: canonical})
			if assert.NoError(t, err) {
				ids[i] = res.Item.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.api.calls))
	assert.Equal(t, 1, h.fetcher.downloads(downloader.RoleVideo))
}

func TestRelatedSkipsWatchedItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.api.payloads["related:100"] = relatedPayload("a", "b", "c")

	_, err := h.store.CreateSession(ctx, "sess")
	require.NoError(t, err)
	require.NoError(t, h.store.AddWatched(ctx, "sess", "a", "b"))

	res, err := h.svc.Lookup(ctx, Request{URL: canonical, Mode: tiktok.ModeRelated, SessionToken: "sess"})
	require.NoError(t, err)
	assert.Equal(t, "c", res.Item.ContentID)
	assert.Equal(t, store.KindCarousel, res.Item.Kind)
	assert.Equal(t, "https://www.tiktok.com/@other/photo/c", res.Item.OriginalURL)
	assert.Equal(t, []string{"/images/c/0.jpg", "/images/c/1.jpg"}, res.Item.Carousel.Images)
	assert.Equal(t, "/audio/c.mp4", res.Item.Carousel.AudioPath)
	assert.Equal(t, "t | ", res.Item.Description)

	sess, err := h.store.GetSession(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, sess.Watched)

	_, err = h.svc.Lookup(ctx, Request{URL: canonical, Mode: tiktok.ModeRelated, SessionToken: "sess"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeNoUnseenItem))
}

func TestRelatedWithoutTokenCreatesSession(t *testing.T) {
	h := newHarness(t)
	h.api.payloads["related:100"] = relatedPayload("a")

	res, err := h.svc.Lookup(context.Background(), Request{URL: canonical, Mode: tiktok.ModeRelated})
	require.NoError(t, err)
	assert.Equal(t, "generated", res.SessionToken)

	sess, err := h.store.GetSession(context.Background(), "generated")
	require.NoError(t, err)
	assert.Contains(t, sess.Watched, "a")
}

func TestFailedRelatedLookupLeavesNoSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.Lookup(ctx, Request{URL: canonical, Mode: tiktok.ModeRelated})
	require.Error(t, err)
	_, err = h.store.GetSession(ctx, "generated")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = h.svc.Lookup(ctx, Request{URL: canonical, Mode: tiktok.ModeRelated, SessionToken: "client"})
	require.Error(t, err)
	_, err = h.store.GetSession(ctx, "client")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLookupByUnknownID(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Lookup(context.Background(), Request{ItemID: 999})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound))
}

func TestLatest(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Latest(context.Background())
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound))

	h.api.payloads["detail:100"] = videoPayload("100")
	_, err = h.svc.Lookup(context.Background(), Request{URL: canonical})
	require.NoError(t, err)

	item, err := h.svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "100", item.ContentID)
}

func TestSchemaErrorAbortsBeforeDownloads(t *testing.T) {
	h := newHarness(t)
	h.api.payloads["detail:100"] = `{"statusCode":0,"itemInfo":{"itemStruct":{"id":"100","author":{"id":"a1","uniqueId":"x"}}}}`

	_, err := h.svc.Lookup(context.Background(), Request{URL: canonical})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeSchemaValidation))
	assert.Zero(t, h.fetcher.downloads(downloader.RoleVideo))
}
