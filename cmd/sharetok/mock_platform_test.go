package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// mockPlatform stands in for the platform's pages, item API and CDN, and for
// the external signer
type mockPlatform struct {
	server *httptest.Server

	pageHits  int32
	apiHits   int32
	signHits  int32
	assetHits int32

	mu sync.RWMutex
	// shortLinks maps /t/<code> to a content ID
	shortLinks map[string]string
	// failures maps a path prefix to the status it answers with
	failures map[string]int
	// assetSizes is the body size served per CDN file extension
	assetSizes map[string]int
	lastAPI    *http.Request
	lastPage   *http.Request
}

func newMockPlatform() *mockPlatform {
	m := &mockPlatform{
		shortLinks: make(map[string]string),
		failures:   make(map[string]int),
		assetSizes: map[string]int{".mp4": 1000, ".jpg": 200},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/t/", m.handleShortLink)
	mux.HandleFunc("/api/item/detail/", m.handleDetail)
	mux.HandleFunc("/sign", m.handleSign)
	mux.HandleFunc("/cdn/", m.handleAsset)
	mux.HandleFunc("/", m.handlePage)
	m.server = httptest.NewServer(mux)
	return m
}

func (m *mockPlatform) URL() string { return m.server.URL }
func (m *mockPlatform) Close()      { m.server.Close() }

func (m *mockPlatform) canonical(id string) string {
	return fmt.Sprintf("%s/@someone/video/%s", m.server.URL, id)
}

func (m *mockPlatform) addShortLink(code, id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortLinks[code] = id
	return m.server.URL + "/t/" + code
}

func (m *mockPlatform) failPath(prefix string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[prefix] = status
}

// injected answers with an injected failure when one matches
func (m *mockPlatform) injected(w http.ResponseWriter, r *http.Request) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for prefix, status := range m.failures {
		if strings.HasPrefix(r.URL.Path, prefix) {
			http.Error(w, "injected", status)
			return true
		}
	}
	return false
}

func (m *mockPlatform) handleShortLink(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	id, ok := m.shortLinks[strings.TrimPrefix(r.URL.Path, "/t/")]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, m.canonical(id), http.StatusFound)
}

func (m *mockPlatform) handlePage(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.pageHits, 1)
	m.mu.Lock()
	m.lastPage = r.Clone(r.Context())
	m.mu.Unlock()
	if m.injected(w, r) {
		return
	}
	if !strings.HasPrefix(r.URL.Path, "/@") {
		http.NotFound(w, r)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: "msToken", Value: "page-token"})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<html><head><script id="__UNIVERSAL_DATA_FOR_REHYDRATION__" type="application/json">
{"__DEFAULT_SCOPE__":{"webapp.app-context":{"wid":"7300000000000000001","odinId":"7300000000000000002",
"webIdCreatedTime":"1700000000","abTestVersion":{"versionName":"70508271,72437276"}}}}
</script></head><body></body></html>`)
}

func (m *mockPlatform) handleSign(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.signHits, 1)
	if m.injected(w, r) {
		return
	}
	var req struct {
		Query     string `json:"query"`
		UserAgent string `json:"userAgent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"signature": "sig-" + strconv.Itoa(len(req.Query))})
}

func (m *mockPlatform) handleDetail(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.apiHits, 1)
	m.mu.Lock()
	m.lastAPI = r.Clone(r.Context())
	m.mu.Unlock()
	if m.injected(w, r) {
		return
	}
	if r.URL.Query().Get("X-Bogus") == "" {
		json.NewEncoder(w).Encode(map[string]int{"statusCode": 10201})
		return
	}

	id := r.URL.Query().Get("itemId")
	cdn := m.server.URL + "/cdn/"
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"statusCode":0,"itemInfo":{"itemStruct":{"id":%q,"desc":"clip %s",
"video":{"playAddr":"%s%s.mp4","cover":"%s%s.jpg"},
"author":{"id":"a1","uniqueId":"someone","nickname":"Some One","avatarLarger":"%sa1.jpg"}}}}`,
		id, id, cdn, id, cdn, id, cdn)
}

func (m *mockPlatform) handleAsset(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&m.assetHits, 1)
	if m.injected(w, r) {
		return
	}
	ext := path.Ext(r.URL.Path)
	m.mu.RLock()
	size, ok := m.assetSizes[ext]
	m.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch ext {
	case ".mp4":
		w.Header().Set("Content-Type", "video/mp4")
	default:
		w.Header().Set("Content-Type", "image/jpeg")
	}
	w.Header().Set("Content-Length", strconv.Itoa(size))
	w.WriteHeader(http.StatusOK)
	w.Write(make([]byte, size))
}

func (m *mockPlatform) hits(counter *int32) int {
	return int(atomic.LoadInt32(counter))
}
