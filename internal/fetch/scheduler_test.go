package fetch_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stockpix/internal/blobstore"
	"stockpix/internal/fetch"
	"stockpix/internal/identity"
	"stockpix/internal/registry"
	"stockpix/internal/testsupport"
)

func newScheduler(t *testing.T, opts ...testsupport.ConfigOption) (*fetch.Scheduler, *registry.Store, *blobstore.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenRegistry(t, cfg)
	blobs := blobstore.New(cfg.Paths.StoreDir, cfg.Fetch.Extension)
	return fetch.NewScheduler(cfg, store, blobs, nil), store, blobs
}

func TestRunRespectsConcurrencyCeiling(t *testing.T) {
	var inFlight, peak int64
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt64(&inFlight, 1)
		mu.Lock()
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		w.Write([]byte("img"))
	}))
	defer server.Close()

	scheduler, _, _ := newScheduler(t, testsupport.WithFetchConcurrency(3))

	urls := make([]string, 20)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/img-%d.jpg", server.URL, i)
	}
	summary, err := scheduler.Run(context.Background(), urls)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Downloaded != 20 {
		t.Fatalf("expected 20 downloads, got %+v", summary)
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > 3 {
		t.Fatalf("concurrency ceiling breached: peak %d", peak)
	}
	if peak < 2 {
		t.Fatalf("expected overlapping downloads, peak was %d", peak)
	}
}

func TestRunBoundsOutstandingWorkToOneWave(t *testing.T) {
	var inFlight, peak int64
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt64(&inFlight, 1)
		mu.Lock()
		if current > peak {
			peak = current
		}
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		w.Write([]byte("img"))
	}))
	defer server.Close()

	// The ceiling is far above the chunk size, so anything past one wave of
	// outstanding tasks would show up as extra in-flight requests.
	scheduler, store, _ := newScheduler(t,
		testsupport.WithFetchConcurrency(100),
		testsupport.WithFetchChunkSize(2))

	urls := make([]string, 8)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/wave-%d.jpg", server.URL, i)
	}
	summary, err := scheduler.Run(context.Background(), urls)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Downloaded != 8 {
		t.Fatalf("expected 8 downloads, got %+v", summary)
	}

	mu.Lock()
	got := peak
	mu.Unlock()
	if got > 2 {
		t.Fatalf("outstanding work exceeded one wave: peak %d", got)
	}

	for _, url := range urls {
		entry, err := store.Lookup(context.Background(), identity.NewID(url))
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if entry == nil || entry.Status != registry.StatusFetched {
			t.Fatalf("expected every wave committed, got %#v", entry)
		}
	}
}

func TestRunDeduplicatesWithinAndAcrossRuns(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte("img"))
	}))
	defer server.Close()

	scheduler, store, _ := newScheduler(t)
	url := server.URL + "/same.jpg"

	summary, err := scheduler.Run(context.Background(), []string{url, url, " " + url})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if summary.Downloaded != 1 || summary.Duplicates != 2 {
		t.Fatalf("unexpected first summary %+v", summary)
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Fatalf("expected 1 server hit, got %d", got)
	}

	summary, err = scheduler.Run(context.Background(), []string{url})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.AlreadyResolved != 1 || summary.Outstanding() != 0 {
		t.Fatalf("expected resolved skip on second run, got %+v", summary)
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Fatalf("second run must not refetch, hits %d", got)
	}

	entry, err := store.Lookup(context.Background(), identity.NewID(url))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry.Status != registry.StatusFetched {
		t.Fatalf("expected FETCHED, got %s", entry.Status)
	}
}

func TestRunRecordsMixedOutcomes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/broken.jpg":
			w.WriteHeader(http.StatusInternalServerError)
		case "/empty.jpg":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Write([]byte("img"))
		}
	}))
	defer server.Close()

	scheduler, store, blobs := newScheduler(t)
	good := server.URL + "/good.jpg"
	broken := server.URL + "/broken.jpg"
	empty := server.URL + "/empty.jpg"

	summary, err := scheduler.Run(context.Background(), []string{good, broken, empty, "nan", ""})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Downloaded != 1 || summary.Failed != 2 || summary.Unfetchable != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	ctx := context.Background()
	goodEntry, err := store.Lookup(ctx, identity.NewID(good))
	if err != nil {
		t.Fatalf("Lookup good: %v", err)
	}
	if goodEntry.Status != registry.StatusFetched || goodEntry.HTTPCode != 200 {
		t.Fatalf("unexpected good entry %#v", goodEntry)
	}
	if !blobs.Exists(identity.NewID(good)) {
		t.Fatal("expected blob for successful download")
	}

	brokenEntry, err := store.Lookup(ctx, identity.NewID(broken))
	if err != nil {
		t.Fatalf("Lookup broken: %v", err)
	}
	if brokenEntry.Status != registry.StatusFetchFailed || brokenEntry.HTTPCode != 500 {
		t.Fatalf("unexpected broken entry %#v", brokenEntry)
	}
	if blobs.Exists(identity.NewID(broken)) {
		t.Fatal("failed download must not leave a blob")
	}

	// Only 200 with a body counts; a bodyless 2xx has no image to store.
	emptyEntry, err := store.Lookup(ctx, identity.NewID(empty))
	if err != nil {
		t.Fatalf("Lookup empty: %v", err)
	}
	if emptyEntry.Status != registry.StatusFetchFailed || emptyEntry.HTTPCode != 204 {
		t.Fatalf("unexpected empty entry %#v", emptyEntry)
	}
}

func TestRunReusesExistingBlob(t *testing.T) {
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte("img"))
	}))
	defer server.Close()

	scheduler, store, blobs := newScheduler(t)
	url := server.URL + "/cached.jpg"
	id := identity.NewID(url)

	// Simulates a crash after the blob landed but before the registry commit.
	if _, err := blobs.Write(id, []byte("img")); err != nil {
		t.Fatalf("seed blob: %v", err)
	}

	summary, err := scheduler.Run(context.Background(), []string{url})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Reused != 1 || summary.Downloaded != 0 {
		t.Fatalf("expected blob reuse, got %+v", summary)
	}
	if atomic.LoadInt64(&hits) != 0 {
		t.Fatal("existing blob must short-circuit the download")
	}

	entry, err := store.Lookup(context.Background(), id)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry.Status != registry.StatusFetched || entry.StoragePath == "" {
		t.Fatalf("expected registry to catch up, got %#v", entry)
	}
}

func TestRunTimeoutMarksFailure(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow.jpg" {
			<-release
			return
		}
		w.Write([]byte("img"))
	}))
	defer server.Close()
	defer close(release)

	cfg := testsupport.NewConfig(t)
	cfg.Fetch.TimeoutSeconds = 1
	store := testsupport.MustOpenRegistry(t, cfg)
	blobs := blobstore.New(cfg.Paths.StoreDir, cfg.Fetch.Extension)
	scheduler := fetch.NewScheduler(cfg, store, blobs, nil)

	slow := server.URL + "/slow.jpg"
	fast := server.URL + "/fast.jpg"
	summary, err := scheduler.Run(context.Background(), []string{slow, fast})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Downloaded != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	entry, err := store.Lookup(context.Background(), identity.NewID(slow))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if entry.Status != registry.StatusFetchFailed {
		t.Fatalf("timed-out fetch should be FETCH_FAILED, got %s", entry.Status)
	}
}
