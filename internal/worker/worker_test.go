package worker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/movie-catalog-crawler/internal/assemble"
	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/movie-catalog-crawler/internal/crawlertest"
	"github.com/JakeFAU/movie-catalog-crawler/internal/ingest"
	queuememory "github.com/JakeFAU/movie-catalog-crawler/internal/queue/memory"
	"github.com/JakeFAU/movie-catalog-crawler/internal/retry"
	"github.com/JakeFAU/movie-catalog-crawler/internal/storage/memory"
)

const (
	goodURL = "https://www.imdb.com/title/tt0111161/"
	badURL  = "https://www.imdb.com/title/tt0068646/"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

// fakeFetcher serves pages by URL. Errors listed in failures are returned, in
// order, before the page is served.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string][]error
	calls    map[string]int
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, failures: map[string][]error{}, calls: map[string]int{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.URL]++
	if errs := f.failures[req.URL]; len(errs) > 0 {
		f.failures[req.URL] = errs[1:]
		return crawler.FetchResponse{}, errs[0]
	}
	body, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{}, &crawler.StatusError{URL: req.URL, Code: http.StatusNotFound}
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type failingIngester struct{ err error }

func (f failingIngester) Ingest(context.Context, string, crawler.Record) (crawler.Outcome, error) {
	return "", f.err
}

// ctxCapturingIngester records whether the context it received was canceled.
type ctxCapturingIngester struct {
	Ingester
	canceled bool
}

func (c *ctxCapturingIngester) Ingest(ctx context.Context, runID string, rec crawler.Record) (crawler.Outcome, error) {
	c.canceled = ctx.Err() != nil
	return c.Ingester.Ingest(ctx, runID, rec)
}

type recordingArchiver struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (a *recordingArchiver) Archive(_ context.Context, body []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bodies = append(a.bodies, body)
	return "memory://pages/x.html", nil
}

func testPages() map[string]string {
	return map[string]string{
		goodURL: crawlertest.TitlePage(crawlertest.Title{ID: "tt0111161", Name: "The Shawshank Redemption", Year: 1994, Rating: "9.3"}),
		badURL:  crawlertest.TitlePage(crawlertest.Title{ID: "tt0068646", Name: "The Godfather", Year: 1972}),
	}
}

func fastRetry(max int) crawler.RetryPolicy {
	return retry.NewExponentialPolicy(retry.Config{MaxRetries: max, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
}

type harness struct {
	store   *memory.MovieStore
	fetcher *fakeFetcher
	logs    *observer.ObservedLogs
	worker  *Worker
	queue   *queuememory.Queue
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{store: memory.NewMovieStore(), fetcher: newFakeFetcher(testPages()), queue: queuememory.NewQueue(8)}
	core, logs := observer.New(zapcore.DebugLevel)
	h.logs = logs

	asm, err := assemble.New(assemble.IMDbProfile())
	require.NoError(t, err)
	pipeline, err := ingest.New(ingest.Options{Store: h.store, Clock: fakeClock{now: time.Unix(1700000000, 0).UTC()}})
	require.NoError(t, err)

	opts.Queue = h.queue
	if opts.Fetcher == nil {
		opts.Fetcher = h.fetcher
	}
	if opts.Retry == nil {
		opts.Retry = fastRetry(2)
	}
	opts.Assembler = asm
	if opts.Ingester == nil {
		opts.Ingester = pipeline
	}
	opts.Logger = zap.New(core)
	h.worker = New(opts)
	return h
}

func TestProcessInsertsRecord(t *testing.T) {
	t.Parallel()

	archiver := &recordingArchiver{}
	h := newHarness(t, Options{Archiver: archiver})

	result, err := h.worker.Process(context.Background(), crawler.ItemTask{RunID: "run-1", URL: goodURL})
	require.NoError(t, err)
	require.Equal(t, ResultInserted, result)

	rec, ok, err := h.store.FindByID(context.Background(), "tt0111161")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "The Shawshank Redemption", rec.Title)
	require.InDelta(t, 9.3, rec.Rating, 0.0001)
	require.Equal(t, goodURL, rec.SourceURL)
	require.Len(t, archiver.bodies, 1)

	result, err = h.worker.Process(context.Background(), crawler.ItemTask{RunID: "run-1", URL: goodURL})
	require.NoError(t, err)
	require.Equal(t, ResultDuplicate, result)
}

func TestProcessSkipsItemMissingRating(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	result, err := h.worker.Process(context.Background(), crawler.ItemTask{RunID: "run-1", URL: badURL})
	require.NoError(t, err)
	require.Equal(t, ResultAssemblyFailed, result)

	entries := h.logs.FilterMessage("item assembly failed, skipping").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, badURL, fields["url"])
	require.Equal(t, assemble.FieldRating, fields["field"])

	count, err := h.store.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestProcessRetriesTransientFetch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	h.fetcher.failures[goodURL] = []error{crawler.ErrTimeout, &crawler.StatusError{URL: goodURL, Code: http.StatusServiceUnavailable}}

	result, err := h.worker.Process(context.Background(), crawler.ItemTask{URL: goodURL})
	require.NoError(t, err)
	require.Equal(t, ResultInserted, result)
	require.Equal(t, 3, h.fetcher.callCount(goodURL))
	require.Equal(t, 2, h.logs.FilterMessage("fetch failed, retrying").Len())
}

func TestProcessSkipsAfterFetchRetriesExhausted(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Retry: fastRetry(1)})
	h.fetcher.failures[goodURL] = []error{crawler.ErrNetwork, crawler.ErrNetwork, crawler.ErrNetwork}

	result, err := h.worker.Process(context.Background(), crawler.ItemTask{URL: goodURL})
	require.NoError(t, err)
	require.Equal(t, ResultFetchFailed, result)
	require.Equal(t, 2, h.fetcher.callCount(goodURL))
	require.Equal(t, 1, h.logs.FilterMessage("item fetch failed, skipping").Len())
}

func TestProcessDoesNotRetryNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	missing := "https://www.imdb.com/title/tt404/"
	result, err := h.worker.Process(context.Background(), crawler.ItemTask{URL: missing})
	require.NoError(t, err)
	require.Equal(t, ResultFetchFailed, result)
	require.Equal(t, 1, h.fetcher.callCount(missing))
}

func TestProcessStoreFailureIsReturned(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Ingester: failingIngester{err: crawler.ErrStoreUnavailable}})
	_, err := h.worker.Process(context.Background(), crawler.ItemTask{URL: goodURL})
	require.ErrorIs(t, err, crawler.ErrStoreUnavailable)
}

func TestProcessIngestIgnoresRunCancellation(t *testing.T) {
	t.Parallel()

	capture := &ctxCapturingIngester{}
	h := newHarness(t, Options{})
	capture.Ingester = h.worker.ingester
	h.worker.ingester = capture

	ctx, cancel := context.WithCancel(context.Background())
	h.worker.fetcher = fetcherFunc(func(fctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
		resp, err := h.fetcher.Fetch(fctx, req)
		cancel()
		return resp, err
	})

	result, err := h.worker.Process(ctx, crawler.ItemTask{URL: goodURL})
	require.NoError(t, err)
	require.Equal(t, ResultInserted, result)
	require.False(t, capture.canceled)
	_, ok, _ := h.store.FindByID(context.Background(), "tt0111161")
	require.True(t, ok)
}

type fetcherFunc func(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error)

func (f fetcherFunc) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	return f(ctx, req)
}

func TestRunDrainsQueueAndReports(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	for _, u := range []string{goodURL, badURL, goodURL} {
		require.NoError(t, h.queue.Enqueue(context.Background(), crawler.ItemTask{RunID: "run-1", URL: u}))
	}
	h.queue.Close()

	var results []Result
	err := h.worker.Run(context.Background(), func(r Result) { results = append(results, r) })
	require.NoError(t, err)
	require.Equal(t, []Result{ResultInserted, ResultAssemblyFailed, ResultDuplicate}, results)
}

func TestRunStopsOnStoreFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{Ingester: failingIngester{err: errors.New("disk full")}})
	for _, u := range []string{goodURL, goodURL} {
		require.NoError(t, h.queue.Enqueue(context.Background(), crawler.ItemTask{URL: u}))
	}

	err := h.worker.Run(context.Background(), nil)
	require.ErrorContains(t, err, "disk full")
	require.Equal(t, 1, h.queue.Len())
}

func TestRunReturnsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx, nil) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
