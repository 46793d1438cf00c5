// Package dispatcher drives a crawl run: listing pages feed a bounded queue
// that a fixed pool of workers drains.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/movie-catalog-crawler/internal/discover"
	"github.com/JakeFAU/movie-catalog-crawler/internal/extract"
	"github.com/JakeFAU/movie-catalog-crawler/internal/queue/memory"
	"github.com/JakeFAU/movie-catalog-crawler/internal/retry"
	"github.com/JakeFAU/movie-catalog-crawler/internal/worker"
)

const (
	defaultConcurrency = 4
	defaultQueueDepth  = 64
)

// Options wires a Driver. The worker options are shared by every worker; their
// Queue is replaced by the run's queue.
type Options struct {
	// BaseURL, when set, resolves relative listing URLs.
	BaseURL     string
	Fetcher     crawler.Fetcher
	Retry       crawler.RetryPolicy
	Discoverer  *discover.Discoverer
	IDs         crawler.IDGenerator
	Worker      worker.Options
	Concurrency int
	QueueDepth  int
	Logger      *zap.Logger
}

// Driver runs crawls.
type Driver struct {
	opts   Options
	base   *url.URL
	logger *zap.Logger
}

// New validates opts and builds a Driver.
func New(opts Options) (*Driver, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Discoverer == nil {
		return nil, errors.New("discoverer is required")
	}
	if opts.IDs == nil {
		return nil, errors.New("id generator is required")
	}
	if opts.Worker.Assembler == nil || opts.Worker.Ingester == nil {
		return nil, errors.New("worker assembler and ingester are required")
	}
	var base *url.URL
	if opts.BaseURL != "" {
		u, err := url.Parse(opts.BaseURL)
		if err != nil || !u.IsAbs() {
			return nil, fmt.Errorf("base url %q must be an absolute url", opts.BaseURL)
		}
		base = u
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = defaultQueueDepth
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Worker.Fetcher == nil {
		opts.Worker.Fetcher = opts.Fetcher
	}
	if opts.Retry == nil {
		opts.Retry = retry.NewExponentialPolicy(retry.Config{})
	}
	if opts.Worker.Retry == nil {
		opts.Worker.Retry = opts.Retry
	}
	if opts.Worker.Logger == nil {
		opts.Worker.Logger = opts.Logger
	}
	return &Driver{opts: opts, base: base, logger: opts.Logger}, nil
}

// Run crawls every listing URL and returns the run summary. Per-item failures
// are counted, not returned. A store failure cancels the run and is returned; a
// canceled ctx stops the run early and returns ctx's error.
func (d *Driver) Run(ctx context.Context, listingURLs []string) (crawler.Summary, error) {
	runID, err := d.opts.IDs.NewID()
	if err != nil {
		return crawler.Summary{}, fmt.Errorf("new run id: %w", err)
	}
	logger := d.logger.With(zap.String("run_id", runID))
	tally := &tally{summary: crawler.Summary{RunID: runID}}

	queue := memory.NewQueue(d.opts.QueueDepth)
	wopts := d.opts.Worker
	wopts.Queue = queue
	wopts.Logger = wopts.Logger.With(zap.String("run_id", runID))

	logger.Info("crawl started", zap.Int("listings", len(listingURLs)), zap.Int("workers", d.opts.Concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer queue.Close()
		d.produce(gctx, runID, listingURLs, queue, tally, logger)
		return nil
	})
	for i := 0; i < d.opts.Concurrency; i++ {
		w := worker.New(wopts)
		g.Go(func() error {
			return w.Run(gctx, tally.record)
		})
	}

	err = g.Wait()
	summary := tally.snapshot()
	fields := []zap.Field{
		zap.Int("discovered", summary.Discovered),
		zap.Int("inserted", summary.Inserted),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("assembly_failed", summary.AssemblyFailed),
		zap.Int("fetch_failed", summary.FetchFailed),
	}
	if err != nil {
		logger.Error("crawl aborted", append(fields, zap.Error(err))...)
		return summary, fmt.Errorf("crawl %s: %w", runID, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Warn("crawl canceled", fields...)
		return summary, fmt.Errorf("crawl %s: %w", runID, ctxErr)
	}
	logger.Info("crawl finished", fields...)
	return summary, nil
}

func (d *Driver) produce(
	ctx context.Context,
	runID string,
	listingURLs []string,
	queue crawler.Queue,
	tally *tally,
	logger *zap.Logger,
) {
	for _, listing := range listingURLs {
		if ctx.Err() != nil {
			return
		}
		listing = d.resolve(listing)
		links, err := d.discover(ctx, listing, logger)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			tally.listingFailed()
			logger.Warn("listing failed, skipping", zap.String("url", listing), zap.Error(err))
			continue
		}
		tally.listing(len(links))
		logger.Info("listing discovered", zap.String("url", listing), zap.Int("links", len(links)))
		for i, link := range links {
			task := crawler.ItemTask{RunID: runID, ListingURL: listing, URL: link, Index: i}
			if err := queue.Enqueue(ctx, task); err != nil {
				return
			}
		}
	}
}

func (d *Driver) discover(ctx context.Context, listing string, logger *zap.Logger) ([]string, error) {
	resp, err := worker.FetchWithRetry(ctx, d.opts.Fetcher, d.opts.Retry, listing, logger.With(zap.String("url", listing)))
	if err != nil {
		return nil, err
	}
	doc, err := extract.ParseBytes(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", listing, err)
	}
	base := resp.URL
	if base == "" {
		base = listing
	}
	links, err := d.opts.Discoverer.Discover(doc, base)
	if err != nil {
		return nil, fmt.Errorf("discover links on %s: %w", listing, err)
	}
	return links, nil
}

// resolve makes a relative listing URL absolute against the base URL. Anything
// it cannot resolve is returned unchanged and fails at fetch time.
func (d *Driver) resolve(listing string) string {
	if d.base == nil {
		return listing
	}
	ref, err := url.Parse(listing)
	if err != nil || ref.IsAbs() {
		return listing
	}
	return d.base.ResolveReference(ref).String()
}

type tally struct {
	mu      sync.Mutex
	summary crawler.Summary
}

func (t *tally) listing(links int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Listings++
	t.summary.Discovered += links
}

func (t *tally) listingFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.ListingsFailed++
}

func (t *tally) record(r worker.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch r {
	case worker.ResultInserted:
		t.summary.Inserted++
	case worker.ResultDuplicate:
		t.summary.Duplicates++
	case worker.ResultAssemblyFailed:
		t.summary.AssemblyFailed++
	case worker.ResultFetchFailed:
		t.summary.FetchFailed++
	}
}

func (t *tally) snapshot() crawler.Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary
}
