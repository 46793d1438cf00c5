// Package worker implements the per-item crawl pipeline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/movie-catalog-crawler/internal/extract"
	"github.com/JakeFAU/movie-catalog-crawler/internal/metrics"
	"github.com/JakeFAU/movie-catalog-crawler/internal/retry"
)

const defaultStoreTimeout = 10 * time.Second

// State names a step of the per-item pipeline. It is attached to log entries.
type State string

// Pipeline states in the order an item moves through them.
const (
	StateFetching   State = "fetching"
	StateArchiving  State = "archiving"
	StateAssembling State = "assembling"
	StateIngesting  State = "ingesting"
)

// Result is what happened to one item.
type Result int

// Item results.
const (
	ResultInserted Result = iota
	ResultDuplicate
	ResultAssemblyFailed
	ResultFetchFailed
	ResultCanceled
)

// Assembler turns a parsed item page into a record.
type Assembler interface {
	Assemble(doc *extract.Document, sourceURL string) (crawler.Record, error)
}

// Ingester commits a record.
type Ingester interface {
	Ingest(ctx context.Context, runID string, rec crawler.Record) (crawler.Outcome, error)
}

// Archiver stores the raw page body.
type Archiver interface {
	Archive(ctx context.Context, body []byte) (string, error)
}

// Options wires a Worker.
type Options struct {
	Queue     crawler.Queue
	Fetcher   crawler.Fetcher
	Retry     crawler.RetryPolicy
	Assembler Assembler
	Ingester  Ingester
	// Archiver is optional.
	Archiver Archiver
	// StoreTimeout bounds the detached ingest step.
	StoreTimeout time.Duration
	Logger       *zap.Logger
}

// Worker consumes item tasks and drives each through fetch, assemble and ingest.
type Worker struct {
	queue        crawler.Queue
	fetcher      crawler.Fetcher
	retry        crawler.RetryPolicy
	assembler    Assembler
	ingester     Ingester
	archiver     Archiver
	storeTimeout time.Duration
	logger       *zap.Logger
}

// New constructs a Worker.
func New(opts Options) *Worker {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Retry == nil {
		opts.Retry = retry.NewExponentialPolicy(retry.Config{})
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}
	return &Worker{
		queue:        opts.Queue,
		fetcher:      opts.Fetcher,
		retry:        opts.Retry,
		assembler:    opts.Assembler,
		ingester:     opts.Ingester,
		archiver:     opts.Archiver,
		storeTimeout: opts.StoreTimeout,
		logger:       opts.Logger,
	}
}

// Run consumes tasks until the queue is closed and drained or ctx ends. report,
// when set, receives every item result. A non-nil error is a store failure.
func (w *Worker) Run(ctx context.Context, report func(Result)) error {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, crawler.ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}
		metrics.IncActiveWorkers()
		result, err := w.Process(ctx, task)
		metrics.DecActiveWorkers()
		if report != nil {
			report(result)
		}
		if err != nil {
			return err
		}
	}
}

// Process runs one task through the pipeline. Per-item failures are logged and
// reported as results; only store failures are returned as errors.
func (w *Worker) Process(ctx context.Context, task crawler.ItemTask) (Result, error) {
	logger := w.logger.With(zap.String("run_id", task.RunID), zap.String("url", task.URL))

	logger.Debug("item state", zap.String("state", string(StateFetching)))
	resp, err := FetchWithRetry(ctx, w.fetcher, w.retry, task.URL, logger)
	if err != nil {
		if ctx.Err() != nil {
			return ResultCanceled, nil
		}
		metrics.ObserveSkip("fetch")
		logger.Warn("item fetch failed, skipping", zap.Error(err))
		return ResultFetchFailed, nil
	}

	if w.archiver != nil {
		logger.Debug("item state", zap.String("state", string(StateArchiving)))
		if uri, err := w.archiver.Archive(ctx, resp.Body); err != nil {
			logger.Warn("archive page failed", zap.Error(err))
		} else {
			logger.Debug("page archived", zap.String("uri", uri))
		}
	}

	logger.Debug("item state", zap.String("state", string(StateAssembling)))
	rec, err := w.assemble(resp, task.URL)
	if err != nil {
		metrics.ObserveSkip("assembly")
		logger.Warn("item assembly failed, skipping",
			zap.String("field", crawler.FieldOf(err)),
			zap.Error(err),
		)
		return ResultAssemblyFailed, nil
	}

	logger.Debug("item state", zap.String("state", string(StateIngesting)), zap.String("external_id", rec.ExternalID))
	// A record that reached this point is committed even if the run is being
	// canceled, so it is either fully stored or not written at all.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.storeTimeout)
	defer cancel()
	outcome, err := w.ingester.Ingest(storeCtx, task.RunID, rec)
	if err != nil {
		logger.Error("store failure", zap.String("external_id", rec.ExternalID), zap.Error(err))
		return ResultCanceled, fmt.Errorf("ingest %s: %w", task.URL, err)
	}
	if outcome == crawler.OutcomeSkipped {
		return ResultDuplicate, nil
	}
	return ResultInserted, nil
}

// assemble prefers the final response URL so redirects land on the canonical id.
func (w *Worker) assemble(resp crawler.FetchResponse, taskURL string) (crawler.Record, error) {
	doc, err := extract.ParseBytes(resp.Body)
	if err != nil {
		return crawler.Record{}, fmt.Errorf("%w: %v", crawler.ErrFormat, err)
	}
	sourceURL := resp.URL
	if sourceURL == "" {
		sourceURL = taskURL
	}
	return w.assembler.Assemble(doc, sourceURL)
}

// FetchWithRetry fetches url, retrying transient failures per policy.
func FetchWithRetry(
	ctx context.Context,
	fetcher crawler.Fetcher,
	policy crawler.RetryPolicy,
	url string,
	logger *zap.Logger,
) (crawler.FetchResponse, error) {
	var resp crawler.FetchResponse
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var err error
		resp, err = fetcher.Fetch(ctx, crawler.FetchRequest{URL: url})
		return err
	}, func(attempt int, err error) {
		metrics.ObserveFetchRetry()
		logger.Info("fetch failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	return resp, nil
}
