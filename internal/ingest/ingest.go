// Package ingest commits assembled records to the store with insert-if-absent
// semantics and announces every new record.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/movie-catalog-crawler/internal/metrics"
	"github.com/JakeFAU/movie-catalog-crawler/internal/retry"
)

// Options configures a Pipeline.
type Options struct {
	Store  crawler.Store
	Clock  crawler.Clock
	Retry  crawler.RetryPolicy
	Logger *zap.Logger
	// Publisher and Topic are optional; events are only sent when both are set.
	Publisher crawler.Publisher
	Topic     string
}

// Pipeline is safe for concurrent use; the store arbitrates duplicates.
type Pipeline struct {
	store     crawler.Store
	clock     crawler.Clock
	retry     crawler.RetryPolicy
	logger    *zap.Logger
	publisher crawler.Publisher
	topic     string
}

// New builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if opts.Retry == nil {
		opts.Retry = retry.NewExponentialPolicy(retry.Config{MaxRetries: 3, Retryable: retry.StoreRetryable})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		store:     opts.Store,
		clock:     opts.Clock,
		retry:     opts.Retry,
		logger:    opts.Logger,
		publisher: opts.Publisher,
		topic:     opts.Topic,
	}, nil
}

// Ingest stores rec unless a record with the same external id already exists.
// An error means the store could not be used and is fatal to the run.
func (p *Pipeline) Ingest(ctx context.Context, runID string, rec crawler.Record) (crawler.Outcome, error) {
	logger := p.logger.With(zap.String("external_id", rec.ExternalID), zap.String("url", rec.SourceURL))

	var outcome crawler.Outcome
	err := retry.Do(ctx, p.retry, func(ctx context.Context) error {
		_, found, err := p.store.FindByID(ctx, rec.ExternalID)
		if err != nil {
			return err
		}
		if found {
			outcome = crawler.OutcomeSkipped
			return nil
		}
		rec.IngestedAt = p.clock.Now()
		outcome, err = p.store.InsertIfAbsent(ctx, rec)
		return err
	}, func(attempt int, err error) {
		logger.Warn("store unavailable, retrying", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		metrics.ObserveRecord("error")
		return "", fmt.Errorf("ingest %s: %w", rec.ExternalID, err)
	}
	metrics.ObserveRecord(string(outcome))

	if outcome == crawler.OutcomeSkipped {
		logger.Debug("record already stored")
		return outcome, nil
	}
	logger.Info("record inserted", zap.String("title", rec.Title))
	p.announce(ctx, logger, runID, rec)
	return outcome, nil
}

func (p *Pipeline) announce(ctx context.Context, logger *zap.Logger, runID string, rec crawler.Record) {
	if p.publisher == nil || p.topic == "" {
		return
	}
	event := crawler.IngestEvent{
		RunID:      runID,
		ExternalID: rec.ExternalID,
		Title:      rec.Title,
		SourceURL:  rec.SourceURL,
		IngestedAt: rec.IngestedAt,
	}
	if _, err := p.publisher.Publish(ctx, p.topic, event); err != nil {
		logger.Warn("publish ingest event failed", zap.Error(err))
	}
}
