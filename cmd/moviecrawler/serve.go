package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/movie-catalog-crawler/internal/app"
	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
)

const shutdownTimeout = 10 * time.Second

// crawlRunner is the part of the crawl driver serve needs.
type crawlRunner interface {
	Run(ctx context.Context, listingURLs []string) (crawler.Summary, error)
}

// newCrawlRunner builds the startup crawl. It's a variable so tests can swap it.
var newCrawlRunner = func(a *app.App) (crawlRunner, error) {
	driver, err := a.NewDriver()
	if err != nil {
		return nil, err
	}
	return driver, nil
}

// newServeCmd creates the 'serve' subcommand, which exposes the catalog API.
func newServeCmd() *cobra.Command {
	var (
		addr       string
		crawlFirst bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the movie catalog over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(s *session, a *app.App) error {
				ctx := cmd.Context()
				logger := s.logger
				if addr == "" {
					addr = fmt.Sprintf(":%d", s.cfg.Server.Port)
				}
				srv := &http.Server{
					Addr:              addr,
					Handler:           a.NewServer().Handler(),
					ReadHeaderTimeout: 5 * time.Second,
				}

				if crawlFirst {
					runner, err := newCrawlRunner(a)
					if err != nil {
						return err
					}
					crawlCtx, cancelCrawl := context.WithCancel(ctx)
					crawlDone := make(chan struct{})
					go func() {
						defer close(crawlDone)
						summary, err := runner.Run(crawlCtx, s.cfg.Crawler.StartURLs)
						if err != nil {
							logger.Error("startup crawl failed", zap.Error(err))
							return
						}
						logger.Info("startup crawl finished", zap.Int("inserted", summary.Inserted))
					}()
					// The crawl must finish its in-flight ingests before the
					// deferred close of the app services.
					defer func() {
						cancelCrawl()
						<-crawlDone
					}()
				}

				errCh := make(chan error, 1)
				go func() {
					logger.Info("http server started", zap.String("addr", addr))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						errCh <- err
					}
					close(errCh)
				}()

				select {
				case err := <-errCh:
					if err != nil {
						return fmt.Errorf("http server: %w", err)
					}
					return nil
				case <-ctx.Done():
				}

				logger.Info("shutdown initiated")
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("server shutdown: %w", err)
				}
				logger.Info("shutdown complete")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to :server.port)")
	cmd.Flags().BoolVar(&crawlFirst, "crawl", false, "run one crawl of crawler.start_urls in the background at startup")
	return cmd
}
