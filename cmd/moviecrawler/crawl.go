package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/movie-catalog-crawler/internal/app"
)

// newCrawlCmd creates the 'crawl' subcommand, which runs one crawl over the
// configured listing pages and prints the run summary as JSON.
func newCrawlCmd() *cobra.Command {
	var urls []string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl and exits",
		Long: `Fetches every listing page, follows the title links it finds with a
bounded worker pool, and inserts each new title into the store. Titles already
in the store are skipped. A store failure aborts the run with a non-zero exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(s *session, a *app.App) error {
				listings := s.cfg.Crawler.StartURLs
				if len(urls) > 0 {
					listings = urls
				}
				if len(listings) == 0 {
					return errors.New("no listing urls: set crawler.start_urls or pass --url")
				}
				driver, err := a.NewDriver()
				if err != nil {
					return err
				}
				summary, runErr := driver.Run(cmd.Context(), listings)

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(summary); err != nil {
					s.logger.Warn("write summary failed", zap.Error(err))
				}
				if runErr != nil {
					return fmt.Errorf("run crawl: %w", runErr)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&urls, "url", nil, "listing url to crawl (repeatable; overrides crawler.start_urls)")
	return cmd
}
