package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/movie-catalog-crawler/internal/app"
	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/movie-catalog-crawler/internal/crawlertest"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chart/top", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(crawlertest.ChartPage("/title/tt0111161/", "/title/tt0068646/")))
	})
	mux.HandleFunc("/title/tt0111161/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(crawlertest.TitlePage(crawlertest.Title{ID: "tt0111161", Name: "The Shawshank Redemption", Year: 1994, Rating: "9.3"})))
	})
	mux.HandleFunc("/title/tt0068646/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(crawlertest.TitlePage(crawlertest.Title{ID: "tt0068646", Name: "The Godfather", Year: 1972})))
	})
	site := httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

func TestCrawlCommandPrintsSummary(t *testing.T) {
	t.Setenv("MOVIECRAWL_LOGGING_DEVELOPMENT", "false")
	t.Setenv("MOVIECRAWL_LOGGING_LEVEL", "error")
	site := newSite(t)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"crawl", "--url", site.URL + "/chart/top"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var summary crawler.Summary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	require.NotEmpty(t, summary.RunID)
	require.Equal(t, 1, summary.Listings)
	require.Equal(t, 2, summary.Discovered)
	require.Equal(t, 1, summary.Inserted)
	require.Equal(t, 1, summary.AssemblyFailed)
}

func TestCrawlCommandRejectsBadConfig(t *testing.T) {
	t.Setenv("MOVIECRAWL_CRAWLER_CONCURRENCY", "0")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"crawl"})
	err := cmd.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "crawler.concurrency")
}

func TestServeCommandStopsOnCanceledContext(t *testing.T) {
	t.Setenv("MOVIECRAWL_LOGGING_LEVEL", "error")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0"})
	require.NoError(t, cmd.ExecuteContext(ctx))
}

// slowRunner holds on to the crawl for a while after cancellation, the way a
// worker finishing a detached ingest does.
type slowRunner struct {
	finished atomic.Bool
}

func (r *slowRunner) Run(ctx context.Context, _ []string) (crawler.Summary, error) {
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	r.finished.Store(true)
	return crawler.Summary{}, ctx.Err()
}

func TestServeCommandWaitsForStartupCrawl(t *testing.T) {
	t.Setenv("MOVIECRAWL_LOGGING_LEVEL", "error")

	runner := &slowRunner{}
	orig := newCrawlRunner
	newCrawlRunner = func(*app.App) (crawlRunner, error) { return runner, nil }
	t.Cleanup(func() { newCrawlRunner = orig })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "--addr", "127.0.0.1:0", "--crawl"})
	require.NoError(t, cmd.ExecuteContext(ctx))
	require.True(t, runner.finished.Load(), "serve returned before the startup crawl finished")
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	require.Contains(t, names, "crawl")
	require.Contains(t, names, "serve")
	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}
