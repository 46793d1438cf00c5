// Package discover turns a listing page into the item URLs to crawl.
package discover

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-catalog-crawler/internal/extract"
)

// Discoverer finds item links with a single selector.
type Discoverer struct {
	links  extract.Selector
	logger *zap.Logger
}

// New returns a Discoverer for the given link selector. A nil logger discards
// the skipped-link warnings.
func New(links extract.Selector, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{links: links, logger: logger}
}

// Discover returns every http(s) item link in doc resolved against baseURL, in
// source order. Duplicates are kept; deduplication belongs to the ingest
// pipeline. A link that does not parse, or resolves to another scheme, is
// logged and skipped without affecting its siblings.
func (d *Discoverer) Discover(doc *extract.Document, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base url %q is not absolute", baseURL)
	}
	hrefs, err := extract.Extract(doc, d.links)
	if err != nil {
		return nil, fmt.Errorf("extract links: %w", err)
	}
	out := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		href = strings.TrimSpace(href)
		if href == "" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			d.logger.Warn("unparsable link skipped", zap.String("href", href), zap.Error(err))
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			d.logger.Debug("non-http link skipped", zap.String("href", href))
			continue
		}
		abs.Fragment = ""
		out = append(out, abs.String())
	}
	return out, nil
}
