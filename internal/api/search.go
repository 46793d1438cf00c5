package api

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
)

var yearPattern = regexp.MustCompile(`^\d{4}$`)

// matcher interprets a free-text search term as one kind of filter.
type matcher struct {
	name string
	// query returns false when the term cannot be read as this kind of value.
	query func(term string) (crawler.Query, bool)
	// final makes an empty result stop the search instead of falling through.
	final bool
}

// defaultMatchers tries the numeric readings before the text ones.
func defaultMatchers() []matcher {
	return []matcher{
		{
			name: "year",
			query: func(term string) (crawler.Query, bool) {
				if !yearPattern.MatchString(term) {
					return crawler.Query{}, false
				}
				year, err := strconv.Atoi(term)
				if err != nil {
					return crawler.Query{}, false
				}
				return crawler.Query{Year: year}, true
			},
			final: true,
		},
		{
			name: "rating",
			query: func(term string) (crawler.Query, bool) {
				rating, err := strconv.ParseFloat(term, 64)
				if err != nil {
					return crawler.Query{}, false
				}
				return crawler.Query{Rating: &rating}, true
			},
		},
		{
			name: "title",
			query: func(term string) (crawler.Query, bool) {
				return crawler.Query{TitleContains: term}, true
			},
		},
		{
			name: "genre",
			query: func(term string) (crawler.Query, bool) {
				return crawler.Query{Genre: term}, true
			},
			final: true,
		},
	}
}

type searchResponse struct {
	Query     string           `json:"query"`
	MatchedBy string           `json:"matched_by,omitempty"`
	Movies    []crawler.Record `json:"movies"`
	Count     int              `json:"count"`
}

// search runs the matchers in order and returns the first definitive result.
func (s *Server) search(ctx context.Context, term string) (string, []crawler.Record, error) {
	for _, m := range s.matchers {
		q, ok := m.query(term)
		if !ok {
			continue
		}
		recs, err := s.catalog.Find(ctx, q)
		if err != nil {
			return m.name, nil, err
		}
		if len(recs) > 0 || m.final {
			return m.name, recs, nil
		}
	}
	return "", nil, nil
}

// searchMovies handles GET /v1/search?q=.
func (s *Server) searchMovies(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StoreTimeout)
	defer cancel()

	matchedBy, recs, err := s.search(ctx, term)
	if err != nil {
		s.logger.Error("search failed", zap.String("query", term), zap.String("matcher", matchedBy), zap.Error(err))
		writeError(w, storeStatus(err), "search failed")
		return
	}
	page := newMoviesResponse(recs)
	writeJSON(w, http.StatusOK, searchResponse{
		Query:     term,
		MatchedBy: matchedBy,
		Movies:    page.Movies,
		Count:     page.Count,
	})
}
