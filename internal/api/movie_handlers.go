package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
)

const (
	defaultMovieLimit = 100
	maxMovieLimit     = 1000
)

type moviesResponse struct {
	Movies []crawler.Record `json:"movies"`
	Count  int              `json:"count"`
}

// listMovies handles GET /v1/movies?genre=&year=&rating=&name=&limit=&offset=.
func (s *Server) listMovies(w http.ResponseWriter, r *http.Request) {
	q, err := parseMovieQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondFind(w, r, q)
}

// getMovie handles GET /v1/movies/{external_id}.
func (s *Server) getMovie(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "external_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "external_id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StoreTimeout)
	defer cancel()

	rec, found, err := s.catalog.FindByID(ctx, id)
	if err != nil {
		s.logger.Error("find movie failed", zap.String("external_id", id), zap.Error(err))
		writeError(w, storeStatus(err), "failed to load movie")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "movie not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// topMovies handles GET /v1/movies/top/{percentage}. It returns the best rated
// round(count * percentage / 100) movies.
func (s *Server) topMovies(w http.ResponseWriter, r *http.Request) {
	pct, err := strconv.Atoi(chi.URLParam(r, "percentage"))
	if err != nil || pct < 0 || pct > 100 {
		writeError(w, http.StatusBadRequest, "percentage must be an integer between 0 and 100")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StoreTimeout)
	defer cancel()

	total, err := s.catalog.Count(ctx)
	if err != nil {
		s.logger.Error("count movies failed", zap.Error(err))
		writeError(w, storeStatus(err), "failed to count movies")
		return
	}
	limit := topLimit(total, pct)
	if limit == 0 {
		writeJSON(w, http.StatusOK, moviesResponse{Movies: []crawler.Record{}})
		return
	}
	s.respondFind(w, r, crawler.Query{Limit: limit})
}

// recentMovies handles GET /v1/movies/recent.
func (s *Server) recentMovies(w http.ResponseWriter, r *http.Request) {
	minYear := s.clock.Now().Year() - s.cfg.RecentYears
	s.respondFind(w, r, crawler.Query{MinYear: minYear})
}

// dontWatchMovies handles GET /v1/movies/dontwatch.
func (s *Server) dontWatchMovies(w http.ResponseWriter, r *http.Request) {
	below := s.cfg.DontWatchBelow
	s.respondFind(w, r, crawler.Query{RatingBelow: &below})
}

func (s *Server) respondFind(w http.ResponseWriter, r *http.Request, q crawler.Query) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StoreTimeout)
	defer cancel()

	recs, err := s.catalog.Find(ctx, q)
	if err != nil {
		s.logger.Error("find movies failed", zap.Error(err))
		writeError(w, storeStatus(err), "failed to list movies")
		return
	}
	writeJSON(w, http.StatusOK, newMoviesResponse(recs))
}

func newMoviesResponse(recs []crawler.Record) moviesResponse {
	if recs == nil {
		recs = []crawler.Record{}
	}
	return moviesResponse{Movies: recs, Count: len(recs)}
}

func topLimit(total, pct int) int {
	return int(math.Round(float64(total) * float64(pct) / 100))
}

func parseMovieQuery(r *http.Request) (crawler.Query, error) {
	values := r.URL.Query()
	q := crawler.Query{
		Genre:         strings.TrimSpace(values.Get("genre")),
		TitleContains: strings.TrimSpace(values.Get("name")),
	}
	if raw := values.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year <= 0 {
			return crawler.Query{}, errors.New("invalid year")
		}
		q.Year = year
	}
	if raw := values.Get("rating"); raw != "" {
		rating, err := strconv.ParseFloat(raw, 64)
		if err != nil || rating < 0 || rating > 10 {
			return crawler.Query{}, errors.New("invalid rating")
		}
		q.Rating = &rating
	}
	limit, offset, err := parseLimitOffset(r, defaultMovieLimit, maxMovieLimit)
	if err != nil {
		return crawler.Query{}, err
	}
	q.Limit = limit
	q.Offset = offset
	return q, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
