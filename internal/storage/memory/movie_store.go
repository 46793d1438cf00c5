package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
)

// MovieStore provides an in-memory record store for development/testing.
type MovieStore struct {
	mu      sync.RWMutex
	records map[string]crawler.Record
}

// NewMovieStore constructs a MovieStore.
func NewMovieStore() *MovieStore {
	return &MovieStore{records: make(map[string]crawler.Record)}
}

// FindByID fetches a record by external id.
func (s *MovieStore) FindByID(_ context.Context, externalID string) (crawler.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[externalID]
	if !ok {
		return crawler.Record{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

// InsertIfAbsent stores rec unless its external id is already present.
func (s *MovieStore) InsertIfAbsent(_ context.Context, rec crawler.Record) (crawler.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ExternalID]; exists {
		return crawler.OutcomeSkipped, nil
	}
	s.records[rec.ExternalID] = cloneRecord(rec)
	return crawler.OutcomeInserted, nil
}

// Find returns records matching q ordered by rating descending.
func (s *MovieStore) Find(_ context.Context, q crawler.Query) ([]crawler.Record, error) {
	s.mu.RLock()
	out := make([]crawler.Record, 0, len(s.records))
	for _, rec := range s.records {
		if matches(rec, q) {
			out = append(out, cloneRecord(rec))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ExternalID < out[j].ExternalID
	})
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []crawler.Record{}, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *MovieStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func matches(rec crawler.Record, q crawler.Query) bool {
	if q.Genre != "" && !slices.ContainsFunc(rec.Genres, func(g string) bool {
		return strings.EqualFold(g, q.Genre)
	}) {
		return false
	}
	if q.Year != 0 && rec.ProductionYear != q.Year {
		return false
	}
	if q.MinYear != 0 && rec.ProductionYear < q.MinYear {
		return false
	}
	if q.Rating != nil && rec.Rating != *q.Rating {
		return false
	}
	if q.RatingBelow != nil && rec.Rating >= *q.RatingBelow {
		return false
	}
	if q.TitleContains != "" && !strings.Contains(strings.ToLower(rec.Title), strings.ToLower(q.TitleContains)) {
		return false
	}
	return true
}

func cloneRecord(rec crawler.Record) crawler.Record {
	rec.Genres = slices.Clone(rec.Genres)
	rec.Director = slices.Clone(rec.Director)
	rec.Writers = slices.Clone(rec.Writers)
	rec.Cast = slices.Clone(rec.Cast)
	return rec
}
