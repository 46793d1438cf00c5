// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// Record is the canonical unit persisted per movie.
type Record struct {
	ExternalID      string    `json:"external_id" bson:"external_id"`
	Title           string    `json:"title" bson:"title"`
	PosterURL       string    `json:"poster_url" bson:"poster_url"`
	ProductionYear  int       `json:"production_year" bson:"production_year"`
	DurationMinutes int       `json:"duration_minutes" bson:"duration_minutes"`
	Genres          []string  `json:"genres" bson:"genres"`
	ReleaseDate     time.Time `json:"release_date" bson:"release_date"`
	Rating          float64   `json:"rating" bson:"rating"`
	RatingCount     int64     `json:"rating_count" bson:"rating_count"`
	Description     string    `json:"description" bson:"description"`
	Director        []string  `json:"director" bson:"director"`
	Writers         []string  `json:"writers" bson:"writers"`
	Cast            []string  `json:"cast" bson:"cast"`
	SourceURL       string    `json:"source_url" bson:"source_url"`
	IngestedAt      time.Time `json:"ingested_at" bson:"ingested_at"`
}

// Outcome reports what the ingest pipeline did with a record.
type Outcome string

// Ingest outcomes.
const (
	OutcomeInserted Outcome = "inserted"
	OutcomeSkipped  Outcome = "skipped"
)

// Query selects records for the read facade. Zero values mean "no filter".
type Query struct {
	Genre         string
	Year          int
	MinYear       int
	Rating        *float64
	RatingBelow   *float64
	TitleContains string
	Limit         int
	Offset        int
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ItemTask is one discovered item page waiting to be crawled.
type ItemTask struct {
	RunID      string
	ListingURL string
	URL        string
	Index      int
}

// IngestEvent is published once per inserted record.
type IngestEvent struct {
	RunID      string    `json:"run_id"`
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title"`
	SourceURL  string    `json:"source_url"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Summary tallies a crawl run.
type Summary struct {
	RunID          string `json:"run_id"`
	Listings       int    `json:"listings"`
	ListingsFailed int    `json:"listings_failed"`
	Discovered     int    `json:"discovered"`
	Inserted       int    `json:"inserted"`
	Duplicates     int    `json:"duplicates"`
	AssemblyFailed int    `json:"assembly_failed"`
	FetchFailed    int    `json:"fetch_failed"`
}
