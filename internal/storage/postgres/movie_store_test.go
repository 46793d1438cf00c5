package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
)

var columnNames = []string{
	"external_id", "title", "poster_url", "production_year", "duration_minutes", "genres", "release_date",
	"rating", "rating_count", "description", "director", "writers", "cast_members", "source_url", "ingested_at",
}

func shawshank() crawler.Record {
	return crawler.Record{
		ExternalID:      "tt0111161",
		Title:           "The Shawshank Redemption",
		PosterURL:       "https://m.media-amazon.com/images/shawshank.jpg",
		ProductionYear:  1994,
		DurationMinutes: 142,
		Genres:          []string{"Crime", "Drama"},
		ReleaseDate:     time.Date(1994, time.October, 14, 0, 0, 0, 0, time.UTC),
		Rating:          9.3,
		RatingCount:     1498733,
		Description:     "Two imprisoned men bond over a number of years.",
		Director:        []string{"Frank Darabont"},
		Writers:         []string{"Stephen King", "Frank Darabont"},
		Cast:            []string{"Tim Robbins", "Morgan Freeman"},
		SourceURL:       "https://www.imdb.com/title/tt0111161/",
		IngestedAt:      time.Unix(1700000000, 0).UTC(),
	}
}

func recordArgs(rec crawler.Record) []any {
	return []any{
		rec.ExternalID, rec.Title, rec.PosterURL, rec.ProductionYear, rec.DurationMinutes, rec.Genres,
		rec.ReleaseDate, rec.Rating, rec.RatingCount, rec.Description, rec.Director, rec.Writers, rec.Cast,
		rec.SourceURL, rec.IngestedAt,
	}
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *MovieStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewMovieStoreWithPool(mock, "movies")
	require.NoError(t, err)
	return mock, store
}

func TestInsertIfAbsentInsertsRow(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	rec := shawshank()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO movies")).
		WithArgs(recordArgs(rec)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	outcome, err := store.InsertIfAbsent(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeInserted, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIfAbsentConflictIsSkipped(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	rec := shawshank()
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (external_id) DO NOTHING")).
		WithArgs(recordArgs(rec)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	outcome, err := store.InsertIfAbsent(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeSkipped, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIfAbsentUniqueViolationIsSkipped(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	rec := shawshank()
	mock.ExpectExec("INSERT INTO movies").
		WithArgs(recordArgs(rec)...).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	outcome, err := store.InsertIfAbsent(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeSkipped, outcome)
}

func TestInsertIfAbsentNilListsBecomeEmpty(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	rec := shawshank()
	rec.Director = nil
	rec.Writers = nil
	args := recordArgs(rec)
	args[10] = []string{}
	args[11] = []string{}
	mock.ExpectExec("INSERT INTO movies").
		WithArgs(args...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	_, err := store.InsertIfAbsent(context.Background(), rec)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIfAbsentConnectionFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	rec := shawshank()
	mock.ExpectExec("INSERT INTO movies").
		WithArgs(recordArgs(rec)...).
		WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

	_, err := store.InsertIfAbsent(context.Background(), rec)
	require.ErrorIs(t, err, crawler.ErrStoreUnavailable)
}

func TestInsertIfAbsentConstraintViolationIsFatal(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	rec := shawshank()
	mock.ExpectExec("INSERT INTO movies").
		WithArgs(recordArgs(rec)...).
		WillReturnError(&pgconn.PgError{Code: "23514", Message: "check constraint"})

	_, err := store.InsertIfAbsent(context.Background(), rec)
	require.Error(t, err)
	require.NotErrorIs(t, err, crawler.ErrStoreUnavailable)

	_, err = store.InsertIfAbsent(context.Background(), crawler.Record{})
	require.Error(t, err)
}

func TestFindByID(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	rec := shawshank()
	mock.ExpectQuery(regexp.QuoteMeta("FROM movies WHERE external_id = $1")).
		WithArgs("tt0111161").
		WillReturnRows(pgxmock.NewRows(columnNames).AddRow(recordArgs(rec)...))
	mock.ExpectQuery(regexp.QuoteMeta("FROM movies WHERE external_id = $1")).
		WithArgs("tt404").
		WillReturnError(pgx.ErrNoRows)

	got, ok, err := store.FindByID(context.Background(), "tt0111161")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)

	_, ok, err = store.FindByID(context.Background(), "tt404")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUsesFilters(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	rec := shawshank()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE production_year = $1 ORDER BY rating DESC, external_id ASC LIMIT $2")).
		WithArgs(1994, 5).
		WillReturnRows(pgxmock.NewRows(columnNames).AddRow(recordArgs(rec)...))

	got, err := store.Find(context.Background(), crawler.Query{Year: 1994, Limit: 5})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "tt0111161", got[0].ExternalID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCount(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM movies")).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(250))

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 250, n)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, store := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS movies")).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta("USING GIN (genres)")).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta("(production_year)")).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(regexp.QuoteMeta("(rating DESC)")).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildFind(t *testing.T) {
	t.Parallel()

	rating := 9.0
	below := 8.2
	query, args := buildFind("movies", crawler.Query{
		Genre:         "drama",
		MinYear:       2019,
		Rating:        &rating,
		RatingBelow:   &below,
		TitleContains: "knight",
		Offset:        10,
	})
	require.Contains(t, query, "WHERE EXISTS (SELECT 1 FROM unnest(genres) g WHERE lower(g) = lower($1))"+
		" AND production_year >= $2 AND rating = $3 AND rating < $4 AND strpos(lower(title), lower($5)) > 0")
	require.Contains(t, query, "ORDER BY rating DESC, external_id ASC OFFSET $6")
	require.NotContains(t, query, "LIMIT")
	require.Equal(t, []any{"drama", 2019, 9.0, 8.2, "knight", 10}, args)

	bare, bareArgs := buildFind("movies", crawler.Query{})
	require.NotContains(t, bare, "WHERE")
	require.Empty(t, bareArgs)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, classify(&pgconn.PgError{Code: "57P01"}), crawler.ErrStoreUnavailable)
	require.ErrorIs(t, classify(&pgconn.PgError{Code: "23505"}), crawler.ErrDuplicateKey)
	require.ErrorIs(t, classify(context.DeadlineExceeded), crawler.ErrStoreUnavailable)
	require.ErrorIs(t, classify(context.Canceled), context.Canceled)
	require.NotErrorIs(t, classify(errors.New("syntax")), crawler.ErrStoreUnavailable)
}

func TestNewMovieStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewMovieStore(context.Background(), Config{})
	require.Error(t, err)
	_, err = NewMovieStoreWithPool(nil, "movies")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewMovieStoreWithPool(mock, "movies; DROP TABLE x")
	require.Error(t, err)
}
