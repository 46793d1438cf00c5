// Package postgres provides the Postgres-backed movie store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/movie-catalog-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "movies"

// Config controls the Postgres connection pool used for movie rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// MovieStore reads and writes movie rows in Postgres.
type MovieStore struct {
	pool  pool
	table string
}

// NewMovieStore creates a Postgres-backed MovieStore using the provided config.
func NewMovieStore(ctx context.Context, cfg Config) (*MovieStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w: %v", crawler.ErrStoreUnavailable, err)
	}
	return &MovieStore{pool: p, table: table}, nil
}

// NewMovieStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewMovieStoreWithPool(p pool, table string) (*MovieStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &MovieStore{pool: p, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *MovieStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the movie table and its secondary indexes when missing.
func (s *MovieStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.table) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", classify(err))
		}
	}
	return nil
}

func schemaStatements(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	external_id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	poster_url TEXT NOT NULL,
	production_year INTEGER NOT NULL,
	duration_minutes INTEGER NOT NULL,
	genres TEXT[] NOT NULL,
	release_date DATE NOT NULL,
	rating DOUBLE PRECISION NOT NULL CHECK (rating >= 0 AND rating <= 10),
	rating_count BIGINT NOT NULL CHECK (rating_count >= 0),
	description TEXT NOT NULL,
	director TEXT[] NOT NULL DEFAULT '{}',
	writers TEXT[] NOT NULL DEFAULT '{}',
	cast_members TEXT[] NOT NULL DEFAULT '{}',
	source_url TEXT NOT NULL DEFAULT '',
	ingested_at TIMESTAMPTZ NOT NULL
)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_genres_idx ON %[1]s USING GIN (genres)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_production_year_idx ON %[1]s (production_year)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_rating_idx ON %[1]s (rating DESC)`, table),
	}
}

const columns = `external_id, title, poster_url, production_year, duration_minutes, genres, release_date,
	rating, rating_count, description, director, writers, cast_members, source_url, ingested_at`

// InsertIfAbsent inserts rec; a conflicting external_id leaves the stored row untouched.
func (s *MovieStore) InsertIfAbsent(ctx context.Context, rec crawler.Record) (crawler.Outcome, error) {
	if rec.ExternalID == "" {
		return "", fmt.Errorf("record external_id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
) ON CONFLICT (external_id) DO NOTHING`, s.table, columns)

	tag, err := s.pool.Exec(ctx, query,
		rec.ExternalID,
		rec.Title,
		rec.PosterURL,
		rec.ProductionYear,
		rec.DurationMinutes,
		nonNil(rec.Genres),
		rec.ReleaseDate,
		rec.Rating,
		rec.RatingCount,
		rec.Description,
		nonNil(rec.Director),
		nonNil(rec.Writers),
		nonNil(rec.Cast),
		rec.SourceURL,
		rec.IngestedAt,
	)
	if err != nil {
		err = classify(err)
		if errors.Is(err, crawler.ErrDuplicateKey) {
			return crawler.OutcomeSkipped, nil
		}
		return "", fmt.Errorf("insert movie %s: %w", rec.ExternalID, err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.OutcomeSkipped, nil
	}
	return crawler.OutcomeInserted, nil
}

// FindByID fetches one movie row.
func (s *MovieStore) FindByID(ctx context.Context, externalID string) (crawler.Record, bool, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE external_id = $1`, columns, s.table)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Record{}, false, nil
	}
	if err != nil {
		return crawler.Record{}, false, fmt.Errorf("find movie %s: %w", externalID, classify(err))
	}
	return rec, true, nil
}

// Find returns rows matching q ordered by rating descending.
func (s *MovieStore) Find(ctx context.Context, q crawler.Query) ([]crawler.Record, error) {
	query, args := buildFind(s.table, q)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find movies: %w", classify(err))
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (crawler.Record, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan movies: %w", classify(err))
	}
	return out, nil
}

// Count returns the number of stored movies.
func (s *MovieStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count movies: %w", classify(err))
	}
	return n, nil
}

func buildFind(table string, q crawler.Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.Genre != "" {
		add(`EXISTS (SELECT 1 FROM unnest(genres) g WHERE lower(g) = lower($%d))`, q.Genre)
	}
	if q.Year != 0 {
		add(`production_year = $%d`, q.Year)
	}
	if q.MinYear != 0 {
		add(`production_year >= $%d`, q.MinYear)
	}
	if q.Rating != nil {
		add(`rating = $%d`, *q.Rating)
	}
	if q.RatingBelow != nil {
		add(`rating < $%d`, *q.RatingBelow)
	}
	if q.TitleContains != "" {
		add(`strpos(lower(title), lower($%d)) > 0`, q.TitleContains)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", columns, table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY rating DESC, external_id ASC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

func scanRecord(row pgx.Row) (crawler.Record, error) {
	var rec crawler.Record
	err := row.Scan(
		&rec.ExternalID,
		&rec.Title,
		&rec.PosterURL,
		&rec.ProductionYear,
		&rec.DurationMinutes,
		&rec.Genres,
		&rec.ReleaseDate,
		&rec.Rating,
		&rec.RatingCount,
		&rec.Description,
		&rec.Director,
		&rec.Writers,
		&rec.Cast,
		&rec.SourceURL,
		&rec.IngestedAt,
	)
	return rec, err
}

// classify maps driver errors onto the crawler store taxonomy.
func classify(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%w: %v", crawler.ErrDuplicateKey, err)
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "53300", pgErr.Code == "57P01":
			return fmt.Errorf("%w: %v", crawler.ErrStoreUnavailable, err)
		default:
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", crawler.ErrStoreUnavailable, err)
	}
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", crawler.ErrStoreUnavailable, err)
	}
	return err
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
