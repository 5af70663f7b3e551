package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS sift_runs (
	id            uuid PRIMARY KEY,
	prompt        text NOT NULL,
	mode          text NOT NULL,
	model         text NOT NULL DEFAULT '',
	succeeded     integer NOT NULL,
	failed        integer NOT NULL,
	generated_at  timestamptz NOT NULL,
	created_at    timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sift_chunk_results (
	run_id           uuid NOT NULL REFERENCES sift_runs(id) ON DELETE CASCADE,
	position         integer NOT NULL,
	conversation_id  text NOT NULL,
	chunk_index      integer NOT NULL,
	part             text NOT NULL,
	title            text NOT NULL,
	source_file      text NOT NULL,
	schema           text NOT NULL,
	status           text NOT NULL,
	response         text NOT NULL,
	error_kind       text NOT NULL,
	error            text NOT NULL,
	attempts         integer NOT NULL,
	token_count      integer NOT NULL,
	model            text NOT NULL,
	duration_ms      bigint NOT NULL,
	PRIMARY KEY (run_id, position)
);`

// EnsureSchema creates the result tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
