package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/sift/internal/format"
)

var chunkColumns = []string{
	"run_id", "position", "conversation_id", "chunk_index", "part", "title",
	"source_file", "schema", "status", "response", "error_kind", "error",
	"attempts", "token_count", "model", "duration_ms",
}

// WriteRun stores a run and all of its rows in one transaction. A run id
// that is not a UUID is replaced by a fresh one; the id used is returned.
func (s *Store) WriteRun(ctx context.Context, doc format.Document) (uuid.UUID, error) {
	runID, err := uuid.Parse(doc.RunID)
	if err != nil {
		runID = uuid.New()
	}
	ok, failed := doc.Counts()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO sift_runs (id, prompt, mode, model, succeeded, failed, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		runID, doc.Prompt, doc.Mode, doc.Model, ok, failed, doc.GeneratedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}

	rows := make([][]any, len(doc.Rows))
	for i, r := range doc.Rows {
		rows[i] = []any{
			runID, i, r.ConversationID, r.ChunkIndex, r.Part, r.Title,
			r.SourceFile, r.Schema, r.Status, r.Response, r.ErrorKind, r.Error,
			r.Attempts, r.TokenCount, r.Model, r.DurationMS,
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"sift_chunk_results"}, chunkColumns, pgx.CopyFromRows(rows)); err != nil {
		return uuid.Nil, fmt.Errorf("copy chunk results: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return runID, nil
}

type RunRow struct {
	ID          uuid.UUID
	Prompt      string
	Mode        string
	Model       string
	Succeeded   int
	Failed      int
	GeneratedAt time.Time
}

// GetRun fetches a stored run by id.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*RunRow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, prompt, mode, model, succeeded, failed, generated_at
		FROM sift_runs WHERE id = $1`, id)

	var r RunRow
	if err := row.Scan(&r.ID, &r.Prompt, &r.Mode, &r.Model, &r.Succeeded, &r.Failed, &r.GeneratedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRows returns a run's rows in their stored order.
func (s *Store) ListRows(ctx context.Context, id uuid.UUID) ([]format.Row, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id, chunk_index, part, title, source_file, schema, status,
		       response, error_kind, error, attempts, token_count, model, duration_ms
		FROM sift_chunk_results WHERE run_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var out []format.Row
	for rows.Next() {
		var r format.Row
		if err := rows.Scan(&r.ConversationID, &r.ChunkIndex, &r.Part, &r.Title, &r.SourceFile, &r.Schema, &r.Status,
			&r.Response, &r.ErrorKind, &r.Error, &r.Attempts, &r.TokenCount, &r.Model, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Success = r.Status != "failed"
		out = append(out, r)
	}
	return out, rows.Err()
}
