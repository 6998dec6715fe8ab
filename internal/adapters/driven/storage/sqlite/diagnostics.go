package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/gnosis/internal/core/domain"
)

// RecordIngestError appends a diagnostic row. The store assigns the id
// and timestamp when the caller left them empty.
func (s *Store) RecordIngestError(ctx context.Context, e *domain.IngestError) error {
	if e.Collection == "" || e.RelPath == "" {
		return domain.WrapError(domain.KindValidation,
			"ingest error needs collection and rel_path", domain.ErrInvalidInput)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	details := e.DetailsJSON
	if details == "" {
		details = "null"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_errors (id, collection, rel_path, occurred_at, code, message, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Collection, e.RelPath, e.OccurredAt, string(e.Code), e.Message, details)
	if err != nil {
		return domain.WrapError(domain.KindQueryFailed, "recording ingest error", err)
	}
	return nil
}

// ListIngestErrors returns diagnostic rows newest first, optionally
// restricted to one collection.
func (s *Store) ListIngestErrors(ctx context.Context, collection string, limit int) ([]domain.IngestError, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, collection, rel_path, occurred_at, code, message, details_json
		FROM ingest_errors`
	args := []any{}
	if collection != "" {
		query += " WHERE collection = ?"
		args = append(args, collection)
	}
	query += " ORDER BY occurred_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "querying ingest errors", err)
	}
	defer rows.Close()

	var errs []domain.IngestError //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.IngestError
		var code string
		if err := rows.Scan(&e.ID, &e.Collection, &e.RelPath, &e.OccurredAt,
			&code, &e.Message, &e.DetailsJSON); err != nil {
			return nil, domain.WrapError(domain.KindQueryFailed, "scanning ingest error", err)
		}
		e.Code = domain.Kind(code)
		errs = append(errs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.KindQueryFailed, "iterating ingest errors", err)
	}
	return errs, nil
}

// CleanupOrphans removes mirrors no document references, chunks whose
// mirror is gone, vectors whose chunk is gone and FTS rows whose chunk
// is gone, all in one transaction. Safe to re-run; a second pass
// removes nothing. Returns the number of rows removed.
func (s *Store) CleanupOrphans(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.WrapError(domain.KindQueryFailed, "beginning cleanup transaction", err)
	}
	defer tx.Rollback()

	// Leaf rows go first so every removed row is counted instead of
	// disappearing through FK cascades.
	statements := []struct {
		desc  string
		query string
	}{
		{"orphan vectors", `
			DELETE FROM content_vectors
			WHERE NOT EXISTS (
				SELECT 1 FROM chunks c
				JOIN documents d ON d.mirror_hash = c.mirror_hash
				WHERE c.mirror_hash = content_vectors.mirror_hash
				  AND c.seq = content_vectors.seq
			)`},
		{"orphan fts rows", `
			DELETE FROM chunk_fts
			WHERE NOT EXISTS (
				SELECT 1 FROM chunks c
				JOIN documents d ON d.mirror_hash = c.mirror_hash
				WHERE c.mirror_hash = chunk_fts.mirror_hash
				  AND c.seq = chunk_fts.seq
			)`},
		{"orphan chunks", `
			DELETE FROM chunks
			WHERE NOT EXISTS (
				SELECT 1 FROM documents d
				WHERE d.mirror_hash = chunks.mirror_hash
			)`},
		{"orphan mirrors", `
			DELETE FROM content
			WHERE NOT EXISTS (
				SELECT 1 FROM documents d
				WHERE d.mirror_hash = content.mirror_hash
			)`},
	}

	removed := 0
	for _, stmt := range statements {
		res, err := tx.ExecContext(ctx, stmt.query)
		if err != nil {
			return 0, domain.WrapError(domain.KindQueryFailed, "deleting "+stmt.desc, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, domain.WrapError(domain.KindQueryFailed, "counting "+stmt.desc, err)
		}
		removed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, domain.WrapError(domain.KindQueryFailed, "committing cleanup", err)
	}
	return removed, nil
}
